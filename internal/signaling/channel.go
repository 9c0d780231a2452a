package signaling

import (
	"regexp"
	"strings"
)

// ChannelRole is the result of classifying a channel name. It is either an
// AgentChannel or an UnknownChannel.
type ChannelRole interface {
	isChannelRole()
}

// AgentChannel is a channel whose name encodes a routable extension
type AgentChannel struct {
	Extension string
}

// UnknownChannel carries no routable extension
type UnknownChannel struct{}

func (AgentChannel) isChannelRole()   {}
func (UnknownChannel) isChannelRole() {}

// extension digits followed by a dash-delimited unique suffix, e.g. PJSIP/2000-00000001
var extensionPattern = regexp.MustCompile(`(?:^|/)(\d+)-[0-9A-Za-z.;_]+$`)

// ClassifyChannel maps a channel name to its role
func ClassifyChannel(name string) ChannelRole {
	m := extensionPattern.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return UnknownChannel{}
	}
	return AgentChannel{Extension: m[1]}
}

// ExtensionOf returns the extension encoded in a channel name, if any
func ExtensionOf(name string) (string, bool) {
	if agent, ok := ClassifyChannel(name).(AgentChannel); ok {
		return agent.Extension, true
	}
	return "", false
}
