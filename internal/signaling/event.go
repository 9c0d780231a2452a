// Package signaling models the notifications consumed from the telephony
// signaling layer, independent of the transport that delivered them.
package signaling

import (
	"errors"
	"fmt"
	"time"

	"github.com/Matsukatm/callcenter/internal/types"
)

// Kind identifies a signaling notification
type Kind string

const (
	KindChannelAppeared   Kind = "channel_appeared"
	KindChannelAnswered   Kind = "channel_answered"
	KindStateChanged      Kind = "channel_state_changed"
	KindEnteredBridge     Kind = "channel_entered_bridge"
	KindHangupRequested   Kind = "channel_hangup_requested"
	KindChannelTerminated Kind = "channel_terminated"
)

// StateUp is the channel state reported once a channel is answered
const StateUp = "Up"

var ErrInvalidEvent = errors.New("invalid signaling event")

// Event is one notification from the signaling layer
type Event struct {
	Kind         Kind          `json:"kind"`
	ChannelID    string        `json:"channelId"`
	ChannelName  string        `json:"channelName,omitempty"`
	CallerNumber string        `json:"callerNumber,omitempty"`
	CallerName   string        `json:"callerName,omitempty"`
	Dialed       bool          `json:"dialed,omitempty"`
	State        string        `json:"state,omitempty"`
	BridgeID     string        `json:"bridgeId,omitempty"`
	Cause        string        `json:"cause,omitempty"`
	EndedBy      types.EndedBy `json:"endedBy,omitempty"`
	Timestamp    time.Time     `json:"timestamp,omitempty"`
}

// Validate checks the fields every handler relies on
func (e Event) Validate() error {
	switch e.Kind {
	case KindChannelAppeared, KindChannelAnswered, KindStateChanged,
		KindEnteredBridge, KindHangupRequested, KindChannelTerminated:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	if e.ChannelID == "" {
		return fmt.Errorf("%w: missing channelId", ErrInvalidEvent)
	}
	if e.Kind == KindStateChanged && e.State == "" {
		return fmt.Errorf("%w: missing state", ErrInvalidEvent)
	}
	if e.Kind == KindEnteredBridge && e.BridgeID == "" {
		return fmt.Errorf("%w: missing bridgeId", ErrInvalidEvent)
	}
	return nil
}
