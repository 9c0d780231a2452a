package types

import "time"

// AgentStatus is derived from an agent's number of active calls
type AgentStatus string

const (
	AgentAvailable AgentStatus = "available"
	AgentOnCall    AgentStatus = "on_call"
	AgentMultiCall AgentStatus = "multi_call"
)

// DeriveAgentStatus maps an active call count to a status
func DeriveAgentStatus(activeCalls int) AgentStatus {
	switch {
	case activeCalls <= 0:
		return AgentAvailable
	case activeCalls == 1:
		return AgentOnCall
	default:
		return AgentMultiCall
	}
}

// DefaultMaxConcurrentCalls applies when the directory does not say otherwise
const DefaultMaxConcurrentCalls = 1

// Assignment is one active agent to extension mapping from the directory
type Assignment struct {
	ID                 string         `json:"id" yaml:"id" dynamodbav:"ID"`
	AgentID            string         `json:"agentId" yaml:"agent_id" dynamodbav:"AgentID"`
	AgentName          string         `json:"agentName,omitempty" yaml:"agent_name" dynamodbav:"AgentName"`
	Extension          string         `json:"extension" yaml:"extension" dynamodbav:"Extension"`
	ExtensionID        string         `json:"extensionId,omitempty" yaml:"extension_id" dynamodbav:"ExtensionID"`
	MaxConcurrentCalls int            `json:"maxConcurrentCalls" yaml:"max_concurrent_calls" dynamodbav:"MaxConcurrentCalls"`
	PresenceStatus     string         `json:"presenceStatus,omitempty" yaml:"presence_status" dynamodbav:"PresenceStatus"`
	AssignedAt         time.Time      `json:"assignedAt" yaml:"assigned_at" dynamodbav:"AssignedAt"`
	AssignmentReason   string         `json:"assignmentReason,omitempty" yaml:"assignment_reason" dynamodbav:"AssignmentReason"`
	Metadata           map[string]any `json:"metadata,omitempty" yaml:"metadata" dynamodbav:"Metadata"`
}

// MaxCalls returns the capacity limit with the default applied
func (a Assignment) MaxCalls() int {
	if a.MaxConcurrentCalls <= 0 {
		return DefaultMaxConcurrentCalls
	}
	return a.MaxConcurrentCalls
}

// AgentOccupancy is an agent's current load
type AgentOccupancy struct {
	AgentID            string      `json:"agentId"`
	Extension          string      `json:"extension"`
	MaxConcurrentCalls int         `json:"maxConcurrentCalls"`
	ActiveCalls        []string    `json:"activeCalls"`
	Status             AgentStatus `json:"status"`
}

// AgentCapacity joins a directory assignment with live occupancy
type AgentCapacity struct {
	AgentID        string      `json:"agentId"`
	AgentName      string      `json:"agentName,omitempty"`
	Extension      string      `json:"extension"`
	PresenceStatus string      `json:"presenceStatus,omitempty"`
	MaxCalls       int         `json:"maxCalls"`
	ActiveCalls    int         `json:"activeCalls"`
	Status         AgentStatus `json:"status"`
	CanTakeCall    bool        `json:"canTakeCall"`
}
