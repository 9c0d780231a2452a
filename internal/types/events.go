package types

import "time"

// EventType names an observer notification
type EventType string

const (
	EventIncomingCall       EventType = "incoming_call"
	EventCallBridged        EventType = "call_bridged"
	EventCallEnded          EventType = "call_ended"
	EventChannelStateChange EventType = "channel_state_change"
	EventAgentStatusUpdated EventType = "agent_status_updated"
	EventAssignmentsUpdated EventType = "assignments_updated"
	EventCallAssigned       EventType = "call_assigned"
	EventAssignmentFailed   EventType = "assignment_failed"
	EventSystemState        EventType = "system_state"
	EventSystemStats        EventType = "system_stats"
)

// Envelope wraps every message sent to observers
type Envelope struct {
	Type            EventType `json:"type"`
	Timestamp       string    `json:"timestamp"`
	ServerTimestamp int64     `json:"serverTimestamp"`
	Data            any       `json:"data"`
}

// NewEnvelope stamps a payload with the server clock
func NewEnvelope(eventType EventType, data any, now time.Time) Envelope {
	return Envelope{
		Type:            eventType,
		Timestamp:       now.UTC().Format(time.RFC3339Nano),
		ServerTimestamp: now.UnixMilli(),
		Data:            data,
	}
}

// IncomingCall announces an admitted or queued call
type IncomingCall struct {
	SessionID       string          `json:"sessionId"`
	ChannelID       string          `json:"channelId"`
	AgentID         string          `json:"agentId,omitempty"`
	AgentName       string          `json:"agentName,omitempty"`
	Extension       string          `json:"extension,omitempty"`
	CustomerNumber  string          `json:"customerNumber"`
	CallerName      string          `json:"callerName,omitempty"`
	CallType        CallType        `json:"callType"`
	CallIndex       int             `json:"callIndex,omitempty"`
	MaxCalls        int             `json:"maxCalls,omitempty"`
	QueuePosition   int             `json:"queuePosition,omitempty"`
	AvailableAgents []AgentCapacity `json:"availableAgents,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// CallBridged announces that the agent leg joined the bridge
type CallBridged struct {
	SessionID      string    `json:"sessionId"`
	ChannelID      string    `json:"channelId"`
	BridgeID       string    `json:"bridgeId"`
	AgentID        string    `json:"agentId"`
	Extension      string    `json:"extension"`
	CustomerNumber string    `json:"customerNumber"`
	CallIndex      int       `json:"callIndex"`
	ConnectedAt    time.Time `json:"connectedAt"`
}

// CallEnded is the unified end notification
type CallEnded struct {
	SessionID      string    `json:"sessionId"`
	ChannelID      string    `json:"channelId"`
	AgentID        string    `json:"agentId,omitempty"`
	Extension      string    `json:"extension,omitempty"`
	CustomerNumber string    `json:"customerNumber"`
	CallType       CallType  `json:"callType"`
	CallIndex      int       `json:"callIndex,omitempty"`
	BridgeID       string    `json:"bridgeId,omitempty"`
	EndedAt        time.Time `json:"endedAt"`
	EndReason      EndReason `json:"endReason"`
	EndedBy        EndedBy   `json:"endedBy,omitempty"`
	TerminalCause  string    `json:"terminalCause,omitempty"`
	CallDuration   int64     `json:"callDuration"`
	TotalDuration  int64     `json:"totalDuration"`
	WasConnected   bool      `json:"wasConnected"`
	WasAnswered    bool      `json:"wasAnswered"`
}

// ChannelStateChange is informational
type ChannelStateChange struct {
	ChannelID string    `json:"channelId"`
	SessionID string    `json:"sessionId,omitempty"`
	NewState  string    `json:"newState"`
	Extension string    `json:"extension,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentStatusUpdated is sent whenever an agent's occupancy changes
type AgentStatusUpdated struct {
	AgentID     string      `json:"agentId"`
	Extension   string      `json:"extension,omitempty"`
	Status      AgentStatus `json:"status"`
	ActiveCalls int         `json:"activeCalls"`
	MaxCalls    int         `json:"maxCalls"`
	SessionIDs  []string    `json:"sessionIds"`
	Timestamp   time.Time   `json:"timestamp"`
}

// AssignmentsUpdated is sent after every successful directory refresh
type AssignmentsUpdated struct {
	TotalAssignments int          `json:"totalAssignments"`
	Assignments      []Assignment `json:"assignments"`
	Source           string       `json:"source"`
	Timestamp        time.Time    `json:"timestamp"`
}

// CallAssigned confirms a manual assignment of a queued call
type CallAssigned struct {
	SessionID        string    `json:"sessionId"`
	ChannelID        string    `json:"channelId"`
	AgentID          string    `json:"agentId"`
	Extension        string    `json:"extension"`
	CallIndex        int       `json:"callIndex"`
	MaxCalls         int       `json:"maxCalls"`
	AssignedManually bool      `json:"assignedManually"`
	Timestamp        time.Time `json:"timestamp"`
}

// AssignmentFailed is sent back to the observer whose assignment was refused
type AssignmentFailed struct {
	ChannelID string `json:"channelId"`
	AgentID   string `json:"agentId"`
	Error     string `json:"error"`
}

// ActiveCall is the snapshot view of a live session
type ActiveCall struct {
	SessionID      string        `json:"sessionId"`
	ChannelID      string        `json:"channelId"`
	AgentID        string        `json:"agentId,omitempty"`
	Extension      string        `json:"extension,omitempty"`
	CustomerNumber string        `json:"customerNumber"`
	CallType       CallType      `json:"callType"`
	CallIndex      int           `json:"callIndex,omitempty"`
	Status         SessionStatus `json:"status"`
	StartTime      time.Time     `json:"startTime"`
}

// SystemState is the full snapshot sent to an observer on connect
type SystemState struct {
	ExtensionStates    map[string]AgentStatus `json:"extensionStates"`
	AvailableAgents    []AgentCapacity        `json:"availableAgents"`
	AgentsWithCapacity []AgentCapacity        `json:"agentsWithCapacity"`
	ActiveCalls        []ActiveCall           `json:"activeCalls"`
	Queue              QueueSnapshot          `json:"queue"`
	Timestamp          time.Time              `json:"timestamp"`
}

// SystemStats is broadcast periodically
type SystemStats struct {
	TotalSessions      int       `json:"totalSessions"`
	ActiveAgents       int       `json:"activeAgents"`
	Queued             int       `json:"queued"`
	ConnectedObservers int       `json:"connectedObservers"`
	Timestamp          time.Time `json:"timestamp"`
}

// ObserverCommand is an inbound message from a dashboard connection
type ObserverCommand struct {
	Type string         `json:"type"`
	Data AssignCallData `json:"data"`
}

// AssignCallData carries an assign_call_to_agent request
type AssignCallData struct {
	ChannelID string `json:"channelId"`
	AgentID   string `json:"agentId"`
}
