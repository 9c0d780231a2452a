package types

import "time"

// SessionStatus is the lifecycle state of a call session
type SessionStatus string

const (
	SessionRinging   SessionStatus = "ringing"
	SessionAnswered  SessionStatus = "answered"
	SessionConnected SessionStatus = "connected"
	SessionEnded     SessionStatus = "ended"
)

// CallType says how a session is being handled
type CallType string

const (
	// CallTypeAgent is bound to an agent through admission or manual assignment
	CallTypeAgent CallType = "agent"
	// CallTypeQueue is waiting for the queue collaborator or an operator
	CallTypeQueue CallType = "queue"
)

// EndedBy records which party hung up, when the signaling layer says so
type EndedBy string

const (
	EndedByUnknown  EndedBy = ""
	EndedByAgent    EndedBy = "agent"
	EndedByCustomer EndedBy = "customer"
)

// EndReason is the classified outcome of a terminated session
type EndReason string

const (
	EndReasonAgentRejected EndReason = "agent_rejected"
	EndReasonCustomerLeft  EndReason = "customer_left"
	EndReasonAgentEnded    EndReason = "agent_ended"
	EndReasonNormal        EndReason = "normal"
)

// Timestamps holds the lifecycle milestones of a session. Created and Ringing
// are always set; the others stay nil until reached.
type Timestamps struct {
	Created   time.Time  `json:"created"`
	Ringing   time.Time  `json:"ringing"`
	Answered  *time.Time `json:"answered,omitempty"`
	Connected *time.Time `json:"connected,omitempty"`
	Ended     *time.Time `json:"ended,omitempty"`
}

// StateChange is one entry of a channel's state history
type StateChange struct {
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// CallSession is one physical call attempt
type CallSession struct {
	SessionID        string        `json:"sessionId"`
	ChannelID        string        `json:"channelId"`
	ChannelName      string        `json:"channelName,omitempty"`
	AgentID          string        `json:"agentId,omitempty"`
	Extension        string        `json:"extension,omitempty"`
	CustomerNumber   string        `json:"customerNumber"`
	CallerName       string        `json:"callerName,omitempty"`
	CallIndex        int           `json:"callIndex,omitempty"`
	CallType         CallType      `json:"callType"`
	Status           SessionStatus `json:"status"`
	Rejected         bool          `json:"rejected,omitempty"`
	AssignedManually bool          `json:"assignedManually,omitempty"`
	BridgeID         string        `json:"bridgeId,omitempty"`
	CurrentState     string        `json:"currentState,omitempty"`
	StateHistory     []StateChange `json:"stateHistory,omitempty"`
	Timestamps       Timestamps    `json:"timestamps"`
	EndedBy          EndedBy       `json:"endedBy,omitempty"`
	EndReason        EndReason     `json:"endReason,omitempty"`
	TerminalCause    string        `json:"terminalCause,omitempty"`
}

// WasAnswered reports whether the session reached the answered milestone
func (s *CallSession) WasAnswered() bool {
	return s.Timestamps.Answered != nil
}

// WasConnected reports whether the session reached the connected milestone
func (s *CallSession) WasConnected() bool {
	return s.Timestamps.Connected != nil
}

// IsEnded reports whether the session is terminal
func (s *CallSession) IsEnded() bool {
	return s.Status == SessionEnded
}

// Clone returns a deep copy safe to hand to readers outside the state machine
func (s *CallSession) Clone() *CallSession {
	c := *s
	c.Timestamps.Answered = cloneTime(s.Timestamps.Answered)
	c.Timestamps.Connected = cloneTime(s.Timestamps.Connected)
	c.Timestamps.Ended = cloneTime(s.Timestamps.Ended)
	if s.StateHistory != nil {
		c.StateHistory = make([]StateChange, len(s.StateHistory))
		copy(c.StateHistory, s.StateHistory)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
