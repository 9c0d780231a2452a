package types

import "time"

// QueuedCallStatus tracks a call inside the queue collaborator
type QueuedCallStatus string

const (
	QueuedWaiting   QueuedCallStatus = "waiting"
	QueuedAssigned  QueuedCallStatus = "assigned"
	QueuedAbandoned QueuedCallStatus = "abandoned"
)

// QueuedCall is a call waiting for an agent
type QueuedCall struct {
	SessionID      string           `json:"sessionId"`
	ChannelID      string           `json:"channelId"`
	CustomerNumber string           `json:"customerNumber"`
	Status         QueuedCallStatus `json:"status"`
	EnqueuedAt     time.Time        `json:"enqueuedAt"`
	WaitSecs       float64          `json:"waitSecs"`
	AgentID        string           `json:"agentId,omitempty"`
}

// ServiceLevel is the share of queued calls answered within the threshold
type ServiceLevel struct {
	Target        int     `json:"target"`
	ThresholdSecs int     `json:"thresholdSecs"`
	AnsweredInSL  int     `json:"answeredInSL"`
	TotalAnswered int     `json:"totalAnswered"`
	CurrentSL     float64 `json:"currentSL"`
}

// QueueSnapshot summarizes the queue collaborator
type QueueSnapshot struct {
	WaitingCount    int          `json:"waitingCount"`
	AssignedCount   int          `json:"assignedCount"`
	AbandonedCount  int          `json:"abandonedCount"`
	LongestWaitSecs float64      `json:"longestWaitSecs"`
	ServiceLevel    ServiceLevel `json:"serviceLevel"`
	Waiting         []QueuedCall `json:"waiting"`
}
