// Package endreason decides why a call ended from its recorded milestones.
package endreason

import (
	"time"

	"github.com/Matsukatm/callcenter/internal/signaling"
	"github.com/Matsukatm/callcenter/internal/types"
)

// Default heuristic thresholds
const (
	DefaultRingRejectThreshold      = 5 * time.Second
	DefaultConnectedHangupThreshold = 3 * time.Second
)

// customerCauses are terminal causes attributed to the caller
var customerCauses = map[string]struct{}{
	signaling.CauseNormalClearing: {},
	signaling.CauseUserBusy:       {},
	signaling.CauseNoAnswer:       {},
	signaling.CauseCallRejected:   {},
}

// Thresholds tune the timing rules
type Thresholds struct {
	// RingReject: an unanswered call ending sooner than this was rejected by the agent side
	RingReject time.Duration
	// ConnectedHangup: a connected call ending sooner than this was dropped by the caller
	ConnectedHangup time.Duration
}

// DefaultThresholds returns the stock thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		RingReject:      DefaultRingRejectThreshold,
		ConnectedHangup: DefaultConnectedHangupThreshold,
	}
}

// Classifier maps a terminated session to an end reason. It has no state
// beyond its thresholds.
type Classifier struct {
	thresholds Thresholds
}

// New creates a classifier; zero thresholds fall back to the defaults
func New(th Thresholds) Classifier {
	if th.RingReject <= 0 {
		th.RingReject = DefaultRingRejectThreshold
	}
	if th.ConnectedHangup <= 0 {
		th.ConnectedHangup = DefaultConnectedHangupThreshold
	}
	return Classifier{thresholds: th}
}

// Thresholds returns the effective thresholds
func (c Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// Classify applies the rules in order; the first match wins:
//
//  1. rejected before termination              -> agent_rejected
//  2. never answered: ring < RingReject        -> agent_rejected, else customer_left
//  3. answered, never connected                -> customer_left
//  4. connected: duration < ConnectedHangup    -> customer_left;
//     hung up by agent -> agent_ended, hung up by customer -> customer_left
//  5. terminal cause is customer attributable  -> customer_left
//  6. otherwise                                -> normal
//
// The end time is the session's ended timestamp; a session without one is
// measured as ending at its last recorded milestone.
func (c Classifier) Classify(s *types.CallSession, terminalCause string) types.EndReason {
	if s.Rejected {
		return types.EndReasonAgentRejected
	}

	ended := endTime(s)

	if !s.WasAnswered() {
		if ended.Sub(s.Timestamps.Ringing) < c.thresholds.RingReject {
			return types.EndReasonAgentRejected
		}
		return types.EndReasonCustomerLeft
	}

	if !s.WasConnected() {
		return types.EndReasonCustomerLeft
	}

	if ended.Sub(*s.Timestamps.Connected) < c.thresholds.ConnectedHangup {
		return types.EndReasonCustomerLeft
	}
	switch s.EndedBy {
	case types.EndedByAgent:
		return types.EndReasonAgentEnded
	case types.EndedByCustomer:
		return types.EndReasonCustomerLeft
	}

	if _, ok := customerCauses[terminalCause]; ok {
		return types.EndReasonCustomerLeft
	}
	return types.EndReasonNormal
}

func endTime(s *types.CallSession) time.Time {
	switch {
	case s.Timestamps.Ended != nil:
		return *s.Timestamps.Ended
	case s.Timestamps.Connected != nil:
		return *s.Timestamps.Connected
	case s.Timestamps.Answered != nil:
		return *s.Timestamps.Answered
	default:
		return s.Timestamps.Ringing
	}
}

// Durations returns the connected and total durations of a terminated session
// in whole seconds
func Durations(s *types.CallSession) (callDuration, totalDuration int64) {
	ended := endTime(s)
	if s.Timestamps.Connected != nil {
		callDuration = int64(ended.Sub(*s.Timestamps.Connected) / time.Second)
	}
	totalDuration = int64(ended.Sub(s.Timestamps.Created) / time.Second)
	if totalDuration < callDuration {
		totalDuration = callDuration
	}
	return callDuration, totalDuration
}
