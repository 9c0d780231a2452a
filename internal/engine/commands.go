package engine

import (
	"context"
	"fmt"

	"github.com/Matsukatm/callcenter/internal/metrics"
	"github.com/Matsukatm/callcenter/internal/types"
)

// AssignQueued binds a queued call to an agent chosen by an operator. The
// agent's capacity is checked exactly as for automatic admission.
func (e *Engine) AssignQueued(ctx context.Context, channelID, agentID string) (types.CallAssigned, error) {
	var (
		result types.CallAssigned
		err    error
	)
	if execErr := e.exec(ctx, func() {
		result, err = e.assignQueued(channelID, agentID)
	}); execErr != nil {
		return types.CallAssigned{}, execErr
	}
	return result, err
}

func (e *Engine) assignQueued(channelID, agentID string) (types.CallAssigned, error) {
	sess, ok := e.store.ByChannel(channelID)
	if !ok {
		return types.CallAssigned{}, ErrSessionNotFound
	}
	if sess.CallType != types.CallTypeQueue {
		return types.CallAssigned{}, ErrNotQueued
	}

	assignment, ok := e.dir.Snapshot().Assignment(agentID)
	if !ok {
		return types.CallAssigned{}, ErrUnknownAgent
	}

	adm := e.tracker.TryAdmit(assignment.AgentID, assignment.Extension, sess.SessionID, assignment.MaxCalls())
	metrics.Get().RecordAdmission(adm.Admitted)
	if !adm.Admitted {
		return types.CallAssigned{}, fmt.Errorf("%w: %d of %d calls", ErrAtCapacity, adm.CurrentCount, adm.MaxCount)
	}

	updated, ok := e.store.Update(sess.SessionID, func(s *types.CallSession) {
		s.AgentID = assignment.AgentID
		s.Extension = assignment.Extension
		s.CallType = types.CallTypeAgent
		s.CallIndex = adm.CurrentCount
		s.AssignedManually = true
	})
	if !ok {
		e.tracker.Release(assignment.AgentID, sess.SessionID)
		return types.CallAssigned{}, ErrSessionNotFound
	}
	e.queue.Assign(updated.SessionID, updated.AgentID)
	metrics.Get().RecordManualAssignment()

	e.logger.Info().
		Str("session_id", updated.SessionID).
		Str("channel_id", updated.ChannelID).
		Str("agent_id", updated.AgentID).
		Str("extension", updated.Extension).
		Msg("queued call assigned")

	result := types.CallAssigned{
		SessionID:        updated.SessionID,
		ChannelID:        updated.ChannelID,
		AgentID:          updated.AgentID,
		Extension:        updated.Extension,
		CallIndex:        updated.CallIndex,
		MaxCalls:         adm.MaxCount,
		AssignedManually: true,
		Timestamp:        e.clock(),
	}
	e.publisher.Publish(types.EventCallAssigned, result)
	e.occupancyChanged(updated.AgentID)
	return result, nil
}

// Reject records that the agent declined a ringing call. The agent's slot is
// freed at once; the session ends with the terminal event.
func (e *Engine) Reject(ctx context.Context, sessionID string) error {
	var err error
	if execErr := e.exec(ctx, func() {
		err = e.reject(sessionID)
	}); execErr != nil {
		return execErr
	}
	return err
}

func (e *Engine) reject(sessionID string) error {
	sess, ok := e.store.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	if sess.CallType != types.CallTypeAgent {
		return ErrNotAssigned
	}
	if sess.Rejected {
		return nil
	}
	if sess.Status != types.SessionRinging {
		return ErrNotRinging
	}

	if _, ok := e.store.Update(sessionID, func(s *types.CallSession) {
		s.Rejected = true
		s.EndedBy = types.EndedByAgent
	}); !ok {
		return ErrSessionNotFound
	}

	e.logger.Info().Str("session_id", sessionID).Str("agent_id", sess.AgentID).Msg("call rejected by agent")

	if e.tracker.Release(sess.AgentID, sessionID) {
		e.occupancyChanged(sess.AgentID)
	}
	return nil
}
