package engine

import (
	"time"

	"github.com/Matsukatm/callcenter/internal/directory"
	"github.com/Matsukatm/callcenter/internal/endreason"
	"github.com/Matsukatm/callcenter/internal/metrics"
	"github.com/Matsukatm/callcenter/internal/signaling"
	"github.com/Matsukatm/callcenter/internal/types"
)

func (e *Engine) handle(evt signaling.Event) {
	now := e.clock()

	switch evt.Kind {
	case signaling.KindChannelAppeared:
		e.onAppeared(evt, now)
	case signaling.KindChannelAnswered:
		e.onAnswered(evt, now)
	case signaling.KindStateChanged:
		e.onStateChanged(evt, now)
	case signaling.KindEnteredBridge:
		e.onEnteredBridge(evt, now)
	case signaling.KindHangupRequested:
		e.onHangupRequested(evt)
	case signaling.KindChannelTerminated:
		e.onTerminated(evt, now)
	}
	metrics.Get().RecordSignalingProcessed()
}

func (e *Engine) onAppeared(evt signaling.Event, now time.Time) {
	if evt.Dialed {
		e.logger.Debug().Str("channel_id", evt.ChannelID).Msg("ignoring dialed leg")
		return
	}
	if existing, ok := e.store.ByChannel(evt.ChannelID); ok {
		e.logger.Debug().
			Str("channel_id", evt.ChannelID).
			Str("session_id", existing.SessionID).
			Msg("duplicate channel appearance ignored")
		return
	}

	sess := &types.CallSession{
		SessionID:      e.newID(evt.ChannelID),
		ChannelID:      evt.ChannelID,
		ChannelName:    evt.ChannelName,
		CustomerNumber: signaling.NormalizeNumber(evt.CallerNumber),
		CallerName:     evt.CallerName,
		Status:         types.SessionRinging,
		Timestamps: types.Timestamps{
			Created: now,
			Ringing: now,
		},
	}

	// one snapshot for the whole admission decision
	snap := e.dir.Snapshot()

	role, ok := signaling.ClassifyChannel(evt.ChannelName).(signaling.AgentChannel)
	if !ok {
		e.enqueueCall(sess, snap, now, "unknown_channel")
		return
	}
	sess.Extension = role.Extension

	assignment, ok := snap.AgentForExtension(role.Extension)
	if !ok {
		e.enqueueCall(sess, snap, now, "unmapped_extension")
		return
	}

	adm := e.tracker.TryAdmit(assignment.AgentID, role.Extension, sess.SessionID, assignment.MaxCalls())
	metrics.Get().RecordAdmission(adm.Admitted)
	if !adm.Admitted {
		e.logger.Info().
			Str("agent_id", assignment.AgentID).
			Str("extension", role.Extension).
			Int("active_calls", adm.CurrentCount).
			Int("max_calls", adm.MaxCount).
			Msg("agent at capacity, routing call to queue")
		e.enqueueCall(sess, snap, now, "agent_at_capacity")
		return
	}

	sess.AgentID = assignment.AgentID
	sess.CallType = types.CallTypeAgent
	sess.CallIndex = adm.CurrentCount

	if err := e.store.Add(sess); err != nil {
		e.tracker.Release(assignment.AgentID, sess.SessionID)
		e.logger.Error().Err(err).Str("session_id", sess.SessionID).Msg("failed to register session")
		return
	}
	metrics.Get().RecordSessionCreated()

	e.logger.Info().
		Str("session_id", sess.SessionID).
		Str("channel_id", sess.ChannelID).
		Str("agent_id", sess.AgentID).
		Str("extension", sess.Extension).
		Int("call_index", sess.CallIndex).
		Msg("call admitted")

	e.publisher.Publish(types.EventIncomingCall, types.IncomingCall{
		SessionID:      sess.SessionID,
		ChannelID:      sess.ChannelID,
		AgentID:        sess.AgentID,
		AgentName:      assignment.AgentName,
		Extension:      sess.Extension,
		CustomerNumber: sess.CustomerNumber,
		CallerName:     sess.CallerName,
		CallType:       types.CallTypeAgent,
		CallIndex:      sess.CallIndex,
		MaxCalls:       adm.MaxCount,
		Timestamp:      now,
	})
	e.occupancyChanged(sess.AgentID)
}

// enqueueCall records a call that is not bound to an agent and hands it to
// the queue collaborator
func (e *Engine) enqueueCall(sess *types.CallSession, snap *directory.Snapshot, now time.Time, reason string) {
	sess.CallType = types.CallTypeQueue

	if err := e.store.Add(sess); err != nil {
		e.logger.Error().Err(err).Str("session_id", sess.SessionID).Msg("failed to register queued session")
		return
	}
	metrics.Get().RecordSessionCreated()
	metrics.Get().RecordCallQueued()

	position := e.queue.Enqueue(sess.SessionID, sess.ChannelID, sess.CustomerNumber)

	e.logger.Info().
		Str("session_id", sess.SessionID).
		Str("channel_id", sess.ChannelID).
		Str("extension", sess.Extension).
		Str("reason", reason).
		Int("position", position).
		Msg("call queued")

	e.publisher.Publish(types.EventIncomingCall, types.IncomingCall{
		SessionID:       sess.SessionID,
		ChannelID:       sess.ChannelID,
		Extension:       sess.Extension,
		CustomerNumber:  sess.CustomerNumber,
		CallerName:      sess.CallerName,
		CallType:        types.CallTypeQueue,
		QueuePosition:   position,
		AvailableAgents: e.availableAgents(snap),
		Timestamp:       now,
	})
}

func (e *Engine) onAnswered(evt signaling.Event, now time.Time) {
	sess, ok := e.store.ByChannel(evt.ChannelID)
	if !ok {
		return
	}
	e.markAnswered(sess.SessionID, now)
}

func (e *Engine) markAnswered(sessionID string, now time.Time) {
	updated, ok := e.store.Update(sessionID, func(s *types.CallSession) {
		if s.Status != types.SessionRinging {
			return
		}
		answered := now
		s.Timestamps.Answered = &answered
		s.Status = types.SessionAnswered
	})
	if ok && updated.Status == types.SessionAnswered {
		e.logger.Debug().Str("session_id", sessionID).Msg("call answered")
	}
}

func (e *Engine) onStateChanged(evt signaling.Event, now time.Time) {
	var sessionID string
	if sess, ok := e.store.ByChannel(evt.ChannelID); ok {
		sessionID = sess.SessionID
		e.store.Update(sessionID, func(s *types.CallSession) {
			s.CurrentState = evt.State
			s.StateHistory = append(s.StateHistory, types.StateChange{State: evt.State, Timestamp: now})
		})
		if evt.State == signaling.StateUp {
			e.markAnswered(sessionID, now)
		}
	}

	extension, _ := signaling.ExtensionOf(evt.ChannelName)
	e.publisher.Publish(types.EventChannelStateChange, types.ChannelStateChange{
		ChannelID: evt.ChannelID,
		SessionID: sessionID,
		NewState:  evt.State,
		Extension: extension,
		Timestamp: now,
	})
}

func (e *Engine) onEnteredBridge(evt signaling.Event, now time.Time) {
	sess, ok := e.store.ByChannel(evt.ChannelID)
	if !ok {
		return
	}

	if sess.CallType != types.CallTypeAgent {
		e.store.Update(sess.SessionID, func(s *types.CallSession) { s.BridgeID = evt.BridgeID })
		return
	}
	if sess.WasConnected() || sess.Rejected {
		e.logger.Debug().Str("session_id", sess.SessionID).Msg("bridge entry ignored")
		return
	}

	updated, ok := e.store.Update(sess.SessionID, func(s *types.CallSession) {
		connected := now
		if s.Timestamps.Answered == nil {
			// answer signal missed: backfill with the connect time
			answered := now
			s.Timestamps.Answered = &answered
		}
		s.Timestamps.Connected = &connected
		s.Status = types.SessionConnected
		s.BridgeID = evt.BridgeID
	})
	if !ok {
		return
	}

	e.tracker.Commit(updated.AgentID, updated.SessionID)

	e.logger.Info().
		Str("session_id", updated.SessionID).
		Str("agent_id", updated.AgentID).
		Str("bridge_id", updated.BridgeID).
		Msg("call connected")

	e.publisher.Publish(types.EventCallBridged, types.CallBridged{
		SessionID:      updated.SessionID,
		ChannelID:      updated.ChannelID,
		BridgeID:       updated.BridgeID,
		AgentID:        updated.AgentID,
		Extension:      updated.Extension,
		CustomerNumber: updated.CustomerNumber,
		CallIndex:      updated.CallIndex,
		ConnectedAt:    now,
	})
	e.occupancyChanged(updated.AgentID)
}

func (e *Engine) onHangupRequested(evt signaling.Event) {
	sess, ok := e.store.ByChannel(evt.ChannelID)
	if !ok {
		return
	}

	endedBy := evt.EndedBy
	if endedBy == types.EndedByUnknown && sess.CallType == types.CallTypeAgent {
		if ext, ok := signaling.ExtensionOf(evt.ChannelName); ok && ext == sess.Extension {
			endedBy = types.EndedByAgent
		} else {
			endedBy = types.EndedByCustomer
		}
	}

	e.store.Update(sess.SessionID, func(s *types.CallSession) {
		if s.EndedBy == types.EndedByUnknown {
			s.EndedBy = endedBy
		}
		if evt.Cause != "" {
			s.TerminalCause = evt.Cause
		}
	})
}

func (e *Engine) onTerminated(evt signaling.Event, now time.Time) {
	sess, ok := e.store.ByChannel(evt.ChannelID)
	if !ok {
		e.logger.Debug().Str("channel_id", evt.ChannelID).Msg("terminal event without live session")
		return
	}

	ended, ok := e.store.Update(sess.SessionID, func(s *types.CallSession) {
		endedAt := now
		s.Timestamps.Ended = &endedAt
		if evt.Cause != "" {
			s.TerminalCause = evt.Cause
		}
		if s.EndedBy == types.EndedByUnknown {
			s.EndedBy = evt.EndedBy
		}
		s.EndReason = e.classifier.Classify(s, s.TerminalCause)
		s.Status = types.SessionEnded
	})
	if !ok {
		return
	}

	released := false
	switch ended.CallType {
	case types.CallTypeAgent:
		released = e.tracker.Release(ended.AgentID, ended.SessionID)
		if ended.AssignedManually {
			e.queue.Complete(ended.SessionID)
		}
	case types.CallTypeQueue:
		e.queue.Abandon(ended.SessionID)
	}

	callDuration, totalDuration := endreason.Durations(ended)
	metrics.Get().RecordCallEnded(ended.EndReason)

	e.logger.Info().
		Str("session_id", ended.SessionID).
		Str("channel_id", ended.ChannelID).
		Str("agent_id", ended.AgentID).
		Str("end_reason", string(ended.EndReason)).
		Str("cause", ended.TerminalCause).
		Int64("call_duration", callDuration).
		Msg("call ended")

	e.publisher.Publish(types.EventCallEnded, types.CallEnded{
		SessionID:      ended.SessionID,
		ChannelID:      ended.ChannelID,
		AgentID:        ended.AgentID,
		Extension:      ended.Extension,
		CustomerNumber: ended.CustomerNumber,
		CallType:       ended.CallType,
		CallIndex:      ended.CallIndex,
		BridgeID:       ended.BridgeID,
		EndedAt:        now,
		EndReason:      ended.EndReason,
		EndedBy:        ended.EndedBy,
		TerminalCause:  ended.TerminalCause,
		CallDuration:   callDuration,
		TotalDuration:  totalDuration,
		WasConnected:   ended.WasConnected(),
		WasAnswered:    ended.WasAnswered(),
	})

	e.store.Remove(ended.SessionID)

	if released {
		e.occupancyChanged(ended.AgentID)
	}
	if ended.WasConnected() && e.reporter != nil {
		if assignment, ok := e.dir.Snapshot().Assignment(ended.AgentID); ok {
			e.reporter.ReportCallCompleted(assignment, callDuration)
		}
	}
}

// occupancyChanged announces an agent's new load to observers and the directory
func (e *Engine) occupancyChanged(agentID string) {
	// the limit follows the directory even when no admission happened since
	// the last refresh
	if a, ok := e.dir.Snapshot().Assignment(agentID); ok {
		e.tracker.SetMax(agentID, a.MaxCalls())
	}
	occ := e.tracker.Occupancy(agentID)

	e.publisher.Publish(types.EventAgentStatusUpdated, types.AgentStatusUpdated{
		AgentID:     occ.AgentID,
		Extension:   occ.Extension,
		Status:      occ.Status,
		ActiveCalls: len(occ.ActiveCalls),
		MaxCalls:    occ.MaxConcurrentCalls,
		SessionIDs:  occ.ActiveCalls,
		Timestamp:   e.clock(),
	})
	if e.reporter != nil {
		e.reporter.ReportStatus(occ)
	}
	metrics.Get().UpdateOccupancy(e.store.Count(), e.tracker.All())
}
