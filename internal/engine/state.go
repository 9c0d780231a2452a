package engine

import (
	"github.com/Matsukatm/callcenter/internal/callqueue"
	"github.com/Matsukatm/callcenter/internal/directory"
	"github.com/Matsukatm/callcenter/internal/types"
)

// The read side below goes straight to the thread-safe store, tracker and
// directory snapshot and never waits for the loop.

// Sessions returns copies of all live sessions
func (e *Engine) Sessions() []*types.CallSession {
	return e.store.List()
}

// Session returns a copy of one live session
func (e *Engine) Session(sessionID string) (*types.CallSession, bool) {
	return e.store.Get(sessionID)
}

// ActiveCalls returns the observer view of all live sessions
func (e *Engine) ActiveCalls() []types.ActiveCall {
	sessions := e.store.List()
	out := make([]types.ActiveCall, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, types.ActiveCall{
			SessionID:      s.SessionID,
			ChannelID:      s.ChannelID,
			AgentID:        s.AgentID,
			Extension:      s.Extension,
			CustomerNumber: s.CustomerNumber,
			CallType:       s.CallType,
			CallIndex:      s.CallIndex,
			Status:         s.Status,
			StartTime:      s.Timestamps.Created,
		})
	}
	return out
}

// Agents returns every assigned agent with its live capacity
func (e *Engine) Agents() []types.AgentCapacity {
	return e.agentCapacities(e.dir.Snapshot())
}

// AvailableAgents returns agents that can take another call, best candidates first
func (e *Engine) AvailableAgents() []types.AgentCapacity {
	return e.availableAgents(e.dir.Snapshot())
}

func (e *Engine) availableAgents(snap *directory.Snapshot) []types.AgentCapacity {
	return callqueue.RankAgents(e.agentCapacities(snap))
}

func (e *Engine) agentCapacities(snap *directory.Snapshot) []types.AgentCapacity {
	assignments := snap.Assignments()
	out := make([]types.AgentCapacity, 0, len(assignments))
	for _, a := range assignments {
		active := e.tracker.ActiveCount(a.AgentID)
		out = append(out, types.AgentCapacity{
			AgentID:        a.AgentID,
			AgentName:      a.AgentName,
			Extension:      a.Extension,
			PresenceStatus: a.PresenceStatus,
			MaxCalls:       a.MaxCalls(),
			ActiveCalls:    active,
			Status:         types.DeriveAgentStatus(active),
			CanTakeCall:    active < a.MaxCalls(),
		})
	}
	return out
}

// SystemState builds the full snapshot sent to an observer on connect
func (e *Engine) SystemState() types.SystemState {
	agents := e.Agents()

	states := make(map[string]types.AgentStatus, len(agents))
	for _, a := range agents {
		states[a.Extension] = a.Status
	}

	return types.SystemState{
		ExtensionStates:    states,
		AvailableAgents:    callqueue.RankAgents(agents),
		AgentsWithCapacity: agents,
		ActiveCalls:        e.ActiveCalls(),
		Queue:              e.queue.Snapshot(),
		Timestamp:          e.clock(),
	}
}

// Stats summarizes the engine for the periodic broadcast
func (e *Engine) Stats(connectedObservers int) types.SystemStats {
	return types.SystemStats{
		TotalSessions:      e.store.Count(),
		ActiveAgents:       e.store.ActiveAgents(),
		Queued:             e.queue.Len(),
		ConnectedObservers: connectedObservers,
		Timestamp:          e.clock(),
	}
}
