// Package capacity tracks each agent's concurrent calls against the limit
// published by the agent directory.
package capacity

import (
	"sort"
	"sync"

	"github.com/Matsukatm/callcenter/internal/types"
)

// Admission is the result of an admission attempt
type Admission struct {
	Admitted     bool `json:"admitted"`
	CurrentCount int  `json:"currentCount"`
	MaxCount     int  `json:"maxCount"`
}

// agentSlot is the per-agent exclusive section. Tentative calls are admitted
// but not yet bridged; committed calls are connected.
type agentSlot struct {
	mu        sync.Mutex
	extension string
	max       int
	tentative map[string]struct{}
	committed map[string]struct{}
}

func (s *agentSlot) count() int {
	return len(s.tentative) + len(s.committed)
}

func (s *agentSlot) has(sessionID string) bool {
	_, t := s.tentative[sessionID]
	_, c := s.committed[sessionID]
	return t || c
}

func (s *agentSlot) sessionIDs() []string {
	ids := make([]string, 0, s.count())
	for id := range s.tentative {
		ids = append(ids, id)
	}
	for id := range s.committed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *agentSlot) occupancy(agentID string) types.AgentOccupancy {
	return types.AgentOccupancy{
		AgentID:            agentID,
		Extension:          s.extension,
		MaxConcurrentCalls: s.max,
		ActiveCalls:        s.sessionIDs(),
		Status:             types.DeriveAgentStatus(s.count()),
	}
}

// Tracker holds the occupancy table. Admission, commit and release for the
// same agent are serialized by that agent's slot lock; different agents never
// contend beyond the short map lookup.
type Tracker struct {
	slots map[string]*agentSlot // agentID -> slot, never deleted
	mu    sync.Mutex
}

// NewTracker creates an empty occupancy table
func NewTracker() *Tracker {
	return &Tracker{
		slots: make(map[string]*agentSlot),
	}
}

func (t *Tracker) slot(agentID string) *agentSlot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[agentID]
	if !ok {
		s = &agentSlot{
			max:       types.DefaultMaxConcurrentCalls,
			tentative: make(map[string]struct{}),
			committed: make(map[string]struct{}),
		}
		t.slots[agentID] = s
	}
	return s
}

func (t *Tracker) lookup(agentID string) (*agentSlot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[agentID]
	return s, ok
}

// TryAdmit atomically checks capacity and, when there is room, reserves a
// tentative slot for sessionID. maxCalls comes from the directory snapshot the
// caller resolved the agent from; values below one fall back to the default.
// Admitting a session that already holds a slot succeeds without counting it
// twice.
func (t *Tracker) TryAdmit(agentID, extension, sessionID string, maxCalls int) Admission {
	if maxCalls <= 0 {
		maxCalls = types.DefaultMaxConcurrentCalls
	}

	s := t.slot(agentID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.max = maxCalls
	if extension != "" {
		s.extension = extension
	}

	if s.has(sessionID) {
		return Admission{Admitted: true, CurrentCount: s.count(), MaxCount: maxCalls}
	}
	if s.count() >= maxCalls {
		return Admission{Admitted: false, CurrentCount: s.count(), MaxCount: maxCalls}
	}

	s.tentative[sessionID] = struct{}{}
	return Admission{Admitted: true, CurrentCount: s.count(), MaxCount: maxCalls}
}

// Commit promotes a tentative reservation to a committed call. It reports
// whether the session holds a slot afterwards; a session that was never
// admitted is not added.
func (t *Tracker) Commit(agentID, sessionID string) bool {
	s, ok := t.lookup(agentID)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, tentative := s.tentative[sessionID]; tentative {
		delete(s.tentative, sessionID)
		s.committed[sessionID] = struct{}{}
		return true
	}
	_, committed := s.committed[sessionID]
	return committed
}

// Release frees whatever slot the session holds. Releasing an unknown agent or
// session is a no-op. It reports whether a slot was freed.
func (t *Tracker) Release(agentID, sessionID string) bool {
	s, ok := t.lookup(agentID)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.has(sessionID) {
		return false
	}
	delete(s.tentative, sessionID)
	delete(s.committed, sessionID)
	return true
}

// SetMax records a new limit for an agent already in the table. Sessions
// above the new limit keep their slots; only later admissions see it.
func (t *Tracker) SetMax(agentID string, maxCalls int) {
	if maxCalls <= 0 {
		maxCalls = types.DefaultMaxConcurrentCalls
	}
	s, ok := t.lookup(agentID)
	if !ok {
		return
	}
	s.mu.Lock()
	s.max = maxCalls
	s.mu.Unlock()
}

// Occupancy returns the agent's current load
func (t *Tracker) Occupancy(agentID string) types.AgentOccupancy {
	s, ok := t.lookup(agentID)
	if !ok {
		return types.AgentOccupancy{
			AgentID:            agentID,
			MaxConcurrentCalls: types.DefaultMaxConcurrentCalls,
			ActiveCalls:        []string{},
			Status:             types.AgentAvailable,
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occupancy(agentID)
}

// ActiveCount returns the number of sessions the agent currently owns
func (t *Tracker) ActiveCount(agentID string) int {
	s, ok := t.lookup(agentID)
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count()
}

// All returns the occupancy of every agent that has ever been admitted
func (t *Tracker) All() []types.AgentOccupancy {
	t.mu.Lock()
	ids := make([]string, 0, len(t.slots))
	for id := range t.slots {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	sort.Strings(ids)

	result := make([]types.AgentOccupancy, 0, len(ids))
	for _, id := range ids {
		result = append(result, t.Occupancy(id))
	}
	return result
}
