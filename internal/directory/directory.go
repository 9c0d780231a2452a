// Package directory mirrors the remote agent directory: which agent holds
// which extension, with what capacity and presence.
package directory

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/Matsukatm/callcenter/internal/types"
)

// Snapshot is an immutable view of one directory fetch. Readers that need
// several lookups to agree take one Snapshot and use it throughout.
type Snapshot struct {
	byAgent     map[string]types.Assignment
	byExtension map[string]string
	assignments []types.Assignment
	FetchedAt   time.Time
	Source      string
}

// NewSnapshot indexes a full assignment listing. Entries without an agent or
// extension are skipped; when an extension appears twice the most recent
// assignment wins.
func NewSnapshot(assignments []types.Assignment, source string, fetchedAt time.Time) *Snapshot {
	ordered := make([]types.Assignment, 0, len(assignments))
	for _, a := range assignments {
		if a.AgentID == "" || a.Extension == "" {
			continue
		}
		ordered = append(ordered, a)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].AssignedAt.Before(ordered[j].AssignedAt)
	})

	s := &Snapshot{
		byAgent:     make(map[string]types.Assignment, len(ordered)),
		byExtension: make(map[string]string, len(ordered)),
		FetchedAt:   fetchedAt,
		Source:      source,
	}
	for _, a := range ordered {
		if prev, ok := s.byAgent[a.AgentID]; ok && s.byExtension[prev.Extension] == a.AgentID {
			delete(s.byExtension, prev.Extension)
		}
		if prevAgent, ok := s.byExtension[a.Extension]; ok {
			delete(s.byAgent, prevAgent)
		}
		s.byAgent[a.AgentID] = a
		s.byExtension[a.Extension] = a.AgentID
	}

	s.assignments = make([]types.Assignment, 0, len(s.byAgent))
	for _, a := range s.byAgent {
		s.assignments = append(s.assignments, a)
	}
	sort.Slice(s.assignments, func(i, j int) bool {
		return s.assignments[i].Extension < s.assignments[j].Extension
	})
	return s
}

// AgentForExtension resolves an extension to its current assignment
func (s *Snapshot) AgentForExtension(extension string) (types.Assignment, bool) {
	agentID, ok := s.byExtension[extension]
	if !ok {
		return types.Assignment{}, false
	}
	return s.byAgent[agentID], true
}

// Assignment returns the agent's assignment
func (s *Snapshot) Assignment(agentID string) (types.Assignment, bool) {
	a, ok := s.byAgent[agentID]
	return a, ok
}

// Assignments returns all assignments ordered by extension
func (s *Snapshot) Assignments() []types.Assignment {
	out := make([]types.Assignment, len(s.assignments))
	copy(out, s.assignments)
	return out
}

// Len returns the number of assignments
func (s *Snapshot) Len() int {
	return len(s.assignments)
}

// Directory holds the current snapshot. Replacing it is a single pointer swap,
// so a reader sees either the old or the new mapping in full.
type Directory struct {
	current atomic.Pointer[Snapshot]
}

// New creates a directory holding an empty snapshot
func New() *Directory {
	d := &Directory{}
	d.current.Store(NewSnapshot(nil, "empty", time.Time{}))
	return d
}

// Snapshot returns the current snapshot
func (d *Directory) Snapshot() *Snapshot {
	return d.current.Load()
}

// Replace installs a new snapshot and returns the previous one
func (d *Directory) Replace(s *Snapshot) *Snapshot {
	return d.current.Swap(s)
}
