package directory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Matsukatm/callcenter/internal/types"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Assignments []types.Assignment `yaml:"assignments"`
}

// LoadSeed reads assignments from a YAML file
func LoadSeed(path string) ([]types.Assignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a YAML assignment listing
func ParseSeed(data []byte) ([]types.Assignment, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed: %w", err)
	}
	for i, a := range f.Assignments {
		if a.AgentID == "" {
			return nil, fmt.Errorf("assignments[%d].agent_id is required", i)
		}
		if a.Extension == "" {
			return nil, fmt.Errorf("assignments[%d].extension is required", i)
		}
	}
	return f.Assignments, nil
}

// MemorySource is an in-process directory, loaded from a seed file or built
// in tests
type MemorySource struct {
	mu          sync.Mutex
	assignments map[string]types.Assignment // by agent
	statuses    map[string]StatusUpdate
	nextID      int
	err         error
}

// NewMemorySource creates a directory holding the given assignments
func NewMemorySource(assignments []types.Assignment) *MemorySource {
	m := &MemorySource{
		assignments: make(map[string]types.Assignment, len(assignments)),
		statuses:    make(map[string]StatusUpdate),
	}
	for _, a := range assignments {
		m.nextID++
		if a.ID == "" {
			a.ID = strconv.Itoa(m.nextID)
		}
		m.assignments[a.AgentID] = a
	}
	return m
}

func (m *MemorySource) Name() string { return "seed" }

// SetError makes every subsequent call fail with err until cleared with nil
func (m *MemorySource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// ActiveAssignments returns the assignments ordered by extension
func (m *MemorySource) ActiveAssignments(_ context.Context) ([]types.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}

	out := make([]types.Assignment, 0, len(m.assignments))
	for _, a := range m.assignments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Extension < out[j].Extension })
	return out, nil
}

// Status returns the last status pushed for an agent
func (m *MemorySource) Status(agentID string) (StatusUpdate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[agentID]
	return s, ok
}

func (m *MemorySource) UpdateAgentStatus(_ context.Context, agentID string, update StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.statuses[agentID] = update
	return nil
}

func (m *MemorySource) AssignExtension(_ context.Context, agentID, extension, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}

	maxCalls := types.DefaultMaxConcurrentCalls
	for id, a := range m.assignments {
		if a.Extension == extension {
			maxCalls = a.MaxCalls()
			delete(m.assignments, id)
		}
	}
	prev := m.assignments[agentID]

	m.nextID++
	m.assignments[agentID] = types.Assignment{
		ID:                 strconv.Itoa(m.nextID),
		AgentID:            agentID,
		AgentName:          prev.AgentName,
		Extension:          extension,
		MaxConcurrentCalls: maxCalls,
		PresenceStatus:     prev.PresenceStatus,
		AssignedAt:         time.Now().UTC(),
		AssignmentReason:   reason,
	}
	return nil
}

func (m *MemorySource) ReleaseAssignment(_ context.Context, assignmentID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for agentID, a := range m.assignments {
		if a.ID == assignmentID {
			delete(m.assignments, agentID)
			return nil
		}
	}
	return ErrUnknownAgent
}

func (m *MemorySource) UpdateAssignmentMetadata(_ context.Context, assignmentID string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for agentID, a := range m.assignments {
		if a.ID != assignmentID {
			continue
		}
		merged := make(map[string]any, len(a.Metadata)+len(metadata))
		for k, v := range a.Metadata {
			merged[k] = v
		}
		for k, v := range metadata {
			merged[k] = v
		}
		a.Metadata = merged
		m.assignments[agentID] = a
		return nil
	}
	return ErrUnknownAgent
}
