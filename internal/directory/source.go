package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Matsukatm/callcenter/internal/types"
)

// Actor recorded on every write made by this service
const systemActor = "ccr_system"

var (
	ErrStatus           = errors.New("directory returned an error status")
	ErrUnknownAgent     = errors.New("agent has no active assignment")
	ErrUnknownExtension = errors.New("unknown extension")
)

// Source lists the active assignments
type Source interface {
	ActiveAssignments(ctx context.Context) ([]types.Assignment, error)
}

// Writer pushes changes to the directory
type Writer interface {
	UpdateAgentStatus(ctx context.Context, agentID string, update StatusUpdate) error
	AssignExtension(ctx context.Context, agentID, extension, reason string) error
	ReleaseAssignment(ctx context.Context, assignmentID, reason string) error
	UpdateAssignmentMetadata(ctx context.Context, assignmentID string, metadata map[string]any) error
}

// Backend is a directory implementation that can be read and written
type Backend interface {
	Source
	Writer
	Name() string
}

// StatusUpdate is the derived agent status pushed after occupancy changes
type StatusUpdate struct {
	Status      types.AgentStatus `json:"status"`
	ActiveCalls []string          `json:"active_calls"`
	MaxCalls    int               `json:"max_capacity"`
	UpdatedAt   time.Time         `json:"timestamp"`
}

// StatusError carries a non-2xx response from the directory
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrStatus
}
