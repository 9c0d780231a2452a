// Package engine runs the call session state machine. Every signaling event
// and operator command is applied on a single loop goroutine, so session and
// occupancy mutations never interleave.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/Matsukatm/callcenter/internal/callqueue"
	"github.com/Matsukatm/callcenter/internal/capacity"
	"github.com/Matsukatm/callcenter/internal/directory"
	"github.com/Matsukatm/callcenter/internal/dispatch"
	"github.com/Matsukatm/callcenter/internal/endreason"
	"github.com/Matsukatm/callcenter/internal/metrics"
	"github.com/Matsukatm/callcenter/internal/session"
	"github.com/Matsukatm/callcenter/internal/signaling"
	"github.com/Matsukatm/callcenter/internal/types"
	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotQueued       = errors.New("call is not waiting in the queue")
	ErrNotRinging      = errors.New("call is no longer ringing")
	ErrNotAssigned     = errors.New("call is not assigned to an agent")
	ErrAtCapacity      = errors.New("agent is at capacity")
	ErrUnknownAgent    = errors.New("agent has no active assignment")
	ErrStopped         = errors.New("engine stopped")
)

// StatusReporter receives occupancy changes and completed calls for the
// directory. Implementations must not block.
type StatusReporter interface {
	ReportStatus(occ types.AgentOccupancy)
	ReportCallCompleted(assignment types.Assignment, callDuration int64)
}

// Engine owns the session lifecycle
type Engine struct {
	store      *session.Store
	tracker    *capacity.Tracker
	dir        *directory.Directory
	queue      *callqueue.Queue
	classifier endreason.Classifier
	publisher  dispatch.Publisher
	reporter   StatusReporter
	clock      func() time.Time
	newID      func(channelID string) string
	tasks      chan func()
	done       chan struct{}
	logger     zerolog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithClock sets the time source for lifecycle timestamps
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithClassifier overrides the end-reason thresholds
func WithClassifier(c endreason.Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithReporter pushes occupancy changes to the directory
func WithReporter(r StatusReporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithQueue sets the queue collaborator
func WithQueue(q *callqueue.Queue) Option {
	return func(e *Engine) { e.queue = q }
}

// WithSessionIDs overrides session id generation
func WithSessionIDs(fn func(channelID string) string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithBufferSize sets how many events may wait for the loop
func WithBufferSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.tasks = make(chan func(), n)
		}
	}
}

// New creates an engine. Run must be started before events are processed.
func New(store *session.Store, tracker *capacity.Tracker, dir *directory.Directory, publisher dispatch.Publisher, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		tracker:    tracker,
		dir:        dir,
		queue:      callqueue.New(),
		classifier: endreason.New(endreason.DefaultThresholds()),
		publisher:  publisher,
		clock:      time.Now,
		newID:      newSessionID,
		tasks:      make(chan func(), 1024),
		done:       make(chan struct{}),
		logger:     logger.With().Str("component", "engine").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func newSessionID(channelID string) string {
	return channelID + "_" + shortuuid.New()
}

// Run processes events and commands until the context is cancelled
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	e.logger.Info().Msg("engine started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Int("active_sessions", e.store.Count()).Msg("engine stopped")
			return
		case task := <-e.tasks:
			task()
		}
	}
}

// Submit validates an event and queues it for the loop in arrival order
func (e *Engine) Submit(ctx context.Context, evt signaling.Event) error {
	metrics.Get().RecordSignalingEvent()
	if err := evt.Validate(); err != nil {
		metrics.Get().RecordSignalingInvalid()
		return err
	}
	return e.enqueue(ctx, func() { e.handle(evt) })
}

// Process applies an event and waits until the loop has handled it
func (e *Engine) Process(ctx context.Context, evt signaling.Event) error {
	metrics.Get().RecordSignalingEvent()
	if err := evt.Validate(); err != nil {
		metrics.Get().RecordSignalingInvalid()
		return err
	}
	return e.exec(ctx, func() { e.handle(evt) })
}

func (e *Engine) enqueue(ctx context.Context, task func()) error {
	select {
	case e.tasks <- task:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// exec runs fn on the loop and waits for it to finish
func (e *Engine) exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := e.enqueue(ctx, func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-e.done:
		// the loop may have exited before picking the task up
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Queue returns the queue collaborator
func (e *Engine) Queue() *callqueue.Queue {
	return e.queue
}

// Classifier returns the end-reason classifier in use
func (e *Engine) Classifier() endreason.Classifier {
	return e.classifier
}
