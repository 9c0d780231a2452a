// Package callqueue holds calls that could not be bound to an agent until an
// operator assigns them or the caller hangs up.
package callqueue

import (
	"sync"
	"time"

	"github.com/Matsukatm/callcenter/internal/types"
)

// Queue is a FIFO of waiting calls with service level accounting
type Queue struct {
	mu        sync.Mutex
	waiting   []*types.QueuedCall
	assigned  map[string]*types.QueuedCall // sessionID -> call
	abandoned int
	sl        *SLTracker
	clock     func() time.Time
}

// Option configures a Queue
type Option func(*Queue)

// WithClock sets the time source used for wait times
func WithClock(clock func() time.Time) Option {
	return func(q *Queue) { q.clock = clock }
}

// WithServiceLevel overrides the default 80% in 20s target
func WithServiceLevel(target, thresholdSecs int) Option {
	return func(q *Queue) { q.sl = NewSLTracker(target, thresholdSecs) }
}

// New creates an empty queue
func New(opts ...Option) *Queue {
	q := &Queue{
		assigned: make(map[string]*types.QueuedCall),
		sl:       NewSLTracker(DefaultSLTarget, DefaultSLThreshold),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a call and returns its 1-based position. Enqueuing a
// session that is already waiting returns its current position.
func (q *Queue) Enqueue(sessionID, channelID, customerNumber string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if pos := q.positionLocked(sessionID); pos > 0 {
		return pos
	}
	q.waiting = append(q.waiting, &types.QueuedCall{
		SessionID:      sessionID,
		ChannelID:      channelID,
		CustomerNumber: customerNumber,
		Status:         types.QueuedWaiting,
		EnqueuedAt:     q.clock(),
	})
	return len(q.waiting)
}

// Position returns the 1-based position of a waiting call, 0 if not waiting
func (q *Queue) Position(sessionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.positionLocked(sessionID)
}

func (q *Queue) positionLocked(sessionID string) int {
	for i, c := range q.waiting {
		if c.SessionID == sessionID {
			return i + 1
		}
	}
	return 0
}

// Assign removes a waiting call from the queue and records its answer wait
func (q *Queue) Assign(sessionID, agentID string) (types.QueuedCall, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	call := q.removeLocked(sessionID)
	if call == nil {
		return types.QueuedCall{}, false
	}
	call.Status = types.QueuedAssigned
	call.AgentID = agentID
	call.WaitSecs = q.clock().Sub(call.EnqueuedAt).Seconds()
	q.assigned[sessionID] = call
	q.sl.RecordAnswer(call.WaitSecs)
	return *call, true
}

// Abandon removes a waiting call whose caller hung up
func (q *Queue) Abandon(sessionID string) (types.QueuedCall, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	call := q.removeLocked(sessionID)
	if call == nil {
		return types.QueuedCall{}, false
	}
	call.Status = types.QueuedAbandoned
	call.WaitSecs = q.clock().Sub(call.EnqueuedAt).Seconds()
	q.abandoned++
	return *call, true
}

// Complete forgets an assigned call once its session has ended
func (q *Queue) Complete(sessionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.assigned[sessionID]; !ok {
		return false
	}
	delete(q.assigned, sessionID)
	return true
}

func (q *Queue) removeLocked(sessionID string) *types.QueuedCall {
	for i, c := range q.waiting {
		if c.SessionID == sessionID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return c
		}
	}
	return nil
}

// Len returns the number of waiting calls
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// Snapshot returns the queue state with current wait times
func (q *Queue) Snapshot() types.QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock()
	waiting := make([]types.QueuedCall, 0, len(q.waiting))
	for _, c := range q.waiting {
		cp := *c
		cp.WaitSecs = now.Sub(c.EnqueuedAt).Seconds()
		waiting = append(waiting, cp)
	}

	var longest float64
	if len(waiting) > 0 {
		longest = waiting[0].WaitSecs
	}

	return types.QueueSnapshot{
		WaitingCount:    len(waiting),
		AssignedCount:   len(q.assigned),
		AbandonedCount:  q.abandoned,
		LongestWaitSecs: longest,
		ServiceLevel:    q.sl.Snapshot(),
		Waiting:         waiting,
	}
}
