package directory

import (
	"context"
	"sync"
	"time"

	"github.com/Matsukatm/callcenter/internal/metrics"
	"github.com/Matsukatm/callcenter/internal/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ReporterOptions bounds the write load placed on the directory
type ReporterOptions struct {
	Concurrency int           // in-flight writes; extra writes are dropped
	Rate        float64       // writes per second
	Timeout     time.Duration // per write
}

// Reporter pushes agent status and call performance back to the directory.
// Every report returns immediately; failures are logged and never retried.
type Reporter struct {
	writer  Writer
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	timeout time.Duration
	clock   func() time.Time
	logger  zerolog.Logger

	mu      sync.Mutex
	handled map[string]int // calls handled per assignment id
	wg      sync.WaitGroup
}

// NewReporter creates a reporter writing through w
func NewReporter(w Writer, opts ReporterOptions, logger zerolog.Logger) *Reporter {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Rate <= 0 {
		opts.Rate = 20
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Reporter{
		writer:  w,
		sem:     semaphore.NewWeighted(int64(opts.Concurrency)),
		limiter: rate.NewLimiter(rate.Limit(opts.Rate), opts.Concurrency),
		timeout: opts.Timeout,
		clock:   time.Now,
		logger:  logger.With().Str("component", "directory_reporter").Logger(),
		handled: make(map[string]int),
	}
}

// ReportStatus pushes the derived status for an agent's current occupancy
func (r *Reporter) ReportStatus(occ types.AgentOccupancy) {
	update := StatusUpdate{
		Status:      occ.Status,
		ActiveCalls: append([]string(nil), occ.ActiveCalls...),
		MaxCalls:    occ.MaxConcurrentCalls,
		UpdatedAt:   r.clock(),
	}
	r.submit("status", func(ctx context.Context) error {
		return r.writer.UpdateAgentStatus(ctx, occ.AgentID, update)
	})
}

// ReportCallCompleted records a connected call against the assignment's
// performance metadata
func (r *Reporter) ReportCallCompleted(assignment types.Assignment, callDuration int64) {
	if assignment.ID == "" {
		return
	}

	r.mu.Lock()
	count, ok := r.handled[assignment.ID]
	if !ok {
		count = callsHandled(assignment.Metadata)
	}
	count++
	r.handled[assignment.ID] = count
	r.mu.Unlock()

	metadata := map[string]any{
		"performance_data": map[string]any{
			"calls_handled":      count,
			"last_call_duration": callDuration,
			"updated_at":         r.clock().UTC().Format(time.RFC3339),
		},
	}
	r.submit("performance", func(ctx context.Context) error {
		return r.writer.UpdateAssignmentMetadata(ctx, assignment.ID, metadata)
	})
}

// Wait blocks until in-flight writes finish
func (r *Reporter) Wait() {
	r.wg.Wait()
}

func (r *Reporter) submit(kind string, write func(ctx context.Context) error) {
	if !r.sem.TryAcquire(1) {
		metrics.Get().RecordDirectoryWrite(metrics.WriteDropped)
		r.logger.Warn().Str("kind", kind).Msg("directory writes saturated, dropping update")
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.limiter.Wait(ctx); err != nil {
			metrics.Get().RecordDirectoryWrite(metrics.WriteDropped)
			r.logger.Warn().Err(err).Str("kind", kind).Msg("directory write throttled out")
			return
		}
		if err := write(ctx); err != nil {
			metrics.Get().RecordDirectoryWrite(metrics.WriteFailed)
			r.logger.Error().Err(err).Str("kind", kind).Msg("directory write failed")
			return
		}
		metrics.Get().RecordDirectoryWrite(metrics.WriteOK)
	}()
}

func callsHandled(metadata map[string]any) int {
	perf, ok := metadata["performance_data"].(map[string]any)
	if !ok {
		return 0
	}
	switch v := perf["calls_handled"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
