package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Matsukatm/callcenter/internal/dispatch"
	"github.com/Matsukatm/callcenter/internal/metrics"
	"github.com/Matsukatm/callcenter/internal/storage"
	"github.com/Matsukatm/callcenter/internal/types"
	"github.com/rs/zerolog"
)

// snapshotKey is the partition key under which snapshots are persisted
const snapshotKey = "agents"

// snapshotRetention bounds how long persisted snapshots are kept
const snapshotRetention = 7 * 24 * time.Hour

// SyncOptions configures the syncer
type SyncOptions struct {
	PollInterval time.Duration
	BootAttempts int
	BootBackoff  time.Duration // multiplied by the attempt number
	Timeout      time.Duration // per fetch
	SeedFile     string        // last boot fallback, optional
}

// Syncer keeps the Directory in step with its Source
type Syncer struct {
	dir       *Directory
	source    Source
	store     storage.Store
	publisher dispatch.Publisher
	opts      SyncOptions
	clock     func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	refreshCh chan struct{}
	logger    zerolog.Logger
}

// NewSyncer creates a syncer. store may be a storage.NoopStore.
func NewSyncer(dir *Directory, source Source, store storage.Store, publisher dispatch.Publisher, opts SyncOptions, logger zerolog.Logger) *Syncer {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.BootAttempts <= 0 {
		opts.BootAttempts = 3
	}
	if opts.BootBackoff <= 0 {
		opts.BootBackoff = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Syncer{
		dir:       dir,
		source:    source,
		store:     store,
		publisher: publisher,
		opts:      opts,
		clock:     time.Now,
		sleep:     sleepCtx,
		refreshCh: make(chan struct{}, 1),
		logger:    logger.With().Str("component", "directory_sync").Logger(),
	}
}

// Directory returns the directory this syncer maintains
func (s *Syncer) Directory() *Directory {
	return s.dir
}

// BootSync performs the initial fetch with bounded retries. When every attempt
// fails it falls back to the persisted snapshot, then the seed file, then an
// empty mapping. It returns the source the directory was loaded from.
func (s *Syncer) BootSync(ctx context.Context) string {
	var lastErr error
	for attempt := 1; attempt <= s.opts.BootAttempts; attempt++ {
		if lastErr = s.Refresh(ctx); lastErr == nil {
			return s.dir.Snapshot().Source
		}
		s.logger.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Int("max_attempts", s.opts.BootAttempts).
			Msg("initial directory sync failed")

		if attempt == s.opts.BootAttempts {
			break
		}
		if err := s.sleep(ctx, time.Duration(attempt)*s.opts.BootBackoff); err != nil {
			break
		}
	}

	if snap, err := s.loadPersisted(ctx); err == nil {
		s.install(snap)
		s.logger.Warn().Int("assignments", snap.Len()).Time("fetched_at", snap.FetchedAt).
			Msg("directory loaded from persisted snapshot")
		return snap.Source
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Error().Err(err).Msg("failed to load persisted directory snapshot")
	}

	if s.opts.SeedFile != "" {
		assignments, err := LoadSeed(s.opts.SeedFile)
		if err == nil {
			snap := NewSnapshot(assignments, "seed", s.clock())
			s.install(snap)
			s.logger.Warn().Int("assignments", snap.Len()).Str("file", s.opts.SeedFile).
				Msg("directory loaded from seed file")
			return snap.Source
		}
		s.logger.Error().Err(err).Str("file", s.opts.SeedFile).Msg("failed to load directory seed")
	}

	s.logger.Error().Err(lastErr).Msg("starting with an empty directory")
	return s.dir.Snapshot().Source
}

// Refresh fetches the full assignment list and swaps it in. On failure the
// current mapping stays in place.
func (s *Syncer) Refresh(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	assignments, err := s.source.ActiveAssignments(fetchCtx)
	if err != nil {
		metrics.Get().RecordDirectoryRefresh(false, s.dir.Snapshot().Len())
		return fmt.Errorf("directory refresh: %w", err)
	}

	snap := NewSnapshot(assignments, sourceName(s.source), s.clock())
	s.install(snap)
	s.persist(snap)

	s.logger.Debug().Int("assignments", snap.Len()).Msg("directory refreshed")
	return nil
}

// RequestRefresh asks the running loop for an immediate refresh
func (s *Syncer) RequestRefresh() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

// Start polls the source until the context is cancelled
func (s *Syncer) Start(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.opts.PollInterval).Msg("directory sync started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("directory sync stopped")
			return
		case <-ticker.C:
		case <-s.refreshCh:
		}
		if err := s.Refresh(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("keeping previous directory mapping")
		}
	}
}

func (s *Syncer) install(snap *Snapshot) {
	s.dir.Replace(snap)
	metrics.Get().RecordDirectoryRefresh(true, snap.Len())

	if s.publisher != nil {
		s.publisher.Publish(types.EventAssignmentsUpdated, types.AssignmentsUpdated{
			TotalAssignments: snap.Len(),
			Assignments:      snap.Assignments(),
			Source:           snap.Source,
			Timestamp:        snap.FetchedAt,
		})
	}
}

func (s *Syncer) persist(snap *Snapshot) {
	if _, disabled := s.store.(*storage.NoopStore); disabled {
		return
	}

	record := types.DirectorySnapshotRecord{
		Directory:   snapshotKey,
		FetchedAt:   snap.FetchedAt.UTC().Format(time.RFC3339Nano),
		Source:      snap.Source,
		Assignments: snap.Assignments(),
		TTL:         snap.FetchedAt.Add(snapshotRetention).Unix(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
		defer cancel()
		if err := s.store.SaveDirectorySnapshot(ctx, record); err != nil {
			s.logger.Error().Err(err).Msg("failed to persist directory snapshot")
		}
	}()
}

func (s *Syncer) loadPersisted(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	record, err := s.store.LatestDirectorySnapshot(ctx, snapshotKey)
	if err != nil {
		return nil, err
	}
	fetchedAt, err := time.Parse(time.RFC3339Nano, record.FetchedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot timestamp %q: %w", record.FetchedAt, err)
	}
	return NewSnapshot(record.Assignments, "snapshot", fetchedAt), nil
}

func sourceName(src Source) string {
	if named, ok := src.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "remote"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
