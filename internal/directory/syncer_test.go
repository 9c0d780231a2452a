package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Matsukatm/callcenter/internal/dispatch"
	"github.com/Matsukatm/callcenter/internal/storage"
	"github.com/Matsukatm/callcenter/internal/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	records []types.DirectorySnapshotRecord
	saved   chan struct{}
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: make(chan struct{}, 16)}
}

func (m *memoryStore) SaveDirectorySnapshot(_ context.Context, r types.DirectorySnapshotRecord) error {
	m.mu.Lock()
	m.records = append(m.records, r)
	m.mu.Unlock()
	m.saved <- struct{}{}
	return nil
}

func (m *memoryStore) LatestDirectorySnapshot(_ context.Context, directory string) (*types.DirectorySnapshotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].Directory == directory {
			r := m.records[i]
			return &r, nil
		}
	}
	return nil, storage.ErrNotFound
}

func newTestSyncer(src Source, store storage.Store, pub dispatch.Publisher, opts SyncOptions) *Syncer {
	s := NewSyncer(New(), src, store, pub, opts, zerolog.Nop())
	s.clock = func() time.Time { return t0 }
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

var errDown = errors.New("connection refused")

func TestRefreshInstallsAndPublishes(t *testing.T) {
	src := NewMemorySource([]types.Assignment{{AgentID: "a1", Extension: "1001"}})
	rec := dispatch.NewRecorder()
	s := newTestSyncer(src, storage.NewNoopStore(), rec, SyncOptions{})

	require.NoError(t, s.Refresh(context.Background()))

	a, ok := s.Directory().Snapshot().AgentForExtension("1001")
	require.True(t, ok)
	assert.Equal(t, "a1", a.AgentID)
	assert.Equal(t, "seed", s.Directory().Snapshot().Source)

	events := rec.OfType(types.EventAssignmentsUpdated)
	require.Len(t, events, 1)
	assert.Equal(t, 1, events[0].(types.AssignmentsUpdated).TotalAssignments)
}

func TestRefreshFailureKeepsStaleMapping(t *testing.T) {
	src := NewMemorySource([]types.Assignment{{AgentID: "a1", Extension: "1001"}})
	rec := dispatch.NewRecorder()
	s := newTestSyncer(src, storage.NewNoopStore(), rec, SyncOptions{})
	require.NoError(t, s.Refresh(context.Background()))
	before := s.Directory().Snapshot()

	src.SetError(errDown)
	err := s.Refresh(context.Background())
	assert.ErrorIs(t, err, errDown)

	assert.Same(t, before, s.Directory().Snapshot())
	assert.Len(t, rec.OfType(types.EventAssignmentsUpdated), 1)
}

func TestRefreshPersistsSnapshot(t *testing.T) {
	src := NewMemorySource([]types.Assignment{{AgentID: "a1", Extension: "1001"}})
	store := newMemoryStore()
	s := newTestSyncer(src, store, nil, SyncOptions{})

	require.NoError(t, s.Refresh(context.Background()))

	select {
	case <-store.saved:
	case <-time.After(time.Second):
		t.Fatal("snapshot was not persisted")
	}
	r, err := store.LatestDirectorySnapshot(context.Background(), "agents")
	require.NoError(t, err)
	assert.Equal(t, "seed", r.Source)
	assert.Len(t, r.Assignments, 1)
	assert.Equal(t, t0.Add(7*24*time.Hour).Unix(), r.TTL)
}

func TestBootSyncRetriesThenSucceeds(t *testing.T) {
	src := &flakySource{failures: 2, inner: NewMemorySource([]types.Assignment{{AgentID: "a1", Extension: "1001"}})}
	s := newTestSyncer(src, storage.NewNoopStore(), nil, SyncOptions{BootAttempts: 3})

	var waits []time.Duration
	s.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	source := s.BootSync(context.Background())
	assert.Equal(t, "remote", source)
	assert.Equal(t, 3, src.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, waits)
	assert.Equal(t, 1, s.Directory().Snapshot().Len())
}

func TestBootSyncFallsBackToPersistedSnapshot(t *testing.T) {
	src := NewMemorySource(nil)
	src.SetError(errDown)
	store := newMemoryStore()
	store.records = append(store.records, types.DirectorySnapshotRecord{
		Directory:   "agents",
		FetchedAt:   t0.Add(-time.Hour).Format(time.RFC3339Nano),
		Assignments: []types.Assignment{{AgentID: "a9", Extension: "1009"}},
	})
	s := newTestSyncer(src, store, nil, SyncOptions{BootAttempts: 2})

	assert.Equal(t, "snapshot", s.BootSync(context.Background()))
	a, ok := s.Directory().Snapshot().AgentForExtension("1009")
	require.True(t, ok)
	assert.Equal(t, "a9", a.AgentID)
}

func TestBootSyncFallsBackToSeedThenEmpty(t *testing.T) {
	src := NewMemorySource(nil)
	src.SetError(errDown)

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))

	s := newTestSyncer(src, storage.NewNoopStore(), nil, SyncOptions{SeedFile: path})
	assert.Equal(t, "seed", s.BootSync(context.Background()))
	assert.Equal(t, 2, s.Directory().Snapshot().Len())

	empty := newTestSyncer(src, storage.NewNoopStore(), nil, SyncOptions{SeedFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Equal(t, "empty", empty.BootSync(context.Background()))
	assert.Equal(t, 0, empty.Directory().Snapshot().Len())
}

func TestStartRefreshesOnRequest(t *testing.T) {
	src := NewMemorySource([]types.Assignment{{AgentID: "a1", Extension: "1001"}})
	s := newTestSyncer(src, storage.NewNoopStore(), nil, SyncOptions{PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	s.RequestRefresh()
	require.Eventually(t, func() bool {
		return s.Directory().Snapshot().Len() == 1
	}, time.Second, 5*time.Millisecond)
}

type flakySource struct {
	mu       sync.Mutex
	failures int
	calls    int
	inner    Source
}

func (f *flakySource) ActiveAssignments(ctx context.Context) ([]types.Assignment, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return nil, errDown
	}
	return f.inner.ActiveAssignments(ctx)
}
