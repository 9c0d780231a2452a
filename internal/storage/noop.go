package storage

import (
	"context"

	"github.com/Matsukatm/callcenter/internal/types"
)

// Store persists directory snapshots so a restart can fall back to the last
// good mapping when the directory is unreachable
type Store interface {
	SaveDirectorySnapshot(ctx context.Context, record types.DirectorySnapshotRecord) error
	LatestDirectorySnapshot(ctx context.Context, directory string) (*types.DirectorySnapshotRecord, error)
}

// NoopStore is a no-op implementation when DynamoDB is disabled
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (s *NoopStore) SaveDirectorySnapshot(_ context.Context, _ types.DirectorySnapshotRecord) error {
	return nil
}

func (s *NoopStore) LatestDirectorySnapshot(_ context.Context, _ string) (*types.DirectorySnapshotRecord, error) {
	return nil, ErrNotFound
}
