package memory

import (
	"context"
	"sync"

	apperrors "github.com/utafrali/cartstate/pkg/errors"
)

// SnapshotStore keeps snapshots in process memory. Contents are lost on
// restart; it backs local development and tests.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewSnapshotStore creates an empty in-memory store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{data: make(map[string][]byte)}
}

// Read returns a copy of the snapshot stored under key.
func (s *SnapshotStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, apperrors.NotFound("cart snapshot", key)
	}
	return append([]byte(nil), data...), nil
}

// Write stores a copy of data under key.
func (s *SnapshotStore) Write(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}
