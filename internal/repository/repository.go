package repository

import "context"

// SnapshotStore persists serialized cart snapshots under a single key.
type SnapshotStore interface {
	// Read returns the snapshot stored under key. It returns an error
	// wrapping apperrors.ErrNotFound when nothing is stored.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write replaces the snapshot stored under key.
	Write(ctx context.Context, key string, data []byte) error
}

// Pinger is implemented by stores backed by a network service.
type Pinger interface {
	Ping(ctx context.Context) error
}
