package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/cartstate/pkg/database"
	apperrors "github.com/utafrali/cartstate/pkg/errors"
)

const schema = `
	CREATE TABLE IF NOT EXISTS cart_snapshots (
		storage_key TEXT PRIMARY KEY,
		data        JSONB NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// SnapshotStore implements repository.SnapshotStore on a PostgreSQL table.
type SnapshotStore struct {
	db database.DBTX
}

// NewSnapshotStore creates a PostgreSQL-backed snapshot store.
func NewSnapshotStore(db database.DBTX) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// EnsureSchema creates the cart_snapshots table when it does not exist.
func (s *SnapshotStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create cart_snapshots table: %w", err)
	}
	return nil
}

// Read retrieves the snapshot stored under key.
func (s *SnapshotStore) Read(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(ctx,
		`SELECT data FROM cart_snapshots WHERE storage_key = $1`, key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("cart snapshot", key)
		}
		return nil, fmt.Errorf("select cart snapshot: %w", err)
	}
	return data, nil
}

// Write upserts the snapshot stored under key.
func (s *SnapshotStore) Write(ctx context.Context, key string, data []byte) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO cart_snapshots (storage_key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (storage_key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		key, data,
	)
	if err != nil {
		return fmt.Errorf("upsert cart snapshot: %w", err)
	}
	return nil
}

// Ping runs a trivial query to check the connection.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}
