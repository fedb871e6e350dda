package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend keeps each collection as one row of shared_state. Data is bytea
// so a corrupt blob can be stored and later detected by the Store.
type PostgresBackend struct {
	db *pgxpool.Pool
}

func NewPostgresBackend(db *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	_, err := b.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS shared_state (
			key        TEXT PRIMARY KEY,
			data       BYTEA NOT NULL,
			version    BIGINT NOT NULL DEFAULT 1,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create shared_state: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Get(ctx context.Context, key string) ([]byte, int64, error) {
	var (
		data    []byte
		version int64
	)
	err := b.db.QueryRow(ctx, `SELECT data, version FROM shared_state WHERE key = $1`, key).Scan(&data, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("get %s: %w", key, err)
	}
	return data, version, nil
}

func (b *PostgresBackend) Put(ctx context.Context, key string, data []byte) (int64, error) {
	var version int64
	err := b.db.QueryRow(ctx, `
		INSERT INTO shared_state (key, data, version)
		VALUES ($1, $2, 1)
		ON CONFLICT (key) DO UPDATE
		SET data = EXCLUDED.data, version = shared_state.version + 1, updated_at = now()
		RETURNING version
	`, key, data).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("put %s: %w", key, err)
	}
	return version, nil
}

func (b *PostgresBackend) PutIfVersion(ctx context.Context, key string, data []byte, version int64) (int64, error) {
	var (
		next int64
		err  error
	)
	if version == 0 {
		err = b.db.QueryRow(ctx, `
			INSERT INTO shared_state (key, data, version)
			VALUES ($1, $2, 1)
			ON CONFLICT (key) DO NOTHING
			RETURNING version
		`, key, data).Scan(&next)
	} else {
		err = b.db.QueryRow(ctx, `
			UPDATE shared_state
			SET data = $2, version = version + 1, updated_at = now()
			WHERE key = $1 AND version = $3
			RETURNING version
		`, key, data, version).Scan(&next)
	}
	if err != nil {
		// zero rows means someone else wrote first
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrVersionConflict
		}
		return 0, fmt.Errorf("put %s at version %d: %w", key, version, err)
	}
	return next, nil
}

func (b *PostgresBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.Exec(ctx, `DELETE FROM shared_state WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
