package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"verixiv/internal/cache"
)

// CacheStore keeps cached paper results in the score_cache table.
type CacheStore struct {
	db *DB
}

func NewCacheStore(db *DB) *CacheStore {
	return &CacheStore{db: db}
}

func (s *CacheStore) Contains(ctx context.Context, key string) (bool, error) {
	var ok bool
	if err := s.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM score_cache WHERE key=$1)`, key).Scan(&ok); err != nil {
		return false, fmt.Errorf("check score cache: %w", err)
	}
	return ok, nil
}

func (s *CacheStore) Get(ctx context.Context, key string) ([]byte, error) {
	var raw []byte
	err := s.db.Pool.QueryRow(ctx, `SELECT value FROM score_cache WHERE key=$1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read score cache: %w", err)
	}
	return raw, nil
}

func (s *CacheStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.Pool.Exec(ctx, `
INSERT INTO score_cache (key, value) VALUES ($1, $2::jsonb)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, created_at = NOW()`, key, string(value))
	if err != nil {
		return fmt.Errorf("write score cache: %w", err)
	}
	return nil
}
