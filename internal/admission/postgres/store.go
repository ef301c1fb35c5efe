// Package postgres provides the shared admission window for multi-instance
// deployments. Every instance counts against the same table, so the limit
// holds across the fleet; per-key writes are serialized with an advisory
// transaction lock.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Allow(ctx context.Context, key string, limit int, period time.Duration) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin admission tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return false, fmt.Errorf("acquire admission lock: %w", err)
	}

	now := time.Now().UTC()
	cutoff := now.Add(-period)

	if _, err := tx.Exec(ctx, `DELETE FROM admission_events WHERE key = $1 AND ts < $2`, key, cutoff); err != nil {
		return false, fmt.Errorf("prune admission window: %w", err)
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM admission_events WHERE key = $1`, key).Scan(&count); err != nil {
		return false, fmt.Errorf("count admission window: %w", err)
	}

	allowed := count < limit
	if allowed {
		if _, err := tx.Exec(ctx, `INSERT INTO admission_events (key, ts) VALUES ($1, $2)`, key, now); err != nil {
			return false, fmt.Errorf("record admission event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit admission tx: %w", err)
	}

	return allowed, nil
}

func (s *Store) Count(ctx context.Context, key string, period time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-period)

	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM admission_events WHERE key = $1 AND ts >= $2`,
		key, cutoff,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count admission events: %w", err)
	}

	return count, nil
}

func (s *Store) OldestInWindow(ctx context.Context, key string, period time.Duration) (time.Time, error) {
	cutoff := time.Now().UTC().Add(-period)

	var oldest time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT ts FROM admission_events WHERE key = $1 AND ts >= $2 ORDER BY ts LIMIT 1`,
		key, cutoff,
	).Scan(&oldest)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("select oldest admission event: %w", err)
	}

	return oldest, nil
}

func (s *Store) Reset(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM admission_events WHERE key = $1`, key); err != nil {
		return fmt.Errorf("reset admission window: %w", err)
	}
	return nil
}
