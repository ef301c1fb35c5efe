package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/steadyops/ingestd/internal/ingest/ports"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetIfFresh(ctx context.Context, key string) (*ports.StoredResponse, error) {
	query := `
		SELECT key, endpoint, request_hash, status_code, body, outcome, created_at, expires_at
		FROM idempotency_keys
		WHERE key = $1
		  AND expires_at > now()
	`

	var resp ports.StoredResponse
	err := s.pool.QueryRow(ctx, query, key).Scan(
		&resp.Key,
		&resp.Endpoint,
		&resp.RequestHash,
		&resp.StatusCode,
		&resp.Body,
		&resp.Outcome,
		&resp.CreatedAt,
		&resp.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select idempotency key: %w", err)
	}

	return &resp, nil
}

func (s *Store) InsertIfAbsent(ctx context.Context, key string, response ports.StoredResponse) error {
	// ON CONFLICT DO NOTHING resolves the race where two concurrent requests
	// with the same key both missed the cache: the first writer wins and the
	// loser's insert is silently dropped.
	query := `
		INSERT INTO idempotency_keys (key, endpoint, request_hash, status_code, body, outcome, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (key) DO NOTHING
	`

	_, err := s.pool.Exec(ctx, query,
		key,
		response.Endpoint,
		response.RequestHash,
		response.StatusCode,
		response.Body,
		string(response.Outcome),
		response.CreatedAt,
		response.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}

	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE expires_at < $1`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (s *Store) Stats(ctx context.Context) (ports.IdempotencyStats, error) {
	query := `
		SELECT
			count(*) AS total,
			count(*) FILTER (WHERE expires_at > now()) AS active,
			count(*) FILTER (WHERE outcome = 'completed') AS completed,
			count(*) FILTER (WHERE outcome = 'failed') AS failed
		FROM idempotency_keys
	`

	var stats ports.IdempotencyStats
	err := s.pool.QueryRow(ctx, query).Scan(
		&stats.Total,
		&stats.Active,
		&stats.Completed,
		&stats.Failed,
	)
	if err != nil {
		return ports.IdempotencyStats{}, fmt.Errorf("select idempotency stats: %w", err)
	}

	return stats, nil
}
