package ports

import (
	"context"
	"time"
)

// Outcome records whether the cached response was a success or a failure.
// Failed outcomes are cached too: a retried delivery replays the original
// failure instead of re-executing the write.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// StoredResponse is the durable record kept per idempotency key.
type StoredResponse struct {
	Key         string
	Endpoint    string
	RequestHash string
	StatusCode  int
	Body        []byte
	Outcome     Outcome
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// IdempotencyStats aggregates key counts for observability.
type IdempotencyStats struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// IdempotencyStore persists write outcomes under caller-supplied keys.
// InsertIfAbsent must silently keep the first writer when two concurrent
// requests race on the same key; it never errors on that conflict.
type IdempotencyStore interface {
	GetIfFresh(ctx context.Context, key string) (*StoredResponse, error)
	InsertIfAbsent(ctx context.Context, key string, response StoredResponse) error
	DeleteExpired(ctx context.Context, olderThan time.Time) (int64, error)
	Stats(ctx context.Context) (IdempotencyStats, error)
}
