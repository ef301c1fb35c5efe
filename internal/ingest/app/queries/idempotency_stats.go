package queries

import (
	"context"

	"github.com/steadyops/ingestd/internal/ingest/ports"
)

// IdempotencyStatsQueryHandler reports aggregate counts from the idempotency
// store, used by operators to watch duplicate-delivery behavior.
type IdempotencyStatsQueryHandler struct {
	store ports.IdempotencyStore
}

// NewIdempotencyStatsQueryHandler constructs an IdempotencyStatsQueryHandler.
func NewIdempotencyStatsQueryHandler(store ports.IdempotencyStore) *IdempotencyStatsQueryHandler {
	return &IdempotencyStatsQueryHandler{store: store}
}

// Handle executes the query against the backing store.
func (h *IdempotencyStatsQueryHandler) Handle(ctx context.Context) (ports.IdempotencyStats, error) {
	return h.store.Stats(ctx)
}
