package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/steadyops/ingestd/internal/ingest/app/commands"
	"github.com/steadyops/ingestd/internal/ingest/app/queries"
	"github.com/steadyops/ingestd/internal/ingest/domain"
	"github.com/steadyops/ingestd/internal/ingest/metrics"
	"github.com/steadyops/ingestd/internal/ingest/ports"
	"github.com/steadyops/ingestd/internal/resilience"
)

// Service bundles use cases for handling ingest batches via the API.
type Service struct {
	ingestHandler commands.CommandHandler
	statsHandler  *queries.IdempotencyStatsQueryHandler
}

// NewService wires required dependencies.
func NewService(
	store ports.RecordStore,
	refs commands.ReferenceLookup,
	events ports.EventBus,
	idem ports.IdempotencyStore,
	coord *commands.Coordinator,
	breaker *resilience.Breaker,
	retryer *resilience.Retryer,
	storeTimeout time.Duration,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *Service {
	coreHandler := commands.NewIngestBatchCommandHandler(store, refs, events, coord, breaker, retryer, storeTimeout)
	observableHandler := commands.NewObservableCommandHandler(coreHandler, logger, metrics)

	return &Service{
		ingestHandler: observableHandler,
		statsHandler:  queries.NewIdempotencyStatsQueryHandler(idem),
	}
}

// IngestBatchInput captures the payload for one batch submission.
type IngestBatchInput struct {
	DataType string          `json:"data_type"`
	Mode     string          `json:"mode"`
	Records  []domain.Record `json:"records"`
}

// IngestBatch orchestrates validation, persistence, and event emission for a
// batch of records.
func (s *Service) IngestBatch(ctx context.Context, input IngestBatchInput) (*domain.BatchResult, error) {
	cmd := commands.IngestBatchCommand{
		DataType: input.DataType,
		Mode:     input.Mode,
		Records:  input.Records,
	}
	return s.ingestHandler.Handle(ctx, cmd)
}

// IdempotencyStats reports aggregate idempotency-key counts.
func (s *Service) IdempotencyStats(ctx context.Context) (ports.IdempotencyStats, error) {
	return s.statsHandler.Handle(ctx)
}
