package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/steadyops/ingestd/internal/ingest/domain"
	"github.com/steadyops/ingestd/internal/ingest/metrics"
	"github.com/steadyops/ingestd/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableCommandHandler struct {
	handler CommandHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCommandHandler(handler CommandHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCommandHandler {
	return &ObservableCommandHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableCommandHandler) Handle(ctx context.Context, cmd IngestBatchCommand) (*domain.BatchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestBatchCommand.Handle")
	defer span.End()

	start := time.Now()
	var success bool
	defer func() {
		duration := time.Since(start).Seconds()
		o.metrics.RecordBatchDuration(ctx, duration)
		o.metrics.RecordBatch(ctx, cmd.DataType, success)
	}()

	o.logger.InfoContext(ctx, "ingesting batch",
		"data_type", cmd.DataType,
		"mode", cmd.Mode,
		"record_count", len(cmd.Records),
	)

	result, err := o.handler.Handle(ctx, cmd)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		o.logger.ErrorContext(ctx, "failed to ingest batch",
			"error", err,
			"data_type", cmd.DataType,
		)
		return nil, err
	}

	o.metrics.RecordBatchOutcome(ctx, cmd.DataType, int64(result.Processed), int64(result.Failed))
	o.metrics.RecordReferencesRejected(ctx, cmd.DataType, int64(result.RejectedReferences))

	telemetry.AddSpanAttributes(span,
		attribute.String("batch.id", result.BatchID),
		attribute.String("batch.data_type", cmd.DataType),
		attribute.Int("batch.processed", result.Processed),
		attribute.Int("batch.failed", result.Failed),
		attribute.Bool("batch.is_partial", result.IsPartial),
	)

	if result.RejectedReferences > 0 {
		o.logger.WarnContext(ctx, "records rejected by reference validation",
			"batch_id", result.BatchID,
			"data_type", cmd.DataType,
			"rejected_references", result.RejectedReferences,
			"rejected_keys", result.RejectedReferenceKeys,
		)
	}

	o.logger.InfoContext(ctx, "batch ingested",
		"batch_id", result.BatchID,
		"data_type", cmd.DataType,
		"processed", result.Processed,
		"failed", result.Failed,
		"is_partial", result.IsPartial,
	)

	success = result.Failed == 0
	telemetry.SetSpanSuccess(span)

	return result, nil
}
