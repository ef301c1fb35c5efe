package adapters

import (
	"context"
	"time"

	"github.com/steadyops/ingestd/internal/ingest/ports"
	"github.com/steadyops/ingestd/internal/kafka"
	"github.com/steadyops/ingestd/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableEventBus struct {
	bus     ports.EventBus
	metrics *kafka.Metrics
}

func NewObservableEventBus(bus ports.EventBus, metrics *kafka.Metrics) *ObservableEventBus {
	return &ObservableEventBus{
		bus:     bus,
		metrics: metrics,
	}
}

func (e *ObservableEventBus) PublishBatchReceived(ctx context.Context, batchID, recordType string, count int) error {
	ctx, span := telemetry.StartSpan(ctx, "EventBus.PublishBatchReceived")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("batch.id", batchID),
		attribute.String("batch.data_type", recordType),
		attribute.Int("batch.record_count", count),
		attribute.String("event.type", "batch.received"),
		attribute.String("topic", "batch.received"),
	)

	start := time.Now()
	err := e.bus.PublishBatchReceived(ctx, batchID, recordType, count)
	duration := time.Since(start).Seconds()

	e.metrics.RecordPublish(ctx, "batch.received", duration, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (e *ObservableEventBus) PublishBatchProcessed(ctx context.Context, batchID string, processed, failed int) error {
	ctx, span := telemetry.StartSpan(ctx, "EventBus.PublishBatchProcessed")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("batch.id", batchID),
		attribute.Int("batch.processed", processed),
		attribute.Int("batch.failed", failed),
		attribute.String("event.type", "batch.processed"),
		attribute.String("topic", "batch.processed"),
	)

	start := time.Now()
	err := e.bus.PublishBatchProcessed(ctx, batchID, processed, failed)
	duration := time.Since(start).Seconds()

	e.metrics.RecordPublish(ctx, "batch.processed", duration, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (e *ObservableEventBus) PublishBatchFailed(ctx context.Context, batchID string, reason string) error {
	ctx, span := telemetry.StartSpan(ctx, "EventBus.PublishBatchFailed")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("batch.id", batchID),
		attribute.String("event.type", "batch.failed"),
		attribute.String("topic", "batch.failed"),
		attribute.String("failure.reason", reason),
	)

	start := time.Now()
	err := e.bus.PublishBatchFailed(ctx, batchID, reason)
	duration := time.Since(start).Seconds()

	e.metrics.RecordPublish(ctx, "batch.failed", duration, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
