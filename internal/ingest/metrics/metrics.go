package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	batchesTotal            metric.Int64Counter
	recordsProcessedTotal   metric.Int64Counter
	recordsFailedTotal      metric.Int64Counter
	batchDuration           metric.Float64Histogram
	rateLimitRejectedTotal  metric.Int64Counter
	breakerTransitionsTotal metric.Int64Counter
	idempotencyReplaysTotal metric.Int64Counter
	referencesRejectedTotal metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.batchesTotal, err = meter.Int64Counter(
		"ingest_batches_total",
		metric.WithDescription("Total number of ingest batches handled"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest_batches_total counter: %w", err)
	}

	m.recordsProcessedTotal, err = meter.Int64Counter(
		"ingest_records_processed_total",
		metric.WithDescription("Total number of records persisted"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest_records_processed_total counter: %w", err)
	}

	m.recordsFailedTotal, err = meter.Int64Counter(
		"ingest_records_failed_total",
		metric.WithDescription("Total number of records rejected or failed"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest_records_failed_total counter: %w", err)
	}

	m.batchDuration, err = meter.Float64Histogram(
		"ingest_batch_duration_seconds",
		metric.WithDescription("Duration of batch ingestion operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest_batch_duration histogram: %w", err)
	}

	m.rateLimitRejectedTotal, err = meter.Int64Counter(
		"rate_limit_rejected_total",
		metric.WithDescription("Total number of requests rejected by the rate limiter"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create rate_limit_rejected_total counter: %w", err)
	}

	m.breakerTransitionsTotal, err = meter.Int64Counter(
		"circuit_breaker_transitions_total",
		metric.WithDescription("Total number of circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create circuit_breaker_transitions_total counter: %w", err)
	}

	m.idempotencyReplaysTotal, err = meter.Int64Counter(
		"idempotency_replays_total",
		metric.WithDescription("Total number of responses replayed from the idempotency store"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create idempotency_replays_total counter: %w", err)
	}

	m.referencesRejectedTotal, err = meter.Int64Counter(
		"ingest_references_rejected_total",
		metric.WithDescription("Total number of records rejected by reference validation"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingest_references_rejected_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordBatch(ctx context.Context, dataType string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.batchesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("data_type", dataType),
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordBatchOutcome(ctx context.Context, dataType string, processed, failed int64) {
	attrs := metric.WithAttributes(attribute.String("data_type", dataType))
	if processed > 0 {
		m.recordsProcessedTotal.Add(ctx, processed, attrs)
	}
	if failed > 0 {
		m.recordsFailedTotal.Add(ctx, failed, attrs)
	}
}

func (m *Metrics) RecordBatchDuration(ctx context.Context, durationSeconds float64) {
	m.batchDuration.Record(ctx, durationSeconds)
}

func (m *Metrics) RecordRateLimitRejected(ctx context.Context, profile string) {
	m.rateLimitRejectedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile", profile),
	))
}

func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, from, to string) {
	m.breakerTransitionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *Metrics) RecordIdempotencyReplay(ctx context.Context) {
	m.idempotencyReplaysTotal.Add(ctx, 1)
}

func (m *Metrics) RecordReferencesRejected(ctx context.Context, dataType string, count int64) {
	if count <= 0 {
		return
	}
	m.referencesRejectedTotal.Add(ctx, count, metric.WithAttributes(
		attribute.String("data_type", dataType),
	))
}
