package adapters

import (
	"context"
	"time"

	"github.com/steadyops/ingestd/internal/database"
	"github.com/steadyops/ingestd/internal/ingest/domain"
	"github.com/steadyops/ingestd/internal/ingest/ports"
	"github.com/steadyops/ingestd/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableRepository struct {
	store   ports.RecordStore
	refs    ports.ReferenceSource
	metrics *database.Metrics
}

func NewObservableRepository(store ports.RecordStore, refs ports.ReferenceSource, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{
		store:   store,
		refs:    refs,
		metrics: metrics,
	}
}

func (r *ObservableRepository) Upsert(ctx context.Context, table string, record domain.Record) error {
	ctx, span := telemetry.StartSpan(ctx, "RecordStore.Upsert")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("table", table),
		attribute.String("operation", "upsert"),
	)

	start := time.Now()
	err := r.store.Upsert(ctx, table, record)
	duration := time.Since(start).Seconds()

	r.metrics.RecordQuery(ctx, "upsert_"+table, duration)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (r *ObservableRepository) ListValidKeys(ctx context.Context, entityType string) (map[string]struct{}, error) {
	ctx, span := telemetry.StartSpan(ctx, "ReferenceSource.ListValidKeys")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("entity_type", entityType),
		attribute.String("operation", "list_valid_keys"),
	)

	start := time.Now()
	keys, err := r.refs.ListValidKeys(ctx, entityType)
	duration := time.Since(start).Seconds()

	r.metrics.RecordQuery(ctx, "list_"+entityType+"_keys", duration)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.AddSpanAttributes(span, attribute.Int("result.count", len(keys)))
	telemetry.SetSpanSuccess(span)
	return keys, nil
}
