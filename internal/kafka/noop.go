package kafka

import (
	"context"
	"log/slog"
)

// NoopEventBus logs events without sending them to Kafka. Useful for local dev before wiring Kafka.
type NoopEventBus struct{}

// NewNoopEventBus returns a new no-op event publisher.
func NewNoopEventBus() *NoopEventBus {
	return &NoopEventBus{}
}

func (n *NoopEventBus) PublishBatchReceived(_ context.Context, batchID, recordType string, count int) error {
	slog.Debug("event::batch_received", "batch_id", batchID, "data_type", recordType, "record_count", count)
	return nil
}

func (n *NoopEventBus) PublishBatchProcessed(_ context.Context, batchID string, processed, failed int) error {
	slog.Debug("event::batch_processed", "batch_id", batchID, "processed", processed, "failed", failed)
	return nil
}

func (n *NoopEventBus) PublishBatchFailed(_ context.Context, batchID string, reason string) error {
	slog.Debug("event::batch_failed", "batch_id", batchID, "reason", reason)
	return nil
}
