package ports

import "context"

// EventBus defines the contract for publishing batch lifecycle events.
type EventBus interface {
	PublishBatchReceived(ctx context.Context, batchID, recordType string, count int) error
	PublishBatchProcessed(ctx context.Context, batchID string, processed, failed int) error
	PublishBatchFailed(ctx context.Context, batchID string, reason string) error
}
