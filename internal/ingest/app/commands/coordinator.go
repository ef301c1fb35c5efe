package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/steadyops/ingestd/internal/ingest/domain"
)

// DefaultChunkSize is how many records a partial-mode chunk carries when the
// coordinator is built with a non-positive size.
const DefaultChunkSize = 50

// ChunkOutcome reports what happened to a single chunk of records.
type ChunkOutcome struct {
	Processed int
	Failed    int
	Errors    []domain.RecordError
}

// ChunkOp persists one chunk. A returned error means the chunk could not be
// attempted at all, as opposed to individual records inside it failing.
type ChunkOp func(ctx context.Context, chunk []domain.Record) (ChunkOutcome, error)

// RecordOp persists a single record within an atomic batch.
type RecordOp func(ctx context.Context, record domain.Record) error

// Coordinator splits a validated batch into units of work and accounts for
// every record exactly once: processed plus failed always equals the batch
// size, in both execution modes.
type Coordinator struct {
	chunkSize int
	logger    *slog.Logger
}

// NewCoordinator creates a Coordinator with the given chunk size.
func NewCoordinator(chunkSize int, logger *slog.Logger) *Coordinator {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{chunkSize: chunkSize, logger: logger}
}

// ExecutePartial runs the batch in partial-accept mode. Records that fail
// validation are reported and skipped; the remaining records are persisted in
// chunks. When a chunk cannot be attempted, that chunk and every chunk after
// it count as failed and execution stops, so a dead backing store does not
// burn through the whole batch.
func (c *Coordinator) ExecutePartial(ctx context.Context, records []domain.Record, validate domain.Validator, op ChunkOp) domain.BatchResult {
	var result domain.BatchResult

	valid := make([]domain.Record, 0, len(records))
	for _, record := range records {
		if err := validate(record); err != nil {
			result.Failed++
			result.AddError(domain.RecordError{
				RecordExcerpt: record.Excerpt(),
				Reason:        err.Error(),
				Phase:         domain.PhaseValidation,
			})
			continue
		}
		valid = append(valid, record)
	}

	aborted := false
	for start := 0; start < len(valid); start += c.chunkSize {
		end := start + c.chunkSize
		if end > len(valid) {
			end = len(valid)
		}
		chunk := valid[start:end]

		if aborted || ctx.Err() != nil {
			reason := "chunk skipped after earlier chunk failure"
			if !aborted {
				reason = fmt.Sprintf("chunk skipped: %s", ctx.Err())
			}
			result.Failed += len(chunk)
			result.AddError(domain.RecordError{
				RecordExcerpt: chunk[0].Excerpt(),
				Reason:        reason,
				Phase:         domain.PhaseExecution,
			})
			continue
		}

		outcome, err := op(ctx, chunk)
		if err != nil {
			c.logger.ErrorContext(ctx, "chunk execution aborted",
				slog.Int("chunk_start", start),
				slog.Int("chunk_size", len(chunk)),
				slog.String("error", err.Error()),
			)
			result.Failed += len(chunk)
			result.AddError(domain.RecordError{
				RecordExcerpt: chunk[0].Excerpt(),
				Reason:        fmt.Sprintf("chunk failed: %s", err.Error()),
				Phase:         domain.PhaseExecution,
			})
			aborted = true
			continue
		}

		result.Processed += outcome.Processed
		result.Failed += outcome.Failed
		for _, recErr := range outcome.Errors {
			result.AddError(recErr)
		}
	}

	result.IsPartial = result.Processed > 0 && result.Failed > 0
	return result
}

// ExecuteAtomic runs the batch in all-or-nothing mode. The whole batch is
// validated up front; any validation failure rejects the batch without
// touching the store. During execution the first record failure stops the
// run, and the entire batch is reported as failed.
func (c *Coordinator) ExecuteAtomic(ctx context.Context, records []domain.Record, validate domain.Validator, op RecordOp) domain.BatchResult {
	var result domain.BatchResult

	for _, record := range records {
		if err := validate(record); err != nil {
			result.AddError(domain.RecordError{
				RecordExcerpt: record.Excerpt(),
				Reason:        err.Error(),
				Phase:         domain.PhaseValidation,
			})
		}
	}
	if len(result.Errors) > 0 {
		result.Failed = len(records)
		return result
	}

	for i, record := range records {
		if err := ctx.Err(); err != nil {
			result.Failed = len(records)
			result.AddError(domain.RecordError{
				RecordExcerpt: record.Excerpt(),
				Reason:        err.Error(),
				Phase:         domain.PhaseExecution,
			})
			return result
		}

		if err := op(ctx, record); err != nil {
			c.logger.ErrorContext(ctx, "atomic batch failed",
				slog.Int("record_index", i),
				slog.String("error", err.Error()),
			)
			result.Failed = len(records)
			result.AddError(domain.RecordError{
				RecordExcerpt: record.Excerpt(),
				Reason:        err.Error(),
				Phase:         domain.PhaseExecution,
			})
			return result
		}
	}

	result.Processed = len(records)
	return result
}
