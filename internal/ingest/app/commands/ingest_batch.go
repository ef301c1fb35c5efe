package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/steadyops/ingestd/internal/ingest/domain"
	"github.com/steadyops/ingestd/internal/ingest/ports"
	"github.com/steadyops/ingestd/internal/resilience"
)

// Execution modes accepted on a batch. An empty mode means partial.
const (
	ModePartial = "partial"
	ModeAtomic  = "atomic"
)

var (
	ErrUnknownDataType          = errors.New("unknown data_type")
	ErrUnknownMode              = errors.New("unknown mode")
	ErrReferenceDataUnavailable = errors.New("reference data unavailable")
)

// ReferenceLookup supplies the valid key set for a reference entity.
type ReferenceLookup interface {
	ValidKeys(ctx context.Context, entityType string, forceRefresh bool) (map[string]struct{}, error)
}

type IngestBatchCommand struct {
	DataType string
	Mode     string
	Records  []domain.Record
}

func (c IngestBatchCommand) Validate() error {
	if _, ok := domain.TypeFor(c.DataType); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDataType, c.DataType)
	}
	switch c.Mode {
	case "", ModePartial, ModeAtomic:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, c.Mode)
	}
}

type CommandHandler interface {
	Handle(ctx context.Context, cmd IngestBatchCommand) (*domain.BatchResult, error)
}

type IngestBatchCommandHandler struct {
	store        ports.RecordStore
	refs         ReferenceLookup
	events       ports.EventBus
	coord        *Coordinator
	breaker      *resilience.Breaker
	retryer      *resilience.Retryer
	storeTimeout time.Duration
}

// NewIngestBatchCommandHandler wires the persist path. storeTimeout bounds
// each individual store call; retry scheduling is budgeted separately by the
// retryer.
func NewIngestBatchCommandHandler(
	store ports.RecordStore,
	refs ReferenceLookup,
	events ports.EventBus,
	coord *Coordinator,
	breaker *resilience.Breaker,
	retryer *resilience.Retryer,
	storeTimeout time.Duration,
) *IngestBatchCommandHandler {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &IngestBatchCommandHandler{
		store:        store,
		refs:         refs,
		events:       events,
		coord:        coord,
		breaker:      breaker,
		retryer:      retryer,
		storeTimeout: storeTimeout,
	}
}

func (h *IngestBatchCommandHandler) Handle(ctx context.Context, cmd IngestBatchCommand) (*domain.BatchResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	recordType, _ := domain.TypeFor(cmd.DataType)
	batchID := uuid.NewString()

	// Lifecycle events are advisory. Publish failures are logged by the
	// observable bus decorator and never fail the batch.
	_ = h.events.PublishBatchReceived(ctx, batchID, cmd.DataType, len(cmd.Records))

	validate := recordType.Validate
	var rejectedRefs int
	rejectedKeys := make(map[string]struct{})
	if recordType.ReferenceEntity != "" {
		keys, err := h.refs.ValidKeys(ctx, recordType.ReferenceEntity, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReferenceDataUnavailable, err)
		}
		base := validate
		field := recordType.ReferenceField
		validate = func(r domain.Record) error {
			if err := base(r); err != nil {
				return err
			}
			if _, ok := keys[r.String(field)]; !ok {
				rejectedRefs++
				rejectedKeys[r.String(field)] = struct{}{}
				return fmt.Errorf("unknown %s: %s", field, r.String(field))
			}
			return nil
		}
	}

	persist := func(ctx context.Context, record domain.Record) error {
		return h.retryer.Do(ctx, "upsert "+recordType.Table, func(ctx context.Context) error {
			return h.breaker.Do(ctx, func(ctx context.Context) error {
				callCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
				defer cancel()
				return h.store.Upsert(callCtx, recordType.Table, record)
			})
		})
	}

	var result domain.BatchResult
	if cmd.Mode == ModeAtomic {
		result = h.coord.ExecuteAtomic(ctx, cmd.Records, validate, persist)
	} else {
		result = h.coord.ExecutePartial(ctx, cmd.Records, validate, chunkOf(persist))
	}

	result.BatchID = batchID
	result.RejectedReferences = rejectedRefs
	if len(rejectedKeys) > 0 {
		distinct := make([]string, 0, len(rejectedKeys))
		for key := range rejectedKeys {
			distinct = append(distinct, key)
		}
		sort.Strings(distinct)
		result.RejectedReferenceKeys = distinct
	}

	if len(cmd.Records) > 0 && result.Processed == 0 && result.Failed > 0 {
		_ = h.events.PublishBatchFailed(ctx, batchID, failureReason(result))
	} else {
		_ = h.events.PublishBatchProcessed(ctx, batchID, result.Processed, result.Failed)
	}

	return &result, nil
}

// chunkOf lifts a per-record persist into a ChunkOp. Record-level failures
// are tallied inside the chunk; an unavailable store or an open breaker
// aborts the chunk so the coordinator stops attempting the rest of the batch.
func chunkOf(persist RecordOp) ChunkOp {
	return func(ctx context.Context, chunk []domain.Record) (ChunkOutcome, error) {
		var outcome ChunkOutcome
		for _, record := range chunk {
			err := persist(ctx, record)
			if err == nil {
				outcome.Processed++
				continue
			}
			if errors.Is(err, resilience.ErrOpen) || errors.Is(err, ports.ErrStoreUnavailable) || ctx.Err() != nil {
				return ChunkOutcome{}, err
			}
			outcome.Failed++
			outcome.Errors = append(outcome.Errors, domain.RecordError{
				RecordExcerpt: record.Excerpt(),
				Reason:        err.Error(),
				Phase:         domain.PhaseExecution,
			})
		}
		return outcome, nil
	}
}

func failureReason(result domain.BatchResult) string {
	if len(result.Errors) > 0 {
		return result.Errors[0].Reason
	}
	return "all records failed"
}
