package ports

import (
	"context"
	"errors"

	"github.com/steadyops/ingestd/internal/ingest/domain"
)

// RecordStore exposes the backing-store write required by the ingestion core.
type RecordStore interface {
	Upsert(ctx context.Context, table string, record domain.Record) error
}

// ReferenceSource lists the currently valid reference keys for an entity
// type, e.g. the set of known warehouse codes.
type ReferenceSource interface {
	ListValidKeys(ctx context.Context, entityType string) (map[string]struct{}, error)
}

var (
	// ErrStoreUnavailable marks transient backing-store failures worth a retry.
	ErrStoreUnavailable = errors.New("backing store unavailable")
	// ErrUnknownTable is returned for tables the store does not manage.
	ErrUnknownTable = errors.New("unknown table")
)
