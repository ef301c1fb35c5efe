package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/steadyops/ingestd/internal/ingest/domain"
	"github.com/steadyops/ingestd/internal/ingest/ports"
)

// keyColumns mirrors the conflict keys of the relational schema so upserts
// replace rather than duplicate.
var keyColumns = map[string][]string{
	"warehouses":        {"warehouse_code"},
	"vendors":           {"vendor_code"},
	"items":             {"item_code"},
	"inventory_current": {"item_code", "warehouse_code"},
	"sales_orders":      {"order_id", "line_number"},
	"purchase_orders":   {"order_id", "line_number"},
	"costs":             {"item_code", "cost_date"},
	"pricing":           {"item_code", "price_list"},
}

var referenceColumns = map[string]struct {
	table  string
	column string
}{
	"warehouses": {table: "warehouses", column: "warehouse_code"},
	"vendors":    {table: "vendors", column: "vendor_code"},
	"items":      {table: "items", column: "item_code"},
}

// Repository provides an in-memory record store useful for local development
// and tests.
type Repository struct {
	mu     sync.RWMutex
	tables map[string]map[string]domain.Record
}

// NewRepository constructs a new in-memory repository.
func NewRepository() *Repository {
	return &Repository{tables: make(map[string]map[string]domain.Record)}
}

// Upsert stores record in table, replacing any record with the same key.
func (r *Repository) Upsert(_ context.Context, table string, record domain.Record) error {
	keys, ok := keyColumns[table]
	if !ok {
		return fmt.Errorf("%w: %s", ports.ErrUnknownTable, table)
	}

	parts := make([]string, len(keys))
	for i, column := range keys {
		parts[i] = fmt.Sprint(record[column])
	}
	key := strings.Join(parts, "|")

	r.mu.Lock()
	defer r.mu.Unlock()

	rows, ok := r.tables[table]
	if !ok {
		rows = make(map[string]domain.Record)
		r.tables[table] = rows
	}

	copied := make(domain.Record, len(record))
	for k, v := range record {
		copied[k] = v
	}
	rows[key] = copied
	return nil
}

// ListValidKeys returns the key set for a reference entity.
func (r *Repository) ListValidKeys(_ context.Context, entityType string) (map[string]struct{}, error) {
	ref, ok := referenceColumns[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrUnknownTable, entityType)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make(map[string]struct{})
	for _, record := range r.tables[ref.table] {
		if value := record.String(ref.column); value != "" {
			keys[value] = struct{}{}
		}
	}
	return keys, nil
}

// Count reports how many records table currently holds.
func (r *Repository) Count(table string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables[table])
}
