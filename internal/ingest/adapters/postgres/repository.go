package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/steadyops/ingestd/internal/ingest/domain"
	"github.com/steadyops/ingestd/internal/ingest/ports"
)

// tableSpec describes how records for one target table are upserted: which
// columns are written and which columns form the conflict key.
type tableSpec struct {
	columns  []string
	conflict []string
	// defaults fill conflict-key columns the agent may omit, such as the
	// line number on single-line orders.
	defaults map[string]any
}

var tableSpecs = map[string]tableSpec{
	"warehouses": {
		columns:  []string{"warehouse_code", "name", "address"},
		conflict: []string{"warehouse_code"},
	},
	"vendors": {
		columns:  []string{"vendor_code", "name", "contact_email"},
		conflict: []string{"vendor_code"},
	},
	"items": {
		columns:  []string{"item_code", "description", "uom"},
		conflict: []string{"item_code"},
	},
	"inventory_current": {
		columns:  []string{"item_code", "warehouse_code", "on_hand_qty"},
		conflict: []string{"item_code", "warehouse_code"},
	},
	"sales_orders": {
		columns:  []string{"order_id", "line_number", "item_code", "quantity", "order_date"},
		conflict: []string{"order_id", "line_number"},
		defaults: map[string]any{"line_number": 1},
	},
	"purchase_orders": {
		columns:  []string{"order_id", "line_number", "item_code", "quantity", "order_date"},
		conflict: []string{"order_id", "line_number"},
		defaults: map[string]any{"line_number": 1},
	},
	"costs": {
		columns:  []string{"item_code", "cost_date", "unit_cost"},
		conflict: []string{"item_code", "cost_date"},
	},
	"pricing": {
		columns:  []string{"item_code", "price_list", "unit_price"},
		conflict: []string{"item_code", "price_list"},
	},
}

// referenceKeys maps a reference entity to the table and column holding its
// key set.
var referenceKeys = map[string]struct {
	table  string
	column string
}{
	"warehouses": {table: "warehouses", column: "warehouse_code"},
	"vendors":    {table: "vendors", column: "vendor_code"},
	"items":      {table: "items", column: "item_code"},
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert writes one record into table, replacing non-key columns when the key
// already exists. Server-side SQL errors are record-level failures; anything
// else, such as a dropped connection, is reported as the store being
// unavailable so the caller stops hammering it.
func (r *Repository) Upsert(ctx context.Context, table string, record domain.Record) error {
	spec, ok := tableSpecs[table]
	if !ok {
		return fmt.Errorf("%w: %s", ports.ErrUnknownTable, table)
	}

	query := upsertQuery(table, spec)

	args := make([]any, 0, len(spec.columns)+1)
	for _, column := range spec.columns {
		value := record[column]
		if value == nil {
			if fallback, ok := spec.defaults[column]; ok {
				value = fallback
			}
		}
		args = append(args, value)
	}
	args = append(args, time.Now().UTC())

	_, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return fmt.Errorf("upsert %s: %w", table, err)
		}
		return fmt.Errorf("upsert %s: %w: %v", table, ports.ErrStoreUnavailable, err)
	}

	return nil
}

func upsertQuery(table string, spec tableSpec) string {
	placeholders := make([]string, len(spec.columns)+1)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	conflictSet := make(map[string]struct{}, len(spec.conflict))
	for _, column := range spec.conflict {
		conflictSet[column] = struct{}{}
	}

	updates := []string{"updated_at = EXCLUDED.updated_at"}
	for _, column := range spec.columns {
		if _, isKey := conflictSet[column]; isKey {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", column, column))
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s, updated_at) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table,
		strings.Join(spec.columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(spec.conflict, ", "),
		strings.Join(updates, ", "),
	)
}

// ListValidKeys returns the full key set for a reference entity.
func (r *Repository) ListValidKeys(ctx context.Context, entityType string) (map[string]struct{}, error) {
	ref, ok := referenceKeys[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrUnknownTable, entityType)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", ref.column, ref.table)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s keys: %w", entityType, err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan %s key: %w", entityType, err)
		}
		keys[key] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s keys: %w", entityType, err)
	}

	return keys, nil
}
