//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/steadyops/ingestd/internal/database"
	"github.com/steadyops/ingestd/internal/ingest/adapters/postgres"
	"github.com/steadyops/ingestd/internal/ingest/domain"
	"github.com/steadyops/ingestd/internal/ingest/ports"
	testpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := testpostgres.Run(ctx,
		"postgres:16-alpine",
		testpostgres.WithDatabase("test"),
		testpostgres.WithUsername("test"),
		testpostgres.WithPassword("test"),
		testpostgres.BasicWaitStrategies(),
		testpostgres.WithWaitStrategy(wait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	projectRoot := findProjectRoot(t)
	migrationsPath := filepath.Join(projectRoot, "migrations")

	if err := database.RunMigrations(connStr, migrationsPath); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	pool, err := database.NewPool(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
	})

	return pool
}

func findProjectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

func TestRepositoryUpsertInsertsRecord(t *testing.T) {
	pool := setupTestDB(t)
	repo := postgres.NewRepository(pool)
	ctx := context.Background()

	record := domain.Record{
		"warehouse_code": "WH-1",
		"name":           "Main warehouse",
		"address":        "1 Dock Road",
	}

	if err := repo.Upsert(ctx, "warehouses", record); err != nil {
		t.Fatalf("failed to upsert warehouse: %v", err)
	}

	var name string
	err := pool.QueryRow(ctx, "SELECT name FROM warehouses WHERE warehouse_code = $1", "WH-1").Scan(&name)
	if err != nil {
		t.Fatalf("failed to read back warehouse: %v", err)
	}
	if name != "Main warehouse" {
		t.Errorf("expected name %q, got %q", "Main warehouse", name)
	}
}

func TestRepositoryUpsertReplacesExisting(t *testing.T) {
	pool := setupTestDB(t)
	repo := postgres.NewRepository(pool)
	ctx := context.Background()

	first := domain.Record{"item_code": "ITEM-1", "description": "widget", "uom": "EA"}
	if err := repo.Upsert(ctx, "items", first); err != nil {
		t.Fatalf("failed to upsert item: %v", err)
	}

	second := domain.Record{"item_code": "ITEM-1", "description": "improved widget", "uom": "EA"}
	if err := repo.Upsert(ctx, "items", second); err != nil {
		t.Fatalf("failed to upsert item again: %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM items").Scan(&count); err != nil {
		t.Fatalf("failed to count items: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 item after upsert, got %d", count)
	}

	var description string
	if err := pool.QueryRow(ctx, "SELECT description FROM items WHERE item_code = $1", "ITEM-1").Scan(&description); err != nil {
		t.Fatalf("failed to read back item: %v", err)
	}
	if description != "improved widget" {
		t.Errorf("expected updated description, got %q", description)
	}
}

func TestRepositoryUpsertCompositeKey(t *testing.T) {
	pool := setupTestDB(t)
	repo := postgres.NewRepository(pool)
	ctx := context.Background()

	if err := repo.Upsert(ctx, "warehouses", domain.Record{"warehouse_code": "WH-1", "name": "Main"}); err != nil {
		t.Fatalf("failed to seed warehouse: %v", err)
	}

	records := []domain.Record{
		{"item_code": "ITEM-1", "warehouse_code": "WH-1", "on_hand_qty": 10},
		{"item_code": "ITEM-1", "warehouse_code": "WH-1", "on_hand_qty": 12},
	}
	for _, record := range records {
		if err := repo.Upsert(ctx, "inventory_current", record); err != nil {
			t.Fatalf("failed to upsert inventory: %v", err)
		}
	}

	var qty float64
	err := pool.QueryRow(ctx,
		"SELECT on_hand_qty FROM inventory_current WHERE item_code = $1 AND warehouse_code = $2",
		"ITEM-1", "WH-1",
	).Scan(&qty)
	if err != nil {
		t.Fatalf("failed to read back inventory: %v", err)
	}
	if qty != 12 {
		t.Errorf("expected on_hand_qty 12, got %v", qty)
	}
}

func TestRepositoryUpsertUnknownTable(t *testing.T) {
	pool := setupTestDB(t)
	repo := postgres.NewRepository(pool)

	err := repo.Upsert(context.Background(), "mystery", domain.Record{"id": 1})
	if !errors.Is(err, ports.ErrUnknownTable) {
		t.Errorf("expected ErrUnknownTable, got %v", err)
	}
}

func TestRepositoryListValidKeys(t *testing.T) {
	pool := setupTestDB(t)
	repo := postgres.NewRepository(pool)
	ctx := context.Background()

	for _, code := range []string{"WH-1", "WH-2", "WH-3"} {
		if err := repo.Upsert(ctx, "warehouses", domain.Record{"warehouse_code": code, "name": code}); err != nil {
			t.Fatalf("failed to seed warehouse %s: %v", code, err)
		}
	}

	keys, err := repo.ListValidKeys(ctx, "warehouses")
	if err != nil {
		t.Fatalf("failed to list warehouse keys: %v", err)
	}

	if len(keys) != 3 {
		t.Errorf("expected 3 keys, got %d", len(keys))
	}
	if _, ok := keys["WH-2"]; !ok {
		t.Error("expected WH-2 in key set")
	}
}
