//go:build integration

package postgres_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/steadyops/ingestd/internal/admission/postgres"
	"github.com/steadyops/ingestd/internal/database"
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

func TestStoreAllowsUpToLimitThenRejects(t *testing.T) {
	pool := setupTestDB(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	const limit = 5
	period := time.Minute

	for i := 0; i < limit; i++ {
		allowed, err := store.Allow(ctx, "agent-1", limit, period)
		if err != nil {
			t.Fatalf("allow %d failed: %v", i+1, err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	allowed, err := store.Allow(ctx, "agent-1", limit, period)
	if err != nil {
		t.Fatalf("allow at limit failed: %v", err)
	}
	if allowed {
		t.Fatal("request beyond the limit should be rejected")
	}
}

func TestStoreRejectionDoesNotMutateWindow(t *testing.T) {
	pool := setupTestDB(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	const limit = 2
	period := time.Minute

	for i := 0; i < limit; i++ {
		if _, err := store.Allow(ctx, "agent-1", limit, period); err != nil {
			t.Fatalf("allow failed: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		allowed, err := store.Allow(ctx, "agent-1", limit, period)
		if err != nil {
			t.Fatalf("allow failed: %v", err)
		}
		if allowed {
			t.Fatal("saturated window must reject")
		}
	}

	count, err := store.Count(ctx, "agent-1", period)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != limit {
		t.Errorf("rejections must not record events: expected %d, got %d", limit, count)
	}
}

func TestStorePrunesEventsOutsidePeriod(t *testing.T) {
	pool := setupTestDB(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	stale := time.Now().UTC().Add(-2 * time.Minute)
	if _, err := pool.Exec(ctx, `INSERT INTO admission_events (key, ts) VALUES ($1, $2)`, "agent-1", stale); err != nil {
		t.Fatalf("failed to seed stale event: %v", err)
	}

	allowed, err := store.Allow(ctx, "agent-1", 1, time.Minute)
	if err != nil {
		t.Fatalf("allow failed: %v", err)
	}
	if !allowed {
		t.Fatal("stale events must not count against the limit")
	}

	count, err := store.Count(ctx, "agent-1", time.Minute)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected only the fresh event in the window, got %d", count)
	}
}

func TestStoreOldestInWindow(t *testing.T) {
	pool := setupTestDB(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()
	period := time.Minute

	oldest, err := store.OldestInWindow(ctx, "agent-1", period)
	if err != nil {
		t.Fatalf("oldest on empty window failed: %v", err)
	}
	if !oldest.IsZero() {
		t.Fatalf("expected zero time for empty window, got %v", oldest)
	}

	before := time.Now().UTC()
	for i := 0; i < 2; i++ {
		if _, err := store.Allow(ctx, "agent-1", 10, period); err != nil {
			t.Fatalf("allow failed: %v", err)
		}
	}

	oldest, err = store.OldestInWindow(ctx, "agent-1", period)
	if err != nil {
		t.Fatalf("oldest failed: %v", err)
	}
	if oldest.IsZero() {
		t.Fatal("expected a timestamp for a populated window")
	}
	if oldest.Before(before.Add(-time.Second)) || oldest.After(time.Now().UTC()) {
		t.Errorf("oldest event outside expected range: %v", oldest)
	}
}

func TestStoreKeysAreIndependent(t *testing.T) {
	pool := setupTestDB(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	if _, err := store.Allow(ctx, "agent-1", 1, time.Minute); err != nil {
		t.Fatalf("allow failed: %v", err)
	}

	allowed, err := store.Allow(ctx, "agent-2", 1, time.Minute)
	if err != nil {
		t.Fatalf("allow failed: %v", err)
	}
	if !allowed {
		t.Fatal("a saturated window for one key must not affect another")
	}
}

func TestStoreConcurrentAllowHoldsLimit(t *testing.T) {
	pool := setupTestDB(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	const (
		limit       = 5
		concurrency = 12
	)

	var wg sync.WaitGroup
	results := make(chan bool, concurrency)
	errs := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, err := store.Allow(ctx, "contended-agent", limit, time.Minute)
			if err != nil {
				errs <- err
				return
			}
			results <- allowed
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent allow failed: %v", err)
	}

	allowedCount := 0
	for allowed := range results {
		if allowed {
			allowedCount++
		}
	}
	if allowedCount != limit {
		t.Errorf("expected exactly %d allowed under contention, got %d", limit, allowedCount)
	}

	count, err := store.Count(ctx, "contended-agent", time.Minute)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != limit {
		t.Errorf("expected %d recorded events, got %d", limit, count)
	}
}

func TestStoreResetClearsWindow(t *testing.T) {
	pool := setupTestDB(t)
	store := postgres.NewStore(pool)
	ctx := context.Background()

	if _, err := store.Allow(ctx, "agent-1", 1, time.Minute); err != nil {
		t.Fatalf("allow failed: %v", err)
	}

	if err := store.Reset(ctx, "agent-1"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	allowed, err := store.Allow(ctx, "agent-1", 1, time.Minute)
	if err != nil {
		t.Fatalf("allow failed: %v", err)
	}
	if !allowed {
		t.Fatal("reset window must admit again")
	}
}
