package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/steadyops/ingestd/internal/idempotency/memory"
	"github.com/steadyops/ingestd/internal/ingest/ports"
	"github.com/stretchr/testify/require"
)

func storedResponse(key string, outcome ports.Outcome, expiresAt time.Time) ports.StoredResponse {
	return ports.StoredResponse{
		Key:        key,
		Endpoint:   "/v1/ingest",
		StatusCode: 200,
		Body:       []byte(`{"processed":1}`),
		Outcome:    outcome,
		CreatedAt:  time.Now().UTC(),
		ExpiresAt:  expiresAt,
	}
}

func TestStoreInsertIfAbsentFirstWriterWins(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	first := storedResponse("abc", ports.OutcomeCompleted, expires)
	first.Body = []byte(`{"winner":1}`)
	require.NoError(t, store.InsertIfAbsent(ctx, "abc", first))

	second := storedResponse("abc", ports.OutcomeCompleted, expires)
	second.Body = []byte(`{"winner":2}`)
	require.NoError(t, store.InsertIfAbsent(ctx, "abc", second))

	got, err := store.GetIfFresh(ctx, "abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, `{"winner":1}`, string(got.Body))
}

func TestStoreConcurrentInsertKeepsOneRecord(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	expires := time.Now().Add(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.InsertIfAbsent(ctx, "abc", storedResponse("abc", ports.OutcomeCompleted, expires))
		}()
	}
	wg.Wait()

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Total)
}

func TestStoreGetIfFreshIgnoresExpired(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	require.NoError(t, store.InsertIfAbsent(ctx, "old", storedResponse("old", ports.OutcomeCompleted, time.Now().Add(-time.Minute))))

	got, err := store.GetIfFresh(ctx, "old")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreGetIfFreshMissingKey(t *testing.T) {
	store := memory.NewStore()

	got, err := store.GetIfFresh(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreDeleteExpired(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.InsertIfAbsent(ctx, "stale-1", storedResponse("stale-1", ports.OutcomeCompleted, now.Add(-48*time.Hour))))
	require.NoError(t, store.InsertIfAbsent(ctx, "stale-2", storedResponse("stale-2", ports.OutcomeFailed, now.Add(-25*time.Hour))))
	require.NoError(t, store.InsertIfAbsent(ctx, "fresh", storedResponse("fresh", ports.OutcomeCompleted, now.Add(time.Hour))))

	deleted, err := store.DeleteExpired(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Total)
}

func TestStoreStats(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.InsertIfAbsent(ctx, "a", storedResponse("a", ports.OutcomeCompleted, now.Add(time.Hour))))
	require.NoError(t, store.InsertIfAbsent(ctx, "b", storedResponse("b", ports.OutcomeFailed, now.Add(time.Hour))))
	require.NoError(t, store.InsertIfAbsent(ctx, "c", storedResponse("c", ports.OutcomeCompleted, now.Add(-time.Hour))))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.Total)
	require.Equal(t, int64(2), stats.Active)
	require.Equal(t, int64(2), stats.Completed)
	require.Equal(t, int64(1), stats.Failed)
}
