package http_test

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/steadyops/ingestd/internal/admission"
	admissionmem "github.com/steadyops/ingestd/internal/admission/memory"
	idemmem "github.com/steadyops/ingestd/internal/idempotency/memory"
	ingesthttp "github.com/steadyops/ingestd/internal/ingest/adapters/http"
	"github.com/steadyops/ingestd/internal/ingest/adapters/memory"
	"github.com/steadyops/ingestd/internal/ingest/app"
	"github.com/steadyops/ingestd/internal/ingest/app/commands"
	"github.com/steadyops/ingestd/internal/ingest/domain"
	"github.com/steadyops/ingestd/internal/ingest/metrics"
	"github.com/steadyops/ingestd/internal/kafka"
	"github.com/steadyops/ingestd/internal/refcache"
	"github.com/steadyops/ingestd/internal/resilience"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type testEnv struct {
	router chi.Router
	repo   *memory.Repository
	idem   *idemmem.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := memory.NewRepository()
	idem := idemmem.NewStore()

	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test")
	m, err := metrics.NewMetrics(meter)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	service := app.NewService(
		repo,
		refcache.New(repo, time.Minute, logger),
		kafka.NewNoopEventBus(),
		idem,
		commands.NewCoordinator(50, logger),
		resilience.NewBreaker("record-store", resilience.BreakerConfig{FailureThreshold: 5, Cooldown: time.Minute}, logger),
		resilience.NewRetryer(resilience.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond}, logger),
		time.Second,
		logger,
		m,
	)

	router := chi.NewRouter()
	ingesthttp.NewHandler(service).Register(router)

	return &testEnv{router: router, repo: repo, idem: idem}
}

func postJSON(t *testing.T, router chi.Router, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeResult(t *testing.T, rr *httptest.ResponseRecorder) domain.BatchResult {
	t.Helper()
	var result domain.BatchResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	return result
}

func TestIngestEndpointPersistsBatch(t *testing.T) {
	env := newTestEnv(t)

	rr := postJSON(t, env.router, "/v1/ingest", `{
		"data_type": "items_full",
		"records": [
			{"item_code": "ITEM-1", "description": "widget"},
			{"item_code": "ITEM-2", "description": "gadget"}
		]
	}`)

	require.Equal(t, http.StatusOK, rr.Code)
	result := decodeResult(t, rr)
	require.Equal(t, 2, result.Processed)
	require.Zero(t, result.Failed)
	require.NotEmpty(t, result.BatchID)
	require.Equal(t, 2, env.repo.Count("items"))
}

func TestIngestEndpointRejectsInvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	rr := postJSON(t, env.router, "/v1/ingest", `{"data_type": "items_full", "records": [`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestIngestEndpointRejectsUnknownDataType(t *testing.T) {
	env := newTestEnv(t)

	rr := postJSON(t, env.router, "/v1/ingest", `{"data_type": "mystery_full", "records": []}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "unknown data_type")
}

func TestIngestEndpointRejectsUnknownMode(t *testing.T) {
	env := newTestEnv(t)

	rr := postJSON(t, env.router, "/v1/ingest", `{"data_type": "items_full", "mode": "dry-run", "records": []}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "unknown mode")
}

func TestIngestEndpointReportsPartialFailures(t *testing.T) {
	env := newTestEnv(t)

	rr := postJSON(t, env.router, "/v1/ingest", `{
		"data_type": "items_full",
		"records": [
			{"item_code": "ITEM-1"},
			{"description": "no code"}
		]
	}`)

	require.Equal(t, http.StatusOK, rr.Code)
	result := decodeResult(t, rr)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Failed)
	require.True(t, result.IsPartial)
	require.Equal(t, "missing item_code", result.Errors[0].Reason)
}

func TestIngestEndpointReferenceValidation(t *testing.T) {
	env := newTestEnv(t)

	seed := postJSON(t, env.router, "/v1/ingest", `{
		"data_type": "warehouses_full",
		"records": [{"warehouse_code": "WH-1", "name": "Main"}]
	}`)
	require.Equal(t, http.StatusOK, seed.Code)

	rr := postJSON(t, env.router, "/v1/ingest", `{
		"data_type": "inventory_current_full",
		"records": [
			{"item_code": "ITEM-1", "warehouse_code": "WH-1", "on_hand_qty": 5},
			{"item_code": "ITEM-2", "warehouse_code": "WH-404", "on_hand_qty": 2}
		]
	}`)

	require.Equal(t, http.StatusOK, rr.Code)
	result := decodeResult(t, rr)
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, 1, result.RejectedReferences)
	require.Contains(t, result.Errors[0].Reason, "unknown warehouse_code")
}

func TestIngestEndpointAtomicMode(t *testing.T) {
	env := newTestEnv(t)

	rr := postJSON(t, env.router, "/v1/ingest", `{
		"data_type": "items_full",
		"mode": "atomic",
		"records": [
			{"item_code": "ITEM-1"},
			{"description": "no code"}
		]
	}`)

	require.Equal(t, http.StatusOK, rr.Code)
	result := decodeResult(t, rr)
	require.Zero(t, result.Processed)
	require.Equal(t, 2, result.Failed)
	require.False(t, result.IsPartial)
	require.Zero(t, env.repo.Count("items"), "atomic batches with invalid records must not persist anything")
}

func TestIdempotencyStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/idempotency/stats", nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var stats struct {
		Total  int64 `json:"total"`
		Active int64 `json:"active"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	require.Zero(t, stats.Total)
}

func TestRateLimitMiddleware(t *testing.T) {
	ctrl := admission.NewController(admissionmem.NewStore(), resilience.FailOpen, true, slog.New(slog.NewTextHandler(io.Discard, nil)))

	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := ingesthttp.RateLimit(ctrl, "strict", nil)(inner)

	var last *httptest.ResponseRecorder
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/ingest", nil)
		req.RemoteAddr = "10.0.0.1:4000"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
		require.Equal(t, http.StatusOK, last.Code, fmt.Sprintf("request %d should be admitted", i+1))
	}
	require.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))

	req := httptest.NewRequest(http.MethodGet, "/v1/ingest", nil)
	req.RemoteAddr = "10.0.0.1:4000"
	rejected := httptest.NewRecorder()
	handler.ServeHTTP(rejected, req)

	require.Equal(t, http.StatusTooManyRequests, rejected.Code)
	require.NotEmpty(t, rejected.Header().Get("Retry-After"))
	require.Equal(t, "10", rejected.Header().Get("X-RateLimit-Limit"))
	require.Contains(t, rejected.Body.String(), "retry_after")

	other := httptest.NewRequest(http.MethodGet, "/v1/ingest", nil)
	other.RemoteAddr = "10.0.0.2:4000"
	ok := httptest.NewRecorder()
	handler.ServeHTTP(ok, other)
	require.Equal(t, http.StatusOK, ok.Code, "limits are per client")
}
