// Package idempotency caches the outcome of write requests under
// caller-supplied keys so retried deliveries replay the original response
// instead of re-executing the write.
package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/steadyops/ingestd/internal/ingest/ports"
	"github.com/steadyops/ingestd/internal/resilience"
)

const (
	// Header carries the caller-supplied idempotency key.
	Header = "X-Idempotency-Key"
	// ReplayHeader marks a response served from the idempotency cache.
	ReplayHeader = "X-Idempotent-Replay"
	// DefaultTTL is how long a cached outcome stays replayable.
	DefaultTTL = 24 * time.Hour
)

// Guard wraps an HTTP handler with idempotent-replay semantics. Requests
// without the key header pass through untouched. Store failures follow the
// configured FailurePolicy; the shipped posture is fail open, degrading to
// plain non-idempotent execution rather than blocking the request.
type Guard struct {
	store    ports.IdempotencyStore
	policy   resilience.FailurePolicy
	logger   *slog.Logger
	ttl      time.Duration
	now      func() time.Time
	onReplay func(ctx context.Context)
}

// NewGuard constructs a Guard over the given store.
func NewGuard(store ports.IdempotencyStore, policy resilience.FailurePolicy, ttl time.Duration, logger *slog.Logger) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		store:  store,
		policy: policy,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
	}
}

// OnReplay registers a callback invoked on every cache hit, for replay
// counters.
func (g *Guard) OnReplay(fn func(ctx context.Context)) {
	g.onReplay = fn
}

// Wrap returns the guarded handler.
func (g *Guard) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		values, present := r.Header[http.CanonicalHeaderKey(Header)]
		if !present || len(values) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := strings.TrimSpace(values[0])
		if key == "" {
			writeJSONError(w, http.StatusBadRequest, "invalid idempotency key format")
			return
		}

		ctx := r.Context()
		stored, err := g.store.GetIfFresh(ctx, key)
		if err != nil {
			g.logger.ErrorContext(ctx, "idempotency lookup failed, degrading to non-idempotent execution",
				"key", key,
				"policy", g.policy.String(),
				"error", err,
			)
			if g.policy == resilience.FailClosed {
				writeJSONError(w, http.StatusServiceUnavailable, "idempotency store unavailable")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if stored != nil {
			if g.onReplay != nil {
				g.onReplay(ctx)
			}
			g.logger.InfoContext(ctx, "idempotency cache hit, replaying cached response",
				"key", key,
				"status_code", stored.StatusCode,
				"outcome", string(stored.Outcome),
			)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(ReplayHeader, "true")
			w.WriteHeader(stored.StatusCode)
			_, _ = w.Write(stored.Body)
			return
		}

		requestHash := g.hashRequestBody(r)

		rec := newRecorder(w)
		next.ServeHTTP(rec, r)

		outcome := ports.OutcomeFailed
		if rec.status >= 200 && rec.status < 300 {
			outcome = ports.OutcomeCompleted
		}

		now := g.now().UTC()
		response := ports.StoredResponse{
			Key:         key,
			Endpoint:    r.URL.Path,
			RequestHash: requestHash,
			StatusCode:  rec.status,
			Body:        rec.body.Bytes(),
			Outcome:     outcome,
			CreatedAt:   now,
			ExpiresAt:   now.Add(g.ttl),
		}

		if err := g.store.InsertIfAbsent(ctx, key, response); err != nil {
			// Fail open: the response already went out, losing the cache
			// entry only costs replay protection for this key.
			g.logger.ErrorContext(ctx, "idempotency persist failed",
				"key", key,
				"error", err,
			)
		}
	})
}

// hashRequestBody computes the SHA-256 of the request body and restores the
// body for the downstream handler.
func (g *Guard) hashRequestBody(r *http.Request) string {
	if r.Body == nil {
		return hashBytes(nil)
	}

	payload, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		g.logger.Error("failed to read request body for hashing", "error", err)
		r.Body = io.NopCloser(bytes.NewReader(nil))
		return ""
	}

	r.Body = io.NopCloser(bytes.NewReader(payload))
	return hashBytes(payload)
}

func hashBytes(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newRecorder(w http.ResponseWriter) *recorder {
	return &recorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *recorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(p []byte) (int, error) {
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}
