package http

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/steadyops/ingestd/internal/admission"
	"github.com/steadyops/ingestd/internal/ingest/metrics"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{w, http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func WithMetrics(next http.Handler, metrics *Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		metrics.RecordRequest(r.Context(), r.Method, r.URL.Path, rw.statusCode, duration)
	})
}

// RateLimit admits or rejects requests against the named profile, keyed by
// client address. Every response carries the X-RateLimit-* headers; rejected
// requests get a 429 with a retry_after hint.
func RateLimit(ctrl *admission.Controller, profileName string, ingestMetrics *metrics.Metrics) func(http.Handler) http.Handler {
	profile, ok := admission.LookupProfile(profileName)
	if !ok {
		profile = admission.DefaultProfile()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := profileName + ":" + clientAddr(r)
			decision := ctrl.Allow(r.Context(), key, profile)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

			if !decision.Allowed {
				retryAfter := int(decision.RetryAfter.Seconds() + 0.5)
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				if ingestMetrics != nil {
					ingestMetrics.RecordRateLimitRejected(r.Context(), profileName)
				}
				writeJSON(w, http.StatusTooManyRequests, map[string]any{
					"error":       "rate limit exceeded",
					"retry_after": retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr identifies the caller for rate limiting. The first entry of
// X-Forwarded-For wins when a proxy sits in front; otherwise the peer address.
func clientAddr(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			forwarded = forwarded[:idx]
		}
		return strings.TrimSpace(forwarded)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
