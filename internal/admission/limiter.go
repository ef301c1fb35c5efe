package admission

import (
	"context"
	"log/slog"
	"time"

	"github.com/steadyops/ingestd/internal/resilience"
)

// Window tracks accepted-request timestamps per key inside a sliding period.
// Implementations must make Allow an atomic check-and-record: a rejected
// request never mutates the window.
type Window interface {
	Allow(ctx context.Context, key string, limit int, period time.Duration) (bool, error)
	Count(ctx context.Context, key string, period time.Duration) (int, error)
	// OldestInWindow returns the zero time when the window is empty.
	OldestInWindow(ctx context.Context, key string, period time.Duration) (time.Time, error)
	Reset(ctx context.Context, key string) error
}

// Decision is the outcome of an admission check. Limit, Remaining and ResetAt
// are populated on every decision so responses can always carry rate-limit
// metadata; RetryAfter is meaningful only when Allowed is false.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Controller applies named rate-limit profiles over a pluggable Window
// backend. Backend failures follow the configured FailurePolicy; the shipped
// posture is fail open so a broken counter store never blocks ingestion.
type Controller struct {
	window  Window
	policy  resilience.FailurePolicy
	logger  *slog.Logger
	enabled bool
	now     func() time.Time
}

// NewController wires a Controller around the given window backend.
func NewController(window Window, policy resilience.FailurePolicy, enabled bool, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		window:  window,
		policy:  policy,
		logger:  logger,
		enabled: enabled,
		now:     time.Now,
	}
}

// Allow checks key against the profile and records the request when admitted.
func (c *Controller) Allow(ctx context.Context, key string, p Profile) Decision {
	now := c.now()
	if !c.enabled {
		return Decision{
			Allowed:   true,
			Limit:     p.Limit,
			Remaining: p.Limit,
			ResetAt:   now.Add(p.Period),
		}
	}

	allowed, err := c.window.Allow(ctx, key, p.Limit, p.Period)
	if err != nil {
		c.logger.ErrorContext(ctx, "admission backend error",
			"key", key,
			"policy", c.policy.String(),
			"error", err,
		)
		return Decision{
			Allowed:   c.policy == resilience.FailOpen,
			Limit:     p.Limit,
			Remaining: 0,
			ResetAt:   now.Add(p.Period),
		}
	}

	d := Decision{Allowed: allowed, Limit: p.Limit}

	count, err := c.window.Count(ctx, key, p.Period)
	if err == nil {
		d.Remaining = p.Limit - count
		if d.Remaining < 0 {
			d.Remaining = 0
		}
	}

	oldest, err := c.window.OldestInWindow(ctx, key, p.Period)
	if err != nil || oldest.IsZero() {
		d.ResetAt = now.Add(p.Period)
	} else {
		d.ResetAt = oldest.Add(p.Period)
	}

	if !allowed {
		if wait := d.ResetAt.Sub(now); wait > 0 {
			d.RetryAfter = wait
		}
	}

	return d
}

// RequestCount reports the accepted-request count for key within period.
func (c *Controller) RequestCount(ctx context.Context, key string, period time.Duration) int {
	if !c.enabled {
		return 0
	}
	count, err := c.window.Count(ctx, key, period)
	if err != nil {
		c.logger.ErrorContext(ctx, "admission count failed", "key", key, "error", err)
		return 0
	}
	return count
}

// RetryAfter reports how long until the oldest in-window request for key
// leaves the window. Zero means a request would be admitted now.
func (c *Controller) RetryAfter(ctx context.Context, key string, period time.Duration) time.Duration {
	if !c.enabled {
		return 0
	}
	oldest, err := c.window.OldestInWindow(ctx, key, period)
	if err != nil || oldest.IsZero() {
		return 0
	}
	wait := oldest.Add(period).Sub(c.now())
	if wait < 0 {
		return 0
	}
	return wait
}

// ResetTime reports the absolute time at which the window for key fully clears.
func (c *Controller) ResetTime(ctx context.Context, key string, period time.Duration) time.Time {
	now := c.now()
	if !c.enabled {
		return now
	}
	oldest, err := c.window.OldestInWindow(ctx, key, period)
	if err != nil || oldest.IsZero() {
		return now.Add(period)
	}
	return oldest.Add(period)
}
