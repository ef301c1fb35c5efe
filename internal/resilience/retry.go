package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds a retry loop. Delay before attempt n+1 is
// BaseDelay * Multiplier^(n-1), randomized by Jitter and capped at MaxDelay.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	Jitter      float64
	MaxDelay    time.Duration
	// Retryable classifies errors worth another attempt. When nil, every
	// error except ErrOpen is retried.
	Retryable func(error) bool
}

// DefaultRetryConfig matches the store operation class: three attempts with a
// short, jittered backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      0.2,
		MaxDelay:    5 * time.Second,
	}
}

// Retryer executes operations with bounded exponential backoff.
type Retryer struct {
	cfg    RetryConfig
	logger *slog.Logger
}

// NewRetryer constructs a Retryer from cfg, applying defaults for zero fields.
func NewRetryer(cfg RetryConfig, logger *slog.Logger) *Retryer {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = def.Jitter
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retryer{cfg: cfg, logger: logger}
}

// Do runs op until it succeeds, exhausts the attempt budget, or fails with a
// non-retryable error. The last failure propagates unchanged. A breaker-open
// error aborts immediately without consuming further attempts, preserving the
// breaker's backpressure.
func (r *Retryer) Do(ctx context.Context, name string, op func(context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.BaseDelay
	bo.Multiplier = r.cfg.Multiplier
	bo.RandomizationFactor = r.cfg.Jitter
	bo.MaxInterval = r.cfg.MaxDelay
	bo.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrOpen) {
			return backoff.Permanent(err)
		}
		if r.cfg.Retryable != nil && !r.cfg.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		r.logger.WarnContext(ctx, "retrying operation",
			"operation", name,
			"attempt", attempt,
			"max_attempts", r.cfg.MaxAttempts,
			"next_delay", next,
			"error", err,
		)
	}

	wrapped := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(r.cfg.MaxAttempts-1)), ctx)
	return backoff.RetryNotify(operation, wrapped, notify)
}

// MaxAttempts exposes the configured attempt budget.
func (r *Retryer) MaxAttempts() int {
	return r.cfg.MaxAttempts
}
