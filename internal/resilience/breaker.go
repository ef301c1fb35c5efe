package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned when a breaker rejects a call without invoking the
// operation. Callers composing a Retryer must treat it as non-retryable.
var ErrOpen = errors.New("circuit breaker open")

// State captures the breaker state machine.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// BreakerConfig controls when a breaker trips and how long it stays open.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before permitting a trial call.
	Cooldown time.Duration
	// OnTransition, when set, is invoked after every state change. It runs
	// under the breaker mutex and must not call back into the breaker.
	OnTransition func(name string, from, to State)
}

// Breaker protects a downstream dependency with closed/open/half-open
// semantics. All state transitions for a breaker are serialized under its
// mutex; the guarded operation itself runs outside the lock.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	logger *slog.Logger

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	trialInFlight bool

	now func() time.Time
}

// NewBreaker constructs a named breaker.
func NewBreaker(name string, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logger,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Do invokes op unless the breaker is open. In the half-open state exactly one
// trial call is admitted; concurrent callers are rejected with ErrOpen until
// the trial settles.
func (b *Breaker) Do(ctx context.Context, op func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := op(ctx)
	b.settle(err)
	return err
}

// State reports the current state, applying the open->half-open transition if
// the cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return fmt.Errorf("%w: %s", ErrOpen, b.name)
		}
		b.state = StateHalfOpen
		b.trialInFlight = true
		b.notify(StateOpen, StateHalfOpen)
		b.logger.Info("circuit breaker half-open, admitting trial call", "breaker", b.name)
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return fmt.Errorf("%w: %s", ErrOpen, b.name)
		}
		b.trialInFlight = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		switch b.state {
		case StateHalfOpen:
			b.state = StateOpen
			b.openedAt = b.now()
			b.trialInFlight = false
			b.notify(StateHalfOpen, StateOpen)
			b.logger.Warn("circuit breaker trial failed, reopening",
				"breaker", b.name,
				"cooldown", b.cfg.Cooldown,
				"error", err,
			)
		case StateClosed:
			b.failures++
			if b.failures >= b.cfg.FailureThreshold {
				b.state = StateOpen
				b.openedAt = b.now()
				b.notify(StateClosed, StateOpen)
				b.logger.Warn("circuit breaker opened",
					"breaker", b.name,
					"failures", b.failures,
					"cooldown", b.cfg.Cooldown,
				)
			}
		}
		return
	}

	switch b.state {
	case StateHalfOpen:
		b.state = StateClosed
		b.failures = 0
		b.trialInFlight = false
		b.notify(StateHalfOpen, StateClosed)
		b.logger.Info("circuit breaker closed after successful trial", "breaker", b.name)
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) notify(from, to State) {
	if b.cfg.OnTransition != nil {
		b.cfg.OnTransition(b.name, from, to)
	}
}
