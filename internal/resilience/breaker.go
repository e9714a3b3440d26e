package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls a Breaker.
type BreakerConfig struct {
	Name string
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before one probe call is
	// let through.
	Cooldown time.Duration
}

// Breaker stops calling a failing service for a cooldown period. A single
// probe is allowed after the cooldown; its outcome closes or reopens the
// circuit.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker creates a closed Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// State returns the current state, reporting half-open once the cooldown
// has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// Call runs fn through the breaker.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return eris.Wrap(ErrCircuitOpen, b.cfg.Name)
		}
		b.transition(BreakerHalfOpen)
	case BreakerHalfOpen:
		// A probe is already in flight.
		return eris.Wrap(ErrCircuitOpen, b.cfg.Name)
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.failures = 0
		if b.state != BreakerClosed {
			b.transition(BreakerClosed)
		}
		return
	}
	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.now()
		if b.state != BreakerOpen {
			b.transition(BreakerOpen)
		}
	}
}

func (b *Breaker) transition(to BreakerState) {
	zap.L().Info("resilience: breaker state change",
		zap.String("breaker", b.cfg.Name),
		zap.Stringer("from", b.state),
		zap.Stringer("to", to),
	)
	b.state = to
}
