// Package resilience wraps calls to remote inference services with retry and
// circuit breaking. Browser steps are not routed through here: a failed page
// step is picked up again by the next cycle.
package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig sets how many times a call is tried and how long to wait
// between tries. Waits double from InitialBackoff up to MaxBackoff.
type RetryConfig struct {
	// MaxAttempts counts the first try. 1 disables retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Jitter spreads each wait by up to ±Jitter of its length.
	Jitter float64

	// ShouldRetry overrides IsTransient when set.
	ShouldRetry func(err error) bool
	// OnRetry is told the number of the attempt that just failed.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig suits a chat-completion call made once per lead.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     20 * time.Second,
		Jitter:         0.25,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions returning a value. The value is only returned
// on success.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.normalized()

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		switch {
		case err == nil:
			return val, nil
		case attempt >= cfg.MaxAttempts, ctx.Err() != nil, !cfg.ShouldRetry(err):
			return zero, err
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		if !sleep(ctx, cfg.wait(attempt)) {
			return zero, err
		}
	}
}

func (c RetryConfig) normalized() RetryConfig {
	def := DefaultRetryConfig()
	if c.MaxAttempts < 1 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = max(def.MaxBackoff, c.InitialBackoff)
	}
	c.Jitter = min(max(c.Jitter, 0), 1)
	if c.ShouldRetry == nil {
		c.ShouldRetry = IsTransient
	}
	return c
}

// wait returns the pause after the given failed attempt (1-based).
func (c RetryConfig) wait(attempt int) time.Duration {
	d := c.InitialBackoff
	for i := 1; i < attempt && d < c.MaxBackoff; i++ {
		d *= 2
	}
	d = min(d, c.MaxBackoff)
	if c.Jitter > 0 {
		d += time.Duration((rand.Float64()*2 - 1) * c.Jitter * float64(d))
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// RetryLogger returns an OnRetry callback that logs at warn level.
func RetryLogger(service, operation string) func(int, error) {
	log := zap.L().With(zap.String("service", service), zap.String("operation", operation))
	return func(attempt int, err error) {
		log.Warn("resilience: call failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
}
