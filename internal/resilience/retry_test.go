package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestDo_SuccessAfterTransient(t *testing.T) {
	calls := 0
	var retried []int
	cfg := fastRetry()
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("overloaded"), 529)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(), func(context.Context) error {
		calls++
		return errors.New("invalid api key")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	calls := 0
	val, err := DoVal(context.Background(), fastRetry(), func(context.Context) (string, error) {
		calls++
		return "partial", NewTransientError(errors.New("503"), 503)
	})
	require.Error(t, err)
	assert.Equal(t, "", val)
	assert.Equal(t, 3, calls)
}

func TestDoVal_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoVal(ctx, fastRetry(), func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(errors.New("timeout"), 504)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWait_DoublesUpToCap(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second}.normalized()
	assert.Equal(t, time.Second, cfg.wait(1))
	assert.Equal(t, 2*time.Second, cfg.wait(2))
	assert.Equal(t, 4*time.Second, cfg.wait(3))
	assert.Equal(t, 5*time.Second, cfg.wait(4))
	assert.Equal(t, 5*time.Second, cfg.wait(10))
}

func TestWait_JitterStaysInBounds(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: time.Second, Jitter: 0.5}.normalized()
	for range 50 {
		d := cfg.wait(1)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(NewTransientError(errors.New("x"), 429)))
	assert.True(t, IsTransient(errors.New("read tcp: i/o timeout")))
	assert.True(t, IsTransient(errors.New("Overloaded")))
	assert.False(t, IsTransient(errors.New("bad request")))
	assert.True(t, IsTransientHTTPStatus(529))
	assert.False(t, IsTransientHTTPStatus(400))
}

func TestFromRetryConfig(t *testing.T) {
	cfg := FromRetryConfig(5, 0, time.Minute)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, DefaultRetryConfig().InitialBackoff, cfg.InitialBackoff)
	assert.Equal(t, time.Minute, cfg.MaxBackoff)
}
