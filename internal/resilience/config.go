package resilience

import "time"

// FromRetryConfig converts config values to a RetryConfig. Zero values keep
// the defaults.
func FromRetryConfig(maxAttempts int, initialBackoff, maxBackoff time.Duration) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoff > 0 {
		cfg.InitialBackoff = initialBackoff
	}
	if maxBackoff > 0 {
		cfg.MaxBackoff = maxBackoff
	}
	return cfg
}
