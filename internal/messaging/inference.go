package messaging

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

// InferenceConfig configures an Inference.
type InferenceConfig struct {
	Model     string
	MaxTokens int64
	Retry     resilience.RetryConfig
	// Breaker is optional.
	Breaker *resilience.Breaker
}

// Inference runs single-turn prompts against the Anthropic API with retry
// and circuit breaking.
type Inference struct {
	client anthropic.Client
	cfg    InferenceConfig
}

// NewInference creates an Inference.
func NewInference(client anthropic.Client, cfg InferenceConfig) *Inference {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Inference{client: client, cfg: cfg}
}

// Complete sends prompt under system and returns the response text.
// purpose labels usage logs and retries.
func (in *Inference) Complete(ctx context.Context, purpose, system, prompt string) (string, error) {
	req := anthropic.MessageRequest{
		Model:       in.cfg.Model,
		MaxTokens:   in.cfg.MaxTokens,
		System:      system,
		CacheSystem: true,
		Prompt:      prompt,
	}

	retry := in.cfg.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("anthropic", purpose)
	}

	call := func(ctx context.Context) (string, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
			resp, err := in.client.CreateMessage(ctx, req)
			if err != nil {
				if code := anthropic.StatusCode(err); resilience.IsTransientHTTPStatus(code) {
					return "", resilience.NewTransientError(err, code)
				}
				return "", err
			}
			resp.Usage.Log(in.cfg.Model, purpose)
			return strings.TrimSpace(resp.Text), nil
		})
	}

	var (
		text string
		err  error
	)
	if in.cfg.Breaker != nil {
		text, err = resilience.Call(ctx, in.cfg.Breaker, call)
	} else {
		text, err = call(ctx)
	}
	if err != nil {
		return "", eris.Wrapf(err, "messaging: %s", purpose)
	}
	if text == "" {
		return "", eris.Errorf("messaging: %s: empty response", purpose)
	}
	return text, nil
}
