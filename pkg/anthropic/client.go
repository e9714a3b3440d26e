// Package anthropic wraps anthropic-sdk-go for single-turn text prompts.
package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client sends one prompt and returns the model's reply.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest is a single user turn under an optional system prompt.
type MessageRequest struct {
	Model     string
	MaxTokens int64
	System    string
	// CacheSystem marks the system prompt for prompt caching.
	CacheSystem bool
	Prompt      string
}

// MessageResponse carries the concatenated text blocks of a reply.
type MessageResponse struct {
	ID         string
	Model      string
	StopReason string
	Text       string
	Usage      Usage
}

// Usage is the token accounting of one call.
type Usage struct {
	InputTokens     int64
	OutputTokens    int64
	CacheReadTokens int64
}

// Log writes the usage at debug level.
func (u Usage) Log(model, purpose string) {
	zap.L().Debug("anthropic: usage",
		zap.String("model", model),
		zap.String("purpose", purpose),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadTokens),
	)
}

// StatusCode returns the HTTP status of an API error, or 0.
func StatusCode(err error) int {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

type sdkClient struct {
	sdk sdk.Client
}

// NewClient returns a Client for apiKey. The SDK's own retries are off;
// callers retry through internal/resilience.
func NewClient(apiKey string) Client {
	return &sdkClient{sdk: sdk.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0))}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	msg, err := c.sdk.Messages.New(ctx, newParams(req))
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}
	return newResponse(msg), nil
}

func newParams(req MessageRequest) sdk.MessageNewParams {
	p := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
	}
	if req.System != "" {
		block := sdk.TextBlockParam{Text: req.System}
		if req.CacheSystem {
			block.CacheControl = sdk.NewCacheControlEphemeralParam()
		}
		p.System = []sdk.TextBlockParam{block}
	}
	return p
}

func newResponse(msg *sdk.Message) *MessageResponse {
	var text strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	return &MessageResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Text:       text.String(),
		Usage: Usage{
			InputTokens:     msg.Usage.InputTokens,
			OutputTokens:    msg.Usage.OutputTokens,
			CacheReadTokens: msg.Usage.CacheReadInputTokens,
		},
	}
}
