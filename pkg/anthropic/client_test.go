package anthropic

import (
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	assert.Equal(t, 0, StatusCode(nil))
	assert.Equal(t, 0, StatusCode(eris.New("plain")))
	assert.Equal(t, 529, StatusCode(&sdk.Error{StatusCode: 529}))
	assert.Equal(t, 429, StatusCode(eris.Wrap(&sdk.Error{StatusCode: 429}, "anthropic: create message")))
}

func TestNewParams(t *testing.T) {
	p := newParams(MessageRequest{
		Model:       "claude-haiku-4-5-20251001",
		MaxTokens:   256,
		System:      "persona",
		CacheSystem: true,
		Prompt:      "hi",
	})
	assert.Equal(t, sdk.Model("claude-haiku-4-5-20251001"), p.Model)
	assert.Equal(t, int64(256), p.MaxTokens)
	require.Len(t, p.Messages, 1)
	assert.Equal(t, sdk.MessageParamRoleUser, p.Messages[0].Role)
	require.Len(t, p.System, 1)
	assert.Equal(t, "persona", p.System[0].Text)

	assert.Empty(t, newParams(MessageRequest{Prompt: "hi"}).System)
}

func TestNewResponse(t *testing.T) {
	resp := newResponse(&sdk.Message{
		ID:    "msg_1",
		Model: sdk.Model("claude-haiku-4-5-20251001"),
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "Olá, "},
			{Type: "tool_use"},
			{Type: "text", Text: "tudo bem?"},
		},
		Usage: sdk.Usage{InputTokens: 12, OutputTokens: 5},
	})
	assert.Equal(t, "msg_1", resp.ID)
	assert.Equal(t, "Olá, tudo bem?", resp.Text)
	assert.Equal(t, int64(12), resp.Usage.InputTokens)
	assert.Equal(t, int64(5), resp.Usage.OutputTokens)
}
