package messaging

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/browser"
)

// ReplyReader inspects an open chat panel and reports whether the seller
// answered.
type ReplyReader interface {
	ReadReply(ctx context.Context, b browser.Browser) (Reply, error)
}

// DOMReplyReader reads reply state straight from the chat bubbles. Threads
// are always opened by us, so any incoming bubble is a reply.
type DOMReplyReader struct {
	Incoming     browser.Locator
	LastIncoming browser.Locator
}

// ReadReply implements ReplyReader.
func (r DOMReplyReader) ReadReply(ctx context.Context, b browser.Browser) (Reply, error) {
	n, err := b.CountVisible(ctx, r.Incoming)
	if err != nil {
		return Reply{}, eris.Wrap(err, "messaging: count incoming")
	}
	if n == 0 {
		return Reply{}, nil
	}
	last := r.LastIncoming
	if last.IsZero() {
		last = r.Incoming
	}
	text, err := b.ReadText(ctx, last)
	if err != nil && browser.KindOf(err) != browser.KindNotFound {
		return Reply{}, eris.Wrap(err, "messaging: read incoming")
	}
	return Reply{Replied: true, Text: strings.TrimSpace(text)}, nil
}

const replySystemPrompt = `You review a marketplace chat between a buyer's agent ("us") and a seller.
We always send the first message. Decide whether the seller has written anything after our most recent message.
Respond with JSON only, no prose: {"replied": true|false, "text": "<the seller's latest message, or empty>"}`

// InferenceReplyReader classifies the chat transcript with a language model.
type InferenceReplyReader struct {
	Inference  *Inference
	Transcript browser.Locator
}

// ReadReply implements ReplyReader.
func (r InferenceReplyReader) ReadReply(ctx context.Context, b browser.Browser) (Reply, error) {
	transcript, err := b.ReadText(ctx, r.Transcript)
	if err != nil {
		return Reply{}, eris.Wrap(err, "messaging: read transcript")
	}
	if strings.TrimSpace(transcript) == "" {
		return Reply{}, nil
	}
	out, err := r.Inference.Complete(ctx, "reply_check", replySystemPrompt, "Transcript:\n"+transcript)
	if err != nil {
		return Reply{}, err
	}
	return ParseReply(out)
}

// ParseReply decodes a {"replied","text"} verdict, tolerating markdown code
// fences and prose around the object.
func ParseReply(raw string) (Reply, error) {
	s := stripFences(raw)
	if i, j := strings.Index(s, "{"), strings.LastIndex(s, "}"); i >= 0 && j > i {
		s = s[i : j+1]
	}
	var rep Reply
	if err := json.Unmarshal([]byte(s), &rep); err != nil {
		return Reply{}, eris.Wrapf(err, "messaging: decode reply verdict %q", raw)
	}
	rep.Text = strings.TrimSpace(rep.Text)
	if !rep.Replied {
		rep.Text = ""
	}
	return rep, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// Drop a language tag such as "json".
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
