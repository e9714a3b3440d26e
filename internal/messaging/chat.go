package messaging

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/browser"
)

// ChatLocators locates the chat panel controls on a listing page.
type ChatLocators struct {
	OpenButton browser.Locator
	Input      browser.Locator
	SendButton browser.Locator
	// LastOutgoing, when set, is read back after sending to confirm delivery.
	LastOutgoing browser.Locator
}

// ChatTiming paces chat interactions.
type ChatTiming struct {
	OpenWait      time.Duration
	ActionTimeout time.Duration
	ConfirmWait   time.Duration
}

// ErrChatUnavailable is returned when a listing offers no chat control.
var ErrChatUnavailable = eris.New("messaging: chat not available on listing")

// ChatClient is a Messenger that drives the listing chat through a browser.
type ChatClient struct {
	browser  browser.Browser
	locators ChatLocators
	timing   ChatTiming
	reader   ReplyReader
}

var _ Messenger = (*ChatClient)(nil)

// NewChatClient creates a ChatClient. reader decides reply state once the
// chat panel is open.
func NewChatClient(b browser.Browser, locators ChatLocators, timing ChatTiming, reader ReplyReader) *ChatClient {
	return &ChatClient{browser: b, locators: locators, timing: timing, reader: reader}
}

// Send opens the listing chat, types message and submits it.
func (c *ChatClient) Send(ctx context.Context, listingURL, message string) error {
	log := zap.L().With(zap.String("url", listingURL))
	if strings.TrimSpace(message) == "" {
		return eris.New("messaging: empty message")
	}
	if err := c.openChat(ctx, listingURL); err != nil {
		return err
	}

	if err := c.withTimeout(ctx, func(ctx context.Context) error {
		return c.browser.TypeText(ctx, c.locators.Input, message)
	}); err != nil {
		return eris.Wrap(err, "messaging: type message")
	}

	clicked := false
	if !c.locators.SendButton.IsZero() {
		var err error
		clicked, err = c.browser.FindAndClick(ctx, c.locators.SendButton)
		if err != nil {
			return eris.Wrap(err, "messaging: click send")
		}
	}
	if !clicked {
		// No send button rendered; submit with Enter.
		if err := c.browser.TypeText(ctx, c.locators.Input, "\r"); err != nil {
			return eris.Wrap(err, "messaging: submit")
		}
	}

	if c.locators.LastOutgoing.IsZero() {
		log.Info("messaging: message sent")
		return nil
	}
	if err := sleep(ctx, c.timing.ConfirmWait); err != nil {
		return eris.Wrap(err, "messaging: confirm")
	}
	last, err := c.browser.ReadText(ctx, c.locators.LastOutgoing)
	switch {
	case browser.KindOf(err) == browser.KindNotFound:
		log.Warn("messaging: sent message not visible, assuming delivered")
		return nil
	case err != nil:
		return eris.Wrap(err, "messaging: read sent message")
	case !sameMessage(last, message):
		return eris.Errorf("messaging: last sent bubble %q does not match message", truncate(last, 60))
	}
	log.Info("messaging: message sent")
	return nil
}

// ReadLatestReply opens the listing chat and asks the reader for the
// thread's reply state.
func (c *ChatClient) ReadLatestReply(ctx context.Context, listingURL string) (Reply, error) {
	if err := c.openChat(ctx, listingURL); err != nil {
		return Reply{}, err
	}
	rep, err := c.reader.ReadReply(ctx, c.browser)
	if err != nil {
		return Reply{}, err
	}
	zap.L().Debug("messaging: reply read",
		zap.String("url", listingURL),
		zap.Bool("replied", rep.Replied),
	)
	return rep, nil
}

func (c *ChatClient) openChat(ctx context.Context, listingURL string) error {
	if err := c.browser.Open(ctx, listingURL); err != nil && browser.KindOf(err) != browser.KindTimedOut {
		return eris.Wrap(err, "messaging: open listing")
	}
	clicked, err := c.browser.FindAndClick(ctx, c.locators.OpenButton)
	if err != nil {
		return eris.Wrap(err, "messaging: open chat")
	}
	if !clicked {
		return ErrChatUnavailable
	}
	if err := sleep(ctx, c.timing.OpenWait); err != nil {
		return eris.Wrap(err, "messaging: open chat")
	}
	return nil
}

func (c *ChatClient) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.timing.ActionTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timing.ActionTimeout)
	defer cancel()
	return fn(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// sameMessage compares the rendered bubble with what was typed. Chat UIs
// collapse whitespace and may append a timestamp.
func sameMessage(rendered, sent string) bool {
	r := strings.Join(strings.Fields(rendered), " ")
	s := strings.Join(strings.Fields(sent), " ")
	return strings.HasPrefix(r, s) || strings.Contains(r, s)
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
