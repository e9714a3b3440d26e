// Package extract harvests contact numbers from a single listing page.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/browser"
	"github.com/sells-group/outreach-cli/internal/contact"
	"github.com/sells-group/outreach-cli/internal/model"
)

// StepFailure is one tolerated capability failure during extraction.
type StepFailure struct {
	Step string       `json:"step"`
	Kind browser.Kind `json:"kind"`
	Err  string       `json:"error"`
}

// Result is the outcome of one extraction.
type Result struct {
	Expired bool `json:"expired"`
	// Blocked means an anti-bot page was served instead of the listing.
	Blocked bool `json:"blocked"`
	// Unavailable means the browser session failed and the remaining steps
	// were skipped.
	Unavailable bool            `json:"unavailable"`
	Contacts    []model.Contact `json:"contacts"`
	Failures    []StepFailure   `json:"failures,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Conclusive reports whether the page was actually inspected, so the lead
// can be marked as searched.
func (r Result) Conclusive() bool {
	return !r.Blocked && !r.Unavailable
}

// Engine runs the extraction procedure against a Browser.
type Engine struct {
	browser  browser.Browser
	strategy Strategy
	timing   Timing
}

// NewEngine creates an Engine.
func NewEngine(b browser.Browser, s Strategy, t Timing) *Engine {
	return &Engine{browser: b, strategy: s, timing: t}
}

// run tracks per-extraction state.
type run struct {
	ctx context.Context
	log *zap.Logger
	res Result
}

// fail records a step failure. It reports whether extraction must stop,
// which only a lost browser session does.
func (r *run) fail(step string, err error) bool {
	kind := browser.KindOf(err)
	if kind == "" {
		kind = browser.KindPageError
	}
	r.res.Failures = append(r.res.Failures, StepFailure{Step: step, Kind: kind, Err: err.Error()})
	r.log.Warn("extract: step failed", zap.String("step", step), zap.String("kind", string(kind)), zap.Error(err))
	if kind == browser.KindUnavailable {
		r.res.Unavailable = true
		return true
	}
	return false
}

// wait pauses for d. A cancelled context ends the extraction as
// inconclusive.
func (r *run) wait(d time.Duration) bool {
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-r.ctx.Done():
		case <-t.C:
		}
	}
	if r.ctx.Err() != nil {
		r.res.Unavailable = true
		return false
	}
	return true
}

// Extract opens url and collects contacts. It never returns an error;
// failures are folded into the Result.
func (e *Engine) Extract(ctx context.Context, url string) Result {
	r := &run{ctx: ctx, log: zap.L().With(zap.String("url", url))}
	e.extract(r, url)
	r.res.Error = summarize(r.res)
	return r.res
}

func (e *Engine) extract(r *run, url string) {
	b, s := e.browser, e.strategy

	if err := b.Open(r.ctx, url); err != nil && r.fail("open", err) {
		return
	}

	title, err := b.Title(r.ctx)
	if err != nil && r.fail("title", err) {
		return
	}
	if IsExpiredTitle(title, s.ExpiredMarkers) {
		r.log.Info("extract: listing expired", zap.String("title", title))
		r.res.Expired = true
		return
	}

	if !s.BlockProbe.IsZero() {
		body, err := b.ReadText(r.ctx, s.BlockProbe)
		if err != nil && browser.KindOf(err) != browser.KindNotFound && r.fail("block_probe", err) {
			return
		}
		if blocked, kind := DetectBlock(title, body); blocked {
			r.log.Warn("extract: blocked by anti-bot page", zap.String("block", string(kind)))
			r.res.Blocked = true
			r.res.Failures = append(r.res.Failures, StepFailure{Step: "block_probe", Kind: browser.KindUnavailable, Err: "blocked: " + string(kind)})
			return
		}
	}

	if !s.PhoneButton.IsZero() {
		if e.revealPrimary(r) {
			return
		}
	}

	if !s.ExpandButton.IsZero() {
		clicked, err := b.FindAndClick(r.ctx, s.ExpandButton)
		if err != nil && r.fail("expand", err) {
			return
		}
		if clicked && !r.wait(e.timing.ExpandWait) {
			return
		}
	}

	for i, loc := range s.RevealTriggers {
		if e.revealAll(r, i, loc) {
			return
		}
	}

	e.readDescription(r)
}

// revealPrimary clicks the primary reveal control and reads the unmasked
// number. It reports whether extraction must stop.
func (e *Engine) revealPrimary(r *run) bool {
	clicked, err := e.browser.FindAndClick(r.ctx, e.strategy.PhoneButton)
	if err != nil {
		return r.fail("phone_button", err)
	}
	if !clicked {
		return false
	}
	if !r.wait(e.timing.RevealWait) {
		return true
	}
	if e.strategy.PhoneText.IsZero() {
		return false
	}
	text, err := e.browser.ReadText(r.ctx, e.strategy.PhoneText)
	if err != nil {
		return r.fail("phone_text", err)
	}
	found := contact.Normalize(text)
	r.res.Contacts = contact.Merge(r.res.Contacts, found, model.OriginButton)
	r.log.Debug("extract: primary reveal", zap.Int("contacts", len(found)))
	return false
}

// revealAll clicks every visible match of one fallback trigger. Matches are
// clicked last to first so an element removed by its own click does not
// shift the ones still pending.
func (e *Engine) revealAll(r *run, idx int, loc browser.Locator) bool {
	step := fmt.Sprintf("reveal[%d]", idx)
	n, err := e.browser.CountVisible(r.ctx, loc)
	if err != nil {
		return r.fail(step, err)
	}
	for i := n - 1; i >= 0; i-- {
		clickCtx := r.ctx
		cancel := func() {}
		if e.timing.ClickTimeout > 0 {
			clickCtx, cancel = context.WithTimeout(r.ctx, e.timing.ClickTimeout)
		}
		err := e.browser.ClickVisible(clickCtx, loc, i)
		cancel()
		if err != nil {
			if r.ctx.Err() != nil {
				r.res.Unavailable = true
				return true
			}
			if r.fail(step, err) {
				return true
			}
		}
		if !r.wait(e.timing.ClickPause) {
			return true
		}
	}
	return false
}

func (e *Engine) readDescription(r *run) {
	var parts []string
	for i, loc := range e.strategy.DescriptionRegions {
		text, err := e.browser.ReadText(r.ctx, loc)
		if err != nil {
			// Layouts vary; a missing region is expected.
			if browser.KindOf(err) == browser.KindNotFound {
				continue
			}
			if r.fail(fmt.Sprintf("description[%d]", i), err) {
				return
			}
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	found := contact.Normalize(strings.Join(parts, "\n"))
	r.res.Contacts = contact.Merge(r.res.Contacts, found, model.OriginDescription)
}

func summarize(res Result) string {
	if len(res.Failures) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(res.Failures))
	for _, f := range res.Failures {
		msgs = append(msgs, f.Step+": "+f.Err)
	}
	return strings.Join(msgs, "; ")
}
