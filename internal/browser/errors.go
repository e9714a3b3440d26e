package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Kind classifies a capability failure so callers can choose between
// continuing with partial results and short-circuiting.
type Kind string

const (
	// KindTimedOut means the operation exceeded its deadline; the page may
	// still be usable.
	KindTimedOut Kind = "timed_out"
	// KindNotFound means the target element or resource was absent.
	KindNotFound Kind = "not_found"
	// KindPageError means the page failed (load error, script error) while
	// the browser stayed usable.
	KindPageError Kind = "page_error"
	// KindUnavailable means the browser session itself is gone or broken.
	KindUnavailable Kind = "unavailable"
)

// Error is a classified capability failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// NewError builds a classified error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("browser: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("browser: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain, or "" when err
// is nil or unclassified.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// Messages of failures that leave no usable tab behind.
var sessionLost = []string{"websocket", "target closed", "browser closed", "connection refused by devtools"}

// classify maps raw chromedp failures onto a Kind. Only a lost tab or
// browser is KindUnavailable; anything else is scoped to the page.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	var exc *runtime.ExceptionDetails
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(KindTimedOut, op, err)
	case errors.Is(err, context.Canceled),
		errors.Is(err, chromedp.ErrInvalidContext),
		errors.Is(err, chromedp.ErrChannelClosed),
		errors.Is(err, chromedp.ErrInvalidTarget),
		errors.Is(err, chromedp.ErrInvalidWebsocketMessage):
		return NewError(KindUnavailable, op, err)
	case errors.As(err, &exc), errors.Is(err, chromedp.ErrNoResults):
		return NewError(KindNotFound, op, err)
	}
	msg := strings.ToLower(err.Error())
	for _, m := range sessionLost {
		if strings.Contains(msg, m) {
			return NewError(KindUnavailable, op, err)
		}
	}
	// "page load error net::ERR_..." from Navigate lands here.
	return NewError(KindPageError, op, err)
}
