// Package browser is the capability boundary for driving a listing page.
//
// The orchestration code only talks to the Browser interface. Chrome is the
// chromedp-backed implementation; it owns a single tab that is reused
// serially for the whole process lifetime.
package browser

import (
	"context"
	"fmt"
	"strings"
)

// Browser drives one page at a time. Implementations are not safe for
// concurrent use; callers serialize access.
type Browser interface {
	// Open navigates to url. A load timeout is reported as KindTimedOut but
	// leaves whatever was rendered available to later calls.
	Open(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	// FindAndClick clicks the first element matching loc. It reports false,
	// with a nil error, when nothing matches.
	FindAndClick(ctx context.Context, loc Locator) (bool, error)
	// ClickVisible clicks the index-th visible element matching loc.
	ClickVisible(ctx context.Context, loc Locator, index int) error
	// ReadText returns the rendered text of the first element matching loc,
	// or a KindNotFound error.
	ReadText(ctx context.Context, loc Locator) (string, error)
	CountVisible(ctx context.Context, loc Locator) (int, error)
	// TypeText sends keystrokes to the first element matching loc.
	TypeText(ctx context.Context, loc Locator, text string) error
}

// LocatorKind selects the query language of a Locator.
type LocatorKind string

const (
	LocatorCSS   LocatorKind = "css"
	LocatorXPath LocatorKind = "xpath"
)

// Locator describes how to find elements on a page.
type Locator struct {
	Kind  LocatorKind `json:"kind"`
	Value string      `json:"value"`
}

// CSS returns a CSS selector locator.
func CSS(sel string) Locator { return Locator{Kind: LocatorCSS, Value: sel} }

// XPath returns an XPath locator.
func XPath(expr string) Locator { return Locator{Kind: LocatorXPath, Value: expr} }

// ParseLocator reads the textual locator form used in configuration:
//
//	xpath=//div[@id="x"]   explicit XPath
//	css=div.x              explicit CSS
//	text=ver número        any element whose own text contains the phrase
//	//div | (//a)[1]       bare XPath
//	anything else          CSS
func ParseLocator(s string) Locator {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "xpath="):
		return XPath(strings.TrimPrefix(s, "xpath="))
	case strings.HasPrefix(s, "css="):
		return CSS(strings.TrimPrefix(s, "css="))
	case strings.HasPrefix(s, "text="):
		return XPath(fmt.Sprintf("//*[contains(text(), %s)]", xpathLiteral(strings.TrimPrefix(s, "text="))))
	case strings.HasPrefix(s, "/"), strings.HasPrefix(s, "("):
		return XPath(s)
	default:
		return CSS(s)
	}
}

// ParseLocators parses each entry, skipping blanks.
func ParseLocators(in []string) []Locator {
	out := make([]Locator, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s) == "" {
			continue
		}
		out = append(out, ParseLocator(s))
	}
	return out
}

// IsZero reports whether the locator is unset.
func (l Locator) IsZero() bool { return l.Value == "" }

func (l Locator) String() string {
	return string(l.Kind) + "=" + l.Value
}

// xpathLiteral quotes s for use inside an XPath expression.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	for i, p := range parts {
		parts[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(parts, `, "'", `) + ")"
}
