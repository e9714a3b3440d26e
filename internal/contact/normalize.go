// Package contact turns noisy listing text into a deduplicated set of phone contacts.
package contact

import (
	"regexp"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
)

const (
	minDigits = 8
	maxDigits = 11
)

// phonePattern matches an optional +55 country prefix, an optional (possibly
// parenthesized, possibly 0-prefixed) area code, then either a 9-digit mobile
// (9 + 4 + 4) or an 8-digit landline (4 + 4), blocks separated by a space or hyphen.
var phonePattern = regexp.MustCompile(`(?:\+?55\s?)?(?:\(?0?[1-9]{2}\)?\s?)?(?:9\d{4}[-\s]?\d{4}|\d{4}[-\s]?\d{4})`)

// Normalize scans text for phone-shaped substrings and returns digit-only
// candidates in order of first appearance. Candidates outside [8,11] digits are
// dropped and repeats keep their first position. Origin is left for the caller.
func Normalize(text string) []model.Contact {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []model.Contact
	seen := make(map[string]bool)
	for _, match := range phonePattern.FindAllString(text, -1) {
		digits := onlyDigits(match)
		if len(digits) < minDigits || len(digits) > maxDigits {
			continue
		}
		if seen[digits] {
			continue
		}
		seen[digits] = true
		out = append(out, model.Contact{Digits: digits})
	}
	return out
}

// Merge appends found to existing, tagging each new entry with origin and
// skipping digit strings already present. Entries already in existing keep
// their origin, so earlier sources win.
func Merge(existing, found []model.Contact, origin model.ContactOrigin) []model.Contact {
	seen := make(map[string]bool, len(existing)+len(found))
	for _, c := range existing {
		seen[c.Digits] = true
	}
	for _, c := range found {
		if seen[c.Digits] {
			continue
		}
		seen[c.Digits] = true
		c.Origin = origin
		existing = append(existing, c)
	}
	return existing
}

// Valid reports whether digits is a digit-only string of acceptable length.
func Valid(digits string) bool {
	if len(digits) < minDigits || len(digits) > maxDigits {
		return false
	}
	return onlyDigits(digits) == digits
}

func onlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
