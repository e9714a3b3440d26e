package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold lower-cases s and strips diacritics so "Não" matches "nao".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// IsExpiredTitle reports whether title contains any of the markers.
func IsExpiredTitle(title string, markers []string) bool {
	t := fold(title)
	if t == "" {
		return false
	}
	for _, m := range markers {
		if m = fold(m); m != "" && strings.Contains(t, m) {
			return true
		}
	}
	return false
}

// BlockType describes the kind of anti-bot page detected.
type BlockType string

const (
	BlockNone      BlockType = ""
	BlockChallenge BlockType = "challenge"
	BlockCaptcha   BlockType = "captcha"
	BlockDenied    BlockType = "denied"
)

var (
	challengeTitles = []string{"just a moment", "attention required", "um momento"}
	deniedTitles    = []string{"access denied", "403 forbidden", "acesso negado"}
	challengeBodies = []string{
		"checking your browser",
		"verify you are human",
		"verifique se voce e humano",
		"confirme que voce e humano",
		"enable javascript and cookies to continue",
	}
)

// DetectBlock checks the rendered title and body text of a page for signs of
// an anti-bot interstitial instead of the listing.
func DetectBlock(title, body string) (bool, BlockType) {
	t := fold(title)
	for _, sig := range challengeTitles {
		if strings.Contains(t, sig) {
			return true, BlockChallenge
		}
	}
	for _, sig := range deniedTitles {
		if strings.Contains(t, sig) {
			return true, BlockDenied
		}
	}

	b := fold(body)
	for _, sig := range challengeBodies {
		if strings.Contains(b, sig) {
			return true, BlockChallenge
		}
	}

	// A real listing mentions captcha at most in passing; a short page that
	// does is the captcha itself.
	if len(b) < 2000 && (strings.Contains(b, "captcha") || strings.Contains(t, "captcha")) {
		return true, BlockCaptcha
	}
	return false, BlockNone
}
