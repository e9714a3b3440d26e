package browser

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/rotisserie/eris"
)

// Session is the persisted authenticated state of the marketplace account.
// The layout matches a browser "storage state" document so files captured by
// other tooling can be reused.
type Session struct {
	Cookies []SessionCookie   `json:"cookies"`
	Origins []json.RawMessage `json:"origins,omitempty"`
}

// SessionCookie is one persisted cookie. Expires is seconds since the epoch;
// -1 or 0 marks a session cookie.
type SessionCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// LoadSession reads a session artifact from path.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "session: read %s", path)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrapf(err, "session: parse %s", path)
	}
	return &s, nil
}

// Save writes the session artifact to path, creating parent directories.
func (s *Session) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return eris.Wrapf(err, "session: mkdir %s", dir)
		}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return eris.Wrap(err, "session: marshal")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return eris.Wrapf(err, "session: write %s", path)
	}
	return nil
}

// Live returns the cookies that have not expired at now.
func (s *Session) Live(now time.Time) []SessionCookie {
	var out []SessionCookie
	for _, c := range s.Cookies {
		if c.Expires > 0 && time.Unix(int64(c.Expires), 0).Before(now) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// EarliestExpiry returns the soonest expiry among persistent cookies.
func (s *Session) EarliestExpiry() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, c := range s.Cookies {
		if c.Expires <= 0 {
			continue
		}
		t := time.Unix(int64(c.Expires), 0)
		if !found || t.Before(earliest) {
			earliest = t
			found = true
		}
	}
	return earliest, found
}

func (c SessionCookie) param() *network.CookieParam {
	p := &network.CookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
	}
	if p.Path == "" {
		p.Path = "/"
	}
	if c.Expires > 0 {
		ts := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
		p.Expires = &ts
	}
	switch strings.ToLower(c.SameSite) {
	case "strict":
		p.SameSite = network.CookieSameSiteStrict
	case "lax":
		p.SameSite = network.CookieSameSiteLax
	case "none":
		p.SameSite = network.CookieSameSiteNone
	}
	return p
}

func cookieFromNetwork(c *network.Cookie) SessionCookie {
	expires := c.Expires
	if c.Session {
		expires = -1
	}
	return SessionCookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  expires,
		HTTPOnly: c.HTTPOnly,
		Secure:   c.Secure,
		SameSite: string(c.SameSite),
	}
}
