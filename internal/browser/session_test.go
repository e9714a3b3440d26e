package browser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSession = `{
  "cookies": [
    {"name": "sid", "value": "abc", "domain": ".olx.com.br", "path": "/", "expires": 4102444800, "httpOnly": true, "secure": true, "sameSite": "Lax"},
    {"name": "tmp", "value": "x", "domain": ".olx.com.br", "path": "/", "expires": -1, "httpOnly": false, "secure": false},
    {"name": "old", "value": "y", "domain": ".olx.com.br", "path": "/", "expires": 946684800, "httpOnly": false, "secure": false}
  ],
  "origins": []
}`

func TestLoadSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleSession), 0o600))

	s, err := LoadSession(path)
	require.NoError(t, err)
	require.Len(t, s.Cookies, 3)
	assert.Equal(t, "sid", s.Cookies[0].Name)
	assert.True(t, s.Cookies[0].HTTPOnly)

	live := s.Live(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Len(t, live, 2)
	assert.Equal(t, "sid", live[0].Name)
	assert.Equal(t, "tmp", live[1].Name)

	exp, ok := s.EarliestExpiry()
	require.True(t, ok)
	assert.Equal(t, int64(946684800), exp.Unix())
}

func TestLoadSession_Errors(t *testing.T) {
	_, err := LoadSession(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err = LoadSession(path)
	assert.Error(t, err)
}

func TestSession_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	s := &Session{Cookies: []SessionCookie{{Name: "sid", Value: "abc", Domain: "olx.com.br", Path: "/", Expires: -1}}}
	require.NoError(t, s.Save(path))

	got, err := LoadSession(path)
	require.NoError(t, err)
	assert.Equal(t, s.Cookies, got.Cookies)

	_, ok := got.EarliestExpiry()
	assert.False(t, ok)
}

func TestSessionCookie_Param(t *testing.T) {
	p := SessionCookie{Name: "sid", Value: "abc", Domain: ".olx.com.br", Expires: 4102444800, SameSite: "Lax", Secure: true}.param()
	assert.Equal(t, "/", p.Path)
	assert.Equal(t, network.CookieSameSiteLax, p.SameSite)
	require.NotNil(t, p.Expires)
	assert.True(t, p.Secure)

	p = SessionCookie{Name: "tmp", Expires: -1}.param()
	assert.Nil(t, p.Expires)
	assert.Equal(t, network.CookieSameSite(""), p.SameSite)
}

func TestCookieFromNetwork(t *testing.T) {
	c := cookieFromNetwork(&network.Cookie{Name: "sid", Value: "v", Domain: "d", Path: "/", Session: true, SameSite: network.CookieSameSiteNone})
	assert.Equal(t, float64(-1), c.Expires)
	assert.Equal(t, "None", c.SameSite)
}
