package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ChromeConfig configures the chromedp-backed browser.
type ChromeConfig struct {
	Headless    bool
	ExecPath    string
	UserAgent   string
	UserDataDir string
	// SessionFile is injected on start when it exists.
	SessionFile string
	LoadTimeout time.Duration
	// SettleDelay is waited after every navigation, including timed-out ones.
	SettleDelay time.Duration
	// MinNavInterval spaces consecutive navigations.
	MinNavInterval time.Duration
}

// Chrome implements Browser on a single chromedp tab. The process is started
// lazily on first use and lives until Close.
type Chrome struct {
	cfg     ChromeConfig
	limiter *rate.Limiter
	log     *zap.Logger

	mu          sync.Mutex
	started     bool
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

var _ Browser = (*Chrome)(nil)

// NewChrome creates an unstarted Chrome.
func NewChrome(cfg ChromeConfig) *Chrome {
	limit := rate.Inf
	if cfg.MinNavInterval > 0 {
		limit = rate.Every(cfg.MinNavInterval)
	}
	return &Chrome{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		log:     zap.L().With(zap.String("component", "browser")),
	}
}

// stealthScript hides the automation flag and keeps tel: links and
// window.open("tel:...") from handing off to the operating system dialer.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
document.addEventListener('click', function (e) {
  var a = e.target && e.target.closest ? e.target.closest('a[href^="tel:"]') : null;
  if (a) { e.preventDefault(); }
}, true);
(function () {
  var open = window.open;
  window.open = function (url) {
    if (typeof url === 'string' && url.trim().toLowerCase().indexOf('tel:') === 0) { return null; }
    return open.apply(window, arguments);
  };
})();
`

// blockedRequests are failed at the network layer, which also catches
// script-driven navigations such as location.href = "tel:...".
var blockedRequests = []*fetch.RequestPattern{{URLPattern: "tel:*"}}

// failBlocked answers paused requests. Only blockedRequests are paused.
func failBlocked(tabCtx context.Context, log *zap.Logger) func(ev any) {
	return func(ev any) {
		e, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			err := chromedp.Run(tabCtx, fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient))
			if err != nil {
				log.Debug("browser: fail blocked request", zap.Error(err))
			}
		}()
	}
}

func (c *Chrome) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", c.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-features", "ExternalProtocolDialog"),
		chromedp.WindowSize(1366, 900),
	)
	if c.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.cfg.UserAgent))
	}
	if c.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.ExecPath))
	}
	if c.cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(c.cfg.UserDataDir))
	}
	return opts
}

// ensure starts the browser process once.
func (c *Chrome) ensure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), c.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	chromedp.ListenTarget(tabCtx, failBlocked(tabCtx, c.log))

	var cookies []SessionCookie
	if c.cfg.SessionFile != "" {
		s, err := LoadSession(c.cfg.SessionFile)
		if err != nil {
			c.log.Warn("browser: session not loaded, continuing anonymous", zap.Error(err))
		} else {
			cookies = s.Live(time.Now())
		}
	}

	// The first Run allocates the browser; it must use the tab context
	// itself so no deadline is attached to the process.
	err := chromedp.Run(tabCtx,
		network.Enable(),
		fetch.Enable().WithPatterns(blockedRequests),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			injected := 0
			for _, ck := range cookies {
				p := ck.param()
				if err := network.SetCookie(p.Name, p.Value).
					WithDomain(p.Domain).
					WithPath(p.Path).
					WithSecure(p.Secure).
					WithHTTPOnly(p.HTTPOnly).
					WithSameSite(p.SameSite).
					WithExpires(p.Expires).
					Do(ctx); err != nil {
					c.log.Warn("browser: cookie rejected", zap.String("name", ck.Name), zap.Error(err))
					continue
				}
				injected++
			}
			if len(cookies) > 0 {
				c.log.Info("browser: session restored", zap.Int("cookies", injected))
			}
			return nil
		}),
	)
	if err != nil {
		tabCancel()
		allocCancel()
		return NewError(KindUnavailable, "start", err)
	}

	c.tabCtx, c.tabCancel, c.allocCancel = tabCtx, tabCancel, allocCancel
	c.started = true
	return nil
}

// run executes actions on the tab, bounded by ctx's deadline and
// cancellation without tying the tab's lifetime to ctx.
func (c *Chrome) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	if err := c.ensure(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return classify(op, err)
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(c.tabCtx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(c.tabCtx)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() == context.Canceled {
		return NewError(KindUnavailable, op, ctx.Err())
	}
	return classify(op, err)
}

// Open navigates to url and waits the settle delay.
func (c *Chrome) Open(ctx context.Context, url string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return NewError(KindUnavailable, "open", err)
	}
	navCtx := ctx
	if c.cfg.LoadTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, c.cfg.LoadTimeout)
		defer cancel()
	}
	err := c.run(navCtx, "open", chromedp.Navigate(url))
	if err != nil && KindOf(err) != KindTimedOut {
		return err
	}
	if c.cfg.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return NewError(KindUnavailable, "open", ctx.Err())
		case <-time.After(c.cfg.SettleDelay):
		}
	}
	return err
}

// Title returns the document title.
func (c *Chrome) Title(ctx context.Context) (string, error) {
	var title string
	if err := c.run(ctx, "title", chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// queryJS resolves a locator to element nodes in page context.
const queryJS = `function (kind, sel) {
  var nodes = [];
  if (kind === "xpath") {
    var r = document.evaluate(sel, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
    for (var i = 0; i < r.snapshotLength; i++) { nodes.push(r.snapshotItem(i)); }
  } else {
    nodes = Array.prototype.slice.call(document.querySelectorAll(sel));
  }
  return nodes.filter(function (n) { return n.nodeType === 1; });
}`

const visibleJS = `function (e) {
  return !!(e.offsetWidth || e.offsetHeight || e.getClientRects().length);
}`

func script(loc Locator, body string) string {
	kind, _ := json.Marshal(string(loc.Kind))
	sel, _ := json.Marshal(loc.Value)
	return fmt.Sprintf(`(function () {
  var query = %s;
  var visible = %s;
  var nodes = query(%s, %s);
  %s
})()`, queryJS, visibleJS, kind, sel, body)
}

// FindAndClick clicks the first match.
func (c *Chrome) FindAndClick(ctx context.Context, loc Locator) (bool, error) {
	var clicked bool
	js := script(loc, `if (!nodes.length) { return false; }
  nodes[0].scrollIntoView({block: "center"});
  nodes[0].click();
  return true;`)
	if err := c.run(ctx, "find_and_click", chromedp.Evaluate(js, &clicked)); err != nil {
		return false, err
	}
	return clicked, nil
}

// ClickVisible clicks the index-th visible match.
func (c *Chrome) ClickVisible(ctx context.Context, loc Locator, index int) error {
	var clicked bool
	js := script(loc, fmt.Sprintf(`var vis = nodes.filter(visible);
  if (vis.length <= %d) { return false; }
  vis[%d].scrollIntoView({block: "center"});
  vis[%d].click();
  return true;`, index, index, index))
	if err := c.run(ctx, "click_visible", chromedp.Evaluate(js, &clicked)); err != nil {
		return err
	}
	if !clicked {
		return NewError(KindNotFound, "click_visible", eris.Errorf("no visible element %d for %s", index, loc))
	}
	return nil
}

type textResult struct {
	Found bool   `json:"found"`
	Text  string `json:"text"`
}

// ReadText returns the rendered text of the first match.
func (c *Chrome) ReadText(ctx context.Context, loc Locator) (string, error) {
	var res textResult
	js := script(loc, `if (!nodes.length) { return {found: false, text: ""}; }
  return {found: true, text: nodes[0].innerText || nodes[0].textContent || ""};`)
	if err := c.run(ctx, "read_text", chromedp.Evaluate(js, &res)); err != nil {
		return "", err
	}
	if !res.Found {
		return "", NewError(KindNotFound, "read_text", eris.Errorf("no element for %s", loc))
	}
	return res.Text, nil
}

// CountVisible counts visible matches.
func (c *Chrome) CountVisible(ctx context.Context, loc Locator) (int, error) {
	var n int
	js := script(loc, `return nodes.filter(visible).length;`)
	if err := c.run(ctx, "count_visible", chromedp.Evaluate(js, &n)); err != nil {
		return 0, err
	}
	return n, nil
}

// TypeText focuses the first match and sends keystrokes to it. A trailing
// "\r" submits like the Enter key.
func (c *Chrome) TypeText(ctx context.Context, loc Locator, text string) error {
	return c.run(ctx, "type_text", chromedp.SendKeys(loc.Value, text, chromedp.BySearch))
}

// CaptureSession opens loginURL, blocks on ready (typically an operator
// confirming the login finished) and snapshots every browser cookie.
func (c *Chrome) CaptureSession(ctx context.Context, loginURL string, ready func(context.Context) error) (*Session, error) {
	if err := c.run(ctx, "capture_open", chromedp.Navigate(loginURL)); err != nil && KindOf(err) != KindTimedOut {
		return nil, err
	}
	if err := ready(ctx); err != nil {
		return nil, eris.Wrap(err, "session: capture aborted")
	}

	var cookies []*network.Cookie
	err := c.run(ctx, "capture_cookies", chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	s := &Session{Cookies: make([]SessionCookie, 0, len(cookies))}
	for _, ck := range cookies {
		s.Cookies = append(s.Cookies, cookieFromNetwork(ck))
	}
	return s, nil
}

// Close shuts the tab and the browser process.
func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.tabCancel()
	c.allocCancel()
	c.started = false
	return nil
}
