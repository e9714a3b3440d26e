// Package browsertest provides a scripted in-memory Browser for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/browser"
)

// Page is the scripted state of one URL.
type Page struct {
	Title string
	// OpenErr is returned by Open; the page still becomes current.
	OpenErr error
	// Text maps a locator to its rendered text. Absent means not found.
	Text map[browser.Locator]string
	// Visible maps a locator to its number of visible matches.
	Visible map[browser.Locator]int
	// OnClick runs when a locator is clicked, letting a test reveal text.
	OnClick map[browser.Locator]func(p *Page)
	// Errs forces every operation on a locator to fail.
	Errs map[browser.Locator]error
	// Typed records keystrokes sent per locator.
	Typed map[browser.Locator][]string
}

// NewPage returns an empty page with the given title.
func NewPage(title string) *Page {
	return &Page{
		Title:   title,
		Text:    map[browser.Locator]string{},
		Visible: map[browser.Locator]int{},
		OnClick: map[browser.Locator]func(p *Page){},
		Errs:    map[browser.Locator]error{},
		Typed:   map[browser.Locator][]string{},
	}
}

func (p *Page) present(loc browser.Locator) bool {
	if _, ok := p.Text[loc]; ok {
		return true
	}
	return p.Visible[loc] > 0 || p.OnClick[loc] != nil
}

// Fake is a scripted browser.Browser.
type Fake struct {
	mu      sync.Mutex
	Pages   map[string]*Page
	current *Page
	// Down makes every call fail with KindUnavailable.
	Down bool
	// Ops records every call in order, e.g. "open <url>", "click css=x".
	Ops []string
}

var _ browser.Browser = (*Fake)(nil)

// New returns a Fake with no pages.
func New() *Fake {
	return &Fake{Pages: map[string]*Page{}}
}

// Add registers a page under url and returns it.
func (f *Fake) Add(url string, p *Page) *Page {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pages[url] = p
	return p
}

// Recorded returns a copy of the recorded operations.
func (f *Fake) Recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Ops...)
}

func (f *Fake) record(format string, args ...any) {
	f.Ops = append(f.Ops, fmt.Sprintf(format, args...))
}

func (f *Fake) check(op string, loc *browser.Locator) (*Page, error) {
	if f.Down {
		return nil, browser.NewError(browser.KindUnavailable, op, eris.New("browser down"))
	}
	if f.current == nil {
		return nil, browser.NewError(browser.KindUnavailable, op, eris.New("no page open"))
	}
	if loc != nil {
		if err := f.current.Errs[*loc]; err != nil {
			return nil, err
		}
	}
	return f.current, nil
}

func (f *Fake) Open(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("open %s", url)
	if f.Down {
		return browser.NewError(browser.KindUnavailable, "open", eris.New("browser down"))
	}
	if err := ctx.Err(); err != nil {
		return browser.NewError(browser.KindUnavailable, "open", err)
	}
	p, ok := f.Pages[url]
	if !ok {
		p = NewPage("")
	}
	f.current = p
	return p.OpenErr
}

func (f *Fake) Title(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.check("title", nil)
	if err != nil {
		return "", err
	}
	return p.Title, nil
}

func (f *Fake) FindAndClick(_ context.Context, loc browser.Locator) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.check("find_and_click", &loc)
	if err != nil {
		return false, err
	}
	if !p.present(loc) {
		return false, nil
	}
	f.record("click %s", loc)
	if fn := p.OnClick[loc]; fn != nil {
		fn(p)
	}
	return true, nil
}

func (f *Fake) ClickVisible(_ context.Context, loc browser.Locator, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.check("click_visible", &loc)
	if err != nil {
		return err
	}
	if index >= p.Visible[loc] {
		return browser.NewError(browser.KindNotFound, "click_visible", eris.Errorf("no element %d", index))
	}
	f.record("click %s#%d", loc, index)
	if fn := p.OnClick[loc]; fn != nil {
		fn(p)
	}
	return nil
}

func (f *Fake) ReadText(_ context.Context, loc browser.Locator) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.check("read_text", &loc)
	if err != nil {
		return "", err
	}
	text, ok := p.Text[loc]
	if !ok {
		return "", browser.NewError(browser.KindNotFound, "read_text", eris.Errorf("no element for %s", loc))
	}
	return text, nil
}

func (f *Fake) CountVisible(_ context.Context, loc browser.Locator) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.check("count_visible", &loc)
	if err != nil {
		return 0, err
	}
	return p.Visible[loc], nil
}

func (f *Fake) TypeText(_ context.Context, loc browser.Locator, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.check("type_text", &loc)
	if err != nil {
		return err
	}
	f.record("type %s", loc)
	p.Typed[loc] = append(p.Typed[loc], text)
	return nil
}
