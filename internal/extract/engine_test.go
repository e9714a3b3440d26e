package extract

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/browser"
	"github.com/sells-group/outreach-cli/internal/browser/browsertest"
	"github.com/sells-group/outreach-cli/internal/model"
)

const listingURL = "https://www.olx.com.br/anuncio/casa-123"

var (
	locButton  = browser.CSS("#phone-btn")
	locPhone   = browser.CSS("#phone")
	locExpand  = browser.CSS("#expand")
	locTrigger = browser.CSS(".reveal")
	locDesc    = browser.CSS("#desc")
	locDescAlt = browser.CSS("[data-testid='ad-description']")
	locBody    = browser.CSS("body")
)

func testStrategy() Strategy {
	return Strategy{
		ExpiredMarkers:     DefaultStrategy().ExpiredMarkers,
		PhoneButton:        locButton,
		PhoneText:          locPhone,
		ExpandButton:       locExpand,
		RevealTriggers:     []browser.Locator{locTrigger},
		DescriptionRegions: []browser.Locator{locDesc, locDescAlt},
		BlockProbe:         locBody,
	}
}

func newEngine(f *browsertest.Fake) *Engine {
	return NewEngine(f, testStrategy(), Timing{})
}

func TestExtract_ButtonAndDescriptionMerge(t *testing.T) {
	f := browsertest.New()
	p := f.Add(listingURL, browsertest.NewPage("Casa 3 quartos - OLX"))
	p.Text[locBody] = "Casa 3 quartos"
	p.OnClick[locButton] = func(p *browsertest.Page) { p.Text[locPhone] = "(12) 99887-7654" }
	p.Text[locDesc] = "Ligue 12 99887-7654 ou 12 3221-0000"

	res := newEngine(f).Extract(context.Background(), listingURL)

	assert.False(t, res.Expired)
	assert.True(t, res.Conclusive())
	assert.Empty(t, res.Error)
	assert.Equal(t, []model.Contact{
		{Digits: "12998877654", Origin: model.OriginButton},
		{Digits: "1232210000", Origin: model.OriginDescription},
	}, res.Contacts)
}

func TestExtract_ExpiredShortCircuits(t *testing.T) {
	f := browsertest.New()
	p := f.Add(listingURL, browsertest.NewPage("Ops! Anúncio NÃO encontrado"))
	p.OnClick[locButton] = func(p *browsertest.Page) { p.Text[locPhone] = "12 99887-7654" }
	p.Visible[locTrigger] = 3

	res := newEngine(f).Extract(context.Background(), listingURL)

	assert.True(t, res.Expired)
	assert.Empty(t, res.Contacts)
	assert.Equal(t, []string{"open " + listingURL}, f.Recorded())
}

func TestExtract_NoContactsIsConclusive(t *testing.T) {
	f := browsertest.New()
	f.Add(listingURL, browsertest.NewPage("Sofá retrátil"))

	res := newEngine(f).Extract(context.Background(), listingURL)

	assert.False(t, res.Expired)
	assert.Empty(t, res.Contacts)
	assert.True(t, res.Conclusive())
	assert.Empty(t, res.Failures)
}

func TestExtract_OpenTimeoutContinues(t *testing.T) {
	f := browsertest.New()
	p := f.Add(listingURL, browsertest.NewPage("Moto"))
	p.OpenErr = browser.NewError(browser.KindTimedOut, "open", context.DeadlineExceeded)
	p.Text[locDescAlt] = "zap 98765-4321"

	res := newEngine(f).Extract(context.Background(), listingURL)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, "open", res.Failures[0].Step)
	assert.Equal(t, browser.KindTimedOut, res.Failures[0].Kind)
	assert.Contains(t, res.Error, "open:")
	assert.True(t, res.Conclusive())
	assert.Equal(t, []model.Contact{{Digits: "987654321", Origin: model.OriginDescription}}, res.Contacts)
}

func TestExtract_PageLoadErrorIsConclusive(t *testing.T) {
	for _, openErr := range []error{
		browser.NewError(browser.KindPageError, "open", eris.New("page load error net::ERR_NAME_NOT_RESOLVED")),
		eris.New("page load error net::ERR_CONNECTION_REFUSED"),
	} {
		f := browsertest.New()
		p := f.Add(listingURL, browsertest.NewPage(""))
		p.OpenErr = openErr

		res := newEngine(f).Extract(context.Background(), listingURL)

		assert.False(t, res.Unavailable)
		assert.True(t, res.Conclusive(), "a dead listing must be concluded, not retried forever")
		assert.Empty(t, res.Contacts)
		require.NotEmpty(t, res.Failures)
		assert.Equal(t, "open", res.Failures[0].Step)
		assert.Equal(t, browser.KindPageError, res.Failures[0].Kind)
		assert.Contains(t, res.Error, "net::ERR_")
	}
}

func TestExtract_UnavailableAborts(t *testing.T) {
	f := browsertest.New()
	f.Down = true

	res := newEngine(f).Extract(context.Background(), listingURL)

	assert.True(t, res.Unavailable)
	assert.False(t, res.Conclusive())
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, []string{"open " + listingURL}, f.Recorded())
}

func TestExtract_BlockedPage(t *testing.T) {
	f := browsertest.New()
	p := f.Add(listingURL, browsertest.NewPage("olx.com.br"))
	p.Text[locBody] = "Checking your browser before accessing olx.com.br"
	p.Text[locDesc] = "12 99887-7654"

	res := newEngine(f).Extract(context.Background(), listingURL)

	assert.True(t, res.Blocked)
	assert.False(t, res.Conclusive())
	assert.Empty(t, res.Contacts)
	assert.Contains(t, res.Error, "blocked")
}

func TestExtract_RevealTriggersClickedLastToFirst(t *testing.T) {
	f := browsertest.New()
	p := f.Add(listingURL, browsertest.NewPage("Apartamento"))
	p.Visible[locTrigger] = 2
	p.Text[locExpand] = "ver mais"
	p.Text[locDesc] = "contato: 11 9..."
	p.OnClick[locTrigger] = func(p *browsertest.Page) { p.Text[locDesc] = "contato: 11 91234-5678" }

	res := newEngine(f).Extract(context.Background(), listingURL)

	assert.Equal(t, []string{
		"open " + listingURL,
		"click " + locExpand.String(),
		"click " + locTrigger.String() + "#1",
		"click " + locTrigger.String() + "#0",
	}, f.Recorded())
	assert.Equal(t, []model.Contact{{Digits: "11912345678", Origin: model.OriginDescription}}, res.Contacts)
}

func TestExtract_TolerantStepFailures(t *testing.T) {
	f := browsertest.New()
	p := f.Add(listingURL, browsertest.NewPage("Bicicleta"))
	p.Text[locButton] = "mostrar número"
	p.Errs[locPhone] = browser.NewError(browser.KindTimedOut, "read_text", eris.New("slow"))
	p.Errs[locDesc] = browser.NewError(browser.KindTimedOut, "read_text", eris.New("slow"))
	p.Text[locDescAlt] = "fixo 3221-0000"

	res := newEngine(f).Extract(context.Background(), listingURL)

	require.Len(t, res.Failures, 2)
	assert.Equal(t, "phone_text", res.Failures[0].Step)
	assert.Equal(t, "description[0]", res.Failures[1].Step)
	assert.True(t, res.Conclusive())
	assert.Equal(t, []model.Contact{{Digits: "32210000", Origin: model.OriginDescription}}, res.Contacts)
}

func TestExtract_ButtonPriorityOverDescription(t *testing.T) {
	f := browsertest.New()
	p := f.Add(listingURL, browsertest.NewPage("Carro"))
	p.OnClick[locButton] = func(p *browsertest.Page) { p.Text[locPhone] = "12 3221-0000" }
	p.Text[locDesc] = "12 3221-0000 / 12 3221-0000"

	res := newEngine(f).Extract(context.Background(), listingURL)

	assert.Equal(t, []model.Contact{{Digits: "1232210000", Origin: model.OriginButton}}, res.Contacts)
}

func TestExtract_CancelledContext(t *testing.T) {
	f := browsertest.New()
	f.Add(listingURL, browsertest.NewPage("Casa"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newEngine(f).Extract(ctx, listingURL)
	assert.True(t, res.Unavailable)
}
