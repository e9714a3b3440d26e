package extract

import (
	"time"

	"github.com/sells-group/outreach-cli/internal/browser"
)

// Strategy is the data-driven description of where contacts live on a
// listing page. Layout changes are handled by editing locators, not code.
type Strategy struct {
	// ExpiredMarkers are title substrings that mean the ad is gone. Matching
	// ignores case and accents.
	ExpiredMarkers []string
	// PhoneButton is the primary reveal control; PhoneText is the region it
	// unmasks.
	PhoneButton browser.Locator
	PhoneText   browser.Locator
	// ExpandButton expands a truncated description.
	ExpandButton browser.Locator
	// RevealTriggers are tried in order; every visible match is clicked.
	RevealTriggers []browser.Locator
	// DescriptionRegions are read and concatenated.
	DescriptionRegions []browser.Locator
	// BlockProbe is read to look for anti-bot challenge text. Zero disables
	// block detection.
	BlockProbe browser.Locator
}

// Timing holds the waits between page interactions. Zero values skip the
// wait.
type Timing struct {
	RevealWait   time.Duration
	ExpandWait   time.Duration
	ClickTimeout time.Duration
	ClickPause   time.Duration
}

// DefaultStrategy targets the current OLX listing layout.
func DefaultStrategy() Strategy {
	return Strategy{
		ExpiredMarkers: []string{"ops!", "não encontrado"},
		PhoneButton:    browser.XPath(`//*[@id="price-box-button-show-phone"]`),
		PhoneText:      browser.XPath(`//*[@id="price-box-container"]/div[2]/div[1]/span`),
		ExpandButton:   browser.XPath(`//*[@id="description-title"]/div/div[2]/div/button`),
		RevealTriggers: []browser.Locator{
			browser.CSS(`[data-element='button_show-phone']`),
			browser.XPath(`//*[@id="description-title"]//span[@role="button"]`),
			browser.XPath(`//*[contains(translate(text(), 'VER NÚMERO', 'ver número'), 'ver número')]`),
			browser.XPath(`//*[contains(text(), '...')]`),
		},
		DescriptionRegions: []browser.Locator{
			browser.XPath(`//*[@id='description-title']/div/div[2]/div/span/span/span`),
			browser.CSS(`[data-testid='ad-description']`),
			browser.XPath(`//*[@id="description-title"]/div/div[2]/div`),
		},
		BlockProbe: browser.CSS("body"),
	}
}

// DefaultTiming mirrors the pacing the marketplace tolerates.
func DefaultTiming() Timing {
	return Timing{
		RevealWait:   2 * time.Second,
		ExpandWait:   time.Second,
		ClickTimeout: 2 * time.Second,
		ClickPause:   800 * time.Millisecond,
	}
}
