package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/browser"
	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/extract"
	"github.com/sells-group/outreach-cli/internal/messaging"
	"github.com/sells-group/outreach-cli/internal/orchestrator"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/sequencer"
	"github.com/sells-group/outreach-cli/internal/store"
	anthropicpkg "github.com/sells-group/outreach-cli/pkg/anthropic"
)

// appEnv holds everything the cycle, serve and single-lead commands share.
type appEnv struct {
	Store        store.Store
	Browser      *browser.Chrome
	Sequencer    *sequencer.Sequencer
	Orchestrator *orchestrator.Orchestrator
}

// Close releases the browser and the store.
func (a *appEnv) Close() {
	if a.Browser != nil {
		if err := a.Browser.Close(); err != nil {
			zap.L().Warn("close browser", zap.Error(err))
		}
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}

// initApp validates config for mode and wires store, browser, messaging,
// sequencer and orchestrator. Callers should defer env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	chrome := browser.NewChrome(chromeConfig(cfg.Browser))

	var inference *messaging.Inference
	if cfg.Anthropic.Key != "" {
		inference = messaging.NewInference(anthropicpkg.NewClient(cfg.Anthropic.Key), messaging.InferenceConfig{
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
			Retry:     resilience.FromRetryConfig(cfg.Anthropic.MaxAttempts, cfg.Anthropic.InitialBackoff, 0),
			Breaker: resilience.NewBreaker(resilience.BreakerConfig{
				Name:             "anthropic",
				FailureThreshold: cfg.Anthropic.BreakerThreshold,
				Cooldown:         cfg.Anthropic.BreakerCooldown,
			}),
		})
	} else {
		zap.L().Debug("OUTREACH_ANTHROPIC_KEY not set, reading replies from the chat DOM")
	}

	messenger := messaging.NewChatClient(chrome, chatLocators(cfg.Chat), messaging.ChatTiming{
		OpenWait:      cfg.Chat.OpenWait,
		ActionTimeout: cfg.Chat.ActionTimeout,
		ConfirmWait:   cfg.Chat.ConfirmWait,
	}, replyReader(cfg.Chat, inference))

	var composer messaging.Composer = messaging.StaticComposer{}
	if cfg.Outreach.Personalize && inference != nil {
		composer = messaging.PersonaComposer{Inference: inference, Persona: cfg.Outreach.PersonaPrompt}
		zap.L().Info("message personalization enabled")
	}

	seq := sequencer.New(st, messenger, composer, cfg.Location())
	engine := extract.NewEngine(chrome, extractStrategy(cfg.Extract), extractTiming(cfg.Extract))
	orc := orchestrator.New(st, engine, seq, &orchestrator.Control{}, orchestrator.Config{
		PhoneDelay:      cfg.Cycle.PhoneDelay,
		OutreachDelay:   cfg.Cycle.OutreachDelay,
		FollowUpDelay:   cfg.Cycle.FollowUpDelay,
		PausePoll:       cfg.Cycle.PausePoll,
		FollowUpEnabled: cfg.Outreach.FollowUpEnabled,
	})

	return &appEnv{Store: st, Browser: chrome, Sequencer: seq, Orchestrator: orc}, nil
}

func chromeConfig(c config.BrowserConfig) browser.ChromeConfig {
	return browser.ChromeConfig{
		Headless:       c.Headless,
		ExecPath:       c.ExecPath,
		UserAgent:      c.UserAgent,
		UserDataDir:    c.UserDataDir,
		SessionFile:    c.SessionFile,
		LoadTimeout:    c.LoadTimeout,
		SettleDelay:    c.SettleDelay,
		MinNavInterval: c.MinNavInterval,
	}
}

// extractStrategy overlays configured locators on the built-in OLX layout.
func extractStrategy(c config.ExtractConfig) extract.Strategy {
	s := extract.DefaultStrategy()
	if len(c.ExpiredMarkers) > 0 {
		s.ExpiredMarkers = c.ExpiredMarkers
	}
	if c.PhoneButton != "" {
		s.PhoneButton = browser.ParseLocator(c.PhoneButton)
	}
	if c.PhoneText != "" {
		s.PhoneText = browser.ParseLocator(c.PhoneText)
	}
	if c.ExpandButton != "" {
		s.ExpandButton = browser.ParseLocator(c.ExpandButton)
	}
	if len(c.RevealTriggers) > 0 {
		s.RevealTriggers = browser.ParseLocators(c.RevealTriggers)
	}
	if len(c.DescriptionRegions) > 0 {
		s.DescriptionRegions = browser.ParseLocators(c.DescriptionRegions)
	}
	if c.BlockProbe != "" {
		s.BlockProbe = browser.ParseLocator(c.BlockProbe)
	}
	return s
}

func extractTiming(c config.ExtractConfig) extract.Timing {
	return extract.Timing{
		RevealWait:   c.RevealWait,
		ExpandWait:   c.ExpandWait,
		ClickTimeout: c.ClickTimeout,
		ClickPause:   c.ClickPause,
	}
}

func chatLocators(c config.ChatConfig) messaging.ChatLocators {
	return messaging.ChatLocators{
		OpenButton:   browser.ParseLocator(c.OpenButton),
		Input:        browser.ParseLocator(c.Input),
		SendButton:   browser.ParseLocator(c.SendButton),
		LastOutgoing: browser.ParseLocator(c.LastOutgoing),
	}
}

// replyReader prefers transcript classification when an inference client
// is configured.
func replyReader(c config.ChatConfig, inference *messaging.Inference) messaging.ReplyReader {
	if inference != nil && c.UseInferenceRead && c.Transcript != "" {
		return messaging.InferenceReplyReader{Inference: inference, Transcript: browser.ParseLocator(c.Transcript)}
	}
	return messaging.DOMReplyReader{
		Incoming:     browser.ParseLocator(c.Incoming),
		LastIncoming: browser.ParseLocator(c.LastIncoming),
	}
}
