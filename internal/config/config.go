package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Chat      ChatConfig      `yaml:"chat" mapstructure:"chat"`
	Outreach  OutreachConfig  `yaml:"outreach" mapstructure:"outreach"`
	Cycle     CycleConfig     `yaml:"cycle" mapstructure:"cycle"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Schedule  ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// BrowserConfig configures the automated browser session.
type BrowserConfig struct {
	Headless       bool          `yaml:"headless" mapstructure:"headless"`
	ExecPath       string        `yaml:"exec_path" mapstructure:"exec_path"`
	UserAgent      string        `yaml:"user_agent" mapstructure:"user_agent"`
	UserDataDir    string        `yaml:"user_data_dir" mapstructure:"user_data_dir"`
	SessionFile    string        `yaml:"session_file" mapstructure:"session_file"`
	LoginURL       string        `yaml:"login_url" mapstructure:"login_url"`
	LoadTimeout    time.Duration `yaml:"load_timeout" mapstructure:"load_timeout"`
	SettleDelay    time.Duration `yaml:"settle_delay" mapstructure:"settle_delay"`
	MinNavInterval time.Duration `yaml:"min_nav_interval" mapstructure:"min_nav_interval"`
}

// ExtractConfig holds the listing-page locators and reveal pacing. Locators
// use the textual form accepted by browser.ParseLocator.
type ExtractConfig struct {
	ExpiredMarkers     []string      `yaml:"expired_markers" mapstructure:"expired_markers"`
	PhoneButton        string        `yaml:"phone_button" mapstructure:"phone_button"`
	PhoneText          string        `yaml:"phone_text" mapstructure:"phone_text"`
	ExpandButton       string        `yaml:"expand_button" mapstructure:"expand_button"`
	RevealTriggers     []string      `yaml:"reveal_triggers" mapstructure:"reveal_triggers"`
	DescriptionRegions []string      `yaml:"description_regions" mapstructure:"description_regions"`
	BlockProbe         string        `yaml:"block_probe" mapstructure:"block_probe"`
	RevealWait         time.Duration `yaml:"reveal_wait" mapstructure:"reveal_wait"`
	ExpandWait         time.Duration `yaml:"expand_wait" mapstructure:"expand_wait"`
	ClickTimeout       time.Duration `yaml:"click_timeout" mapstructure:"click_timeout"`
	ClickPause         time.Duration `yaml:"click_pause" mapstructure:"click_pause"`
}

// ChatConfig holds the listing chat locators.
type ChatConfig struct {
	OpenButton       string        `yaml:"open_button" mapstructure:"open_button"`
	Input            string        `yaml:"input" mapstructure:"input"`
	SendButton       string        `yaml:"send_button" mapstructure:"send_button"`
	Transcript       string        `yaml:"transcript" mapstructure:"transcript"`
	Incoming         string        `yaml:"incoming" mapstructure:"incoming"`
	LastIncoming     string        `yaml:"last_incoming" mapstructure:"last_incoming"`
	LastOutgoing     string        `yaml:"last_outgoing" mapstructure:"last_outgoing"`
	OpenWait         time.Duration `yaml:"open_wait" mapstructure:"open_wait"`
	ActionTimeout    time.Duration `yaml:"action_timeout" mapstructure:"action_timeout"`
	ConfirmWait      time.Duration `yaml:"confirm_wait" mapstructure:"confirm_wait"`
	UseInferenceRead bool          `yaml:"use_inference_read" mapstructure:"use_inference_read"`
}

// OutreachConfig configures message sequencing.
type OutreachConfig struct {
	Personalize     bool   `yaml:"personalize" mapstructure:"personalize"`
	PersonaPrompt   string `yaml:"persona_prompt" mapstructure:"persona_prompt"`
	FollowUpEnabled bool   `yaml:"follow_up_enabled" mapstructure:"follow_up_enabled"`
	Timezone        string `yaml:"timezone" mapstructure:"timezone"`
}

// CycleConfig configures sweep pacing.
type CycleConfig struct {
	PhoneDelay    time.Duration `yaml:"phone_delay" mapstructure:"phone_delay"`
	OutreachDelay time.Duration `yaml:"outreach_delay" mapstructure:"outreach_delay"`
	FollowUpDelay time.Duration `yaml:"follow_up_delay" mapstructure:"follow_up_delay"`
	PausePoll     time.Duration `yaml:"pause_poll" mapstructure:"pause_poll"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key              string        `yaml:"key" mapstructure:"key"`
	Model            string        `yaml:"model" mapstructure:"model"`
	MaxTokens        int64         `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxAttempts      int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff   time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	BreakerThreshold int           `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown" mapstructure:"breaker_cooldown"`
}

// ScheduleConfig configures the daily cycle trigger.
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Cron    string `yaml:"cron" mapstructure:"cron"`
}

// ServerConfig configures the control surface.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "outreach.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8765)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173", "http://localhost:5174"})

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.session_file", "olx_session.json")
	v.SetDefault("browser.login_url", "https://conta.olx.com.br/acesso")
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("browser.load_timeout", 30*time.Second)
	v.SetDefault("browser.settle_delay", 4*time.Second)
	v.SetDefault("browser.min_nav_interval", 3*time.Second)

	v.SetDefault("extract.expired_markers", []string{"ops!", "não encontrado"})
	v.SetDefault("extract.phone_button", `//*[@id="price-box-button-show-phone"]`)
	v.SetDefault("extract.phone_text", `//*[@id="price-box-container"]/div[2]/div[1]/span`)
	v.SetDefault("extract.expand_button", `//*[@id="description-title"]/div/div[2]/div/button`)
	v.SetDefault("extract.reveal_triggers", []string{
		`[data-element='button_show-phone']`,
		`//*[@id="description-title"]//span[@role="button"]`,
		`//*[contains(translate(text(), 'VER NÚMERO', 'ver número'), 'ver número')]`,
		`//*[contains(text(), '...')]`,
	})
	v.SetDefault("extract.description_regions", []string{
		`//*[@id='description-title']/div/div[2]/div/span/span/span`,
		`[data-testid='ad-description']`,
		`//*[@id="description-title"]/div/div[2]/div`,
	})
	v.SetDefault("extract.block_probe", "body")
	v.SetDefault("extract.reveal_wait", 2*time.Second)
	v.SetDefault("extract.expand_wait", time.Second)
	v.SetDefault("extract.click_timeout", 2*time.Second)
	v.SetDefault("extract.click_pause", 800*time.Millisecond)

	v.SetDefault("chat.open_button", `[data-element='button_reply-chat']`)
	v.SetDefault("chat.input", `textarea[name='message']`)
	v.SetDefault("chat.send_button", `[data-testid='chat-send-button']`)
	v.SetDefault("chat.transcript", `[data-testid='chat-messages']`)
	v.SetDefault("chat.incoming", `//*[@data-testid='message-received']`)
	v.SetDefault("chat.last_incoming", `(//*[@data-testid='message-received'])[last()]`)
	v.SetDefault("chat.last_outgoing", `(//*[@data-testid='message-sent'])[last()]`)
	v.SetDefault("chat.open_wait", 3*time.Second)
	v.SetDefault("chat.action_timeout", 10*time.Second)
	v.SetDefault("chat.confirm_wait", 2*time.Second)
	v.SetDefault("chat.use_inference_read", true)

	v.SetDefault("outreach.personalize", false)
	v.SetDefault("outreach.follow_up_enabled", false)
	v.SetDefault("outreach.timezone", "UTC")

	v.SetDefault("cycle.phone_delay", 5*time.Second)
	v.SetDefault("cycle.outreach_delay", 8*time.Second)
	v.SetDefault("cycle.follow_up_delay", 8*time.Second)
	v.SetDefault("cycle.pause_poll", time.Second)

	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.max_attempts", 3)
	v.SetDefault("anthropic.initial_backoff", time.Second)
	v.SetDefault("anthropic.breaker_threshold", 5)
	v.SetDefault("anthropic.breaker_cooldown", 5*time.Minute)

	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.cron", "0 9 * * *")
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode needs. Modes: "serve",
// "cycle", "extract", "outreach", "session". All problems are reported
// together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}

	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"cycle.phone_delay", c.Cycle.PhoneDelay},
		{"cycle.outreach_delay", c.Cycle.OutreachDelay},
		{"cycle.follow_up_delay", c.Cycle.FollowUpDelay},
		{"browser.load_timeout", c.Browser.LoadTimeout},
		{"browser.settle_delay", c.Browser.SettleDelay},
		{"extract.reveal_wait", c.Extract.RevealWait},
		{"extract.click_timeout", c.Extract.ClickTimeout},
	} {
		if d.val < 0 {
			errs = append(errs, d.key+" must be >= 0")
		}
	}

	if _, err := time.LoadLocation(c.Outreach.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("outreach.timezone %q is not a known zone", c.Outreach.Timezone))
	}
	if c.Outreach.Personalize && c.Anthropic.Key == "" {
		errs = append(errs, "anthropic.key is required when outreach.personalize is set")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Schedule.Enabled {
			if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
				errs = append(errs, fmt.Sprintf("schedule.cron %q is invalid", c.Schedule.Cron))
			}
		}
	case "cycle", "extract", "outreach":
		if c.Browser.LoadTimeout == 0 {
			errs = append(errs, "browser.load_timeout is required")
		}
	case "session":
		if c.Browser.SessionFile == "" {
			errs = append(errs, "browser.session_file is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Location returns the outreach time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Outreach.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
