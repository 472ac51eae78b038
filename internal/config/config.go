package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configPathEnv = "FEEDPULSE_CONFIG"

// Config holds high-level settings required across the application.
type Config struct {
	Server        ServerConfig       `yaml:"server"`
	Logging       LoggingConfig      `yaml:"logging"`
	Cache         CacheConfig        `yaml:"cache"`
	Fetch         FetchConfig        `yaml:"fetch"`
	Ranking       RankingConfig      `yaml:"ranking"`
	RateLimit     RateLimitConfig    `yaml:"rateLimit"`
	Summarizer    SummarizerConfig   `yaml:"summarizer"`
	History       HistoryConfig      `yaml:"history"`
	Notifications NotificationConfig `yaml:"notifications"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	DefaultFeed   string             `yaml:"defaultFeed" env:"FEEDPULSE_DEFAULT_FEED"`
	Feeds         []FeedConfig       `yaml:"feeds"`
}

// ServerConfig describes the inbound HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"FEEDPULSE_ADDR"`
	Mode            string        `yaml:"mode" env:"GIN_MODE"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// LoggingConfig selects the slog level and output format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// CacheConfig is the freshness policy plus the timeouts bounding a refresh.
type CacheConfig struct {
	RawTTL         time.Duration `yaml:"rawTTL" env:"CACHE_RAW_TTL"`
	DerivedTTL     time.Duration `yaml:"derivedTTL" env:"CACHE_DERIVED_TTL"`
	Version        int           `yaml:"version" env:"CACHE_VERSION"`
	FetchTimeout   time.Duration `yaml:"fetchTimeout"`
	SummaryTimeout time.Duration `yaml:"summaryTimeout"`
	RefreshTimeout time.Duration `yaml:"refreshTimeout"`
}

// FetchConfig shapes outbound upstream requests. A zero Throttle disables
// the per-host token bucket.
type FetchConfig struct {
	UserAgent string        `yaml:"userAgent" env:"FETCH_USER_AGENT"`
	Throttle  time.Duration `yaml:"throttle"`
	Burst     int           `yaml:"burst"`
}

// RankingConfig controls how much of the ranked list is kept and fingerprinted.
type RankingConfig struct {
	TopK            int `yaml:"topK"`
	FingerprintSize int `yaml:"fingerprintSize"`
}

// RateLimitConfig is the per-caller sliding window.
type RateLimitConfig struct {
	Limit         int           `yaml:"limit" env:"RATE_LIMIT_MAX"`
	Window        time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// SummarizerConfig defines how to contact the generative text provider.
// MaxItems caps the ranked posts put in the prompt; 0 sends the whole top-K.
type SummarizerConfig struct {
	Provider        string        `yaml:"provider" env:"SUMMARIZER_PROVIDER"`
	Endpoint        string        `yaml:"endpoint" env:"SUMMARIZER_ENDPOINT"`
	Model           string        `yaml:"model" env:"SUMMARIZER_MODEL"`
	APIKey          string        `yaml:"apiKey" env:"SUMMARIZER_API_KEY"`
	SystemPrompt    string        `yaml:"systemPrompt"`
	MaxTokens       int           `yaml:"maxTokens"`
	MaxItems        int           `yaml:"maxItems"`
	Temperature     float64       `yaml:"temperature"`
	BreakerFailures int           `yaml:"breakerFailures"`
	BreakerCooldown time.Duration `yaml:"breakerCooldown"`
}

// HistoryConfig points the refresh audit log at a database. Empty DSN disables it.
type HistoryConfig struct {
	Driver string `yaml:"driver" env:"HISTORY_DRIVER"`
	DSN    string `yaml:"dsn" env:"HISTORY_DSN"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken" env:"TELEGRAM_BOT_TOKEN"`
	ChatID   string `yaml:"chatId" env:"TELEGRAM_CHAT_ID"`
}

// SchedulerConfig drives background jobs. WarmSchedule is a crontab line
// that takes precedence over WarmInterval; with neither set warming is off.
type SchedulerConfig struct {
	WarmInterval time.Duration `yaml:"warmInterval" env:"SCHEDULER_WARM_INTERVAL"`
	WarmSchedule string        `yaml:"warmSchedule" env:"SCHEDULER_WARM_SCHEDULE"`
}

// FeedConfig describes a single upstream feed with its extractor strategy.
type FeedConfig struct {
	Name      string            `yaml:"name"`
	Extractor string            `yaml:"extractor"`
	URL       string            `yaml:"url"`
	MinLength int               `yaml:"minLength"`
	Denylist  []string          `yaml:"denylist"`
	MaxItems  int               `yaml:"maxItems"`
	MaxBody   int               `yaml:"maxBody"`
	Options   map[string]string `yaml:"options"`
}

// Load reads .env files, the YAML configuration (if present) and applies
// environment overrides, then validates the result.
func Load() (Config, error) {
	if err := loadEnvFiles(); err != nil {
		return Config{}, err
	}
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile layers the YAML at path (may be empty) and env overrides over the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}

	if len(cfg.Feeds) == 0 {
		cfg.Feeds = Default().Feeds
	}
	if cfg.DefaultFeed == "" {
		cfg.DefaultFeed = cfg.Feeds[0].Name
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("config: load env file %s: %w", envFile, err)
		}
		return nil
	}
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("config: load .env: %w", err)
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Cache.RawTTL <= 0 {
		errs = append(errs, errors.New("cache.rawTTL must be positive"))
	}
	if c.Cache.DerivedTTL < 0 {
		errs = append(errs, errors.New("cache.derivedTTL must not be negative"))
	}
	if c.Ranking.TopK <= 0 {
		errs = append(errs, errors.New("ranking.topK must be positive"))
	}
	if c.Ranking.FingerprintSize <= 0 || c.Ranking.FingerprintSize > c.Ranking.TopK {
		errs = append(errs, errors.New("ranking.fingerprintSize must be in 1..topK"))
	}
	if c.Summarizer.MaxItems < 0 || c.Summarizer.MaxItems > c.Ranking.TopK {
		errs = append(errs, errors.New("summarizer.maxItems must be in 0..topK"))
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rateLimit.limit and rateLimit.window must be positive"))
	}

	seen := map[string]bool{}
	for i, feed := range c.Feeds {
		name := strings.TrimSpace(feed.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("feeds[%d]: name is required", i))
		case seen[name]:
			errs = append(errs, fmt.Errorf("feeds[%d]: duplicate name %s", i, name))
		}
		seen[name] = true
		if feed.URL == "" {
			errs = append(errs, fmt.Errorf("feeds[%d]: url is required", i))
		}
		if feed.Extractor == "" {
			errs = append(errs, fmt.Errorf("feeds[%d]: extractor is required", i))
		}
		if feed.MaxItems < 0 || feed.MaxBody < 0 {
			errs = append(errs, fmt.Errorf("feeds[%d]: maxItems and maxBody must not be negative", i))
		}
	}
	if c.DefaultFeed != "" && !seen[c.DefaultFeed] {
		errs = append(errs, fmt.Errorf("defaultFeed %s is not configured", c.DefaultFeed))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Feed returns the named feed configuration.
func (c Config) Feed(name string) (FeedConfig, bool) {
	for _, feed := range c.Feeds {
		if feed.Name == name {
			return feed, true
		}
	}
	return FeedConfig{}, false
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			Mode:            "release",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    45 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Cache: CacheConfig{
			RawTTL:         5 * time.Minute,
			Version:        1,
			FetchTimeout:   8 * time.Second,
			SummaryTimeout: 10 * time.Second,
			RefreshTimeout: 30 * time.Second,
		},
		Fetch:     FetchConfig{UserAgent: "FeedPulse/1.0", Throttle: time.Second, Burst: 2},
		Ranking:   RankingConfig{TopK: 10, FingerprintSize: 10},
		RateLimit: RateLimitConfig{Limit: 30, Window: time.Minute, SweepInterval: time.Minute},
		Summarizer: SummarizerConfig{
			Provider:        "gemini",
			MaxTokens:       600,
			Temperature:     0.85,
			BreakerFailures: 3,
			BreakerCooldown: 2 * time.Minute,
			SystemPrompt:    "You brief readers on what an online community is discussing right now.",
		},
		History: HistoryConfig{Driver: "sqlite"},
		Feeds: []FeedConfig{
			{
				Name:      "moltbook",
				Extractor: "json",
				URL:       "https://www.moltbook.com/api/v1/posts",
			},
			{
				Name:      "moltx",
				Extractor: "markup",
				URL:       "https://moltx.io/",
				MinLength: 10,
				MaxItems:  20,
				MaxBody:   500,
				Denylist:  []string{"porn", "nsfw", "nude", "naked"},
				Options:   map[string]string{"post_selector": ".post"},
			},
			{
				Name:      "importai",
				Extractor: "rss",
				URL:       "https://importai.substack.com/feed",
			},
		},
	}
}
