// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Scrape  ScrapeConfig  `mapstructure:"scrape"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Lookup  LookupConfig  `mapstructure:"lookup"`
	Discord DiscordConfig `mapstructure:"discord"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles for the list endpoints.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// ScrapeConfig governs the periodic pass over the watchlist sources.
type ScrapeConfig struct {
	IntervalMinutes     int      `mapstructure:"interval_minutes"`
	LetterboxdUsernames []string `mapstructure:"letterboxd_usernames"`
	MALUsernames        []string `mapstructure:"mal_usernames"`
}

// FetchConfig configures HTTP client pacing and retry behavior.
type FetchConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	SiteDelayMs      int    `mapstructure:"site_delay_ms"`
	AnimeAPIDelayMs  int    `mapstructure:"anime_api_delay_ms"`
	AnimeAPIHost     string `mapstructure:"anime_api_host"`
	UserAgent        string `mapstructure:"user_agent"`
}

// LedgerConfig sets the durable dedup log location.
type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

// LookupConfig points at the static id-mapping snapshots.
type LookupConfig struct {
	AnimeIDsPath string `mapstructure:"anime_ids_path"`
	FilmIDsPath  string `mapstructure:"film_ids_path"`
}

// DiscordConfig holds the webhook used for new-entry notifications.
type DiscordConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LISTBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8085)
	v.SetDefault("scrape.interval_minutes", 60)
	v.SetDefault("fetch.timeout_seconds", 20)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_initial_ms", 500)
	v.SetDefault("fetch.backoff_max_ms", 30000)
	v.SetDefault("fetch.site_delay_ms", 1000)
	v.SetDefault("fetch.anime_api_delay_ms", 4000)
	v.SetDefault("fetch.anime_api_host", "api.jikan.moe")
	v.SetDefault("fetch.user_agent", "listbridge/0.1 (+https://github.com/pkaris/listbridge)")
	v.SetDefault("ledger.path", "data/ledger.jsonl")
	v.SetDefault("lookup.anime_ids_path", "data/anime-ids.json")
	v.SetDefault("lookup.film_ids_path", "data/film-ids.json")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scrape.IntervalMinutes <= 0 {
		return fmt.Errorf("scrape.interval_minutes must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0")
	}
	if c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path must be set")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// ScrapeInterval converts the configured minutes into a duration.
func (c Config) ScrapeInterval() time.Duration {
	return time.Duration(c.Scrape.IntervalMinutes) * time.Minute
}

// FetchTimeout converts the HTTP timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}
