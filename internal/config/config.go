// Package config loads and validates listingwatch configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/spf13/viper"

	"github.com/JakeFAU/listingwatch/internal/keywords"
	"github.com/JakeFAU/listingwatch/internal/scraper"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig     `mapstructure:"server"`
	Auth        AuthConfig       `mapstructure:"auth"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	HTTP        HTTPConfig       `mapstructure:"http"`
	Headless    HeadlessConfig   `mapstructure:"headless"`
	Scrape      ScrapeConfig     `mapstructure:"scrape"`
	Schedule    ScheduleConfig   `mapstructure:"schedule"`
	Storage     StorageConfig    `mapstructure:"storage"`
	Sources     []scraper.Source `mapstructure:"sources"`
	SourcesFile string           `mapstructure:"sources_file"`
	Keywords    keywords.Set     `mapstructure:"keywords"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures the plain HTTP fetch path.
type HTTPConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	UserAgent      string  `mapstructure:"user_agent"`
	RatePerHost    float64 `mapstructure:"rate_per_host"`
	Burst          int     `mapstructure:"burst"`
}

// HeadlessConfig configures the headless rendering fallback.
type HeadlessConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	MaxParallel        int    `mapstructure:"max_parallel"`
	NavTimeoutSeconds  int    `mapstructure:"nav_timeout_seconds"`
	SettleMillis       int    `mapstructure:"settle_millis"`
	PromotionThreshold int    `mapstructure:"promotion_threshold"`
	ExecPath           string `mapstructure:"exec_path"`
}

// ScrapeConfig tunes batches and extraction.
type ScrapeConfig struct {
	DelayMillis       int `mapstructure:"delay_millis"`
	MinTitleLen       int `mapstructure:"min_title_len"`
	MaxDescriptionLen int `mapstructure:"max_description_len"`
}

// ScheduleConfig holds the cron expression for serve mode. Empty disables it.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// StorageConfig selects and configures the store.
type StorageConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	MaxConns    int    `mapstructure:"max_conns"`
}

// Load builds a Config from disk/environment. Sources listed in
// sources_file are appended to the inline list.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LISTINGWATCH")
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

	if cfg.SourcesFile != "" {
		file := cfg.SourcesFile
		if !filepath.IsAbs(file) && path != "" {
			file = filepath.Join(filepath.Dir(path), file)
		}
		extra, err := LoadSources(file)
		if err != nil {
			return Config{}, err
		}
		cfg.Sources = append(cfg.Sources, extra...)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", scraper.DefaultUserAgent)
	v.SetDefault("http.rate_per_host", 1.0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.settle_millis", 2000)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("scrape.delay_millis", 2000)
	v.SetDefault("scrape.min_title_len", 10)
	v.SetDefault("scrape.max_description_len", 500)
	v.SetDefault("schedule.cron", "")
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.sqlite_path", "listingwatch.db")
	v.SetDefault("storage.max_conns", 4)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.RatePerHost < 0 {
		return fmt.Errorf("http.rate_per_host must be >= 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Scrape.DelayMillis < 0 {
		return fmt.Errorf("scrape.delay_millis must be >= 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path must be set for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn must be set for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver %q is not one of sqlite, postgres, memory", c.Storage.Driver)
	}
	return validateSources(c.Sources)
}

func validateSources(sources []scraper.Source) error {
	seen := make(map[string]struct{}, len(sources))
	var errs []error
	for i, s := range sources {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: name is required", i))
			continue
		}
		if s.BaseURL == "" && s.ListingURL == "" {
			errs = append(errs, fmt.Errorf("source %q: base_url or listing_url is required", s.Name))
		}
		if _, dup := seen[s.Name]; dup {
			errs = append(errs, fmt.Errorf("source %q: duplicate name", s.Name))
		}
		seen[s.Name] = struct{}{}
	}
	return errors.Join(errs...)
}

// Delay returns the pause between sources.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Scrape.DelayMillis) * time.Millisecond
}

// FetchTimeout returns the HTTP fetch timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// KeywordSet returns the configured keyword lists with empty ones filled from
// the built-in defaults.
func (c Config) KeywordSet() keywords.Set {
	return c.Keywords.Merge(keywords.Default())
}

// LoadSources reads sources from a CSV file (by extension) or from the
// "sources" key of any file format viper understands.
func LoadSources(path string) ([]scraper.Source, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read sources file: %w", err)
		}
		var sources []scraper.Source
		if err := csvutil.Unmarshal(data, &sources); err != nil {
			return nil, fmt.Errorf("parse sources csv: %w", err)
		}
		return sources, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	var sources []scraper.Source
	if err := v.UnmarshalKey("sources", &sources); err != nil {
		return nil, fmt.Errorf("unmarshal sources: %w", err)
	}
	return sources, nil
}
