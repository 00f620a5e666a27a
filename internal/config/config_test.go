package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/listingwatch/internal/scraper"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "sources.csv", "name,base_url,listing_url,country,city\n"+
		"HfG,https://hfg.example.org,,DE,Karlsruhe\n"+
		"UdK,https://udk.example.org,https://udk.example.org/jobs,DE,Berlin\n")
	path := writeFile(t, dir, "config.yaml", `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
http:
  timeout_seconds: 45
  user_agent: test-agent
  rate_per_host: 0.5
  burst: 2
headless:
  enabled: true
  max_parallel: 2
  nav_timeout_seconds: 30
  promotion_threshold: 4096
scrape:
  delay_millis: 1500
schedule:
  cron: "0 6 * * *"
storage:
  driver: memory
sources:
  - name: KHM
    base_url: https://khm.example.org
    country: DE
sources_file: sources.csv
keywords:
  exclusions: [ausstellung]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.HTTP.UserAgent != "test-agent" || cfg.HTTP.RatePerHost != 0.5 || cfg.HTTP.Burst != 2 {
		t.Fatalf("expected http overrides to apply: %+v", cfg.HTTP)
	}
	if got := cfg.Delay(); got != 1500*time.Millisecond {
		t.Fatalf("expected delay 1.5s, got %v", got)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
	if cfg.Schedule.Cron != "0 6 * * *" {
		t.Fatalf("expected cron to load, got %q", cfg.Schedule.Cron)
	}
	if len(cfg.Sources) != 3 {
		t.Fatalf("expected inline plus csv sources, got %+v", cfg.Sources)
	}
	if cfg.Sources[0].Name != "KHM" || cfg.Sources[2].ListingURL != "https://udk.example.org/jobs" {
		t.Fatalf("unexpected source order: %+v", cfg.Sources)
	}
	if cfg.Sources[1].City != "Karlsruhe" {
		t.Fatalf("expected csv city, got %+v", cfg.Sources[1])
	}

	kw := cfg.KeywordSet()
	if len(kw.Exclusions) != 1 || kw.Exclusions[0] != "ausstellung" {
		t.Fatalf("expected exclusion override, got %v", kw.Exclusions)
	}
	if len(kw.JobTerms) == 0 || len(kw.Locales) == 0 {
		t.Fatalf("expected defaults to fill the remaining keyword lists")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Storage.Driver != DriverSQLite || cfg.Storage.SQLitePath == "" {
		t.Fatalf("expected sqlite default, got %+v", cfg.Storage)
	}
	if cfg.Delay() != 2*time.Second {
		t.Fatalf("expected 2s default delay, got %v", cfg.Delay())
	}
	if cfg.Headless.PromotionThreshold != 2048 {
		t.Fatalf("expected promotion threshold 2048, got %d", cfg.Headless.PromotionThreshold)
	}
	if cfg.HTTP.UserAgent != scraper.DefaultUserAgent || !strings.HasPrefix(cfg.HTTP.UserAgent, "Mozilla/5.0") {
		t.Fatalf("expected browser user agent default, got %q", cfg.HTTP.UserAgent)
	}
	if !cfg.Headless.Enabled {
		t.Fatal("expected headless fallback enabled by default")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LISTINGWATCH_SERVER_PORT", "7070")
	t.Setenv("LISTINGWATCH_STORAGE_DRIVER", "memory")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Driver != DriverMemory {
		t.Fatalf("expected env driver memory, got %q", cfg.Storage.Driver)
	}
}

func TestLoadSourcesYAML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "sources.yaml", `
sources:
  - name: Burg
    base_url: https://burg.example.org
    listing_url: https://burg.example.org/stellen
`)
	sources, err := LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources() error = %v", err)
	}
	if len(sources) != 1 || sources[0].ListingURL != "https://burg.example.org/stellen" {
		t.Fatalf("unexpected sources: %+v", sources)
	}

	if _, err := LoadSources(filepath.Join(dir, "missing.csv")); err == nil {
		t.Fatal("expected error for missing csv")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		HTTP:    HTTPConfig{TimeoutSeconds: 10},
		Storage: StorageConfig{Driver: DriverMemory},
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "invalid timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, want: "http.timeout_seconds"},
		{name: "negative rate", mutate: func(c *Config) { c.HTTP.RatePerHost = -1 }, want: "http.rate_per_host"},
		{
			name:   "headless missing max parallel",
			mutate: func(c *Config) { c.Headless.Enabled = true },
			want:   "headless.max_parallel",
		},
		{name: "negative delay", mutate: func(c *Config) { c.Scrape.DelayMillis = -5 }, want: "scrape.delay_millis"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "mongo" }, want: "storage.driver"},
		{
			name:   "postgres without dsn",
			mutate: func(c *Config) { c.Storage.Driver = DriverPostgres },
			want:   "storage.postgres_dsn",
		},
		{
			name:   "sqlite without path",
			mutate: func(c *Config) { c.Storage.Driver = DriverSQLite },
			want:   "storage.sqlite_path",
		},
		{
			name: "duplicate source",
			mutate: func(c *Config) {
				c.Sources = []scraper.Source{{Name: "a", BaseURL: "https://a"}, {Name: "a", BaseURL: "https://b"}}
			},
			want: "duplicate name",
		},
		{
			name:   "source without url",
			mutate: func(c *Config) { c.Sources = []scraper.Source{{Name: "a"}} },
			want:   "base_url or listing_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
