package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"subtrove/internal/config"
	"subtrove/internal/subtitles"
)

func TestLoadDefaultConfigUsesEnvKeyAndExpandsPaths(t *testing.T) {
	t.Setenv("OPENSUBTITLES_API_KEY", "test-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantCache := filepath.Join(tempHome, ".local", "share", "subtrove", "cache")
	if cfg.Paths.CacheDir != wantCache {
		t.Fatalf("unexpected cache dir: got %q want %q", cfg.Paths.CacheDir, wantCache)
	}
	if cfg.CacheFilesDir() != filepath.Join(wantCache, "files") {
		t.Fatalf("unexpected files dir: %q", cfg.CacheFilesDir())
	}
	if cfg.OpenSubtitles.APIKey != "test-key" {
		t.Fatalf("expected OpenSubtitles key from env, got %q", cfg.OpenSubtitles.APIKey)
	}
	if cfg.Subtitles.PrimaryLanguage != "zh-cn" {
		t.Fatalf("unexpected primary language: %q", cfg.Subtitles.PrimaryLanguage)
	}
	if cfg.Cache.ExpireDays != 30 {
		t.Fatalf("unexpected expire days: %d", cfg.Cache.ExpireDays)
	}
	if len(cfg.Subtitles.EnabledSources) != 2 || cfg.Subtitles.EnabledSources[0] != "opensubtitles" {
		t.Fatalf("unexpected enabled sources: %v", cfg.Subtitles.EnabledSources)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "subtrove.toml")

	type payload struct {
		Subtitles struct {
			PrimaryLanguage string   `toml:"primary_language"`
			EnabledSources  []string `toml:"enabled_sources"`
			DownloadQuality string   `toml:"download_quality"`
			MaxResults      int      `toml:"max_results"`
		} `toml:"subtitles"`
		Assrt struct {
			Token string `toml:"token"`
		} `toml:"assrt"`
		Cache struct {
			MaxSizeMB int `toml:"max_size_mb"`
		} `toml:"cache"`
	}
	custom := payload{}
	custom.Subtitles.PrimaryLanguage = " EN "
	custom.Subtitles.EnabledSources = []string{"Assrt", "subscene", "assrt"}
	custom.Subtitles.DownloadQuality = "MOST_DOWNLOADED"
	custom.Subtitles.MaxResults = 5
	custom.Assrt.Token = "assrt-token"
	custom.Cache.MaxSizeMB = 10
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Subtitles.PrimaryLanguage != "en" {
		t.Fatalf("expected normalized language, got %q", cfg.Subtitles.PrimaryLanguage)
	}
	if got := strings.Join(cfg.Subtitles.EnabledSources, ","); got != "assrt,subscene" {
		t.Fatalf("expected deduplicated sources, got %q", got)
	}

	policy := cfg.Policy()
	if policy.DownloadQuality != subtitles.QualityMostDownloaded {
		t.Fatalf("unexpected quality preference: %v", policy.DownloadQuality)
	}
	if policy.MaxResults != 5 {
		t.Fatalf("unexpected max results: %d", policy.MaxResults)
	}
	if policy.SearchTimeout != 10*time.Second {
		t.Fatalf("unexpected search timeout: %v", policy.SearchTimeout)
	}
	if policy.MaxCacheSizeBytes != 10*1024*1024 {
		t.Fatalf("unexpected cache size: %d", policy.MaxCacheSizeBytes)
	}
	if len(policy.EnabledSources) != 2 || policy.EnabledSources[0] != subtitles.SourceAssrt {
		t.Fatalf("unexpected policy sources: %v", policy.EnabledSources)
	}
}

func TestEnvFallbackDoesNotOverrideFileValues(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "subtrove.toml")
	contents := "[opensubtitles]\napi_key = \"file-key\"\n[assrt]\ntoken = \"\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OPENSUBTITLES_API_KEY", "env-key")
	t.Setenv("ASSRT_TOKEN", "env-assrt")
	t.Setenv("OPENSUBTITLES_USERNAME", "env-user")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.OpenSubtitles.APIKey != "file-key" {
		t.Errorf("expected file key to win, got %q", cfg.OpenSubtitles.APIKey)
	}
	if cfg.Assrt.Token != "env-assrt" {
		t.Errorf("expected assrt token from env, got %q", cfg.Assrt.Token)
	}
	if cfg.OpenSubtitles.Username != "env-user" {
		t.Errorf("expected username from env, got %q", cfg.OpenSubtitles.Username)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_opensubtitles_api_key_here") {
		t.Fatalf("sample config missing placeholder key: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.CacheDir, "subtrove") {
		t.Fatalf("expected cache dir to contain subtrove, got %q", cfg.Paths.CacheDir)
	}
	if cfg.Subtitles.DownloadQuality != "best" {
		t.Fatalf("unexpected sample quality: %q", cfg.Subtitles.DownloadQuality)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Default()
		cfg.OpenSubtitles.APIKey = "key"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing api key", func(c *config.Config) { c.OpenSubtitles.APIKey = "" }},
		{"unknown source", func(c *config.Config) { c.Subtitles.EnabledSources = []string{"napiprojekt"} }},
		{"assrt without token", func(c *config.Config) { c.Subtitles.EnabledSources = []string{"assrt"} }},
		{"bad quality", func(c *config.Config) { c.Subtitles.DownloadQuality = "shiny" }},
		{"zero timeout", func(c *config.Config) { c.Subtitles.SearchTimeoutSeconds = 0 }},
		{"rating range", func(c *config.Config) { c.Subtitles.MinRating = 11 }},
		{"expire days", func(c *config.Config) { c.Cache.ExpireDays = -1 }},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := valid()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected default config with key to validate: %v", err)
	}
}
