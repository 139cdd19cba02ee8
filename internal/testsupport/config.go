package testsupport

import (
	"path/filepath"
	"testing"

	"subtrove/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Provider credentials are blank and every network source is disabled
// unless an option enables it.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.CacheDir = filepath.Join(base, "cache")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Subtitles.EnabledSources = nil
	cfgVal.Logging.Format = "json"
	cfgVal.Logging.Level = "debug"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSources overrides subtitles.enabled_sources.
func WithSources(sources ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Subtitles.EnabledSources = append([]string(nil), sources...)
	}
}

// WithLanguages sets the primary and fallback languages.
func WithLanguages(primary, fallback string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Subtitles.PrimaryLanguage = primary
		b.cfg.Subtitles.FallbackLanguage = fallback
	}
}

// WithOpenSubtitles points the OpenSubtitles adapter at baseURL.
func WithOpenSubtitles(baseURL, apiKey string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.OpenSubtitles.BaseURL = baseURL
		b.cfg.OpenSubtitles.APIKey = apiKey
	}
}

// WithAPIToken enables bearer authentication on the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.CacheDir)
}
