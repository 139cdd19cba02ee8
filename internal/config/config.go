package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"subtrove/internal/subtitles"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	CacheDir string `toml:"cache_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Subtitles contains the language and search policy applied to every lookup.
type Subtitles struct {
	PrimaryLanguage          string   `toml:"primary_language"`
	FallbackLanguage         string   `toml:"fallback_language"`
	AutoSelectLanguage       bool     `toml:"auto_select_language"`
	AutoDownload             bool     `toml:"auto_download"`
	DownloadQuality          string   `toml:"download_quality"`
	EnabledSources           []string `toml:"enabled_sources"`
	SearchTimeoutSeconds     int      `toml:"search_timeout_seconds"`
	MaxResults               int      `toml:"max_results"`
	MinRating                float64  `toml:"min_rating"`
	OnlyHD                   bool     `toml:"only_hd"`
	ExcludeMachineTranslated bool     `toml:"exclude_machine_translated"`
	IncludeHearingImpaired   bool     `toml:"include_hearing_impaired"`
	MaxConcurrency           int      `toml:"max_concurrency"`
}

// Cache contains the subtitle cache size and expiry configuration.
type Cache struct {
	MaxSizeMB            int `toml:"max_size_mb"`
	ExpireDays           int `toml:"expire_days"`
	CleanupIntervalDays  int `toml:"cleanup_interval_days"`
	CheckIntervalMinutes int `toml:"check_interval_minutes"`
}

// OpenSubtitles contains credentials for the OpenSubtitles REST API.
type OpenSubtitles struct {
	APIKey    string `toml:"api_key"`
	UserAgent string `toml:"user_agent"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	UserToken string `toml:"user_token"`
	BaseURL   string `toml:"base_url"`
}

// Assrt contains configuration for the assrt.net token API.
type Assrt struct {
	Token   string `toml:"token"`
	BaseURL string `toml:"base_url"`
}

// Subscene contains configuration for the Subscene HTML provider.
type Subscene struct {
	BaseURL string `toml:"base_url"`
}

// Logging contains configuration for log output and rotation.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Config encapsulates all configuration values for Subtrove.
//
// Configuration sections by subsystem:
//   - Paths: cache and log directories, API bind address
//   - Subtitles: language policy, enabled providers, search filters
//   - Cache: size bound, expiry, and maintenance cadence
//   - OpenSubtitles, Assrt, Subscene: provider credentials and endpoints
//   - Logging: log format, level, and file rotation
type Config struct {
	Paths         Paths         `toml:"paths"`
	Subtitles     Subtitles     `toml:"subtitles"`
	Cache         Cache         `toml:"cache"`
	OpenSubtitles OpenSubtitles `toml:"opensubtitles"`
	Assrt         Assrt         `toml:"assrt"`
	Subscene      Subscene      `toml:"subscene"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/subtrove/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("subtrove.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the cache and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.CacheFilesDir(), c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CacheFilesDir returns the content directory holding downloaded subtitle files.
func (c *Config) CacheFilesDir() string {
	return filepath.Join(c.Paths.CacheDir, "files")
}

// CacheIndexPath returns the sqlite database backing the cache index.
func (c *Config) CacheIndexPath() string {
	return filepath.Join(c.Paths.CacheDir, "index.db")
}

// LockPath returns the instance lock used by the long-running service.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.CacheDir, "subtrove.lock")
}

// MaintenanceLockPath returns the lock guarding cache maintenance across
// processes sharing the cache directory.
func (c *Config) MaintenanceLockPath() string {
	return filepath.Join(c.Paths.CacheDir, "maintenance.lock")
}

// Policy converts the subtitle and cache sections into the selection policy
// consumed by the engine.
func (c *Config) Policy() subtitles.Policy {
	sources := make([]subtitles.Source, 0, len(c.Subtitles.EnabledSources))
	for _, name := range c.Subtitles.EnabledSources {
		sources = append(sources, subtitles.Source(name))
	}
	quality, _ := subtitles.ParseQuality(c.Subtitles.DownloadQuality)
	return subtitles.Policy{
		PrimaryLanguage:          c.Subtitles.PrimaryLanguage,
		FallbackLanguage:         c.Subtitles.FallbackLanguage,
		AutoSelectLanguage:       c.Subtitles.AutoSelectLanguage,
		AutoDownload:             c.Subtitles.AutoDownload,
		DownloadQuality:          quality,
		EnabledSources:           sources,
		SearchTimeout:            time.Duration(c.Subtitles.SearchTimeoutSeconds) * time.Second,
		MaxResults:               c.Subtitles.MaxResults,
		MinRating:                c.Subtitles.MinRating,
		OnlyHD:                   c.Subtitles.OnlyHD,
		ExcludeMachineTranslated: c.Subtitles.ExcludeMachineTranslated,
		IncludeHearingImpaired:   c.Subtitles.IncludeHearingImpaired,
		MaxCacheSizeBytes:        int64(c.Cache.MaxSizeMB) * 1024 * 1024,
		CacheExpireDays:          c.Cache.ExpireDays,
	}
}

// SourceEnabled reports whether the named provider is listed in subtitles.enabled_sources.
func (c *Config) SourceEnabled(source subtitles.Source) bool {
	for _, name := range c.Subtitles.EnabledSources {
		if subtitles.Source(name) == source {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
