package config

import (
	"errors"
	"fmt"
	"strings"

	"subtrove/internal/subtitles"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSubtitles(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSubtitles() error {
	if strings.TrimSpace(c.Subtitles.PrimaryLanguage) == "" {
		return errors.New("subtitles.primary_language must be set")
	}
	if _, ok := subtitles.ParseQuality(c.Subtitles.DownloadQuality); !ok {
		return fmt.Errorf("subtitles.download_quality must be one of best, most_downloaded, latest, any (got %q)", c.Subtitles.DownloadQuality)
	}
	if c.Subtitles.SearchTimeoutSeconds <= 0 {
		return errors.New("subtitles.search_timeout_seconds must be positive")
	}
	if c.Subtitles.MaxResults <= 0 {
		return errors.New("subtitles.max_results must be positive")
	}
	if c.Subtitles.MinRating < 0 || c.Subtitles.MinRating > 10 {
		return errors.New("subtitles.min_rating must be between 0 and 10")
	}
	if c.Subtitles.MaxConcurrency <= 0 {
		return errors.New("subtitles.max_concurrency must be positive")
	}
	return nil
}

func (c *Config) validateSources() error {
	for _, source := range c.Subtitles.EnabledSources {
		if _, ok := knownSources[source]; !ok {
			return fmt.Errorf("subtitles.enabled_sources contains unknown provider %q", source)
		}
	}
	if c.SourceEnabled(subtitles.SourceOpenSubtitles) {
		if c.OpenSubtitles.APIKey == "" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = "~/.config/subtrove/config.toml"
			}
			return fmt.Errorf("opensubtitles.api_key must be set when opensubtitles is enabled. Set OPENSUBTITLES_API_KEY env var or edit %s (create with 'subtrove config init')", defaultPath)
		}
		if c.OpenSubtitles.UserAgent == "" {
			return errors.New("opensubtitles.user_agent must be set when opensubtitles is enabled")
		}
	}
	if c.SourceEnabled(subtitles.SourceAssrt) && c.Assrt.Token == "" {
		return errors.New("assrt.token must be set when assrt is enabled")
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.MaxSizeMB < 0 {
		return errors.New("cache.max_size_mb must not be negative")
	}
	if c.Cache.ExpireDays <= 0 {
		return errors.New("cache.expire_days must be positive")
	}
	if c.Cache.CleanupIntervalDays <= 0 {
		return errors.New("cache.cleanup_interval_days must be positive")
	}
	if c.Cache.CheckIntervalMinutes <= 0 {
		return errors.New("cache.check_interval_minutes must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return errors.New("logging rotation values must not be negative")
	}
	return nil
}
