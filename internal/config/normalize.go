package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSubtitles()
	c.normalizeCache()
	c.normalizeOpenSubtitles()
	c.normalizeAssrt()
	c.Subscene.BaseURL = strings.TrimRight(strings.TrimSpace(c.Subscene.BaseURL), "/")
	if c.Subscene.BaseURL == "" {
		c.Subscene.BaseURL = defaultSubsceneBaseURL
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("SUBTROVE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeSubtitles() {
	c.Subtitles.PrimaryLanguage = strings.ToLower(strings.TrimSpace(c.Subtitles.PrimaryLanguage))
	if c.Subtitles.PrimaryLanguage == "" {
		c.Subtitles.PrimaryLanguage = defaultPrimaryLanguage
	}
	c.Subtitles.FallbackLanguage = strings.ToLower(strings.TrimSpace(c.Subtitles.FallbackLanguage))
	c.Subtitles.DownloadQuality = strings.ToLower(strings.TrimSpace(c.Subtitles.DownloadQuality))
	if c.Subtitles.DownloadQuality == "" {
		c.Subtitles.DownloadQuality = defaultDownloadQuality
	}

	sources := make([]string, 0, len(c.Subtitles.EnabledSources))
	seen := make(map[string]struct{}, len(c.Subtitles.EnabledSources))
	for _, source := range c.Subtitles.EnabledSources {
		normalized := strings.ToLower(strings.TrimSpace(source))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		sources = append(sources, normalized)
	}
	c.Subtitles.EnabledSources = sources

	if c.Subtitles.SearchTimeoutSeconds == 0 {
		c.Subtitles.SearchTimeoutSeconds = defaultSearchTimeoutSeconds
	}
	if c.Subtitles.MaxResults == 0 {
		c.Subtitles.MaxResults = defaultMaxResults
	}
	if c.Subtitles.MaxConcurrency == 0 {
		c.Subtitles.MaxConcurrency = defaultMaxConcurrency
	}
}

func (c *Config) normalizeCache() {
	if c.Cache.ExpireDays == 0 {
		c.Cache.ExpireDays = defaultCacheExpireDays
	}
	if c.Cache.CleanupIntervalDays == 0 {
		c.Cache.CleanupIntervalDays = defaultCacheCleanupIntervalDays
	}
	if c.Cache.CheckIntervalMinutes == 0 {
		c.Cache.CheckIntervalMinutes = defaultCacheCheckIntervalMins
	}
}

func (c *Config) normalizeOpenSubtitles() {
	c.OpenSubtitles.APIKey = envFallback(c.OpenSubtitles.APIKey, "OPENSUBTITLES_API_KEY")
	c.OpenSubtitles.Username = envFallback(c.OpenSubtitles.Username, "OPENSUBTITLES_USERNAME")
	c.OpenSubtitles.Password = envFallback(c.OpenSubtitles.Password, "OPENSUBTITLES_PASSWORD")
	c.OpenSubtitles.UserToken = envFallback(c.OpenSubtitles.UserToken, "OPENSUBTITLES_USER_TOKEN")
	c.OpenSubtitles.UserAgent = strings.TrimSpace(c.OpenSubtitles.UserAgent)
	if c.OpenSubtitles.UserAgent == "" {
		c.OpenSubtitles.UserAgent = defaultOpenSubtitlesUserAgent
	}
	c.OpenSubtitles.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenSubtitles.BaseURL), "/")
	if c.OpenSubtitles.BaseURL == "" {
		c.OpenSubtitles.BaseURL = defaultOpenSubtitlesBaseURL
	}
}

func (c *Config) normalizeAssrt() {
	c.Assrt.Token = envFallback(c.Assrt.Token, "ASSRT_TOKEN")
	c.Assrt.BaseURL = strings.TrimRight(strings.TrimSpace(c.Assrt.BaseURL), "/")
	if c.Assrt.BaseURL == "" {
		c.Assrt.BaseURL = defaultAssrtBaseURL
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
}

func envFallback(value, key string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	if env, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(env)
	}
	return ""
}
