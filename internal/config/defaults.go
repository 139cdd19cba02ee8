package config

const (
	defaultCacheDir                 = "~/.local/share/subtrove/cache"
	defaultLogDir                   = "~/.local/share/subtrove/logs"
	defaultAPIBind                  = "127.0.0.1:7499"
	defaultPrimaryLanguage          = "zh-cn"
	defaultFallbackLanguage         = "en"
	defaultDownloadQuality          = "best"
	defaultSearchTimeoutSeconds     = 10
	defaultMaxResults               = 20
	defaultMaxConcurrency           = 4
	defaultCacheMaxSizeMB           = 100
	defaultCacheExpireDays          = 30
	defaultCacheCleanupIntervalDays = 7
	defaultCacheCheckIntervalMins   = 60
	defaultOpenSubtitlesBaseURL     = "https://api.opensubtitles.com/api/v1"
	defaultOpenSubtitlesUserAgent   = "Subtrove/dev"
	defaultAssrtBaseURL             = "https://api.assrt.net"
	defaultSubsceneBaseURL          = "https://subscene.com"
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultLogMaxSizeMB             = 20
	defaultLogMaxBackups            = 5
	defaultLogMaxAgeDays            = 30
)

var knownSources = map[string]struct{}{
	"opensubtitles": {},
	"assrt":         {},
	"subscene":      {},
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir: defaultCacheDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Subtitles: Subtitles{
			PrimaryLanguage:        defaultPrimaryLanguage,
			FallbackLanguage:       defaultFallbackLanguage,
			AutoSelectLanguage:     true,
			AutoDownload:           true,
			DownloadQuality:        defaultDownloadQuality,
			EnabledSources:         []string{"opensubtitles", "subscene"},
			SearchTimeoutSeconds:   defaultSearchTimeoutSeconds,
			MaxResults:             defaultMaxResults,
			IncludeHearingImpaired: true,
			MaxConcurrency:         defaultMaxConcurrency,
		},
		Cache: Cache{
			MaxSizeMB:            defaultCacheMaxSizeMB,
			ExpireDays:           defaultCacheExpireDays,
			CleanupIntervalDays:  defaultCacheCleanupIntervalDays,
			CheckIntervalMinutes: defaultCacheCheckIntervalMins,
		},
		OpenSubtitles: OpenSubtitles{
			UserAgent: defaultOpenSubtitlesUserAgent,
			BaseURL:   defaultOpenSubtitlesBaseURL,
		},
		Assrt: Assrt{
			BaseURL: defaultAssrtBaseURL,
		},
		Subscene: Subscene{
			BaseURL: defaultSubsceneBaseURL,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
			Compress:   true,
		},
	}
}
