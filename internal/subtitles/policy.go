package subtitles

import (
	"strings"
	"time"
)

// Quality selects which candidate AutoSelect downloads when it has to search.
type Quality string

const (
	QualityBest           Quality = "best"
	QualityMostDownloaded Quality = "most_downloaded"
	QualityLatest         Quality = "latest"
	QualityAny            Quality = "any"
)

// ParseQuality accepts the config spellings, case-insensitively.
func ParseQuality(value string) (Quality, bool) {
	switch Quality(strings.ToLower(strings.TrimSpace(value))) {
	case QualityBest, "":
		return QualityBest, true
	case QualityMostDownloaded:
		return QualityMostDownloaded, true
	case QualityLatest:
		return QualityLatest, true
	case QualityAny:
		return QualityAny, true
	}
	return QualityBest, false
}

// Policy is the caller-facing selection policy.
type Policy struct {
	PrimaryLanguage          string
	FallbackLanguage         string
	AutoSelectLanguage       bool
	AutoDownload             bool
	DownloadQuality          Quality
	EnabledSources           []Source
	SearchTimeout            time.Duration
	MaxResults               int
	MinRating                float64
	OnlyHD                   bool
	ExcludeMachineTranslated bool
	IncludeHearingImpaired   bool
	MaxCacheSizeBytes        int64
	CacheExpireDays          int
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		PrimaryLanguage:        "zh-cn",
		FallbackLanguage:       "en",
		AutoSelectLanguage:     true,
		AutoDownload:           true,
		DownloadQuality:        QualityBest,
		EnabledSources:         []Source{SourceOpenSubtitles, SourceSubscene},
		SearchTimeout:          10 * time.Second,
		MaxResults:             20,
		IncludeHearingImpaired: true,
		MaxCacheSizeBytes:      100 * 1024 * 1024,
		CacheExpireDays:        30,
	}
}

// Languages returns the ordered candidate languages. Without automatic
// language selection only the primary language is searched.
func (p Policy) Languages() []string {
	out := make([]string, 0, 2)
	seen := make(map[string]struct{}, 2)
	add := func(code string) {
		code = strings.ToLower(strings.TrimSpace(code))
		if code == "" {
			return
		}
		if _, ok := seen[code]; ok {
			return
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	add(p.PrimaryLanguage)
	if p.AutoSelectLanguage || len(out) == 0 {
		add(p.FallbackLanguage)
	}
	return out
}
