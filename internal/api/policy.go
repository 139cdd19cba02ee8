package api

import (
	"fmt"
	"strings"
	"time"

	"subtrove/internal/services"
	"subtrove/internal/subtitles"
)

// PolicyOverrides adjusts the configured policy for one request. Zero values
// and nil pointers keep the configured setting.
type PolicyOverrides struct {
	PrimaryLanguage          string   `json:"primaryLanguage,omitempty"`
	FallbackLanguage         string   `json:"fallbackLanguage,omitempty"`
	AutoSelectLanguage       *bool    `json:"autoSelectLanguage,omitempty"`
	AutoDownload             *bool    `json:"autoDownload,omitempty"`
	DownloadQuality          string   `json:"downloadQuality,omitempty"`
	Sources                  []string `json:"sources,omitempty"`
	TimeoutSeconds           int      `json:"timeoutSeconds,omitempty"`
	MaxResults               int      `json:"maxResults,omitempty"`
	MinRating                *float64 `json:"minRating,omitempty"`
	OnlyHD                   *bool    `json:"onlyHd,omitempty"`
	ExcludeMachineTranslated *bool    `json:"excludeMachineTranslated,omitempty"`
	IncludeHearingImpaired   *bool    `json:"includeHearingImpaired,omitempty"`
}

// Apply returns base with the overrides applied. Unknown quality names and
// source names are validation errors.
func (o PolicyOverrides) Apply(base subtitles.Policy) (subtitles.Policy, error) {
	p := base
	if v := strings.TrimSpace(o.PrimaryLanguage); v != "" {
		p.PrimaryLanguage = strings.ToLower(v)
	}
	if v := strings.TrimSpace(o.FallbackLanguage); v != "" {
		p.FallbackLanguage = strings.ToLower(v)
	}
	if o.AutoSelectLanguage != nil {
		p.AutoSelectLanguage = *o.AutoSelectLanguage
	}
	if o.AutoDownload != nil {
		p.AutoDownload = *o.AutoDownload
	}
	if strings.TrimSpace(o.DownloadQuality) != "" {
		quality, ok := subtitles.ParseQuality(o.DownloadQuality)
		if !ok {
			return base, services.Wrap(services.ErrValidation, "api", "policy",
				fmt.Sprintf("unknown download quality %q", o.DownloadQuality), nil)
		}
		p.DownloadQuality = quality
	}
	if len(o.Sources) > 0 {
		sources := make([]subtitles.Source, 0, len(o.Sources))
		for _, name := range o.Sources {
			source := subtitles.Source(strings.ToLower(strings.TrimSpace(name)))
			if !source.Known() || source == subtitles.SourceLocal {
				return base, services.Wrap(services.ErrValidation, "api", "policy",
					fmt.Sprintf("unknown source %q", name), nil)
			}
			sources = append(sources, source)
		}
		p.EnabledSources = sources
	}
	if o.TimeoutSeconds > 0 {
		p.SearchTimeout = time.Duration(o.TimeoutSeconds) * time.Second
	}
	if o.MaxResults > 0 {
		p.MaxResults = o.MaxResults
	}
	if o.MinRating != nil {
		p.MinRating = *o.MinRating
	}
	if o.OnlyHD != nil {
		p.OnlyHD = *o.OnlyHD
	}
	if o.ExcludeMachineTranslated != nil {
		p.ExcludeMachineTranslated = *o.ExcludeMachineTranslated
	}
	if o.IncludeHearingImpaired != nil {
		p.IncludeHearingImpaired = *o.IncludeHearingImpaired
	}
	return p, nil
}
