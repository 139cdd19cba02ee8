package api

import (
	"maps"
	"strings"
	"time"

	"subtrove/internal/language"
	"subtrove/internal/subtitles"
	"subtrove/internal/subtitles/cache"
	"subtrove/internal/subtitles/match"
	"subtrove/internal/subtitles/retrieve"
	"subtrove/internal/subtitles/search"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func parseTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{dateTimeFormat, time.RFC3339Nano, time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// FromRecord converts a subtitle record to its API representation.
func FromRecord(rec subtitles.Record) Subtitle {
	name := rec.LanguageName
	if name == "" && rec.Language != "" {
		name = language.DisplayName(rec.Language)
	}
	return Subtitle{
		ID:           rec.ID,
		Source:       string(rec.Source),
		Language:     rec.Language,
		LanguageName: name,
		Title:        rec.Title,
		Format:       string(rec.Format),
		MIMEType:     rec.Format.MIMEType(),
		Encoding:     rec.Encoding,
		Rating:       rec.Rating,
		Downloads:    rec.Downloads,
		UploadedAt:   formatTime(rec.UploadedAt),
		FileSize:     rec.FileSize,
		DownloadURL:  rec.DownloadURL,
		Uploader:     rec.Uploader,
		LocalPath:    rec.LocalPath,
		ContentHash:  rec.ContentHash,
		Downloaded:   rec.Downloaded,
		Metadata:     maps.Clone(rec.Metadata),
	}
}

// ToRecord converts an API subtitle back into a record.
func (s Subtitle) ToRecord() subtitles.Record {
	format := subtitles.Format(strings.ToLower(s.Format))
	if format == "" {
		format = subtitles.FormatUnknown
	}
	return subtitles.Record{
		ID:           strings.TrimSpace(s.ID),
		Source:       subtitles.Source(strings.ToLower(strings.TrimSpace(s.Source))),
		Language:     strings.ToLower(s.Language),
		LanguageName: s.LanguageName,
		Title:        s.Title,
		Format:       format,
		Encoding:     s.Encoding,
		Rating:       s.Rating,
		Downloads:    s.Downloads,
		UploadedAt:   parseTime(s.UploadedAt),
		FileSize:     s.FileSize,
		DownloadURL:  s.DownloadURL,
		Uploader:     s.Uploader,
		LocalPath:    s.LocalPath,
		ContentHash:  s.ContentHash,
		Downloaded:   s.Downloaded,
		Metadata:     maps.Clone(s.Metadata),
	}
}

// FromMatch converts a scored result.
func FromMatch(m match.Result) Match {
	reasons := make([]string, 0, len(m.Reasons))
	for _, r := range m.Reasons {
		reasons = append(reasons, string(r))
	}
	return Match{
		Subtitle:   FromRecord(m.Record),
		Similarity: m.Similarity,
		Confidence: m.Confidence,
		Quality:    m.Quality,
		Tier:       string(m.Tier()),
		Reasons:    reasons,
	}
}

// FromSearchResult converts a search outcome.
func FromSearchResult(r search.Result) SearchResponse {
	resp := SearchResponse{
		RequestID:  r.RequestID,
		FileID:     r.FileID,
		TotalCount: r.Total,
		FromCache:  r.FromCache,
		ElapsedMS:  r.Elapsed.Milliseconds(),
		Matches:    make([]Match, 0, len(r.Matches)),
	}
	for _, m := range r.Matches {
		resp.Matches = append(resp.Matches, FromMatch(m))
	}
	for _, e := range r.Errors {
		resp.Errors = append(resp.Errors, ProviderError{
			Source:  string(e.Source),
			Kind:    e.Kind,
			Message: e.Message,
		})
	}
	return resp
}

// FromSelection converts an automatic selection.
func FromSelection(sel retrieve.Selection, found bool) SelectResponse {
	resp := SelectResponse{Found: found}
	if sel.Search != nil {
		s := FromSearchResult(*sel.Search)
		resp.Search = &s
	}
	if !found {
		return resp
	}
	sub := FromRecord(sel.Record)
	resp.Origin = string(sel.Origin)
	resp.Path = sel.Path
	resp.MIMEType = sel.MIMEType
	resp.Subtitle = &sub
	return resp
}

// FromLimits converts provider quota snapshots.
func FromLimits(limits []subtitles.Limits, now time.Time) LimitsResponse {
	resp := LimitsResponse{Providers: make([]ProviderLimits, 0, len(limits))}
	for _, l := range limits {
		resp.Providers = append(resp.Providers, ProviderLimits{
			Source:         string(l.Source),
			RequestsPerDay: l.RequestsPerDay,
			Used:           l.Used,
			Remaining:      l.Remaining,
			ResetAt:        formatTime(l.ResetAt),
			Limited:        l.Limited,
			CanRequest:     l.CanRequest(now),
			UpdatedAt:      formatTime(l.UpdatedAt),
		})
	}
	return resp
}

// FromCacheStats converts cache statistics.
func FromCacheStats(s cache.Stats) CacheStats {
	return CacheStats{
		Directory:    s.Directory,
		Records:      s.Records,
		Downloaded:   s.Downloaded,
		MediaEntries: s.MediaEntries,
		Files:        s.Files,
		TotalBytes:   s.TotalBytes,
		MaxBytes:     s.MaxBytes,
		FreeBytes:    s.FreeBytes,
		TotalFSBytes: s.TotalFSBytes,
		LastCleanup:  formatTime(s.LastCleanup),
	}
}

func counts(r cache.CleanupResult) CleanupCounts {
	return CleanupCounts{Records: r.Records, Files: r.Files, Bytes: r.Bytes}
}

// FromReport converts a full maintenance pass.
func FromReport(r cache.Report) CleanupResponse {
	expired, evicted, orphans := counts(r.Expired), counts(r.Evicted), counts(r.Orphans)
	return CleanupResponse{
		Expired:    &expired,
		Evicted:    &evicted,
		Orphans:    &orphans,
		Total:      counts(r.Total()),
		DurationMS: r.Duration.Milliseconds(),
		RanAt:      formatTime(r.RanAt),
	}
}

// FromCleanup converts a single cleanup step.
func FromCleanup(r cache.CleanupResult) CleanupResponse {
	return CleanupResponse{Total: counts(r)}
}
