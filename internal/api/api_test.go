package api

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"subtrove/internal/services"
	"subtrove/internal/subtitles"
	"subtrove/internal/subtitles/cache"
	"subtrove/internal/subtitles/match"
	"subtrove/internal/subtitles/retrieve"
	"subtrove/internal/subtitles/search"
)

func boolPtr(v bool) *bool { return &v }

func TestPolicyOverridesApply(t *testing.T) {
	base := subtitles.DefaultPolicy()
	minRating := 7.5

	got, err := PolicyOverrides{
		PrimaryLanguage:    "EN",
		AutoDownload:       boolPtr(false),
		DownloadQuality:    "most_downloaded",
		Sources:            []string{"assrt", " Subscene "},
		TimeoutSeconds:     3,
		MaxResults:         5,
		MinRating:          &minRating,
		OnlyHD:             boolPtr(true),
		AutoSelectLanguage: boolPtr(false),
	}.Apply(base)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.PrimaryLanguage != "en" || got.FallbackLanguage != base.FallbackLanguage {
		t.Fatalf("unexpected languages: %q/%q", got.PrimaryLanguage, got.FallbackLanguage)
	}
	if got.AutoDownload || got.AutoSelectLanguage || !got.OnlyHD {
		t.Fatalf("unexpected flags: %+v", got)
	}
	if got.DownloadQuality != subtitles.QualityMostDownloaded || got.SearchTimeout != 3*time.Second {
		t.Fatalf("unexpected quality or timeout: %+v", got)
	}
	if got.MaxResults != 5 || got.MinRating != 7.5 {
		t.Fatalf("unexpected limits: %+v", got)
	}
	if len(got.EnabledSources) != 2 || got.EnabledSources[1] != subtitles.SourceSubscene {
		t.Fatalf("unexpected sources: %v", got.EnabledSources)
	}
	if len(base.EnabledSources) != 2 || base.EnabledSources[0] != subtitles.SourceOpenSubtitles {
		t.Fatal("base policy must not be modified")
	}

	unchanged, err := PolicyOverrides{}.Apply(base)
	if err != nil {
		t.Fatalf("Apply empty: %v", err)
	}
	if unchanged.PrimaryLanguage != base.PrimaryLanguage || unchanged.MaxResults != base.MaxResults {
		t.Fatalf("empty overrides changed the policy: %+v", unchanged)
	}
}

func TestPolicyOverridesRejectInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		o    PolicyOverrides
	}{
		{name: "quality", o: PolicyOverrides{DownloadQuality: "shiniest"}},
		{name: "source", o: PolicyOverrides{Sources: []string{"napster"}}},
		{name: "local source", o: PolicyOverrides{Sources: []string{"local"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.o.Apply(subtitles.DefaultPolicy())
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSubtitleRoundTripsThroughRecord(t *testing.T) {
	uploaded := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := subtitles.Record{
		ID:         "77",
		Source:     subtitles.SourceOpenSubtitles,
		Language:   "zh-cn",
		Title:      "Inception",
		Format:     subtitles.FormatASS,
		Rating:     8.5,
		Downloads:  1200,
		UploadedAt: uploaded,
		Metadata:   map[string]string{subtitles.MetaYear: "2010"},
	}
	dto := FromRecord(rec)
	if dto.LanguageName == "" || dto.MIMEType != "text/x-ssa" || dto.UploadedAt == "" {
		t.Fatalf("unexpected dto: %+v", dto)
	}
	back := dto.ToRecord()
	if back.ID != rec.ID || back.Source != rec.Source || back.Format != rec.Format {
		t.Fatalf("unexpected record: %+v", back)
	}
	if !back.UploadedAt.Equal(uploaded) {
		t.Fatalf("upload time: got %v want %v", back.UploadedAt, uploaded)
	}
	back.Metadata[subtitles.MetaYear] = "1999"
	if rec.Metadata[subtitles.MetaYear] != "2010" {
		t.Fatal("metadata must be copied")
	}
}

func TestFromSearchResultAndSelection(t *testing.T) {
	result := search.Result{
		RequestID: "req-1",
		FileID:    "tt1375666",
		Total:     3,
		Elapsed:   1500 * time.Millisecond,
		Matches: []match.Result{{
			Record:     subtitles.Record{ID: "1", Source: subtitles.SourceSubscene, Format: subtitles.FormatSRT},
			Similarity: 0.92,
			Reasons:    []match.Reason{match.ReasonExcellentMatch},
		}},
		Errors: []search.ProviderError{{Source: subtitles.SourceAssrt, Kind: "timeout", Message: "deadline"}},
	}
	resp := FromSearchResult(result)
	if resp.ElapsedMS != 1500 || resp.TotalCount != 3 || len(resp.Matches) != 1 || len(resp.Errors) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Matches[0].Tier != string(match.TierExcellent) || resp.Matches[0].Reasons[0] != "excellent_match" {
		t.Fatalf("unexpected match: %+v", resp.Matches[0])
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"requestId", "fileId", "totalCount", "elapsedMs", "matches", "errors"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("expected key %q in %s", key, payload)
		}
	}

	missing := FromSelection(retrieve.Selection{Search: &result}, false)
	if missing.Found || missing.Subtitle != nil || missing.Search == nil {
		t.Fatalf("unexpected empty selection: %+v", missing)
	}
	found := FromSelection(retrieve.Selection{
		Record:   result.Matches[0].Record,
		Path:     "/cache/files/a.srt",
		MIMEType: "application/x-subrip",
		Origin:   retrieve.OriginDownload,
	}, true)
	if !found.Found || found.Subtitle == nil || found.Origin != "download" || found.Search != nil {
		t.Fatalf("unexpected selection: %+v", found)
	}
}

func TestFromLimitsAndCache(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	limits := FromLimits([]subtitles.Limits{
		{Source: subtitles.SourceOpenSubtitles, RequestsPerDay: 200, Used: 200, Remaining: 0, ResetAt: now.Add(time.Hour)},
		subtitles.UnknownLimits(subtitles.SourceSubscene, 0),
	}, now)
	if len(limits.Providers) != 2 {
		t.Fatalf("unexpected providers: %+v", limits.Providers)
	}
	if limits.Providers[0].CanRequest || !limits.Providers[1].CanRequest {
		t.Fatalf("unexpected availability: %+v", limits.Providers)
	}
	if limits.Providers[1].ResetAt != "" {
		t.Fatalf("unknown reset must be omitted, got %q", limits.Providers[1].ResetAt)
	}

	report := cache.Report{
		Expired:  cache.CleanupResult{Records: 2, Files: 1, Bytes: 10},
		Orphans:  cache.CleanupResult{Files: 3, Bytes: 30},
		Duration: 40 * time.Millisecond,
		RanAt:    now,
	}
	cleanup := FromReport(report)
	if cleanup.Total.Records != 2 || cleanup.Total.Files != 4 || cleanup.Total.Bytes != 40 {
		t.Fatalf("unexpected totals: %+v", cleanup.Total)
	}
	if cleanup.Evicted == nil || cleanup.Evicted.Files != 0 || cleanup.DurationMS != 40 {
		t.Fatalf("unexpected report: %+v", cleanup)
	}

	stats := FromCacheStats(cache.Stats{Records: 4, Files: 2, TotalBytes: 99})
	if stats.Records != 4 || stats.LastCleanup != "" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
