package opensubtitles

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"subtrove/internal/language"
	"subtrove/internal/logging"
	"subtrove/internal/services"
	"subtrove/internal/subtitles"
	"subtrove/internal/subtitles/provider"
)

// DefaultRequestsPerDay is the documented free-tier download quota.
const DefaultRequestsPerDay = 200

// Adapter exposes the OpenSubtitles client as a provider.Adapter.
type Adapter struct {
	client   *Client
	throttle *provider.Throttle
	limits   *provider.LimitTracker
	logger   *slog.Logger
	now      func() time.Time
}

var _ provider.Adapter = (*Adapter)(nil)

// NewAdapter builds the adapter and wires quota tracking into every response.
func NewAdapter(cfg Config, logger *slog.Logger, opts ...provider.ThrottleOption) (*Adapter, error) {
	client, err := New(cfg)
	if err != nil {
		return nil, err
	}
	logger = logging.NewComponentLogger(logger, "opensubtitles")
	a := &Adapter{
		client:   client,
		throttle: provider.NewThrottle(providerName, append([]provider.ThrottleOption{provider.WithLogger(logger)}, opts...)...),
		limits:   provider.NewLimitTracker(subtitles.SourceOpenSubtitles, DefaultRequestsPerDay),
		logger:   logger,
		now:      time.Now,
	}
	client.onHeaders = a.observeHeaders
	return a, nil
}

// Source implements provider.Adapter.
func (a *Adapter) Source() subtitles.Source { return subtitles.SourceOpenSubtitles }

// Limits implements provider.Adapter.
func (a *Adapter) Limits() subtitles.Limits { return a.limits.Snapshot() }

// Available refreshes the login token when credentials are configured and
// reports false once the daily quota is exhausted.
func (a *Adapter) Available(ctx context.Context) bool {
	if !a.limits.CanRequest() {
		return false
	}
	if err := a.client.EnsureToken(ctx); err != nil {
		a.logger.Debug("opensubtitles login failed", logging.Error(err))
		return false
	}
	return true
}

// Search tries an id lookup first when the media carries IMDb or TMDB ids,
// then the query variants in order, stopping at the first non-empty answer.
func (a *Adapter) Search(ctx context.Context, req subtitles.SearchRequest) ([]subtitles.Record, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	if !a.limits.CanRequest() {
		return nil, services.Wrap(services.ErrProviderUnavailable, providerName, "search", "daily quota exhausted", nil)
	}
	if err := a.client.EnsureToken(ctx); err != nil {
		return nil, provider.ClassifyError(providerName, "login", err)
	}

	base := SearchRequest{
		Languages: providerLanguages(req.Languages),
		Season:    req.Media.Season,
		Episode:   req.Media.Episode,
		Year:      req.Media.Year,
	}
	if !req.IncludeHearingImpaired {
		base.HearingImpaired = "exclude"
	}
	if req.ExcludeMachineTranslated {
		base.MachineFilter = "exclude"
	}

	var attempts []SearchRequest
	if req.Media.IMDBID != "" || req.Media.TMDBID > 0 {
		byID := base
		byID.IMDBID = req.Media.IMDBID
		byID.TMDBID = req.Media.TMDBID
		attempts = append(attempts, byID)
	}
	for _, query := range provider.QueryVariants(req) {
		variant := base
		variant.Query = query
		attempts = append(attempts, variant)
	}

	for _, attempt := range attempts {
		var resp SearchResponse
		err := a.throttle.Do(ctx, func(ctx context.Context) error {
			var err error
			resp, err = a.client.Search(ctx, attempt)
			return err
		})
		if err != nil {
			return nil, provider.ClassifyError(providerName, "search", err)
		}
		if resp.Skipped > 0 {
			logging.WarnWithContext(logging.WithContext(ctx, a.logger), "opensubtitles returned malformed entries", "provider_partial_parse",
				logging.Int("skipped", resp.Skipped),
				logging.Int("kept", len(resp.Subtitles)),
				logging.String(logging.FieldErrorHint, "provider response schema may have changed"),
				logging.String(logging.FieldImpact, "some candidates were dropped"),
			)
		}
		if len(resp.Subtitles) == 0 {
			continue
		}
		records := make([]subtitles.Record, 0, len(resp.Subtitles))
		for _, sub := range resp.Subtitles {
			records = append(records, toRecord(sub))
		}
		a.logger.Debug("opensubtitles search complete",
			logging.String("query", attempt.Query),
			logging.Int("results", len(records)),
			logging.Int("total", resp.Total),
		)
		return records, nil
	}
	return nil, nil
}

// Download negotiates a link for the record's file id and writes the payload
// to dest. Quota counters from the response update the limit snapshot.
func (a *Adapter) Download(ctx context.Context, rec subtitles.Record, dest string) (string, error) {
	if existing, ok := provider.ExistingDownload(dest); ok {
		return existing, nil
	}
	fileID, err := recordFileID(rec)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, providerName, "download", "record carries no file id", err)
	}
	if err := a.client.EnsureToken(ctx); err != nil {
		return "", provider.ClassifyError(providerName, "login", err)
	}

	var result DownloadResult
	err = a.throttle.Do(ctx, func(ctx context.Context) error {
		var err error
		result, err = a.client.Download(ctx, fileID)
		return err
	})
	if err != nil {
		var statusErr *provider.StatusError
		if errors.As(err, &statusErr) && (statusErr.Code == http.StatusNotAcceptable || statusErr.Code == http.StatusTooManyRequests) {
			a.limits.MarkLimited(time.Time{})
		}
		return "", provider.ClassifyError(providerName, "download", err)
	}
	if result.Remaining >= 0 || result.Requests >= 0 {
		a.limits.Observe(result.Requests, result.Remaining, result.ResetAt)
	}
	if len(result.Data) == 0 {
		return "", services.Wrap(services.ErrFileIntegrity, providerName, "download", "provider returned an empty file", nil)
	}
	if err := provider.WriteFileAtomic(dest, result.Data, 0o644); err != nil {
		return "", services.Wrap(services.ErrFileIntegrity, providerName, "download", "write subtitle", err)
	}
	return dest, nil
}

// observeHeaders reads X-RateLimit-* headers. Responses without them count
// as one request against the local snapshot.
func (a *Adapter) observeHeaders(h http.Header) {
	remaining := headerInt(h, "X-RateLimit-Requests-Remaining", "X-RateLimit-Remaining-Day", "RateLimit-Remaining")
	if remaining < 0 {
		a.limits.CountRequest()
		return
	}
	used := -1
	if perDay := a.limits.Snapshot().RequestsPerDay; perDay > 0 && remaining <= perDay {
		used = perDay - remaining
	}
	a.limits.Observe(used, remaining, a.resetFromHeaders(h))
}

func (a *Adapter) resetFromHeaders(h http.Header) time.Time {
	value := headerInt(h, "X-RateLimit-Reset", "RateLimit-Reset")
	switch {
	case value <= 0:
		return time.Time{}
	case value > 1_000_000_000:
		return time.Unix(int64(value), 0).UTC()
	default:
		return a.now().Add(time.Duration(value) * time.Second).UTC()
	}
}

func headerInt(h http.Header, keys ...string) int {
	for _, key := range keys {
		raw := strings.TrimSpace(h.Get(key))
		if raw == "" {
			continue
		}
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return -1
}

func providerLanguages(languages []string) []string {
	out := make([]string, 0, len(languages))
	seen := make(map[string]struct{}, len(languages))
	for _, code := range languages {
		canonical := language.Canonical(code)
		if canonical == "" || canonical == language.Unknown {
			continue
		}
		if _, ok := seen[canonical]; ok {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return out
}

func recordFileID(rec subtitles.Record) (int64, error) {
	raw, ok := rec.Meta(subtitles.MetaFileID)
	if !ok {
		raw = rec.ID
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errors.New("file id must be positive")
	}
	return id, nil
}

func toRecord(sub Subtitle) subtitles.Record {
	lang := language.Canonical(sub.Language)
	title := strings.TrimSpace(sub.Release)
	if title == "" {
		title = sub.FeatureTitle
	}
	rec := subtitles.Record{
		ID:           strconv.FormatInt(sub.FileID, 10),
		Source:       subtitles.SourceOpenSubtitles,
		Language:     lang,
		LanguageName: language.DisplayName(lang),
		Title:        title,
		Format:       subtitles.FormatSRT,
		Encoding:     "UTF-8",
		Rating:       sub.Rating,
		Downloads:    sub.Downloads,
		UploadedAt:   sub.UploadedAt,
		Uploader:     sub.Uploader,
	}
	rec.SetMeta(subtitles.MetaFileID, strconv.FormatInt(sub.FileID, 10))
	rec.SetMeta("subtitle_id", sub.ID)
	rec.SetMeta(subtitles.MetaHD, strconv.FormatBool(sub.HD))
	rec.SetMeta(subtitles.MetaHearingImpaired, strconv.FormatBool(sub.HearingImpaired))
	rec.SetMeta(subtitles.MetaMachineTranslated, strconv.FormatBool(sub.MachineTranslated))
	if sub.Release != "" {
		rec.SetMeta(subtitles.MetaRelease, sub.Release)
	}
	if sub.FeatureTitle != "" {
		rec.SetMeta("feature_title", sub.FeatureTitle)
	}
	if sub.FeatureYear > 0 {
		rec.SetMeta(subtitles.MetaYear, strconv.Itoa(sub.FeatureYear))
	}
	if sub.Season > 0 {
		rec.SetMeta(subtitles.MetaSeason, strconv.Itoa(sub.Season))
	}
	if sub.Episode > 0 {
		rec.SetMeta(subtitles.MetaEpisode, strconv.Itoa(sub.Episode))
	}
	if sub.FileName != "" {
		rec.SetMeta("file_name", sub.FileName)
	}
	return rec
}
