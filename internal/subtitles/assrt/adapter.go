package assrt

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"subtrove/internal/language"
	"subtrove/internal/logging"
	"subtrove/internal/services"
	"subtrove/internal/subtitles"
	"subtrove/internal/subtitles/provider"
)

// uploadLayout is the upload_time format, in China Standard Time.
const uploadLayout = "2006-01-02 15:04:05"

var chinaTime = time.FixedZone("CST", 8*60*60)

var langListTags = map[string]string{
	"langchs": language.SimplifiedChinese,
	"langcht": language.TraditionalChinese,
	"langeng": "en",
	"langjap": "ja",
	"langjpn": "ja",
	"langkor": "ko",
}

var langDescHints = []struct {
	hint string
	tag  string
}{
	{"简", language.SimplifiedChinese},
	{"繁", language.TraditionalChinese},
	{"英", "en"},
	{"日", "ja"},
	{"韩", "ko"},
}

// Adapter exposes the Assrt client as a provider.Adapter.
type Adapter struct {
	client   *Client
	throttle *provider.Throttle
	limits   *provider.LimitTracker
	logger   *slog.Logger
}

var _ provider.Adapter = (*Adapter)(nil)

// NewAdapter builds the adapter.
func NewAdapter(cfg Config, logger *slog.Logger, opts ...provider.ThrottleOption) (*Adapter, error) {
	client, err := New(cfg)
	if err != nil {
		return nil, err
	}
	logger = logging.NewComponentLogger(logger, "assrt")
	return &Adapter{
		client:   client,
		throttle: provider.NewThrottle(providerName, append([]provider.ThrottleOption{provider.WithLogger(logger)}, opts...)...),
		limits:   provider.NewLimitTracker(subtitles.SourceAssrt, 0),
		logger:   logger,
	}, nil
}

// Source implements provider.Adapter.
func (a *Adapter) Source() subtitles.Source { return subtitles.SourceAssrt }

// Limits implements provider.Adapter.
func (a *Adapter) Limits() subtitles.Limits { return a.limits.Snapshot() }

// Available checks the token against the quota endpoint.
func (a *Adapter) Available(ctx context.Context) bool {
	quota, err := a.client.Quota(ctx)
	if err != nil {
		a.note(err)
		a.logger.Debug("assrt quota check failed", logging.Error(err))
		return false
	}
	a.limits.Observe(-1, quota, time.Time{})
	return quota > 0
}

// Search walks the query variants until one yields hits.
func (a *Adapter) Search(ctx context.Context, req subtitles.SearchRequest) ([]subtitles.Record, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	if !a.limits.CanRequest() {
		return nil, services.Wrap(services.ErrProviderUnavailable, providerName, "search", "quota exhausted", nil)
	}
	for _, query := range provider.QueryVariants(req) {
		// The API rejects queries shorter than three characters.
		if len([]rune(query)) < 3 {
			continue
		}
		var (
			items   []SearchItem
			skipped int
		)
		err := a.throttle.Do(ctx, func(ctx context.Context) error {
			var err error
			items, skipped, err = a.client.Search(ctx, query, req.MaxResults)
			return err
		})
		a.limits.CountRequest()
		if err != nil {
			a.note(err)
			return nil, classify("search", err)
		}
		if skipped > 0 {
			logging.WarnWithContext(logging.WithContext(ctx, a.logger), "assrt returned malformed entries", "provider_partial_parse",
				logging.Int("skipped", skipped),
				logging.Int("kept", len(items)),
				logging.String(logging.FieldErrorHint, "provider response schema may have changed"),
				logging.String(logging.FieldImpact, "some candidates were dropped"),
			)
		}
		if len(items) == 0 {
			continue
		}
		records := make([]subtitles.Record, 0, len(items))
		for _, item := range items {
			records = append(records, toRecord(item, req.Languages))
		}
		return records, nil
	}
	return nil, nil
}

// Download resolves the package detail and keeps its best file. Packages
// without a file list are fetched as archives.
func (a *Adapter) Download(ctx context.Context, rec subtitles.Record, dest string) (string, error) {
	if existing, ok := provider.ExistingDownload(dest); ok {
		return existing, nil
	}
	id, err := strconv.ParseInt(strings.TrimSpace(rec.ID), 10, 64)
	if err != nil || id <= 0 {
		return "", services.Wrap(services.ErrValidation, providerName, "download", "record id is not an assrt id", err)
	}

	var detail Detail
	err = a.throttle.Do(ctx, func(ctx context.Context) error {
		var err error
		detail, err = a.client.Detail(ctx, id)
		return err
	})
	a.limits.CountRequest()
	if err != nil {
		a.note(err)
		return "", classify("detail", err)
	}

	languages := []string{rec.Language}
	var (
		name string
		data []byte
	)
	if best, ok := provider.ChooseBestFile(toEntries(detail.Files), languages); ok {
		name = best.Name
		err = a.throttle.Do(ctx, func(ctx context.Context) error {
			var err error
			data, err = a.client.Fetch(ctx, best.URL)
			return err
		})
	} else if detail.URL != "" {
		var archive []byte
		err = a.throttle.Do(ctx, func(ctx context.Context) error {
			var err error
			archive, err = a.client.Fetch(ctx, detail.URL)
			return err
		})
		if err == nil {
			var file provider.ArchiveFile
			file, err = provider.PickArchiveFile(archive, languages)
			name, data = file.Name, file.Data
		}
	} else {
		return "", services.Wrap(services.ErrFileIntegrity, providerName, "download", "package lists no subtitle files", nil)
	}
	if err != nil {
		return "", classify("fetch", err)
	}
	if len(data) == 0 {
		return "", services.Wrap(services.ErrFileIntegrity, providerName, "download", "provider returned an empty file", nil)
	}

	target := provider.AdoptExtension(dest, name)
	if err := provider.WriteFileAtomic(target, data, 0o644); err != nil {
		return "", services.Wrap(services.ErrFileIntegrity, providerName, "download", "write subtitle", err)
	}
	return target, nil
}

// note flags quota exhaustion reported inside the JSON envelope.
func (a *Adapter) note(err error) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == statusQuota {
		a.limits.MarkLimited(time.Time{})
	}
}

func classify(operation string, err error) error {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Code == statusInvalidToken || statusErr.Code == statusQuota {
			return services.Wrap(services.ErrProviderUnavailable, providerName, operation, "token rejected or quota exhausted", err)
		}
		return services.Wrap(services.ErrProviderTransport, providerName, operation, "api returned an error status", err)
	}
	return provider.ClassifyError(providerName, operation, err)
}

func toEntries(files []FileEntry) []provider.FileEntry {
	out := make([]provider.FileEntry, 0, len(files))
	for _, f := range files {
		out = append(out, provider.FileEntry{Name: f.Name, URL: f.URL, SizeText: f.SizeText})
	}
	return out
}

func toRecord(item SearchItem, wanted []string) subtitles.Record {
	lang := pickLanguage(item, wanted)
	title := strings.TrimSpace(item.NativeName)
	if title == "" {
		title = item.VideoName
	}
	format := subtitles.ParseFormat(item.Subtype)
	if format == subtitles.FormatUnknown {
		format = formatFromSubtype(item.Subtype)
	}
	rec := subtitles.Record{
		ID:           strconv.FormatInt(item.ID, 10),
		Source:       subtitles.SourceAssrt,
		Language:     lang,
		LanguageName: language.DisplayName(lang),
		Title:        title,
		Format:       format,
		Rating:       item.VoteScore,
	}
	if t, err := time.ParseInLocation(uploadLayout, strings.TrimSpace(item.UploadTime), chinaTime); err == nil {
		rec.UploadedAt = t.UTC()
	}
	if item.VideoName != "" {
		rec.SetMeta(subtitles.MetaRelease, item.VideoName)
	}
	if item.LangDesc != "" {
		rec.SetMeta("lang_desc", item.LangDesc)
	}
	if item.ReleaseSite != "" {
		rec.SetMeta("release_site", item.ReleaseSite)
	}
	return rec
}

// pickLanguage returns the first wanted language the package carries, else
// the first language it advertises.
func pickLanguage(item SearchItem, wanted []string) string {
	var offered []string
	for _, key := range item.LangList {
		if tag, ok := langListTags[strings.ToLower(key)]; ok {
			offered = append(offered, tag)
		}
	}
	for _, h := range langDescHints {
		if strings.Contains(item.LangDesc, h.hint) {
			offered = append(offered, h.tag)
		}
	}
	if len(offered) == 0 {
		return language.FromFileName(item.NativeName + " " + item.VideoName)
	}
	for _, want := range wanted {
		for _, have := range offered {
			if language.Matches(have, want) {
				return have
			}
		}
	}
	return offered[0]
}

func formatFromSubtype(subtype string) subtitles.Format {
	lower := strings.ToLower(subtype)
	for _, f := range []subtitles.Format{subtitles.FormatASS, subtitles.FormatSSA, subtitles.FormatSRT, subtitles.FormatVTT, subtitles.FormatSUB} {
		if strings.Contains(lower, string(f)) {
			return f
		}
	}
	if strings.Contains(lower, "subrip") {
		return subtitles.FormatSRT
	}
	return subtitles.FormatUnknown
}
