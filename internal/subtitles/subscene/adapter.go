package subscene

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"subtrove/internal/language"
	"subtrove/internal/logging"
	"subtrove/internal/services"
	"subtrove/internal/subtitles"
	"subtrove/internal/subtitles/provider"
	"subtrove/internal/textutil"
)

// minTitleScore is the weakest title-page match worth listing.
const minTitleScore = 0.6

// Subscene language labels that do not resolve through the language table.
var languageLabels = map[string]string{
	"chinese bg code":       language.SimplifiedChinese,
	"big 5 code":            language.TraditionalChinese,
	"farsi/persian":         "fa",
	"brazillian portuguese": "pt",
	"english":               "en",
}

var seasonOrdinals = []string{"", "first", "second", "third", "fourth", "fifth",
	"sixth", "seventh", "eighth", "ninth", "tenth", "eleventh", "twelfth"}

// Adapter exposes the Subscene scraper as a provider.Adapter.
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
	logger = logging.NewComponentLogger(logger, "subscene")
	return &Adapter{
		client:   client,
		throttle: provider.NewThrottle(providerName, append([]provider.ThrottleOption{provider.WithLogger(logger)}, opts...)...),
		limits:   provider.NewLimitTracker(subtitles.SourceSubscene, 0),
		logger:   logger,
	}, nil
}

// Source implements provider.Adapter.
func (a *Adapter) Source() subtitles.Source { return subtitles.SourceSubscene }

// Limits implements provider.Adapter. Subscene publishes no quota, so only
// the request count is tracked.
func (a *Adapter) Limits() subtitles.Limits { return a.limits.Snapshot() }

// Available reports true; the site needs no credentials and failures
// surface from Search.
func (a *Adapter) Available(context.Context) bool { return true }

// Search finds the best title page for the request's keywords and lists the
// rows in the requested languages.
func (a *Adapter) Search(ctx context.Context, req subtitles.SearchRequest) ([]subtitles.Record, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	for _, keyword := range req.Keywords() {
		var hits []TitleHit
		err := a.throttle.Do(ctx, func(ctx context.Context) error {
			var err error
			hits, err = a.client.SearchTitles(ctx, keyword)
			return err
		})
		a.limits.CountRequest()
		if err != nil {
			return nil, provider.ClassifyError(providerName, "search titles", err)
		}
		hit, score := bestTitle(hits, keyword, req)
		if score < minTitleScore {
			a.logger.Debug("no subscene title page matched",
				logging.String("keyword", keyword),
				logging.Int("candidates", len(hits)),
				logging.Float64("best_score", score),
			)
			continue
		}

		var rows []Row
		err = a.throttle.Do(ctx, func(ctx context.Context) error {
			var err error
			rows, err = a.client.TitleRows(ctx, hit.URL)
			return err
		})
		a.limits.CountRequest()
		if err != nil {
			return nil, provider.ClassifyError(providerName, "title rows", err)
		}
		records := toRecords(rows, hit, req)
		if len(records) == 0 {
			continue
		}
		return records, nil
	}
	return nil, nil
}

// Download fetches the archive behind the record's detail page and keeps
// the best file for its language.
func (a *Adapter) Download(ctx context.Context, rec subtitles.Record, dest string) (string, error) {
	if existing, ok := provider.ExistingDownload(dest); ok {
		return existing, nil
	}
	detail := strings.TrimSpace(rec.DownloadURL)
	if detail == "" {
		detail = rec.ID
	}
	if detail == "" {
		return "", services.Wrap(services.ErrValidation, providerName, "download", "record has no detail page", nil)
	}

	var archive []byte
	err := a.throttle.Do(ctx, func(ctx context.Context) error {
		var err error
		archive, err = a.client.DownloadArchive(ctx, detail)
		return err
	})
	a.limits.CountRequest()
	if err != nil {
		return "", provider.ClassifyError(providerName, "download", err)
	}
	file, err := provider.PickArchiveFile(archive, []string{rec.Language})
	if err != nil {
		return "", services.Wrap(services.ErrFileIntegrity, providerName, "download", "archive holds no usable subtitle", err)
	}
	if len(file.Data) == 0 {
		return "", services.Wrap(services.ErrFileIntegrity, providerName, "download", "provider returned an empty file", nil)
	}
	target := provider.AdoptExtension(dest, file.Name)
	if err := provider.WriteFileAtomic(target, file.Data, 0o644); err != nil {
		return "", services.Wrap(services.ErrFileIntegrity, providerName, "download", "write subtitle", err)
	}
	return target, nil
}

// bestTitle scores hits by title similarity, rewarding a matching year and,
// for episodes, the "Nth Season" page of the right season.
func bestTitle(hits []TitleHit, keyword string, req subtitles.SearchRequest) (TitleHit, float64) {
	var (
		best      TitleHit
		bestScore float64
	)
	for _, hit := range hits {
		name := hit.Name
		if req.IsEpisode() {
			name = stripSeasonSuffix(name)
		}
		score := textutil.TitleSimilarity(name, keyword)
		if req.Media.Year > 0 && hit.Year > 0 {
			if hit.Year == req.Media.Year {
				score += 0.1
			} else if !req.IsEpisode() {
				score -= 0.2
			}
		}
		if req.IsEpisode() && req.Media.Season > 0 && req.Media.Season < len(seasonOrdinals) {
			if strings.Contains(strings.ToLower(hit.Name), seasonOrdinals[req.Media.Season]+" season") {
				score += 0.2
			}
		}
		if score > bestScore {
			best, bestScore = hit, score
		}
	}
	return best, bestScore
}

func stripSeasonSuffix(name string) string {
	lower := strings.ToLower(name)
	if idx := strings.LastIndex(lower, " - "); idx > 0 && strings.HasSuffix(lower, " season") {
		return strings.TrimSpace(name[:idx])
	}
	return name
}

func toRecords(rows []Row, hit TitleHit, req subtitles.SearchRequest) []subtitles.Record {
	episodeTag := ""
	if req.IsEpisode() && req.Media.Episode > 0 {
		episodeTag = strings.ToLower(req.Media.EpisodeTag())
	}
	records := make([]subtitles.Record, 0, len(rows))
	for _, row := range rows {
		tag := languageTag(row.Language)
		if !wanted(tag, req.Languages) {
			continue
		}
		if episodeTag != "" && !strings.Contains(strings.ToLower(row.Release), episodeTag) {
			continue
		}
		rec := subtitles.Record{
			ID:           detailPath(row.DetailURL),
			Source:       subtitles.SourceSubscene,
			Language:     tag,
			LanguageName: row.Language,
			Title:        row.Release,
			Format:       subtitles.FormatSRT,
			DownloadURL:  row.DetailURL,
			Uploader:     row.Uploader,
		}
		rec.SetMeta(subtitles.MetaRelease, row.Release)
		rec.SetMeta(subtitles.MetaHearingImpaired, strconv.FormatBool(row.HearingImpaired))
		if hit.Year > 0 {
			rec.SetMeta(subtitles.MetaYear, strconv.Itoa(hit.Year))
		}
		if row.Files > 0 {
			rec.SetMeta("files", strconv.Itoa(row.Files))
		}
		if row.Comment != "" {
			rec.SetMeta("comment", row.Comment)
		}
		records = append(records, rec)
		if req.MaxResults > 0 && len(records) >= req.MaxResults {
			break
		}
	}
	return records
}

func languageTag(label string) string {
	key := strings.ToLower(strings.TrimSpace(label))
	if tag, ok := languageLabels[key]; ok {
		return tag
	}
	if tag := language.Canonical(key); tag != "" && tag != key {
		return tag
	}
	return language.FromFileName(label)
}

func wanted(tag string, languages []string) bool {
	if len(languages) == 0 {
		return true
	}
	for _, want := range languages {
		if language.Matches(tag, want) {
			return true
		}
	}
	return false
}

func detailPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return raw
	}
	return u.Path
}
