package retrieve

import (
	"context"
	"log/slog"
	"sort"

	"subtrove/internal/language"
	"subtrove/internal/logging"
	"subtrove/internal/media"
	"subtrove/internal/services"
	"subtrove/internal/subtitles"
	"subtrove/internal/subtitles/match"
	"subtrove/internal/subtitles/search"
)

// Origin says where a selected subtitle came from.
type Origin string

const (
	OriginSidecar  Origin = "sidecar"
	OriginCache    Origin = "cache"
	OriginDownload Origin = "download"
)

// Selection is the subtitle handed to playback.
type Selection struct {
	Record   subtitles.Record `json:"record"`
	Path     string           `json:"path"`
	MIMEType string           `json:"mime_type"`
	Origin   Origin           `json:"origin"`
	// Search is set when the selection required a provider search.
	Search *search.Result `json:"search,omitempty"`
}

// Searcher runs provider searches.
type Searcher interface {
	Search(ctx context.Context, req subtitles.SearchRequest) (search.Result, error)
}

// Lookup returns cached records for a file identifier.
type Lookup interface {
	Get(ctx context.Context, fileID string) []subtitles.Record
}

// Selector picks the subtitle playback should use.
type Selector struct {
	searcher  Searcher
	retriever *Retriever
	cache     Lookup
	logger    *slog.Logger
}

// NewSelector wires the selector.
func NewSelector(searcher Searcher, retriever *Retriever, cache Lookup, logger *slog.Logger) *Selector {
	return &Selector{
		searcher:  searcher,
		retriever: retriever,
		cache:     cache,
		logger:    logging.NewComponentLogger(logger, "selector"),
	}
}

// Available gathers sidecar files and cached downloads for d, de-duplicated
// by language, source, and content hash. Sidecars come first.
func (s *Selector) Available(ctx context.Context, d media.Descriptor) ([]subtitles.Record, error) {
	sidecars, err := Discover(d.FilePath)
	if err != nil {
		return nil, err
	}
	var cached []subtitles.Record
	if s.cache != nil {
		cached = s.cache.Get(ctx, d.FileIdentifier())
	}
	seen := make(map[string]struct{}, len(sidecars)+len(cached))
	out := make([]subtitles.Record, 0, len(sidecars)+len(cached))
	for _, rec := range append(sidecars, cached...) {
		if !rec.Available() {
			continue
		}
		key := rec.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}
	return out, nil
}

// SelectBest returns the subtitle to apply for d. The boolean is false when
// nothing suitable exists, which is not an error.
func (s *Selector) SelectBest(ctx context.Context, d media.Descriptor, policy subtitles.Policy) (Selection, bool, error) {
	d = d.Resolved()
	ctx = services.WithStage(services.WithMediaID(ctx, d.FileIdentifier()), "select")
	logger := logging.WithContext(ctx, s.logger)

	available, err := s.Available(ctx, d)
	if err != nil {
		return Selection{}, false, err
	}
	languages := policy.Languages()

	if len(available) > 0 {
		rec := PickByLanguage(available, languages)
		origin := OriginCache
		if rec.Source == subtitles.SourceLocal {
			origin = OriginSidecar
		}
		logger.Info("subtitle selected",
			logging.Args(append(logging.DecisionAttrs("subtitle_selection", string(origin), "available subtitle matched language policy"),
				logging.String("language", rec.Language),
				logging.String("path", rec.LocalPath))...)...,
		)
		return newSelection(rec, origin, nil), true, nil
	}
	if !policy.AutoDownload || s.searcher == nil || s.retriever == nil {
		logger.Info("no subtitle available",
			logging.Args(logging.DecisionAttrs("subtitle_selection", "none", "nothing available and auto download disabled")...)...)
		return Selection{}, false, nil
	}

	result, err := s.searcher.Search(ctx, subtitles.NewSearchRequest(d, policy))
	if err != nil {
		return Selection{}, false, err
	}
	candidate, ok := Prefer(d, result.Matches, policy.DownloadQuality)
	if !ok {
		logger.Info("no compatible subtitle found",
			logging.Args(append(logging.DecisionAttrs("subtitle_selection", "none", "search returned no compatible candidates"),
				logging.Int("candidates", len(result.Matches)))...)...,
		)
		return Selection{Search: &result}, false, nil
	}
	stored, err := s.retriever.Download(ctx, candidate.Record, d.FileIdentifier())
	if err != nil {
		return Selection{Search: &result}, false, err
	}
	logger.Info("subtitle selected",
		logging.Args(append(logging.DecisionAttrs("subtitle_selection", string(OriginDownload), "downloaded preferred search candidate"),
			logging.String("language", stored.Language),
			logging.String(logging.FieldSource, string(stored.Source)),
			logging.Float64("similarity", candidate.Similarity),
			logging.String("path", stored.LocalPath))...)...,
	)
	return newSelection(stored, OriginDownload, &result), true, nil
}

func newSelection(rec subtitles.Record, origin Origin, result *search.Result) Selection {
	format := rec.Format
	if format == "" || format == subtitles.FormatUnknown {
		format = subtitles.FormatFromName(rec.LocalPath)
	}
	return Selection{
		Record:   rec,
		Path:     rec.LocalPath,
		MIMEType: format.MIMEType(),
		Origin:   origin,
		Search:   result,
	}
}

// PickByLanguage returns the first record in the primary language, else the
// first in a later preference, else the first record. Ranking scores are
// not consulted.
func PickByLanguage(records []subtitles.Record, languages []string) subtitles.Record {
	for _, want := range languages {
		want = language.Canonical(want)
		for _, rec := range records {
			if language.Canonical(rec.Language) == want {
				return rec
			}
		}
	}
	return records[0]
}

// Prefer chooses which ranked search result to download. Candidates that
// fail the compatibility gate are never chosen.
func Prefer(d media.Descriptor, results []match.Result, quality subtitles.Quality) (match.Result, bool) {
	compatible := make([]match.Result, 0, len(results))
	for _, r := range results {
		if match.CheckCompatibility(d, r.Record).Compatible {
			compatible = append(compatible, r)
		}
	}
	if len(compatible) == 0 {
		return match.Result{}, false
	}
	switch quality {
	case subtitles.QualityMostDownloaded:
		sort.SliceStable(compatible, func(i, j int) bool {
			return compatible[i].Record.Downloads > compatible[j].Record.Downloads
		})
	case subtitles.QualityLatest:
		sort.SliceStable(compatible, func(i, j int) bool {
			return compatible[i].Record.UploadedAt.After(compatible[j].Record.UploadedAt)
		})
	}
	return compatible[0], true
}
