package search

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"subtrove/internal/logging"
	"subtrove/internal/services"
	"subtrove/internal/subtitles"
	"subtrove/internal/subtitles/match"
	"subtrove/internal/subtitles/provider"
)

const (
	defaultConcurrency = 4
	defaultTimeout     = 10 * time.Second
	// overallSlack is added to the request-wide deadline on top of the
	// per-provider timeouts.
	overallSlack = time.Second
)

// Store is the slice of the cache the orchestrator needs.
type Store interface {
	Get(ctx context.Context, fileID string) []subtitles.Record
	PutAll(ctx context.Context, records []subtitles.Record, fileID string) error
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency bounds how many providers are queried at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithRequestIDs replaces the request id generator.
func WithRequestIDs(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// Orchestrator runs searches across the registered providers.
type Orchestrator struct {
	registry    *provider.Registry
	store       Store
	logger      *slog.Logger
	concurrency int
	newID       func() string
	now         func() time.Time
}

// New wires an orchestrator. store may be nil, which disables both the
// cache short-circuit and persistence of results.
func New(registry *provider.Registry, store Store, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:    registry,
		store:       store,
		logger:      logging.NewComponentLogger(logger, "search"),
		concurrency: defaultConcurrency,
		newID:       uuid.NewString,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type outcome struct {
	records     []subtitles.Record
	err         error
	unavailable bool
}

// Search runs req under the caller's request id, or a fresh one when the
// context carries none. Provider failures are reported in Result.Errors and
// never fail the call. ErrNoEnabledSources is returned when no requested
// source has a registered, available adapter.
func (o *Orchestrator) Search(ctx context.Context, req subtitles.SearchRequest) (Result, error) {
	start := o.now()
	requestID, ok := services.RequestIDFromContext(ctx)
	if !ok {
		requestID = o.newID()
	}
	fileID := req.FileIdentifier()
	ctx = services.WithRequestID(ctx, requestID)
	ctx = services.WithMediaID(ctx, fileID)
	ctx = services.WithStage(ctx, "search")
	logger := logging.WithContext(ctx, o.logger)

	result := Result{RequestID: requestID, FileID: fileID}
	if err := req.Validate(); err != nil {
		return result, err
	}
	langs := match.LanguagesOf(req.Languages)

	if cached := o.cached(ctx, fileID); len(cached) > 0 {
		total := len(cached)
		if ranked := rank(req, cached, langs); len(ranked) > 0 {
			result.FromCache = true
			result.Total = total
			result.Matches = ranked
			result.Elapsed = o.now().Sub(start)
			logger.Info("search served from cache",
				logging.Args(append(logging.DecisionAttrs("search_source", "cache", "downloaded subtitles already available"),
					logging.Int("records", total),
					logging.Int("results", len(ranked)))...)...,
			)
			return result, nil
		}
		logger.Debug("cached subtitles rejected, querying providers",
			logging.Args(append(logging.DecisionAttrs("search_source", "providers", "no cached subtitle passed the match floor and filters"),
				logging.Int("records", total))...)...,
		)
	}

	adapters := o.registry.Select(req.Sources)
	if len(adapters) == 0 {
		result.Elapsed = o.now().Sub(start)
		return result, services.Wrap(services.ErrNoEnabledSources, "search", "select providers",
			"no requested source has a registered adapter", nil)
	}

	outcomes := o.fanOut(ctx, req, adapters)

	var merged []subtitles.Record
	unavailable := 0
	for i, out := range outcomes {
		source := adapters[i].Source()
		if out.unavailable {
			unavailable++
		}
		if out.err != nil {
			perr := newProviderError(source, out.err)
			result.Errors = append(result.Errors, perr)
			if !out.unavailable {
				logging.WarnWithContext(logger, "provider search failed", "provider_search_failed",
					logging.String(logging.FieldSource, string(source)),
					logging.String("error_kind", perr.Kind),
					logging.Error(out.err),
					logging.String(logging.FieldErrorHint, "check provider credentials and network reachability"),
					logging.String(logging.FieldImpact, "results from this provider are missing"),
				)
			}
		}
		merged = append(merged, out.records...)
	}
	if unavailable == len(adapters) {
		result.Elapsed = o.now().Sub(start)
		return result, services.Wrap(services.ErrNoEnabledSources, "search", "select providers",
			"every requested provider is unavailable", nil)
	}

	result.Total = len(merged)
	ranked := rank(req, merged, langs)
	result.Matches = ranked

	if o.store != nil && len(ranked) > 0 {
		if err := o.store.PutAll(ctx, result.Records(), fileID); err != nil {
			logging.WarnWithContext(logger, "failed to cache search results", "cache_write_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the cache directory and index database"),
				logging.String(logging.FieldImpact, "the next search for this media will query providers again"),
			)
		}
	}

	result.Elapsed = o.now().Sub(start)
	logger.Info("search complete",
		logging.Int("providers", len(adapters)),
		logging.Int("provider_errors", len(result.Errors)),
		logging.Int("candidates", result.Total),
		logging.Int("results", len(result.Matches)),
		logging.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// rank filters records by the request's quality options, scores them against
// the media, drops those under the similarity floor, and orders and truncates
// what is left. Cached and provider records share it.
func rank(req subtitles.SearchRequest, records []subtitles.Record, langs match.Languages) []match.Result {
	ranked := match.Rank(req.Media, filter(req, records), langs)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		return a.Quality > b.Quality
	})
	if req.MaxResults > 0 && len(ranked) > req.MaxResults {
		ranked = ranked[:req.MaxResults]
	}
	return ranked
}

// cached returns downloaded records for fileID re-tagged as local.
func (o *Orchestrator) cached(ctx context.Context, fileID string) []subtitles.Record {
	if o.store == nil {
		return nil
	}
	records := o.store.Get(ctx, fileID)
	out := make([]subtitles.Record, 0, len(records))
	for _, rec := range records {
		if !rec.Available() {
			continue
		}
		rec = rec.Clone()
		if rec.Source != subtitles.SourceLocal {
			rec.SetMeta(subtitles.MetaOriginSource, string(rec.Source))
			rec.Source = subtitles.SourceLocal
		}
		out = append(out, rec)
	}
	return out
}

// fanOut queries every adapter and returns outcomes in adapter order.
func (o *Orchestrator) fanOut(ctx context.Context, req subtitles.SearchRequest, adapters []provider.Adapter) []outcome {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := o.concurrency
	waves := (len(adapters) + limit - 1) / limit
	ctx, cancel := context.WithTimeout(ctx, time.Duration(waves)*timeout+overallSlack)
	defer cancel()

	outcomes := make([]outcome, len(adapters))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, adapter := range adapters {
		g.Go(func() error {
			outcomes[i] = o.query(ctx, req, adapter, timeout)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (o *Orchestrator) query(ctx context.Context, req subtitles.SearchRequest, adapter provider.Adapter, timeout time.Duration) outcome {
	source := adapter.Source()
	if err := ctx.Err(); err != nil {
		return outcome{err: services.Classify("search", string(source), err)}
	}
	ctx, cancel := context.WithTimeout(services.WithSource(ctx, string(source)), timeout)
	defer cancel()

	if !adapter.Available(ctx) {
		return outcome{
			unavailable: true,
			err:         services.Wrap(services.ErrProviderUnavailable, "search", string(source), "availability check failed", nil),
		}
	}
	records, err := adapter.Search(ctx, req)
	for i := range records {
		if records[i].Source == "" {
			records[i].Source = source
		}
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, services.ErrProviderTimeout) {
			err = services.Wrap(services.ErrProviderTimeout, "search", string(source), "provider exceeded search timeout", err)
		}
		return outcome{records: records, err: services.Classify("search", string(source), err)}
	}
	return outcome{records: records}
}
