package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"subtrove/internal/config"
	"subtrove/internal/logging"
	"subtrove/internal/media"
	"subtrove/internal/media/ffprobe"
	"subtrove/internal/subtitles"
	"subtrove/internal/subtitles/assrt"
	"subtrove/internal/subtitles/cache"
	"subtrove/internal/subtitles/opensubtitles"
	"subtrove/internal/subtitles/provider"
	"subtrove/internal/subtitles/retrieve"
	"subtrove/internal/subtitles/search"
	"subtrove/internal/subtitles/subscene"
)

// Option customizes engine construction.
type Option func(*options)

type options struct {
	adapters     []provider.Adapter
	throttle     []provider.ThrottleOption
	skipAdapters bool
}

// WithAdapters registers the given adapters instead of building them from
// configuration.
func WithAdapters(adapters ...provider.Adapter) Option {
	return func(o *options) {
		o.adapters = append(o.adapters, adapters...)
		o.skipAdapters = true
	}
}

// WithThrottleOptions is passed to every adapter built from configuration.
func WithThrottleOptions(opts ...provider.ThrottleOption) Option {
	return func(o *options) {
		o.throttle = append(o.throttle, opts...)
	}
}

// Engine is the assembled subtitle engine.
type Engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	cache    *cache.Cache
	registry *provider.Registry
	search   *search.Orchestrator
	retrieve *retrieve.Retriever
	selector *retrieve.Selector
	maint    *cache.Maintainer
}

// New opens the cache and builds every component. Callers must Close the
// engine.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("engine requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	store, err := cache.Open(ctx, cache.Options{
		IndexPath: cfg.CacheIndexPath(),
		FilesDir:  cfg.CacheFilesDir(),
		MaxBytes:  int64(cfg.Cache.MaxSizeMB) * 1024 * 1024,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	adapters := o.adapters
	if !o.skipAdapters {
		adapters = buildAdapters(cfg, logger, o.throttle)
	}
	registry := provider.NewRegistry(adapters...)

	e := &Engine{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "engine"),
		cache:    store,
		registry: registry,
	}
	e.search = search.New(registry, store, logger, search.WithConcurrency(cfg.Subtitles.MaxConcurrency))
	e.retrieve = retrieve.NewRetriever(registry, store, logger)
	e.selector = retrieve.NewSelector(e.search, e.retrieve, store, logger)
	e.maint, err = cache.NewMaintainer(store, cache.MaintainerOptions{
		CheckInterval:   time.Duration(cfg.Cache.CheckIntervalMinutes) * time.Minute,
		CleanupInterval: time.Duration(cfg.Cache.CleanupIntervalDays) * 24 * time.Hour,
		ExpireDays:      cfg.Cache.ExpireDays,
		LockPath:        cfg.MaintenanceLockPath(),
		Logger:          logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	e.logger.Debug("engine ready",
		logging.Strings("sources", sourceNames(registry.Sources())),
		logging.String("cache_dir", cfg.Paths.CacheDir),
	)
	return e, nil
}

// buildAdapters creates an adapter for every enabled source that has the
// credentials it needs. Sources that cannot be built are logged and left
// out, so searches report them as unregistered.
func buildAdapters(cfg *config.Config, logger *slog.Logger, throttle []provider.ThrottleOption) []provider.Adapter {
	var adapters []provider.Adapter
	skip := func(source subtitles.Source, err error) {
		logging.WarnWithContext(logger, "subtitle source disabled", "provider_disabled",
			logging.String(logging.FieldSource, string(source)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "set the source credentials in config.toml or the environment"),
			logging.String(logging.FieldImpact, "this source is skipped during searches"),
		)
	}
	for _, name := range cfg.Subtitles.EnabledSources {
		source := subtitles.Source(name)
		switch source {
		case subtitles.SourceOpenSubtitles:
			a, err := opensubtitles.NewAdapter(opensubtitles.Config{
				APIKey:    cfg.OpenSubtitles.APIKey,
				UserAgent: cfg.OpenSubtitles.UserAgent,
				Username:  cfg.OpenSubtitles.Username,
				Password:  cfg.OpenSubtitles.Password,
				UserToken: cfg.OpenSubtitles.UserToken,
				BaseURL:   cfg.OpenSubtitles.BaseURL,
			}, logger, throttle...)
			if err != nil {
				skip(source, err)
				continue
			}
			adapters = append(adapters, a)
		case subtitles.SourceAssrt:
			a, err := assrt.NewAdapter(assrt.Config{
				Token:   cfg.Assrt.Token,
				BaseURL: cfg.Assrt.BaseURL,
			}, logger, throttle...)
			if err != nil {
				skip(source, err)
				continue
			}
			adapters = append(adapters, a)
		case subtitles.SourceSubscene:
			a, err := subscene.NewAdapter(subscene.Config{BaseURL: cfg.Subscene.BaseURL}, logger, throttle...)
			if err != nil {
				skip(source, err)
				continue
			}
			adapters = append(adapters, a)
		}
	}
	return adapters
}

func sourceNames(sources []subtitles.Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = string(s)
	}
	return out
}

// Close stops maintenance and closes the cache.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	stopErr := e.maint.Stop()
	return errors.Join(stopErr, e.cache.Close())
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config { return e.cfg }

// Policy returns the configured selection policy.
func (e *Engine) Policy() subtitles.Policy { return e.cfg.Policy() }

// Cache exposes the underlying cache for maintenance commands.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Sources lists the registered provider sources.
func (e *Engine) Sources() []subtitles.Source { return e.registry.Sources() }

// Search runs a provider search for d under policy.
func (e *Engine) Search(ctx context.Context, d media.Descriptor, policy subtitles.Policy) (search.Result, error) {
	return e.search.Search(ctx, subtitles.NewSearchRequest(d, policy))
}

// SelectBest returns the subtitle to apply for d, downloading one when
// policy allows and nothing is available.
func (e *Engine) SelectBest(ctx context.Context, d media.Descriptor, policy subtitles.Policy) (retrieve.Selection, bool, error) {
	return e.selector.SelectBest(ctx, d, policy)
}

// Download materializes rec for the media identified by mediaID.
func (e *Engine) Download(ctx context.Context, rec subtitles.Record, mediaID string) (subtitles.Record, error) {
	return e.retrieve.Download(ctx, rec, mediaID)
}

// CleanExpiredCache removes records older than the configured expiry.
func (e *Engine) CleanExpiredCache(ctx context.Context) (cache.CleanupResult, error) {
	return e.cache.CleanExpired(ctx, e.cfg.Cache.ExpireDays)
}

// Maintain runs a full maintenance pass immediately.
func (e *Engine) Maintain(ctx context.Context) (cache.Report, error) {
	return e.cache.Maintain(ctx, e.cfg.Cache.ExpireDays)
}

// Stats reports cache usage.
func (e *Engine) Stats(ctx context.Context) (cache.Stats, error) {
	return e.cache.Stats(ctx)
}

// ProviderLimits snapshots every registered provider's quota.
func (e *Engine) ProviderLimits() []subtitles.Limits {
	return e.registry.Limits()
}

// Enrich fills blank technical fields of d by probing its file with the
// given ffprobe binary. Probe failures are logged and d is returned as is.
func (e *Engine) Enrich(ctx context.Context, binary string, d media.Descriptor) media.Descriptor {
	if binary == "" || d.FilePath == "" {
		return d
	}
	enriched, err := ffprobe.Enrich(ctx, binary, d)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "media probe failed", "ffprobe_failed",
			logging.String("path", d.FilePath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that ffprobe is installed and the file is readable"),
			logging.String(logging.FieldImpact, "duration and resolution are not used for matching"),
		)
		return d
	}
	return enriched
}

// StartMaintenance schedules periodic cache maintenance.
func (e *Engine) StartMaintenance(ctx context.Context) error {
	return e.maint.Start(ctx)
}
