package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/gofrs/flock"

	"subtrove/internal/logging"
)

// MaintainerOptions configures periodic maintenance.
type MaintainerOptions struct {
	// CheckInterval is how often the maintainer wakes up.
	CheckInterval time.Duration
	// CleanupInterval is the minimum time between two maintenance passes,
	// measured against the last pass recorded in the index.
	CleanupInterval time.Duration
	ExpireDays      int
	// LockPath guards maintenance across processes sharing the cache.
	LockPath string
	Logger   *slog.Logger
}

// Maintainer runs Cache.Maintain on a schedule.
type Maintainer struct {
	cache     *Cache
	opts      MaintainerOptions
	lock      *flock.Flock
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// NewMaintainer prepares a maintainer; call Start to schedule it.
func NewMaintainer(c *Cache, opts MaintainerOptions) (*Maintainer, error) {
	if c == nil {
		return nil, fmt.Errorf("maintainer requires a cache")
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = time.Hour
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 24 * time.Hour
	}
	if opts.ExpireDays <= 0 {
		opts.ExpireDays = DefaultExpireDays
	}
	m := &Maintainer{
		cache:  c,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "cache-maintainer"),
	}
	if opts.LockPath != "" {
		m.lock = flock.New(opts.LockPath)
	}
	return m, nil
}

// Start schedules the periodic check. The first check runs immediately.
func (m *Maintainer) Start(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(m.opts.CheckInterval),
		gocron.NewTask(func() {
			if _, err := m.RunOnce(ctx, false); err != nil {
				logging.WarnWithContext(m.logger, "cache maintenance failed", "cache_maintenance_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check cache directory permissions and free space"),
				)
			}
		}),
		gocron.WithName("cache-maintenance"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("schedule cache maintenance: %w", err)
	}
	scheduler.Start()
	m.scheduler = scheduler
	m.logger.Info("cache maintenance scheduled",
		logging.Duration("check_interval", m.opts.CheckInterval),
		logging.Duration("cleanup_interval", m.opts.CleanupInterval),
		logging.Int("expire_days", m.opts.ExpireDays),
	)
	return nil
}

// Stop shuts the scheduler down, waiting for a running pass to finish.
func (m *Maintainer) Stop() error {
	if m == nil || m.scheduler == nil {
		return nil
	}
	err := m.scheduler.Shutdown()
	m.scheduler = nil
	return err
}

// RunOnce performs a maintenance pass when one is due or force is set. It
// returns false without error when another process holds the lock or the
// interval has not yet elapsed.
func (m *Maintainer) RunOnce(ctx context.Context, force bool) (bool, error) {
	if m.lock != nil {
		locked, err := m.lock.TryLock()
		if err != nil {
			return false, fmt.Errorf("acquire maintenance lock: %w", err)
		}
		if !locked {
			m.logger.Debug("cache maintenance skipped", logging.Args(logging.DecisionAttrs("cache_maintenance", "skipped", "lock held by another process")...)...)
			return false, nil
		}
		defer func() { _ = m.lock.Unlock() }()
	}
	if !force {
		due, err := m.cache.MaintenanceDue(ctx, m.opts.CleanupInterval)
		if err != nil {
			return false, err
		}
		if !due {
			return false, nil
		}
	}
	if _, err := m.cache.Maintain(ctx, m.opts.ExpireDays); err != nil {
		return false, err
	}
	return true, nil
}
