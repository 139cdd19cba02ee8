package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"subtrove/internal/config"
	"subtrove/internal/engine"
	"subtrove/internal/logging"
)

// Daemon runs the HTTP API and scheduled cache maintenance for one engine and
// enforces single-instance execution per cache directory.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *engine.Engine
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	startedAt time.Time
	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	LockFilePath string
	APIAddress   string
}

// New constructs a daemon around an engine. The daemon owns the engine and
// closes it in Close.
func New(cfg *config.Config, eng *engine.Engine, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || eng == nil {
		return nil, errors.New("daemon requires config and engine")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		engine:   eng,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the instance lock, schedules maintenance, and starts the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another subtrove service instance is already running")
	}

	d.mu.Lock()
	d.ctx, d.cancel = context.WithCancel(ctx)
	runCtx := d.ctx
	d.mu.Unlock()

	if err := d.engine.StartMaintenance(runCtx); err != nil {
		d.abort()
		return fmt.Errorf("start maintenance: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.abort()
		return err
	}

	d.mu.Lock()
	d.startedAt = time.Now()
	d.mu.Unlock()
	d.running.Store(true)
	d.logger.Info("subtrove service started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.address()),
	)
	return nil
}

func (d *Daemon) abort() {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx, d.cancel = nil, nil
	d.mu.Unlock()
	_ = d.lock.Unlock()
}

// Stop stops the API and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	d.mu.Unlock()

	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release service lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "lock_release_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no service is running"),
			logging.String(logging.FieldImpact, "the next start may report another running instance"),
		)
	}
	d.running.Store(false)
	d.logger.Info("subtrove service stopped")
}

// Close stops the daemon and closes the engine.
func (d *Daemon) Close() error {
	d.Stop()
	return d.engine.Close()
}

// Engine returns the engine served by the daemon.
func (d *Daemon) Engine() *engine.Engine { return d.engine }

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	started := d.startedAt
	d.mu.Unlock()
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    started,
		LockFilePath: d.lockPath,
		APIAddress:   d.api.address(),
	}
}
