package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"subtrove/internal/config"
	"subtrove/internal/daemon"
	"subtrove/internal/engine"
	"subtrove/internal/logging"
	"subtrove/internal/preflight"
)

// PIDFileName is written under paths.cache_dir while the service runs.
const PIDFileName = "subtrove.pid"

// Options configures service process runtime behavior.
type Options struct {
	LogLevel string
	// FFprobe is reported in the dependency snapshot; empty skips the check.
	FFprobe string
}

// Run starts the subtrove service and blocks until ctx is cancelled or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runCfg := *cfg
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		runCfg.Logging.Level = level
	}
	logger, err := logging.NewFromConfig(&runCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := runCfg.EnsureDirectories(); err != nil {
		return err
	}

	logDependencySnapshot(signalCtx, logger, &runCfg, opts.FFprobe)
	pidPath := filepath.Join(runCfg.Paths.CacheDir, PIDFileName)

	eng, err := engine.New(signalCtx, &runCfg, logger)
	if err != nil {
		logger.Error("engine initialization failed", logging.Error(err))
		return err
	}
	d, err := daemon.New(&runCfg, eng, logger)
	if err != nil {
		_ = eng.Close()
		return fmt.Errorf("create service: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("service start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "service_start_failed"),
			logging.String(logging.FieldErrorHint, "check for another running instance and the api bind address"),
			logging.String(logging.FieldImpact, "subtitle requests are not served"),
		)
		return fmt.Errorf("start service: %w", err)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	<-signalCtx.Done()
	logger.Info("subtrove service shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// ReadPID returns the pid recorded by a running service, if any.
func ReadPID(cfg *config.Config) (int, bool) {
	if cfg == nil {
		return 0, false
	}
	data, err := os.ReadFile(filepath.Join(cfg.Paths.CacheDir, PIDFileName))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config, ffprobe string) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Strings("enabled_sources", cfg.Subtitles.EnabledSources),
		logging.Bool("opensubtitles_key_present", strings.TrimSpace(cfg.OpenSubtitles.APIKey) != ""),
		logging.Bool("opensubtitles_login_present", strings.TrimSpace(cfg.OpenSubtitles.Username) != "" || strings.TrimSpace(cfg.OpenSubtitles.UserToken) != ""),
		logging.Bool("assrt_token_present", strings.TrimSpace(cfg.Assrt.Token) != ""),
		logging.String("cache_dir", cfg.Paths.CacheDir),
		logging.String("api_bind", cfg.Paths.APIBind),
	}
	for _, status := range preflight.CheckSystemDeps(ctx, ffprobe) {
		attrs = append(attrs,
			logging.Bool("ffprobe_available", status.Available),
			logging.String("ffprobe_binary", status.Command),
		)
		if status.Version != "" {
			attrs = append(attrs, logging.String("ffprobe_version", status.Version))
		}
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)

	for _, failed := range preflight.Failed(preflight.RunAll(ctx, cfg, preflight.Options{})) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldErrorHint, "fix the path permissions or provider credentials in the config"),
			logging.String(logging.FieldImpact, "requests relying on this check may fail"),
		)
	}
}
