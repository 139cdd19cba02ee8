package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"subtrove/internal/api"
	"subtrove/internal/config"
	"subtrove/internal/daemonrun"
)

// ErrServiceNotRunning indicates no service holds the instance lock.
var ErrServiceNotRunning = errors.New("subtrove service not running")

// Running reports whether a service instance holds the lock for cfg's cache
// directory.
func Running(cfg *config.Config) (bool, error) {
	if cfg == nil {
		return false, errors.New("configuration is required")
	}
	if _, err := os.Stat(cfg.Paths.CacheDir); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	probe := flock.New(cfg.LockPath())
	ok, err := probe.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe service lock: %w", err)
	}
	if ok {
		_ = probe.Unlock()
		return false, nil
	}
	return true, nil
}

// WaitForShutdown waits until the instance lock is released.
func WaitForShutdown(cfg *config.Config, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		running, err := Running(cfg)
		if err != nil {
			return err
		}
		if !running {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("service did not stop within %s", timeout)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// StopResult captures service stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Stop sends SIGTERM to the running service and force-kills it if the lock
// is still held after gracePeriod.
func Stop(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	running, err := Running(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		return StopResult{}, ErrServiceNotRunning
	}
	pid, ok := daemonrun.ReadPID(cfg)
	if !ok {
		return StopResult{}, fmt.Errorf("unable to determine service pid (pid file: %s)",
			filepath.Join(cfg.Paths.CacheDir, daemonrun.PIDFileName))
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return StopResult{}, fmt.Errorf("locate service process %d: %w", pid, err)
	}
	result := StopResult{PID: pid}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return result, fmt.Errorf("signal service process %d: %w", pid, err)
	}
	if err := WaitForShutdown(cfg, gracePeriod); err == nil {
		return result, nil
	}
	if err := proc.Kill(); err != nil {
		return result, fmt.Errorf("kill service process %d: %w", pid, err)
	}
	pidPath := filepath.Join(cfg.Paths.CacheDir, daemonrun.PIDFileName)
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	result.ForcedKill = true
	return result, nil
}

// Client talks to a running service over its HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the API configured in cfg. Wildcard bind
// addresses are dialled on loopback.
func NewClient(cfg *config.Config, httpClient *http.Client) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	base, err := baseURL(cfg.Paths.APIBind)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: base, token: strings.TrimSpace(cfg.Paths.APIToken), http: httpClient}, nil
}

func baseURL(bind string) (string, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return "", errors.New("paths.api_bind is empty")
	}
	if strings.HasPrefix(bind, "http://") || strings.HasPrefix(bind, "https://") {
		return strings.TrimRight(bind, "/"), nil
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "", fmt.Errorf("parse api bind %q: %w", bind, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

// Status fetches the service status.
func (c *Client) Status(ctx context.Context) (api.ServiceStatus, error) {
	var status api.ServiceStatus
	err := c.get(ctx, "/api/status", &status)
	return status, err
}

// Limits fetches provider quotas from the service.
func (c *Client) Limits(ctx context.Context) (api.LimitsResponse, error) {
	var limits api.LimitsResponse
	err := c.get(ctx, "/api/limits", &limits)
	return limits, err
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return ErrServiceNotRunning
		}
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("request %s: %s (status %d)", path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("request %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
