package provider

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"subtrove/internal/logging"
)

// Default pacing for provider calls.
const (
	MinInterval    = time.Second
	MaxRateRetries = 6
	InitialBackoff = 2 * time.Second
	MaxBackoff     = 60 * time.Second
)

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsRetriable reports whether err represents a transient condition that
// warrants an automatic retry (rate limits, timeouts, connection errors).
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retriable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	message := strings.ToLower(err.Error())
	if strings.Contains(message, "rate limit") {
		return true
	}
	timeoutTokens := []string{
		"timeout",
		"deadline exceeded",
		"connection reset",
		"connection refused",
		"temporary failure",
		"awaiting headers",
	}
	for _, token := range timeoutTokens {
		if strings.Contains(message, token) {
			return true
		}
	}
	return false
}

// Throttle spaces calls to a single provider and retries transient failures.
type Throttle struct {
	name        string
	minInterval time.Duration
	maxRetries  int
	initial     time.Duration
	max         time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	lastCall time.Time
	sleep    func(context.Context, time.Duration) error
}

// ThrottleOption customises a Throttle.
type ThrottleOption func(*Throttle)

// WithMinInterval overrides the spacing between calls.
func WithMinInterval(d time.Duration) ThrottleOption {
	return func(t *Throttle) { t.minInterval = d }
}

// WithRetries overrides the retry budget and backoff bounds.
func WithRetries(maxRetries int, initial, max time.Duration) ThrottleOption {
	return func(t *Throttle) {
		t.maxRetries = maxRetries
		t.initial = initial
		t.max = max
	}
}

// WithLogger attaches a logger for retry warnings.
func WithLogger(logger *slog.Logger) ThrottleOption {
	return func(t *Throttle) { t.logger = logger }
}

// NewThrottle builds a throttle named after its provider.
func NewThrottle(name string, opts ...ThrottleOption) *Throttle {
	t := &Throttle{
		name:        name,
		minInterval: MinInterval,
		maxRetries:  MaxRateRetries,
		initial:     InitialBackoff,
		max:         MaxBackoff,
		sleep:       SleepWithContext,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Do runs op after the call window opens, retrying retriable failures with
// exponential backoff. A backoff that would outlive the context deadline
// ends the retries early.
func (t *Throttle) Do(ctx context.Context, op func(context.Context) error) error {
	if op == nil {
		return errors.New("throttle: operation unavailable")
	}
	attempt := 0
	for {
		if err := t.wait(ctx); err != nil {
			return err
		}
		err := op(ctx)
		t.mark()
		if err == nil {
			return nil
		}
		if !IsRetriable(err) || attempt >= t.maxRetries || ctx.Err() != nil {
			return err
		}
		attempt++
		backoff := t.initial * time.Duration(1<<uint(attempt-1))
		if backoff > t.max {
			backoff = t.max
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < backoff {
			return err
		}
		if t.logger != nil {
			logging.WarnWithContext(logging.WithContext(ctx, t.logger), "provider call failed, retrying", "provider_rate_limited",
				logging.String(logging.FieldSource, t.name),
				logging.Duration("backoff", backoff),
				logging.Int("attempt", attempt),
				logging.Int("max_attempts", t.maxRetries),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "wait for rate limits or check network connectivity"),
				logging.String(logging.FieldImpact, "search for this provider is delayed"),
			)
		}
		if err := t.sleep(ctx, backoff); err != nil {
			return err
		}
	}
}

func (t *Throttle) wait(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context unavailable")
	}
	t.mu.Lock()
	lastCall := t.lastCall
	t.mu.Unlock()
	if lastCall.IsZero() {
		return nil
	}
	elapsed := time.Since(lastCall)
	if elapsed >= t.minInterval {
		return nil
	}
	return t.sleep(ctx, t.minInterval-elapsed)
}

func (t *Throttle) mark() {
	t.mu.Lock()
	t.lastCall = time.Now()
	t.mu.Unlock()
}
