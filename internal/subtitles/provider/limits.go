package provider

import (
	"sync"
	"time"

	"subtrove/internal/subtitles"
)

// LimitTracker holds one adapter's quota snapshot.
type LimitTracker struct {
	mu     sync.Mutex
	limits subtitles.Limits
	now    func() time.Time
}

// NewLimitTracker starts with an unknown remaining count.
func NewLimitTracker(source subtitles.Source, requestsPerDay int) *LimitTracker {
	return &LimitTracker{
		limits: subtitles.UnknownLimits(source, requestsPerDay),
		now:    time.Now,
	}
}

// Snapshot returns a copy of the current quota state.
func (t *LimitTracker) Snapshot() subtitles.Limits {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limits
}

// Observe records provider-reported counters. Negative values mean "not
// reported" and leave the previous value untouched.
func (t *LimitTracker) Observe(used, remaining int, resetAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if used >= 0 {
		t.limits.Used = used
	}
	if remaining >= 0 {
		t.limits.Remaining = remaining
		t.limits.Limited = remaining == 0
	}
	if !resetAt.IsZero() {
		t.limits.ResetAt = resetAt
	}
	t.limits.UpdatedAt = t.now()
}

// CountRequest bumps the usage counters for a call the provider did not
// report on.
func (t *LimitTracker) CountRequest() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits.Used++
	if t.limits.Remaining > 0 {
		t.limits.Remaining--
		t.limits.Limited = t.limits.Remaining == 0
	}
	t.limits.UpdatedAt = t.now()
}

// MarkLimited flags the provider as hard-limited until resetAt.
func (t *LimitTracker) MarkLimited(resetAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits.Limited = true
	t.limits.Remaining = 0
	if !resetAt.IsZero() {
		t.limits.ResetAt = resetAt
	}
	t.limits.UpdatedAt = t.now()
}

// CanRequest reports whether the snapshot allows another call now.
func (t *LimitTracker) CanRequest() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limits.CanRequest(t.now())
}
