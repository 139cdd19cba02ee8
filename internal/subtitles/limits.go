package subtitles

import "time"

// Limits is a provider quota snapshot. Remaining is -1 when the provider has
// not reported it yet.
type Limits struct {
	Source         Source    `json:"source"`
	RequestsPerDay int       `json:"requests_per_day"`
	Used           int       `json:"used"`
	Remaining      int       `json:"remaining"`
	ResetAt        time.Time `json:"reset_at,omitzero"`
	Limited        bool      `json:"limited"`
	UpdatedAt      time.Time `json:"updated_at,omitzero"`
}

// UnknownLimits returns the snapshot reported before any round-trip.
func UnknownLimits(source Source, perDay int) Limits {
	return Limits{Source: source, RequestsPerDay: perDay, Remaining: -1}
}

// CanRequest reports whether another call is expected to be accepted at now.
// A passed reset time clears the hard limit.
func (l Limits) CanRequest(now time.Time) bool {
	if !l.ResetAt.IsZero() && !now.Before(l.ResetAt) {
		return true
	}
	if l.Limited {
		return false
	}
	return l.Remaining != 0
}
