package search

import (
	"fmt"
	"time"

	"subtrove/internal/services"
	"subtrove/internal/subtitles"
	"subtrove/internal/subtitles/match"
)

// ProviderError is one provider's failure within a search.
type ProviderError struct {
	Source  subtitles.Source `json:"source"`
	Kind    string           `json:"kind"`
	Message string           `json:"message"`
	Err     error            `json:"-"`
}

func newProviderError(source subtitles.Source, err error) ProviderError {
	return ProviderError{
		Source:  source,
		Kind:    services.Kind(err),
		Message: err.Error(),
		Err:     err,
	}
}

func (e ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

func (e ProviderError) Unwrap() error { return e.Err }

// Result is the outcome of one search. An empty Matches slice with no
// error means nothing suitable was found.
type Result struct {
	RequestID string          `json:"request_id"`
	FileID    string          `json:"file_id"`
	Matches   []match.Result  `json:"matches"`
	Total     int             `json:"total_count"`
	FromCache bool            `json:"from_cache"`
	Elapsed   time.Duration   `json:"elapsed"`
	Errors    []ProviderError `json:"errors,omitempty"`
}

// Records returns the ranked records without their scores.
func (r Result) Records() []subtitles.Record {
	out := make([]subtitles.Record, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = m.Record
	}
	return out
}

// Empty reports whether the search produced no candidates.
func (r Result) Empty() bool { return len(r.Matches) == 0 }
