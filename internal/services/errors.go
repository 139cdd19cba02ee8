package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")

	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderTimeout     = errors.New("provider timeout")
	ErrProviderTransport   = errors.New("provider transport error")
	ErrProviderParse       = errors.New("provider response malformed")
	ErrNoEnabledSources    = errors.New("no enabled sources")
	ErrUnsupportedSource   = errors.New("unsupported source")
	ErrFileIntegrity       = errors.New("file integrity error")
	ErrCacheCorruption     = errors.New("cache corruption")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify tags a raw provider error with the closest provider marker. Errors
// that already carry a marker are returned unchanged.
func Classify(stage, operation string, err error) error {
	if err == nil {
		return nil
	}
	for _, marker := range []error{
		ErrProviderUnavailable, ErrProviderTimeout, ErrProviderTransport, ErrProviderParse,
		ErrNoEnabledSources, ErrUnsupportedSource, ErrFileIntegrity, ErrValidation, ErrConfiguration,
	} {
		if errors.Is(err, marker) {
			return err
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(ErrProviderTimeout, stage, operation, "deadline exceeded", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Wrap(ErrProviderTimeout, stage, operation, "network timeout", err)
	}
	return Wrap(ErrProviderTransport, stage, operation, "", err)
}

// Kind returns a short stable label for err suitable for JSON output and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrProviderTimeout), errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, ErrProviderParse):
		return "parse"
	case errors.Is(err, ErrProviderTransport):
		return "transport"
	case errors.Is(err, ErrNoEnabledSources):
		return "no_enabled_sources"
	case errors.Is(err, ErrUnsupportedSource):
		return "unsupported_source"
	case errors.Is(err, ErrFileIntegrity):
		return "file_integrity"
	case errors.Is(err, ErrCacheCorruption):
		return "cache_corruption"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "transient"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
