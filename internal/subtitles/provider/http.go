package provider

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"subtrove/internal/services"
)

// DefaultHTTPTimeout bounds a single provider round-trip when the caller's
// context carries no deadline.
const DefaultHTTPTimeout = 45 * time.Second

// NewHTTPClient returns the client adapters use when none is injected.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultHTTPTimeout}
}

// StatusError reports a non-2xx provider response.
type StatusError struct {
	Provider string
	Code     int
	Status   string
	Body     string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: http %s", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: http %s: %s", e.Provider, e.Status, body)
}

// Retriable reports whether the status is worth retrying (429 and gateway errors).
func (e *StatusError) Retriable() bool {
	switch e.Code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// CheckResponse converts a >=400 response into a StatusError carrying the
// first 4 KiB of the body.
func CheckResponse(provider string, resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Provider: provider, Code: resp.StatusCode, Status: resp.Status, Body: string(body)}
}

// ClassifyError tags an adapter failure with the matching provider marker.
// Authentication and quota rejections mark the provider unavailable; other
// status codes and transport failures are transport errors.
func ClassifyError(provider, operation string, err error) error {
	if err == nil {
		return nil
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotAcceptable:
			return services.Wrap(services.ErrProviderUnavailable, provider, operation, "provider rejected credentials or quota", err)
		default:
			return services.Wrap(services.ErrProviderTransport, provider, operation, "provider returned an error status", err)
		}
	}
	return services.Classify(provider, operation, err)
}

// ParseError tags a malformed provider payload.
func ParseError(provider, operation string, err error) error {
	return services.Wrap(services.ErrProviderParse, provider, operation, "malformed provider response", err)
}
