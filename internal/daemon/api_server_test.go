package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"subtrove/internal/api"
	"subtrove/internal/engine"
	"subtrove/internal/logging"
	"subtrove/internal/services"
	"subtrove/internal/subtitles"
	"subtrove/internal/testsupport"
)

func inceptionRecord() subtitles.Record {
	rec := subtitles.Record{
		ID:       "1",
		Source:   subtitles.SourceOpenSubtitles,
		Language: "zh-cn",
		Title:    "Inception 2010 BluRay",
		Format:   subtitles.FormatSRT,
		Rating:   8,
	}
	rec.SetMeta(subtitles.MetaYear, "2010")
	return rec
}

func newTestServer(t *testing.T, token string, adapters ...*testsupport.FakeProvider) *apiServer {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithSources("opensubtitles"), testsupport.WithAPIToken(token))
	opts := []engine.Option{engine.WithAdapters()}
	for _, a := range adapters {
		opts = append(opts, engine.WithAdapters(a))
	}
	eng, err := engine.New(context.Background(), cfg, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	d, err := New(cfg, eng, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d.api
}

func serve(srv *apiServer, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	if srv.token != "" {
		req.Header.Set("Authorization", "Bearer "+srv.token)
	}
	w := httptest.NewRecorder()
	requestIDMiddleware(srv.routes()).ServeHTTP(w, req)
	return w
}

func TestAPIServerSearchSelectDownload(t *testing.T) {
	fake := testsupport.NewFakeProvider(subtitles.SourceOpenSubtitles, inceptionRecord())
	srv := newTestServer(t, "", fake)
	media := api.MediaRequest{}
	media.Media.Title = "Inception"
	media.Media.Year = 2010

	w := serve(srv, http.MethodPost, "/api/search", media)
	if w.Code != http.StatusOK {
		t.Fatalf("search: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var found api.SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &found); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(found.Matches) != 1 || found.RequestID != w.Header().Get(requestIDHeader) {
		t.Fatalf("unexpected search response: %+v", found)
	}

	w = serve(srv, http.MethodPost, "/api/download", api.DownloadRequest{
		Subtitle: found.Matches[0].Subtitle,
		MediaID:  found.FileID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("download: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var downloaded api.DownloadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &downloaded); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !downloaded.Subtitle.Downloaded || downloaded.Subtitle.LocalPath == "" {
		t.Fatalf("unexpected download response: %+v", downloaded)
	}

	w = serve(srv, http.MethodPost, "/api/select", media)
	var sel api.SelectResponse
	if err := json.Unmarshal(w.Body.Bytes(), &sel); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !sel.Found || sel.Origin != "cache" || sel.Path != downloaded.Subtitle.LocalPath {
		t.Fatalf("expected the downloaded subtitle from cache, got %+v", sel)
	}
	if fake.DownloadCalls() != 1 {
		t.Fatalf("expected one provider download, got %d", fake.DownloadCalls())
	}

	w = serve(srv, http.MethodGet, "/api/cache/stats", nil)
	var stats api.CacheStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats.Downloaded != 1 || stats.Files != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	w = serve(srv, http.MethodPost, "/api/cache/clean?full=true", nil)
	var cleanup api.CleanupResponse
	if err := json.Unmarshal(w.Body.Bytes(), &cleanup); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if w.Code != http.StatusOK || cleanup.Expired == nil || cleanup.RanAt == "" {
		t.Fatalf("unexpected cleanup response %d: %+v", w.Code, cleanup)
	}
}

func TestAPIServerErrors(t *testing.T) {
	srv := newTestServer(t, "")

	tests := []struct {
		name   string
		method string
		target string
		body   any
		status int
		kind   string
	}{
		{name: "empty media", method: http.MethodPost, target: "/api/search",
			body: api.MediaRequest{}, status: http.StatusBadRequest, kind: "validation"},
		{name: "no registered source", method: http.MethodPost, target: "/api/search",
			body: map[string]any{"media": map[string]any{"title": "Heat"}, "policy": map[string]any{"sources": []string{"assrt"}}},
			status: http.StatusServiceUnavailable, kind: "no_enabled_sources"},
		{name: "bad quality", method: http.MethodPost, target: "/api/select",
			body: map[string]any{"media": map[string]any{"title": "Heat"}, "policy": map[string]any{"downloadQuality": "shiny"}}, status: http.StatusBadRequest, kind: "validation"},
		{name: "unknown field", method: http.MethodPost, target: "/api/search",
			body: map[string]any{"movie": "Heat"}, status: http.StatusBadRequest, kind: "validation"},
		{name: "download without media", method: http.MethodPost, target: "/api/download",
			body: api.DownloadRequest{Subtitle: api.Subtitle{ID: "1", Source: "opensubtitles"}}, status: http.StatusBadRequest, kind: "validation"},
		{name: "unsupported source", method: http.MethodPost, target: "/api/download",
			body: api.DownloadRequest{Subtitle: api.Subtitle{ID: "1", Source: "assrt", Language: "en"}, MediaID: "tt1"}, status: http.StatusBadRequest, kind: "unsupported_source"},
		{name: "wrong method", method: http.MethodGet, target: "/api/search", status: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(srv, tt.method, tt.target, tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if tt.kind == "" {
				return
			}
			var resp api.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode error: %v", err)
			}
			if resp.Kind != tt.kind {
				t.Fatalf("expected kind %q, got %+v", tt.kind, resp)
			}
		})
	}
}

func TestAPIServerRequiresToken(t *testing.T) {
	srv := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/api/limits", nil)
	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	w = serve(srv, http.MethodGet, "/api/limits", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	var limits api.LimitsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &limits); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(limits.Providers) != 0 {
		t.Fatalf("expected no providers, got %+v", limits.Providers)
	}
}

func TestStatusForMarkers(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.ErrValidation, http.StatusBadRequest},
		{services.ErrNoEnabledSources, http.StatusServiceUnavailable},
		{services.ErrProviderTimeout, http.StatusGatewayTimeout},
		{services.ErrFileIntegrity, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(fmt.Errorf("wrapped: %w", tt.err)); got != tt.want {
			t.Fatalf("%v: got %d want %d", tt.err, got, tt.want)
		}
	}
}
