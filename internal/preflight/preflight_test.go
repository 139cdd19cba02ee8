package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"subtrove/internal/config"
	"subtrove/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckOpenSubtitles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/infos/formats" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Api-Key") != "good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("User-Agent") != "Subtrove/test" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tests := []struct {
		name   string
		cfg    config.OpenSubtitles
		passed bool
		detail string
	}{
		{name: "ok", cfg: config.OpenSubtitles{APIKey: "good-key", UserAgent: "Subtrove/test", BaseURL: srv.URL + "/"}, passed: true, detail: "Reachable"},
		{name: "bad key", cfg: config.OpenSubtitles{APIKey: "bad-key", UserAgent: "Subtrove/test", BaseURL: srv.URL}, detail: "auth failed (invalid api key)"},
		{name: "missing key", cfg: config.OpenSubtitles{BaseURL: srv.URL}, detail: "missing api key"},
		{name: "missing url", cfg: config.OpenSubtitles{APIKey: "good-key"}, detail: "missing base url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckOpenSubtitles(context.Background(), tt.cfg)
			if result.Passed != tt.passed || result.Detail != tt.detail {
				t.Fatalf("got %+v, want passed=%v detail=%q", result, tt.passed, tt.detail)
			}
		})
	}
}

func TestCheckAssrtSendsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/user/quota" || r.URL.Query().Get("token") != "tok" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if result := CheckAssrt(context.Background(), config.Assrt{Token: "tok", BaseURL: srv.URL}); !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result := CheckAssrt(context.Background(), config.Assrt{Token: "other", BaseURL: srv.URL}); result.Passed {
		t.Fatal("expected failure for rejected token")
	}
}

func TestCheckSubsceneStatuses(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	tests := []struct {
		status int
		passed bool
	}{
		{http.StatusOK, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		status = tt.status
		result := CheckSubscene(context.Background(), config.Subscene{BaseURL: srv.URL})
		if result.Passed != tt.passed {
			t.Fatalf("status %d: got %+v", tt.status, result)
		}
	}

	srv.Close()
	if result := CheckSubscene(context.Background(), config.Subscene{BaseURL: srv.URL}); result.Passed {
		t.Fatal("expected failure for unreachable site")
	}
}

func TestRunAllOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithSources("opensubtitles", "assrt", "subscene"),
		testsupport.WithOpenSubtitles("http://127.0.0.1:1", "key"),
	)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg, Options{})
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	want := []string{"Cache directory", "Cache files", "Log directory", "OpenSubtitles", "Assrt", "Subscene"}
	if len(names) != len(want) {
		t.Fatalf("expected checks %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("check %d: got %q want %q", i, names[i], want[i])
		}
	}

	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Assrt" || failed[0].Detail != "missing token" {
		t.Fatalf("expected only the assrt token to fail, got %+v", failed)
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, Options{}); results != nil {
		t.Fatalf("expected no results, got %+v", results)
	}
}

func TestCheckSystemDeps(t *testing.T) {
	if statuses := CheckSystemDeps(context.Background(), ""); statuses != nil {
		t.Fatalf("expected no requirements without ffprobe, got %+v", statuses)
	}
	statuses := CheckSystemDeps(context.Background(), "clearly-not-present-ffprobe")
	if len(statuses) != 1 || statuses[0].Available || !statuses[0].Optional {
		t.Fatalf("unexpected statuses: %+v", statuses)
	}
}
