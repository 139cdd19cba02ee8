package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"subtrove/internal/testsupport"
)

type cliTestEnv struct {
	baseDir    string
	cacheDir   string
	configPath string
	downloads  *atomic.Int32
}

// setupCLITestEnv writes a configuration pointing OpenSubtitles at a local
// fake that offers one English subtitle for any query.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("OPENSUBTITLES_API_KEY", "")
	t.Setenv("SUBTROVE_API_TOKEN", "")

	downloads := new(atomic.Int32)
	server := newFakeOpenSubtitles(t, downloads)

	env := &cliTestEnv{
		baseDir:    base,
		cacheDir:   filepath.Join(base, "cache"),
		configPath: filepath.Join(homeDir, ".config", "subtrove", "config.toml"),
		downloads:  downloads,
	}
	writeTestConfig(t, env.configPath, env.cacheDir, filepath.Join(base, "logs"), server.URL)
	return env
}

func newFakeOpenSubtitles(t *testing.T, downloads *atomic.Int32) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/subtitles":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{
					"id": "9",
					"attributes": map[string]any{
						"language":       "en",
						"release":        "Inception.2010.1080p.BluRay.x264-SPARKS",
						"download_count": 5000,
						"ratings":        9.0,
						"feature_details": map[string]any{
							"title": "Inception",
							"year":  2010,
						},
						"files": []map[string]any{{"file_id": 77}},
					},
				}},
			})
		case "/download":
			downloads.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{"link": server.URL + "/file", "remaining": 99, "requests": 1})
		case "/file":
			_, _ = w.Write([]byte(testsupport.SampleSRT))
		case "/infos/formats":
			if r.Header.Get("Api-Key") == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"output_formats": []string{"srt"}}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func writeTestConfig(t *testing.T, path, cacheDir, logDir, baseURL string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
cache_dir = %q
log_dir = %q
api_bind = "127.0.0.1:0"

[subtitles]
primary_language = "en"
fallback_language = "zh-cn"
enabled_sources = ["opensubtitles"]

[opensubtitles]
api_key = "test-key"
base_url = %q
`, cacheDir, logDir, baseURL)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func decodeJSON(t *testing.T, payload string, dst any) {
	t.Helper()
	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		t.Fatalf("decode %q: %v", payload, err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
