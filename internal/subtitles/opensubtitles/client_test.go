package opensubtitles

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"subtrove/internal/services"
)

func TestSearchBuildsQueryAndParsesResponse(t *testing.T) {
	var captured *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		if r.URL.Path != "/subtitles" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		resp := map[string]any{
			"data": []map[string]any{
				{
					"id": "1",
					"attributes": map[string]any{
						"language":           "en",
						"release":            "Example.Show.S01E02.1080p.WEB-GRP",
						"download_count":     120,
						"ratings":            7.5,
						"upload_date":        "2024-03-01T10:00:00Z",
						"hearing_impaired":   false,
						"hd":                 true,
						"ai_translated":      false,
						"machine_translated": false,
						"uploader":           map[string]any{"name": "alice"},
						"feature_details": map[string]any{
							"feature_type":   "episode",
							"title":          "Example Show",
							"year":           2024,
							"season_number":  1,
							"episode_number": 2,
						},
						"files": []map[string]any{{"file_id": 555, "file_name": "example.srt"}},
					},
				},
				{
					"id": "2",
					"attributes": map[string]any{
						"language":       "es",
						"download_count": 80,
						"files":          []map[string]any{},
					},
				},
				{
					"id":         "3",
					"attributes": "not an object",
				},
			},
			"meta": map[string]any{"total_count": 3},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "abc", UserAgent: "Subtrove/test", BaseURL: server.URL, UserToken: "tok"})
	if err != nil {
		t.Fatalf("New client failed: %v", err)
	}

	resp, err := client.Search(context.Background(), SearchRequest{
		IMDBID:          "tt7654321",
		Languages:       []string{"en", "zh-cn"},
		Season:          1,
		Episode:         2,
		Year:            2024,
		HearingImpaired: "exclude",
	})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(resp.Subtitles) != 1 {
		t.Fatalf("expected 1 subtitle with a file id, got %d", len(resp.Subtitles))
	}
	if resp.Skipped != 1 {
		t.Fatalf("expected 1 malformed entry skipped, got %d", resp.Skipped)
	}
	sub := resp.Subtitles[0]
	if sub.FileID != 555 || sub.Rating != 7.5 || sub.Uploader != "alice" || sub.Season != 1 || sub.Episode != 2 {
		t.Fatalf("unexpected subtitle: %+v", sub)
	}
	if sub.UploadedAt.Year() != 2024 {
		t.Fatalf("unexpected upload date: %v", sub.UploadedAt)
	}

	if got := captured.Header.Get("Api-Key"); got != "abc" {
		t.Fatalf("expected api key header, got %q", got)
	}
	if got := captured.Header.Get("Authorization"); got != "Bearer tok" {
		t.Fatalf("expected bearer token, got %q", got)
	}
	values, _ := url.ParseQuery(captured.URL.RawQuery)
	expect := map[string]string{
		"imdb_id":          "7654321",
		"languages":        "en,zh-cn",
		"season_number":    "1",
		"episode_number":   "2",
		"year":             "2024",
		"type":             "episode",
		"hearing_impaired": "exclude",
		"order_by":         "download_count",
		"order_direction":  "desc",
	}
	for key, want := range expect {
		if got := values.Get(key); got != want {
			t.Fatalf("expected query param %s=%s, got %s", key, want, got)
		}
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "missing api key", cfg: Config{}, wantErr: true},
		{name: "bad base url", cfg: Config{APIKey: "k", BaseURL: "://bad"}, wantErr: true},
		{name: "defaults", cfg: Config{APIKey: "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if client.userAgent != defaultUserAgent || client.baseURL.String() != defaultBaseURL {
					t.Fatalf("unexpected defaults: %q %q", client.userAgent, client.baseURL)
				}
			}
		})
	}
}

func TestSanitizeIMDBID(t *testing.T) {
	tests := map[string]string{
		"tt0133093": "0133093",
		"TT123":     "123",
		"  42 ":     "42",
		"abc":       "",
		"":          "",
	}
	for in, want := range tests {
		if got := sanitizeIMDBID(in); got != want {
			t.Errorf("sanitizeIMDBID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSearchHandlesHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = client.Search(context.Background(), SearchRequest{Query: "x"})
	if err == nil || !strings.Contains(err.Error(), "maintenance") {
		t.Fatalf("expected status error with body, got %v", err)
	}
}

func TestSearchRejectsInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "k", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = client.Search(context.Background(), SearchRequest{Query: "x"})
	if !errors.Is(err, services.ErrProviderParse) {
		t.Fatalf("expected parse marker, got %v", err)
	}
}

func TestSearchNilClient(t *testing.T) {
	var client *Client
	if _, err := client.Search(context.Background(), SearchRequest{}); err == nil {
		t.Error("expected error for nil client")
	}
}

func TestDownloadInvalidFileID(t *testing.T) {
	client, err := New(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := client.Download(context.Background(), 0); err == nil {
		t.Fatal("expected error for zero file id")
	}
}

func TestDownloadFetchesSubtitleData(t *testing.T) {
	var negotiationBody string
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/download":
			body, _ := io.ReadAll(r.Body)
			negotiationBody = string(body)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"link":           server.URL + "/payload",
				"file_name":      "movie.en.srt",
				"requests":       3,
				"remaining":      97,
				"reset_time_utc": "2026-01-02T00:00:00Z",
			})
		case "/payload":
			_, _ = w.Write([]byte("1\n00:00:00,000 --> 00:00:01,000\nHello\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "abc", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("New client failed: %v", err)
	}

	result, err := client.Download(context.Background(), 42)
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if !strings.Contains(negotiationBody, `"file_id":42`) || !strings.Contains(negotiationBody, `"sub_format":"srt"`) {
		t.Fatalf("unexpected negotiation body %q", negotiationBody)
	}
	if len(result.Data) == 0 || result.FileName != "movie.en.srt" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Requests != 3 || result.Remaining != 97 || result.ResetAt.IsZero() {
		t.Fatalf("unexpected quota counters: %+v", result)
	}
}

func TestEnsureTokenSerializesLogin(t *testing.T) {
	var logins atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		logins.Add(1)
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "user" || body["password"] != "pass" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "fresh"})
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "k", BaseURL: server.URL, Username: "user", Password: "pass"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.EnsureToken(context.Background()); err != nil {
				t.Errorf("EnsureToken: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := logins.Load(); got != 1 {
		t.Fatalf("expected a single login, got %d", got)
	}
	if client.token != "fresh" {
		t.Fatalf("unexpected token %q", client.token)
	}
}

func TestEnsureTokenWithoutCredentialsSkipsLogin(t *testing.T) {
	client, err := New(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := client.EnsureToken(context.Background()); err != nil {
		t.Fatalf("expected api-key only access, got %v", err)
	}
}
