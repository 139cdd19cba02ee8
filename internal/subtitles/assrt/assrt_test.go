package assrt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"subtrove/internal/logging"
	"subtrove/internal/media"
	"subtrove/internal/services"
	"subtrove/internal/subtitles"
	"subtrove/internal/subtitles/provider"
)

func newTestAdapter(t *testing.T, server *httptest.Server) *Adapter {
	t.Helper()
	adapter, err := NewAdapter(Config{Token: "tok", BaseURL: server.URL}, logging.NewNop(),
		provider.WithMinInterval(0), provider.WithRetries(0, 0, 0))
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	return adapter
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without token")
	}
}

func TestAdapterSearchMapsItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "tok" {
			t.Errorf("missing token in %s", r.URL)
		}
		if r.URL.Path != "/v1/sub/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": 0,
			"sub": map[string]any{"subs": []any{
				map[string]any{
					"id":           602333,
					"native_name":  "盗梦空间",
					"videoname":    "Inception.2010.1080p.BluRay.x264-SPARKS",
					"subtype":      "ASS",
					"upload_time":  "2020-01-02 03:04:05",
					"vote_score":   8.5,
					"release_site": "YYeTs",
					"lang": map[string]any{
						"desc":     "简英",
						"langlist": map[string]bool{"langchs": true, "langeng": true},
					},
				},
				"not an object",
			}},
		})
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server)
	policy := subtitles.DefaultPolicy()
	req := subtitles.NewSearchRequest(media.Descriptor{FilePath: "/movies/Inception.2010.1080p.mkv"}, policy)

	records, err := adapter.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.ID != "602333" || rec.Source != subtitles.SourceAssrt {
		t.Fatalf("unexpected record identity: %+v", rec)
	}
	if rec.Language != "zh-cn" {
		t.Fatalf("expected zh-cn, got %q", rec.Language)
	}
	if rec.Format != subtitles.FormatASS {
		t.Fatalf("expected ass format, got %q", rec.Format)
	}
	if rec.Title != "盗梦空间" || rec.Rating != 8.5 {
		t.Fatalf("unexpected title/rating: %+v", rec)
	}
	if rec.UploadedAt.IsZero() || rec.UploadedAt.Hour() != 19 {
		t.Fatalf("expected upload time converted to UTC, got %v", rec.UploadedAt)
	}
	if release, _ := rec.Meta(subtitles.MetaRelease); release != "Inception.2010.1080p.BluRay.x264-SPARKS" {
		t.Fatalf("missing release metadata: %v", rec.Metadata)
	}
}

func TestPickLanguagePrefersRequested(t *testing.T) {
	item := SearchItem{LangList: []string{"langchs", "langeng"}}
	if got := pickLanguage(item, []string{"en"}); got != "en" {
		t.Fatalf("expected en, got %q", got)
	}
	if got := pickLanguage(item, []string{"fr"}); got != "zh-cn" {
		t.Fatalf("expected first offered language, got %q", got)
	}
	if got := pickLanguage(SearchItem{LangDesc: "繁体"}, nil); got != "zh-tw" {
		t.Fatalf("expected zh-tw from desc, got %q", got)
	}
}

func TestAdapterDownloadPicksFileAndKeepsExtension(t *testing.T) {
	var details atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sub/detail", func(w http.ResponseWriter, r *http.Request) {
		details.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": 0,
			"sub": map[string]any{"subs": []any{map[string]any{
				"id":  602333,
				"url": "/archive.zip",
				"filelist": []any{
					map[string]any{"url": "/files/eng", "f": "Inception.eng.srt", "s": "80KB"},
					map[string]any{"url": "/files/chs", "f": "Inception.chs.ass", "s": "120KB"},
				},
			}}},
		})
	})
	mux.HandleFunc("/files/chs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[Script Info]\n"))
	})
	mux.HandleFunc("/files/eng", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("english file should not be fetched")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter := newTestAdapter(t, server)
	dest := filepath.Join(t.TempDir(), "movie_zh-cn.srt")
	rec := subtitles.Record{ID: "602333", Source: subtitles.SourceAssrt, Language: "zh-cn"}

	path, err := adapter.Download(context.Background(), rec, dest)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if filepath.Ext(path) != ".ass" {
		t.Fatalf("expected .ass extension, got %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read downloaded file: %v", err)
	}
	if string(data) != "[Script Info]\n" {
		t.Fatalf("unexpected payload %q", data)
	}

	again, err := adapter.Download(context.Background(), rec, dest)
	if err != nil {
		t.Fatalf("repeat Download: %v", err)
	}
	if again != path {
		t.Fatalf("repeat download should reuse %s, got %s", path, again)
	}
	if got := details.Load(); got != 1 {
		t.Fatalf("expected one detail request, got %d", got)
	}
}

func TestAdapterQuotaStatusMarksLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": 509, "errmsg": "quota"})
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server)
	req := subtitles.NewSearchRequest(media.Descriptor{FilePath: "/movies/Inception.2010.mkv"}, subtitles.DefaultPolicy())
	_, err := adapter.Search(context.Background(), req)
	if !errors.Is(err, services.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
	if !adapter.Limits().Limited {
		t.Fatal("expected adapter to be marked limited")
	}
	if _, err := adapter.Search(context.Background(), req); !errors.Is(err, services.ErrProviderUnavailable) {
		t.Fatalf("expected short-circuit while limited, got %v", err)
	}
}

func TestAvailableReadsQuota(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": 0, "user": map[string]any{"quota": 12}})
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server)
	if !adapter.Available(context.Background()) {
		t.Fatal("expected adapter to be available")
	}
	if got := adapter.Limits().Remaining; got != 12 {
		t.Fatalf("expected remaining 12, got %d", got)
	}
}
