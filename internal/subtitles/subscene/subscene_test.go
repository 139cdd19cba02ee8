package subscene

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"subtrove/internal/logging"
	"subtrove/internal/media"
	"subtrove/internal/services"
	"subtrove/internal/subtitles"
	"subtrove/internal/subtitles/provider"
)

const searchPage = `<html><body>
<div class="search-result">
  <h2>Close</h2>
  <ul>
    <li><div class="title"><a href="/subtitles/inception">Inception (2010)</a></div></li>
    <li><div class="title"><a href="/subtitles/inception-the-cobol-job">Inception: The Cobol Job (2010)</a></div></li>
  </ul>
</div>
</body></html>`

const titlePage = `<html><body><table><tbody>
<tr>
  <td class="a1"><a href="/subtitles/inception/english/111"><span class="l r positive-icon">English</span><span>Inception.2010.1080p.BluRay.x264-SPARKS</span></a></td>
  <td class="a3">1</td>
  <td class="a40"></td>
  <td class="a5"><a href="/u/1">alice</a></td>
  <td class="a6"><div>synced</div></td>
</tr>
<tr>
  <td class="a1"><a href="/subtitles/inception/chinese-bg-code/222"><span class="l r">Chinese BG code</span><span>Inception.2010.BluRay.720p</span></a></td>
  <td class="a3">2</td>
  <td class="a41"></td>
  <td class="a5"><a href="/u/2">bob</a></td>
  <td class="a6"><div></div></td>
</tr>
<tr>
  <td class="a1"><a href="/subtitles/inception/french/333"><span class="l r">French</span><span>Inception.2010.DVDRip</span></a></td>
  <td class="a3">1</td>
</tr>
</tbody></table></body></html>`

const detailPage = `<html><body><div class="download"><a id="downloadButton" href="/subtitles/chinese-text/abc">Download</a></div></body></html>`

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func newSiteServer(t *testing.T, archive []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/subtitles/searchbytitle", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") != "Inception" {
			fmt.Fprint(w, `<html><body><div class="search-result"></div></body></html>`)
			return
		}
		fmt.Fprint(w, searchPage)
	})
	mux.HandleFunc("/subtitles/inception", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, titlePage)
	})
	mux.HandleFunc("/subtitles/inception/chinese-bg-code/222", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailPage)
	})
	mux.HandleFunc("/subtitles/chinese-text/abc", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(archive)
	})
	return httptest.NewServer(mux)
}

func newTestAdapter(t *testing.T, server *httptest.Server) *Adapter {
	t.Helper()
	adapter, err := NewAdapter(Config{BaseURL: server.URL}, logging.NewNop(),
		provider.WithMinInterval(0), provider.WithRetries(0, 0, 0))
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	return adapter
}

func TestParseTitlesExtractsYear(t *testing.T) {
	base, _ := url.Parse("https://subscene.example/subtitles/searchbytitle")
	hits, err := ParseTitles([]byte(searchPage), base)
	if err != nil {
		t.Fatalf("ParseTitles: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Name != "Inception" || hits[0].Year != 2010 {
		t.Fatalf("unexpected first hit: %+v", hits[0])
	}
	if hits[0].URL != "https://subscene.example/subtitles/inception" {
		t.Fatalf("expected absolute url, got %q", hits[0].URL)
	}
}

func TestParseRows(t *testing.T) {
	base, _ := url.Parse("https://subscene.example/subtitles/inception")
	rows, err := ParseRows([]byte(titlePage), base)
	if err != nil {
		t.Fatalf("ParseRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[1].Language != "Chinese BG code" || !rows[1].HearingImpaired || rows[1].Files != 2 {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
	if rows[0].Uploader != "alice" || rows[0].Comment != "synced" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
}

func TestParseDownloadLinkMissing(t *testing.T) {
	base, _ := url.Parse("https://subscene.example/x")
	if _, err := ParseDownloadLink([]byte("<html></html>"), base); !errors.Is(err, services.ErrProviderParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestAdapterSearchFiltersLanguages(t *testing.T) {
	server := newSiteServer(t, nil)
	defer server.Close()

	adapter := newTestAdapter(t, server)
	req := subtitles.NewSearchRequest(media.Descriptor{
		Title:    "Inception",
		Year:     2010,
		FilePath: "/movies/Inception.2010.1080p.mkv",
	}, subtitles.DefaultPolicy())

	records, err := adapter.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected zh-cn and en rows, got %d: %+v", len(records), records)
	}
	if records[0].Language != "en" || records[1].Language != "zh-cn" {
		t.Fatalf("unexpected languages: %q %q", records[0].Language, records[1].Language)
	}
	if records[1].ID != "/subtitles/inception/chinese-bg-code/222" {
		t.Fatalf("unexpected id %q", records[1].ID)
	}
	if !records[1].MetaBool(subtitles.MetaHearingImpaired) {
		t.Fatal("expected hearing impaired flag")
	}
	if year, _ := records[0].MetaInt(subtitles.MetaYear); year != 2010 {
		t.Fatalf("expected year metadata, got %d", year)
	}
}

func TestAdapterDownloadExtractsArchive(t *testing.T) {
	archive := zipArchive(t, map[string]string{
		"Inception.eng.srt": "1\n00:00:01,000 --> 00:00:02,000\nHello\n",
		"Inception.chs.srt": "1\n00:00:01,000 --> 00:00:02,000\n你好\n",
		"readme.txt":        "ignore",
	})
	server := newSiteServer(t, archive)
	defer server.Close()

	adapter := newTestAdapter(t, server)
	rec := subtitles.Record{
		ID:          "/subtitles/inception/chinese-bg-code/222",
		Source:      subtitles.SourceSubscene,
		Language:    "zh-cn",
		DownloadURL: server.URL + "/subtitles/inception/chinese-bg-code/222",
	}
	dest := filepath.Join(t.TempDir(), "movie_zh-cn.srt")
	path, err := adapter.Download(context.Background(), rec, dest)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Contains(data, []byte("你好")) {
		t.Fatalf("expected chinese subtitle, got %q", data)
	}
}
