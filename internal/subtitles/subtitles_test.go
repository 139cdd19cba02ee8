package subtitles

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"subtrove/internal/media"
)

func TestRecordAvailable(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "full.srt")
	if err := os.WriteFile(full, []byte("1\n00:00:01,000 --> 00:00:02,000\nhi\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	empty := filepath.Join(dir, "empty.srt")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tests := []struct {
		name string
		rec  Record
		want bool
	}{
		{"downloaded with file", Record{Downloaded: true, LocalPath: full}, true},
		{"not downloaded", Record{LocalPath: full}, false},
		{"empty file", Record{Downloaded: true, LocalPath: empty}, false},
		{"missing file", Record{Downloaded: true, LocalPath: filepath.Join(dir, "gone.srt")}, false},
		{"directory", Record{Downloaded: true, LocalPath: dir}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Available(); got != tt.want {
				t.Fatalf("Available() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecordMetaAliasesAndClone(t *testing.T) {
	rec := Record{Metadata: map[string]string{"season_number": "3", MetaEpisode: " 5 ", MetaHD: "true", MetaYear: "bad"}}
	if s, ok := rec.MetaInt(MetaSeason); !ok || s != 3 {
		t.Fatalf("expected season alias 3, got %d %v", s, ok)
	}
	if e, ok := rec.MetaInt(MetaEpisode); !ok || e != 5 {
		t.Fatalf("expected episode 5, got %d %v", e, ok)
	}
	if _, ok := rec.MetaInt(MetaYear); ok {
		t.Fatal("malformed year should be absent")
	}
	if !rec.MetaBool(MetaHD) {
		t.Fatal("expected hd flag")
	}

	clone := rec.Clone()
	clone.SetMeta(MetaHD, "false")
	if !rec.MetaBool(MetaHD) {
		t.Fatal("clone mutation leaked into original")
	}
}

func TestRecordKeyFallsBackToID(t *testing.T) {
	a := Record{ID: "1", Source: SourceAssrt, Language: "EN"}
	b := Record{ID: "2", Source: SourceAssrt, Language: "en"}
	if a.Key() == b.Key() {
		t.Fatal("records without hashes must key by id")
	}
	a.ContentHash, b.ContentHash = "abc", "abc"
	if a.Key() != b.Key() {
		t.Fatalf("same language/source/hash should collide: %q vs %q", a.Key(), b.Key())
	}
}

func TestFormatMIME(t *testing.T) {
	tests := map[string]string{
		"movie.srt":   "application/x-subrip",
		"movie.ASS":   "text/x-ssa",
		"movie.vtt":   "text/vtt",
		"movie.smi":   "application/x-sami",
		"movie.sub":   "text/x-subviewer",
		"movie.weird": "application/octet-stream",
	}
	for name, want := range tests {
		if got := FormatFromName(name).MIMEType(); got != want {
			t.Errorf("%s: got %q want %q", name, got, want)
		}
	}
	if ParseFormat("WebVTT") != FormatVTT {
		t.Fatal("expected webvtt alias")
	}
}

func TestPolicyLanguages(t *testing.T) {
	p := Policy{PrimaryLanguage: "EN", FallbackLanguage: "zh-cn", AutoSelectLanguage: true}
	if got := p.Languages(); !reflect.DeepEqual(got, []string{"en", "zh-cn"}) {
		t.Fatalf("unexpected languages: %v", got)
	}
	p.AutoSelectLanguage = false
	if got := p.Languages(); !reflect.DeepEqual(got, []string{"en"}) {
		t.Fatalf("expected primary only, got %v", got)
	}
	p.FallbackLanguage = "en"
	p.AutoSelectLanguage = true
	if got := p.Languages(); len(got) != 1 {
		t.Fatalf("expected duplicates removed, got %v", got)
	}
}

func TestParseQuality(t *testing.T) {
	if q, ok := ParseQuality(" Latest "); !ok || q != QualityLatest {
		t.Fatalf("unexpected quality: %v %v", q, ok)
	}
	if _, ok := ParseQuality("shiny"); ok {
		t.Fatal("expected unknown quality to be rejected")
	}
}

func TestSearchRequestFromDescriptor(t *testing.T) {
	req := NewSearchRequest(media.Descriptor{
		OriginalTitle: "Breaking Bad",
		FilePath:      "/tv/Breaking.Bad.S02E05.720p.HDTV.x264-GROUP.mkv",
	}, DefaultPolicy())
	if err := req.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !req.IsEpisode() {
		t.Fatal("expected episode request")
	}
	if req.Media.Title != "Breaking Bad" {
		t.Fatalf("expected title parsed from file name, got %q", req.Media.Title)
	}
	if got := req.Keywords(); !reflect.DeepEqual(got, []string{"Breaking Bad"}) {
		t.Fatalf("expected deduplicated keywords, got %v", got)
	}
	if req.FileStem() != "Breaking.Bad.S02E05.720p.HDTV.x264-GROUP" {
		t.Fatalf("unexpected stem: %q", req.FileStem())
	}
	if req.PrimaryLanguage() != "zh-cn" || req.FallbackLanguage() != "en" {
		t.Fatalf("unexpected languages: %v", req.Languages)
	}

	if err := (SearchRequest{}).Validate(); err == nil {
		t.Fatal("expected empty request to fail validation")
	}
}

func TestLimitsCanRequest(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		limits Limits
		want   bool
	}{
		{"unknown", UnknownLimits(SourceOpenSubtitles, 200), true},
		{"remaining", Limits{Remaining: 3}, true},
		{"exhausted", Limits{Remaining: 0, ResetAt: now.Add(time.Hour)}, false},
		{"limited", Limits{Remaining: 5, Limited: true, ResetAt: now.Add(time.Minute)}, false},
		{"reset passed", Limits{Remaining: 0, Limited: true, ResetAt: now.Add(-time.Minute)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.limits.CanRequest(now); got != tt.want {
				t.Fatalf("CanRequest() = %v, want %v", got, tt.want)
			}
		})
	}
}
