package media_test

import (
	"strings"
	"testing"

	"subtrove/internal/media"
)

func TestParseFileName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want media.Parsed
	}{
		{
			name: "episode",
			in:   "Breaking.Bad.S02E05.720p.HDTV.x264-GROUP.mkv",
			want: media.Parsed{Title: "Breaking Bad", Season: 2, Episode: 5, Resolution: "720p", ReleaseGroup: "GROUP"},
		},
		{
			name: "movie",
			in:   "The.Dark.Knight.2008.1080p.BluRay.x264-SPARKS.mkv",
			want: media.Parsed{Title: "The Dark Knight", Year: 2008, Resolution: "1080p", ReleaseGroup: "SPARKS"},
		},
		{
			name: "numeric title",
			in:   "1917.2019.2160p.WEB-DL.mkv",
			want: media.Parsed{Title: "1917", Year: 2019, Resolution: "2160p"},
		},
		{
			name: "cross episode",
			in:   "Doctor Who 3x07.avi",
			want: media.Parsed{Title: "Doctor Who", Season: 3, Episode: 7},
		},
		{
			name: "spelled out",
			in:   "Friends Season 4 Episode 12.mp4",
			want: media.Parsed{Title: "Friends", Season: 4, Episode: 12},
		},
		{
			name: "hyphenated title",
			in:   "Spider-Man",
			want: media.Parsed{Title: "Spider Man"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := media.ParseFileName(tt.in)
			if got != tt.want {
				t.Fatalf("ParseFileName(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolvedPrefersExplicitFields(t *testing.T) {
	d := media.Descriptor{
		Title:    "Breaking Bad",
		FilePath: "/tv/Breaking.Bad.S02E05.720p.HDTV.x264-GROUP.mkv",
		Year:     2008,
	}
	got := d.Resolved()
	if got.FileName != "Breaking.Bad.S02E05.720p.HDTV.x264-GROUP.mkv" {
		t.Fatalf("unexpected file name: %q", got.FileName)
	}
	if got.Kind != media.KindEpisode || got.Season != 2 || got.Episode != 5 {
		t.Fatalf("expected episode S02E05, got %+v", got)
	}
	if got.Year != 2008 || got.Title != "Breaking Bad" {
		t.Fatalf("explicit fields overwritten: %+v", got)
	}
	if got.EpisodeTag() != "S02E05" {
		t.Fatalf("unexpected episode tag: %q", got.EpisodeTag())
	}
	if !got.IsEpisode() || !got.HasFileHints() {
		t.Fatal("expected episode with file hints")
	}
	if d.FileName != "" {
		t.Fatal("Resolved must not mutate the receiver")
	}
}

func TestResolvedMovieKind(t *testing.T) {
	got := media.Descriptor{Title: "Inception", Year: 2010}.Resolved()
	if got.Kind != media.KindMovie || got.IsEpisode() || got.HasFileHints() {
		t.Fatalf("unexpected movie resolution: %+v", got)
	}
}

func TestFileIdentifierPrecedence(t *testing.T) {
	base := media.Descriptor{Title: "Inception", Year: 2010}

	withHash := base
	withHash.FileHash = "ABCDEF"
	withHash.IMDBID = "tt1375666"
	if got := withHash.FileIdentifier(); got != "abcdef" {
		t.Fatalf("hash should win, got %q", got)
	}

	withIMDB := base
	withIMDB.IMDBID = "tt1375666"
	withIMDB.TMDBID = 27205
	if got := withIMDB.FileIdentifier(); got != "tt1375666" {
		t.Fatalf("imdb should win over tmdb, got %q", got)
	}

	withTMDB := base
	withTMDB.TMDBID = 27205
	if got := withTMDB.FileIdentifier(); got != "tmdb_27205" {
		t.Fatalf("unexpected tmdb identifier: %q", got)
	}

	derived := base.FileIdentifier()
	if !strings.HasPrefix(derived, "t_") || len(derived) != 18 {
		t.Fatalf("unexpected derived identifier: %q", derived)
	}
	spaced := media.Descriptor{Title: "  INCEPTION ", Year: 2010}
	if spaced.FileIdentifier() != derived {
		t.Fatal("derived identifier should ignore case and surrounding space")
	}
	other := media.Descriptor{Title: "Inception", Year: 2011}
	if other.FileIdentifier() == derived {
		t.Fatal("different years must not collide")
	}
}
