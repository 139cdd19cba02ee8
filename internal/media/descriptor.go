package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Kind distinguishes movies from TV episodes.
type Kind string

const (
	KindMovie   Kind = "movie"
	KindEpisode Kind = "episode"
)

// Descriptor identifies one media file. Season and Episode are 0 when unknown.
type Descriptor struct {
	Kind            Kind   `json:"kind,omitempty" yaml:"kind"`
	Title           string `json:"title,omitempty" yaml:"title"`
	OriginalTitle   string `json:"original_title,omitempty" yaml:"original_title"`
	Year            int    `json:"year,omitempty" yaml:"year"`
	Season          int    `json:"season,omitempty" yaml:"season"`
	Episode         int    `json:"episode,omitempty" yaml:"episode"`
	FilePath        string `json:"file_path,omitempty" yaml:"file_path"`
	FileName        string `json:"file_name,omitempty" yaml:"file_name"`
	FileSize        int64  `json:"file_size,omitempty" yaml:"file_size"`
	FileHash        string `json:"file_hash,omitempty" yaml:"file_hash"`
	DurationSeconds int64  `json:"duration_seconds,omitempty" yaml:"duration_seconds"`
	Resolution      string `json:"resolution,omitempty" yaml:"resolution"`
	VideoCodec      string `json:"video_codec,omitempty" yaml:"video_codec"`
	ReleaseGroup    string `json:"release_group,omitempty" yaml:"release_group"`
	IMDBID          string `json:"imdb_id,omitempty" yaml:"imdb_id"`
	TMDBID          int64  `json:"tmdb_id,omitempty" yaml:"tmdb_id"`
}

// IsEpisode reports whether the descriptor names a TV episode.
func (d Descriptor) IsEpisode() bool {
	return d.Kind == KindEpisode || d.Season > 0 || d.Episode > 0
}

// Duration returns the runtime, zero when unknown.
func (d Descriptor) Duration() time.Duration {
	return time.Duration(d.DurationSeconds) * time.Second
}

// BaseName returns the file name, derived from FilePath when FileName is blank.
func (d Descriptor) BaseName() string {
	if name := strings.TrimSpace(d.FileName); name != "" {
		return name
	}
	if d.FilePath == "" {
		return ""
	}
	return filepath.Base(d.FilePath)
}

// HasFileHints reports whether release-group and resolution comparisons apply.
func (d Descriptor) HasFileHints() bool {
	return d.BaseName() != "" || d.ReleaseGroup != "" || d.Resolution != ""
}

// Resolved returns a copy with blank fields filled from the parsed file name.
// Explicit fields always win over parsed ones.
func (d Descriptor) Resolved() Descriptor {
	out := d
	out.FileName = d.BaseName()
	if out.FileName != "" {
		parsed := ParseFileName(out.FileName)
		if strings.TrimSpace(out.Title) == "" {
			out.Title = parsed.Title
		}
		if out.Year == 0 {
			out.Year = parsed.Year
		}
		if out.Season == 0 && out.Episode == 0 {
			out.Season, out.Episode = parsed.Season, parsed.Episode
		}
		if out.Resolution == "" {
			out.Resolution = parsed.Resolution
		}
		if out.ReleaseGroup == "" {
			out.ReleaseGroup = parsed.ReleaseGroup
		}
	}
	if out.Kind == "" {
		if out.Season > 0 || out.Episode > 0 {
			out.Kind = KindEpisode
		} else {
			out.Kind = KindMovie
		}
	}
	return out
}

// EpisodeTag renders S02E05 style tags; empty for movies.
func (d Descriptor) EpisodeTag() string {
	if d.Season <= 0 && d.Episode <= 0 {
		return ""
	}
	return fmt.Sprintf("S%02dE%02d", d.Season, d.Episode)
}

// FileIdentifier derives the cache key for d: the content hash when known,
// else the IMDb id, else the TMDB id, else a digest of title, year, season,
// and episode.
func (d Descriptor) FileIdentifier() string {
	if hash := strings.TrimSpace(d.FileHash); hash != "" {
		return strings.ToLower(hash)
	}
	if imdb := strings.TrimSpace(d.IMDBID); imdb != "" {
		return strings.ToLower(imdb)
	}
	if d.TMDBID > 0 {
		return "tmdb_" + strconv.FormatInt(d.TMDBID, 10)
	}
	key := fmt.Sprintf("%s_%d_%d_%d", strings.ToLower(strings.TrimSpace(d.Title)), d.Year, d.Season, d.Episode)
	sum := sha256.Sum256([]byte(key))
	return "t_" + hex.EncodeToString(sum[:8])
}
