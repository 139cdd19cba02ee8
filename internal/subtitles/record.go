package subtitles

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Source names the provider a record came from.
type Source string

const (
	SourceOpenSubtitles Source = "opensubtitles"
	SourceAssrt         Source = "assrt"
	SourceSubscene      Source = "subscene"
	// SourceLocal marks files discovered next to the media or served from cache.
	SourceLocal Source = "local"
)

// TrustWeight is the provider contribution to the quality sub-score.
func (s Source) TrustWeight() float64 {
	switch s {
	case SourceOpenSubtitles:
		return 0.3
	case SourceSubscene:
		return 0.25
	case SourceLocal:
		return 0.2
	default:
		return 0.1
	}
}

// Known reports whether s is one of the built-in sources.
func (s Source) Known() bool {
	switch s {
	case SourceOpenSubtitles, SourceAssrt, SourceSubscene, SourceLocal:
		return true
	}
	return false
}

func (s Source) String() string { return string(s) }

// Metadata keys shared by adapters, the scorer, and the cache.
const (
	MetaSeason            = "season"
	MetaEpisode           = "episode"
	MetaYear              = "year"
	MetaDuration          = "duration"
	MetaHD                = "hd"
	MetaMachineTranslated = "machine_translated"
	MetaHearingImpaired   = "hearing_impaired"
	MetaFileID            = "file_id"
	MetaOriginSource      = "origin_source"
	MetaRelease           = "release"
)

var metaAliases = map[string][]string{
	MetaSeason:  {"season_number"},
	MetaEpisode: {"episode_number"},
}

// Record is one subtitle offering. LocalPath, ContentHash, and Downloaded are
// set once the file has been materialized.
type Record struct {
	ID           string            `json:"id"`
	Source       Source            `json:"source"`
	Language     string            `json:"language"`
	LanguageName string            `json:"language_name,omitempty"`
	Title        string            `json:"title"`
	Format       Format            `json:"format"`
	Encoding     string            `json:"encoding,omitempty"`
	Rating       float64           `json:"rating"`
	Downloads    int               `json:"downloads"`
	UploadedAt   time.Time         `json:"uploaded_at,omitzero"`
	FileSize     int64             `json:"file_size,omitempty"`
	DownloadURL  string            `json:"download_url,omitempty"`
	Uploader     string            `json:"uploader,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LocalPath    string            `json:"local_path,omitempty"`
	ContentHash  string            `json:"content_hash,omitempty"`
	Downloaded   bool              `json:"downloaded"`
	StoredAt     time.Time         `json:"stored_at,omitzero"`
}

// Clone returns a copy that shares no mutable state with r.
func (r Record) Clone() Record {
	out := r
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Available reports whether the record is downloaded and its file still
// exists with content.
func (r Record) Available() bool {
	if !r.Downloaded || strings.TrimSpace(r.LocalPath) == "" {
		return false
	}
	info, err := os.Stat(r.LocalPath)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// Key is the de-duplication key (language, source, content hash). Records
// without a hash fall back to their id.
func (r Record) Key() string {
	tail := r.ContentHash
	if tail == "" {
		tail = "id:" + r.ID
	}
	return strings.ToLower(r.Language) + "|" + string(r.Source) + "|" + tail
}

// AgeReference is the instant used for expiry: the upload time, else the time
// the record was stored.
func (r Record) AgeReference() time.Time {
	if !r.UploadedAt.IsZero() {
		return r.UploadedAt
	}
	return r.StoredAt
}

// Meta returns a trimmed metadata value, consulting known aliases.
func (r Record) Meta(key string) (string, bool) {
	if r.Metadata == nil {
		return "", false
	}
	if v := strings.TrimSpace(r.Metadata[key]); v != "" {
		return v, true
	}
	for _, alias := range metaAliases[key] {
		if v := strings.TrimSpace(r.Metadata[alias]); v != "" {
			return v, true
		}
	}
	return "", false
}

// MetaInt parses an integer metadata value; malformed values count as absent.
func (r Record) MetaInt(key string) (int, bool) {
	v, ok := r.Meta(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		f, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil {
			return 0, false
		}
		n = int(f)
	}
	return n, true
}

// MetaBool parses a boolean metadata value.
func (r Record) MetaBool(key string) bool {
	v, ok := r.Meta(key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// SetMeta stores a metadata value, allocating the map when needed.
func (r *Record) SetMeta(key, value string) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
}

// FileExtension returns the extension a materialized copy should carry.
func (r Record) FileExtension() string {
	if r.Format != "" && r.Format != FormatUnknown {
		return r.Format.Extension()
	}
	if r.LocalPath != "" {
		if f := FormatFromName(r.LocalPath); f != FormatUnknown {
			return f.Extension()
		}
	}
	return FormatSRT.Extension()
}

// BaseName returns the file name of the materialized copy, if any.
func (r Record) BaseName() string {
	if r.LocalPath == "" {
		return ""
	}
	return filepath.Base(r.LocalPath)
}
