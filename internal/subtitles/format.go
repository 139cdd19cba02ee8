package subtitles

import (
	"path/filepath"
	"strings"
)

// Format is a subtitle file format keyed by its canonical extension.
type Format string

const (
	FormatSRT     Format = "srt"
	FormatASS     Format = "ass"
	FormatSSA     Format = "ssa"
	FormatVTT     Format = "vtt"
	FormatSUB     Format = "sub"
	FormatIDX     Format = "idx"
	FormatSMI     Format = "smi"
	FormatTXT     Format = "txt"
	FormatUnknown Format = "unknown"
)

var formatMIME = map[Format]string{
	FormatSRT: "application/x-subrip",
	FormatASS: "text/x-ssa",
	FormatSSA: "text/x-ssa",
	FormatVTT: "text/vtt",
	FormatSUB: "text/x-subviewer",
	FormatIDX: "application/x-subtitle",
	FormatSMI: "application/x-sami",
	FormatTXT: "text/plain",
}

// ParseFormat maps an extension or format name ("SRT", ".ass", "webvtt") to a Format.
func ParseFormat(value string) Format {
	v := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), "."))
	switch v {
	case "webvtt":
		return FormatVTT
	case "sami":
		return FormatSMI
	case "subrip":
		return FormatSRT
	}
	if _, ok := formatMIME[Format(v)]; ok {
		return Format(v)
	}
	return FormatUnknown
}

// FormatFromName derives the format from a file name's extension.
func FormatFromName(name string) Format {
	return ParseFormat(filepath.Ext(name))
}

// MIMEType returns the media type the playback side needs; unknown formats map
// to application/octet-stream.
func (f Format) MIMEType() string {
	if mime, ok := formatMIME[f]; ok {
		return mime
	}
	return "application/octet-stream"
}

// Extension returns the file extension including the leading dot.
func (f Format) Extension() string {
	if f == "" || f == FormatUnknown {
		return ".srt"
	}
	return "." + string(f)
}

// Text reports whether the format is a text subtitle usable on its own.
func (f Format) Text() bool {
	switch f {
	case FormatSRT, FormatASS, FormatSSA, FormatVTT:
		return true
	}
	return false
}

// IsSubtitleFile reports whether name carries a recognized subtitle extension.
func IsSubtitleFile(name string) bool {
	return FormatFromName(name) != FormatUnknown
}
