package media

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Parsed holds the fields recovered from a scene-style file name.
type Parsed struct {
	Title        string
	Year         int
	Season       int
	Episode      int
	Resolution   string
	ReleaseGroup string
}

var (
	seasonEpisodePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bS(\d{1,2})[ ._-]?E(\d{1,3})\b`),
		regexp.MustCompile(`(?i)\b(\d{1,2})x(\d{1,3})\b`),
		regexp.MustCompile(`(?i)\bseason[ ._-]*(\d{1,2})\b.*?\bepisode[ ._-]*(\d{1,3})\b`),
	}
	yearPattern         = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	resolutionPattern   = regexp.MustCompile(`(?i)\b(720p|1080p|1440p|2160p|4k)\b`)
	releaseGroupPattern = regexp.MustCompile(`-(\w+)$`)
	separatorPattern    = regexp.MustCompile(`[.\-_\s()\[\]]+`)
)

var knownExtensions = map[string]struct{}{
	".mkv": {}, ".mp4": {}, ".avi": {}, ".m4v": {}, ".mov": {}, ".wmv": {}, ".ts": {},
	".m2ts": {}, ".webm": {}, ".flv": {}, ".rmvb": {}, ".iso": {}, ".mpg": {}, ".mpeg": {},
	".srt": {}, ".ass": {}, ".ssa": {}, ".vtt": {}, ".sub": {}, ".idx": {}, ".smi": {},
}

// noiseTokens are release tags that never belong to a title.
var noiseTokens = map[string]struct{}{
	"x264": {}, "x265": {}, "h264": {}, "h265": {}, "hevc": {}, "avc": {}, "xvid": {}, "divx": {},
	"10bit": {}, "8bit": {}, "aac": {}, "ac3": {}, "dts": {}, "truehd": {}, "atmos": {}, "flac": {},
	"ddp5": {}, "dd5": {}, "bluray": {}, "bdrip": {}, "brrip": {}, "webrip": {}, "web": {}, "dl": {},
	"webdl": {}, "hdtv": {}, "dvdrip": {}, "hdrip": {}, "remux": {}, "proper": {}, "repack": {},
	"hdr": {}, "hdr10": {}, "dv": {}, "uhd": {}, "internal": {}, "limited": {}, "extended": {},
	"unrated": {},
}

// ParseFileName extracts media fields from name in priority order: season and
// episode (SxxEyy, NxM, "Season N Episode M"), year, resolution, and trailing
// release group. The title is whatever remains once those tokens and common
// release tags are removed.
func ParseFileName(name string) Parsed {
	base := filepath.Base(strings.TrimSpace(name))
	if ext := strings.ToLower(filepath.Ext(base)); ext != "" {
		if _, ok := knownExtensions[ext]; ok {
			base = strings.TrimSuffix(base, filepath.Ext(base))
		}
	}

	var parsed Parsed
	rest := base

	if m := releaseGroupPattern.FindStringSubmatchIndex(rest); m != nil {
		group := rest[m[2]:m[3]]
		head := rest[:m[0]]
		if strings.ContainsAny(head, "._ ") && !isNumeric(group) && !isNoise(group) && !resolutionPattern.MatchString(group) {
			parsed.ReleaseGroup = group
			rest = rest[:m[0]]
		}
	}

	for _, pattern := range seasonEpisodePatterns {
		m := pattern.FindStringSubmatchIndex(rest)
		if m == nil {
			continue
		}
		parsed.Season, _ = strconv.Atoi(rest[m[2]:m[3]])
		parsed.Episode, _ = strconv.Atoi(rest[m[4]:m[5]])
		rest = rest[:m[0]] + " " + rest[m[1]:]
		break
	}

	if m := lastMatchIndex(yearPattern, rest); m != nil {
		parsed.Year, _ = strconv.Atoi(rest[m[2]:m[3]])
		rest = rest[:m[0]] + " " + rest[m[1]:]
	}

	if m := resolutionPattern.FindStringSubmatchIndex(rest); m != nil {
		parsed.Resolution = strings.ToLower(rest[m[2]:m[3]])
		rest = rest[:m[0]] + " " + rest[m[1]:]
	}

	parsed.Title = cleanTitle(rest)
	return parsed
}

// lastMatchIndex prefers the last year so "2001 A Space Odyssey 1968" keeps
// its leading number. A lone year at the start belongs to the title ("1917").
func lastMatchIndex(re *regexp.Regexp, s string) []int {
	all := re.FindAllStringSubmatchIndex(s, -1)
	if len(all) == 0 {
		return nil
	}
	last := all[len(all)-1]
	if len(all) == 1 && strings.TrimLeft(s[:last[0]], " ._-([") == "" {
		return nil
	}
	return last
}

func cleanTitle(s string) string {
	fields := strings.Fields(separatorPattern.ReplaceAllString(s, " "))
	kept := make([]string, 0, len(fields))
	for _, field := range fields {
		if isNoise(field) {
			continue
		}
		kept = append(kept, field)
	}
	return strings.Join(kept, " ")
}

func isNoise(token string) bool {
	_, ok := noiseTokens[strings.ToLower(token)]
	return ok
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
