package provider

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"subtrove/internal/language"
	"subtrove/internal/subtitles"
)

// AlreadyDownloaded reports whether dest exists as a non-empty regular file.
func AlreadyDownloaded(dest string) bool {
	info, err := os.Stat(dest)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// WriteFileAtomic writes data through a temp file in the destination
// directory so readers never observe a partial subtitle.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".subtrove-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// downloadFormats are the extensions AdoptExtension can give a download.
var downloadFormats = []subtitles.Format{
	subtitles.FormatSRT, subtitles.FormatASS, subtitles.FormatSSA, subtitles.FormatVTT,
	subtitles.FormatSUB, subtitles.FormatIDX, subtitles.FormatSMI, subtitles.FormatTXT,
}

// ExistingDownload finds a non-empty file at dest, or at dest's stem with
// another subtitle extension when an earlier download adopted one.
func ExistingDownload(dest string) (string, bool) {
	if AlreadyDownloaded(dest) {
		return dest, true
	}
	stem := strings.TrimSuffix(dest, filepath.Ext(dest))
	for _, f := range downloadFormats {
		candidate := stem + f.Extension()
		if candidate != dest && AlreadyDownloaded(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// AdoptExtension keeps dest's stem but takes the extension of the file that
// was actually chosen, so an ASS payload is not saved as .srt.
func AdoptExtension(dest, chosen string) string {
	ext := strings.ToLower(filepath.Ext(chosen))
	if ext == "" || !subtitles.IsSubtitleFile(chosen) {
		return dest
	}
	return strings.TrimSuffix(dest, filepath.Ext(dest)) + ext
}

// FileEntry is one file inside a provider package or archive.
type FileEntry struct {
	Name     string
	URL      string
	Size     int64
	SizeText string
}

var qualityHints = []string{"blu-ray", "bluray", "web-dl", "webrip", "hdrip", "1080p", "720p", "2160p"}

// ChooseBestFile picks the text subtitle worth keeping. Order: files whose
// name carries one of the wanted languages, release-quality hints, format
// (srt, ass, vtt, ssa), a size score favouring 50-200 KB, then shorter names.
func ChooseBestFile(files []FileEntry, languages []string) (FileEntry, bool) {
	candidates := make([]FileEntry, 0, len(files))
	for _, f := range files {
		if subtitles.FormatFromName(f.Name).Text() {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 0 {
		return FileEntry{}, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if la, lb := wantsLanguage(a.Name, languages), wantsLanguage(b.Name, languages); la != lb {
			return la
		}
		if qa, qb := hasQualityHint(a.Name), hasQualityHint(b.Name); qa != qb {
			return qa
		}
		if pa, pb := formatPriority(a.Name), formatPriority(b.Name); pa != pb {
			return pa < pb
		}
		if sa, sb := sizeScore(a), sizeScore(b); sa != sb {
			return sa > sb
		}
		return len(a.Name) < len(b.Name)
	})
	return candidates[0], true
}

func wantsLanguage(name string, languages []string) bool {
	detected := language.FromFileName(name)
	if detected == language.Unknown {
		return false
	}
	for _, want := range languages {
		if language.Matches(detected, want) {
			return true
		}
	}
	return false
}

func hasQualityHint(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range qualityHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func formatPriority(name string) int {
	switch subtitles.FormatFromName(name) {
	case subtitles.FormatSRT:
		return 0
	case subtitles.FormatASS:
		return 1
	case subtitles.FormatVTT:
		return 2
	case subtitles.FormatSSA:
		return 3
	default:
		return 4
	}
}

func sizeScore(f FileEntry) int {
	kb := float64(f.Size) / 1024
	if f.Size <= 0 {
		parsed, ok := ParseSizeText(f.SizeText)
		if !ok {
			return 50
		}
		kb = float64(parsed) / 1024
	}
	switch {
	case kb < 10:
		return 10
	case kb < 50:
		return 60
	case kb <= 200:
		return 100
	case kb <= 500:
		return 80
	case kb <= 1000:
		return 60
	default:
		return 30
	}
}

var sizeTextPattern = regexp.MustCompile(`(?i)^\s*([\d.]+)\s*([kmg]?i?b?)\s*$`)

// ParseSizeText parses human sizes such as "56.2 KB" or "1.1MB" into bytes.
// Bare numbers are bytes.
func ParseSizeText(text string) (int64, bool) {
	m := sizeTextPattern.FindStringSubmatch(strings.ReplaceAll(text, ",", ""))
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(strings.TrimSuffix(strings.TrimSuffix(strings.ToLower(m[2]), "b"), "i")) {
	case "k":
		value *= 1024
	case "m":
		value *= 1024 * 1024
	case "g":
		value *= 1024 * 1024 * 1024
	}
	return int64(value), true
}
