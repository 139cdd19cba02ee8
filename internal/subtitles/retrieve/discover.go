package retrieve

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"subtrove/internal/language"
	"subtrove/internal/subtitles"
)

// Discover lists subtitle files next to mediaPath whose names start with
// the media file's base name, compared case-insensitively. Languages come
// from the name tokens after the base name (movie.chs.srt).
func Discover(mediaPath string) ([]subtitles.Record, error) {
	if strings.TrimSpace(mediaPath) == "" {
		return nil, nil
	}
	dir := filepath.Dir(mediaPath)
	base := filepath.Base(mediaPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	var records []subtitles.Record
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !subtitles.IsSubtitleFile(name) {
			continue
		}
		if len(name) < len(stem) || !strings.EqualFold(name[:len(stem)], stem) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
			continue
		}
		path := filepath.Join(dir, name)
		records = append(records, localRecord(path, name[len(stem):], info.Size()))
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].LocalPath < records[j].LocalPath })
	return records, nil
}

func localRecord(path, suffix string, size int64) subtitles.Record {
	lang := language.FromFileName(strings.TrimSuffix(suffix, filepath.Ext(suffix)))
	name := filepath.Base(path)
	sum := sha256.Sum256([]byte(path))
	rec := subtitles.Record{
		ID:           hex.EncodeToString(sum[:8]),
		Source:       subtitles.SourceLocal,
		Language:     lang,
		LanguageName: language.DisplayName(lang),
		Title:        strings.TrimSuffix(name, filepath.Ext(name)),
		Format:       subtitles.FormatFromName(name),
		FileSize:     size,
		LocalPath:    path,
		Downloaded:   true,
	}
	if data, err := os.ReadFile(path); err == nil {
		digest := sha256.Sum256(data)
		rec.ContentHash = hex.EncodeToString(digest[:])
	}
	return rec
}
