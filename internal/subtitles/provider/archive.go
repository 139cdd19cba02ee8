package provider

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"

	"subtrove/internal/subtitles"
)

// maxArchiveEntry caps a single extracted subtitle.
const maxArchiveEntry = 16 << 20

// ArchiveFile is one subtitle extracted from a provider archive.
type ArchiveFile struct {
	Name string
	Data []byte
}

// ExtractSubtitles unpacks the subtitle files of a zip archive held in memory.
// Non-subtitle entries and directories are skipped.
func ExtractSubtitles(data []byte) ([]ArchiveFile, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	var out []ArchiveFile
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		name := path.Base(file.Name)
		if !subtitles.IsSubtitleFile(name) {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return out, fmt.Errorf("open archive entry %s: %w", name, err)
		}
		payload, err := io.ReadAll(io.LimitReader(rc, maxArchiveEntry))
		rc.Close()
		if err != nil {
			return out, fmt.Errorf("read archive entry %s: %w", name, err)
		}
		out = append(out, ArchiveFile{Name: name, Data: payload})
	}
	return out, nil
}

// PickArchiveFile extracts the archive and returns its best subtitle.
func PickArchiveFile(data []byte, languages []string) (ArchiveFile, error) {
	files, err := ExtractSubtitles(data)
	if err != nil && len(files) == 0 {
		return ArchiveFile{}, err
	}
	entries := make([]FileEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, FileEntry{Name: f.Name, Size: int64(len(f.Data))})
	}
	best, ok := ChooseBestFile(entries, languages)
	if !ok {
		return ArchiveFile{}, fmt.Errorf("archive holds no text subtitles (%d entries)", len(files))
	}
	for _, f := range files {
		if f.Name == best.Name {
			return f, nil
		}
	}
	return ArchiveFile{}, fmt.Errorf("archive entry %s vanished", best.Name)
}
