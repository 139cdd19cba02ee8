package retrieve

import (
	"fmt"
	"path/filepath"
	"strings"

	"subtrove/internal/fileutil"
	"subtrove/internal/language"
	"subtrove/internal/services"
	"subtrove/internal/subtitles"
	"subtrove/internal/textutil"
)

// SidecarPath names the file rec would occupy next to mediaPath, using the
// movie.<lang>.<ext> layout Discover recognizes.
func SidecarPath(mediaPath string, rec subtitles.Record) string {
	dir := filepath.Dir(mediaPath)
	base := filepath.Base(mediaPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	lang := language.Canonical(rec.Language)
	if lang == "" {
		lang = language.Unknown
	}
	return filepath.Join(dir, fmt.Sprintf("%s.%s%s", stem, textutil.SanitizeComponent(lang, 16), rec.FileExtension()))
}

// ExportSidecar copies a downloaded subtitle next to mediaPath and returns
// the sidecar path. An existing sidecar is left in place unless overwrite is
// set.
func ExportSidecar(rec subtitles.Record, mediaPath string, overwrite bool) (string, error) {
	if strings.TrimSpace(mediaPath) == "" {
		return "", services.Wrap(services.ErrValidation, "retrieve", "export", "media path is required", nil)
	}
	if !rec.Available() {
		return "", services.Wrap(services.ErrNotFound, "retrieve", "export", "subtitle has not been downloaded", nil)
	}
	dest := SidecarPath(mediaPath, rec)
	if filepath.Clean(dest) == filepath.Clean(rec.LocalPath) {
		return dest, nil
	}
	if !overwrite && fileutil.RegularFile(dest) {
		return "", services.Wrap(services.ErrValidation, "retrieve", "export",
			fmt.Sprintf("sidecar %s already exists", dest), nil)
	}
	if _, err := fileutil.CopyVerified(rec.LocalPath, dest, 0o644); err != nil {
		return "", services.Wrap(services.ErrFileIntegrity, "retrieve", "export", "copy subtitle beside media", err)
	}
	return dest, nil
}
