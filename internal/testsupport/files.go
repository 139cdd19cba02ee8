package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// SampleSRT is a minimal valid SubRip body.
const SampleSRT = "1\n00:00:01,000 --> 00:00:02,500\nWe need to go deeper.\n\n2\n00:00:03,000 --> 00:00:04,000\nAn idea is like a virus.\n"

// WriteFile writes size filler bytes to path so cache size accounting has
// something to measure. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()
	if size <= 0 {
		size = 1
	}
	write(t, path, bytes.Repeat([]byte{'B'}, int(size)))
}

// WriteText writes body to path, creating parent directories.
func WriteText(t testing.TB, path, body string) string {
	t.Helper()
	write(t, path, []byte(body))
	return path
}

func write(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
