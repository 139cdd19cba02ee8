package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"subtrove/internal/logging"
)

// tempPrefix marks in-flight atomic writes.
const tempPrefix = ".subtrove-"

type statfsFunc func(path string) (total uint64, free uint64, err error)

// CleanupResult counts what a sweep removed.
type CleanupResult struct {
	Records int   `json:"records"`
	Files   int   `json:"files"`
	Bytes   int64 `json:"bytes"`
}

func (r *CleanupResult) add(other CleanupResult) {
	r.Records += other.Records
	r.Files += other.Files
	r.Bytes += other.Bytes
}

// Report summarises one maintenance pass.
type Report struct {
	Expired  CleanupResult `json:"expired"`
	Evicted  CleanupResult `json:"evicted"`
	Orphans  CleanupResult `json:"orphans"`
	Duration time.Duration `json:"duration"`
	RanAt    time.Time     `json:"ran_at"`
}

// Total sums every category of the report.
func (r Report) Total() CleanupResult {
	var total CleanupResult
	total.add(r.Expired)
	total.add(r.Evicted)
	total.add(r.Orphans)
	return total
}

// Stats describes cache usage.
type Stats struct {
	Records      int       `json:"records"`
	Downloaded   int       `json:"downloaded"`
	MediaEntries int       `json:"media_entries"`
	Files        int       `json:"files"`
	TotalBytes   int64     `json:"total_bytes"`
	MaxBytes     int64     `json:"max_bytes"`
	FreeBytes    uint64    `json:"free_bytes"`
	TotalFSBytes uint64    `json:"total_fs_bytes"`
	LastCleanup  time.Time `json:"last_cleanup,omitzero"`
	Directory    string    `json:"directory"`
}

// CleanExpired removes records older than days, judged by upload time and
// falling back to the time they were stored, and deletes their files.
func (c *Cache) CleanExpired(ctx context.Context, days int) (CleanupResult, error) {
	if days <= 0 {
		days = DefaultExpireDays
	}
	cutoff := c.now().Add(-time.Duration(days) * 24 * time.Hour)

	c.mu.RLock()
	var expired []string
	for key, rec := range c.records {
		ref := rec.AgeReference()
		if !ref.IsZero() && ref.Before(cutoff) {
			expired = append(expired, key)
		}
	}
	c.mu.RUnlock()

	removed, err := c.removeKeys(ctx, expired, true, nil)
	result := CleanupResult{Records: len(removed)}
	for _, rec := range removed {
		if rec.Downloaded && rec.LocalPath != "" {
			result.Files++
		}
	}
	if err != nil {
		return result, err
	}
	if result.Records > 0 {
		c.logger.Info("expired cache records removed",
			logging.Int("records", result.Records),
			logging.Int("expire_days", days),
		)
	}
	return result, nil
}

// CleanupToSize deletes the oldest files in the content directory until it
// holds at most target bytes, dropping the records that pointed at them
// before each file is removed.
func (c *Cache) CleanupToSize(ctx context.Context, target int64) (CleanupResult, error) {
	var result CleanupResult
	if target < 0 {
		target = 0
	}
	files, total, err := c.scanFiles()
	if err != nil {
		return result, err
	}
	for _, f := range files {
		if total <= target {
			break
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		removed, err := c.removeKeys(ctx, c.keysForPath(f.path), false, nil)
		if err != nil {
			return result, err
		}
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return result, fmt.Errorf("remove %s: %w", f.path, err)
		}
		total -= f.size
		result.Records += len(removed)
		result.Files++
		result.Bytes += f.size
	}
	if result.Files > 0 {
		c.logger.Info("cache trimmed to size",
			logging.Int("files", result.Files),
			logging.Int64("freed_bytes", result.Bytes),
			logging.Int64("target_bytes", target),
			logging.Int64("remaining_bytes", total),
		)
	}
	return result, nil
}

// SweepOrphans drops downloaded records whose file is missing and deletes
// files no record references. Paths held by Reserve are skipped.
func (c *Cache) SweepOrphans(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult

	c.mu.RLock()
	var dangling []string
	for key, rec := range c.records {
		if isStale(rec) {
			dangling = append(dangling, key)
		}
	}
	c.mu.RUnlock()
	removed, err := c.removeKeys(ctx, dangling, false, isStale)
	if err != nil {
		return result, err
	}
	result.Records = len(removed)

	files, _, err := c.scanFiles()
	if err != nil {
		return result, err
	}
	for _, f := range files {
		ok, err := c.removeOrphan(f.path)
		if err != nil {
			return result, err
		}
		if !ok {
			continue
		}
		result.Files++
		result.Bytes += f.size
	}
	if result.Records > 0 || result.Files > 0 {
		logging.WarnWithContext(c.logger, "cache orphans swept", "cache_orphans_swept",
			logging.Int("dangling_records", result.Records),
			logging.Int("orphan_files", result.Files),
			logging.String(logging.FieldErrorHint, "files in the cache directory were changed outside subtrove"),
			logging.String(logging.FieldImpact, "affected subtitles will be downloaded again"),
		)
	}
	return result, nil
}

// removeOrphan deletes path unless a record references it or a download has
// reserved it. The read lock is held across the removal so Put and Reserve
// cannot claim the file in between.
func (c *Cache) removeOrphan(path string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pending[pathStem(path)] > 0 {
		return false, nil
	}
	clean := filepath.Clean(path)
	for _, rec := range c.records {
		if rec.Downloaded && rec.LocalPath != "" && filepath.Clean(rec.LocalPath) == clean {
			return false, nil
		}
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("remove orphan %s: %w", path, err)
	}
	return true, nil
}

// Maintain runs the expiry, size, and orphan sweeps and records the time of
// the pass.
func (c *Cache) Maintain(ctx context.Context, expireDays int) (Report, error) {
	start := c.now()
	report := Report{RanAt: start}
	var err error
	if report.Expired, err = c.CleanExpired(ctx, expireDays); err != nil {
		return report, fmt.Errorf("clean expired: %w", err)
	}
	if c.maxBytes > 0 {
		if report.Evicted, err = c.CleanupToSize(ctx, c.maxBytes); err != nil {
			return report, fmt.Errorf("cleanup to size: %w", err)
		}
	}
	if report.Orphans, err = c.SweepOrphans(ctx); err != nil {
		return report, fmt.Errorf("sweep orphans: %w", err)
	}
	if err := c.store.setMeta(ctx, metaLastCleanup, start.UTC().Format(time.RFC3339Nano)); err != nil {
		return report, fmt.Errorf("record cleanup time: %w", err)
	}
	report.Duration = c.now().Sub(start)
	total := report.Total()
	c.logger.Info("cache maintenance complete",
		logging.Int("records_removed", total.Records),
		logging.Int("files_removed", total.Files),
		logging.Int64("bytes_freed", total.Bytes),
		logging.Duration("duration", report.Duration),
	)
	return report, nil
}

// LastCleanup returns the time of the last maintenance pass, zero if none.
func (c *Cache) LastCleanup(ctx context.Context) (time.Time, error) {
	value, ok, err := c.store.getMeta(ctx, metaLastCleanup)
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last cleanup %q: %w", value, err)
	}
	return t, nil
}

// MaintenanceDue reports whether interval has passed since the last pass.
func (c *Cache) MaintenanceDue(ctx context.Context, interval time.Duration) (bool, error) {
	last, err := c.LastCleanup(ctx)
	if err != nil {
		return false, err
	}
	return last.IsZero() || c.now().Sub(last) >= interval, nil
}

// Stats reports record counts, content usage, and free filesystem space.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	c.mu.RLock()
	s := Stats{
		Records:      len(c.records),
		MediaEntries: len(c.index),
		MaxBytes:     c.maxBytes,
		Directory:    c.dir,
	}
	for _, rec := range c.records {
		if rec.Downloaded {
			s.Downloaded++
		}
	}
	c.mu.RUnlock()

	files, total, err := c.scanFiles()
	if err != nil {
		return s, err
	}
	s.Files = len(files)
	s.TotalBytes = total
	if s.TotalFSBytes, s.FreeBytes, err = c.statfs(c.dir); err != nil {
		return s, fmt.Errorf("statfs: %w", err)
	}
	if s.LastCleanup, err = c.LastCleanup(ctx); err != nil {
		return s, err
	}
	return s, nil
}

type fileEntry struct {
	path    string
	size    int64
	modTime time.Time
}

// scanFiles lists content files oldest first, skipping in-flight temp files.
func (c *Cache) scanFiles() ([]fileEntry, int64, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("list cache directory: %w", err)
	}
	var (
		files []fileEntry
		total int64
	)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tempPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, fileEntry{
			path:    filepath.Join(c.dir, entry.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
		total += info.Size()
	}
	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].modTime.Equal(files[j].modTime) {
			return files[i].modTime.Before(files[j].modTime)
		}
		return files[i].path < files[j].path
	})
	return files, total, nil
}

func (c *Cache) keysForPath(path string) []string {
	path = filepath.Clean(path)
	c.mu.RLock()
	defer c.mu.RUnlock()
	var keys []string
	for key, rec := range c.records {
		if rec.LocalPath != "" && filepath.Clean(rec.LocalPath) == path {
			keys = append(keys, key)
		}
	}
	return keys
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
