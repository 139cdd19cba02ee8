package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"subtrove/internal/language"
	"subtrove/internal/logging"
	"subtrove/internal/services"
	"subtrove/internal/subtitles"
)

// DefaultExpireDays applies when CleanExpired is given a non-positive age.
const DefaultExpireDays = 30

// Options configures Open.
type Options struct {
	IndexPath string
	FilesDir  string
	// MaxBytes bounds the content directory; zero disables the size sweep.
	MaxBytes int64
	Logger   *slog.Logger
}

// Cache is the durable subtitle index plus its content directory.
type Cache struct {
	mu       sync.RWMutex
	store    *store
	dir      string
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time
	statfs   statfsFunc

	records map[string]subtitles.Record
	index   map[string]map[string]struct{}
	owners  map[string]map[string]struct{}
	// pending counts reservations per content path stem.
	pending map[string]int
}

// RecordKey is the cache key of a record. Provider ids are only unique per
// provider, so the source is part of the key.
func RecordKey(rec subtitles.Record) string {
	return string(rec.Source) + ":" + rec.ID
}

// Open opens or creates the index, loads it into memory, and drops rows
// whose payload no longer decodes.
func Open(ctx context.Context, opts Options) (*Cache, error) {
	if strings.TrimSpace(opts.IndexPath) == "" || strings.TrimSpace(opts.FilesDir) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "cache", "open", "index path and files directory are required", nil)
	}
	if err := os.MkdirAll(opts.FilesDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure files directory: %w", err)
	}
	st, err := openStore(ctx, opts.IndexPath)
	if err != nil {
		return nil, err
	}
	c := &Cache{
		store:    st,
		dir:      opts.FilesDir,
		maxBytes: opts.MaxBytes,
		logger:   logging.NewComponentLogger(opts.Logger, "cache"),
		now:      time.Now,
		statfs:   realStatfs,
		records:  make(map[string]subtitles.Record),
		index:    make(map[string]map[string]struct{}),
		owners:   make(map[string]map[string]struct{}),
		pending:  make(map[string]int),
	}
	if err := c.load(ctx); err != nil {
		_ = st.close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) load(ctx context.Context) error {
	records, rows, corrupt, err := c.store.loadAll(ctx)
	if err != nil {
		return err
	}
	if len(corrupt) > 0 {
		logging.WarnWithContext(c.logger, "dropping undecodable cache records", "cache_corruption",
			logging.Int("records", len(corrupt)),
			logging.Error(services.ErrCacheCorruption),
			logging.String(logging.FieldErrorHint, "the index was written by an incompatible version or damaged"),
			logging.String(logging.FieldImpact, "affected subtitles will be searched again"),
		)
		if err := c.store.withTx(ctx, func(tx *sql.Tx) error {
			return deleteRecords(ctx, tx, corrupt)
		}); err != nil {
			return err
		}
	}
	c.records = records
	for _, row := range rows {
		if _, ok := records[row.key]; ok {
			c.link(row.fileID, row.key)
		}
	}
	return nil
}

// Close releases the index database.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.store.close()
}

// Dir is the content directory downloaded files are written to.
func (c *Cache) Dir() string { return c.dir }

// MaxBytes is the configured content size bound.
func (c *Cache) MaxBytes() int64 { return c.maxBytes }

// Put stores rec, linking it to fileID when one is given. A record that is
// already downloaded keeps its local file when re-put from a search result.
func (c *Cache) Put(ctx context.Context, rec subtitles.Record, fileID string) (subtitles.Record, error) {
	stored, err := c.put(ctx, []subtitles.Record{rec}, fileID)
	if err != nil {
		return subtitles.Record{}, err
	}
	return stored[0], nil
}

// PutAll stores several records for the same media in one transaction.
func (c *Cache) PutAll(ctx context.Context, records []subtitles.Record, fileID string) error {
	if len(records) == 0 {
		return nil
	}
	_, err := c.put(ctx, records, fileID)
	return err
}

func (c *Cache) put(ctx context.Context, records []subtitles.Record, fileID string) ([]subtitles.Record, error) {
	for _, rec := range records {
		if strings.TrimSpace(rec.ID) == "" || rec.Source == "" {
			return nil, services.Wrap(services.ErrValidation, "cache", "put", "record id and source are required", nil)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	merged := make([]subtitles.Record, len(records))
	for i, rec := range records {
		rec = rec.Clone()
		if existing, ok := c.records[RecordKey(rec)]; ok {
			rec = mergeRecord(existing, rec)
		}
		if rec.StoredAt.IsZero() {
			rec.StoredAt = now
		}
		merged[i] = rec
	}

	err := c.store.withTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range merged {
			key := RecordKey(rec)
			if err := upsertRecord(ctx, tx, key, rec); err != nil {
				return err
			}
			if err := linkRecord(ctx, tx, fileID, key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache put: %w", err)
	}

	for _, rec := range merged {
		key := RecordKey(rec)
		c.records[key] = rec
		if fileID != "" {
			c.link(fileID, key)
		}
	}
	out := make([]subtitles.Record, len(merged))
	for i, rec := range merged {
		out[i] = rec.Clone()
	}
	return out, nil
}

func mergeRecord(existing, incoming subtitles.Record) subtitles.Record {
	if existing.Downloaded && !incoming.Downloaded {
		incoming.Downloaded = true
		incoming.LocalPath = existing.LocalPath
		incoming.ContentHash = existing.ContentHash
		if incoming.Encoding == "" {
			incoming.Encoding = existing.Encoding
		}
	}
	if incoming.StoredAt.IsZero() {
		incoming.StoredAt = existing.StoredAt
	}
	return incoming
}

// Get returns the available records indexed under fileID. Downloaded records
// whose file has disappeared are purged.
func (c *Cache) Get(ctx context.Context, fileID string) []subtitles.Record {
	c.mu.RLock()
	var (
		out   []subtitles.Record
		stale []string
	)
	for key := range c.index[fileID] {
		rec, ok := c.records[key]
		if !ok {
			continue
		}
		if rec.Available() {
			out = append(out, rec.Clone())
			continue
		}
		if rec.Downloaded {
			stale = append(stale, key)
		}
	}
	c.mu.RUnlock()

	if len(stale) > 0 {
		if _, err := c.removeKeys(ctx, stale, false, isStale); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, c.logger), "stale cache purge failed", "cache_purge_failed",
				logging.Error(err),
				logging.Int("records", len(stale)),
				logging.String(logging.FieldErrorHint, "check the cache index database"),
			)
		}
	}
	sortRecords(out)
	return out
}

// GetByID looks a record up by cache key or by bare provider id.
func (c *Cache) GetByID(id string) (subtitles.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.resolve(id)
	if !ok {
		return subtitles.Record{}, false
	}
	return c.records[key].Clone(), true
}

// Remove deletes a record and its file.
func (c *Cache) Remove(ctx context.Context, id string) (bool, error) {
	c.mu.RLock()
	key, ok := c.resolve(id)
	c.mu.RUnlock()
	if !ok {
		return false, nil
	}
	removed, err := c.removeKeys(ctx, []string{key}, true, nil)
	return len(removed) > 0, err
}

// Search matches query case-insensitively against titles and language names
// of available records, optionally restricted to one language. Results are
// ordered by rating, highest first.
func (c *Cache) Search(query, lang string) []subtitles.Record {
	needle := strings.ToLower(strings.TrimSpace(query))
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []subtitles.Record
	for _, rec := range c.records {
		if lang != "" && !language.Matches(rec.Language, lang) {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(rec.Title), needle) &&
			!strings.Contains(strings.ToLower(rec.LanguageName), needle) {
			continue
		}
		if !rec.Available() {
			continue
		}
		out = append(out, rec.Clone())
	}
	sortRecords(out)
	return out
}

// Len returns the number of indexed records.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Clear removes every record and every file in the content directory.
func (c *Cache) Clear(ctx context.Context) (CleanupResult, error) {
	c.mu.Lock()
	count := len(c.records)
	err := c.store.withTx(ctx, func(tx *sql.Tx) error { return clearAll(ctx, tx) })
	if err == nil {
		c.records = make(map[string]subtitles.Record)
		c.index = make(map[string]map[string]struct{})
		c.owners = make(map[string]map[string]struct{})
	}
	c.mu.Unlock()
	if err != nil {
		return CleanupResult{}, fmt.Errorf("cache clear: %w", err)
	}

	result := CleanupResult{Records: count}
	files, _, err := c.scanFiles()
	if err != nil {
		return result, err
	}
	for _, f := range files {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return result, fmt.Errorf("remove %s: %w", f.path, err)
		}
		result.Files++
		result.Bytes += f.size
	}
	c.logger.Info("cache cleared",
		logging.Int("records", result.Records),
		logging.Int("files", result.Files),
		logging.Int64("bytes", result.Bytes),
	)
	return result, nil
}

// removeKeys drops records from the index first and, when deleteFiles is
// set, deletes their files afterwards so the index never points at a file
// that is already gone. A non-nil cond is evaluated again under the write
// lock and keys whose record no longer satisfies it are kept.
func (c *Cache) removeKeys(ctx context.Context, keys []string, deleteFiles bool, cond func(subtitles.Record) bool) ([]subtitles.Record, error) {
	c.mu.Lock()
	present := make([]string, 0, len(keys))
	for _, key := range keys {
		rec, ok := c.records[key]
		if !ok || (cond != nil && !cond(rec)) {
			continue
		}
		present = append(present, key)
	}
	if len(present) == 0 {
		c.mu.Unlock()
		return nil, nil
	}
	if err := c.store.withTx(ctx, func(tx *sql.Tx) error {
		return deleteRecords(ctx, tx, present)
	}); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("cache remove: %w", err)
	}
	removed := make([]subtitles.Record, 0, len(present))
	for _, key := range present {
		removed = append(removed, c.records[key])
		c.unlinkAll(key)
		delete(c.records, key)
	}
	var orphaned []string
	if deleteFiles {
		referenced := c.referencedPathsLocked()
		for _, rec := range removed {
			if rec.LocalPath == "" || !c.owns(rec.LocalPath) {
				continue
			}
			if _, still := referenced[filepath.Clean(rec.LocalPath)]; !still {
				orphaned = append(orphaned, rec.LocalPath)
			}
		}
	}
	c.mu.Unlock()

	for _, path := range orphaned {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return removed, nil
}

// owns reports whether path lives in the content directory. Files outside
// it, such as subtitles next to the media, are never deleted.
func (c *Cache) owns(path string) bool {
	rel, err := filepath.Rel(c.dir, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

func (c *Cache) resolve(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", false
	}
	if _, ok := c.records[id]; ok {
		return id, true
	}
	var match string
	for key, rec := range c.records {
		if rec.ID == id && (match == "" || key < match) {
			match = key
		}
	}
	return match, match != ""
}

func (c *Cache) link(fileID, key string) {
	keys, ok := c.index[fileID]
	if !ok {
		keys = make(map[string]struct{})
		c.index[fileID] = keys
	}
	keys[key] = struct{}{}
	files, ok := c.owners[key]
	if !ok {
		files = make(map[string]struct{})
		c.owners[key] = files
	}
	files[fileID] = struct{}{}
}

func (c *Cache) unlinkAll(key string) {
	for fileID := range c.owners[key] {
		delete(c.index[fileID], key)
		if len(c.index[fileID]) == 0 {
			delete(c.index, fileID)
		}
	}
	delete(c.owners, key)
}

func (c *Cache) referencedPathsLocked() map[string]struct{} {
	paths := make(map[string]struct{}, len(c.records))
	for _, rec := range c.records {
		if rec.Downloaded && rec.LocalPath != "" {
			paths[filepath.Clean(rec.LocalPath)] = struct{}{}
		}
	}
	return paths
}

// isStale reports a downloaded record whose file has gone missing.
func isStale(rec subtitles.Record) bool {
	return rec.Downloaded && !rec.Available()
}

// Reserve marks path as being written so orphan sweeps leave it, and any
// sibling with another subtitle extension, alone until release is called.
func (c *Cache) Reserve(path string) (release func()) {
	stem := pathStem(path)
	c.mu.Lock()
	c.pending[stem]++
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if c.pending[stem] <= 1 {
				delete(c.pending, stem)
			} else {
				c.pending[stem]--
			}
			c.mu.Unlock()
		})
	}
}

func pathStem(path string) string {
	path = filepath.Clean(path)
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// sortRecords orders by rating, then downloads, then key for determinism.
func sortRecords(records []subtitles.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		if a.Downloads != b.Downloads {
			return a.Downloads > b.Downloads
		}
		return RecordKey(a) < RecordKey(b)
	})
}
