package cache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"subtrove/internal/subtitles"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond

	metaLastCleanup = "last_cleanup"
)

// store is the SQLite side of the cache. It performs no locking of its own.
type store struct {
	db   *sql.DB
	path string
}

func openStore(ctx context.Context, path string) (*store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure index directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &store{db: db, path: path}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *store) migrate(ctx context.Context) error {
	migrations, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, migrations)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *store) close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// withTx runs fn in a transaction, retrying the whole transaction while the
// database reports busy.
func (s *store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

type indexRow struct {
	fileID string
	key    string
}

// loadAll reads every record and index row. Payloads that no longer decode
// are returned as corrupt keys for the caller to drop.
func (s *store) loadAll(ctx context.Context) (map[string]subtitles.Record, []indexRow, []string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, payload FROM records")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := make(map[string]subtitles.Record)
	var corrupt []string
	for rows.Next() {
		var key, payload string
		if err := rows.Scan(&key, &payload); err != nil {
			return nil, nil, nil, fmt.Errorf("scan record: %w", err)
		}
		var rec subtitles.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			corrupt = append(corrupt, key)
			continue
		}
		records[key] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate records: %w", err)
	}

	idx, err := s.db.QueryContext(ctx, "SELECT file_id, record_key FROM media_index")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("query media index: %w", err)
	}
	defer idx.Close()
	var index []indexRow
	for idx.Next() {
		var row indexRow
		if err := idx.Scan(&row.fileID, &row.key); err != nil {
			return nil, nil, nil, fmt.Errorf("scan media index: %w", err)
		}
		index = append(index, row)
	}
	if err := idx.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate media index: %w", err)
	}
	return records, index, corrupt, nil
}

func upsertRecord(ctx context.Context, tx *sql.Tx, key string, rec subtitles.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", key, err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO records
		(key, source, provider_id, language, title, local_path, downloaded, uploaded_at, stored_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			language = excluded.language,
			title = excluded.title,
			local_path = excluded.local_path,
			downloaded = excluded.downloaded,
			uploaded_at = excluded.uploaded_at,
			payload = excluded.payload`,
		key, string(rec.Source), rec.ID, rec.Language, rec.Title, rec.LocalPath, boolToInt(rec.Downloaded),
		formatTime(rec.UploadedAt), formatTime(rec.StoredAt), string(payload))
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", key, err)
	}
	return nil
}

func linkRecord(ctx context.Context, tx *sql.Tx, fileID, key string) error {
	if fileID == "" {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO media_index (file_id, record_key) VALUES (?, ?)", fileID, key); err != nil {
		return fmt.Errorf("link record %s: %w", key, err)
	}
	return nil
}

func deleteRecords(ctx context.Context, tx *sql.Tx, keys []string) error {
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, "DELETE FROM media_index WHERE record_key = ?", key); err != nil {
			return fmt.Errorf("unlink record %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE key = ?", key); err != nil {
			return fmt.Errorf("delete record %s: %w", key, err)
		}
	}
	return nil
}

func clearAll(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{"media_index", "records"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

func (s *store) getMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM cache_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read cache meta %s: %w", key, err)
	}
	return value, true, nil
}

func (s *store) setMeta(ctx context.Context, key, value string) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO cache_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			key, value)
		return err
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
