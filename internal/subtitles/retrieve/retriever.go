package retrieve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"subtrove/internal/language"
	"subtrove/internal/logging"
	"subtrove/internal/services"
	"subtrove/internal/subtitles"
	"subtrove/internal/subtitles/provider"
	"subtrove/internal/textutil"
)

const (
	titleComponentLimit = 50
	mediaComponentLimit = 64
	// detectSampleBytes bounds how much of a file feeds language detection.
	detectSampleBytes = 64 * 1024
	// downloadTimeout bounds a shared download once it no longer follows a
	// single caller's context.
	downloadTimeout = 2 * time.Minute
)

// Store is the slice of the cache the retriever writes through.
type Store interface {
	Put(ctx context.Context, rec subtitles.Record, fileID string) (subtitles.Record, error)
	Dir() string
	// Reserve keeps orphan sweeps away from path until release is called.
	Reserve(path string) (release func())
}

// Retriever downloads records into the cache's content directory.
type Retriever struct {
	registry *provider.Registry
	store    Store
	logger   *slog.Logger
	group    singleflight.Group
}

// NewRetriever wires a retriever to the provider registry and cache.
func NewRetriever(registry *provider.Registry, store Store, logger *slog.Logger) *Retriever {
	return &Retriever{
		registry: registry,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "retriever"),
	}
}

// FileName is the deterministic content file name for rec under mediaID.
// The trailing digest of source and id keeps two records with the same
// language and title apart.
func FileName(rec subtitles.Record, mediaID string) string {
	lang := rec.Language
	if strings.TrimSpace(lang) == "" {
		lang = language.Unknown
	}
	sum := sha256.Sum256([]byte(string(rec.Source) + ":" + rec.ID))
	title := textutil.SanitizeComponent(rec.Title, titleComponentLimit)
	if title == "" {
		title = "subtitle"
	}
	return fmt.Sprintf("%s_%s_%s_%s%s",
		textutil.SanitizeComponent(mediaID, mediaComponentLimit),
		textutil.SanitizeComponent(lang, 16),
		title,
		hex.EncodeToString(sum[:4]),
		rec.FileExtension(),
	)
}

// Download materializes rec for mediaID and returns the stored record. A file
// already present under the deterministic name is reused without contacting
// the provider; concurrent calls for the same file share one download, which
// keeps running when an individual caller gives up.
func (r *Retriever) Download(ctx context.Context, rec subtitles.Record, mediaID string) (subtitles.Record, error) {
	if strings.TrimSpace(rec.ID) == "" || rec.Source == "" {
		return subtitles.Record{}, services.Wrap(services.ErrValidation, "retrieve", "download", "record id and source are required", nil)
	}
	if rec.Available() {
		stored, err := r.store.Put(ctx, rec, mediaID)
		if err != nil {
			return subtitles.Record{}, fmt.Errorf("index available subtitle: %w", err)
		}
		return stored, nil
	}
	dest := filepath.Join(r.store.Dir(), FileName(rec, mediaID))
	ch := r.group.DoChan(dest, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), downloadTimeout)
		defer cancel()
		return r.download(shared, rec, mediaID, dest)
	})
	select {
	case <-ctx.Done():
		return subtitles.Record{}, fmt.Errorf("download %s: %w", rec.ID, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return subtitles.Record{}, res.Err
		}
		return res.Val.(subtitles.Record), nil
	}
}

func (r *Retriever) download(ctx context.Context, rec subtitles.Record, mediaID, dest string) (subtitles.Record, error) {
	ctx = services.WithStage(services.WithMediaID(ctx, mediaID), "retrieve")
	ctx = services.WithSource(ctx, string(rec.Source))
	logger := logging.WithContext(ctx, r.logger)
	release := r.store.Reserve(dest)
	defer release()

	path, reused := provider.ExistingDownload(dest)
	if !reused {
		adapter, ok := r.registry.Get(rec.Source)
		if !ok {
			return subtitles.Record{}, services.Wrap(services.ErrUnsupportedSource, "retrieve", "download",
				fmt.Sprintf("no adapter registered for source %q", rec.Source), nil)
		}
		var err error
		path, err = adapter.Download(ctx, rec, dest)
		if err != nil {
			return subtitles.Record{}, services.Classify("retrieve", "download", err)
		}
	}

	data, err := verify(path)
	if err != nil {
		logging.WarnWithContext(logger, "downloaded subtitle failed verification", "file_integrity",
			logging.Error(err),
			logging.String("path", path),
			logging.String(logging.FieldErrorHint, "the provider reported success but returned no usable file"),
			logging.String(logging.FieldImpact, "subtitle was not stored"),
		)
		return subtitles.Record{}, err
	}

	out := rec.Clone()
	out.Downloaded = true
	out.LocalPath = path
	out.FileSize = int64(len(data))
	sum := sha256.Sum256(data)
	out.ContentHash = hex.EncodeToString(sum[:])
	if f := subtitles.FormatFromName(path); f != subtitles.FormatUnknown {
		out.Format = f
	}
	if out.Encoding == "" && utf8.Valid(data) {
		out.Encoding = "utf-8"
	}
	if out.Language == "" || out.Language == language.Unknown {
		sample := data
		if len(sample) > detectSampleBytes {
			sample = sample[:detectSampleBytes]
		}
		if detected, ok := language.DetectContent(string(sample)); ok {
			out.Language = detected
			out.LanguageName = language.DisplayName(detected)
		}
	}

	stored, err := r.store.Put(ctx, out, mediaID)
	if err != nil {
		return subtitles.Record{}, fmt.Errorf("store downloaded subtitle: %w", err)
	}
	logger.Info("subtitle downloaded",
		logging.String("path", path),
		logging.String("language", stored.Language),
		logging.Int64("bytes", stored.FileSize),
		logging.Bool("reused", reused),
	)
	return stored, nil
}

// verify reads the file a provider reported, rejecting missing or empty
// files. Empty files are removed.
func verify(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrFileIntegrity, "retrieve", "verify", "downloaded file is missing", err)
		}
		return nil, services.Wrap(services.ErrFileIntegrity, "retrieve", "verify", "read downloaded file", err)
	}
	if len(data) == 0 {
		_ = os.Remove(path)
		return nil, services.Wrap(services.ErrFileIntegrity, "retrieve", "verify", "downloaded file is empty", nil)
	}
	return data, nil
}
