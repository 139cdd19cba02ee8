package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"subtrove/internal/subtitles"
)

// FakeProvider is a scripted subtitle source.
type FakeProvider struct {
	Name        subtitles.Source
	Records     []subtitles.Record
	SearchErr   error
	DownloadErr error
	// Delay blocks Search until it elapses or the context ends.
	Delay       time.Duration
	Unavailable bool
	// Body is written by Download; an empty body writes nothing.
	Body string
	// Started receives a value, when there is room, each time a download
	// begins. Gate, when set, holds downloads until it is closed.
	Started chan struct{}
	Gate    chan struct{}
	// Written runs after the body lands on disk.
	Written func(path string)

	searches  atomic.Int32
	downloads atomic.Int32

	mu       sync.Mutex
	requests []subtitles.SearchRequest
}

// NewFakeProvider returns a provider that serves records and writes
// SampleSRT on download.
func NewFakeProvider(name subtitles.Source, records ...subtitles.Record) *FakeProvider {
	return &FakeProvider{Name: name, Records: records, Body: SampleSRT}
}

func (f *FakeProvider) Source() subtitles.Source { return f.Name }

func (f *FakeProvider) Available(context.Context) bool { return !f.Unavailable }

func (f *FakeProvider) Search(ctx context.Context, req subtitles.SearchRequest) ([]subtitles.Record, error) {
	f.searches.Add(1)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.Delay > 0 {
		timer := time.NewTimer(f.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	out := make([]subtitles.Record, len(f.Records))
	for i, rec := range f.Records {
		rec = rec.Clone()
		if rec.Source == "" {
			rec.Source = f.Name
		}
		out[i] = rec
	}
	return out, nil
}

func (f *FakeProvider) Download(ctx context.Context, rec subtitles.Record, dest string) (string, error) {
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return dest, nil
	}
	f.downloads.Add(1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.Started != nil {
		select {
		case f.Started <- struct{}{}:
		default:
		}
	}
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.DownloadErr != nil {
		return "", f.DownloadErr
	}
	if f.Body == "" {
		return dest, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, []byte(f.Body), 0o644); err != nil {
		return "", err
	}
	if f.Written != nil {
		f.Written(dest)
	}
	return dest, nil
}

func (f *FakeProvider) Limits() subtitles.Limits {
	limits := subtitles.UnknownLimits(f.Name, 0)
	limits.Used = int(f.searches.Load() + f.downloads.Load())
	return limits
}

// SearchCalls reports how many times Search ran.
func (f *FakeProvider) SearchCalls() int { return int(f.searches.Load()) }

// DownloadCalls reports how many downloads reached the network stand-in.
func (f *FakeProvider) DownloadCalls() int { return int(f.downloads.Load()) }

// Requests returns the search requests received so far.
func (f *FakeProvider) Requests() []subtitles.SearchRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]subtitles.SearchRequest(nil), f.requests...)
}
