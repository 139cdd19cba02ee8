package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"subtrove/internal/logs"
)

const sampleLog = `{"ts":"2024-03-01T12:00:00Z","level":"info","msg":"search complete","component":"search","correlation_id":"req-1","media_id":"tt1375666"}
{"ts":"2024-03-01T12:00:01Z","level":"warn","msg":"provider search failed","component":"search","correlation_id":"req-1","source":"assrt"}
{"ts":"2024-03-01T12:00:02Z","level":"debug","msg":"cache hit","component":"cache","correlation_id":"req-2"}
{"ts":"2024-03-01T12:00:03Z","level":"error","msg":"download failed","component":"retriever","correlation_id":"req-2","media_id":"tt0133093"}
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "subtrove.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\n")

	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "b" || result.Lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	if result.Offset != 6 {
		t.Fatalf("expected offset at end of file, got %d", result.Offset)
	}

	few, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if strings.Join(few.Lines, ",") != "a,b,c" {
		t.Fatalf("unexpected lines: %#v", few.Lines)
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := logs.Tail(context.Background(), filepath.Join(t.TempDir(), "none.log"), logs.TailOptions{Offset: -1, Limit: 5})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestTailFromOffsetClampsPastEnd(t *testing.T) {
	path := writeLog(t, "one\ntwo\n")
	result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 4})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "two" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	truncated, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: 1 << 20})
	if err != nil {
		t.Fatalf("tail returned error: %v", err)
	}
	if len(truncated.Lines) != 0 || truncated.Offset != 8 {
		t.Fatalf("expected clamp to end of file, got %+v", truncated)
	}
}

func TestTailFilters(t *testing.T) {
	path := writeLog(t, sampleLog+"not json\n")
	tests := []struct {
		name   string
		filter logs.Filter
		want   []string
	}{
		{name: "level", filter: logs.Filter{MinLevel: "warn"}, want: []string{"provider search failed", "download failed"}},
		{name: "component", filter: logs.Filter{Component: "SEARCH"}, want: []string{"search complete", "provider search failed"}},
		{name: "request", filter: logs.Filter{RequestID: "req-2"}, want: []string{"cache hit", "download failed"}},
		{name: "media", filter: logs.Filter{MediaID: "tt0133093"}, want: []string{"download failed"}},
		{name: "search", filter: logs.Filter{Search: "ASSRT"}, want: []string{"provider search failed"}},
		{name: "unknown level", filter: logs.Filter{MinLevel: "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := logs.Tail(context.Background(), path, logs.TailOptions{Offset: -1, Limit: 10, Filter: tt.filter})
			if err != nil {
				t.Fatalf("tail returned error: %v", err)
			}
			if len(result.Lines) != len(tt.want) {
				t.Fatalf("expected %d lines, got %#v", len(tt.want), result.Lines)
			}
			for i, msg := range tt.want {
				if !strings.Contains(result.Lines[i], `"msg":"`+msg+`"`) {
					t.Fatalf("line %d: expected %q in %s", i, msg, result.Lines[i])
				}
			}
		})
	}
}

func TestTailFollowWaits(t *testing.T) {
	path := writeLog(t, "start\n")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	result, err := logs.Tail(ctx, path, logs.TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial tail: %v", err)
	}
	if len(result.Lines) != 1 {
		t.Fatalf("expected initial line, got %#v", result.Lines)
	}

	done := make(chan struct{})
	go func(offset int64) {
		defer close(done)
		res, err := logs.Tail(ctx, path, logs.TailOptions{Offset: offset, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow tail error: %v", err)
		}
		if len(res.Lines) != 1 || res.Lines[0] != "later" {
			t.Errorf("unexpected follow lines: %#v", res.Lines)
		}
	}(result.Offset)

	time.Sleep(200 * time.Millisecond)
	appendLine(t, path, "later")

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("tail follow did not return")
	}
}

func TestFollowStreamsUntilCancelled(t *testing.T) {
	path := writeLog(t, "first\nsecond\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu    sync.Mutex
		lines []string
	)
	seen := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, 1, logs.Filter{}, func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
			seen <- struct{}{}
		})
	}()

	waitSeen := func() {
		t.Helper()
		select {
		case <-seen:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for a line")
		}
	}
	waitSeen()
	appendLine(t, path, "third")
	waitSeen()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Follow: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not stop after cancel")
	}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(lines, ",") != "second,third" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
}
