package daemonctl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"subtrove/internal/api"
	"subtrove/internal/testsupport"
)

func TestRunningFollowsInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	running, err := Running(cfg)
	if err != nil || running {
		t.Fatalf("expected not running before the cache exists, got %v (err=%v)", running, err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	holder := flock.New(cfg.LockPath())
	if ok, err := holder.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	if running, err := Running(cfg); err != nil || !running {
		t.Fatalf("expected running while the lock is held, got %v (err=%v)", running, err)
	}
	if err := WaitForShutdown(cfg, 50*time.Millisecond); err == nil {
		t.Fatal("expected wait to time out while the lock is held")
	}
	_ = holder.Unlock()
	if err := WaitForShutdown(cfg, time.Second); err != nil {
		t.Fatalf("WaitForShutdown: %v", err)
	}
}

func TestStopWithoutServiceReportsNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := Stop(cfg, time.Second); !errors.Is(err, ErrServiceNotRunning) {
		t.Fatalf("expected ErrServiceNotRunning, got %v", err)
	}
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		bind string
		want string
	}{
		{bind: "127.0.0.1:7487", want: "http://127.0.0.1:7487"},
		{bind: "0.0.0.0:7487", want: "http://127.0.0.1:7487"},
		{bind: ":7487", want: "http://127.0.0.1:7487"},
		{bind: "http://media-box:7487/", want: "http://media-box:7487"},
	}
	for _, tt := range tests {
		t.Run(tt.bind, func(t *testing.T) {
			got, err := baseURL(tt.bind)
			if err != nil {
				t.Fatalf("baseURL: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
	if _, err := baseURL(""); err == nil {
		t.Fatal("expected an error for an empty bind")
	}
}

func TestClientStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "unauthorized"})
			return
		}
		_ = json.NewEncoder(w).Encode(api.ServiceStatus{Running: true, PID: 42, Sources: []string{"subscene"}})
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("secret"))
	cfg.Paths.APIBind = server.URL
	client, err := NewClient(cfg, server.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.PID != 42 {
		t.Fatalf("unexpected status: %+v", status)
	}

	cfg.Paths.APIToken = "wrong"
	client, _ = NewClient(cfg, server.Client())
	if _, err := client.Status(context.Background()); err == nil || !strings.Contains(err.Error(), "unauthorized") {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestClientReportsServiceDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.Listener.Addr().String()
	server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = addr
	client, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.Status(context.Background()); !errors.Is(err, ErrServiceNotRunning) {
		t.Fatalf("expected ErrServiceNotRunning, got %v", err)
	}
}
