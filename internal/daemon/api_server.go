package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"subtrove/internal/api"
	"subtrove/internal/config"
	"subtrove/internal/logging"
	"subtrove/internal/services"
	"subtrove/internal/subtitles"
)

// maxRequestBytes bounds JSON request bodies.
const maxRequestBytes = 1 << 20

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           requestIDMiddleware(srv.routes()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/search", authMiddleware(s.token, s.handleSearch))
	mux.HandleFunc("POST /api/select", authMiddleware(s.token, s.handleSelect))
	mux.HandleFunc("POST /api/download", authMiddleware(s.token, s.handleDownload))
	mux.HandleFunc("GET /api/cache/stats", authMiddleware(s.token, s.handleCacheStats))
	mux.HandleFunc("POST /api/cache/clean", authMiddleware(s.token, s.handleCacheClean))
	mux.HandleFunc("GET /api/limits", authMiddleware(s.token, s.handleLimits))
	mux.HandleFunc("GET /api/status", authMiddleware(s.token, s.handleStatus))
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.log().Info("api server disabled", logging.String("reason", "paths.api_bind is empty"))
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.token != ""),
	)
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req api.MediaRequest
	if !s.decode(w, r, &req) {
		return
	}
	eng := s.daemon.engine
	policy, err := req.Policy.Apply(eng.Policy())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	result, err := eng.Search(r.Context(), req.Media, policy)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSearchResult(result))
}

func (s *apiServer) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req api.MediaRequest
	if !s.decode(w, r, &req) {
		return
	}
	eng := s.daemon.engine
	policy, err := req.Policy.Apply(eng.Policy())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	sel, found, err := eng.SelectBest(r.Context(), req.Media, policy)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSelection(sel, found))
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req api.DownloadRequest
	if !s.decode(w, r, &req) {
		return
	}
	mediaID := strings.TrimSpace(req.MediaID)
	if mediaID == "" && req.Media != nil {
		mediaID = req.Media.Resolved().FileIdentifier()
	}
	if mediaID == "" {
		s.writeFailure(w, services.Wrap(services.ErrValidation, "api", "download", "mediaId or media is required", nil))
		return
	}
	// Client-supplied paths are never trusted; the retriever finds existing
	// copies in the cache directory itself.
	rec := req.Subtitle.ToRecord()
	rec.LocalPath, rec.Downloaded = "", false
	rec, err := s.daemon.engine.Download(r.Context(), rec, mediaID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DownloadResponse{Subtitle: api.FromRecord(rec)})
}

func (s *apiServer) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.daemon.engine.Stats(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromCacheStats(stats))
}

// handleCacheClean removes expired records. With ?full=true it runs the
// whole maintenance pass instead.
func (s *apiServer) handleCacheClean(w http.ResponseWriter, r *http.Request) {
	eng := s.daemon.engine
	if full := r.URL.Query().Get("full"); full == "1" || strings.EqualFold(full, "true") {
		report, err := eng.Maintain(r.Context())
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.FromReport(report))
		return
	}
	result, err := eng.CleanExpiredCache(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromCleanup(result))
}

func (s *apiServer) handleLimits(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.FromLimits(s.daemon.engine.ProviderLimits(), time.Now()))
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status()
	eng := s.daemon.engine
	stats, err := eng.Stats(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	payload := api.ServiceStatus{
		Running:      status.Running,
		PID:          status.PID,
		LockFilePath: status.LockFilePath,
		CacheDir:     eng.Config().Paths.CacheDir,
		Sources:      sourceNames(eng.Sources()),
		Languages:    eng.Policy().Languages(),
		Cache:        api.FromCacheStats(stats),
	}
	if !status.StartedAt.IsZero() {
		payload.StartedAt = status.StartedAt.UTC().Format(time.RFC3339)
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func sourceNames(sources []subtitles.Source) []string {
	out := make([]string, len(sources))
	for i, src := range sources {
		out[i] = string(src)
	}
	return out
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "validation")
		return false
	}
	return true
}

// statusFor maps error markers onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrUnsupportedSource):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNoEnabledSources), errors.Is(err, services.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrProviderTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrProviderTransport), errors.Is(err, services.ErrProviderParse), errors.Is(err, services.ErrFileIntegrity):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log().Warn("api request failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_request_failed"),
			logging.String(logging.FieldErrorHint, "inspect the service log for the failing component"),
			logging.String(logging.FieldImpact, "the client received an error response"),
		)
	}
	s.writeError(w, status, err.Error(), services.Kind(err))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message, kind string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
