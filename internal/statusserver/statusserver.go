// Package statusserver exposes a running session's progress as JSON over
// HTTP, an ambient addition to the CLI surface (SPEC_FULL.md) alongside the
// core's own progress.Tick reporting.
package statusserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/libyal/ewfkit/internal/progress"
)

// Snapshot is the JSON body served at /status.
type Snapshot struct {
	Operation string    `json:"operation"` // "acquire" or "verify"
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	Tick      *progress.Tick `json:"tick,omitempty"`
}

// Server serves the latest Snapshot of a running session over HTTP.
type Server struct {
	mu       sync.RWMutex
	snapshot Snapshot

	httpServer *http.Server
	logger     *zap.Logger
}

// New builds a Server listening on addr. operation labels every snapshot
// served ("acquire" or "verify").
func New(addr, operation string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		snapshot: Snapshot{Operation: operation, Status: "starting", UpdatedAt: time.Now()},
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/status", s.handleStatus)
	r.Get("/healthz", s.handleHealthz)

	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

// Sink returns a progress.Tick sink suitable for progress.WithSink, updating
// the served snapshot on every tick -- wire it in via
// progress.New(..., progress.WithSink(server.Sink())).
func (s *Server) Sink() func(progress.Tick) {
	return s.Observe
}

// Observe records the latest tick.
func (s *Server) Observe(tk progress.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Tick = &tk
	s.snapshot.Status = tk.Status.String()
	s.snapshot.UpdatedAt = time.Now()
}

// ListenAndServe blocks serving HTTP until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Warn("failed to encode status snapshot", zap.Error(err))
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok")) //nolint:errcheck
}
