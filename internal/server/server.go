package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gn-clipper/news-clipper/internal/logger"
)

// RunInfo is the last run reported on /healthz.
type RunInfo struct {
	Name       string    `json:"name"`
	FinishedAt time.Time `json:"finished_at"`
	Published  int       `json:"published"`
	Failed     int       `json:"failed"`
	Aborted    bool      `json:"aborted"`
}

// Server exposes health and metrics endpoints for the schedule command.
type Server struct {
	addr     string
	gatherer prometheus.Gatherer
	log      logger.Logger
	started  time.Time

	mu      sync.RWMutex
	lastRun *RunInfo
}

// New builds a Server listening on addr.
func New(addr string, gatherer prometheus.Gatherer, log logger.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{addr: addr, gatherer: gatherer, log: logger.Ensure(log), started: time.Now()}
}

// SetLastRun records the outcome shown on /healthz.
func (s *Server) SetLastRun(info RunInfo) {
	s.mu.Lock()
	s.lastRun = &info
	s.mu.Unlock()
}

// Routes configures the HTTP routes.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	last := s.lastRun
	s.mu.RUnlock()

	resp := map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	}
	if last != nil {
		resp["last_run"] = last
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.WarnObj("health response write failed", "server_error", map[string]any{"error": err.Error()})
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoObj("ops server listening", "server_start", map[string]any{"addr": s.addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
