package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/feedrank/internal/pipeline/status"
)

// StatusReader serves task status lookups.
type StatusReader interface {
	Status(ctx context.Context, taskID string) (*status.View, error)
}

// Server provides HTTP endpoints for health monitoring and read-only task
// status.
type Server struct {
	monitor *Monitor
	tasks   StatusReader
	server  *http.Server
	log     *slog.Logger
}

// NewServer creates a new health server. tasks may be nil.
func NewServer(monitor *Monitor, tasks StatusReader, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		monitor: monitor,
		tasks:   tasks,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: slog.Default().With("component", "health_server"),
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.HandleFunc("GET /tasks/{id}", s.handleTask)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info("Health server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	code := http.StatusOK
	if report.SystemStatus == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

type taskResponse struct {
	*status.View
	Presentation string `json:"presentation"`
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	if s.tasks == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task status unavailable"})
		return
	}

	view, err := s.tasks.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
			return
		}
		s.log.Error("Failed to load task status", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, taskResponse{View: view, Presentation: view.Presentation()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
