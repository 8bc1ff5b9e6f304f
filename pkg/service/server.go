package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shaneisley/relay/pkg/logging"
)

// Server exposes the read-only metrics/health surface over HTTP.
type Server struct {
	service    *Service
	port       int
	logger     *logging.Logger
	httpServer *http.Server
}

// NewServer creates the metrics/health HTTP server.
func NewServer(service *Service, port int, logger *logging.Logger) *Server {
	return &Server{
		service: service,
		port:    port,
		logger:  logger.WithComponent("http"),
	}
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/methods", s.handleMethods)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	s.logger.Info("http server starting", "port", s.port)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// handleHealth reports liveness plus headline queue and worker figures.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.service.Snapshot()
	s.writeJSON(w, map[string]any{
		"status":         "healthy",
		"timestamp":      time.Now(),
		"queue_depth":    stats.QueueDepth,
		"active_workers": stats.ActiveWorkers,
	})
}

// handleStats returns the full observability snapshot.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, s.service.Snapshot())
}

// handleMethods lists the registered methods.
func (s *Server) handleMethods(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, map[string]any{
		"methods": s.service.Dispatcher().Methods(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.LogError("encode response", err)
	}
}
