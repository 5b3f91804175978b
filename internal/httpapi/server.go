package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"bmsbridge-launcher/internal/observability"
	"bmsbridge-launcher/internal/state"
	"bmsbridge-launcher/internal/storage"
)

const (
	defaultHistoryLimit = 50
	defaultLogTail      = 100
)

// StatusSource provides the launcher's displayed state
type StatusSource interface {
	Snapshot() state.Snapshot
	Lines() []string
}

// HistorySource provides journal records, newest first
type HistorySource interface {
	List(n int) ([]*storage.Record, error)
}

// StatusResponse is the body of GET /api/launcher/status
type StatusResponse struct {
	state.Snapshot
	Session string `json:"session,omitempty"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Server exposes launcher status and metrics on a local listener
type Server struct {
	status  StatusSource
	history HistorySource
	metrics *observability.MetricsManager
	session string
	logger  *zap.SugaredLogger
	router  *chi.Mux

	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates the status server. history and metrics may be nil.
func NewServer(status StatusSource, history HistorySource, metrics *observability.MetricsManager, session string, logger *zap.SugaredLogger) *Server {
	s := &Server{
		status:  status,
		history: history,
		metrics: metrics,
		session: session,
		logger:  logger,
		router:  chi.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.Use(s.metrics.HTTPMiddleware())
	}
	s.router.Use(s.httpLoggingMiddleware())
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Route("/api/launcher", func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))

		r.Get("/status", s.handleGetStatus)
		r.Get("/logs", s.handleGetLogs)
		r.Get("/history", s.handleGetHistory)
	})
}

// Start listens on addr and serves in the background
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Infow("Status endpoint listening", "address", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("Status endpoint stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, StatusResponse{Snapshot: s.status.Snapshot(), Session: s.session})
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	tail, err := intQuery(r, "tail", defaultLogTail)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lines := s.status.Lines()
	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"lines": lines})
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusServiceUnavailable, "journal is not available")
		return
	}

	limit, err := intQuery(r, "limit", defaultHistoryLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.history.List(limit)
	if err != nil {
		s.logger.Warnw("Failed to read journal", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	if records == nil {
		records = []*storage.Record{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorw("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Success: false, Error: message})
}

// httpLoggingMiddleware logs each request at debug level
func (s *Server) httpLoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			s.logger.Debugw("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
