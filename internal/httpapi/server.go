// Package httpapi serves the learning operations over HTTP.
package httpapi

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-lms/internal/events"
	"github.com/p-n-ai/pai-lms/internal/learning"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	pingInterval        = 30 * time.Second
)

// Config holds dependencies for the HTTP API.
type Config struct {
	Learning *learning.Service
	Broker   events.Broker                   // optional, enables /stream
	History  events.History                  // optional, enables /events
	Ready    func(ctx context.Context) error // optional readiness probe
}

// Server routes requests to the learning service.
type Server struct {
	learning *learning.Service
	broker   events.Broker
	history  events.History
	ready    func(ctx context.Context) error
	mux      *http.ServeMux
}

// New creates a Server with all routes registered.
func New(cfg Config) *Server {
	s := &Server{
		learning: cfg.Learning,
		broker:   cfg.Broker,
		history:  cfg.History,
		ready:    cfg.Ready,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)

	s.mux.HandleFunc("GET /v1/students/{student}/courses/{course}", s.handleCourseView)
	s.mux.HandleFunc("GET /v1/students/{student}/courses/{course}/report.xlsx", s.handleExport)
	s.mux.HandleFunc("GET /v1/students/{student}/courses/{course}/events", s.handleEvents)
	s.mux.HandleFunc("GET /v1/students/{student}/courses/{course}/stream", s.handleStream)
	s.mux.HandleFunc("GET /v1/students/{student}/topics/{topic}", s.handleTopicView)
	s.mux.HandleFunc("POST /v1/students/{student}/complete/{entity}/{id}", s.handleMarkComplete)
	s.mux.HandleFunc("GET /v1/students/{student}/prerequisites/{quiz}", s.handlePrerequisiteQuiz)
	s.mux.HandleFunc("POST /v1/students/{student}/quizzes/{quiz}/attempts", s.handleStartAttempt)
	s.mux.HandleFunc("POST /v1/students/{student}/attempts/{attempt}/submit", s.handleSubmitAttempt)
	s.mux.HandleFunc("POST /v1/attempts/{attempt}/evaluate", s.handleEvaluateAttempt)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	slog.Debug("request served",
		"method", r.Method,
		"path", r.URL.Path,
		"status", rec.status,
		"duration", time.Since(start),
	)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			slog.Warn("readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets the websocket upgrade take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
