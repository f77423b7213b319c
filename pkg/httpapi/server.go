// Package httpapi exposes the memory engine over HTTP.
//
// The surface is deliberately small: one endpoint to run a conversational
// turn, one to erase a user, plus health and metrics. Validation failures map
// to 400 responses with a message; every other failure maps to a generic 500
// so internal details never reach the client.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stanchat/convomem-go/pkg/core"
	"github.com/stanchat/convomem-go/pkg/observability"
)

// Engine is the subset of the memory engine the HTTP layer depends on.
type Engine interface {
	HandleTurn(ctx context.Context, userID, message string) (string, error)
	PurgeUser(ctx context.Context, userID string) error
}

// Server routes HTTP requests to a memory engine.
type Server struct {
	engine Engine
	logger *zap.Logger
	router chi.Router
}

// Options configures optional server behavior.
type Options struct {
	// StaticDir serves a directory of static files at the root path when
	// non-empty.
	StaticDir string
}

// NewServer builds the HTTP server around the given engine. logger may be
// nil.
func NewServer(engine Engine, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		engine: engine,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Post("/api/chat", s.handleChat)
	r.Post("/api/reset", s.handleReset)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", observability.MetricsHandler())

	if opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(opts.StaticDir)))
	}

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger tags each request with a correlation id and logs its outcome.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Info("request completed",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)))
	})
}

type chatRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type resetRequest struct {
	UserID string `json:"userId"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	reply, err := s.engine.HandleTurn(r.Context(), req.UserID, req.Message)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if err := s.engine.PurgeUser(r.Context(), req.UserID); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, core.ErrInvalidInput) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "userId and message are required"})
		return
	}

	s.logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
