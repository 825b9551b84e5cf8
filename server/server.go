// Package server implements the smarttodo HTTP server: REST API, auth, CORS
// and SSE real-time events.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"

	"github.com/GoCodeAlone/smarttodo/config"
	"github.com/GoCodeAlone/smarttodo/events"
	"github.com/GoCodeAlone/smarttodo/server/api"
	"github.com/GoCodeAlone/smarttodo/server/sse"
)

// Server is the smarttodo HTTP server.
type Server struct {
	cfg     config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	handlers *api.Handlers
	bus      events.Bus

	routesOnce sync.Once
	handler    http.Handler

	// JWT secret caching
	secretOnce      sync.Once
	generatedSecret []byte

	startTime time.Time
	version   string
}

// New creates a new Server with the given config and logger.
func New(cfg config.Config, ver string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		logger:    logger,
		startTime: time.Now(),
		version:   ver,
	}
}

// SetHandlers attaches the REST handlers. Call before Start.
func (s *Server) SetHandlers(h *api.Handlers) {
	s.handlers = h
}

// SetEventBus attaches the bus that feeds GET /api/events.
func (s *Server) SetEventBus(bus events.Bus) {
	s.bus = bus
}

// Handler returns the fully wired HTTP handler, registering routes on
// first use.
func (s *Server) Handler() http.Handler {
	s.routesOnce.Do(func() {
		s.registerRoutes()
		s.handler = cors.New(cors.Options{
			AllowedOrigins:   s.cfg.Server.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			ExposedHeaders:   []string{"X-Detail"},
			AllowCredentials: true,
		}).Handler(s.mux)
	})
	return s.handler
}

// Start registers routes and begins listening.
func (s *Server) Start() error {
	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening",
		slog.String("addr", addr),
		slog.String("version", s.version),
		slog.Bool("auth", s.cfg.Auth.Enabled),
	)
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	h := s.handlers
	if h == nil {
		h = &api.Handlers{}
	}
	if h.Logger == nil {
		h.Logger = s.logger
	}
	if h.StartAt.IsZero() {
		h.StartAt = s.startTime
	}

	// Public routes (no auth required)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/status", h.StatusHandler())

	apiMux := http.NewServeMux()
	h.RegisterRoutes(apiMux)
	if s.bus != nil {
		apiMux.Handle("GET /api/events", sse.NewStreamer(s.bus, s.logger))
	}

	if !s.cfg.Auth.Enabled {
		s.mux.Handle("/api/", apiMux)
		return
	}
	apiMux.HandleFunc("GET /api/auth/me", s.handleMe)
	s.mux.Handle("/api/", s.authMiddleware(apiMux))
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
