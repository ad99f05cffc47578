// Package server provides the HTTP server for the Mudra sign recognition
// system.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/classifier"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/store"
)

// shutdownTimeout bounds graceful shutdown once the serving context ends.
const shutdownTimeout = 5 * time.Second

// Config holds the server configuration. When App is set, Store defaults
// to the application store and the live endpoints are registered.
type Config struct {
	StaticDir string
	Store     *store.Store
	App       *app.App
}

// Server represents the HTTP server for the Mudra application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	events *EventsHandler
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Store == nil && config.App != nil {
		config.Store = config.App.Store()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	var (
		vocabulary classifier.Vocabulary
		plugins    *plugin.Manager
	)
	if s.config.App != nil {
		vocabulary = s.config.App.Vocabulary()
		plugins = s.config.App.PluginManager()
	}

	if s.config.Store != nil {
		bindings := api.NewBindingHandler(s.config.Store, plugins, vocabulary)
		s.mux.Handle("/api/bindings", bindings)
		s.mux.Handle("/api/bindings/", bindings)
		s.mux.Handle("/api/recognitions", api.NewRecognitionHandler(s.config.Store))
	}

	if s.config.App != nil {
		s.events = NewEventsHandler(s.config.App)
		s.mux.Handle("/api/vocabulary", api.NewVocabularyHandler(vocabulary))
		s.mux.HandleFunc("/api/enabled", s.handleEnabled)
		s.mux.Handle("/api/events", s.events)
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.App, DefaultStreamInterval))
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type lastSignResponse struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
	TimestampMs int64   `json:"timestamp"`
}

type healthResponse struct {
	Status    string            `json:"status"`
	Uptime    string            `json:"uptime"`
	Enabled   bool              `json:"enabled"`
	SessionID string            `json:"session_id,omitempty"`
	LastSign  *lastSignResponse `json:"last_sign,omitempty"`
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.start).String(),
	}
	if a := s.config.App; a != nil {
		response.Enabled = a.IsEnabled()
		response.SessionID = a.SessionID()
		if sign, ok := a.LastSign(); ok {
			response.LastSign = &lastSignResponse{
				Label:       sign.Label,
				Probability: sign.Probability,
				TimestampMs: sign.TimestampMs,
			}
		}
	}

	writeJSON(w, http.StatusOK, response)
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type enabledResponse struct {
	Enabled bool `json:"enabled"`
}

// handleEnabled reports (GET) or switches (PUT) recognition.
func (s *Server) handleEnabled(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req enabledRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
			http.Error(w, "Expected {\"enabled\": bool}", http.StatusBadRequest)
			return
		}
		if err := s.config.App.SetEnabled(r.Context(), *req.Enabled); err != nil {
			logger.Errorf(r.Context(), "set enabled %t: %v", *req.Enabled, err)
			http.Error(w, "Failed to switch recognition", http.StatusInternalServerError)
			return
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, enabledResponse{Enabled: s.config.App.IsEnabled()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully. Request contexts derive from ctx so handlers share its
// logger.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof(ctx, "listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if s.events != nil {
		s.events.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
