// Package server exposes a read-only HTTP view of the metamodel endpoints
// and streams endpoint changes over a websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/conduit-lang/wsmodel/internal/metamodel/domain"
	"github.com/conduit-lang/wsmodel/internal/source"
)

// ShutdownTimeout bounds the graceful shutdown of ListenAndServe.
const ShutdownTimeout = 5 * time.Second

// EndpointView is the JSON representation of an endpoint.
type EndpointView struct {
	*domain.Endpoint
	Template string `json:"template"`
}

// Server serves the endpoints of a metamodel.
type Server struct {
	m        *domain.Metamodel
	hub      *Hub
	router   chi.Router
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// New creates a server for m. Endpoint events reach websocket clients only
// when hub is registered as a listener of m; a nil hub disables /ws.
func New(m *domain.Metamodel, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		m:   m,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// read-only local tooling, any origin may subscribe
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.Named("server"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Route("/endpoints", func(r chi.Router) {
		r.Get("/", s.handleListEndpoints)
		r.Get("/{id}", s.handleGetEndpoint)
	})
	if s.hub != nil {
		r.Get("/ws", s.handleStream)
	}
	s.router = r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve is like ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", listener.Addr().String()))
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"metamodel": s.m.ID().String(),
		"endpoints": len(s.m.Endpoints()),
	})
}

// handleListEndpoints lists every endpoint, or only those depending on an
// element (?element=pkg.Type#method) or going through a type (?type=pkg.Type).
func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var endpoints []*domain.Endpoint
	switch {
	case query.Get("element") != "":
		h, err := source.ParseHandle(query.Get("element"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		endpoints = s.m.FindEndpoints(h)
	case query.Get("type") != "":
		endpoints = s.m.FindEndpointsByType(source.TypeHandle(query.Get("type")))
	default:
		endpoints = s.m.Endpoints()
	}
	writeJSON(w, http.StatusOK, Views(endpoints))
}

func (s *Server) handleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endpoint id")
		return
	}
	e := s.m.Endpoint(id)
	if e == nil {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}
	writeJSON(w, http.StatusOK, View(e))
}

// handleStream upgrades to a websocket, sends the current endpoints and
// then every committed change.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	sub, err := s.hub.Accept(conn, s.m.ID().String(), Views(s.m.Endpoints()))
	if err != nil {
		s.logger.Warn("failed to accept subscriber", zap.Error(err))
		return
	}
	s.logger.Debug("subscriber accepted", zap.String("subscriber", sub.ID), zap.String("remote", r.RemoteAddr))
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}

// View converts an endpoint to its JSON representation.
func View(e *domain.Endpoint) EndpointView {
	return EndpointView{Endpoint: e, Template: e.DisplayTemplate()}
}

// Views converts endpoints to their JSON representation.
func Views(endpoints []*domain.Endpoint) []EndpointView {
	views := make([]EndpointView, 0, len(endpoints))
	for _, e := range endpoints {
		views = append(views, View(e))
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
