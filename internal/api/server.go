package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"pong-arena/internal/config"
	"pong-arena/internal/game"
	"pong-arena/internal/tournament"
)

// ServerDeps are the long-lived components the API serves. They are built
// and owned by the caller.
type ServerDeps struct {
	Manager     *game.Manager
	Tournaments *tournament.Service
	Coordinator *tournament.Coordinator // optional
}

// Server is the HTTP API server with WebSocket support.
// It combines the REST router with the WebSocket hub.
type Server struct {
	router      *chi.Mux
	hub         *Hub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// NewServer wires the router and the hub and registers the hub as an event
// sink of the manager. No listener is opened until Start.
func NewServer(cfg config.AppConfig, deps ServerDeps) *Server {
	s := &Server{
		rateLimiter: NewIPRateLimiter(RateLimitConfigFrom(cfg.Limits)),
	}

	s.hub = NewHub(deps.Manager, HubConfig{
		MaxConnections: cfg.Limits.MaxWSConnections,
		MaxPerIP:       cfg.Limits.MaxWSPerIP,
		MessagesPerSec: cfg.Limits.WSMessagesPerSec,
		MessageBurst:   cfg.Limits.WSMessageBurst,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	deps.Manager.AddEventSink(s.hub)

	rc := RouterConfig{
		Games:       deps.Manager,
		Tournaments: deps.Tournaments,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.Server.AllowedOrigins,
	}
	if deps.Coordinator != nil {
		rc.Starter = deps.Coordinator
	}
	s.router = NewRouter(rc)
	s.router.Get("/ws", s.hub.ServeWS)

	return s
}

// Start serves HTTP on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("🎮 WebSocket endpoint: ws://localhost%s/ws", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Shutdown closes every WebSocket, stops accepting requests and stops the
// rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	s.rateLimiter.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
