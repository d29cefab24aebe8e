// Package server is the HTTP front end of boxrender. Any path renders the
// manifest of the store entry named by the gist query parameter; a few
// reserved paths expose health, metrics, a status page and an event feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/boxrender/internal/cache"
	"github.com/conneroisu/boxrender/internal/config"
	"github.com/conneroisu/boxrender/internal/logging"
	"github.com/conneroisu/boxrender/internal/metrics"
	"github.com/conneroisu/boxrender/internal/renderer"
	"github.com/conneroisu/boxrender/internal/store"
)

// Deps are the collaborators of a Server
type Deps struct {
	Store    store.Store
	Renderer *renderer.Renderer
	// Cache, when it reports stats, is shown on the status page
	Cache   cache.Store
	Metrics *metrics.Metrics
	Logger  logging.Logger
}

// Server serves renders over HTTP
type Server struct {
	config   *config.ServerConfig
	kind     string
	store    store.Store
	renderer *renderer.Renderer
	cache    cache.Store
	metrics  *metrics.Metrics
	logger   logging.Logger
	hub      *Hub
	handler  http.Handler

	started time.Time
	renders renderCounts

	// serverMutex protects httpServer and isShutdown
	serverMutex sync.RWMutex
	httpServer  *http.Server
	isShutdown  bool
}

type renderCounts struct {
	ok        atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
}

// New creates a server for cfg
func New(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	s := &Server{
		config:   &cfg.Server,
		kind:     cfg.Store.Kind,
		store:    deps.Store,
		renderer: deps.Renderer,
		cache:    deps.Cache,
		metrics:  deps.Metrics,
		logger:   logger.WithComponent("server"),
		started:  time.Now(),
	}
	s.hub = NewHub(s.logger)
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /events", s.hub)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.HandleFunc("/", s.handleRender)

	return s.metrics.WithLatencyTracking(requestMiddleware(s.logger, mux))
}

// Handler returns the root handler with all middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the event hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// StoreChanged publishes the invalidation of a store entry
func (s *Server) StoreChanged(id string) {
	s.metrics.ObserveInvalidation()
	s.hub.Publish(Event{Type: EventStoreChange, ID: logging.Redact(id)})
}

// Start listens on the configured address and serves until Shutdown is
// called. The event hub stops with ctx.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until Shutdown is called
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.serverMutex.Lock()
	if s.isShutdown {
		s.serverMutex.Unlock()
		_ = ln.Close()
		return nil
	}
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	go s.hub.Run(ctx)

	s.logger.Info(ctx, "Server listening", "addr", ln.Addr().String(), "store", s.kind)
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until
// ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMutex.Lock()
	if s.isShutdown {
		s.serverMutex.Unlock()
		return nil
	}
	s.isShutdown = true
	server := s.httpServer
	s.serverMutex.Unlock()

	if server == nil {
		return nil
	}
	s.logger.Info(ctx, "Shutting down server")
	return server.Shutdown(ctx)
}
