// Package api serves the read-only status API of a running dropwatch:
// health, loaded plugins, dispatch counters, the audit trail, a live event
// stream and, when the index or journal plugins are loaded, search and
// journal lookups.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/net/netutil"

	"github.com/dropwatch/dropwatch/internal/dispatch"
	"github.com/dropwatch/dropwatch/internal/errors"
	"github.com/dropwatch/dropwatch/internal/plugin"
	"github.com/dropwatch/dropwatch/internal/ratelimit"
	"github.com/dropwatch/dropwatch/internal/search"
	"github.com/dropwatch/dropwatch/internal/sse"
	"github.com/dropwatch/dropwatch/internal/store"
)

// API metadata published in the OpenAPI document.
const (
	Title   = "dropwatch status API"
	Version = "1.0.0"
)

// HTTP server timeouts.
const (
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
)

// Searcher queries the full-text index.
type Searcher interface {
	Search(ctx context.Context, params search.Params) (*search.Result, error)
	DocumentCount() (uint64, error)
}

// Journal reads the per-path event journal.
type Journal interface {
	Lookup(path string) ([]byte, error)
	Count() (int, error)
}

// Services are the components the handlers read from. Optional services
// are nil when the matching feature is disabled.
type Services struct {
	Plugins *plugin.Set
	Stats   *dispatch.Stats
	Audit   store.AuditStore
	Search  Searcher
	Journal Journal
	Events  *sse.Manager
}

// Config configures the listener and the middleware.
type Config struct {
	Addr     string
	MaxConns int      // concurrent connections, 0 for unlimited
	Rate     float64  // requests per second per client, 0 for unlimited
	Burst    int      // defaults to twice the rate
	Origins  []string // CORS allowed origins, empty allows any
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	cfg      Config
	services *Services
	router   *chi.Mux
	api      huma.API
	limiter  *ratelimit.KeyedRateLimiter
	logger   *slog.Logger
	started  time.Time

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// NewServer creates a server with every route registered. It does not
// listen until Start.
func NewServer(cfg Config, services *Services, logger *slog.Logger) *Server {
	if services == nil {
		services = &Services{}
	}
	if services.Plugins == nil {
		services.Plugins = plugin.NewSet()
	}
	if services.Stats == nil {
		services.Stats = dispatch.NewStats()
	}
	if cfg.Burst <= 0 {
		cfg.Burst = max(int(cfg.Rate*2), 1)
	}

	s := &Server{
		cfg:      cfg,
		services: services,
		router:   chi.NewRouter(),
		limiter:  ratelimit.New(cfg.Rate, cfg.Burst),
		logger:   logger,
		started:  time.Now(),
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig(Title, Version)
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerHealthRoutes()
	s.registerPluginRoutes()
	s.registerDispatchRoutes()
	s.registerSearchRoutes()
	s.registerJournalRoutes()
	s.registerEventRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API returns the huma API, for tests.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) setupMiddleware() {
	origins := s.cfg.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(RequestLogger(s.logger))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	s.router.Use(RateLimitMiddleware(s.limiter, s.logger))
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.Internal("status API already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, errors.CodeIO, "listen on %s", s.cfg.Addr)
	}
	if s.cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConns)
	}

	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	if s.services.Events != nil {
		// Streams never go idle on their own.
		srv.RegisterOnShutdown(s.services.Events.CloseClients)
	}
	s.srv = srv
	s.listener = ln

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status API stopped", "error", err)
		}
	}()

	s.logger.Info("status API listening", "addr", ln.Addr().String(), "max_conns", s.cfg.MaxConns)
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.listener = nil
	s.mu.Unlock()

	s.limiter.Stop()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
