package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/config"
	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/logging"
	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/methodprobe/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/methodprobe/internal/render"
	"github.com/GriffinCanCode/methodprobe/internal/sink"
	"github.com/GriffinCanCode/methodprobe/internal/tree"
)

// QueueStatus describes one background queue.
type QueueStatus struct {
	Name    string `json:"name"`
	Pending int    `json:"pending"`
	Dropped int64  `json:"dropped"`
}

// Deps are the components the status server reports on. Only Store is
// required; routes backed by a missing component answer 404.
type Deps struct {
	Store   *config.Store
	Metrics *monitoring.Metrics
	Stats   *render.Stats
	Hub     *sink.Hub
	Manager *tree.Manager
	Queues  func() []QueueStatus
	Logger  *logging.Logger
}

// Server wraps the HTTP status server and its dependencies
type Server struct {
	router  *gin.Engine
	deps    Deps
	logger  *logging.Logger
	started time.Time

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
}

// New creates a status server. It does not listen until Start.
func New(deps Deps) *Server {
	logger := logging.OrNop(deps.Logger).Named("server")

	cfg := deps.Store.Load()
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	if deps.Metrics != nil {
		router.Use(monitoring.Middleware(deps.Metrics))
	}
	if deps.Manager != nil {
		router.Use(tracing.HTTPMiddleware(deps.Manager))
	}
	router.Use(CORS(DefaultCORSConfig()))
	router.Use(RateLimit(DefaultRateLimitConfig()))

	s := &Server{
		router:  router,
		deps:    deps,
		logger:  logger,
		started: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/", s.root)
	s.router.GET("/health", s.health)
	s.router.GET("/config", s.config)
	s.router.GET("/stats", s.stats)

	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}
	if s.deps.Hub != nil {
		s.router.GET("/logs", gin.WrapH(s.deps.Hub))
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.http = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Starting status server", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status server stopped", zap.Error(err))
		}
	}()
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

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.logger.Info("Shutting down status server")
	return srv.Shutdown(ctx)
}
