package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/gatewarden/gatewarden/internal/domain"
	"github.com/gatewarden/gatewarden/internal/ports"
)

// requestDeadline bounds how long one request may occupy a handler. Slow
// handlers are cut off with 408 by the timeout wrapper; slowloris style
// trickle attacks hit the read timeout before a handler ever runs.
const requestDeadline = 30 * time.Second

// ServerOptions collects the server's collaborators.
type ServerOptions struct {
	Addr     string
	Pipeline Inspector
	Identity *IdentityResolver
	Store    ports.ReputationStore
	Metrics  *domain.DefenseMetrics
	AdminKey string
	Appeals  *AppealHandler

	// MetricsHandler serves GET /metrics (promhttp). Nil disables the route.
	MetricsHandler http.Handler
}

// Server is the public HTTP surface. Every route, including unknown paths,
// passes through identity resolution and the defense middleware first.
type Server struct {
	engine *gin.Engine
	srv    *http.Server
}

func NewServer(opts ServerOptions) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(opts.Identity.Middleware())
	engine.Use(DefenseMiddleware(opts.Pipeline))

	engine.GET("/", LandingHandler)
	engine.GET("/health", HealthHandler(opts.Metrics))

	admin := NewAdminHandler(opts.Store, opts.AdminKey)
	engine.GET("/api/security/blocked-ips", admin.ListBlockedIPs)
	engine.POST("/api/security/unblock", admin.Unblock)

	engine.POST("/api/appeals", opts.Appeals.Submit)

	if opts.MetricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	// unknown paths get the same opaque 404 the honeypot answers with
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
	})

	// the write timeout sits past the request deadline so the 408 still
	// reaches the client
	return &Server{
		engine: engine,
		srv: &http.Server{
			Addr:              opts.Addr,
			Handler:           newTimeoutHandler(engine, requestDeadline),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       requestDeadline,
			WriteTimeout:      requestDeadline + 5*time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// Handler exposes the full chain, timeout wrapper included, for httptest.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start blocks serving requests until Shutdown is called. A failure to bind
// the port is returned as an error; the caller exits non-zero.
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
