// Package api provides the plain-text zone control API for minidns.
// It maps HTTP methods and paths onto zone and record operations through
// the resource package and serves them with gin.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/minidns/internal/api/handlers"
	"github.com/jroosing/minidns/internal/api/middleware"
	"github.com/jroosing/minidns/internal/api/resource"
	"github.com/jroosing/minidns/internal/config"
	"github.com/jroosing/minidns/internal/metrics"
)

// Server is the control API server.
//
// Security note: do not expose the API to untrusted networks without an API key.
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds the gin engine and HTTP server. m may be nil.
func New(cfg *config.Config, reg resource.Registry, logger *slog.Logger, m *metrics.Metrics) *Server {
	if cfg == nil {
		panic("api.New: cfg is nil")
	}
	if reg == nil {
		panic("api.New: registry is nil")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestMetrics(m))
	engine.Use(middleware.SlogRequestLogger(logger))

	h := handlers.New(reg, logger)
	RegisterRoutes(engine, h, cfg)

	httpServer := &http.Server{
		Addr:              cfg.API.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{cfg: cfg, logger: logger, engine: engine, httpServer: httpServer}
}

func (s *Server) Addr() string {
	if s.httpServer == nil {
		return ""
	}
	return s.httpServer.Addr
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln, which the caller has already bound.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
