// Package api serves the local admin and status API: pipeline inspection,
// cancellation and submission, the websocket progress feed and metrics.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/moyoez/splitsend-go/api/controllers"
	"github.com/moyoez/splitsend-go/api/middlewares"
	"github.com/moyoez/splitsend-go/api/notifyhub"
	"github.com/moyoez/splitsend-go/metrics"
	"github.com/moyoez/splitsend-go/tool"
)

const shutdownTimeout = 10 * time.Second

type Options struct {
	Listen   string
	Strategy string
	Pipeline controllers.PipelineService
	// Hub enables GET /api/v1/progress/ws when set.
	Hub *notifyhub.Hub
	// Metrics enables GET /metrics when set.
	Metrics *metrics.Metrics
}

// Server represents the HTTP API server
type Server struct {
	opts     Options
	engine   *gin.Engine
	server   *http.Server
	pipeline *controllers.PipelineController
	mu       sync.RWMutex
}

func NewServer(ctx context.Context, opts Options) *Server {
	s := &Server{
		opts:     opts,
		pipeline: controllers.NewPipelineController(ctx, opts.Pipeline),
	}
	s.engine = s.setupRoutes()
	return s
}

// Handler exposes the routes, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) setupRoutes() *gin.Engine {
	switch {
	case gin.Mode() == gin.TestMode:
	case tool.DefaultLogger.GetLevel() == log.DebugLevel:
		gin.SetMode(gin.DebugMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	// ClientIP must come from the socket, not from forwarding headers.
	if err := engine.SetTrustedProxies(nil); err != nil {
		tool.DefaultLogger.Errorf("Failed to reset trusted proxies: %v", err)
	}

	statusCtrl := controllers.NewStatusController(s.opts.Pipeline, s.opts.Strategy)

	v1 := engine.Group("/api/v1")
	{
		v1.GET("/status", statusCtrl.HandleStatus)
		v1.GET("/pipelines", s.pipeline.HandleList)
		v1.GET("/pipelines/:id", s.pipeline.HandleGet)
		if s.opts.Hub != nil {
			v1.GET("/progress/ws", notifyhub.HandleProgressWS(s.opts.Hub))
		}
	}
	local := engine.Group("/api/v1", middlewares.OnlyAllowLocal)
	{
		local.GET("/config", statusCtrl.HandleConfigGet)
		local.POST("/pipelines/:id/cancel", s.pipeline.HandleCancel)
		local.POST("/jobs", s.pipeline.HandleSubmit)
	}
	if s.opts.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(s.opts.Metrics.Handler()))
	}
	return engine
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	tool.DefaultLogger.Infof("Starting API server on http://%s", s.opts.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for pipelines submitted over
// the API. Their context must already be cancelled, or they run to the end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv != nil {
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return err
		}
	}
	s.pipeline.Wait()
	return nil
}
