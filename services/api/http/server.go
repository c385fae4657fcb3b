package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/aqwatch/aqms-pipeline/internal/history"
	"github.com/aqwatch/aqms-pipeline/internal/livemap"
	"github.com/aqwatch/aqms-pipeline/internal/metrics"
	"github.com/aqwatch/aqms-pipeline/internal/models"
)

// genericError is the only failure text shown to dashboard users.
const genericError = "Something went wrong"

// HistoryService answers historical dashboard queries.
type HistoryService interface {
	Options(ctx context.Context) ([]history.SiteOption, error)
	Series(ctx context.Context, siteID int) (history.Series, error)
}

// SiteLister exposes the site directory.
type SiteLister interface {
	All() []models.Site
}

// ParameterFetcher lists upstream parameter metadata.
type ParameterFetcher interface {
	FetchParameters(ctx context.Context) ([]models.Parameter, error)
}

// LiveMap exposes the current live map state.
type LiveMap interface {
	View() livemap.View
}

// Deps are the optional components behind the API. Routes are only
// registered for the components that are set.
type Deps struct {
	History    HistoryService
	Sites      SiteLister
	Parameters ParameterFetcher
	Live       LiveMap
	Stream     http.Handler
	Ping       func(ctx context.Context) error
}

// Server bundles router and dependencies for the REST API.
type Server struct {
	addr   string
	deps   Deps
	log    logrus.FieldLogger
	engine *gin.Engine
}

// New constructs a server with routes and middleware.
func New(addr string, deps Deps, log logrus.FieldLogger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(log))
	engine.Use(corsMiddleware())

	server := &Server{addr: addr, deps: deps, log: log, engine: engine}
	server.registerRoutes()
	server.registerV1Routes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	if s.deps.Stream != nil {
		s.engine.GET("/ws/markers", gin.WrapH(s.deps.Stream))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.deps.Ping == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := s.deps.Ping(ctx); err != nil {
		s.log.WithError(err).Warn("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail logs err and answers with the generic message.
func (s *Server) fail(c *gin.Context, err error) {
	s.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	metrics.RenderFailures.Inc()
	c.JSON(http.StatusInternalServerError, gin.H{"error": genericError})
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		}).Debug("request")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func apiVersionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-API-Version", "v1")
		c.Next()
	}
}
