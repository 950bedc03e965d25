// Package api serves the HTTP administration interface of the spooler.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/orrn/presi/internal/api/handlers"
	"github.com/orrn/presi/internal/api/middleware"
	"github.com/orrn/presi/internal/config"
	"github.com/orrn/presi/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	Addr           string
	JWTSecret      string
	RateLimitRPS   int
	RateLimitBurst int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Deps are the collaborators of the router. Runner is required; the rest
// may be nil.
type Deps struct {
	Runner   handlers.Runner
	Events   handlers.EventStore
	Archives handlers.Archiver
	Webhooks handlers.WebhookTester
	Settings *config.Config
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

func NewRouter(cfg Config, deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	health := handlers.NewHealthHandler(deps.Runner)
	router.GET("/health", health.Health)

	auth := middleware.NewAuth(cfg.JWTSecret)
	apiGroup := router.Group("/api")
	apiGroup.Use(
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		}),
		auth.RequireAuth(),
	)

	types := handlers.NewTypeHandler(deps.Runner)
	apiGroup.GET("/types", types.ListTypes)
	apiGroup.POST("/types", types.CreateType)
	apiGroup.POST("/conversions", types.CreateConversion)

	printers := handlers.NewPrinterHandler(deps.Runner)
	apiGroup.GET("/printers", printers.ListPrinters)
	apiGroup.POST("/printers", printers.CreatePrinter)
	apiGroup.POST("/printers/:name/enable", printers.EnablePrinter)
	apiGroup.POST("/printers/:name/disable", printers.DisablePrinter)

	jobs := handlers.NewJobHandler(deps.Runner)
	apiGroup.GET("/jobs", jobs.ListJobs)
	apiGroup.POST("/jobs", jobs.CreateJob)
	apiGroup.GET("/jobs/:id", jobs.GetJob)
	apiGroup.POST("/jobs/:id/pause", jobs.PauseJob)
	apiGroup.POST("/jobs/:id/resume", jobs.ResumeJob)
	apiGroup.POST("/jobs/:id/cancel", jobs.CancelJob)

	events := handlers.NewEventHandler(deps.Events)
	apiGroup.GET("/events", events.ListEvents)

	archives := handlers.NewArchiveHandler(deps.Archives)
	apiGroup.GET("/archives", archives.ListArchives)
	apiGroup.POST("/archives/run", archives.RunArchive)

	webhooks := handlers.NewWebhookHandler(deps.Webhooks)
	apiGroup.GET("/webhooks", webhooks.ListWebhooks)
	apiGroup.POST("/webhooks/test", webhooks.TestWebhook)

	settings := handlers.NewSettingsHandler(deps.Settings)
	apiGroup.GET("/config", settings.GetServerConfig)

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.With(zap.String("component", "api"))
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()),
		)
	}
}

type Server struct {
	http   *http.Server
	logger *zap.Logger
}

func NewServer(cfg Config, handler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		http: &http.Server{
			Addr:         cfg.Addr,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger.With(zap.String("component", "api")),
	}
}

// Run serves until ctx is done, then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", zap.String("addr", ln.Addr().String()))
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("api stopped")
	return nil
}
