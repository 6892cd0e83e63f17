package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	devicehttp "github.com/GriffinCanCode/AgentOS/queuedev/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/device/session"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/queuedev/internal/infrastructure/monitoring"
)

// shutdownTimeout bounds how long Close waits for in-flight requests
const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	manager *session.Manager
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	mode, err := cfg.Device.InitialMode()
	if err != nil {
		return nil, fmt.Errorf("invalid device mode: %w", err)
	}

	logger.Info("Initializing queue device server",
		zap.String("addr", cfg.Server.Addr()),
		zap.Int("capacity", cfg.Device.Capacity),
		zap.String("mode", mode.String()),
	)

	metrics := monitoring.NewMetrics()

	manager := session.NewManager(session.Config{
		Capacity:         cfg.Device.Capacity,
		Mode:             mode,
		MaxPrivateQueues: cfg.Device.MaxPrivateQueues,
		MemoryLimit:      cfg.Device.MemoryLimit,
	}).
		WithLogger(logger.Logger).
		WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.CORS.Origins
	router.Use(middleware.CORS(cors))
	router.Use(middleware.RequestID(logger.Logger))
	router.Use(monitoring.Middleware(metrics))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := devicehttp.NewHandlers(manager, logger.Logger)
	handlers.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		manager: manager,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
		http: &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Handler returns the server's router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Manager returns the session manager behind the device routes
func (s *Server) Manager() *session.Manager {
	return s.manager
}

// Run starts the HTTP server and blocks until it stops. A server stopped by
// Close returns nil.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Close gracefully shuts down the server and closes every open handle
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("Failed to shut down HTTP server", zap.Error(err))
	}

	s.manager.Shutdown()

	// Sync logger before exit
	s.logger.Sync()

	if err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
