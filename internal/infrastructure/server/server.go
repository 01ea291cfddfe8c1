// Package server wires the terminal manager, HTTP/WebSocket surface,
// middleware and backend registration into one runnable daemon.
package server

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/edgeterm/edgeterm/internal/api/http"
	"github.com/edgeterm/edgeterm/internal/api/middleware"
	"github.com/edgeterm/edgeterm/internal/api/ws"
	"github.com/edgeterm/edgeterm/internal/infrastructure/config"
	"github.com/edgeterm/edgeterm/internal/infrastructure/logging"
	"github.com/edgeterm/edgeterm/internal/infrastructure/monitoring"
	"github.com/edgeterm/edgeterm/internal/registration"
	"github.com/edgeterm/edgeterm/internal/terminal"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	router    *gin.Engine
	manager   *terminal.Manager
	registrar *registration.Client
	logger    *logging.Logger
	config    *config.Config
	metrics   *monitoring.Metrics

	regCancel context.CancelFunc
}

// New creates a server instance from configuration.
func New(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	logger.Info("Initializing edgeterm daemon",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
	)

	metrics := monitoring.NewMetrics()

	manager := terminal.NewManager(terminal.Config{
		Shell:             cfg.Terminal.Shell,
		SettleDelay:       cfg.Terminal.SettleDelay,
		PollInterval:      cfg.Terminal.PollInterval,
		CommandTimeout:    cfg.Terminal.CommandTimeout,
		GracePeriod:       cfg.Terminal.GracePeriod,
		PromptTerminators: cfg.Terminal.PromptTerminators,
	}, logger.Named("terminal")).WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(manager, logger.Named("http"))
	wsHandler := ws.NewHandler(manager, logger.Named("ws"), metrics)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// Terminal session management
	router.POST("/terminal/sessions", handlers.CreateSession)
	router.GET("/terminal/sessions", handlers.ListSessions)
	router.GET("/terminal/sessions/:id", handlers.GetSession)
	router.POST("/terminal/sessions/:id/execute", handlers.ExecuteCommand)
	router.DELETE("/terminal/sessions/:id", handlers.CloseSession)

	// WebSocket
	router.GET("/stream", wsHandler.HandleConnection)

	// Metrics
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	var registrar *registration.Client
	if cfg.Registration.Enabled && cfg.Registration.APIURL != "" {
		port, err := strconv.Atoi(cfg.Server.Port)
		if err != nil {
			logger.Warn("Invalid server port for registration", zap.String("port", cfg.Server.Port))
		}
		registrar = registration.New(registration.Config{
			DeviceID:      cfg.Registration.DeviceID,
			APIURL:        cfg.Registration.APIURL,
			Host:          cfg.Server.Host,
			Port:          port,
			PublicHTTPURL: cfg.Registration.PublicHTTPURL,
			Interval:      cfg.Registration.Interval,
		}, logger.Named("registration"))
	}

	logger.Info("Server initialized")

	return &Server{
		router:    router,
		manager:   manager,
		registrar: registrar,
		logger:    logger,
		config:    cfg,
		metrics:   metrics,
	}, nil
}

// Manager exposes the session manager to the host process.
func (s *Server) Manager() *terminal.Manager {
	return s.manager
}

// Run starts the registration heartbeat and the HTTP server. It blocks
// until the server stops.
func (s *Server) Run() error {
	if s.registrar != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.regCancel = cancel
		go s.registrar.Run(ctx)
	}

	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Close gracefully shuts down the daemon: the registration heartbeat
// stops and every terminal session is terminated.
func (s *Server) Close() error {
	s.logger.Info("Shutting down...")

	if s.regCancel != nil {
		s.regCancel()
	}

	s.manager.Shutdown()
	s.logger.Info("All terminal sessions closed")

	s.logger.Sync()
	return nil
}
