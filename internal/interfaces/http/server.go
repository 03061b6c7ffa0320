// Package http exposes the application services over a JSON API and a
// server-sent event stream.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/agency-ops/internal/application/dispatcher"
	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/application/service"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host              string
	Port              int
	Mode              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	StreamBuffer      int
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:              "0.0.0.0",
		Port:              8080,
		Mode:              gin.ReleaseMode,
		ReadTimeout:       30 * time.Second,
		HeartbeatInterval: 25 * time.Second,
		StreamBuffer:      32,
	}
}

// Services bundles the application services the API exposes
type Services struct {
	Intakes   service.IntakeService
	Projects  service.ProjectService
	Proposals service.ProposalService
	Tasks     service.TaskService
	Files     service.FileService
	Billing   service.BillingService
	Invoices  service.InvoiceService
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	identity   port.IdentityProvider
	bus        dispatcher.Dispatcher
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(
	config ServerConfig,
	services Services,
	identity port.IdentityProvider,
	bus dispatcher.Dispatcher,
	logger Logger,
) *Server {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultServerConfig().HeartbeatInterval
	}
	if config.StreamBuffer <= 0 {
		config.StreamBuffer = DefaultServerConfig().StreamBuffer
	}

	server := &Server{
		config:   config,
		router:   gin.New(),
		services: services,
		identity: identity,
		bus:      bus,
		logger:   logger,
	}

	server.router.Use(gin.Recovery())
	server.router.Use(server.loggingMiddleware())
	server.router.Use(corsMiddleware())
	server.setupRoutes()

	return server
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	api := s.router.Group("/api", s.authMiddleware())
	{
		api.POST("/intakes", s.submitIntake)
		api.GET("/intakes", s.listIntakes)
		api.GET("/intakes/:id", s.getIntake)
		api.POST("/intakes/:id/transitions", s.transitionIntake)
		api.POST("/intakes/:id/resubmit", s.resubmitIntake)

		api.GET("/projects", s.listProjects)
		api.GET("/projects/:id", s.getProject)
		api.PUT("/projects/:id/onboarding", s.updateOnboarding)
		api.GET("/projects/:id/activity", s.projectActivity)

		api.GET("/projects/:id/proposal", s.getProposal)
		api.PUT("/projects/:id/proposal", s.upsertProposal)
		api.POST("/projects/:id/proposal/respond", s.respondToProposal)

		api.GET("/projects/:id/billing/readiness", s.billingReadiness)
		api.GET("/projects/:id/billing/validation", s.billingValidation)
		api.GET("/projects/:id/billing/line-items", s.billingLineItems)

		api.POST("/projects/:id/invoices", s.createInvoice)
		api.GET("/projects/:id/invoices", s.listInvoices)
		api.GET("/invoices/:id", s.getInvoice)
		api.GET("/invoices/:id/export", s.exportInvoice)
		api.POST("/invoices/:id/revalidate", s.revalidateInvoice)
		api.POST("/invoices/:id/send", s.sendInvoice)
		api.POST("/invoices/:id/schedule", s.scheduleInvoice)
		api.POST("/invoices/:id/pay", s.payInvoice)

		api.POST("/projects/:id/tasks", s.createTask)
		api.GET("/projects/:id/tasks", s.listTasks)
		api.PATCH("/tasks/:id/status", s.updateTaskStatus)
		api.POST("/tasks/:id/time-logs", s.logTime)
		api.POST("/tasks/:id/deferments", s.deferBilling)

		api.POST("/projects/:id/files", s.registerFile)
		api.GET("/projects/:id/files", s.listFiles)
		api.POST("/files/:id/reviews", s.reviewFile)
		api.PATCH("/checklist-items/:id", s.updateChecklistItem)

		api.GET("/events/stream", s.streamEvents)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
