package container

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/agency-ops/internal/application/dispatcher"
	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/config"
	"github.com/garyjia/agency-ops/internal/infrastructure/auth"
	"github.com/garyjia/agency-ops/internal/infrastructure/worker"
	apphttp "github.com/garyjia/agency-ops/internal/interfaces/http"
	"github.com/garyjia/agency-ops/pkg/utils"
)

// Option customises container startup
type Option func(*options)

type options struct {
	startWorkers bool
}

// WithoutWorkers builds the workers but never starts them. Used by the CLI
// commands and tests that only need services.
func WithoutWorkers() Option {
	return func(o *options) { o.startWorkers = false }
}

// Container manages all application dependencies and lifecycle.
// Initialization is ordered and teardown runs in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger
	opts   options

	sqlDB        *sql.DB
	db           port.TransactionManager
	repositories *RepositoryBundle
	events       *EventBundle
	identity     *auth.JWTProvider
	exporter     port.InvoiceExporter
	archive      port.FileStorage
	services     *ServiceBundle
	workers      *worker.Manager

	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{startWorkers: true}
	for _, opt := range opts {
		opt(&o)
	}

	return &Container{config: cfg, logger: logger, opts: o}, nil
}

// Start initializes all components in dependency order:
// 1. Database and repositories
// 2. Event bus, recorder and workflow engine
// 3. Identity, export and archive adapters
// 4. Application services
// 5. Workers (started unless WithoutWorkers)
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	// Step 1: Database and repositories
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.sqlDB = dbBundle.SqlDB
	c.db = dbBundle.TransactionMgr

	if c.repositories, err = ProvideRepositories(c.sqlDB, c.logger); err != nil {
		return c.abort(fmt.Errorf("failed to initialize repositories: %w", err))
	}

	// Step 2: Events
	c.events = ProvideEvents(dbBundle.TransactionMgr, c.repositories, c.logger)

	// Step 3: Adapters
	if c.identity, err = ProvideIdentity(&c.config.Auth, c.repositories.User, c.logger); err != nil {
		return c.abort(fmt.Errorf("failed to initialize identity provider: %w", err))
	}
	c.exporter, c.archive = ProvideExport(&c.config.Billing, &c.config.Storage, c.logger)

	// Step 4: Services
	c.services, err = ProvideServices(&ServiceDeps{
		Repos:    c.repositories,
		Events:   c.events,
		Billing:  &c.config.Billing,
		Exporter: c.exporter,
		Archive:  c.archive,
		Logger:   c.logger,
	})
	if err != nil {
		return c.abort(fmt.Errorf("failed to initialize services: %w", err))
	}

	// Step 5: Workers
	c.workers, err = ProvideWorkers(&WorkerDeps{
		Config:   c.config,
		Services: c.services,
		Events:   c.events,
		Logger:   c.logger,
	})
	if err != nil {
		return c.abort(fmt.Errorf("failed to initialize workers: %w", err))
	}
	if c.opts.startWorkers {
		if err := c.workers.StartAll(ctx); err != nil {
			return c.abort(fmt.Errorf("failed to start workers: %w", err))
		}
	}

	c.ready.Store(true)
	c.logger.Info("Container started", zap.Int("workers", c.workers.Count()), zap.Bool("workers_running", c.workers.IsRunning()))
	return nil
}

// abort releases what Start opened so far
func (c *Container) abort(err error) error {
	if c.events != nil {
		_ = c.events.Dispatcher.Close()
	}
	if c.sqlDB != nil {
		_ = c.sqlDB.Close()
	}
	return err
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Swap(true) {
		return fmt.Errorf("container already closed")
	}
	c.ready.Store(false)

	var errs []error

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	if c.events != nil {
		if err := c.events.Dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}

	if c.sqlDB != nil {
		if err := c.sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}

	c.logger.Info("Container closed")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	switch {
	case c.sqlDB == nil:
		set("database", false, "not initialized")
	default:
		if err := c.sqlDB.PingContext(ctx); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, "")
		}
	}

	if c.events == nil {
		set("dispatcher", false, "not initialized")
	} else {
		set("dispatcher", true, describeSubscribers(c.events.Dispatcher.ListHandlers()))
	}

	if c.workers == nil {
		set("workers", false, "not initialized")
	} else {
		// stopped workers are expected under WithoutWorkers
		set("workers", c.workers.IsRunning() || !c.opts.startWorkers, fmt.Sprintf("worker count: %d", c.workers.Count()))
	}

	return status
}

func describeSubscribers(handlers []dispatcher.HandlerInfo) string {
	names := make([]string, len(handlers))
	for i, h := range handlers {
		names[i] = h.Name
	}
	sort.Strings(names)
	msg := fmt.Sprintf("subscribers: %d", len(names))
	if len(names) > 0 {
		msg += " (" + strings.Join(names, ", ") + ")"
	}
	return msg
}

// HTTPServer builds the API server over the container's services.
func (c *Container) HTTPServer() *apphttp.Server {
	srv := c.config.Server
	return apphttp.NewServer(apphttp.ServerConfig{
		Host:              srv.Host,
		Port:              srv.Port,
		Mode:              srv.Mode,
		ReadTimeout:       srv.ReadTimeout,
		WriteTimeout:      srv.WriteTimeout,
		HeartbeatInterval: c.config.Stream.HeartbeatInterval,
		StreamBuffer:      c.config.Stream.BufferSize,
	}, apphttp.Services{
		Intakes:   c.services.Intake,
		Projects:  c.services.Project,
		Proposals: c.services.Proposal,
		Tasks:     c.services.Task,
		Files:     c.services.File,
		Billing:   c.services.Billing,
		Invoices:  c.services.Invoice,
	}, c.identity, c.events.Dispatcher, utils.NewKVLogger(c.logger.Named("http")))
}

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.events.Dispatcher
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Identity returns the token verifier, which also mints tokens.
func (c *Container) Identity() *auth.JWTProvider {
	return c.identity
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.Manager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}
