// Package container wires the application: storage, event bus, services,
// external adapters and background workers.
package container

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/agency-ops/internal/application/dispatcher"
	"github.com/garyjia/agency-ops/internal/application/notifier"
	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/application/recorder"
	"github.com/garyjia/agency-ops/internal/application/service"
	"github.com/garyjia/agency-ops/internal/application/workflow"
	"github.com/garyjia/agency-ops/internal/config"
	"github.com/garyjia/agency-ops/internal/infrastructure/auth"
	"github.com/garyjia/agency-ops/internal/infrastructure/export"
	infraLark "github.com/garyjia/agency-ops/internal/infrastructure/external/lark"
	"github.com/garyjia/agency-ops/internal/infrastructure/persistence/repository"
	"github.com/garyjia/agency-ops/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/agency-ops/internal/infrastructure/storage"
	"github.com/garyjia/agency-ops/internal/infrastructure/worker"
	"github.com/garyjia/agency-ops/pkg/database"
	"github.com/garyjia/agency-ops/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlDB          *sql.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Intake   port.IntakeRepository
	Project  port.ProjectRepository
	Proposal port.ProposalRepository
	Task     port.TaskRepository
	TimeLog  port.TimeLogRepository
	File     port.FileRepository
	Invoice  port.InvoiceRepository
	Activity port.ActivityRepository
	User     *repository.UserRepository
}

// EventBundle holds the bus and the components publishing through it.
type EventBundle struct {
	Dispatcher dispatcher.Dispatcher
	Recorder   recorder.Recorder
	Engine     workflow.Engine
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Intake   service.IntakeService
	Project  service.ProjectService
	Proposal service.ProposalService
	Task     service.TaskService
	File     service.FileService
	Billing  service.BillingService
	Invoice  service.InvoiceService
}

// ProvideDatabase opens the database and applies pending migrations.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}

	sqlDB, err := database.Open(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(sqlDB, logger); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		SqlDB:          sqlDB,
		TransactionMgr: sqlite.NewDB(sqlDB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(sqlDB *sql.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &RepositoryBundle{
		Intake:   repository.NewIntakeRepository(sqlDB, logger),
		Project:  repository.NewProjectRepository(sqlDB, logger),
		Proposal: repository.NewProposalRepository(sqlDB, logger),
		Task:     repository.NewTaskRepository(sqlDB, logger),
		TimeLog:  repository.NewTimeLogRepository(sqlDB, logger),
		File:     repository.NewFileRepository(sqlDB, logger),
		Invoice:  repository.NewInvoiceRepository(sqlDB, logger),
		Activity: repository.NewActivityRepository(sqlDB, logger),
		User:     repository.NewUserRepository(sqlDB, logger),
	}, nil
}

// ProvideEvents creates the bus, the recorder persisting events, and the
// engine that broadcasts them after commit.
func ProvideEvents(db *sqlite.DB, repos *RepositoryBundle, logger *zap.Logger) *EventBundle {
	kv := utils.NewKVLogger(logger.Named("events"))
	bus := dispatcher.NewDispatcher(dispatcher.WithLogger(kv))
	rec := recorder.NewRecorder(repos.Activity, bus, kv)

	return &EventBundle{
		Dispatcher: bus,
		Recorder:   rec,
		Engine:     workflow.NewEngine(db, rec),
	}
}

// ProvideIdentity creates the bearer token verifier. Roles missing from a
// token are looked up in the users table.
func ProvideIdentity(cfg *config.AuthConfig, users port.RoleLookup, logger *zap.Logger) (*auth.JWTProvider, error) {
	return auth.NewJWTProvider(auth.Config{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.Issuer,
		RoleClaim: cfg.RoleClaim,
	}, users, logger.Named("auth"))
}

// ServiceDeps holds dependencies for the application services.
type ServiceDeps struct {
	Repos    *RepositoryBundle
	Events   *EventBundle
	Billing  *config.BillingConfig
	Exporter port.InvoiceExporter
	Archive  port.FileStorage
	Logger   *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil || deps.Events == nil {
		return nil, fmt.Errorf("repositories and events are required")
	}

	repos := deps.Repos
	engine := deps.Events.Engine
	kv := utils.NewKVLogger(deps.Logger.Named("service"))

	billingService := service.NewBillingService(repos.Project, repos.Task, repos.File, kv)

	return &ServiceBundle{
		Intake:   service.NewIntakeService(repos.Intake, repos.Project, engine, kv),
		Project:  service.NewProjectService(repos.Project, engine, deps.Events.Recorder, kv),
		Proposal: service.NewProposalService(repos.Proposal, repos.Project, repos.Intake, repos.Task, engine, kv),
		Task:     service.NewTaskService(repos.Task, repos.TimeLog, repos.Project, engine, kv),
		File:     service.NewFileService(repos.File, repos.Project, engine, kv),
		Billing:  billingService,
		Invoice: service.NewInvoiceService(repos.Invoice, repos.Project, billingService, engine,
			deps.Exporter, deps.Archive, service.InvoiceSettings{
				Prefix:           deps.Billing.InvoicePrefix,
				PaymentTermsDays: deps.Billing.PaymentTermsDays,
			}, kv),
	}, nil
}

// ProvideExport creates the spreadsheet exporter and its archive.
func ProvideExport(billing *config.BillingConfig, store *config.StorageConfig, logger *zap.Logger) (port.InvoiceExporter, port.FileStorage) {
	exporter := export.NewExcelExporter(export.ExcelConfig{
		CompanyName:  billing.CompanyName,
		TemplatePath: billing.TemplatePath,
	}, logger.Named("export"))

	var archive port.FileStorage
	if store.ArchiveDir != "" {
		archive = storage.NewDiskArchive(store.ArchiveDir, logger.Named("archive"))
	}
	return exporter, archive
}

// WorkerDeps holds dependencies for background workers.
type WorkerDeps struct {
	Config   *config.Config
	Services *ServiceBundle
	Events   *EventBundle
	Logger   *zap.Logger
}

// ProvideWorkers creates the invoice status worker and, when Lark is
// enabled, the chat notifier subscribed to the bus. Workers are registered
// but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.Manager, error) {
	manager := worker.NewManager(deps.Logger.Named("worker"))

	statusWorker := worker.NewInvoiceStatusWorker(worker.InvoiceStatusWorkerConfig{
		PollInterval: deps.Config.Worker.InvoicePollInterval,
		BatchSize:    deps.Config.Worker.InvoiceBatchSize,
	}, deps.Services.Invoice, deps.Logger.Named("invoice_status"))
	if err := manager.Register(statusWorker); err != nil {
		return nil, err
	}

	larkCfg := deps.Config.Lark
	if larkCfg.Enabled {
		client := infraLark.NewSDKClient(infraLark.Config{
			AppID:     larkCfg.AppID,
			AppSecret: larkCfg.AppSecret,
		}, deps.Logger.Named("lark"))

		n := notifier.NewNotifier(infraLark.NewMessenger(client, deps.Logger.Named("lark")),
			larkCfg.NotifyChatID, larkCfg.QueueSize, utils.NewKVLogger(deps.Logger.Named("notifier")))
		deps.Events.Dispatcher.SubscribeNamed("lark-notifier", dispatcher.Filter(notifier.IsNotable, n.Handle))
		if err := manager.Register(n); err != nil {
			return nil, err
		}
	}

	return manager, nil
}
