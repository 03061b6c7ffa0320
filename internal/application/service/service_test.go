package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/agency-ops/internal/application/dispatcher"
	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/application/recorder"
	"github.com/garyjia/agency-ops/internal/application/workflow"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/domain/event"
	"github.com/garyjia/agency-ops/internal/domain/role"
	"github.com/garyjia/agency-ops/internal/infrastructure/persistence/repository"
	"github.com/garyjia/agency-ops/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/agency-ops/pkg/database"
)

var (
	admin     = role.Actor{UserID: "admin-1", Role: role.Admin}
	manager   = role.Actor{UserID: "pm-1", Role: role.ProjectManager}
	developer = role.Actor{UserID: "dev-1", Role: role.Developer}
	client    = role.Actor{UserID: "client-1", Role: role.Client}
	stranger  = role.Actor{UserID: "client-2", Role: role.Client}
	anonymous = role.Actor{}
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// faultyActivityRepo wraps the real repository; createFunc, when set, replaces Create
type faultyActivityRepo struct {
	port.ActivityRepository
	createFunc func(ctx context.Context, log *entity.ActivityLog) error
}

func (r *faultyActivityRepo) Create(ctx context.Context, log *entity.ActivityLog) error {
	if r.createFunc != nil {
		return r.createFunc(ctx, log)
	}
	return r.ActivityRepository.Create(ctx, log)
}

// eventSink collects every event published on the bus
type eventSink struct {
	mu     sync.Mutex
	events []*event.Event
}

func (s *eventSink) handle(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *eventSink) received() []*event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*event.Event{}, s.events...)
}

func (s *eventSink) withStatus(status string) []*event.Event {
	var out []*event.Event
	for _, evt := range s.received() {
		if evt.Status == status {
			out = append(out, evt)
		}
	}
	return out
}

// eventually waits for n events with status, for jobs that broadcast in the background
func (s *eventSink) eventually(t *testing.T, status string, n int) []*event.Event {
	t.Helper()
	require.Eventually(t, func() bool { return len(s.withStatus(status)) == n }, time.Second, 5*time.Millisecond)
	return s.withStatus(status)
}

type harness struct {
	db  *sql.DB
	now time.Time

	intakeRepo   port.IntakeRepository
	projectRepo  port.ProjectRepository
	proposalRepo port.ProposalRepository
	taskRepo     port.TaskRepository
	timeLogRepo  port.TimeLogRepository
	fileRepo     port.FileRepository
	invoiceRepo  port.InvoiceRepository
	activity     *faultyActivityRepo

	bus      dispatcher.Dispatcher
	sink     *eventSink
	recorder recorder.Recorder
	engine   workflow.Engine

	intakes   *intakeServiceImpl
	proposals *proposalServiceImpl
	tasks     *taskServiceImpl
	files     *fileServiceImpl
	billing   *billingServiceImpl
	invoices  *invoiceServiceImpl
	projects  *projectServiceImpl
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	zl := zap.NewNop()
	db, err := database.Open(database.Config{
		Path:         filepath.Join(t.TempDir(), "agency.db"),
		MaxOpenConns: 1,
	}, zl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(db, zl))

	h := &harness{
		db:           db,
		now:          time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
		intakeRepo:   repository.NewIntakeRepository(db, zl),
		projectRepo:  repository.NewProjectRepository(db, zl),
		proposalRepo: repository.NewProposalRepository(db, zl),
		taskRepo:     repository.NewTaskRepository(db, zl),
		timeLogRepo:  repository.NewTimeLogRepository(db, zl),
		fileRepo:     repository.NewFileRepository(db, zl),
		invoiceRepo:  repository.NewInvoiceRepository(db, zl),
		activity:     &faultyActivityRepo{ActivityRepository: repository.NewActivityRepository(db, zl)},
		sink:         &eventSink{},
	}

	logger := &mockLogger{}
	h.bus = dispatcher.NewDispatcher(dispatcher.WithLogger(logger))
	h.bus.Subscribe(h.sink.handle)
	h.recorder = recorder.NewRecorder(h.activity, h.bus, logger)
	h.engine = workflow.NewEngine(sqlite.NewDB(db, zl), h.recorder)

	clock := func() time.Time { return h.now }

	h.intakes = NewIntakeService(h.intakeRepo, h.projectRepo, h.engine, logger).(*intakeServiceImpl)
	h.intakes.now = clock
	h.proposals = NewProposalService(h.proposalRepo, h.projectRepo, h.intakeRepo, h.taskRepo, h.engine, logger).(*proposalServiceImpl)
	h.proposals.now = clock
	h.tasks = NewTaskService(h.taskRepo, h.timeLogRepo, h.projectRepo, h.engine, logger).(*taskServiceImpl)
	h.tasks.now = clock
	h.files = NewFileService(h.fileRepo, h.projectRepo, h.engine, logger).(*fileServiceImpl)
	h.files.now = clock
	h.billing = NewBillingService(h.projectRepo, h.taskRepo, h.fileRepo, logger).(*billingServiceImpl)
	h.invoices = NewInvoiceService(h.invoiceRepo, h.projectRepo, h.billing, h.engine,
		&mockExporter{}, nil, InvoiceSettings{}, logger).(*invoiceServiceImpl)
	h.invoices.now = clock
	h.projects = NewProjectService(h.projectRepo, h.engine, h.recorder, logger).(*projectServiceImpl)
	h.projects.now = clock

	return h
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

// submit creates an intake and its project as client
func (h *harness) submit(t *testing.T) *SubmittedIntake {
	t.Helper()

	out, err := h.intakes.SubmitIntake(context.Background(), client, SubmitIntakeInput{
		Title:    "Marketing site",
		Notes:    "Five pages",
		FormData: map[string]interface{}{"budget": "10k"},
	})
	require.NoError(t, err)
	return out
}

// deliveryProject is a project whose intake reached scope approval
func (h *harness) deliveryProject(t *testing.T) *entity.Project {
	t.Helper()

	submitted := h.submit(t)
	ctx := context.Background()
	_, err := h.proposals.UpsertProposal(ctx, manager, submitted.Project.ID, UpsertProposalInput{
		Summary:   "Build",
		LineItems: []entity.ProposalLineItem{{ModuleID: "site", Title: "Site build", Hours: 10, Rate: 100}},
		Send:      true,
	})
	require.NoError(t, err)
	_, err = h.proposals.RespondToProposal(ctx, client, submitted.Project.ID, RespondToProposalInput{Action: ProposalResponseApprove})
	require.NoError(t, err)

	project, err := h.projectRepo.GetByID(ctx, submitted.Project.ID)
	require.NoError(t, err)
	return project
}

func (h *harness) activityFor(t *testing.T, e event.Entity, id string) []*entity.ActivityLog {
	t.Helper()

	logs, err := h.recorder.ListByEntity(context.Background(), e, id, 100)
	require.NoError(t, err)
	return logs
}

type mockExporter struct {
	exportFunc func(ctx context.Context, invoice *entity.Invoice, project *entity.Project) ([]byte, error)
}

func (m *mockExporter) Export(ctx context.Context, invoice *entity.Invoice, project *entity.Project) ([]byte, error) {
	if m.exportFunc != nil {
		return m.exportFunc(ctx, invoice, project)
	}
	return []byte(invoice.InvoiceNumber), nil
}

func (m *mockExporter) ContentType() string { return "application/octet-stream" }
func (m *mockExporter) Extension() string   { return ".bin" }
