package port

import (
	"context"
	"time"

	"github.com/garyjia/agency-ops/internal/domain/entity"
)

// Repositories return (nil, nil) when a row does not exist; callers decide
// whether absence is an error. Updates of versioned entities compare the
// caller's Version and fail with a Conflict on mismatch, then bump it.

// UserRepository defines persistence operations for User
type UserRepository interface {
	Upsert(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
}

// IntakeRepository defines persistence operations for Intake
type IntakeRepository interface {
	Create(ctx context.Context, intake *entity.Intake) error
	GetByID(ctx context.Context, id string) (*entity.Intake, error)
	Update(ctx context.Context, intake *entity.Intake) error
	List(ctx context.Context, filter entity.IntakeFilter) ([]*entity.Intake, error)
}

// ProjectRepository defines persistence operations for Project
type ProjectRepository interface {
	Create(ctx context.Context, project *entity.Project) error
	GetByID(ctx context.Context, id string) (*entity.Project, error)
	GetByIntakeID(ctx context.Context, intakeID string) (*entity.Project, error)
	Update(ctx context.Context, project *entity.Project) error
	List(ctx context.Context, filter entity.ProjectFilter) ([]*entity.Project, error)
}

// ProposalRepository defines persistence operations for Proposal
type ProposalRepository interface {
	// Upsert inserts or replaces the single proposal of a project. An existing
	// row is only replaced when proposal.Version matches.
	Upsert(ctx context.Context, proposal *entity.Proposal) error
	GetByProjectID(ctx context.Context, projectID string) (*entity.Proposal, error)
	Update(ctx context.Context, proposal *entity.Proposal) error
}

// TaskRepository defines persistence operations for Task and its owned records
type TaskRepository interface {
	Create(ctx context.Context, task *entity.Task) error
	// CreateIfAbsent skips tasks whose deliverable key already exists in the project
	CreateIfAbsent(ctx context.Context, task *entity.Task) (bool, error)
	GetByID(ctx context.Context, id string) (*entity.Task, error)
	ListByProject(ctx context.Context, projectID string) ([]*entity.Task, error)
	UpdateStatus(ctx context.Context, id string, status entity.TaskStatus) error

	AppendStatusHistory(ctx context.Context, entry *entity.TaskStatusHistory) error
	ListStatusHistory(ctx context.Context, taskID string) ([]*entity.TaskStatusHistory, error)

	CreateDeferment(ctx context.Context, deferment *entity.BillingDeferment) error

	// ListDeliverableWork loads every deliverable task of a project with its
	// time logs, latest status history entry and billing deferments
	ListDeliverableWork(ctx context.Context, projectID string) ([]entity.DeliverableWork, error)
}

// TimeLogRepository defines persistence operations for TimeLog
type TimeLogRepository interface {
	Create(ctx context.Context, log *entity.TimeLog) error
	ListByTaskID(ctx context.Context, taskID string) ([]*entity.TimeLog, error)
}

// FileRepository defines persistence operations for File, its checklist and approvals
type FileRepository interface {
	Create(ctx context.Context, file *entity.File) error
	GetByID(ctx context.Context, id string) (*entity.File, error)
	UpdateApprovalStatus(ctx context.Context, id string, status entity.FileApprovalStatus) error
	AppendApproval(ctx context.Context, approval *entity.FileApproval) error
	ListApprovals(ctx context.Context, fileID string) ([]*entity.FileApproval, error)

	CreateChecklistItem(ctx context.Context, item *entity.FileReviewChecklistItem) error
	GetChecklistItem(ctx context.Context, id string) (*entity.FileReviewChecklistItem, error)
	UpdateChecklistItem(ctx context.Context, item *entity.FileReviewChecklistItem) error

	// ListWithChecklists loads every file of a project with its review checklist
	ListWithChecklists(ctx context.Context, projectID string) ([]entity.FileWithChecklist, error)
}

// InvoiceRepository defines persistence operations for Invoice
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *entity.Invoice) error
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)
	Update(ctx context.Context, invoice *entity.Invoice) error
	ListByProject(ctx context.Context, projectID string) ([]*entity.Invoice, error)
	// NextNumberSequence returns 1 + the number of invoices issued in year
	NextNumberSequence(ctx context.Context, year int) (int, error)
	ListScheduledDue(ctx context.Context, now time.Time, limit int) ([]*entity.Invoice, error)
	ListSentPastDue(ctx context.Context, now time.Time, limit int) ([]*entity.Invoice, error)
}

// ActivityRepository persists workflow events. Rows are append-only.
type ActivityRepository interface {
	Create(ctx context.Context, log *entity.ActivityLog) error
	ListByEntity(ctx context.Context, entity, entityID string, limit int) ([]*entity.ActivityLog, error)
	ListByProject(ctx context.Context, projectID string, limit int) ([]*entity.ActivityLog, error)
}

// TransactionManager handles database transactions. The transaction travels
// in the context passed to fn; repositories called with that context join it.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
