package service

import (
	"context"
	"time"

	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/billing"
	"github.com/garyjia/agency-ops/pkg/utils"
)

// LineItemsInput prices a project's approved work
type LineItemsInput struct {
	HourlyRate  float64    `json:"hourly_rate"`
	PeriodStart *time.Time `json:"period_start"`
	PeriodEnd   *time.Time `json:"period_end"`
}

// BillingService answers whether a project can be invoiced and for how much.
// All methods are read-only; called inside a transaction they read its state.
type BillingService interface {
	EvaluateReadiness(ctx context.Context, projectID string) (*billing.Report, error)
	RunPreInvoiceValidation(ctx context.Context, projectID string) (*billing.Validation, error)
	BuildInvoiceLineItems(ctx context.Context, projectID string, in LineItemsInput) (*billing.LineItemResult, error)
}

type billingServiceImpl struct {
	projectRepo port.ProjectRepository
	taskRepo    port.TaskRepository
	fileRepo    port.FileRepository
	logger      Logger
}

// NewBillingService creates a new BillingService
func NewBillingService(
	projectRepo port.ProjectRepository,
	taskRepo port.TaskRepository,
	fileRepo port.FileRepository,
	logger Logger,
) BillingService {
	return &billingServiceImpl{
		projectRepo: projectRepo,
		taskRepo:    taskRepo,
		fileRepo:    fileRepo,
		logger:      logger,
	}
}

// EvaluateReadiness reports every blocker of the project. An unknown project
// yields a not-ready report rather than an error.
func (s *billingServiceImpl) EvaluateReadiness(ctx context.Context, projectID string) (*billing.Report, error) {
	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return billing.NotFoundReport(projectID), nil
	}

	deliverables, err := s.taskRepo.ListDeliverableWork(ctx, projectID)
	if err != nil {
		return nil, err
	}
	files, err := s.fileRepo.ListWithChecklists(ctx, projectID)
	if err != nil {
		return nil, err
	}

	return billing.Evaluate(billing.Snapshot{
		ProjectID:    projectID,
		Deliverables: deliverables,
		Files:        files,
		Onboarding:   project.WorkflowMetadata.OnboardingChecklist,
	}), nil
}

func (s *billingServiceImpl) RunPreInvoiceValidation(ctx context.Context, projectID string) (*billing.Validation, error) {
	report, err := s.EvaluateReadiness(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return billing.Validate(report), nil
}

func (s *billingServiceImpl) BuildInvoiceLineItems(ctx context.Context, projectID string, in LineItemsInput) (*billing.LineItemResult, error) {
	if err := utils.ValidateAmount(in.HourlyRate); err != nil {
		return nil, apperr.Validation("invalid hourly rate: %v", err)
	}
	if in.PeriodStart != nil && in.PeriodEnd != nil && in.PeriodEnd.Before(*in.PeriodStart) {
		return nil, apperr.Validation("period end is before period start")
	}

	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperr.NotFound("project", projectID)
	}

	deliverables, err := s.taskRepo.ListDeliverableWork(ctx, projectID)
	if err != nil {
		return nil, err
	}

	result, err := billing.BuildLineItems(deliverables, billing.LineItemRequest{
		HourlyRate:  in.HourlyRate,
		PeriodStart: in.PeriodStart,
		PeriodEnd:   in.PeriodEnd,
	})
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	return &result, nil
}
