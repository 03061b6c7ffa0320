package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/application/recorder"
	"github.com/garyjia/agency-ops/internal/application/workflow"
	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/billing"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/domain/event"
	"github.com/garyjia/agency-ops/internal/domain/role"
	domainwf "github.com/garyjia/agency-ops/internal/domain/workflow"
	"github.com/garyjia/agency-ops/pkg/utils"
)

// ProposalResponse is the client's answer to a proposal
type ProposalResponse string

const (
	ProposalResponseApprove ProposalResponse = "approve"
	ProposalResponseDecline ProposalResponse = "decline"
)

// UpsertProposalInput creates or replaces a project's proposal. Send moves it
// to the client; Version, when set, must match the stored proposal.
type UpsertProposalInput struct {
	Summary         string                    `json:"summary"`
	LineItems       []entity.ProposalLineItem `json:"line_items"`
	SelectedModules []string                  `json:"selected_modules"`
	Send            bool                      `json:"send"`
	Version         int64                     `json:"version"`
}

// RespondToProposalInput is a client approval or decline
type RespondToProposalInput struct {
	Action  ProposalResponse `json:"action"`
	Notes   string           `json:"notes"`
	Version int64            `json:"version"`
}

// ProposalService manages estimates and the client's response to them
type ProposalService interface {
	GetProposal(ctx context.Context, actor role.Actor, projectID string) (*entity.Proposal, error)
	UpsertProposal(ctx context.Context, actor role.Actor, projectID string, in UpsertProposalInput) (*entity.Proposal, error)
	RespondToProposal(ctx context.Context, actor role.Actor, projectID string, in RespondToProposalInput) (*entity.Proposal, error)
}

type proposalServiceImpl struct {
	proposalRepo port.ProposalRepository
	projectRepo  port.ProjectRepository
	intakeRepo   port.IntakeRepository
	taskRepo     port.TaskRepository
	engine       workflow.Engine
	logger       Logger
	now          Clock
}

// NewProposalService creates a new ProposalService
func NewProposalService(
	proposalRepo port.ProposalRepository,
	projectRepo port.ProjectRepository,
	intakeRepo port.IntakeRepository,
	taskRepo port.TaskRepository,
	engine workflow.Engine,
	logger Logger,
) ProposalService {
	return &proposalServiceImpl{
		proposalRepo: proposalRepo,
		projectRepo:  projectRepo,
		intakeRepo:   intakeRepo,
		taskRepo:     taskRepo,
		engine:       engine,
		logger:       logger,
		now:          systemClock,
	}
}

func (s *proposalServiceImpl) GetProposal(ctx context.Context, actor role.Actor, projectID string) (*entity.Proposal, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil || !canViewProject(actor, project) {
		return nil, apperr.NotFound("project", projectID)
	}

	proposal, err := s.proposalRepo.GetByProjectID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if proposal == nil {
		return nil, apperr.NotFound("proposal", projectID)
	}
	return proposal, nil
}

// UpsertProposal prices the line items, stores the single proposal of the
// project and advances the intake to estimate in progress or estimate sent.
func (s *proposalServiceImpl) UpsertProposal(ctx context.Context, actor role.Actor, projectID string, in UpsertProposalInput) (*entity.Proposal, error) {
	if err := requireRole(actor, role.ProjectManager); err != nil {
		return nil, err
	}

	items, hours, amount, err := priceLineItems(in.LineItems)
	if err != nil {
		return nil, err
	}
	if in.Send && len(items) == 0 {
		return nil, apperr.Validation("a proposal needs at least one line item before it is sent")
	}

	var result *entity.Proposal
	_, err = s.engine.Run(ctx, func(ctx context.Context, unit *workflow.Unit) error {
		project, err := s.projectRepo.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return apperr.NotFound("project", projectID)
		}

		existing, err := s.proposalRepo.GetByProjectID(ctx, projectID)
		if err != nil {
			return err
		}

		previous := entity.ProposalStatusDraft
		expected := in.Version
		if existing != nil {
			previous = existing.Status
			if expected == 0 {
				expected = existing.Version
			}
			if err := checkVersion("proposal", existing.ID, expected, existing.Version); err != nil {
				return err
			}
		}

		status, err := nextProposalStatus(ctx, existing, in.Send)
		if err != nil {
			return err
		}

		now := s.now()
		proposal := &entity.Proposal{
			// the unique project key decides between insert and replace
			ID:              uuid.NewString(),
			ProjectID:       projectID,
			IntakeID:        project.IntakeID,
			Summary:         strings.TrimSpace(in.Summary),
			LineItems:       items,
			EstimatedHours:  hours,
			EstimateAmount:  amount,
			SelectedModules: nonNilStrings(in.SelectedModules),
			Status:          status,
			PreparedByID:    actor.UserID,
			Version:         expected,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if status == entity.ProposalStatusClientApprovalPending {
			proposal.SentAt = timePtr(now)
		} else if existing != nil {
			proposal.SentAt = existing.SentAt
		}

		if err := s.proposalRepo.Upsert(ctx, proposal); err != nil {
			return err
		}

		intakeStatus, err := s.advanceIntake(ctx, project, in.Send)
		if err != nil {
			return err
		}

		project.WorkflowPhase = entity.WorkflowPhaseEstimation
		project.UpdatedAt = now
		if err := s.projectRepo.Update(ctx, project); err != nil {
			return err
		}

		_, err = unit.Record(ctx, recorder.Input{
			Entity:    event.EntityProposal,
			EntityID:  proposal.ID,
			ProjectID: projectID,
			ActorID:   actor.UserID,
			Status:    string(proposal.Status),
			Message:   proposal.Summary,
			Metadata: map[string]interface{}{
				"previousStatus": string(previous),
				"intakeStatus":   string(intakeStatus),
				"estimateAmount": proposal.EstimateAmount,
				"estimatedHours": proposal.EstimatedHours,
				"sent":           in.Send,
			},
		})
		if err != nil {
			return err
		}

		result = proposal
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Proposal saved", "project_id", projectID, "status", string(result.Status))
	return result, nil
}

// RespondToProposal records the project client's approval or decline
func (s *proposalServiceImpl) RespondToProposal(ctx context.Context, actor role.Actor, projectID string, in RespondToProposalInput) (*entity.Proposal, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var trigger domainwf.Trigger
	switch in.Action {
	case ProposalResponseApprove:
		trigger = domainwf.TriggerClientApprove
	case ProposalResponseDecline:
		trigger = domainwf.TriggerClientDecline
	default:
		return nil, apperr.Validation("unknown proposal response %q", in.Action)
	}
	notes := strings.TrimSpace(in.Notes)
	if in.Action == ProposalResponseDecline && notes == "" {
		return nil, apperr.Validation("notes are required to decline a proposal")
	}

	var result *entity.Proposal
	_, err := s.engine.Run(ctx, func(ctx context.Context, unit *workflow.Unit) error {
		project, err := s.projectRepo.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil || !canViewProject(actor, project) {
			return apperr.NotFound("project", projectID)
		}
		if project.ClientID != actor.UserID {
			return apperr.Forbidden("only the project's client can respond to its proposal")
		}

		proposal, err := s.proposalRepo.GetByProjectID(ctx, projectID)
		if err != nil {
			return err
		}
		if proposal == nil {
			return apperr.NotFound("proposal", projectID)
		}
		if err := checkVersion("proposal", proposal.ID, in.Version, proposal.Version); err != nil {
			return err
		}

		machine, err := workflow.BuildProposalMachine(proposal.Status)
		if err != nil {
			return err
		}
		transition, err := workflow.Fire(ctx, machine, trigger)
		if err != nil {
			return err
		}

		now := s.now()
		proposal.Status = entity.ProposalStatus(transition.To)
		proposal.ApprovalNotes = notes
		proposal.UpdatedAt = now
		if in.Action == ProposalResponseApprove {
			proposal.ClientApprovedAt = timePtr(now)
			project.IntakeStatus = entity.IntakeStatusClientScopeApproved
			project.WorkflowPhase = entity.WorkflowPhaseKickoff
			project.Status = entity.ProjectStatusActive
			if project.StartDate == nil {
				project.StartDate = timePtr(now)
			}
		} else {
			proposal.ClientDeclinedAt = timePtr(now)
			project.IntakeStatus = entity.IntakeStatusClientScopeDeclined
			project.WorkflowPhase = entity.WorkflowPhaseEstimation
		}
		project.UpdatedAt = now

		if err := s.proposalRepo.Update(ctx, proposal); err != nil {
			return err
		}
		if err := s.settleIntake(ctx, project, in.Action); err != nil {
			return err
		}
		if err := s.projectRepo.Update(ctx, project); err != nil {
			return err
		}

		metadata := map[string]interface{}{
			"previousStatus": string(transition.From),
			"intakeStatus":   string(project.IntakeStatus),
			"workflowPhase":  string(project.WorkflowPhase),
		}
		if notes != "" {
			metadata["notes"] = notes
		}
		if in.Action == ProposalResponseApprove {
			created, err := s.createDeliverables(ctx, project, proposal)
			if err != nil {
				return err
			}
			metadata["createdTaskIds"] = created
		}

		_, err = unit.Record(ctx, recorder.Input{
			Entity:    event.EntityProposal,
			EntityID:  proposal.ID,
			ProjectID: projectID,
			ActorID:   actor.UserID,
			Status:    string(proposal.Status),
			Message:   notes,
			Metadata:  metadata,
		})
		if err != nil {
			return err
		}

		result = proposal
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Proposal answered", "project_id", projectID, "status", string(result.Status))
	return result, nil
}

// advanceIntake moves the project's intake into estimation. Statuses the
// intake lifecycle does not allow to advance are left alone.
func (s *proposalServiceImpl) advanceIntake(ctx context.Context, project *entity.Project, sent bool) (entity.IntakeStatus, error) {
	if project.IntakeID == nil {
		return project.IntakeStatus, nil
	}

	intake, err := s.intakeRepo.GetByID(ctx, *project.IntakeID)
	if err != nil || intake == nil {
		return project.IntakeStatus, err
	}

	trigger := domainwf.TriggerStartEstimate
	if sent {
		trigger = domainwf.TriggerSendEstimate
	}

	if err := s.fireIntake(ctx, intake, trigger); err != nil {
		return "", err
	}
	project.IntakeStatus = intake.Status
	return intake.Status, nil
}

func (s *proposalServiceImpl) settleIntake(ctx context.Context, project *entity.Project, action ProposalResponse) error {
	if project.IntakeID == nil {
		return nil
	}

	intake, err := s.intakeRepo.GetByID(ctx, *project.IntakeID)
	if err != nil || intake == nil {
		return err
	}

	trigger := domainwf.TriggerScopeApproved
	if action == ProposalResponseDecline {
		trigger = domainwf.TriggerScopeDeclined
	}
	return s.fireIntake(ctx, intake, trigger)
}

func (s *proposalServiceImpl) fireIntake(ctx context.Context, intake *entity.Intake, trigger domainwf.Trigger) error {
	machine, err := workflow.BuildIntakeMachine(intake.Status)
	if err != nil {
		return err
	}
	if !machine.CanFire(trigger) {
		return nil
	}

	transition, err := machine.Fire(ctx, trigger)
	if err != nil || transition.IsReentry() {
		return err
	}

	intake.Status = entity.IntakeStatus(transition.To)
	intake.UpdatedAt = s.now()
	return s.intakeRepo.Update(ctx, intake)
}

// createDeliverables opens one deliverable task per approved line item.
// Keys make a repeated approval a no-op.
func (s *proposalServiceImpl) createDeliverables(ctx context.Context, project *entity.Project, proposal *entity.Proposal) ([]string, error) {
	created := []string{}
	now := s.now()

	for i, item := range proposal.LineItems {
		ref := item.ModuleID
		if ref == "" {
			ref = strconv.Itoa(i)
		}
		title := item.Title
		if title == "" {
			title = fmt.Sprintf("Deliverable %d", i+1)
		}

		task := &entity.Task{
			ID:             uuid.NewString(),
			ProjectID:      project.ID,
			Title:          title,
			Description:    item.Description,
			Status:         entity.TaskStatusBacklog,
			Priority:       entity.TaskPriorityMedium,
			IsDeliverable:  true,
			DeliverableKey: strPtr(fmt.Sprintf("proposal:%s:%s", proposal.ID, ref)),
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		ok, err := s.taskRepo.CreateIfAbsent(ctx, task)
		if err != nil {
			return nil, err
		}
		if ok {
			created = append(created, task.ID)
		}
	}

	return created, nil
}

func nextProposalStatus(ctx context.Context, existing *entity.Proposal, send bool) (entity.ProposalStatus, error) {
	current := entity.ProposalStatusDraft
	if existing != nil {
		current = existing.Status
	}
	if current == entity.ProposalStatusApproved {
		return "", apperr.Validation("an approved proposal can no longer be edited")
	}

	machine, err := workflow.BuildProposalMachine(current)
	if err != nil {
		return "", err
	}

	trigger := domainwf.TriggerReviseProposal
	if send {
		trigger = domainwf.TriggerSendProposal
	}
	transition, err := workflow.Fire(ctx, machine, trigger)
	if err != nil {
		return "", err
	}
	return entity.ProposalStatus(transition.To), nil
}

// priceLineItems fills missing amounts with hours x rate and totals the proposal
func priceLineItems(in []entity.ProposalLineItem) ([]entity.ProposalLineItem, float64, float64, error) {
	items := make([]entity.ProposalLineItem, 0, len(in))
	hours := decimal.Zero
	amount := decimal.Zero

	for i, item := range in {
		for _, v := range []float64{item.Hours, item.Rate, item.Amount} {
			if err := utils.ValidateAmount(v); err != nil {
				return nil, 0, 0, apperr.Validation("line item %d: %v", i+1, err)
			}
		}
		if blank(item.Title) && blank(item.ModuleID) {
			return nil, 0, 0, apperr.Validation("line item %d needs a title or module id", i+1)
		}
		if item.Amount == 0 {
			item.Amount = billing.ProposalAmount(item.Hours, item.Rate)
		} else {
			item.Amount = billing.RoundMoney(item.Amount)
		}

		hours = hours.Add(decimal.NewFromFloat(item.Hours))
		amount = amount.Add(decimal.NewFromFloat(item.Amount))
		items = append(items, item)
	}

	h, _ := hours.Round(2).Float64()
	a, _ := amount.Round(2).Float64()
	return items, h, a, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
