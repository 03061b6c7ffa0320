package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/application/recorder"
	"github.com/garyjia/agency-ops/internal/application/workflow"
	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/domain/event"
	"github.com/garyjia/agency-ops/internal/domain/role"
	domainwf "github.com/garyjia/agency-ops/internal/domain/workflow"
)

// IntakeAction is an admin action on an intake
type IntakeAction string

const (
	IntakeActionAssignToMe         IntakeAction = "assign_to_me"
	IntakeActionApproveForEstimate IntakeAction = "approve_for_estimate"
	IntakeActionReturnForInfo      IntakeAction = "return_for_info"
	IntakeActionArchive            IntakeAction = "archive"
)

// SubmitIntakeInput is a client's new request for work
type SubmitIntakeInput struct {
	Title     string                 `json:"title"`
	Notes     string                 `json:"notes"`
	FormData  map[string]interface{} `json:"form_data"`
	Checklist map[string]interface{} `json:"checklist"`
}

// TransitionIntakeInput carries an admin action. Version, when set, must match the stored intake.
type TransitionIntakeInput struct {
	Action        IntakeAction `json:"action"`
	Comment       string       `json:"comment"`
	MissingFields []string     `json:"missing_fields"`
	Version       int64        `json:"version"`
}

// ResubmitIntakeInput is the client's answer to a return for info
type ResubmitIntakeInput struct {
	Notes    string                 `json:"notes"`
	FormData map[string]interface{} `json:"form_data"`
	Version  int64                  `json:"version"`
}

// SubmittedIntake is an intake with the project created for it
type SubmittedIntake struct {
	Intake  *entity.Intake  `json:"intake"`
	Project *entity.Project `json:"project"`
}

// IntakeService manages the intake lifecycle
type IntakeService interface {
	SubmitIntake(ctx context.Context, actor role.Actor, in SubmitIntakeInput) (*SubmittedIntake, error)
	GetIntake(ctx context.Context, actor role.Actor, id string) (*entity.Intake, error)
	ListIntakes(ctx context.Context, actor role.Actor, filter entity.IntakeFilter) ([]*entity.Intake, error)
	TransitionIntake(ctx context.Context, actor role.Actor, id string, in TransitionIntakeInput) (*entity.Intake, error)
	ResubmitIntake(ctx context.Context, actor role.Actor, id string, in ResubmitIntakeInput) (*entity.Intake, error)
}

type intakeServiceImpl struct {
	intakeRepo  port.IntakeRepository
	projectRepo port.ProjectRepository
	engine      workflow.Engine
	logger      Logger
	now         Clock
}

// NewIntakeService creates a new IntakeService
func NewIntakeService(
	intakeRepo port.IntakeRepository,
	projectRepo port.ProjectRepository,
	engine workflow.Engine,
	logger Logger,
) IntakeService {
	return &intakeServiceImpl{
		intakeRepo:  intakeRepo,
		projectRepo: projectRepo,
		engine:      engine,
		logger:      logger,
		now:         systemClock,
	}
}

// SubmitIntake creates the intake and its project in one unit of work
func (s *intakeServiceImpl) SubmitIntake(ctx context.Context, actor role.Actor, in SubmitIntakeInput) (*SubmittedIntake, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if blank(in.Title) {
		return nil, apperr.Validation("title is required")
	}

	now := s.now()
	intake := &entity.Intake{
		ID:            uuid.NewString(),
		ClientID:      actor.UserID,
		Status:        entity.IntakeStatusReviewPending,
		Title:         strings.TrimSpace(in.Title),
		Notes:         in.Notes,
		Checklist:     in.Checklist,
		FormData:      in.FormData,
		MissingFields: []string{},
		SubmittedAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	project := &entity.Project{
		ID:            uuid.NewString(),
		ClientID:      actor.UserID,
		IntakeID:      strPtr(intake.ID),
		Name:          intake.Title,
		Status:        entity.ProjectStatusPlanning,
		IntakeStatus:  intake.Status,
		WorkflowPhase: entity.WorkflowPhaseIntake,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err := s.engine.Run(ctx, func(ctx context.Context, unit *workflow.Unit) error {
		if err := s.intakeRepo.Create(ctx, intake); err != nil {
			return err
		}
		if err := s.projectRepo.Create(ctx, project); err != nil {
			return err
		}
		_, err := unit.Record(ctx, recorder.Input{
			Entity:    event.EntityIntake,
			EntityID:  intake.ID,
			ProjectID: project.ID,
			ActorID:   actor.UserID,
			Status:    string(intake.Status),
			Message:   fmt.Sprintf("Intake %q submitted", intake.Title),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Intake submitted", "intake_id", intake.ID, "project_id", project.ID)
	return &SubmittedIntake{Intake: intake, Project: project}, nil
}

func (s *intakeServiceImpl) GetIntake(ctx context.Context, actor role.Actor, id string) (*entity.Intake, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	intake, err := s.intakeRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if intake == nil || !s.canView(actor, intake) {
		return nil, apperr.NotFound("intake", id)
	}
	return intake, nil
}

func (s *intakeServiceImpl) ListIntakes(ctx context.Context, actor role.Actor, filter entity.IntakeFilter) ([]*entity.Intake, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, apperr.Validation("invalid intake status %q", filter.Status)
	}
	if !actor.Can(role.ProjectManager) {
		filter.ClientID = actor.UserID
	}

	intakes, err := s.intakeRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if intakes == nil {
		intakes = []*entity.Intake{}
	}
	return intakes, nil
}

// TransitionIntake applies an admin action. Input is validated before the
// unit of work opens; the intake, its project and the event commit together.
func (s *intakeServiceImpl) TransitionIntake(ctx context.Context, actor role.Actor, id string, in TransitionIntakeInput) (*entity.Intake, error) {
	if err := requireRole(actor, role.Admin); err != nil {
		return nil, err
	}

	var trigger domainwf.Trigger
	switch in.Action {
	case IntakeActionAssignToMe:
		trigger = domainwf.TriggerAssignToMe
	case IntakeActionApproveForEstimate:
		trigger = domainwf.TriggerApproveForEstimate
	case IntakeActionReturnForInfo:
		trigger = domainwf.TriggerReturnForInfo
	case IntakeActionArchive:
		trigger = domainwf.TriggerArchive
	default:
		return nil, apperr.Validation("unknown intake action %q", in.Action)
	}

	comment := strings.TrimSpace(in.Comment)
	if (in.Action == IntakeActionApproveForEstimate || in.Action == IntakeActionReturnForInfo) && comment == "" {
		return nil, apperr.Validation("a comment is required to %s", in.Action)
	}
	missing := cleanFields(in.MissingFields)

	var result *entity.Intake
	_, err := s.engine.Run(ctx, func(ctx context.Context, unit *workflow.Unit) error {
		intake, err := s.intakeRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if intake == nil {
			return apperr.NotFound("intake", id)
		}
		if err := checkVersion("intake", id, in.Version, intake.Version); err != nil {
			return err
		}

		machine, err := workflow.BuildIntakeMachine(intake.Status)
		if err != nil {
			return err
		}
		transition, err := workflow.Fire(ctx, machine, trigger)
		if err != nil {
			return err
		}

		now := s.now()
		intake.Status = entity.IntakeStatus(transition.To)
		intake.UpdatedAt = now

		metadata := map[string]interface{}{
			"action":         string(in.Action),
			"previousStatus": string(transition.From),
		}

		switch in.Action {
		case IntakeActionAssignToMe:
			intake.AssignedAdminID = strPtr(actor.UserID)
			metadata["assignedAdminId"] = actor.UserID
		case IntakeActionApproveForEstimate:
			intake.ApprovedForEstimateAt = timePtr(now)
			intake.ReviewComment = comment
			intake.MissingFields = []string{}
		case IntakeActionReturnForInfo:
			intake.ReturnedAt = timePtr(now)
			intake.ReviewComment = comment
			intake.MissingFields = missing
			metadata["missingFields"] = missing
		case IntakeActionArchive:
			if comment != "" {
				intake.ReviewComment = comment
			}
		}
		if comment != "" {
			metadata["comment"] = comment
		}

		if err := s.intakeRepo.Update(ctx, intake); err != nil {
			return err
		}

		project, err := s.syncProject(ctx, intake, in.Action)
		if err != nil {
			return err
		}

		input := recorder.Input{
			Entity:   event.EntityIntake,
			EntityID: intake.ID,
			ActorID:  actor.UserID,
			Status:   string(intake.Status),
			Message:  comment,
			Metadata: metadata,
		}
		if project != nil {
			input.ProjectID = project.ID
		}
		if _, err := unit.Record(ctx, input); err != nil {
			return err
		}

		result = intake
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Intake transitioned", "intake_id", id, "action", string(in.Action), "status", string(result.Status))
	return result, nil
}

// ResubmitIntake sends a returned intake back to review; only its client may do so
func (s *intakeServiceImpl) ResubmitIntake(ctx context.Context, actor role.Actor, id string, in ResubmitIntakeInput) (*entity.Intake, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var result *entity.Intake
	_, err := s.engine.Run(ctx, func(ctx context.Context, unit *workflow.Unit) error {
		intake, err := s.intakeRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if intake == nil || !s.canView(actor, intake) {
			return apperr.NotFound("intake", id)
		}
		if !intake.IsOwnedBy(actor.UserID) {
			return apperr.Forbidden("only the submitting client can resubmit an intake")
		}
		if err := checkVersion("intake", id, in.Version, intake.Version); err != nil {
			return err
		}

		machine, err := workflow.BuildIntakeMachine(intake.Status)
		if err != nil {
			return err
		}
		transition, err := workflow.Fire(ctx, machine, domainwf.TriggerResubmit)
		if err != nil {
			return err
		}

		intake.Status = entity.IntakeStatus(transition.To)
		intake.MissingFields = []string{}
		intake.UpdatedAt = s.now()
		if in.Notes != "" {
			intake.Notes = in.Notes
		}
		for k, v := range in.FormData {
			if intake.FormData == nil {
				intake.FormData = map[string]interface{}{}
			}
			intake.FormData[k] = v
		}

		if err := s.intakeRepo.Update(ctx, intake); err != nil {
			return err
		}
		project, err := s.syncProject(ctx, intake, "")
		if err != nil {
			return err
		}

		input := recorder.Input{
			Entity:   event.EntityIntake,
			EntityID: intake.ID,
			ActorID:  actor.UserID,
			Status:   string(intake.Status),
			Message:  "Intake resubmitted",
			Metadata: map[string]interface{}{
				"action":         string(domainwf.TriggerResubmit),
				"previousStatus": string(transition.From),
			},
		}
		if project != nil {
			input.ProjectID = project.ID
		}
		if _, err := unit.Record(ctx, input); err != nil {
			return err
		}

		result = intake
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// syncProject mirrors the intake status onto its project
func (s *intakeServiceImpl) syncProject(ctx context.Context, intake *entity.Intake, action IntakeAction) (*entity.Project, error) {
	project, err := s.projectRepo.GetByIntakeID(ctx, intake.ID)
	if err != nil || project == nil {
		return project, err
	}

	project.IntakeStatus = intake.Status
	switch action {
	case IntakeActionApproveForEstimate:
		project.WorkflowPhase = entity.WorkflowPhaseEstimation
	case IntakeActionArchive:
		project.WorkflowPhase = entity.WorkflowPhaseClosed
	}
	project.UpdatedAt = intake.UpdatedAt

	if err := s.projectRepo.Update(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

func (s *intakeServiceImpl) canView(actor role.Actor, intake *entity.Intake) bool {
	return actor.Can(role.ProjectManager) || intake.IsOwnedBy(actor.UserID)
}

func cleanFields(fields []string) []string {
	out := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
