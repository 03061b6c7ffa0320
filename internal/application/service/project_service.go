package service

import (
	"context"
	"strings"

	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/application/recorder"
	"github.com/garyjia/agency-ops/internal/application/workflow"
	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/domain/event"
	"github.com/garyjia/agency-ops/internal/domain/role"
)

const defaultActivityLimit = 50

// UpdateOnboardingInput replaces a project's onboarding checklist
type UpdateOnboardingInput struct {
	Items   []entity.OnboardingItem `json:"items"`
	Version int64                   `json:"version"`
}

// ProjectService exposes projects, their onboarding checklist and activity feed
type ProjectService interface {
	GetProject(ctx context.Context, actor role.Actor, id string) (*entity.Project, error)
	ListProjects(ctx context.Context, actor role.Actor, filter entity.ProjectFilter) ([]*entity.Project, error)
	UpdateOnboarding(ctx context.Context, actor role.Actor, id string, in UpdateOnboardingInput) (*entity.Project, error)
	Activity(ctx context.Context, actor role.Actor, id string, limit int) ([]*entity.ActivityLog, error)
}

type projectServiceImpl struct {
	projectRepo port.ProjectRepository
	engine      workflow.Engine
	recorder    recorder.Recorder
	logger      Logger
	now         Clock
}

// NewProjectService creates a new ProjectService
func NewProjectService(
	projectRepo port.ProjectRepository,
	engine workflow.Engine,
	rec recorder.Recorder,
	logger Logger,
) ProjectService {
	return &projectServiceImpl{
		projectRepo: projectRepo,
		engine:      engine,
		recorder:    rec,
		logger:      logger,
		now:         systemClock,
	}
}

func (s *projectServiceImpl) GetProject(ctx context.Context, actor role.Actor, id string) (*entity.Project, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	project, err := s.projectRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if project == nil || !canViewProject(actor, project) {
		return nil, apperr.NotFound("project", id)
	}
	return project, nil
}

func (s *projectServiceImpl) ListProjects(ctx context.Context, actor role.Actor, filter entity.ProjectFilter) ([]*entity.Project, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.Can(role.Developer) {
		filter.ClientID = actor.UserID
	}

	projects, err := s.projectRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []*entity.Project{}
	}
	return projects, nil
}

// UpdateOnboarding stores the checklist with explicit statuses; other
// workflow metadata is left as it was
func (s *projectServiceImpl) UpdateOnboarding(ctx context.Context, actor role.Actor, id string, in UpdateOnboardingInput) (*entity.Project, error) {
	if err := requireRole(actor, role.ProjectManager); err != nil {
		return nil, err
	}

	items := make([]entity.OnboardingItem, 0, len(in.Items))
	seen := make(map[string]bool, len(in.Items))
	pending := 0
	for i, item := range in.Items {
		item.ID = strings.TrimSpace(item.ID)
		if item.ID == "" {
			return nil, apperr.Validation("onboarding item %d needs an id", i+1)
		}
		if seen[item.ID] {
			return nil, apperr.Validation("duplicate onboarding item %q", item.ID)
		}
		seen[item.ID] = true

		switch item.Status {
		case entity.OnboardingStatusPending:
			pending++
		case entity.OnboardingStatusComplete:
		case "":
			item.Status = entity.OnboardingStatusPending
			pending++
		default:
			return nil, apperr.Validation("invalid onboarding status %q", item.Status)
		}
		items = append(items, item)
	}

	var result *entity.Project
	_, err := s.engine.Run(ctx, func(ctx context.Context, unit *workflow.Unit) error {
		project, err := s.projectRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if project == nil {
			return apperr.NotFound("project", id)
		}
		if err := checkVersion("project", id, in.Version, project.Version); err != nil {
			return err
		}

		project.WorkflowMetadata.OnboardingChecklist = items
		project.UpdatedAt = s.now()
		if err := s.projectRepo.Update(ctx, project); err != nil {
			return err
		}

		_, err = unit.Record(ctx, recorder.Input{
			Entity:    event.EntityProject,
			EntityID:  project.ID,
			ProjectID: project.ID,
			ActorID:   actor.UserID,
			Status:    event.StatusOnboarding,
			Metadata: map[string]interface{}{
				"items":   len(items),
				"pending": pending,
			},
		})
		if err != nil {
			return err
		}

		result = project
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Activity returns the project's workflow events, newest first
func (s *projectServiceImpl) Activity(ctx context.Context, actor role.Actor, id string, limit int) ([]*entity.ActivityLog, error) {
	if _, err := s.GetProject(ctx, actor, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	return s.recorder.ListByProject(ctx, id, limit)
}
