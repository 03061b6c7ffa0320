package service

import (
	"context"
	"strings"
	"time"

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

const maxHoursPerLog = 24

// CreateTaskInput describes a new task on a project
type CreateTaskInput struct {
	Title         string              `json:"title"`
	Description   string              `json:"description"`
	Priority      entity.TaskPriority `json:"priority"`
	IsDeliverable bool                `json:"is_deliverable"`
	AssigneeID    *string             `json:"assignee_id"`
	DueDate       *time.Time          `json:"due_date"`
}

// UpdateTaskStatusInput moves a task along its lifecycle
type UpdateTaskStatusInput struct {
	Status entity.TaskStatus `json:"status"`
	Note   string            `json:"note"`
}

// LogTimeInput is an effort record. Date defaults to today.
type LogTimeInput struct {
	Hours       float64    `json:"hours"`
	Date        *time.Time `json:"date"`
	Description string     `json:"description"`
}

// TaskService manages project tasks, their effort and billing deferments
type TaskService interface {
	CreateTask(ctx context.Context, actor role.Actor, projectID string, in CreateTaskInput) (*entity.Task, error)
	ListTasks(ctx context.Context, actor role.Actor, projectID string) ([]*entity.Task, error)
	UpdateTaskStatus(ctx context.Context, actor role.Actor, taskID string, in UpdateTaskStatusInput) (*entity.Task, error)
	LogTime(ctx context.Context, actor role.Actor, taskID string, in LogTimeInput) (*entity.TimeLog, error)
	// DeferBilling excludes a deliverable from the billing gate without client approval
	DeferBilling(ctx context.Context, actor role.Actor, taskID, reason string) (*entity.BillingDeferment, error)
}

type taskServiceImpl struct {
	taskRepo    port.TaskRepository
	timeLogRepo port.TimeLogRepository
	projectRepo port.ProjectRepository
	engine      workflow.Engine
	logger      Logger
	now         Clock
}

// NewTaskService creates a new TaskService
func NewTaskService(
	taskRepo port.TaskRepository,
	timeLogRepo port.TimeLogRepository,
	projectRepo port.ProjectRepository,
	engine workflow.Engine,
	logger Logger,
) TaskService {
	return &taskServiceImpl{
		taskRepo:    taskRepo,
		timeLogRepo: timeLogRepo,
		projectRepo: projectRepo,
		engine:      engine,
		logger:      logger,
		now:         systemClock,
	}
}

func (s *taskServiceImpl) CreateTask(ctx context.Context, actor role.Actor, projectID string, in CreateTaskInput) (*entity.Task, error) {
	if err := requireRole(actor, role.ProjectManager); err != nil {
		return nil, err
	}
	if blank(in.Title) {
		return nil, apperr.Validation("task title is required")
	}
	if in.Priority == "" {
		in.Priority = entity.TaskPriorityMedium
	}
	if !in.Priority.IsValid() {
		return nil, apperr.Validation("invalid task priority %q", in.Priority)
	}

	var result *entity.Task
	_, err := s.engine.Run(ctx, func(ctx context.Context, unit *workflow.Unit) error {
		if _, err := s.loadProject(ctx, projectID); err != nil {
			return err
		}

		now := s.now()
		task := &entity.Task{
			ID:            uuid.NewString(),
			ProjectID:     projectID,
			Title:         strings.TrimSpace(in.Title),
			Description:   in.Description,
			Status:        entity.TaskStatusBacklog,
			Priority:      in.Priority,
			IsDeliverable: in.IsDeliverable,
			AssigneeID:    in.AssigneeID,
			DueDate:       in.DueDate,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.taskRepo.Create(ctx, task); err != nil {
			return err
		}

		_, err := unit.Record(ctx, recorder.Input{
			Entity:    event.EntityTask,
			EntityID:  task.ID,
			ProjectID: projectID,
			ActorID:   actor.UserID,
			Status:    event.StatusCreated,
			Message:   task.Title,
			Metadata: map[string]interface{}{
				"isDeliverable": task.IsDeliverable,
				"priority":      string(task.Priority),
			},
		})
		if err != nil {
			return err
		}

		result = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *taskServiceImpl) ListTasks(ctx context.Context, actor role.Actor, projectID string) ([]*entity.Task, error) {
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

	tasks, err := s.taskRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*entity.Task{}
	}
	return tasks, nil
}

// UpdateTaskStatus applies one lifecycle step and appends it to the task's history.
// Client approval is reserved to the project's client and managers.
func (s *taskServiceImpl) UpdateTaskStatus(ctx context.Context, actor role.Actor, taskID string, in UpdateTaskStatusInput) (*entity.Task, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !in.Status.IsValid() {
		return nil, apperr.Validation("invalid task status %q", in.Status)
	}
	if in.Status != entity.TaskStatusClientApproved {
		if err := requireRole(actor, role.Developer); err != nil {
			return nil, err
		}
	}

	var result *entity.Task
	_, err := s.engine.Run(ctx, func(ctx context.Context, unit *workflow.Unit) error {
		task, project, err := s.loadTask(ctx, actor, taskID)
		if err != nil {
			return err
		}
		if in.Status == entity.TaskStatusClientApproved && !isProjectClientOrManager(actor, project) {
			return apperr.Forbidden("only the project's client or a project manager can approve work")
		}

		machine, err := workflow.BuildTaskMachine(task.Status)
		if err != nil {
			return err
		}
		transition, err := workflow.Fire(ctx, machine, domainwf.TaskTrigger(in.Status))
		if err != nil {
			return err
		}

		now := s.now()
		if err := s.taskRepo.UpdateStatus(ctx, task.ID, in.Status); err != nil {
			return err
		}
		err = s.taskRepo.AppendStatusHistory(ctx, &entity.TaskStatusHistory{
			ID:         uuid.NewString(),
			TaskID:     task.ID,
			FromStatus: entity.TaskStatus(transition.From),
			ToStatus:   in.Status,
			Context:    entity.HistoryContextStatusChange,
			Note:       strings.TrimSpace(in.Note),
			ActorID:    actor.UserID,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}

		task.Status = in.Status
		task.UpdatedAt = now

		_, err = unit.Record(ctx, recorder.Input{
			Entity:    event.EntityTask,
			EntityID:  task.ID,
			ProjectID: task.ProjectID,
			ActorID:   actor.UserID,
			Status:    string(task.Status),
			Message:   strings.TrimSpace(in.Note),
			Metadata: map[string]interface{}{
				"previousStatus": string(transition.From),
				"isDeliverable":  task.IsDeliverable,
			},
		})
		if err != nil {
			return err
		}

		result = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LogTime records effort on a task. Hours must lie in (0, 24] and the date
// may not be after today.
func (s *taskServiceImpl) LogTime(ctx context.Context, actor role.Actor, taskID string, in LogTimeInput) (*entity.TimeLog, error) {
	if err := requireRole(actor, role.Developer); err != nil {
		return nil, err
	}
	if in.Hours <= 0 || in.Hours > maxHoursPerLog {
		return nil, apperr.Validation("hours must be greater than 0 and at most %d", maxHoursPerLog)
	}

	now := s.now()
	date := now
	if in.Date != nil {
		date = in.Date.UTC()
	}
	if civilDate(date).After(civilDate(now)) {
		return nil, apperr.Validation("time cannot be logged for a future date")
	}

	var result *entity.TimeLog
	_, err := s.engine.Run(ctx, func(ctx context.Context, unit *workflow.Unit) error {
		task, _, err := s.loadTask(ctx, actor, taskID)
		if err != nil {
			return err
		}

		log := &entity.TimeLog{
			ID:          uuid.NewString(),
			TaskID:      task.ID,
			UserID:      actor.UserID,
			Hours:       in.Hours,
			Date:        date,
			Description: strings.TrimSpace(in.Description),
			CreatedAt:   now,
		}
		if err := s.timeLogRepo.Create(ctx, log); err != nil {
			return err
		}

		_, err = unit.Record(ctx, recorder.Input{
			Entity:    event.EntityTask,
			EntityID:  task.ID,
			ProjectID: task.ProjectID,
			ActorID:   actor.UserID,
			Status:    event.StatusTimeLogged,
			Message:   log.Description,
			Metadata: map[string]interface{}{
				"timeLogId": log.ID,
				"hours":     log.Hours,
				"date":      log.Date.Format("2006-01-02"),
			},
		})
		if err != nil {
			return err
		}

		result = log
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *taskServiceImpl) DeferBilling(ctx context.Context, actor role.Actor, taskID, reason string) (*entity.BillingDeferment, error) {
	if err := requireRole(actor, role.ProjectManager); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("a reason is required to defer billing")
	}

	var result *entity.BillingDeferment
	_, err := s.engine.Run(ctx, func(ctx context.Context, unit *workflow.Unit) error {
		task, _, err := s.loadTask(ctx, actor, taskID)
		if err != nil {
			return err
		}
		if !task.IsDeliverable {
			return apperr.Validation("only deliverable tasks can have billing deferred")
		}

		now := s.now()
		deferment := &entity.BillingDeferment{
			ID:        uuid.NewString(),
			TaskID:    task.ID,
			ProjectID: task.ProjectID,
			Reason:    reason,
			ActorID:   actor.UserID,
			CreatedAt: now,
		}
		if err := s.taskRepo.CreateDeferment(ctx, deferment); err != nil {
			return err
		}

		// kept in the history for the audit trail; readiness reads the deferment row
		err = s.taskRepo.AppendStatusHistory(ctx, &entity.TaskStatusHistory{
			ID:         uuid.NewString(),
			TaskID:     task.ID,
			FromStatus: task.Status,
			ToStatus:   task.Status,
			Context:    entity.HistoryContextBillingDeferment,
			Note:       reason,
			ActorID:    actor.UserID,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}

		_, err = unit.Record(ctx, recorder.Input{
			Entity:    event.EntityTask,
			EntityID:  task.ID,
			ProjectID: task.ProjectID,
			ActorID:   actor.UserID,
			Status:    event.StatusBillingDeferred,
			Message:   reason,
			Metadata: map[string]interface{}{
				"defermentId": deferment.ID,
				"taskStatus":  string(task.Status),
			},
		})
		if err != nil {
			return err
		}

		result = deferment
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Billing deferred", "task_id", taskID, "project_id", result.ProjectID)
	return result, nil
}

func (s *taskServiceImpl) loadProject(ctx context.Context, projectID string) (*entity.Project, error) {
	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperr.NotFound("project", projectID)
	}
	return project, nil
}

// loadTask returns the task with its project; tasks of projects the actor
// cannot see are reported as missing
func (s *taskServiceImpl) loadTask(ctx context.Context, actor role.Actor, taskID string) (*entity.Task, *entity.Project, error) {
	task, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, nil, err
	}
	if task == nil {
		return nil, nil, apperr.NotFound("task", taskID)
	}

	project, err := s.projectRepo.GetByID(ctx, task.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if project == nil || !canViewProject(actor, project) {
		return nil, nil, apperr.NotFound("task", taskID)
	}
	return task, project, nil
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
