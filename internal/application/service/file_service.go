package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/application/recorder"
	"github.com/garyjia/agency-ops/internal/application/workflow"
	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/domain/event"
	"github.com/garyjia/agency-ops/internal/domain/role"
)

// RegisterFileInput describes an uploaded artifact and its review criteria
type RegisterFileInput struct {
	FileName  string   `json:"file_name"`
	Version   int      `json:"version"`
	Checklist []string `json:"checklist"`
}

// ReviewFileInput is a reviewer's verdict on a file
type ReviewFileInput struct {
	Status entity.FileApprovalStatus `json:"status"`
	Note   string                    `json:"note"`
}

// UpdateChecklistItemInput changes one review criterion
type UpdateChecklistItemInput struct {
	Status entity.ChecklistStatus `json:"status"`
	Note   string                 `json:"note"`
}

// FileService manages deliverable files and their review
type FileService interface {
	RegisterFile(ctx context.Context, actor role.Actor, projectID string, in RegisterFileInput) (*entity.FileWithChecklist, error)
	ListFiles(ctx context.Context, actor role.Actor, projectID string) ([]entity.FileWithChecklist, error)
	ReviewFile(ctx context.Context, actor role.Actor, fileID string, in ReviewFileInput) (*entity.File, error)
	UpdateChecklistItem(ctx context.Context, actor role.Actor, itemID string, in UpdateChecklistItemInput) (*entity.FileReviewChecklistItem, error)
}

type fileServiceImpl struct {
	fileRepo    port.FileRepository
	projectRepo port.ProjectRepository
	engine      workflow.Engine
	logger      Logger
	now         Clock
}

// NewFileService creates a new FileService
func NewFileService(
	fileRepo port.FileRepository,
	projectRepo port.ProjectRepository,
	engine workflow.Engine,
	logger Logger,
) FileService {
	return &fileServiceImpl{
		fileRepo:    fileRepo,
		projectRepo: projectRepo,
		engine:      engine,
		logger:      logger,
		now:         systemClock,
	}
}

func (s *fileServiceImpl) RegisterFile(ctx context.Context, actor role.Actor, projectID string, in RegisterFileInput) (*entity.FileWithChecklist, error) {
	if err := requireRole(actor, role.Developer); err != nil {
		return nil, err
	}
	if blank(in.FileName) {
		return nil, apperr.Validation("file name is required")
	}
	if in.Version < 0 {
		return nil, apperr.Validation("file version cannot be negative")
	}
	if in.Version == 0 {
		in.Version = 1
	}

	var result *entity.FileWithChecklist
	_, err := s.engine.Run(ctx, func(ctx context.Context, unit *workflow.Unit) error {
		project, err := s.projectRepo.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return apperr.NotFound("project", projectID)
		}

		now := s.now()
		file := &entity.File{
			ID:             uuid.NewString(),
			ProjectID:      projectID,
			FileName:       strings.TrimSpace(in.FileName),
			Version:        in.Version,
			ApprovalStatus: entity.FileApprovalPending,
			UploadedByID:   actor.UserID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.fileRepo.Create(ctx, file); err != nil {
			return err
		}

		checklist := make([]entity.FileReviewChecklistItem, 0, len(in.Checklist))
		for _, label := range in.Checklist {
			if blank(label) {
				continue
			}
			item := entity.FileReviewChecklistItem{
				ID:        uuid.NewString(),
				FileID:    file.ID,
				Label:     strings.TrimSpace(label),
				Status:    entity.ChecklistStatusPending,
				UpdatedBy: actor.UserID,
				UpdatedAt: now,
			}
			if err := s.fileRepo.CreateChecklistItem(ctx, &item); err != nil {
				return err
			}
			checklist = append(checklist, item)
		}

		_, err = unit.Record(ctx, recorder.Input{
			Entity:    event.EntityFile,
			EntityID:  file.ID,
			ProjectID: projectID,
			ActorID:   actor.UserID,
			Status:    event.StatusRegistered,
			Message:   file.FileName,
			Metadata: map[string]interface{}{
				"version":        file.Version,
				"checklistItems": len(checklist),
			},
		})
		if err != nil {
			return err
		}

		result = &entity.FileWithChecklist{File: *file, Checklist: checklist}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *fileServiceImpl) ListFiles(ctx context.Context, actor role.Actor, projectID string) ([]entity.FileWithChecklist, error) {
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

	return s.fileRepo.ListWithChecklists(ctx, projectID)
}

// ReviewFile appends the verdict to the file's approval trail and makes it current
func (s *fileServiceImpl) ReviewFile(ctx context.Context, actor role.Actor, fileID string, in ReviewFileInput) (*entity.File, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !in.Status.IsReviewOutcome() {
		return nil, apperr.Validation("invalid review outcome %q", in.Status)
	}
	note := strings.TrimSpace(in.Note)
	if in.Status != entity.FileApprovalApproved && note == "" {
		return nil, apperr.Validation("a note is required when requesting changes or rejecting a file")
	}

	var result *entity.File
	_, err := s.engine.Run(ctx, func(ctx context.Context, unit *workflow.Unit) error {
		file, project, err := s.loadFile(ctx, actor, fileID)
		if err != nil {
			return err
		}
		if !isProjectClientOrManager(actor, project) {
			return apperr.Forbidden("only the project's client or a project manager can review files")
		}

		now := s.now()
		previous := file.ApprovalStatus
		err = s.fileRepo.AppendApproval(ctx, &entity.FileApproval{
			ID:        uuid.NewString(),
			FileID:    file.ID,
			ActorID:   actor.UserID,
			Status:    in.Status,
			Note:      note,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		if err := s.fileRepo.UpdateApprovalStatus(ctx, file.ID, in.Status); err != nil {
			return err
		}

		file.ApprovalStatus = in.Status
		file.UpdatedAt = now

		_, err = unit.Record(ctx, recorder.Input{
			Entity:    event.EntityFile,
			EntityID:  file.ID,
			ProjectID: file.ProjectID,
			ActorID:   actor.UserID,
			Status:    string(in.Status),
			Message:   note,
			Metadata: map[string]interface{}{
				"previousStatus": string(previous),
				"fileName":       file.FileName,
			},
		})
		if err != nil {
			return err
		}

		result = file
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateChecklistItem changes a review criterion. Deferring needs a note.
func (s *fileServiceImpl) UpdateChecklistItem(ctx context.Context, actor role.Actor, itemID string, in UpdateChecklistItemInput) (*entity.FileReviewChecklistItem, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !in.Status.IsValid() {
		return nil, apperr.Validation("invalid checklist status %q", in.Status)
	}
	note := strings.TrimSpace(in.Note)
	if in.Status == entity.ChecklistStatusDeferred && note == "" {
		return nil, apperr.Validation("a note is required to defer a checklist item")
	}

	var result *entity.FileReviewChecklistItem
	_, err := s.engine.Run(ctx, func(ctx context.Context, unit *workflow.Unit) error {
		item, err := s.fileRepo.GetChecklistItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return apperr.NotFound("checklist item", itemID)
		}

		file, _, err := s.loadFile(ctx, actor, item.FileID)
		if err != nil {
			return err
		}

		previous := item.Status
		item.Status = in.Status
		item.Note = note
		item.UpdatedBy = actor.UserID
		item.UpdatedAt = s.now()
		if err := s.fileRepo.UpdateChecklistItem(ctx, item); err != nil {
			return err
		}

		_, err = unit.Record(ctx, recorder.Input{
			Entity:    event.EntityFile,
			EntityID:  file.ID,
			ProjectID: file.ProjectID,
			ActorID:   actor.UserID,
			Status:    event.StatusChecklistUpdate,
			Message:   note,
			Metadata: map[string]interface{}{
				"checklistItemId": item.ID,
				"label":           item.Label,
				"previousStatus":  string(previous),
				"checklistStatus": string(item.Status),
			},
		})
		if err != nil {
			return err
		}

		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *fileServiceImpl) loadFile(ctx context.Context, actor role.Actor, fileID string) (*entity.File, *entity.Project, error) {
	file, err := s.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	if file == nil {
		return nil, nil, apperr.NotFound("file", fileID)
	}

	project, err := s.projectRepo.GetByID(ctx, file.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if project == nil || !canViewProject(actor, project) {
		return nil, nil, apperr.NotFound("file", fileID)
	}
	return file, project, nil
}
