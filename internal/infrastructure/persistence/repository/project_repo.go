package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/infrastructure/persistence/sqlite"
)

const projectColumns = `
	id, client_id, intake_id, project_manager_id, name, status,
	intake_status, workflow_phase, workflow_metadata,
	start_date, end_date, version, created_at, updated_at`

// ProjectRepository implements port.ProjectRepository
type ProjectRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *sql.DB, logger *zap.Logger) port.ProjectRepository {
	return &ProjectRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new project at version 1
func (r *ProjectRepository) Create(ctx context.Context, project *entity.Project) error {
	metadata, err := encodeJSON(project.WorkflowMetadata)
	if err != nil {
		return err
	}

	project.Version = 1
	query := `INSERT INTO projects (` + projectColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		project.ID,
		project.ClientID,
		nullableString(project.IntakeID),
		nullableString(project.ProjectManagerID),
		project.Name,
		string(project.Status),
		string(project.IntakeStatus),
		string(project.WorkflowPhase),
		metadata,
		nullableTime(project.StartDate),
		nullableTime(project.EndDate),
		project.Version,
		project.CreatedAt.UTC(),
		project.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create project",
			zap.String("project_id", project.ID),
			zap.Error(err))
		return fmt.Errorf("failed to create project: %w", err)
	}

	return nil
}

// GetByID retrieves a project by its ID
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*entity.Project, error) {
	return r.getOne(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
}

// GetByIntakeID retrieves the project created for an intake
func (r *ProjectRepository) GetByIntakeID(ctx context.Context, intakeID string) (*entity.Project, error) {
	return r.getOne(ctx, `SELECT `+projectColumns+` FROM projects WHERE intake_id = ?`, intakeID)
}

func (r *ProjectRepository) getOne(ctx context.Context, query string, key string) (*entity.Project, error) {
	project, err := r.scanProject(sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get project",
			zap.String("key", key),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

// Update writes every mutable column when project.Version matches, then bumps the version
func (r *ProjectRepository) Update(ctx context.Context, project *entity.Project) error {
	metadata, err := encodeJSON(project.WorkflowMetadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE projects SET
			project_manager_id = ?, name = ?, status = ?, intake_status = ?,
			workflow_phase = ?, workflow_metadata = ?, start_date = ?, end_date = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		nullableString(project.ProjectManagerID),
		project.Name,
		string(project.Status),
		string(project.IntakeStatus),
		string(project.WorkflowPhase),
		metadata,
		nullableTime(project.StartDate),
		nullableTime(project.EndDate),
		project.UpdatedAt.UTC(),
		project.ID,
		project.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update project",
			zap.String("project_id", project.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update project: %w", err)
	}

	if err := checkVersioned(result, "project", project.ID); err != nil {
		return err
	}

	project.Version++
	return nil
}

// List returns projects newest first, optionally for one client
func (r *ProjectRepository) List(ctx context.Context, filter entity.ProjectFilter) ([]*entity.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	var args []interface{}

	if filter.ClientID != "" {
		query += ` WHERE client_id = ?`
		args = append(args, filter.ClientID)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limitOrDefault(filter.Limit), filter.Offset)

	rows, err := sqlite.GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list projects", zap.Error(err))
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*entity.Project
	for rows.Next() {
		project, err := r.scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}

	return projects, rows.Err()
}

func (r *ProjectRepository) scanProject(row rowScanner) (*entity.Project, error) {
	var project entity.Project
	var intakeID, managerID sql.NullString
	var status, intakeStatus, phase, metadata string
	var startDate, endDate sql.NullTime

	err := row.Scan(
		&project.ID,
		&project.ClientID,
		&intakeID,
		&managerID,
		&project.Name,
		&status,
		&intakeStatus,
		&phase,
		&metadata,
		&startDate,
		&endDate,
		&project.Version,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	project.IntakeID = stringPtr(intakeID)
	project.ProjectManagerID = stringPtr(managerID)
	project.Status = entity.ProjectStatus(status)
	project.IntakeStatus = entity.IntakeStatus(intakeStatus)
	project.WorkflowPhase = entity.WorkflowPhase(phase)
	project.StartDate = timePtr(startDate)
	project.EndDate = timePtr(endDate)

	if err := decodeJSON(metadata, &project.WorkflowMetadata); err != nil {
		return nil, err
	}

	return &project, nil
}
