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

const fileColumns = `id, project_id, file_name, version, approval_status, uploaded_by_id, created_at, updated_at`

const checklistColumns = `id, file_id, label, status, note, updated_by, updated_at`

// FileRepository implements port.FileRepository
type FileRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFileRepository creates a new file repository
func NewFileRepository(db *sql.DB, logger *zap.Logger) port.FileRepository {
	return &FileRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new file record
func (r *FileRepository) Create(ctx context.Context, file *entity.File) error {
	query := `INSERT INTO files (` + fileColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		file.ID,
		file.ProjectID,
		file.FileName,
		file.Version,
		string(file.ApprovalStatus),
		file.UploadedByID,
		file.CreatedAt.UTC(),
		file.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create file",
			zap.String("project_id", file.ProjectID),
			zap.String("file_name", file.FileName),
			zap.Error(err))
		return fmt.Errorf("failed to create file: %w", err)
	}

	return nil
}

// GetByID retrieves a file by its ID
func (r *FileRepository) GetByID(ctx context.Context, id string) (*entity.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = ?`

	file, err := scanFile(sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get file by ID",
			zap.String("file_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return file, nil
}

// UpdateApprovalStatus sets the approval status of a file
func (r *FileRepository) UpdateApprovalStatus(ctx context.Context, id string, status entity.FileApprovalStatus) error {
	query := `UPDATE files SET approval_status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query, string(status), id)
	if err != nil {
		r.logger.Error("Failed to update file approval status",
			zap.String("file_id", id),
			zap.Error(err))
		return fmt.Errorf("failed to update file approval status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("file not found: %s", id)
	}

	return nil
}

// AppendApproval adds an entry to the file's review trail
func (r *FileRepository) AppendApproval(ctx context.Context, a *entity.FileApproval) error {
	query := `
		INSERT INTO file_approvals (id, file_id, actor_id, status, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		a.ID, a.FileID, a.ActorID, string(a.Status), a.Note, a.CreatedAt.UTC())
	if err != nil {
		r.logger.Error("Failed to append file approval",
			zap.String("file_id", a.FileID),
			zap.Error(err))
		return fmt.Errorf("failed to append file approval: %w", err)
	}

	return nil
}

// ListApprovals returns a file's review trail oldest first
func (r *FileRepository) ListApprovals(ctx context.Context, fileID string) ([]*entity.FileApproval, error) {
	query := `
		SELECT id, file_id, actor_id, status, note, created_at
		FROM file_approvals WHERE file_id = ? ORDER BY created_at, rowid
	`

	rows, err := sqlite.GetExecutor(ctx, r.db).QueryContext(ctx, query, fileID)
	if err != nil {
		r.logger.Error("Failed to list file approvals",
			zap.String("file_id", fileID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list file approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*entity.FileApproval
	for rows.Next() {
		var a entity.FileApproval
		var status string
		if err := rows.Scan(&a.ID, &a.FileID, &a.ActorID, &status, &a.Note, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan file approval: %w", err)
		}
		a.Status = entity.FileApprovalStatus(status)
		approvals = append(approvals, &a)
	}

	return approvals, rows.Err()
}

// CreateChecklistItem inserts a review checklist item
func (r *FileRepository) CreateChecklistItem(ctx context.Context, item *entity.FileReviewChecklistItem) error {
	query := `INSERT INTO file_review_checklist_items (` + checklistColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		item.ID, item.FileID, item.Label, string(item.Status), item.Note, item.UpdatedBy, item.UpdatedAt.UTC())
	if err != nil {
		r.logger.Error("Failed to create checklist item",
			zap.String("file_id", item.FileID),
			zap.Error(err))
		return fmt.Errorf("failed to create checklist item: %w", err)
	}

	return nil
}

// GetChecklistItem retrieves a checklist item by its ID
func (r *FileRepository) GetChecklistItem(ctx context.Context, id string) (*entity.FileReviewChecklistItem, error) {
	query := `SELECT ` + checklistColumns + ` FROM file_review_checklist_items WHERE id = ?`

	item, err := scanChecklistItem(sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get checklist item",
			zap.String("item_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get checklist item: %w", err)
	}

	return item, nil
}

// UpdateChecklistItem writes the status and note of a checklist item
func (r *FileRepository) UpdateChecklistItem(ctx context.Context, item *entity.FileReviewChecklistItem) error {
	query := `
		UPDATE file_review_checklist_items
		SET status = ?, note = ?, updated_by = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		string(item.Status), item.Note, item.UpdatedBy, item.UpdatedAt.UTC(), item.ID)
	if err != nil {
		r.logger.Error("Failed to update checklist item",
			zap.String("item_id", item.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update checklist item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("checklist item not found: %s", item.ID)
	}

	return nil
}

// ListWithChecklists loads all files of a project with their checklists
func (r *FileRepository) ListWithChecklists(ctx context.Context, projectID string) ([]entity.FileWithChecklist, error) {
	exec := sqlite.GetExecutor(ctx, r.db)

	rows, err := exec.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		r.logger.Error("Failed to list files",
			zap.String("project_id", projectID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	files := []entity.FileWithChecklist{}
	index := make(map[string]int)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		index[file.ID] = len(files)
		files = append(files, entity.FileWithChecklist{File: *file, Checklist: []entity.FileReviewChecklistItem{}})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(files) == 0 {
		return files, nil
	}

	itemRows, err := exec.QueryContext(ctx, `
		SELECT c.id, c.file_id, c.label, c.status, c.note, c.updated_by, c.updated_at
		FROM file_review_checklist_items c
		JOIN files f ON f.id = c.file_id
		WHERE f.project_id = ?
		ORDER BY c.rowid
	`, projectID)
	if err != nil {
		r.logger.Error("Failed to list checklist items",
			zap.String("project_id", projectID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list checklist items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		item, err := scanChecklistItem(itemRows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checklist item: %w", err)
		}
		if i, ok := index[item.FileID]; ok {
			files[i].Checklist = append(files[i].Checklist, *item)
		}
	}

	return files, itemRows.Err()
}

func scanFile(row rowScanner) (*entity.File, error) {
	var f entity.File
	var status string

	err := row.Scan(&f.ID, &f.ProjectID, &f.FileName, &f.Version, &status, &f.UploadedByID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}

	f.ApprovalStatus = entity.FileApprovalStatus(status)
	return &f, nil
}

func scanChecklistItem(row rowScanner) (*entity.FileReviewChecklistItem, error) {
	var item entity.FileReviewChecklistItem
	var status string

	err := row.Scan(&item.ID, &item.FileID, &item.Label, &status, &item.Note, &item.UpdatedBy, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	item.Status = entity.ChecklistStatus(status)
	return &item, nil
}
