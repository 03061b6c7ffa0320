package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/infrastructure/persistence/sqlite"
)

const intakeColumns = `
	id, client_id, assigned_admin_id, status, title, notes,
	checklist, form_data, missing_fields, review_comment,
	submitted_at, approved_for_estimate_at, returned_at,
	version, created_at, updated_at`

// IntakeRepository implements port.IntakeRepository
type IntakeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIntakeRepository creates a new intake repository
func NewIntakeRepository(db *sql.DB, logger *zap.Logger) port.IntakeRepository {
	return &IntakeRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new intake at version 1
func (r *IntakeRepository) Create(ctx context.Context, intake *entity.Intake) error {
	checklist, formData, missing, err := encodeIntakeColumns(intake)
	if err != nil {
		return err
	}

	intake.Version = 1
	query := `INSERT INTO intakes (` + intakeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		intake.ID,
		intake.ClientID,
		nullableString(intake.AssignedAdminID),
		string(intake.Status),
		intake.Title,
		intake.Notes,
		checklist,
		formData,
		missing,
		intake.ReviewComment,
		intake.SubmittedAt.UTC(),
		nullableTime(intake.ApprovedForEstimateAt),
		nullableTime(intake.ReturnedAt),
		intake.Version,
		intake.CreatedAt.UTC(),
		intake.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create intake",
			zap.String("intake_id", intake.ID),
			zap.String("client_id", intake.ClientID),
			zap.Error(err))
		return fmt.Errorf("failed to create intake: %w", err)
	}

	return nil
}

// GetByID retrieves an intake by its ID
func (r *IntakeRepository) GetByID(ctx context.Context, id string) (*entity.Intake, error) {
	query := `SELECT ` + intakeColumns + ` FROM intakes WHERE id = ?`

	intake, err := r.scanIntake(sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get intake by ID",
			zap.String("intake_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get intake: %w", err)
	}

	return intake, nil
}

// Update writes every mutable column when intake.Version matches, then bumps the version
func (r *IntakeRepository) Update(ctx context.Context, intake *entity.Intake) error {
	checklist, formData, missing, err := encodeIntakeColumns(intake)
	if err != nil {
		return err
	}

	query := `
		UPDATE intakes SET
			assigned_admin_id = ?, status = ?, title = ?, notes = ?,
			checklist = ?, form_data = ?, missing_fields = ?, review_comment = ?,
			approved_for_estimate_at = ?, returned_at = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		nullableString(intake.AssignedAdminID),
		string(intake.Status),
		intake.Title,
		intake.Notes,
		checklist,
		formData,
		missing,
		intake.ReviewComment,
		nullableTime(intake.ApprovedForEstimateAt),
		nullableTime(intake.ReturnedAt),
		intake.UpdatedAt.UTC(),
		intake.ID,
		intake.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update intake",
			zap.String("intake_id", intake.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update intake: %w", err)
	}

	if err := checkVersioned(result, "intake", intake.ID); err != nil {
		return err
	}

	intake.Version++
	return nil
}

// List returns intakes newest first, optionally narrowed by client and status
func (r *IntakeRepository) List(ctx context.Context, filter entity.IntakeFilter) ([]*entity.Intake, error) {
	var where []string
	var args []interface{}

	if filter.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + intakeColumns + ` FROM intakes`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY submitted_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limitOrDefault(filter.Limit), filter.Offset)

	rows, err := sqlite.GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list intakes", zap.Error(err))
		return nil, fmt.Errorf("failed to list intakes: %w", err)
	}
	defer rows.Close()

	var intakes []*entity.Intake
	for rows.Next() {
		intake, err := r.scanIntake(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intake: %w", err)
		}
		intakes = append(intakes, intake)
	}

	return intakes, rows.Err()
}

func (r *IntakeRepository) scanIntake(row rowScanner) (*entity.Intake, error) {
	var intake entity.Intake
	var assigned sql.NullString
	var status, checklist, formData, missing string
	var approvedAt, returnedAt sql.NullTime

	err := row.Scan(
		&intake.ID,
		&intake.ClientID,
		&assigned,
		&status,
		&intake.Title,
		&intake.Notes,
		&checklist,
		&formData,
		&missing,
		&intake.ReviewComment,
		&intake.SubmittedAt,
		&approvedAt,
		&returnedAt,
		&intake.Version,
		&intake.CreatedAt,
		&intake.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	intake.AssignedAdminID = stringPtr(assigned)
	intake.Status = entity.IntakeStatus(status)
	intake.ApprovedForEstimateAt = timePtr(approvedAt)
	intake.ReturnedAt = timePtr(returnedAt)

	if err := decodeJSON(checklist, &intake.Checklist); err != nil {
		return nil, err
	}
	if err := decodeJSON(formData, &intake.FormData); err != nil {
		return nil, err
	}
	if err := decodeJSON(missing, &intake.MissingFields); err != nil {
		return nil, err
	}

	return &intake, nil
}

func encodeIntakeColumns(intake *entity.Intake) (checklist, formData, missing string, err error) {
	if checklist, err = encodeJSON(emptyMapIfNil(intake.Checklist)); err != nil {
		return
	}
	if formData, err = encodeJSON(emptyMapIfNil(intake.FormData)); err != nil {
		return
	}
	fields := intake.MissingFields
	if fields == nil {
		fields = []string{}
	}
	missing, err = encodeJSON(fields)
	return
}

func emptyMapIfNil(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
