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

const activityColumns = `id, entity, entity_id, project_id, actor_id, type, text, metadata, created_at`

// ActivityRepository implements port.ActivityRepository
type ActivityRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewActivityRepository creates a new activity log repository
func NewActivityRepository(db *sql.DB, logger *zap.Logger) port.ActivityRepository {
	return &ActivityRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an activity log row; it joins the transaction in ctx if any
func (r *ActivityRepository) Create(ctx context.Context, log *entity.ActivityLog) error {
	metadata, err := encodeJSON(emptyMapIfNil(log.Metadata))
	if err != nil {
		return err
	}

	query := `INSERT INTO activity_logs (` + activityColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		log.ID,
		log.Entity,
		log.EntityID,
		nullableString(log.ProjectID),
		log.ActorID,
		log.Type,
		log.Text,
		metadata,
		log.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create activity log",
			zap.String("entity", log.Entity),
			zap.String("entity_id", log.EntityID),
			zap.String("type", log.Type),
			zap.Error(err))
		return fmt.Errorf("failed to create activity log: %w", err)
	}

	return nil
}

// ListByEntity returns the newest events of one entity
func (r *ActivityRepository) ListByEntity(ctx context.Context, entityName, entityID string, limit int) ([]*entity.ActivityLog, error) {
	query := `SELECT ` + activityColumns + ` FROM activity_logs
		WHERE entity = ? AND entity_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`
	return r.list(ctx, query, entityName, entityID, limitOrDefault(limit))
}

// ListByProject returns the newest events of a project
func (r *ActivityRepository) ListByProject(ctx context.Context, projectID string, limit int) ([]*entity.ActivityLog, error) {
	query := `SELECT ` + activityColumns + ` FROM activity_logs
		WHERE project_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`
	return r.list(ctx, query, projectID, limitOrDefault(limit))
}

func (r *ActivityRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.ActivityLog, error) {
	rows, err := sqlite.GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list activity logs", zap.Error(err))
		return nil, fmt.Errorf("failed to list activity logs: %w", err)
	}
	defer rows.Close()

	var logs []*entity.ActivityLog
	for rows.Next() {
		var l entity.ActivityLog
		var projectID sql.NullString
		var metadata string

		if err := rows.Scan(&l.ID, &l.Entity, &l.EntityID, &projectID, &l.ActorID, &l.Type, &l.Text, &metadata, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity log: %w", err)
		}

		l.ProjectID = stringPtr(projectID)
		if err := decodeJSON(metadata, &l.Metadata); err != nil {
			return nil, err
		}
		logs = append(logs, &l)
	}

	return logs, rows.Err()
}
