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

// TimeLogRepository implements port.TimeLogRepository
type TimeLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTimeLogRepository creates a new time log repository
func NewTimeLogRepository(db *sql.DB, logger *zap.Logger) port.TimeLogRepository {
	return &TimeLogRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a time log; logs are never updated afterwards
func (r *TimeLogRepository) Create(ctx context.Context, log *entity.TimeLog) error {
	query := `
		INSERT INTO time_logs (id, task_id, user_id, hours, date, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		log.ID, log.TaskID, log.UserID, log.Hours, log.Date.UTC(), log.Description, log.CreatedAt.UTC())
	if err != nil {
		r.logger.Error("Failed to create time log",
			zap.String("task_id", log.TaskID),
			zap.Float64("hours", log.Hours),
			zap.Error(err))
		return fmt.Errorf("failed to create time log: %w", err)
	}

	return nil
}

// ListByTaskID returns a task's time logs by date
func (r *TimeLogRepository) ListByTaskID(ctx context.Context, taskID string) ([]*entity.TimeLog, error) {
	query := `
		SELECT id, task_id, user_id, hours, date, description, created_at
		FROM time_logs
		WHERE task_id = ?
		ORDER BY date, id
	`

	rows, err := sqlite.GetExecutor(ctx, r.db).QueryContext(ctx, query, taskID)
	if err != nil {
		r.logger.Error("Failed to list time logs",
			zap.String("task_id", taskID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list time logs: %w", err)
	}
	defer rows.Close()

	var logs []*entity.TimeLog
	for rows.Next() {
		log, err := scanTimeLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan time log: %w", err)
		}
		logs = append(logs, log)
	}

	return logs, rows.Err()
}

func scanTimeLog(row rowScanner) (*entity.TimeLog, error) {
	var l entity.TimeLog
	if err := row.Scan(&l.ID, &l.TaskID, &l.UserID, &l.Hours, &l.Date, &l.Description, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.Date = l.Date.UTC()
	return &l, nil
}
