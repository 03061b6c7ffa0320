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

const taskColumns = `
	id, project_id, title, description, status, priority, is_deliverable,
	deliverable_key, assignee_id, due_date, created_at, updated_at`

// TaskRepository implements port.TaskRepository
type TaskRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *sql.DB, logger *zap.Logger) port.TaskRepository {
	return &TaskRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new task
func (r *TaskRepository) Create(ctx context.Context, task *entity.Task) error {
	query := `INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query, taskArgs(task)...)
	if err != nil {
		r.logger.Error("Failed to create task",
			zap.String("project_id", task.ProjectID),
			zap.String("title", task.Title),
			zap.Error(err))
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// CreateIfAbsent inserts the task unless its deliverable key is already used in the project
func (r *TaskRepository) CreateIfAbsent(ctx context.Context, task *entity.Task) (bool, error) {
	query := `INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, deliverable_key) WHERE deliverable_key IS NOT NULL DO NOTHING`

	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query, taskArgs(task)...)
	if err != nil {
		r.logger.Error("Failed to create deliverable task",
			zap.String("project_id", task.ProjectID),
			zap.Error(err))
		return false, fmt.Errorf("failed to create task: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// GetByID retrieves a task by its ID
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*entity.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`

	task, err := scanTask(sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get task by ID",
			zap.String("task_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return task, nil
}

// ListByProject returns all tasks of a project in creation order
func (r *TaskRepository) ListByProject(ctx context.Context, projectID string) ([]*entity.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE project_id = ? ORDER BY created_at, id`

	rows, err := sqlite.GetExecutor(ctx, r.db).QueryContext(ctx, query, projectID)
	if err != nil {
		r.logger.Error("Failed to list tasks",
			zap.String("project_id", projectID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*entity.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}

// UpdateStatus updates the status of a task
func (r *TaskRepository) UpdateStatus(ctx context.Context, id string, status entity.TaskStatus) error {
	query := `UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query, string(status), id)
	if err != nil {
		r.logger.Error("Failed to update task status",
			zap.String("task_id", id),
			zap.String("status", string(status)),
			zap.Error(err))
		return fmt.Errorf("failed to update task status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task not found: %s", id)
	}

	return nil
}

// AppendStatusHistory appends a status history entry
func (r *TaskRepository) AppendStatusHistory(ctx context.Context, entry *entity.TaskStatusHistory) error {
	query := `
		INSERT INTO task_status_history (id, task_id, from_status, to_status, context, note, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		entry.ID,
		entry.TaskID,
		string(entry.FromStatus),
		string(entry.ToStatus),
		entry.Context,
		entry.Note,
		entry.ActorID,
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to append task status history",
			zap.String("task_id", entry.TaskID),
			zap.Error(err))
		return fmt.Errorf("failed to append task status history: %w", err)
	}

	return nil
}

// ListStatusHistory returns a task's history oldest first
func (r *TaskRepository) ListStatusHistory(ctx context.Context, taskID string) ([]*entity.TaskStatusHistory, error) {
	query := `
		SELECT id, task_id, from_status, to_status, context, note, actor_id, created_at
		FROM task_status_history
		WHERE task_id = ?
		ORDER BY created_at, rowid
	`

	rows, err := sqlite.GetExecutor(ctx, r.db).QueryContext(ctx, query, taskID)
	if err != nil {
		r.logger.Error("Failed to list task status history",
			zap.String("task_id", taskID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list task status history: %w", err)
	}
	defer rows.Close()

	var entries []*entity.TaskStatusHistory
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task status history: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// CreateDeferment records a billing deferment for a task
func (r *TaskRepository) CreateDeferment(ctx context.Context, d *entity.BillingDeferment) error {
	query := `
		INSERT INTO billing_deferments (id, task_id, project_id, reason, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		d.ID, d.TaskID, d.ProjectID, d.Reason, d.ActorID, d.CreatedAt.UTC())
	if err != nil {
		r.logger.Error("Failed to create billing deferment",
			zap.String("task_id", d.TaskID),
			zap.Error(err))
		return fmt.Errorf("failed to create billing deferment: %w", err)
	}

	return nil
}

// ListDeliverableWork loads deliverable tasks with their time logs,
// latest history entry and deferments using one query per collection
func (r *TaskRepository) ListDeliverableWork(ctx context.Context, projectID string) ([]entity.DeliverableWork, error) {
	exec := sqlite.GetExecutor(ctx, r.db)

	rows, err := exec.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE project_id = ? AND is_deliverable = 1 ORDER BY created_at, id`,
		projectID)
	if err != nil {
		r.logger.Error("Failed to list deliverable tasks",
			zap.String("project_id", projectID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list deliverable tasks: %w", err)
	}

	work := []entity.DeliverableWork{}
	index := make(map[string]int)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		index[task.ID] = len(work)
		work = append(work, entity.DeliverableWork{
			Task:       *task,
			TimeLogs:   []entity.TimeLog{},
			Deferments: []entity.BillingDeferment{},
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(work) == 0 {
		return work, nil
	}

	if err := r.attachTimeLogs(ctx, exec, projectID, work, index); err != nil {
		return nil, err
	}
	if err := r.attachLatestHistory(ctx, exec, projectID, work, index); err != nil {
		return nil, err
	}
	if err := r.attachDeferments(ctx, exec, projectID, work, index); err != nil {
		return nil, err
	}

	return work, nil
}

func (r *TaskRepository) attachTimeLogs(ctx context.Context, exec sqlite.Executor, projectID string, work []entity.DeliverableWork, index map[string]int) error {
	rows, err := exec.QueryContext(ctx, `
		SELECT l.id, l.task_id, l.user_id, l.hours, l.date, l.description, l.created_at
		FROM time_logs l
		JOIN tasks t ON t.id = l.task_id
		WHERE t.project_id = ? AND t.is_deliverable = 1
		ORDER BY l.date, l.id
	`, projectID)
	if err != nil {
		return fmt.Errorf("failed to load time logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		log, err := scanTimeLog(rows)
		if err != nil {
			return fmt.Errorf("failed to scan time log: %w", err)
		}
		if i, ok := index[log.TaskID]; ok {
			work[i].TimeLogs = append(work[i].TimeLogs, *log)
		}
	}
	return rows.Err()
}

func (r *TaskRepository) attachLatestHistory(ctx context.Context, exec sqlite.Executor, projectID string, work []entity.DeliverableWork, index map[string]int) error {
	rows, err := exec.QueryContext(ctx, `
		SELECT h.id, h.task_id, h.from_status, h.to_status, h.context, h.note, h.actor_id, h.created_at
		FROM task_status_history h
		JOIN tasks t ON t.id = h.task_id
		WHERE t.project_id = ? AND t.is_deliverable = 1
		ORDER BY h.created_at, h.rowid
	`, projectID)
	if err != nil {
		return fmt.Errorf("failed to load task status history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return fmt.Errorf("failed to scan task status history: %w", err)
		}
		// ascending order, so the last write per task is the latest
		if i, ok := index[entry.TaskID]; ok {
			work[i].LatestHistory = entry
		}
	}
	return rows.Err()
}

func (r *TaskRepository) attachDeferments(ctx context.Context, exec sqlite.Executor, projectID string, work []entity.DeliverableWork, index map[string]int) error {
	rows, err := exec.QueryContext(ctx, `
		SELECT id, task_id, project_id, reason, actor_id, created_at
		FROM billing_deferments
		WHERE project_id = ?
		ORDER BY created_at, id
	`, projectID)
	if err != nil {
		return fmt.Errorf("failed to load billing deferments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d entity.BillingDeferment
		if err := rows.Scan(&d.ID, &d.TaskID, &d.ProjectID, &d.Reason, &d.ActorID, &d.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan billing deferment: %w", err)
		}
		if i, ok := index[d.TaskID]; ok {
			work[i].Deferments = append(work[i].Deferments, d)
		}
	}
	return rows.Err()
}

func taskArgs(task *entity.Task) []interface{} {
	return []interface{}{
		task.ID,
		task.ProjectID,
		task.Title,
		task.Description,
		string(task.Status),
		string(task.Priority),
		task.IsDeliverable,
		nullableString(task.DeliverableKey),
		nullableString(task.AssigneeID),
		nullableTime(task.DueDate),
		task.CreatedAt.UTC(),
		task.UpdatedAt.UTC(),
	}
}

func scanTask(row rowScanner) (*entity.Task, error) {
	var task entity.Task
	var status, priority string
	var deliverableKey, assignee sql.NullString
	var dueDate sql.NullTime

	err := row.Scan(
		&task.ID,
		&task.ProjectID,
		&task.Title,
		&task.Description,
		&status,
		&priority,
		&task.IsDeliverable,
		&deliverableKey,
		&assignee,
		&dueDate,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = entity.TaskStatus(status)
	task.Priority = entity.TaskPriority(priority)
	task.DeliverableKey = stringPtr(deliverableKey)
	task.AssigneeID = stringPtr(assignee)
	task.DueDate = timePtr(dueDate)

	return &task, nil
}

func scanHistory(row rowScanner) (*entity.TaskStatusHistory, error) {
	var h entity.TaskStatusHistory
	var from, to string

	if err := row.Scan(&h.ID, &h.TaskID, &from, &to, &h.Context, &h.Note, &h.ActorID, &h.CreatedAt); err != nil {
		return nil, err
	}

	h.FromStatus = entity.TaskStatus(from)
	h.ToStatus = entity.TaskStatus(to)
	return &h, nil
}
