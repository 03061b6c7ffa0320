package entity

import "time"

// Task is a unit of work on a project. Only deliverable tasks gate billing.
type Task struct {
	ID             string       `json:"id"`
	ProjectID      string       `json:"project_id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	Status         TaskStatus   `json:"status"`
	Priority       TaskPriority `json:"priority"`
	IsDeliverable  bool         `json:"is_deliverable"`
	DeliverableKey *string      `json:"deliverable_key,omitempty"`
	AssigneeID     *string      `json:"assignee_id,omitempty"`
	DueDate        *time.Time   `json:"due_date,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// TimeLog is an immutable effort record against a task
type TimeLog struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	UserID      string    `json:"user_id"`
	Hours       float64   `json:"hours"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// TaskStatusHistory is an append-only record of a task's status changes
type TaskStatusHistory struct {
	ID         string     `json:"id"`
	TaskID     string     `json:"task_id"`
	FromStatus TaskStatus `json:"from_status"`
	ToStatus   TaskStatus `json:"to_status"`
	Context    string     `json:"context"`
	Note       string     `json:"note"`
	ActorID    string     `json:"actor_id"`
	CreatedAt  time.Time  `json:"created_at"`
}

// BillingDeferment excludes a deliverable from the billing gate without client approval
type BillingDeferment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	ProjectID string    `json:"project_id"`
	Reason    string    `json:"reason"`
	ActorID   string    `json:"actor_id"`
	CreatedAt time.Time `json:"created_at"`
}

// DeliverableWork bundles a deliverable task with what readiness needs to judge it
type DeliverableWork struct {
	Task          Task               `json:"task"`
	TimeLogs      []TimeLog          `json:"time_logs"`
	LatestHistory *TaskStatusHistory `json:"latest_history,omitempty"`
	Deferments    []BillingDeferment `json:"deferments"`
}
