package entity

import "time"

// Invoice is a bill for a project's approved work; created only as a draft
type Invoice struct {
	ID                string               `json:"id"`
	ProjectID         string               `json:"project_id"`
	InvoiceNumber     string               `json:"invoice_number"`
	Amount            float64              `json:"amount"`
	Status            InvoiceStatus        `json:"status"`
	WorkflowState     InvoiceWorkflowState `json:"workflow_state"`
	IssueDate         time.Time            `json:"issue_date"`
	DueDate           time.Time            `json:"due_date"`
	SentAt            *time.Time           `json:"sent_at,omitempty"`
	ScheduledSendAt   *time.Time           `json:"scheduled_send_at,omitempty"`
	PaidAt            *time.Time           `json:"paid_at,omitempty"`
	ValidationSummary string               `json:"validation_summary"`
	ValidatedAt       *time.Time           `json:"validated_at,omitempty"`
	Metadata          InvoiceMetadata      `json:"metadata"`
	CreatedByID       string               `json:"created_by_id"`
	Version           int64                `json:"version"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// InvoiceLineItem is one priced deliverable on an invoice
type InvoiceLineItem struct {
	TaskID      string  `json:"task_id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitAmount  float64 `json:"unit_amount"`
	Total       float64 `json:"total"`
}

// InvoiceMetadata keeps the pricing inputs and the validation state at creation time
type InvoiceMetadata struct {
	LineItems   []InvoiceLineItem      `json:"line_items"`
	Hours       float64                `json:"hours"`
	HourlyRate  float64                `json:"hourly_rate"`
	PeriodStart *time.Time             `json:"period_start,omitempty"`
	PeriodEnd   *time.Time             `json:"period_end,omitempty"`
	Notes       string                 `json:"notes,omitempty"`
	Forced      bool                   `json:"forced"`
	Validation  map[string]interface{} `json:"validation"`
}

// IsOverdue reports whether a sent invoice is past its due date
func (i *Invoice) IsOverdue(now time.Time) bool {
	return i.Status == InvoiceStatusSent && now.After(i.DueDate)
}
