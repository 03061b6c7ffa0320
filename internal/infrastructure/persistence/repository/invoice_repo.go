package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/infrastructure/persistence/sqlite"
)

const invoiceColumns = `
	id, project_id, invoice_number, amount, status, workflow_state,
	issue_date, due_date, sent_at, scheduled_send_at, paid_at,
	validation_summary, validated_at, metadata, created_by_id,
	version, created_at, updated_at`

// InvoiceRepository implements port.InvoiceRepository
type InvoiceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sql.DB, logger *zap.Logger) port.InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new invoice at version 1. A duplicate invoice number is a Conflict.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *entity.Invoice) error {
	metadata, err := encodeJSON(invoice.Metadata)
	if err != nil {
		return err
	}

	invoice.Version = 1
	query := `INSERT INTO invoices (` + invoiceColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		invoice.ID,
		invoice.ProjectID,
		invoice.InvoiceNumber,
		invoice.Amount,
		string(invoice.Status),
		string(invoice.WorkflowState),
		invoice.IssueDate.UTC(),
		invoice.DueDate.UTC(),
		nullableTime(invoice.SentAt),
		nullableTime(invoice.ScheduledSendAt),
		nullableTime(invoice.PaidAt),
		invoice.ValidationSummary,
		nullableTime(invoice.ValidatedAt),
		metadata,
		invoice.CreatedByID,
		invoice.Version,
		invoice.CreatedAt.UTC(),
		invoice.UpdatedAt.UTC(),
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return apperr.Conflict("invoice number %s is already taken", invoice.InvoiceNumber)
		}
		r.logger.Error("Failed to create invoice",
			zap.String("project_id", invoice.ProjectID),
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	return nil
}

// GetByID retrieves an invoice by its ID
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`

	invoice, err := scanInvoice(sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get invoice by ID",
			zap.String("invoice_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	return invoice, nil
}

// Update writes the lifecycle columns when invoice.Version matches, then bumps the version
func (r *InvoiceRepository) Update(ctx context.Context, invoice *entity.Invoice) error {
	metadata, err := encodeJSON(invoice.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE invoices SET
			amount = ?, status = ?, workflow_state = ?, due_date = ?,
			sent_at = ?, scheduled_send_at = ?, paid_at = ?,
			validation_summary = ?, validated_at = ?, metadata = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		invoice.Amount,
		string(invoice.Status),
		string(invoice.WorkflowState),
		invoice.DueDate.UTC(),
		nullableTime(invoice.SentAt),
		nullableTime(invoice.ScheduledSendAt),
		nullableTime(invoice.PaidAt),
		invoice.ValidationSummary,
		nullableTime(invoice.ValidatedAt),
		metadata,
		invoice.UpdatedAt.UTC(),
		invoice.ID,
		invoice.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update invoice",
			zap.String("invoice_id", invoice.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update invoice: %w", err)
	}

	if err := checkVersioned(result, "invoice", invoice.ID); err != nil {
		return err
	}

	invoice.Version++
	return nil
}

// ListByProject returns a project's invoices newest first
func (r *InvoiceRepository) ListByProject(ctx context.Context, projectID string) ([]*entity.Invoice, error) {
	return r.list(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE project_id = ? ORDER BY created_at DESC, id`, projectID)
}

// NextNumberSequence returns 1 + the number of invoices issued in year
func (r *InvoiceRepository) NextNumberSequence(ctx context.Context, year int) (int, error) {
	query := `SELECT COUNT(*) FROM invoices WHERE substr(issue_date, 1, 4) = ?`

	var count int
	err := sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, strconv.Itoa(year)).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count invoices for year",
			zap.Int("year", year),
			zap.Error(err))
		return 0, fmt.Errorf("failed to count invoices: %w", err)
	}

	return count + 1, nil
}

// ListScheduledDue returns scheduled invoices whose send time has passed
func (r *InvoiceRepository) ListScheduledDue(ctx context.Context, now time.Time, limit int) ([]*entity.Invoice, error) {
	invoices, err := r.list(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE workflow_state = ? ORDER BY scheduled_send_at, id`,
		string(entity.InvoiceStateScheduled))
	if err != nil {
		return nil, err
	}

	// timestamps are compared in Go; stored text formats vary in precision
	due := make([]*entity.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv.ScheduledSendAt != nil && !inv.ScheduledSendAt.After(now) {
			due = append(due, inv)
			if len(due) == limitOrDefault(limit) {
				break
			}
		}
	}
	return due, nil
}

// ListSentPastDue returns sent invoices whose due date has passed
func (r *InvoiceRepository) ListSentPastDue(ctx context.Context, now time.Time, limit int) ([]*entity.Invoice, error) {
	invoices, err := r.list(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE status = ? ORDER BY due_date, id`,
		string(entity.InvoiceStatusSent))
	if err != nil {
		return nil, err
	}

	overdue := make([]*entity.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv.IsOverdue(now) {
			overdue = append(overdue, inv)
			if len(overdue) == limitOrDefault(limit) {
				break
			}
		}
	}
	return overdue, nil
}

func (r *InvoiceRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Invoice, error) {
	rows, err := sqlite.GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list invoices", zap.Error(err))
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*entity.Invoice
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, invoice)
	}

	return invoices, rows.Err()
}

func scanInvoice(row rowScanner) (*entity.Invoice, error) {
	var inv entity.Invoice
	var status, state, metadata string
	var sentAt, scheduledAt, paidAt, validatedAt sql.NullTime

	err := row.Scan(
		&inv.ID,
		&inv.ProjectID,
		&inv.InvoiceNumber,
		&inv.Amount,
		&status,
		&state,
		&inv.IssueDate,
		&inv.DueDate,
		&sentAt,
		&scheduledAt,
		&paidAt,
		&inv.ValidationSummary,
		&validatedAt,
		&metadata,
		&inv.CreatedByID,
		&inv.Version,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.Status = entity.InvoiceStatus(status)
	inv.WorkflowState = entity.InvoiceWorkflowState(state)
	inv.IssueDate = inv.IssueDate.UTC()
	inv.DueDate = inv.DueDate.UTC()
	inv.SentAt = timePtr(sentAt)
	inv.ScheduledSendAt = timePtr(scheduledAt)
	inv.PaidAt = timePtr(paidAt)
	inv.ValidatedAt = timePtr(validatedAt)

	if err := decodeJSON(metadata, &inv.Metadata); err != nil {
		return nil, err
	}

	return &inv, nil
}
