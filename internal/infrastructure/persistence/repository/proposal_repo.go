package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/infrastructure/persistence/sqlite"
)

const proposalColumns = `
	id, project_id, intake_id, summary, line_items, estimated_hours,
	estimate_amount, selected_modules, status, prepared_by_id,
	sent_at, client_approved_at, client_declined_at, approval_notes,
	version, created_at, updated_at`

// ProposalRepository implements port.ProposalRepository
type ProposalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProposalRepository creates a new proposal repository
func NewProposalRepository(db *sql.DB, logger *zap.Logger) port.ProposalRepository {
	return &ProposalRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts the project's proposal or replaces the existing one.
// The unique project_id keeps a single proposal per project; a replaced row
// must still be at proposal.Version, otherwise Conflict is returned.
func (r *ProposalRepository) Upsert(ctx context.Context, proposal *entity.Proposal) error {
	lineItems, modules, err := encodeProposalColumns(proposal)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO proposals (` + proposalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			summary = excluded.summary,
			line_items = excluded.line_items,
			estimated_hours = excluded.estimated_hours,
			estimate_amount = excluded.estimate_amount,
			selected_modules = excluded.selected_modules,
			status = excluded.status,
			prepared_by_id = excluded.prepared_by_id,
			sent_at = excluded.sent_at,
			approval_notes = excluded.approval_notes,
			version = proposals.version + 1,
			updated_at = excluded.updated_at
		WHERE proposals.version = ?
	`

	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		proposal.ID,
		proposal.ProjectID,
		nullableString(proposal.IntakeID),
		proposal.Summary,
		lineItems,
		proposal.EstimatedHours,
		proposal.EstimateAmount,
		modules,
		string(proposal.Status),
		proposal.PreparedByID,
		nullableTime(proposal.SentAt),
		nullableTime(proposal.ClientApprovedAt),
		nullableTime(proposal.ClientDeclinedAt),
		proposal.ApprovalNotes,
		proposal.CreatedAt.UTC(),
		proposal.UpdatedAt.UTC(),
		proposal.Version,
	)
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return apperr.Conflict("proposal %s already exists", proposal.ID)
		}
		r.logger.Error("Failed to upsert proposal",
			zap.String("project_id", proposal.ProjectID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert proposal: %w", err)
	}

	// the DO UPDATE ... WHERE clause skips stale writers without an error
	if err := checkVersioned(result, "proposal", proposal.ProjectID); err != nil {
		return err
	}

	stored, err := r.GetByProjectID(ctx, proposal.ProjectID)
	if err != nil {
		return err
	}
	if stored != nil {
		proposal.ID = stored.ID
		proposal.Version = stored.Version
		proposal.CreatedAt = stored.CreatedAt
	}
	return nil
}

// GetByProjectID retrieves the proposal of a project
func (r *ProposalRepository) GetByProjectID(ctx context.Context, projectID string) (*entity.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE project_id = ?`

	proposal, err := r.scanProposal(sqlite.GetExecutor(ctx, r.db).QueryRowContext(ctx, query, projectID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get proposal",
			zap.String("project_id", projectID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}

	return proposal, nil
}

// Update records a client response or status change when proposal.Version matches
func (r *ProposalRepository) Update(ctx context.Context, proposal *entity.Proposal) error {
	lineItems, modules, err := encodeProposalColumns(proposal)
	if err != nil {
		return err
	}

	query := `
		UPDATE proposals SET
			summary = ?, line_items = ?, estimated_hours = ?, estimate_amount = ?,
			selected_modules = ?, status = ?, sent_at = ?, client_approved_at = ?,
			client_declined_at = ?, approval_notes = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := sqlite.GetExecutor(ctx, r.db).ExecContext(ctx, query,
		proposal.Summary,
		lineItems,
		proposal.EstimatedHours,
		proposal.EstimateAmount,
		modules,
		string(proposal.Status),
		nullableTime(proposal.SentAt),
		nullableTime(proposal.ClientApprovedAt),
		nullableTime(proposal.ClientDeclinedAt),
		proposal.ApprovalNotes,
		proposal.UpdatedAt.UTC(),
		proposal.ID,
		proposal.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update proposal",
			zap.String("proposal_id", proposal.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update proposal: %w", err)
	}

	if err := checkVersioned(result, "proposal", proposal.ID); err != nil {
		return err
	}

	proposal.Version++
	return nil
}

func (r *ProposalRepository) scanProposal(row rowScanner) (*entity.Proposal, error) {
	var p entity.Proposal
	var intakeID sql.NullString
	var status, lineItems, modules string
	var sentAt, approvedAt, declinedAt sql.NullTime

	err := row.Scan(
		&p.ID,
		&p.ProjectID,
		&intakeID,
		&p.Summary,
		&lineItems,
		&p.EstimatedHours,
		&p.EstimateAmount,
		&modules,
		&status,
		&p.PreparedByID,
		&sentAt,
		&approvedAt,
		&declinedAt,
		&p.ApprovalNotes,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.IntakeID = stringPtr(intakeID)
	p.Status = entity.ProposalStatus(status)
	p.SentAt = timePtr(sentAt)
	p.ClientApprovedAt = timePtr(approvedAt)
	p.ClientDeclinedAt = timePtr(declinedAt)

	if err := decodeJSON(lineItems, &p.LineItems); err != nil {
		return nil, err
	}
	if err := decodeJSON(modules, &p.SelectedModules); err != nil {
		return nil, err
	}

	return &p, nil
}

func encodeProposalColumns(p *entity.Proposal) (lineItems, modules string, err error) {
	items := p.LineItems
	if items == nil {
		items = []entity.ProposalLineItem{}
	}
	if lineItems, err = encodeJSON(items); err != nil {
		return
	}
	selected := p.SelectedModules
	if selected == nil {
		selected = []string{}
	}
	modules, err = encodeJSON(selected)
	return
}
