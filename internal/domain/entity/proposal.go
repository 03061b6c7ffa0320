package entity

import "time"

// Proposal is the estimate offered to a client for a project.
// There is at most one proposal per project.
type Proposal struct {
	ID               string             `json:"id"`
	ProjectID        string             `json:"project_id"`
	IntakeID         *string            `json:"intake_id,omitempty"`
	Summary          string             `json:"summary"`
	LineItems        []ProposalLineItem `json:"line_items"`
	EstimatedHours   float64            `json:"estimated_hours"`
	EstimateAmount   float64            `json:"estimate_amount"`
	SelectedModules  []string           `json:"selected_modules"`
	Status           ProposalStatus     `json:"status"`
	PreparedByID     string             `json:"prepared_by_id"`
	SentAt           *time.Time         `json:"sent_at,omitempty"`
	ClientApprovedAt *time.Time         `json:"client_approved_at,omitempty"`
	ClientDeclinedAt *time.Time         `json:"client_declined_at,omitempty"`
	ApprovalNotes    string             `json:"approval_notes"`
	Version          int64              `json:"version"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// ProposalLineItem is one priced module of a proposal
type ProposalLineItem struct {
	ModuleID    string  `json:"module_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Hours       float64 `json:"hours"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"amount"`
}

// IsSent reports whether the proposal is awaiting the client's answer
func (p *Proposal) IsSent() bool {
	return p.Status == ProposalStatusClientApprovalPending
}
