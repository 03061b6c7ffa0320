package entity

import "time"

// Intake is a client's initial request for work
type Intake struct {
	ID                    string                 `json:"id"`
	ClientID              string                 `json:"client_id"`
	AssignedAdminID       *string                `json:"assigned_admin_id,omitempty"`
	Status                IntakeStatus           `json:"status"`
	Title                 string                 `json:"title"`
	Notes                 string                 `json:"notes"`
	Checklist             map[string]interface{} `json:"checklist"`
	FormData              map[string]interface{} `json:"form_data"`
	MissingFields         []string               `json:"missing_fields"`
	ReviewComment         string                 `json:"review_comment"`
	SubmittedAt           time.Time              `json:"submitted_at"`
	ApprovedForEstimateAt *time.Time             `json:"approved_for_estimate_at,omitempty"`
	ReturnedAt            *time.Time             `json:"returned_at,omitempty"`
	Version               int64                  `json:"version"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
}

// IsOwnedBy reports whether the intake belongs to the given client user
func (i *Intake) IsOwnedBy(userID string) bool {
	return i.ClientID == userID
}

// IntakeFilter narrows intake listings
type IntakeFilter struct {
	ClientID string
	Status   IntakeStatus
	Limit    int
	Offset   int
}
