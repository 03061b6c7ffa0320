package entity

import "time"

// File is an uploaded deliverable artifact awaiting client approval
type File struct {
	ID             string             `json:"id"`
	ProjectID      string             `json:"project_id"`
	FileName       string             `json:"file_name"`
	Version        int                `json:"version"`
	ApprovalStatus FileApprovalStatus `json:"approval_status"`
	UploadedByID   string             `json:"uploaded_by_id"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// FileReviewChecklistItem is one review criterion of a file
type FileReviewChecklistItem struct {
	ID        string          `json:"id"`
	FileID    string          `json:"file_id"`
	Label     string          `json:"label"`
	Status    ChecklistStatus `json:"status"`
	Note      string          `json:"note"`
	UpdatedBy string          `json:"updated_by"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// FileApproval is an entry of a file's append-only review trail
type FileApproval struct {
	ID        string             `json:"id"`
	FileID    string             `json:"file_id"`
	ActorID   string             `json:"actor_id"`
	Status    FileApprovalStatus `json:"status"`
	Note      string             `json:"note"`
	CreatedAt time.Time          `json:"created_at"`
}

// FileWithChecklist bundles a file with its review checklist
type FileWithChecklist struct {
	File      File                      `json:"file"`
	Checklist []FileReviewChecklistItem `json:"checklist"`
}
