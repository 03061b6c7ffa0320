package billing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/garyjia/agency-ops/internal/domain/entity"
)

// SummaryReady is the report summary when nothing blocks billing
const SummaryReady = "All deliverables approved or deferred."

// SummaryProjectNotFound is the report summary for an unknown project
const SummaryProjectNotFound = "Project not found"

// Snapshot is everything the evaluator looks at for one project
type Snapshot struct {
	ProjectID    string
	Deliverables []entity.DeliverableWork
	Files        []entity.FileWithChecklist
	Onboarding   []entity.OnboardingItem
}

// DeliverableStatus is the billing view of one deliverable task
type DeliverableStatus struct {
	TaskID       string            `json:"task_id"`
	Title        string            `json:"title"`
	Status       entity.TaskStatus `json:"status"`
	IsApproved   bool              `json:"is_approved"`
	HasDeferment bool              `json:"has_deferment"`
	TotalHours   float64           `json:"total_hours"`
	LatestNote   string            `json:"latest_note,omitempty"`
}

// FileBlocker is a project file that is not yet approved
type FileBlocker struct {
	FileID         string                    `json:"file_id"`
	FileName       string                    `json:"file_name"`
	Version        int                       `json:"version"`
	ApprovalStatus entity.FileApprovalStatus `json:"approval_status"`
}

// ChecklistBlocker is a review checklist item still pending or in review
type ChecklistBlocker struct {
	ItemID   string                 `json:"item_id"`
	FileID   string                 `json:"file_id"`
	FileName string                 `json:"file_name"`
	Label    string                 `json:"label"`
	Status   entity.ChecklistStatus `json:"status"`
}

// Report itemizes every blocker at once; no category hides another
type Report struct {
	ProjectID              string                  `json:"project_id"`
	Ready                  bool                    `json:"ready"`
	Summary                string                  `json:"summary"`
	Deliverables           []DeliverableStatus     `json:"deliverables"`
	BlockingDeliverables   []DeliverableStatus     `json:"blocking_deliverables"`
	BlockingChecklistItems []ChecklistBlocker      `json:"blocking_checklist_items"`
	BlockingFiles          []FileBlocker           `json:"blocking_files"`
	MissingTaskIDs         []string                `json:"missing_task_ids"`
	PendingOnboarding      []entity.OnboardingItem `json:"pending_onboarding"`
}

// BlockerCount is the number of items requiring attention across all categories
func (r *Report) BlockerCount() int {
	return len(r.BlockingDeliverables) +
		len(r.BlockingChecklistItems) +
		len(r.BlockingFiles) +
		len(r.MissingTaskIDs) +
		len(r.PendingOnboarding)
}

func newReport(projectID string) *Report {
	return &Report{
		ProjectID:              projectID,
		Deliverables:           []DeliverableStatus{},
		BlockingDeliverables:   []DeliverableStatus{},
		BlockingChecklistItems: []ChecklistBlocker{},
		BlockingFiles:          []FileBlocker{},
		MissingTaskIDs:         []string{},
		PendingOnboarding:      []entity.OnboardingItem{},
	}
}

// NotFoundReport is returned for a project that does not exist
func NotFoundReport(projectID string) *Report {
	r := newReport(projectID)
	r.Summary = SummaryProjectNotFound
	return r
}

// Evaluate aggregates a project snapshot into a readiness verdict.
// It is pure: the same snapshot always yields an equal report.
func Evaluate(s Snapshot) *Report {
	r := newReport(s.ProjectID)

	for _, work := range s.Deliverables {
		if !work.Task.IsDeliverable {
			continue
		}

		status := DeliverableStatus{
			TaskID:       work.Task.ID,
			Title:        work.Task.Title,
			Status:       work.Task.Status,
			IsApproved:   work.Task.Status == entity.TaskStatusClientApproved,
			HasDeferment: len(work.Deferments) > 0,
			TotalHours:   sumHours(work.TimeLogs),
		}
		if work.LatestHistory != nil {
			status.LatestNote = work.LatestHistory.Note
		}

		r.Deliverables = append(r.Deliverables, status)

		if !status.IsApproved && !status.HasDeferment {
			r.BlockingDeliverables = append(r.BlockingDeliverables, status)
		}
		if status.TotalHours == 0 {
			r.MissingTaskIDs = append(r.MissingTaskIDs, status.TaskID)
		}
	}

	for _, f := range s.Files {
		if f.File.ApprovalStatus != entity.FileApprovalApproved {
			r.BlockingFiles = append(r.BlockingFiles, FileBlocker{
				FileID:         f.File.ID,
				FileName:       f.File.FileName,
				Version:        f.File.Version,
				ApprovalStatus: f.File.ApprovalStatus,
			})
		}

		for _, item := range f.Checklist {
			if item.Status.IsBlocking() {
				r.BlockingChecklistItems = append(r.BlockingChecklistItems, ChecklistBlocker{
					ItemID:   item.ID,
					FileID:   f.File.ID,
					FileName: f.File.FileName,
					Label:    item.Label,
					Status:   item.Status,
				})
			}
		}
	}

	for _, item := range s.Onboarding {
		if item.IsPending() {
			r.PendingOnboarding = append(r.PendingOnboarding, item)
		}
	}

	r.Ready = len(r.BlockingDeliverables)+len(r.BlockingChecklistItems)+len(r.BlockingFiles) == 0 &&
		len(r.MissingTaskIDs) == 0 &&
		len(r.PendingOnboarding) == 0

	if r.Ready {
		r.Summary = SummaryReady
	} else {
		r.Summary = attentionSummary(r.BlockerCount())
	}

	return r
}

func attentionSummary(n int) string {
	if n == 1 {
		return "1 item requires attention before billing."
	}
	return fmt.Sprintf("%d items require attention before billing.", n)
}

func sumHours(logs []entity.TimeLog) float64 {
	total := decimal.Zero
	for _, l := range logs {
		total = total.Add(decimal.NewFromFloat(l.Hours))
	}
	f, _ := total.Float64()
	return f
}
