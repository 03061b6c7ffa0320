package billing

import "fmt"

// Validation is the pre-invoice verdict with remediation steps
type Validation struct {
	Ready           bool     `json:"ready"`
	Summary         string   `json:"summary"`
	Readiness       *Report  `json:"readiness"`
	Recommendations []string `json:"recommendations"`
}

// Validate derives the pre-invoice verdict from a readiness report.
// Recommendations follow a fixed priority order and only appear for unmet conditions.
func Validate(r *Report) *Validation {
	recs := []string{}

	if n := len(r.BlockingDeliverables); n > 0 {
		recs = append(recs, fmt.Sprintf("Finalize or defer %s awaiting client approval.", plural(n, "deliverable")))
	}
	if n := len(r.BlockingFiles); n > 0 {
		recs = append(recs, fmt.Sprintf("Resolve client approval for %s.", plural(n, "file")))
	}
	if n := len(r.BlockingChecklistItems); n > 0 {
		recs = append(recs, fmt.Sprintf("Complete or defer %s.", plural(n, "review checklist item")))
	}
	if n := len(r.MissingTaskIDs); n > 0 {
		recs = append(recs, fmt.Sprintf("Add time logs for %s.", plural(n, "deliverable task")))
	}
	if n := len(r.PendingOnboarding); n > 0 {
		recs = append(recs, fmt.Sprintf("Finish %s.", plural(n, "onboarding checklist item")))
	}

	return &Validation{
		Ready:           r.Ready && len(r.MissingTaskIDs) == 0 && len(r.PendingOnboarding) == 0,
		Summary:         r.Summary,
		Readiness:       r,
		Recommendations: recs,
	}
}

// Snapshot flattens the validation for storage in invoice metadata
func (v *Validation) Snapshot() map[string]interface{} {
	r := v.Readiness
	return map[string]interface{}{
		"ready":                    v.Ready,
		"summary":                  v.Summary,
		"recommendations":          v.Recommendations,
		"blocking_deliverables":    r.BlockingDeliverables,
		"blocking_files":           r.BlockingFiles,
		"blocking_checklist_items": r.BlockingChecklistItems,
		"missing_task_ids":         r.MissingTaskIDs,
		"pending_onboarding":       r.PendingOnboarding,
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
