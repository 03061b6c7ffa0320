package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/garyjia/agency-ops/internal/domain/billing"
)

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// PrintJSON writes v as indented JSON
func PrintJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RenderReadiness prints the deliverable table followed by every blocker
func RenderReadiness(w io.Writer, r *billing.Report) {
	fmt.Fprintf(w, "Project %s: %s\n", r.ProjectID, r.Summary)

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Task", "Title", "Status", "Approved", "Deferred", "Hours"})
	for _, d := range r.Deliverables {
		tw.AppendRow(table.Row{d.TaskID, d.Title, d.Status, yesNo(d.IsApproved), yesNo(d.HasDeferment), fmt.Sprintf("%.2f", d.TotalHours)})
	}
	tw.Render()

	if r.Ready {
		return
	}

	blockers := table.NewWriter()
	blockers.SetOutputMirror(w)
	blockers.SetTitle(fmt.Sprintf("%d blocker(s)", r.BlockerCount()))
	blockers.AppendHeader(table.Row{"Kind", "ID", "Detail", "Status"})
	for _, d := range r.BlockingDeliverables {
		blockers.AppendRow(table.Row{"deliverable", d.TaskID, d.Title, d.Status})
	}
	for _, id := range r.MissingTaskIDs {
		blockers.AppendRow(table.Row{"missing task", id, "", ""})
	}
	for _, f := range r.BlockingFiles {
		blockers.AppendRow(table.Row{"file", f.FileID, fmt.Sprintf("%s v%d", f.FileName, f.Version), f.ApprovalStatus})
	}
	for _, c := range r.BlockingChecklistItems {
		blockers.AppendRow(table.Row{"checklist", c.ItemID, fmt.Sprintf("%s: %s", c.FileName, c.Label), c.Status})
	}
	for _, o := range r.PendingOnboarding {
		blockers.AppendRow(table.Row{"onboarding", o.ID, o.Label, o.Status})
	}
	blockers.Render()
}

// RenderValidation prints the verdict and the numbered recommendations
func RenderValidation(w io.Writer, v *billing.Validation) {
	verdict := "NOT READY"
	if v.Ready {
		verdict = "READY"
	}
	fmt.Fprintf(w, "%s: %s\n", verdict, v.Summary)

	if len(v.Recommendations) == 0 {
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"#", "Recommendation"})
	for i, rec := range v.Recommendations {
		tw.AppendRow(table.Row{i + 1, rec})
	}
	tw.Render()
}
