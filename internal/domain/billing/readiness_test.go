package billing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/agency-ops/internal/domain/entity"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func deliverable(id string, status entity.TaskStatus, hours ...float64) entity.DeliverableWork {
	logs := make([]entity.TimeLog, 0, len(hours))
	for i, h := range hours {
		logs = append(logs, entity.TimeLog{ID: id + "-log-" + string(rune('a'+i)), TaskID: id, Hours: h, Date: day("2026-03-10")})
	}
	return entity.DeliverableWork{
		Task:     entity.Task{ID: id, Title: "Task " + id, Status: status, IsDeliverable: true},
		TimeLogs: logs,
	}
}

func approvedFile(id string, checklist ...entity.ChecklistStatus) entity.FileWithChecklist {
	items := make([]entity.FileReviewChecklistItem, 0, len(checklist))
	for i, s := range checklist {
		items = append(items, entity.FileReviewChecklistItem{ID: id + "-item-" + string(rune('a'+i)), FileID: id, Label: "check", Status: s})
	}
	return entity.FileWithChecklist{
		File:      entity.File{ID: id, FileName: id + ".pdf", Version: 1, ApprovalStatus: entity.FileApprovalApproved},
		Checklist: items,
	}
}

func readySnapshot() Snapshot {
	return Snapshot{
		ProjectID: "p1",
		Deliverables: []entity.DeliverableWork{
			deliverable("t1", entity.TaskStatusClientApproved, 3.5, 2.0),
			deliverable("t2", entity.TaskStatusClientApproved, 1),
		},
		Files: []entity.FileWithChecklist{
			approvedFile("f1", entity.ChecklistStatusComplete, entity.ChecklistStatusDeferred),
		},
		Onboarding: []entity.OnboardingItem{
			{ID: "kickoff", Label: "Kickoff call", Status: entity.OnboardingStatusComplete},
		},
	}
}

func TestEvaluate_AllResolvedIsReady(t *testing.T) {
	r := Evaluate(readySnapshot())

	assert.True(t, r.Ready)
	assert.Equal(t, SummaryReady, r.Summary)
	assert.Len(t, r.Deliverables, 2)
	assert.Empty(t, r.BlockingDeliverables)
	assert.Empty(t, r.BlockingFiles)
	assert.Empty(t, r.BlockingChecklistItems)
	assert.Empty(t, r.MissingTaskIDs)
	assert.Empty(t, r.PendingOnboarding)
	assert.Equal(t, 5.5, r.Deliverables[0].TotalHours)
}

func TestEvaluate_IsIdempotent(t *testing.T) {
	s := readySnapshot()
	s.Deliverables = append(s.Deliverables, deliverable("t3", entity.TaskStatusInProgress))

	first := Evaluate(s)
	second := Evaluate(s)
	assert.Equal(t, first, second)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func TestEvaluate_DefermentUnblocksDeliverable(t *testing.T) {
	s := readySnapshot()
	work := deliverable("t3", entity.TaskStatusReadyForReview, 4)
	work.Deferments = []entity.BillingDeferment{{ID: "d1", TaskID: "t3", Reason: "client on leave"}}
	s.Deliverables = append(s.Deliverables, work)

	r := Evaluate(s)
	assert.True(t, r.Ready)
	assert.True(t, r.Deliverables[2].HasDeferment)
	assert.False(t, r.Deliverables[2].IsApproved)
}

func TestEvaluate_DoneIsNotApproval(t *testing.T) {
	s := readySnapshot()
	s.Deliverables = append(s.Deliverables, deliverable("t3", entity.TaskStatusDone, 2))

	r := Evaluate(s)
	assert.False(t, r.Ready)
	require.Len(t, r.BlockingDeliverables, 1)
	assert.Equal(t, "t3", r.BlockingDeliverables[0].TaskID)
}

func TestEvaluate_ReportsAllBlockersSimultaneously(t *testing.T) {
	s := Snapshot{
		ProjectID: "p1",
		Deliverables: []entity.DeliverableWork{
			deliverable("t1", entity.TaskStatusInProgress), // blocks approval and time logs
			deliverable("t2", entity.TaskStatusClientApproved),
			{Task: entity.Task{ID: "chore", Status: entity.TaskStatusBacklog}}, // not a deliverable
		},
		Files: []entity.FileWithChecklist{
			{
				File: entity.File{ID: "f1", FileName: "mockups.fig", ApprovalStatus: entity.FileApprovalChangesRequested},
				Checklist: []entity.FileReviewChecklistItem{
					{ID: "c1", FileID: "f1", Label: "Brand colors", Status: entity.ChecklistStatusPending},
					{ID: "c2", FileID: "f1", Label: "Copy", Status: entity.ChecklistStatusInReview},
					{ID: "c3", FileID: "f1", Label: "Spacing", Status: entity.ChecklistStatusComplete},
				},
			},
		},
		Onboarding: []entity.OnboardingItem{
			{ID: "contract", Status: entity.OnboardingStatusPending},
			{ID: "legacy"},
		},
	}

	r := Evaluate(s)

	assert.False(t, r.Ready)
	assert.Len(t, r.Deliverables, 2)
	require.Len(t, r.BlockingDeliverables, 1)
	assert.Equal(t, "t1", r.BlockingDeliverables[0].TaskID)
	assert.ElementsMatch(t, []string{"t1", "t2"}, r.MissingTaskIDs)
	require.Len(t, r.BlockingFiles, 1)
	assert.Equal(t, entity.FileApprovalChangesRequested, r.BlockingFiles[0].ApprovalStatus)
	require.Len(t, r.BlockingChecklistItems, 2)
	assert.Equal(t, "mockups.fig", r.BlockingChecklistItems[0].FileName)
	require.Len(t, r.PendingOnboarding, 1)
	assert.Equal(t, "contract", r.PendingOnboarding[0].ID)
	assert.Equal(t, 7, r.BlockerCount())
	assert.Equal(t, "7 items require attention before billing.", r.Summary)
}

func TestEvaluate_MissingTimeLogsAloneBlocks(t *testing.T) {
	s := readySnapshot()
	s.Deliverables = []entity.DeliverableWork{deliverable("t1", entity.TaskStatusClientApproved)}

	r := Evaluate(s)
	assert.False(t, r.Ready)
	assert.Empty(t, r.BlockingDeliverables)
	assert.Equal(t, []string{"t1"}, r.MissingTaskIDs)
	assert.Equal(t, "1 item requires attention before billing.", r.Summary)
}

func TestEvaluate_EmptyProjectIsReady(t *testing.T) {
	r := Evaluate(Snapshot{ProjectID: "p1"})
	assert.True(t, r.Ready)
	assert.Equal(t, SummaryReady, r.Summary)
}

func TestNotFoundReport(t *testing.T) {
	r := NotFoundReport("missing")
	assert.False(t, r.Ready)
	assert.Equal(t, SummaryProjectNotFound, r.Summary)
	assert.Empty(t, r.Deliverables)
	assert.NotNil(t, r.BlockingDeliverables)
	assert.NotNil(t, r.MissingTaskIDs)
}

func TestEvaluate_OnboardingLegacyShapes(t *testing.T) {
	var md entity.WorkflowMetadata
	raw := `{
		"theme": "dark",
		"onboardingChecklist": [
			{"id": "a", "label": "Access", "completed": false, "done": true},
			{"id": "b", "label": "Brief", "complete": true},
			{"id": "c", "label": "Call", "done": false},
			{"id": "d", "label": "Docs"}
		]
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &md))

	r := Evaluate(Snapshot{ProjectID: "p1", Onboarding: md.OnboardingChecklist})

	ids := []string{}
	for _, item := range r.PendingOnboarding {
		ids = append(ids, item.ID)
	}
	// "completed" wins over "done"; items with no flags do not block
	assert.Equal(t, []string{"a", "c"}, ids)
	assert.False(t, r.Ready)
}
