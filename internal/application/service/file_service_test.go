package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/domain/event"
)

func TestFileService_RegisterAndReview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	project := h.deliveryProject(t)

	_, err := h.files.RegisterFile(ctx, client, project.ID, RegisterFileInput{FileName: "mockup.fig"})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = h.files.RegisterFile(ctx, developer, project.ID, RegisterFileInput{FileName: " "})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	registered, err := h.files.RegisterFile(ctx, developer, project.ID, RegisterFileInput{
		FileName:  "mockup.fig",
		Checklist: []string{"Brand colours", "", "Copy reviewed"},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.FileApprovalPending, registered.File.ApprovalStatus)
	assert.Equal(t, 1, registered.File.Version)
	require.Len(t, registered.Checklist, 2)
	assert.Equal(t, entity.ChecklistStatusPending, registered.Checklist[0].Status)
	assert.Len(t, h.sink.withStatus(event.StatusRegistered), 1)

	_, err = h.files.ReviewFile(ctx, developer, registered.File.ID, ReviewFileInput{Status: entity.FileApprovalApproved})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = h.files.ReviewFile(ctx, client, registered.File.ID, ReviewFileInput{Status: entity.FileApprovalPending})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = h.files.ReviewFile(ctx, client, registered.File.ID, ReviewFileInput{Status: entity.FileApprovalChangesRequested})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "changes need a note")

	_, err = h.files.ReviewFile(ctx, client, registered.File.ID, ReviewFileInput{
		Status: entity.FileApprovalChangesRequested,
		Note:   "Logo too small",
	})
	require.NoError(t, err)

	reviewed, err := h.files.ReviewFile(ctx, client, registered.File.ID, ReviewFileInput{Status: entity.FileApprovalApproved})
	require.NoError(t, err)
	assert.Equal(t, entity.FileApprovalApproved, reviewed.ApprovalStatus)

	approvals, err := h.fileRepo.ListApprovals(ctx, registered.File.ID)
	require.NoError(t, err)
	require.Len(t, approvals, 2)
	assert.Equal(t, entity.FileApprovalChangesRequested, approvals[0].Status)
	assert.Equal(t, entity.FileApprovalApproved, approvals[1].Status)

	_, err = h.files.ReviewFile(ctx, stranger, registered.File.ID, ReviewFileInput{Status: entity.FileApprovalApproved})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestFileService_UpdateChecklistItem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	project := h.deliveryProject(t)

	registered, err := h.files.RegisterFile(ctx, developer, project.ID, RegisterFileInput{
		FileName:  "copy.docx",
		Checklist: []string{"Legal review"},
	})
	require.NoError(t, err)
	itemID := registered.Checklist[0].ID

	for _, note := range []string{"", "   \t"} {
		_, err = h.files.UpdateChecklistItem(ctx, manager, itemID, UpdateChecklistItemInput{
			Status: entity.ChecklistStatusDeferred,
			Note:   note,
		})
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	}

	stored, err := h.fileRepo.GetChecklistItem(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, entity.ChecklistStatusPending, stored.Status, "a rejected deferment is never persisted")
	assert.Empty(t, h.sink.withStatus(event.StatusChecklistUpdate))

	_, err = h.files.UpdateChecklistItem(ctx, manager, itemID, UpdateChecklistItemInput{Status: "SKIPPED"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = h.files.UpdateChecklistItem(ctx, manager, "missing", UpdateChecklistItemInput{Status: entity.ChecklistStatusComplete})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	item, err := h.files.UpdateChecklistItem(ctx, manager, itemID, UpdateChecklistItemInput{
		Status: entity.ChecklistStatusDeferred,
		Note:   "Legal signs off next sprint",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.ChecklistStatusDeferred, item.Status)
	assert.Equal(t, manager.UserID, item.UpdatedBy)

	events := h.sink.withStatus(event.StatusChecklistUpdate)
	require.Len(t, events, 1)
	assert.Equal(t, string(entity.ChecklistStatusPending), events[0].Metadata["previousStatus"])

	files, err := h.files.ListFiles(ctx, client, project.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, entity.ChecklistStatusDeferred, files[0].Checklist[0].Status)
}
