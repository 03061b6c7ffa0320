package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/domain/event"
)

func firstTask(t *testing.T, h *harness, projectID string) *entity.Task {
	t.Helper()

	tasks, err := h.taskRepo.ListByProject(context.Background(), projectID)
	require.NoError(t, err)
	require.NotEmpty(t, tasks)
	return tasks[0]
}

// moveTo walks a task through the lifecycle, approving as the project's client
func moveTo(t *testing.T, h *harness, taskID string, statuses ...entity.TaskStatus) {
	t.Helper()

	for _, status := range statuses {
		actor := developer
		if status == entity.TaskStatusClientApproved {
			actor = client
		}
		_, err := h.tasks.UpdateTaskStatus(context.Background(), actor, taskID, UpdateTaskStatusInput{Status: status})
		require.NoError(t, err, "moving to %s", status)
	}
}

func TestTaskService_CreateTask(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	project := h.deliveryProject(t)

	task, err := h.tasks.CreateTask(ctx, manager, project.ID, CreateTaskInput{Title: "QA pass", IsDeliverable: true})
	require.NoError(t, err)
	assert.Equal(t, entity.TaskStatusBacklog, task.Status)
	assert.Equal(t, entity.TaskPriorityMedium, task.Priority)
	assert.Len(t, h.activityFor(t, event.EntityTask, task.ID), 1)

	_, err = h.tasks.CreateTask(ctx, developer, project.ID, CreateTaskInput{Title: "x"})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = h.tasks.CreateTask(ctx, manager, project.ID, CreateTaskInput{Title: "x", Priority: "SOMEDAY"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = h.tasks.CreateTask(ctx, manager, "missing", CreateTaskInput{Title: "x"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	tasks, err := h.tasks.ListTasks(ctx, client, project.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)

	_, err = h.tasks.ListTasks(ctx, stranger, project.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestTaskService_UpdateTaskStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	project := h.deliveryProject(t)
	task := firstTask(t, h, project.ID)

	_, err := h.tasks.UpdateTaskStatus(ctx, developer, task.ID, UpdateTaskStatusInput{Status: entity.TaskStatusDone})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "backlog cannot jump to done")

	_, err = h.tasks.UpdateTaskStatus(ctx, client, task.ID, UpdateTaskStatusInput{Status: entity.TaskStatusInProgress})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = h.tasks.UpdateTaskStatus(ctx, developer, task.ID, UpdateTaskStatusInput{Status: "SHIPPED"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	updated, err := h.tasks.UpdateTaskStatus(ctx, developer, task.ID, UpdateTaskStatusInput{
		Status: entity.TaskStatusInProgress,
		Note:   "starting",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.TaskStatusInProgress, updated.Status)

	moveTo(t, h, task.ID, entity.TaskStatusReadyForReview)

	_, err = h.tasks.UpdateTaskStatus(ctx, developer, task.ID, UpdateTaskStatusInput{Status: entity.TaskStatusClientApproved})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err), "developers cannot approve on the client's behalf")

	_, err = h.tasks.UpdateTaskStatus(ctx, stranger, task.ID, UpdateTaskStatusInput{Status: entity.TaskStatusClientApproved})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	moveTo(t, h, task.ID, entity.TaskStatusClientApproved)

	history, err := h.taskRepo.ListStatusHistory(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for _, entry := range history {
		assert.Equal(t, entity.HistoryContextStatusChange, entry.Context)
	}

	events := h.sink.withStatus(string(entity.TaskStatusClientApproved))
	require.Len(t, events, 1)
	assert.Equal(t, string(entity.TaskStatusReadyForReview), events[0].Metadata["previousStatus"])
	assert.Equal(t, client.UserID, events[0].ActorID)
}

func TestTaskService_LogTime(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	project := h.deliveryProject(t)
	task := firstTask(t, h, project.ID)
	tomorrow := h.now.Add(24 * time.Hour)
	laterToday := h.now.Add(2 * time.Hour)

	tests := []struct {
		name    string
		in      LogTimeInput
		wantErr bool
	}{
		{"zero hours", LogTimeInput{Hours: 0}, true},
		{"negative hours", LogTimeInput{Hours: -2}, true},
		{"more than a day", LogTimeInput{Hours: 24.5}, true},
		{"future date", LogTimeInput{Hours: 2, Date: &tomorrow}, true},
		{"full day", LogTimeInput{Hours: 24}, false},
		{"later today is still today", LogTimeInput{Hours: 1, Date: &laterToday}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := h.tasks.LogTime(ctx, developer, task.ID, tt.in)
			if tt.wantErr {
				assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, developer.UserID, log.UserID)
		})
	}

	logs, err := h.timeLogRepo.ListByTaskID(ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
	assert.Len(t, h.sink.withStatus(event.StatusTimeLogged), 2)

	_, err = h.tasks.LogTime(ctx, client, task.ID, LogTimeInput{Hours: 1})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestTaskService_DeferBilling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	project := h.deliveryProject(t)
	task := firstTask(t, h, project.ID)

	_, err := h.tasks.DeferBilling(ctx, developer, task.ID, "later")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = h.tasks.DeferBilling(ctx, manager, task.ID, "  ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	internal, err := h.tasks.CreateTask(ctx, manager, project.ID, CreateTaskInput{Title: "Refactor"})
	require.NoError(t, err)
	_, err = h.tasks.DeferBilling(ctx, manager, internal.ID, "not billable")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	deferment, err := h.tasks.DeferBilling(ctx, manager, task.ID, "client on holiday")
	require.NoError(t, err)
	assert.Equal(t, project.ID, deferment.ProjectID)

	work, err := h.taskRepo.ListDeliverableWork(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, work, 1)
	require.Len(t, work[0].Deferments, 1)
	assert.Equal(t, "client on holiday", work[0].Deferments[0].Reason)

	history, err := h.taskRepo.ListStatusHistory(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entity.HistoryContextBillingDeferment, history[0].Context)
	assert.Equal(t, task.Status, history[0].ToStatus)

	assert.Len(t, h.sink.withStatus(event.StatusBillingDeferred), 1)
}
