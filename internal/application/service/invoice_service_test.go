package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/domain/event"
)

func rate(v float64) *float64 {
	return &v
}

func TestInvoiceService_CreateDraftInvoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	project, _ := readyProject(t, h)

	_, err := h.invoices.CreateDraftInvoice(ctx, manager, project.ID, CreateDraftInput{})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "hourly rate is required")

	_, err = h.invoices.CreateDraftInvoice(ctx, manager, project.ID, CreateDraftInput{HourlyRate: rate(math.NaN())})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "a NaN rate is rejected before pricing")

	_, err = h.invoices.CreateDraftInvoice(ctx, manager, project.ID, CreateDraftInput{HourlyRate: rate(math.Inf(1))})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = h.invoices.CreateDraftInvoice(ctx, developer, project.ID, CreateDraftInput{HourlyRate: rate(100)})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	draft, err := h.invoices.CreateDraftInvoice(ctx, manager, project.ID, CreateDraftInput{HourlyRate: rate(100)})
	require.NoError(t, err)

	inv := draft.Invoice
	assert.True(t, draft.Validation.Ready)
	assert.Equal(t, "INV-2026-0001", inv.InvoiceNumber)
	assert.Equal(t, 550.0, inv.Amount)
	assert.Equal(t, entity.InvoiceStatusDraft, inv.Status)
	assert.Equal(t, entity.InvoiceStateReadyToSend, inv.WorkflowState)
	assert.True(t, inv.IssueDate.Equal(h.now))
	assert.True(t, inv.DueDate.Equal(h.now.AddDate(0, 0, 30)))
	assert.False(t, inv.Metadata.Forced)
	assert.Equal(t, 100.0, inv.Metadata.HourlyRate)
	assert.Equal(t, 5.5, inv.Metadata.Hours)
	assert.Equal(t, true, inv.Metadata.Validation["ready"])

	stored, err := h.invoiceRepo.GetByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNumber, stored.InvoiceNumber)
	require.Len(t, stored.Metadata.LineItems, 1)

	events := h.sink.withStatus(event.StatusDraftCreated)
	require.Len(t, events, 1)
	assert.Equal(t, inv.ID, events[0].EntityID)
	assert.Equal(t, project.ID, events[0].ProjectID)

	second, err := h.invoices.CreateDraftInvoice(ctx, manager, project.ID, CreateDraftInput{HourlyRate: rate(0)})
	require.NoError(t, err, "a zero rate is valid")
	assert.Equal(t, "INV-2026-0002", second.Invoice.InvoiceNumber)
	assert.Equal(t, 0.0, second.Invoice.Amount)
}

func TestInvoiceService_NotReadyProject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	project := h.deliveryProject(t)

	_, err := h.invoices.CreateDraftInvoice(ctx, manager, project.ID, CreateDraftInput{HourlyRate: rate(100)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrBillingNotReady))

	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.NotEmpty(t, appErr.Details["summary"])
	assert.Equal(t, []string{
		"Finalize or defer 1 deliverable awaiting client approval.",
		"Add time logs for 1 deliverable task.",
	}, appErr.Details["recommendations"])

	invoices, err := h.invoices.ListInvoices(ctx, manager, project.ID)
	require.NoError(t, err)
	assert.Empty(t, invoices)
	assert.Empty(t, h.sink.withStatus(event.StatusDraftCreated))

	_, err = h.invoices.CreateDraftInvoice(ctx, manager, project.ID, CreateDraftInput{HourlyRate: rate(100), Force: true})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err), "only admins force")

	forced, err := h.invoices.CreateDraftInvoice(ctx, admin, project.ID, CreateDraftInput{HourlyRate: rate(100), Force: true})
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStateAwaitingValidation, forced.Invoice.WorkflowState)
	assert.True(t, forced.Invoice.Metadata.Forced)

	stored, err := h.invoiceRepo.GetByID(ctx, forced.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, false, stored.Metadata.Validation["ready"], "the failing validation is kept")
	assert.NotEmpty(t, stored.Metadata.Validation["recommendations"])
	assert.NotEqual(t, "All deliverables approved or deferred.", stored.ValidationSummary)

	_, err = h.invoices.Send(ctx, manager, forced.Invoice.ID, 0)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "awaiting validation cannot be sent")
}

func TestInvoiceService_Revalidate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	project := h.deliveryProject(t)
	task := firstTask(t, h, project.ID)

	forced, err := h.invoices.CreateDraftInvoice(ctx, admin, project.ID, CreateDraftInput{HourlyRate: rate(90), Force: true})
	require.NoError(t, err)

	again, err := h.invoices.Revalidate(ctx, manager, forced.Invoice.ID, forced.Invoice.Version)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStateAwaitingValidation, again.Invoice.WorkflowState)
	assert.False(t, again.Validation.Ready)

	_, err = h.tasks.DeferBilling(ctx, manager, task.ID, "phase two")
	require.NoError(t, err)
	_, err = h.tasks.LogTime(ctx, developer, task.ID, LogTimeInput{Hours: 2})
	require.NoError(t, err)

	passed, err := h.invoices.Revalidate(ctx, manager, forced.Invoice.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStateReadyToSend, passed.Invoice.WorkflowState)
	assert.Equal(t, true, passed.Invoice.Metadata.Validation["ready"])

	_, err = h.invoices.Revalidate(ctx, manager, forced.Invoice.ID, forced.Invoice.Version)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestInvoiceService_Lifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	project, _ := readyProject(t, h)

	draft, err := h.invoices.CreateDraftInvoice(ctx, manager, project.ID, CreateDraftInput{HourlyRate: rate(100)})
	require.NoError(t, err)
	id := draft.Invoice.ID

	_, err = h.invoices.Schedule(ctx, manager, id, h.now.Add(-time.Minute), 0)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	scheduled, err := h.invoices.Schedule(ctx, manager, id, h.now.Add(2*time.Hour), 0)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStateScheduled, scheduled.WorkflowState)
	require.NotNil(t, scheduled.ScheduledSendAt)

	sent, err := h.invoices.ProcessScheduled(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, sent, "not due yet")

	h.advance(3 * time.Hour)
	sent, err = h.invoices.ProcessScheduled(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	inv, err := h.invoices.GetInvoice(ctx, client, id)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStateSentAndPendingPayment, inv.WorkflowState)
	assert.Equal(t, entity.InvoiceStatusSent, inv.Status)
	assert.NotNil(t, inv.SentAt)
	assert.Nil(t, inv.ScheduledSendAt)

	events := h.sink.eventually(t, string(entity.InvoiceStateSentAndPendingPayment), 1)
	assert.Equal(t, entity.SystemActorID, events[0].ActorID)
	assert.Equal(t, string(entity.InvoiceStateSentAndPendingPayment), events[0].Metadata["status"])
	assert.Equal(t, string(entity.InvoiceStatusSent), events[0].Metadata["paymentStatus"])

	marked, err := h.invoices.MarkOverdue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, marked)

	h.advance(31 * 24 * time.Hour)
	marked, err = h.invoices.MarkOverdue(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	inv, err = h.invoiceRepo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusOverdue, inv.Status)
	h.sink.eventually(t, string(entity.InvoiceStatusOverdue), 1)

	paid, err := h.invoices.MarkPaid(ctx, manager, id, inv.Version)
	require.NoError(t, err)
	assert.Equal(t, entity.InvoiceStatusPaid, paid.Status)
	assert.Equal(t, entity.InvoiceStatePaidAndConfirmed, paid.WorkflowState)
	assert.NotNil(t, paid.PaidAt)

	paidEvents := h.sink.withStatus(string(entity.InvoiceStatePaidAndConfirmed))
	require.Len(t, paidEvents, 1)
	assert.Equal(t, string(entity.InvoiceStatusPaid), paidEvents[0].Metadata["paymentStatus"])
	assert.Equal(t, string(entity.InvoiceStateSentAndPendingPayment), paidEvents[0].Metadata["previousState"])

	_, err = h.invoices.MarkPaid(ctx, manager, id, 0)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = h.invoices.GetInvoice(ctx, stranger, id)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestInvoiceService_ExportInvoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	project, _ := readyProject(t, h)

	draft, err := h.invoices.CreateDraftInvoice(ctx, manager, project.ID, CreateDraftInput{HourlyRate: rate(100)})
	require.NoError(t, err)

	archived := map[string][]byte{}
	h.invoices.archive = &mockStorage{saveFunc: func(_ context.Context, path string, content []byte) error {
		archived[path] = content
		return nil
	}}

	exported, err := h.invoices.ExportInvoice(ctx, client, draft.Invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-0001.bin", exported.FileName)
	assert.Equal(t, []byte("INV-2026-0001"), exported.Content)
	assert.Equal(t, exported.Content, archived["invoices/"+project.ID+"/INV-2026-0001.bin"])

	h.invoices.exporter = &mockExporter{exportFunc: func(context.Context, *entity.Invoice, *entity.Project) ([]byte, error) {
		return nil, errors.New("render failed")
	}}
	_, err = h.invoices.ExportInvoice(ctx, manager, draft.Invoice.ID)
	assert.Error(t, err)
}

type mockStorage struct {
	saveFunc func(ctx context.Context, path string, content []byte) error
}

func (m *mockStorage) Save(ctx context.Context, path string, content []byte) error {
	if m.saveFunc != nil {
		return m.saveFunc(ctx, path, content)
	}
	return nil
}

func (m *mockStorage) Read(ctx context.Context, path string) ([]byte, error) {
	return nil, errors.New("not found")
}

func (m *mockStorage) Exists(ctx context.Context, path string) bool {
	return false
}

func (m *mockStorage) GetFullPath(relativePath string) string {
	return relativePath
}
