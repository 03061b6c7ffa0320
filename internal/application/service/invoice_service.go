package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/agency-ops/internal/application/port"
	"github.com/garyjia/agency-ops/internal/application/recorder"
	"github.com/garyjia/agency-ops/internal/application/workflow"
	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/billing"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/domain/event"
	"github.com/garyjia/agency-ops/internal/domain/role"
	domainwf "github.com/garyjia/agency-ops/internal/domain/workflow"
	"github.com/garyjia/agency-ops/pkg/utils"
)

const (
	DefaultInvoicePrefix    = "INV"
	DefaultPaymentTermsDays = 30
)

// InvoiceSettings controls numbering and default due dates
type InvoiceSettings struct {
	Prefix           string
	PaymentTermsDays int
}

// CreateDraftInput asks for a draft invoice. HourlyRate is required; zero is a valid rate.
// Force issues the draft even when the project is not ready (ADMIN only).
type CreateDraftInput struct {
	HourlyRate  *float64   `json:"hourly_rate"`
	PeriodStart *time.Time `json:"period_start"`
	PeriodEnd   *time.Time `json:"period_end"`
	IssueDate   *time.Time `json:"issue_date"`
	DueDate     *time.Time `json:"due_date"`
	Notes       string     `json:"notes"`
	Force       bool       `json:"force"`
}

// DraftInvoice is a created invoice with the validation it was created under
type DraftInvoice struct {
	Invoice    *entity.Invoice     `json:"invoice"`
	Validation *billing.Validation `json:"validation"`
}

// ExportedInvoice is a rendered invoice document
type ExportedInvoice struct {
	FileName    string
	ContentType string
	Content     []byte
}

// InvoiceService drafts invoices and walks them through sending and payment
type InvoiceService interface {
	CreateDraftInvoice(ctx context.Context, actor role.Actor, projectID string, in CreateDraftInput) (*DraftInvoice, error)
	GetInvoice(ctx context.Context, actor role.Actor, id string) (*entity.Invoice, error)
	ListInvoices(ctx context.Context, actor role.Actor, projectID string) ([]*entity.Invoice, error)

	Revalidate(ctx context.Context, actor role.Actor, id string, version int64) (*DraftInvoice, error)
	Send(ctx context.Context, actor role.Actor, id string, version int64) (*entity.Invoice, error)
	Schedule(ctx context.Context, actor role.Actor, id string, at time.Time, version int64) (*entity.Invoice, error)
	MarkPaid(ctx context.Context, actor role.Actor, id string, version int64) (*entity.Invoice, error)

	// ProcessScheduled sends scheduled invoices whose time has come
	ProcessScheduled(ctx context.Context, limit int) (int, error)
	// MarkOverdue flags sent invoices past their due date
	MarkOverdue(ctx context.Context, limit int) (int, error)

	ExportInvoice(ctx context.Context, actor role.Actor, id string) (*ExportedInvoice, error)
}

type invoiceServiceImpl struct {
	invoiceRepo port.InvoiceRepository
	projectRepo port.ProjectRepository
	billing     BillingService
	engine      workflow.Engine
	exporter    port.InvoiceExporter
	archive     port.FileStorage
	settings    InvoiceSettings
	logger      Logger
	now         Clock
}

// NewInvoiceService creates a new InvoiceService. archive may be nil, in which
// case exports are not kept.
func NewInvoiceService(
	invoiceRepo port.InvoiceRepository,
	projectRepo port.ProjectRepository,
	billingService BillingService,
	engine workflow.Engine,
	exporter port.InvoiceExporter,
	archive port.FileStorage,
	settings InvoiceSettings,
	logger Logger,
) InvoiceService {
	if settings.Prefix == "" {
		settings.Prefix = DefaultInvoicePrefix
	}
	if settings.PaymentTermsDays <= 0 {
		settings.PaymentTermsDays = DefaultPaymentTermsDays
	}
	return &invoiceServiceImpl{
		invoiceRepo: invoiceRepo,
		projectRepo: projectRepo,
		billing:     billingService,
		engine:      engine,
		exporter:    exporter,
		archive:     archive,
		settings:    settings,
		logger:      logger,
		now:         systemClock,
	}
}

// CreateDraftInvoice gates on pre-invoice validation, prices the approved work
// and stores the draft. A forced draft keeps the failing validation in its metadata.
func (s *invoiceServiceImpl) CreateDraftInvoice(ctx context.Context, actor role.Actor, projectID string, in CreateDraftInput) (*DraftInvoice, error) {
	if err := requireRole(actor, role.ProjectManager); err != nil {
		return nil, err
	}
	if in.HourlyRate == nil {
		return nil, apperr.Validation("hourly rate is required")
	}
	if err := utils.ValidateAmount(*in.HourlyRate); err != nil {
		return nil, apperr.Validation("invalid hourly rate: %v", err)
	}
	if in.Force && !actor.Can(role.Admin) {
		return nil, apperr.Forbidden("only an admin can force a draft invoice")
	}

	var result *DraftInvoice
	_, err := s.engine.Run(ctx, func(ctx context.Context, unit *workflow.Unit) error {
		project, err := s.projectRepo.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return apperr.NotFound("project", projectID)
		}

		validation, err := s.billing.RunPreInvoiceValidation(ctx, projectID)
		if err != nil {
			return err
		}
		if !validation.Ready && !in.Force {
			return apperr.BillingNotReady(validation.Summary, validation.Recommendations)
		}

		priced, err := s.billing.BuildInvoiceLineItems(ctx, projectID, LineItemsInput{
			HourlyRate:  *in.HourlyRate,
			PeriodStart: in.PeriodStart,
			PeriodEnd:   in.PeriodEnd,
		})
		if err != nil {
			return err
		}

		now := s.now()
		issueDate := now
		if in.IssueDate != nil {
			issueDate = in.IssueDate.UTC()
		}
		dueDate := issueDate.AddDate(0, 0, s.settings.PaymentTermsDays)
		if in.DueDate != nil {
			dueDate = in.DueDate.UTC()
		}
		if dueDate.Before(issueDate) {
			return apperr.Validation("due date is before issue date")
		}

		seq, err := s.invoiceRepo.NextNumberSequence(ctx, issueDate.Year())
		if err != nil {
			return err
		}

		state := entity.InvoiceStateReadyToSend
		if !validation.Ready {
			state = entity.InvoiceStateAwaitingValidation
		}

		invoice := &entity.Invoice{
			ID:                uuid.NewString(),
			ProjectID:         projectID,
			InvoiceNumber:     fmt.Sprintf("%s-%d-%04d", s.settings.Prefix, issueDate.Year(), seq),
			Amount:            priced.Total,
			Status:            entity.InvoiceStatusDraft,
			WorkflowState:     state,
			IssueDate:         issueDate,
			DueDate:           dueDate,
			ValidationSummary: validation.Summary,
			ValidatedAt:       timePtr(now),
			Metadata: entity.InvoiceMetadata{
				LineItems:   priced.LineItems,
				Hours:       priced.Hours,
				HourlyRate:  *in.HourlyRate,
				PeriodStart: in.PeriodStart,
				PeriodEnd:   in.PeriodEnd,
				Notes:       strings.TrimSpace(in.Notes),
				Forced:      in.Force && !validation.Ready,
				Validation:  validation.Snapshot(),
			},
			CreatedByID: actor.UserID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.invoiceRepo.Create(ctx, invoice); err != nil {
			return err
		}

		_, err = unit.Record(ctx, recorder.Input{
			Entity:    event.EntityInvoice,
			EntityID:  invoice.ID,
			ProjectID: projectID,
			ActorID:   actor.UserID,
			Status:    event.StatusDraftCreated,
			Message:   validation.Summary,
			Metadata: map[string]interface{}{
				"invoiceNumber": invoice.InvoiceNumber,
				"amount":        invoice.Amount,
				"hours":         priced.Hours,
				"workflowState": string(invoice.WorkflowState),
				"ready":         validation.Ready,
				"forced":        invoice.Metadata.Forced,
			},
		})
		if err != nil {
			return err
		}

		result = &DraftInvoice{Invoice: invoice, Validation: validation}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Draft invoice created",
		"project_id", projectID,
		"invoice_number", result.Invoice.InvoiceNumber,
		"forced", result.Invoice.Metadata.Forced)
	return result, nil
}

func (s *invoiceServiceImpl) GetInvoice(ctx context.Context, actor role.Actor, id string) (*entity.Invoice, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	invoice, _, err := s.loadVisible(ctx, actor, id)
	return invoice, err
}

func (s *invoiceServiceImpl) ListInvoices(ctx context.Context, actor role.Actor, projectID string) ([]*entity.Invoice, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	project, err := s.projectRepo.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil || !canViewProject(actor, project) {
		return nil, apperr.NotFound("project", projectID)
	}

	invoices, err := s.invoiceRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if invoices == nil {
		invoices = []*entity.Invoice{}
	}
	return invoices, nil
}

// Revalidate reruns pre-invoice validation and moves the invoice between
// awaiting validation and ready to send accordingly
func (s *invoiceServiceImpl) Revalidate(ctx context.Context, actor role.Actor, id string, version int64) (*DraftInvoice, error) {
	if err := requireRole(actor, role.ProjectManager); err != nil {
		return nil, err
	}

	var validation *billing.Validation
	invoice, err := s.transition(ctx, actor, id, version, func(ctx context.Context, inv *entity.Invoice, now time.Time) (domainwf.Trigger, error) {
		v, err := s.billing.RunPreInvoiceValidation(ctx, inv.ProjectID)
		if err != nil {
			return "", err
		}
		validation = v

		inv.ValidationSummary = v.Summary
		inv.ValidatedAt = timePtr(now)
		inv.Metadata.Validation = v.Snapshot()
		if v.Ready {
			return domainwf.TriggerValidationPassed, nil
		}
		return domainwf.TriggerValidationFailed, nil
	})
	if err != nil {
		return nil, err
	}
	return &DraftInvoice{Invoice: invoice, Validation: validation}, nil
}

func (s *invoiceServiceImpl) Send(ctx context.Context, actor role.Actor, id string, version int64) (*entity.Invoice, error) {
	if err := requireRole(actor, role.ProjectManager); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, id, version, markSent)
}

// Schedule queues the invoice to be sent at a future time
func (s *invoiceServiceImpl) Schedule(ctx context.Context, actor role.Actor, id string, at time.Time, version int64) (*entity.Invoice, error) {
	if err := requireRole(actor, role.ProjectManager); err != nil {
		return nil, err
	}
	if at.IsZero() {
		return nil, apperr.Validation("a send time is required")
	}
	if !at.After(s.now()) {
		return nil, apperr.Validation("scheduled send time must be in the future")
	}

	return s.transition(ctx, actor, id, version, func(_ context.Context, inv *entity.Invoice, _ time.Time) (domainwf.Trigger, error) {
		inv.ScheduledSendAt = timePtr(at.UTC())
		return domainwf.TriggerSchedule, nil
	})
}

func (s *invoiceServiceImpl) MarkPaid(ctx context.Context, actor role.Actor, id string, version int64) (*entity.Invoice, error) {
	if err := requireRole(actor, role.ProjectManager); err != nil {
		return nil, err
	}

	return s.transition(ctx, actor, id, version, func(_ context.Context, inv *entity.Invoice, now time.Time) (domainwf.Trigger, error) {
		inv.Status = entity.InvoiceStatusPaid
		inv.PaidAt = timePtr(now)
		return domainwf.TriggerMarkPaid, nil
	})
}

func (s *invoiceServiceImpl) ProcessScheduled(ctx context.Context, limit int) (int, error) {
	ctx = recorder.WithAsyncBroadcast(ctx)
	due, err := s.invoiceRepo.ListScheduledDue(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, inv := range due {
		if _, err := s.transition(ctx, systemActor(), inv.ID, inv.Version, markSent); err != nil {
			s.logger.Error("Failed to send scheduled invoice", "invoice_id", inv.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

func (s *invoiceServiceImpl) MarkOverdue(ctx context.Context, limit int) (int, error) {
	ctx = recorder.WithAsyncBroadcast(ctx)
	pastDue, err := s.invoiceRepo.ListSentPastDue(ctx, s.now(), limit)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, inv := range pastDue {
		if err := s.markOverdue(ctx, inv); err != nil {
			s.logger.Error("Failed to mark invoice overdue", "invoice_id", inv.ID, "error", err)
			continue
		}
		marked++
	}
	return marked, nil
}

// markOverdue changes the payment status only; the workflow stays pending payment
func (s *invoiceServiceImpl) markOverdue(ctx context.Context, inv *entity.Invoice) error {
	_, err := s.engine.Run(ctx, func(ctx context.Context, unit *workflow.Unit) error {
		inv.Status = entity.InvoiceStatusOverdue
		inv.UpdatedAt = s.now()
		if err := s.invoiceRepo.Update(ctx, inv); err != nil {
			return err
		}

		_, err := unit.Record(ctx, recorder.Input{
			Entity:    event.EntityInvoice,
			EntityID:  inv.ID,
			ProjectID: inv.ProjectID,
			ActorID:   entity.SystemActorID,
			Status:    string(entity.InvoiceStatusOverdue),
			Metadata: map[string]interface{}{
				"invoiceNumber": inv.InvoiceNumber,
				"dueDate":       inv.DueDate.Format(time.RFC3339),
				"amount":        inv.Amount,
			},
		})
		return err
	})
	return err
}

// ExportInvoice renders the invoice and keeps a copy in the archive when one is configured
func (s *invoiceServiceImpl) ExportInvoice(ctx context.Context, actor role.Actor, id string) (*ExportedInvoice, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	invoice, project, err := s.loadVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	content, err := s.exporter.Export(ctx, invoice, project)
	if err != nil {
		return nil, fmt.Errorf("failed to export invoice %s: %w", invoice.InvoiceNumber, err)
	}

	fileName := invoice.InvoiceNumber + s.exporter.Extension()
	if s.archive != nil {
		if err := s.archive.Save(ctx, path.Join("invoices", project.ID, fileName), content); err != nil {
			return nil, fmt.Errorf("failed to archive invoice %s: %w", invoice.InvoiceNumber, err)
		}
	}

	return &ExportedInvoice{
		FileName:    fileName,
		ContentType: s.exporter.ContentType(),
		Content:     content,
	}, nil
}

type invoiceMutation func(ctx context.Context, inv *entity.Invoice, now time.Time) (domainwf.Trigger, error)

// transition runs one invoice workflow step atomically with its event
func (s *invoiceServiceImpl) transition(ctx context.Context, actor role.Actor, id string, version int64, mutate invoiceMutation) (*entity.Invoice, error) {
	var result *entity.Invoice
	_, err := s.engine.Run(ctx, func(ctx context.Context, unit *workflow.Unit) error {
		invoice, err := s.invoiceRepo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if invoice == nil {
			return apperr.NotFound("invoice", id)
		}
		if err := checkVersion("invoice", id, version, invoice.Version); err != nil {
			return err
		}

		now := s.now()
		trigger, err := mutate(ctx, invoice, now)
		if err != nil {
			return err
		}

		machine, err := workflow.BuildInvoiceMachine(invoice.WorkflowState)
		if err != nil {
			return err
		}
		transition, err := workflow.Fire(ctx, machine, trigger)
		if err != nil {
			return err
		}

		invoice.WorkflowState = entity.InvoiceWorkflowState(transition.To)
		invoice.UpdatedAt = now
		if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
			return err
		}

		_, err = unit.Record(ctx, recorder.Input{
			Entity:    event.EntityInvoice,
			EntityID:  invoice.ID,
			ProjectID: invoice.ProjectID,
			ActorID:   actor.UserID,
			Status:    string(invoice.WorkflowState),
			Message:   invoice.ValidationSummary,
			Metadata: map[string]interface{}{
				"previousState": string(transition.From),
				"invoiceNumber": invoice.InvoiceNumber,
				"paymentStatus": string(invoice.Status),
				"trigger":       trigger.String(),
			},
		})
		if err != nil {
			return err
		}

		result = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *invoiceServiceImpl) loadVisible(ctx context.Context, actor role.Actor, id string) (*entity.Invoice, *entity.Project, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if invoice == nil {
		return nil, nil, apperr.NotFound("invoice", id)
	}

	project, err := s.projectRepo.GetByID(ctx, invoice.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if project == nil || !canViewProject(actor, project) {
		return nil, nil, apperr.NotFound("invoice", id)
	}
	return invoice, project, nil
}

func markSent(_ context.Context, inv *entity.Invoice, now time.Time) (domainwf.Trigger, error) {
	inv.Status = entity.InvoiceStatusSent
	inv.SentAt = timePtr(now)
	inv.ScheduledSendAt = nil
	return domainwf.TriggerSend, nil
}

func systemActor() role.Actor {
	return role.Actor{UserID: entity.SystemActorID, Role: role.Admin}
}
