package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/agency-ops/internal/application/service"
	"github.com/garyjia/agency-ops/internal/application/workflow"
	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/domain/role"
	"github.com/garyjia/agency-ops/pkg/utils"
)

type invoiceView struct {
	*entity.Invoice
	AllowedActions []string `json:"allowed_actions"`
}

func newInvoiceView(invoice *entity.Invoice) invoiceView {
	return invoiceView{Invoice: invoice, AllowedActions: workflow.InvoiceActions(invoice.WorkflowState)}
}

type invoiceActionRequest struct {
	Version int64 `json:"version"`
}

type scheduleInvoiceRequest struct {
	SendAt  time.Time `json:"send_at"`
	Version int64     `json:"version"`
}

// billingAccess allows project managers and admins that can see the project.
// Billing internals are not shown to clients or developers.
func (s *Server) billingAccess(c *gin.Context) bool {
	actor := actorFrom(c)
	if !actor.Can(role.ProjectManager) {
		s.respondError(c, apperr.Forbidden("billing requires a project manager"))
		return false
	}
	if _, err := s.services.Projects.GetProject(c.Request.Context(), actor, c.Param("id")); err != nil {
		s.respondError(c, err)
		return false
	}
	return true
}

// GET /api/projects/:id/billing/readiness
func (s *Server) billingReadiness(c *gin.Context) {
	if !s.billingAccess(c) {
		return
	}

	report, err := s.services.Billing.EvaluateReadiness(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GET /api/projects/:id/billing/validation
func (s *Server) billingValidation(c *gin.Context) {
	if !s.billingAccess(c) {
		return
	}

	validation, err := s.services.Billing.RunPreInvoiceValidation(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, validation)
}

// GET /api/projects/:id/billing/line-items?hourly_rate=&period_start=&period_end=
func (s *Server) billingLineItems(c *gin.Context) {
	if !s.billingAccess(c) {
		return
	}

	// ParseFloat accepts "NaN" and "Inf"
	rate, err := strconv.ParseFloat(c.DefaultQuery("hourly_rate", "0"), 64)
	if err == nil {
		err = utils.ValidateAmount(rate)
	}
	if err != nil {
		s.respondError(c, apperr.Validation("hourly_rate must be a finite, non-negative number"))
		return
	}
	start, err := parseDateQuery(c, "period_start")
	if err != nil {
		s.respondError(c, err)
		return
	}
	end, err := parseDateQuery(c, "period_end")
	if err != nil {
		s.respondError(c, err)
		return
	}

	result, err := s.services.Billing.BuildInvoiceLineItems(c.Request.Context(), c.Param("id"), service.LineItemsInput{
		HourlyRate:  rate,
		PeriodStart: start,
		PeriodEnd:   end,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// POST /api/projects/:id/invoices
func (s *Server) createInvoice(c *gin.Context) {
	var in service.CreateDraftInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.badRequest(c, err)
		return
	}

	draft, err := s.services.Invoices.CreateDraftInvoice(c.Request.Context(), actorFrom(c), c.Param("id"), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, draft)
}

// GET /api/projects/:id/invoices
func (s *Server) listInvoices(c *gin.Context) {
	invoices, err := s.services.Invoices.ListInvoices(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

// GET /api/invoices/:id
func (s *Server) getInvoice(c *gin.Context) {
	invoice, err := s.services.Invoices.GetInvoice(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newInvoiceView(invoice))
}

// GET /api/invoices/:id/export
func (s *Server) exportInvoice(c *gin.Context) {
	exported, err := s.services.Invoices.ExportInvoice(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+exported.FileName+"\"")
	c.Data(http.StatusOK, exported.ContentType, exported.Content)
}

// POST /api/invoices/:id/revalidate
func (s *Server) revalidateInvoice(c *gin.Context) {
	var req invoiceActionRequest
	if !s.bindOptionalJSON(c, &req) {
		return
	}

	draft, err := s.services.Invoices.Revalidate(c.Request.Context(), actorFrom(c), c.Param("id"), req.Version)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

// POST /api/invoices/:id/send
func (s *Server) sendInvoice(c *gin.Context) {
	var req invoiceActionRequest
	if !s.bindOptionalJSON(c, &req) {
		return
	}

	invoice, err := s.services.Invoices.Send(c.Request.Context(), actorFrom(c), c.Param("id"), req.Version)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newInvoiceView(invoice))
}

// POST /api/invoices/:id/schedule
func (s *Server) scheduleInvoice(c *gin.Context) {
	var req scheduleInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	invoice, err := s.services.Invoices.Schedule(c.Request.Context(), actorFrom(c), c.Param("id"), req.SendAt, req.Version)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newInvoiceView(invoice))
}

// POST /api/invoices/:id/pay
func (s *Server) payInvoice(c *gin.Context) {
	var req invoiceActionRequest
	if !s.bindOptionalJSON(c, &req) {
		return
	}

	invoice, err := s.services.Invoices.MarkPaid(c.Request.Context(), actorFrom(c), c.Param("id"), req.Version)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newInvoiceView(invoice))
}

// bindOptionalJSON binds the body when there is one
func (s *Server) bindOptionalJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		s.badRequest(c, err)
		return false
	}
	return true
}

// parseDateQuery accepts RFC 3339 or a plain YYYY-MM-DD date
func parseDateQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, apperr.Validation("%s must be a date (YYYY-MM-DD) or RFC 3339 timestamp", key)
}
