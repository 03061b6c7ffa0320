package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/agency-ops/internal/application/dispatcher"
	"github.com/garyjia/agency-ops/internal/application/service"
	"github.com/garyjia/agency-ops/internal/domain/apperr"
	"github.com/garyjia/agency-ops/internal/domain/billing"
	"github.com/garyjia/agency-ops/internal/domain/entity"
	"github.com/garyjia/agency-ops/internal/domain/event"
	"github.com/garyjia/agency-ops/internal/domain/role"
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

var tokens = map[string]role.Actor{
	"pm-token":     {UserID: "pm-1", Role: role.ProjectManager},
	"dev-token":    {UserID: "dev-1", Role: role.Developer},
	"client-token": {UserID: "client-1", Role: role.Client},
}

type mockIdentity struct{}

func (m *mockIdentity) Authenticate(ctx context.Context, token string) (role.Actor, error) {
	if actor, ok := tokens[token]; ok {
		return actor, nil
	}
	return role.Actor{}, errors.New("invalid token")
}

type mockProjectService struct {
	service.ProjectService
	getProjectFunc func(ctx context.Context, actor role.Actor, id string) (*entity.Project, error)
}

func (m *mockProjectService) GetProject(ctx context.Context, actor role.Actor, id string) (*entity.Project, error) {
	return m.getProjectFunc(ctx, actor, id)
}

type mockIntakeService struct {
	service.IntakeService
	getIntakeFunc func(ctx context.Context, actor role.Actor, id string) (*entity.Intake, error)
}

func (m *mockIntakeService) GetIntake(ctx context.Context, actor role.Actor, id string) (*entity.Intake, error) {
	return m.getIntakeFunc(ctx, actor, id)
}

type mockBillingService struct {
	service.BillingService
	evaluateReadinessFunc func(ctx context.Context, projectID string) (*billing.Report, error)
}

func (m *mockBillingService) EvaluateReadiness(ctx context.Context, projectID string) (*billing.Report, error) {
	return m.evaluateReadinessFunc(ctx, projectID)
}

type mockInvoiceService struct {
	service.InvoiceService
	createDraftInvoiceFunc func(ctx context.Context, actor role.Actor, projectID string, in service.CreateDraftInput) (*service.DraftInvoice, error)
	exportInvoiceFunc      func(ctx context.Context, actor role.Actor, id string) (*service.ExportedInvoice, error)
	getInvoiceFunc         func(ctx context.Context, actor role.Actor, id string) (*entity.Invoice, error)
}

func (m *mockInvoiceService) GetInvoice(ctx context.Context, actor role.Actor, id string) (*entity.Invoice, error) {
	return m.getInvoiceFunc(ctx, actor, id)
}

func (m *mockInvoiceService) CreateDraftInvoice(ctx context.Context, actor role.Actor, projectID string, in service.CreateDraftInput) (*service.DraftInvoice, error) {
	return m.createDraftInvoiceFunc(ctx, actor, projectID, in)
}

func (m *mockInvoiceService) ExportInvoice(ctx context.Context, actor role.Actor, id string) (*service.ExportedInvoice, error) {
	return m.exportInvoiceFunc(ctx, actor, id)
}

// ownedProjects returns a project service where only client-1 owns proj-1
func ownedProjects() *mockProjectService {
	return &mockProjectService{getProjectFunc: func(ctx context.Context, actor role.Actor, id string) (*entity.Project, error) {
		if id != "proj-1" {
			return nil, apperr.NotFound("project", id)
		}
		p := &entity.Project{ID: "proj-1", ClientID: "client-1"}
		if actor.Can(role.Developer) || actor.UserID == p.ClientID {
			return p, nil
		}
		return nil, apperr.NotFound("project", id)
	}}
}

func newTestServer(t *testing.T, services Services, bus dispatcher.Dispatcher) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if bus == nil {
		bus = dispatcher.NewDispatcher()
	}
	if services.Projects == nil {
		services.Projects = ownedProjects()
	}
	cfg := DefaultServerConfig()
	cfg.Mode = gin.TestMode
	cfg.HeartbeatInterval = 20 * time.Millisecond
	return NewServer(cfg, services, &mockIdentity{}, bus, &mockLogger{})
}

func do(s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, Services{}, nil)
	w := do(s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, Services{}, nil)

	w := do(s, http.MethodGet, "/api/projects/proj-1", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperr.KindUnauthorized, decode(t, w).Code)

	w = do(s, http.MethodGet, "/api/projects/proj-1", "forged", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(s, http.MethodGet, "/api/projects/proj-1", "client-token", "")
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/projects/proj-1?access_token=client-token", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "query tokens are only accepted on the stream")
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"not found", apperr.NotFound("intake", "x"), http.StatusNotFound, "intake not found"},
		{"forbidden", apperr.Forbidden("clients cannot do that"), http.StatusForbidden, "clients cannot do that"},
		{"validation", apperr.Validation("comment is required"), http.StatusBadRequest, "comment is required"},
		{"conflict", apperr.Conflict("intake was modified"), http.StatusConflict, "intake was modified"},
		{"unauthorized", apperr.Unauthorized("authentication required"), http.StatusUnauthorized, "authentication required"},
		{"foreign error hides cause", fmt.Errorf("disk I/O error at /var/db"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, Services{Intakes: &mockIntakeService{
				getIntakeFunc: func(ctx context.Context, actor role.Actor, id string) (*entity.Intake, error) {
					return nil, tt.err
				},
			}}, nil)

			w := do(s, http.MethodGet, "/api/intakes/x", "pm-token", "")
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantError, decode(t, w).Error)
			assert.NotContains(t, w.Body.String(), "/var/db")
		})
	}
}

func TestAllowedActions(t *testing.T) {
	s := newTestServer(t, Services{
		Intakes: &mockIntakeService{getIntakeFunc: func(ctx context.Context, actor role.Actor, id string) (*entity.Intake, error) {
			return &entity.Intake{ID: id, Status: entity.IntakeStatusReturnedForInfo}, nil
		}},
		Invoices: &mockInvoiceService{getInvoiceFunc: func(ctx context.Context, actor role.Actor, id string) (*entity.Invoice, error) {
			return &entity.Invoice{ID: id, InvoiceNumber: "INV-2026-0001", WorkflowState: entity.InvoiceStateSentAndPendingPayment}, nil
		}},
	}, nil)

	var intake struct {
		ID             string   `json:"id"`
		Status         string   `json:"status"`
		AllowedActions []string `json:"allowed_actions"`
	}
	w := do(s, http.MethodGet, "/api/intakes/intake-1", "pm-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &intake))
	assert.Equal(t, "intake-1", intake.ID)
	assert.Equal(t, "RETURNED_FOR_INFO", intake.Status)
	assert.Contains(t, intake.AllowedActions, "resubmit")
	assert.NotContains(t, intake.AllowedActions, "start_estimate")

	var invoice struct {
		InvoiceNumber  string   `json:"invoice_number"`
		AllowedActions []string `json:"allowed_actions"`
	}
	w = do(s, http.MethodGet, "/api/invoices/inv-1", "pm-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &invoice))
	assert.Equal(t, "INV-2026-0001", invoice.InvoiceNumber)
	assert.Equal(t, []string{"pay"}, invoice.AllowedActions)
}

func TestCreateInvoice_BillingNotReady(t *testing.T) {
	recs := []string{"Get client approval on 1 deliverable(s)"}
	var gotInput service.CreateDraftInput
	s := newTestServer(t, Services{Invoices: &mockInvoiceService{
		createDraftInvoiceFunc: func(ctx context.Context, actor role.Actor, projectID string, in service.CreateDraftInput) (*service.DraftInvoice, error) {
			gotInput = in
			return nil, apperr.BillingNotReady("1 deliverable awaiting approval", recs)
		},
	}}, nil)

	w := do(s, http.MethodPost, "/api/projects/proj-1/invoices", "pm-token", `{"hourly_rate": 100}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode(t, w)
	assert.Equal(t, "project is not ready for invoicing", resp.Error)
	assert.Equal(t, "1 deliverable awaiting approval", resp.Summary)
	assert.Equal(t, recs, resp.Recommendations)
	require.NotNil(t, gotInput.HourlyRate)
	assert.Equal(t, 100.0, *gotInput.HourlyRate)
}

func TestBillingReadiness_Access(t *testing.T) {
	s := newTestServer(t, Services{Billing: &mockBillingService{
		evaluateReadinessFunc: func(ctx context.Context, projectID string) (*billing.Report, error) {
			return &billing.Report{ProjectID: projectID, Ready: true, Summary: "ready"}, nil
		},
	}}, nil)

	assert.Equal(t, http.StatusForbidden, do(s, http.MethodGet, "/api/projects/proj-1/billing/readiness", "dev-token", "").Code)
	assert.Equal(t, http.StatusForbidden, do(s, http.MethodGet, "/api/projects/proj-1/billing/readiness", "client-token", "").Code)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/api/projects/nope/billing/readiness", "pm-token", "").Code)

	w := do(s, http.MethodGet, "/api/projects/proj-1/billing/readiness", "pm-token", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready":true`)
}

func TestBillingLineItems_BadQuery(t *testing.T) {
	s := newTestServer(t, Services{}, nil)

	for _, r := range []string{"abc", "NaN", "Inf", "-5"} {
		w := do(s, http.MethodGet, "/api/projects/proj-1/billing/line-items?hourly_rate="+r, "pm-token", "")
		assert.Equal(t, http.StatusBadRequest, w.Code, r)
	}

	w := do(s, http.MethodGet, "/api/projects/proj-1/billing/line-items?period_start=03/01/2026", "pm-token", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w).Error, "period_start")
}

func TestExportInvoice(t *testing.T) {
	s := newTestServer(t, Services{Invoices: &mockInvoiceService{
		exportInvoiceFunc: func(ctx context.Context, actor role.Actor, id string) (*service.ExportedInvoice, error) {
			return &service.ExportedInvoice{FileName: "INV-2026-0001.xlsx", ContentType: "application/test", Content: []byte("xlsx")}, nil
		},
	}}, nil)

	w := do(s, http.MethodGet, "/api/invoices/inv-1/export", "pm-token", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/test", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "INV-2026-0001.xlsx")
	assert.Equal(t, "xlsx", w.Body.String())
}

func TestInvalidJSON(t *testing.T) {
	s := newTestServer(t, Services{}, nil)
	w := do(s, http.MethodPost, "/api/intakes", "client-token", `{"title": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperr.KindValidation, decode(t, w).Code)
}

func readFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestStreamEvents(t *testing.T) {
	bus := dispatcher.NewDispatcher()
	s := newTestServer(t, Services{}, bus)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events/stream?access_token=client-token", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	assert.JSONEq(t, `{"type":"workflow.stream.ready"}`, readFrame(t, reader))
	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	hidden := event.NewEvent(event.EntityTask, "t-9", "dev-1", event.StatusTimeLogged, nil)
	hidden.ProjectID = "proj-2"
	bus.Publish(ctx, hidden)

	shown := event.NewEvent(event.EntityProposal, "prop-1", "pm-1", string(entity.ProposalStatusClientApprovalPending), nil)
	shown.ProjectID = "proj-1"
	bus.Publish(ctx, shown)

	var got event.Event
	require.NoError(t, json.Unmarshal([]byte(readFrame(t, reader)), &got))
	assert.Equal(t, shown.ID, got.ID, "events of other clients' projects are filtered out")

	heartbeat := false
	for i := 0; i < 20 && !heartbeat; i++ {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		heartbeat = strings.HasPrefix(line, ": heartbeat")
	}
	assert.True(t, heartbeat)

	cancel()
	require.Eventually(t, func() bool { return bus.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, Services{}, nil)
	w := do(s, http.MethodOptions, "/api/tasks/t-1/status", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
}
