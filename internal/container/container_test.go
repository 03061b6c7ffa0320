package container

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/agency-ops/internal/config"
	"github.com/garyjia/agency-ops/internal/domain/event"
	"github.com/garyjia/agency-ops/internal/domain/role"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 8080, Mode: gin.TestMode},
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "agency.db"), MaxOpenConns: 1},
		Auth:     config.AuthConfig{JWTSecret: "container-secret", RoleClaim: "role"},
		Billing:  config.BillingConfig{InvoicePrefix: "INV", PaymentTermsDays: 30},
		Stream:   config.StreamConfig{HeartbeatInterval: time.Second, BufferSize: 8},
		Worker:   config.WorkerConfig{InvoicePollInterval: time.Hour, InvoiceBatchSize: 10},
		Storage:  config.StorageConfig{ArchiveDir: filepath.Join(dir, "exports")},
	}
}

func TestContainer_Lifecycle(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()))
	assert.True(t, c.Workers().IsRunning())
	assert.Equal(t, 1, c.Workers().Count(), "lark notifier is off by default")

	health := c.Health(context.Background())
	assert.True(t, health.Overall)
	assert.True(t, health.Components["database"].Healthy)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.False(t, c.Workers().IsRunning())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(context.Background()))
}

func TestContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_SubmitIntakeOverHTTP(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop(), WithoutWorkers())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.False(t, c.Workers().IsRunning())
	assert.True(t, c.Health(context.Background()).Overall)

	token, err := c.Identity().Mint("client-1", role.Client, time.Hour)
	require.NoError(t, err)

	router := c.HTTPServer().Router()

	req := httptest.NewRequest(http.MethodPost, "/api/intakes", strings.NewReader(`{"title":"Website refresh","notes":"New brand"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var submitted struct {
		Project struct {
			ID       string `json:"id"`
			ClientID string `json:"client_id"`
		} `json:"project"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitted))
	assert.Equal(t, "client-1", submitted.Project.ClientID)

	req = httptest.NewRequest(http.MethodGet, "/api/projects/"+submitted.Project.ID+"/activity", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "workflow:intake:REVIEW_PENDING")
}

func TestContainer_HealthListsSubscribers(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop(), WithoutWorkers())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.Equal(t, "subscribers: 0", c.Health(context.Background()).Components["dispatcher"].Message)

	unsubscribe := c.Dispatcher().SubscribeNamed("audit-tail", func(context.Context, *event.Event) error { return nil })
	c.Dispatcher().SubscribeNamed("activity-feed", func(context.Context, *event.Event) error { return nil })

	health := c.Health(context.Background())
	assert.True(t, health.Components["dispatcher"].Healthy)
	assert.Equal(t, "subscribers: 2 (activity-feed, audit-tail)", health.Components["dispatcher"].Message)

	unsubscribe()
	assert.Equal(t, "subscribers: 1 (activity-feed)", c.Health(context.Background()).Components["dispatcher"].Message)
}
