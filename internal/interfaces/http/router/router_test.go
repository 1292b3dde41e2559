package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	appaccounting "github.com/sitebook/backend/internal/application/accounting"
	"github.com/sitebook/backend/internal/infrastructure/cache"
	"github.com/sitebook/backend/internal/infrastructure/persistence"
	"github.com/sitebook/backend/internal/infrastructure/persistence/models"
	"github.com/sitebook/backend/internal/interfaces/http/handler"
	"github.com/sitebook/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())

	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))

	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	group := NewDomainGroup("test", "/test")
	group.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	r.Register(group).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/test/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestDomainGroup_Middleware(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	var calls []string
	group := NewDomainGroup("outer", "/outer").Use(func(c *gin.Context) {
		calls = append(calls, "outer")
		c.Next()
	})
	group.POST("/do", func(c *gin.Context) {
		calls = append(calls, "handler")
		c.Status(http.StatusAccepted)
	})
	r.Register(group).Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/outer/do", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"outer", "handler"}, calls)
	assert.Equal(t, "outer", group.Name())
	assert.Equal(t, "/outer", group.Prefix())
}

func TestRouterSetup_ReturnsRouteTable(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))
	noop := func(c *gin.Context) {}

	r.Register(NewDomainGroup("b", "/b").POST("/x", noop).GET("/x", noop))
	r.Register(NewDomainGroup("a", "/a").GET("/", noop))

	routes := r.Setup()

	assert.Equal(t, "/api/v2", r.BasePath())
	assert.Equal(t, []RouteInfo{
		{Group: "a", Method: http.MethodGet, Path: "/api/v2/a"},
		{Group: "b", Method: http.MethodGet, Path: "/api/v2/b/x"},
		{Group: "b", Method: http.MethodPost, Path: "/api/v2/b/x"},
	}, routes)
}

const (
	testVerifierToken = "verifier-token"
	testCronSecret    = "cron-secret"
)

func newAccountingEngine(t *testing.T) *gin.Engine {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.AccountingModels()...))

	events := persistence.NewGormWebhookEventRepository(db)
	connections := persistence.NewGormConnectionRepository(db)

	webhookService := appaccounting.NewWebhookService(appaccounting.WebhookServiceConfig{
		Events:        events,
		VerifierToken: testVerifierToken,
	})
	worker := appaccounting.NewReconciliationWorker(appaccounting.ReconciliationWorkerConfig{
		Events:      events,
		Connections: connections,
		Lock:        cache.NewInMemoryRunLock(),
	})

	engine := gin.New()
	engine.Use(middleware.RequestID())
	r := NewRouter(engine)
	for _, registrar := range AccountingRoutes(
		handler.NewAccountingWebhookHandler(webhookService, 0),
		handler.NewReconcileHandler(worker, events),
		middleware.CronAuth(middleware.CronAuthConfig{Secret: testCronSecret}),
	) {
		r.Register(registrar)
	}
	r.Setup()
	return engine
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func cronRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "Bearer "+testCronSecret)
	return req
}

func TestAccountingRoutes_WebhookToReconcile(t *testing.T) {
	engine := newAccountingEngine(t)

	payload := `{"eventNotifications":[{"realmId":"realm-unknown","dataChangeEvent":{"entities":[` +
		`{"name":"Invoice","id":"42","operation":"Update","lastUpdated":"2024-03-01T10:00:00Z"}]}}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/accounting", strings.NewReader(payload))
	req.Header.Set(handler.SignatureHeader, appaccounting.SignPayload(testVerifierToken, []byte(payload)))

	w := serve(engine, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true,"processed":1}`, w.Body.String())

	// Redelivery is acknowledged but does not queue a second event
	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/accounting", strings.NewReader(payload))
	req.Header.Set(handler.SignatureHeader, appaccounting.SignPayload(testVerifierToken, []byte(payload)))
	require.Equal(t, http.StatusOK, serve(engine, req).Code)

	w = serve(engine, cronRequest(http.MethodPost, "/api/v1/accounting/reconcile"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"processed":1,"reconciled":0,"ignored":1,"errored":0}`, w.Body.String())

	w = serve(engine, cronRequest(http.MethodGet, "/api/v1/accounting/reconcile"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"processed":0,"reconciled":0,"ignored":0,"errored":0}`, w.Body.String())

	w = serve(engine, cronRequest(http.MethodGet, "/api/v1/accounting/webhook-events?status=ignored"))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data struct {
			Events []struct {
				ExternalID   string `json:"entity_external_id"`
				Status       string `json:"process_status"`
				ProcessError string `json:"process_error"`
			} `json:"events"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data.Events, 1)
	assert.Equal(t, "42", body.Data.Events[0].ExternalID)
	assert.Equal(t, "ignored", body.Data.Events[0].Status)
	assert.Equal(t, "no active org connection for realm", body.Data.Events[0].ProcessError)
}

func TestAccountingRoutes_RejectsBadSignature(t *testing.T) {
	engine := newAccountingEngine(t)

	payload := `{"eventNotifications":[{"realmId":"r1","dataChangeEvent":{"entities":[{"name":"Invoice","id":"1","operation":"Create"}]}}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/accounting", strings.NewReader(payload))
	req.Header.Set(handler.SignatureHeader, appaccounting.SignPayload("wrong-token", []byte(payload)))

	w := serve(engine, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"received":false`)

	w = serve(engine, cronRequest(http.MethodGet, "/api/v1/accounting/webhook-events"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"events":[]`)
}

func TestAccountingRoutes_WorkerAuth(t *testing.T) {
	engine := newAccountingEngine(t)

	w := serve(engine, httptest.NewRequest(http.MethodPost, "/api/v1/accounting/reconcile", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounting/webhook-events", nil)
	req.Header.Set("Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, serve(engine, req).Code)
}
