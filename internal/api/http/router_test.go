package http

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/repository/memstore"
	"github.com/spec-kit/queue-service/internal/service"
)

type testServer struct {
	t      *testing.T
	app    *fiber.App
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memstore.New()
	metrics := observability.NewMetrics()
	core := service.New(service.Dependencies{
		Store:   store,
		Metrics: metrics,
		Detach:  func(fn func()) { fn() },
	})
	tokens := auth.NewTokenManager("test-secret", 5)

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("queue-service", "test", map[string]handlers.Pinger{"store": store}, metrics),
		Queues:         handlers.NewQueuesHandler(core.Queues),
		Admin:          handlers.NewQueueAdminHandler(core.Queues),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return &testServer{t: t, app: app, tokens: tokens}
}

func (s *testServer) do(method, path, user, body string) (int, map[string]any) {
	s.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if user != "" {
		token, _, err := s.tokens.GenerateToken(user, user)
		require.NoError(s.t, err)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var out map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	if len(raw) > 0 {
		require.NoError(s.t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func data(body map[string]any) map[string]any {
	d, _ := body["data"].(map[string]any)
	return d
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHTTPQueueLifecycle(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(fiber.MethodPost, "/api/v1/queues", "owner", `{"name":"clinic","service_slots":1,"max_size":2,"grace_minutes":1}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	queueID := data(body)["id"].(string)

	status, body = s.do(fiber.MethodPost, "/api/v1/queues/"+queueID+"/join", "alice", "")
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.NotEmpty(t, data(body)["access_token"])

	status, body = s.do(fiber.MethodPost, "/api/v1/queues/"+queueID+"/join", "bob", "")
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.EqualValues(t, 1, data(body)["position"])

	status, body = s.do(fiber.MethodPost, "/api/v1/queues/"+queueID+"/join", "carol", "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CAPACITY_EXCEEDED", errorCode(body))

	status, body = s.do(fiber.MethodGet, "/api/v1/queues/"+queueID+"/status", "alice", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "SERVING", data(body)["status"])
	assert.Nil(t, data(body)["position"])

	status, body = s.do(fiber.MethodPost, "/api/v1/queues/"+queueID+"/tickets/alice/late", "owner", "")
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "LATE", data(body)["to"])
	assert.NotNil(t, data(body)["expires_at"])

	status, body = s.do(fiber.MethodGet, "/api/v1/queues/"+queueID+"/status", "bob", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "SERVING", data(body)["status"])

	status, body = s.do(fiber.MethodPost, "/api/v1/queues/"+queueID+"/rejoin", "alice", "")
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "WAITING", data(body)["to"])
	assert.EqualValues(t, 1, data(body)["priority_boost"])

	status, body = s.do(fiber.MethodGet, "/api/v1/queues/"+queueID+"/tickets", "owner", "")
	require.Equal(t, fiber.StatusOK, status)
	items := data(body)["items"].([]any)
	assert.Len(t, items, 2)

	status, body = s.do(fiber.MethodGet, "/api/v1/queues/"+queueID+"/events", "owner", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.NotEmpty(t, body["data"])

	status, _ = s.do(fiber.MethodDelete, "/api/v1/queues/"+queueID, "owner", "")
	assert.Equal(t, fiber.StatusNoContent, status)
}

func TestHTTPErrors(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(fiber.MethodGet, "/api/v1/me/tickets", "", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, body = s.do(fiber.MethodPost, "/api/v1/queues", "owner", `{"name":"","service_slots":0}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(fiber.MethodPost, "/api/v1/queues/nope/join", "alice", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	status, body = s.do(fiber.MethodPost, "/api/v1/queues", "owner", `{"name":"desk"}`)
	require.Equal(t, fiber.StatusCreated, status)
	queueID := data(body)["id"].(string)
	s.do(fiber.MethodPost, "/api/v1/queues/"+queueID+"/join", "alice", "")

	status, body = s.do(fiber.MethodPost, "/api/v1/queues/"+queueID+"/tickets/alice/complete", "intruder", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = s.do(fiber.MethodPost, "/api/v1/queues/"+queueID+"/tickets/alice/arrived", "owner", "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "ILLEGAL_TRANSITION", errorCode(body))
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(fiber.MethodGet, "/health/live", "", "")
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = s.do(fiber.MethodGet, "/health/ready", "", "")
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = s.do(fiber.MethodGet, "/health/metrics", "", "")
	assert.Equal(t, fiber.StatusOK, status)
}
