package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/identity"
)

type mockListener struct {
	ready    bool
	sessions int
	users    int
	rooms    int
}

func (m *mockListener) Ready() bool { return m.ready }

func (m *mockListener) Counts() (sessions, users, rooms int) {
	return m.sessions, m.users, m.rooms
}

type mockIdentityChecker struct {
	status string
}

func (m *mockIdentityChecker) Check(ctx context.Context) string {
	return m.status
}

func TestLiveness(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "liveness always returns 200",
			expectedStatus: http.StatusOK,
			expectedBody:   "alive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(nil, nil)

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/health/live", nil)

			handler.Liveness(c)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			assert.Contains(t, w.Body.String(), "timestamp")
		})
	}
}

func TestLiveness_IgnoresDependencies(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Even with a down listener and an unhealthy identity service,
	// liveness reports the process itself.
	handler := &Handler{
		listener:        &mockListener{ready: false},
		identityChecker: &mockIdentityChecker{status: "unhealthy"},
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health/live", nil)

	handler.Liveness(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
}

func TestReadiness_AllHealthy(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := &Handler{
		listener:        &mockListener{ready: true, sessions: 3, users: 2, rooms: 1},
		identityChecker: &mockIdentityChecker{status: "healthy"},
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health/ready", nil)

	handler.Readiness(c)

	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "ready")
	assert.Contains(t, body, `"sessions":3`)
	assert.Contains(t, body, `"users":2`)
	assert.Contains(t, body, `"rooms":1`)
}

func TestReadiness_ListenerDown(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := &Handler{
		listener:        &mockListener{ready: false},
		identityChecker: &mockIdentityChecker{status: "healthy"},
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health/ready", nil)

	handler.Readiness(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "unavailable")
	assert.Contains(t, body, `"listener":"unhealthy"`)
}

func TestReadiness_IdentityUnhealthy(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := &Handler{
		listener:        &mockListener{ready: true},
		identityChecker: &mockIdentityChecker{status: "unhealthy"},
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health/ready", nil)

	handler.Readiness(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"identity":"unhealthy"`)
}

func TestReadiness_ResponseFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := &Handler{
		listener:        &mockListener{ready: true},
		identityChecker: &mockIdentityChecker{status: "healthy"},
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health/ready", nil)

	handler.Readiness(c)

	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "status")
	assert.Contains(t, body, "checks")
	assert.Contains(t, body, "timestamp")
	assert.Contains(t, body, "listener")
	assert.Contains(t, body, "identity")
}

func TestDefaultIdentityChecker(t *testing.T) {
	// A fresh client's breaker is closed, so the check passes without
	// touching the network even though the address is unreachable.
	checker := &DefaultIdentityChecker{client: identity.New("http://127.0.0.1:1")}
	assert.Equal(t, "healthy", checker.Check(context.Background()))

	// Without a client there is nothing to trust.
	empty := &DefaultIdentityChecker{}
	assert.Equal(t, "unhealthy", empty.Check(context.Background()))
}

func TestNewHandler_DefaultValues(t *testing.T) {
	handler := NewHandler(&mockListener{}, nil)

	assert.NotNil(t, handler)
	assert.NotNil(t, handler.identityChecker)
}
