// Package health serves the liveness and readiness probes exposed on
// the ops router.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/identity"
	"github.com/RoseWrightdev/Rhythm-Multiplayer/backend/go/internal/v1/logging"
)

// Listener is the part of the game server the readiness probe needs:
// whether the TCP listener is accepting connections, and how much state
// the registry currently holds.
type Listener interface {
	Ready() bool
	Counts() (sessions, users, rooms int)
}

// IdentityChecker checks the health of the upstream identity service.
type IdentityChecker interface {
	Check(ctx context.Context) string
}

// DefaultIdentityChecker is the default implementation of IdentityChecker.
type DefaultIdentityChecker struct {
	client *identity.Client
}

// Check reads the identity client's circuit breaker instead of probing
// the upstream directly. An open breaker means recent calls failed, so
// new players could not authenticate anyway.
func (c *DefaultIdentityChecker) Check(ctx context.Context) string {
	if c.client == nil {
		return "unhealthy"
	}
	state := c.client.BreakerState()
	if state == gobreaker.StateOpen {
		logging.Warn(ctx, "Identity circuit breaker is open", zap.String("state", state.String()))
		return "unhealthy"
	}
	return "healthy"
}

// Handler manages health check endpoints
type Handler struct {
	listener        Listener
	identityChecker IdentityChecker
}

// NewHandler creates a new health check handler
func NewHandler(listener Listener, idc *identity.Client) *Handler {
	return &Handler{
		listener:        listener,
		identityChecker: &DefaultIdentityChecker{client: idc},
	}
}

// LivenessResponse represents the liveness probe response
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Sessions  int               `json:"sessions"`
	Users     int               `json:"users"`
	Rooms     int               `json:"rooms"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint
// GET /health/live
// Returns 200 if the process is alive (no dependency checks)
func (h *Handler) Liveness(c *gin.Context) {
	response := LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(http.StatusOK, response)
}

// Readiness handles the readiness probe endpoint
// GET /health/ready
// Returns 200 only if the game listener is accepting connections and
// the identity service is reachable
// Returns 503 otherwise
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	listenerStatus := h.checkListener()
	checks["listener"] = listenerStatus
	if listenerStatus != "healthy" {
		allHealthy = false
	}

	identityStatus := h.checkIdentity(ctx)
	checks["identity"] = identityStatus
	if identityStatus != "healthy" {
		allHealthy = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	var sessions, users, rooms int
	if h.listener != nil {
		sessions, users, rooms = h.listener.Counts()
	}

	response := ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Sessions:  sessions,
		Users:     users,
		Rooms:     rooms,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	c.JSON(statusCode, response)
}

// checkListener verifies the game listener is bound and accepting
func (h *Handler) checkListener() string {
	if h.listener == nil || !h.listener.Ready() {
		return "unhealthy"
	}
	return "healthy"
}

// checkIdentity verifies the identity service via its circuit breaker
func (h *Handler) checkIdentity(ctx context.Context) string {
	if h.identityChecker == nil {
		return "unhealthy"
	}
	return h.identityChecker.Check(ctx)
}
