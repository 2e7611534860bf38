// Package health exposes the liveness and readiness probes. The service
// holds all state in memory and has no external dependencies, so readiness
// only reports in-process checks.
package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler manages health check endpoints.
type Handler struct{}

// NewHandler creates a new health check handler.
func NewHandler() *Handler {
	return &Handler{}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles GET /health/live. Returns 200 if the process is alive.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /health/ready.
func (h *Handler) Readiness(c *gin.Context) {
	c.JSON(http.StatusOK, ReadinessResponse{
		Status:    "ready",
		Checks:    map[string]string{"lobby": "healthy"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
