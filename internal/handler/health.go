package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler serves liveness and readiness. Readiness needs the database;
// the credential encryption state and enabled services are reported alongside.
type HealthHandler struct {
	Ping      func(ctx context.Context) error
	Encrypted func() bool
	Services  func() []string
}

type readiness struct {
	Status     string   `json:"status"`
	Database   string   `json:"database"`
	Encryption string   `json:"encryption"`
	Services   []string `json:"services"`
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

// @Summary Health check
// @Tags health
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Readiness check
// @Tags health
// @Success 200 {object} readiness
// @Failure 503 {object} readiness
// @Router /readyz [get]
func (h *HealthHandler) ready(c *gin.Context) {
	out := readiness{Status: "ready", Database: "ok", Encryption: "disabled", Services: []string{}}
	if h.Encrypted != nil && h.Encrypted() {
		out.Encryption = "enabled"
	}
	if h.Services != nil {
		if names := h.Services(); names != nil {
			out.Services = names
		}
	}
	switch {
	case h.Ping == nil:
		out.Status, out.Database = "not_ready", "missing"
	default:
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			out.Status, out.Database = "not_ready", "unreachable"
		}
	}
	if out.Status != "ready" {
		c.JSON(http.StatusServiceUnavailable, out)
		return
	}
	c.JSON(http.StatusOK, out)
}
