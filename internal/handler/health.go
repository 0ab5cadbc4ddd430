package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"wallet-guard/internal/handler/response"
	"wallet-guard/pkg/errno"
)

// Pinger 可以探活的依赖 (存储, 注入脚本)
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc 把函数适配为 Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	version string
	checks  map[string]Pinger
}

func NewHealthHandler(version string, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{version: version, checks: checks}
}

// HealthCheck godoc
// @Summary Check system health
// @Description Get the current health status of the server and its dependencies
// @Tags system
// @Produce  json
// @Success 200 {object} response.Response
// @Router /api/v1/health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "UP"
	deps := make(gin.H, len(h.checks))
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			deps[name] = err.Error()
			status = "DEGRADED"
			continue
		}
		deps[name] = "UP"
	}

	if status != "UP" {
		response.Error(c, errno.InternalServerError.WithMessage("health check: %s", status))
		return
	}
	response.Success(c, gin.H{
		"status":       status,
		"version":      h.version,
		"service":      "wallet-guard",
		"dependencies": deps,
	})
}
