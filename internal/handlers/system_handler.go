package handlers

import (
	"context"
	"time"

	"leasehub/internal/services"
	"leasehub/pkg/response"

	"github.com/gin-gonic/gin"
)

// HealthChecker 依赖健康检查
type HealthChecker func(ctx context.Context) error

// SystemHandler 系统处理器
type SystemHandler struct {
	sweeper  *services.ExpirySweeper
	hub      *services.EventHub
	checkers map[string]HealthChecker
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(sweeper *services.ExpirySweeper, hub *services.EventHub, checkers map[string]HealthChecker) *SystemHandler {
	return &SystemHandler{
		sweeper:  sweeper,
		hub:      hub,
		checkers: checkers,
	}
}

// Health 健康检查，任一依赖不可用时 status 为 degraded
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.checkers))
	for name, check := range h.checkers {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	response.Success(c, map[string]interface{}{
		"status":       status,
		"timestamp":    time.Now(),
		"service":      "LEASEHUB",
		"version":      "1.0.0",
		"dependencies": deps,
	})
}

func (h *SystemHandler) Ping(c *gin.Context) {
	response.SuccessWithMessage(c, "pong", nil)
}

// GetSchedulerStatus 到期清扫调度器状态
func (h *SystemHandler) GetSchedulerStatus(c *gin.Context) {
	data := map[string]interface{}{
		"timestamp": time.Now(),
		"sweeper":   h.sweeper.Status(),
	}
	if h.hub != nil {
		data["event_subscribers"] = h.hub.Count()
	}
	response.Success(c, data)
}
