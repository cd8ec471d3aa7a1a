package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/optsched/pkg/api/dto"
	"github.com/LENAX/optsched/pkg/core/engine"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	engine    *engine.Engine
	version   string
	startTime time.Time
}

// NewHealthHandler 创建HealthHandler
func NewHealthHandler(eng *engine.Engine, version string) *HealthHandler {
	return &HealthHandler{
		engine:    eng,
		version:   version,
		startTime: time.Now(),
	}
}

// Health 健康检查
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	uptime := time.Since(h.startTime)

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.HealthResponse{
		Status:     "healthy",
		Version:    h.version,
		Uptime:     formatDuration(uptime),
		Timestamp:  time.Now().Format(time.RFC3339),
		ActiveRuns: len(h.engine.ActiveRuns()),
	}))
}

// Ready 就绪检查
// GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"status": "ready",
	}))
}

// formatDuration 格式化时长
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
