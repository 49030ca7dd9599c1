package api

import (
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// SystemHandler 系统处理器
type SystemHandler struct {
	*BaseHandler
	engine  AlertEngine
	appName string
	started time.Time
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(engine AlertEngine, appName string) *SystemHandler {
	return &SystemHandler{
		BaseHandler: &BaseHandler{},
		engine:      engine,
		appName:     appName,
		started:     time.Now(),
	}
}

// SystemStatusResponse 系统状态
type SystemStatusResponse struct {
	Name          string    `json:"name"`
	StartedAt     time.Time `json:"started_at"`
	Uptime        string    `json:"uptime"`
	GoVersion     string    `json:"go_version"`
	Goroutines    int       `json:"goroutines"`
	EngineRunning bool      `json:"engine_running"`
	Rules         int       `json:"rules"`
	ActiveAlerts  int       `json:"active_alerts"`
	Channels      int       `json:"channels"`
}

// GetStatus 获取系统状态
// @Summary 获取系统状态
// @Description 获取服务运行状态和告警引擎概况
// @Tags 系统管理
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} APIResponse{data=SystemStatusResponse}
// @Failure 401 {object} APIResponse
// @Router /system/status [get]
func (h *SystemHandler) GetStatus(c *gin.Context) {
	stats := h.engine.Stats()
	h.SuccessResponse(c, SystemStatusResponse{
		Name:          h.appName,
		StartedAt:     h.started,
		Uptime:        time.Since(h.started).Truncate(time.Second).String(),
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
		EngineRunning: h.engine.Running(),
		Rules:         len(h.engine.Rules()),
		ActiveAlerts:  stats.Active,
		Channels:      len(h.engine.Channels()),
	})
}
