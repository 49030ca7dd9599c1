package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/y001j/pizzeria-alerts/internal/alerting"
	"github.com/y001j/pizzeria-alerts/internal/model"
	"github.com/y001j/pizzeria-alerts/internal/notify"
)

// AlertEngine is the administrative surface the API exposes.
type AlertEngine interface {
	ListActiveAlerts() []*model.Alert
	ResolveAlert(id, resolvedBy string) bool
	Stats() model.AlertStats
	TriggerManualAlert(severity model.Severity, category model.Category, title, message string, data map[string]interface{}) (*model.Alert, error)
	Rules() []model.AlertRule
	RuleStatuses() []alerting.RuleStatus
	SetRuleEnabled(id string, enabled bool) error
	ResetRuleCooldown(id string) error
	Channels() []notify.Channel
	Running() bool
}

// AlertHistory reads alerts recorded durably, including pruned ones.
type AlertHistory interface {
	Recent(ctx context.Context, limit int) ([]*model.Alert, error)
}

// BaseHandler 基础处理器
type BaseHandler struct{}

// APIResponse 统一 API 响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// SuccessResponse 成功响应
func (h *BaseHandler) SuccessResponse(c *gin.Context, data interface{}) {
	h.SuccessResponseWithCode(c, http.StatusOK, data)
}

// SuccessResponseWithCode writes a success envelope with a custom status.
func (h *BaseHandler) SuccessResponseWithCode(c *gin.Context, code int, data interface{}) {
	c.JSON(code, APIResponse{
		Success:   true,
		Message:   "Success",
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

// ErrorResponse 错误响应
func (h *BaseHandler) ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, APIResponse{
		Success:   false,
		Code:      code,
		Message:   message,
		Timestamp: time.Now().Unix(),
	})
}

// BindJSON binds the body and answers 400 on failure.
func (h *BaseHandler) BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.ErrorResponse(c, http.StatusBadRequest, "Validation failed: "+err.Error())
		return false
	}
	return true
}

// Username returns the authenticated operator.
func (h *BaseHandler) Username(c *gin.Context) string {
	return c.GetString("username")
}
