package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/y001j/pizzeria-alerts/internal/alerting"
	"github.com/y001j/pizzeria-alerts/internal/model"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// AlertHandler 告警处理器
type AlertHandler struct {
	*BaseHandler
	engine  AlertEngine
	history AlertHistory
}

// NewAlertHandler 创建告警处理器; history 可为 nil
func NewAlertHandler(engine AlertEngine, history AlertHistory) *AlertHandler {
	return &AlertHandler{BaseHandler: &BaseHandler{}, engine: engine, history: history}
}

// ManualAlertRequest is the body of POST /api/alerts/manual.
type ManualAlertRequest struct {
	Type     model.Severity         `json:"type" binding:"required"`
	Category model.Category         `json:"category" binding:"required"`
	Title    string                 `json:"title" binding:"required"`
	Message  string                 `json:"message"`
	Data     map[string]interface{} `json:"data"`
}

// ListActive returns unresolved alerts, newest first.
func (h *AlertHandler) ListActive(c *gin.Context) {
	alerts := h.engine.ListActiveAlerts()
	h.SuccessResponse(c, gin.H{
		"alerts": alerts,
		"total":  len(alerts),
	})
}

// History returns the newest recorded alerts with stats over them.
func (h *AlertHandler) History(c *gin.Context) {
	if h.history == nil {
		h.ErrorResponse(c, http.StatusServiceUnavailable, "alert history unavailable")
		return
	}
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			h.ErrorResponse(c, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	alerts, err := h.history.Recent(c.Request.Context(), limit)
	if err != nil {
		h.ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	if alerts == nil {
		alerts = []*model.Alert{}
	}
	h.SuccessResponse(c, gin.H{
		"alerts": alerts,
		"total":  len(alerts),
		"stats":  alerting.Aggregate(alerts),
	})
}

// Resolve marks an alert resolved by the calling operator.
func (h *AlertHandler) Resolve(c *gin.Context) {
	id := c.Param("id")
	if !h.engine.ResolveAlert(id, h.Username(c)) {
		h.ErrorResponse(c, http.StatusNotFound, "alert not found or already resolved")
		return
	}
	h.SuccessResponse(c, gin.H{"id": id, "resolved": true})
}

// Stats returns aggregate counts.
func (h *AlertHandler) Stats(c *gin.Context) {
	h.SuccessResponse(c, h.engine.Stats())
}

// TriggerManual raises an operator alert.
func (h *AlertHandler) TriggerManual(c *gin.Context) {
	var req ManualAlertRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if req.Data == nil {
		req.Data = map[string]interface{}{}
	}
	if _, ok := req.Data["triggeredBy"]; !ok {
		req.Data["triggeredBy"] = h.Username(c)
	}

	alert, err := h.engine.TriggerManualAlert(req.Type, req.Category, req.Title, req.Message, req.Data)
	if err != nil {
		h.ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	h.SuccessResponseWithCode(c, http.StatusCreated, alert)
}
