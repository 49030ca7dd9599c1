package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/y001j/pizzeria-alerts/internal/alerting"
)

// RuleHandler 规则处理器
type RuleHandler struct {
	*BaseHandler
	engine AlertEngine
}

// NewRuleHandler 创建规则处理器
func NewRuleHandler(engine AlertEngine) *RuleHandler {
	return &RuleHandler{BaseHandler: &BaseHandler{}, engine: engine}
}

// SetEnabledRequest is the body of PUT /api/rules/:id/enabled.
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// List returns the rule catalog with current settings.
func (h *RuleHandler) List(c *gin.Context) {
	rules := h.engine.RuleStatuses()
	h.SuccessResponse(c, gin.H{"rules": rules, "total": len(rules)})
}

// ResetCooldown lets a rule fire again on the next evaluation.
func (h *RuleHandler) ResetCooldown(c *gin.Context) {
	id := c.Param("id")
	if err := h.engine.ResetRuleCooldown(id); err != nil {
		if errors.Is(err, alerting.ErrUnknownRule) {
			h.ErrorResponse(c, http.StatusNotFound, err.Error())
			return
		}
		h.ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	h.SuccessResponse(c, gin.H{"id": id, "cooldown_reset": true})
}

// SetEnabled toggles a rule.
func (h *RuleHandler) SetEnabled(c *gin.Context) {
	var req SetEnabledRequest
	if !h.BindJSON(c, &req) {
		return
	}
	id := c.Param("id")
	if err := h.engine.SetRuleEnabled(id, *req.Enabled); err != nil {
		if errors.Is(err, alerting.ErrUnknownRule) {
			h.ErrorResponse(c, http.StatusNotFound, err.Error())
			return
		}
		h.ErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	h.SuccessResponse(c, gin.H{"id": id, "enabled": *req.Enabled})
}
