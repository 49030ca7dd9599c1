package api

import (
	"github.com/gin-gonic/gin"
	"github.com/y001j/pizzeria-alerts/internal/notify"
)

// ChannelHandler 通知渠道处理器
type ChannelHandler struct {
	*BaseHandler
	engine AlertEngine
}

// NewChannelHandler 创建渠道处理器
func NewChannelHandler(engine AlertEngine) *ChannelHandler {
	return &ChannelHandler{BaseHandler: &BaseHandler{}, engine: engine}
}

// ChannelView is one entry of GET /api/channels.
type ChannelView struct {
	ID      string                      `json:"id"`
	Type    string                      `json:"type"`
	Enabled bool                        `json:"enabled"`
	Stats   *notify.ChannelStats        `json:"stats,omitempty"`
	Health  *notify.ChannelHealthStatus `json:"health,omitempty"`
}

// List returns every configured channel with delivery stats and health.
func (h *ChannelHandler) List(c *gin.Context) {
	channels := h.engine.Channels()
	views := make([]ChannelView, 0, len(channels))
	for _, ch := range channels {
		view := ChannelView{ID: ch.ID(), Type: string(ch.Type()), Enabled: ch.Enabled()}
		if r, ok := ch.(notify.StatsReporter); ok {
			stats, health := r.Stats(), r.Health()
			view.Stats, view.Health = &stats, &health
		}
		views = append(views, view)
	}
	h.SuccessResponse(c, gin.H{"channels": views, "total": len(views)})
}
