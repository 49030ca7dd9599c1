package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/config"
	"github.com/y001j/pizzeria-alerts/internal/model"
	"github.com/y001j/pizzeria-alerts/internal/notify"
)

func init() {
	notify.Register(model.ChannelWebhook, func() notify.Channel {
		return NewWebhookChannel(nil)
	})
}

// Params 定义了Webhook渠道的配置参数
type Params struct {
	URL     string            `json:"url" validate:"required,url"`
	Method  string            `json:"method" validate:"oneof=POST PUT"`
	Headers map[string]string `json:"headers"`
	Timeout config.Duration   `json:"timeout"` // "10s" 或毫秒数
}

// Poster performs the HTTP call. Tests swap it for a recorder.
type Poster interface {
	Post(ctx context.Context, method, url string, headers map[string]string, body []byte) (int, error)
}

// HTTPPoster posts through a net/http client.
type HTTPPoster struct {
	Client *http.Client
}

// Post sends body and returns the response status.
func (p *HTTPPoster) Post(ctx context.Context, method, url string, headers map[string]string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "pizzeria-alerts/1.0")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// Payload is the JSON body posted for each alert.
type Payload struct {
	Title     string                 `json:"title"`
	Color     string                 `json:"color"`
	Severity  model.Severity         `json:"severity"`
	Category  model.Category         `json:"category"`
	Message   string                 `json:"message"`
	Timestamp string                 `json:"timestamp"`
	AlertID   string                 `json:"alert_id"`
	Actions   []string               `json:"actions"`
	Data      map[string]interface{} `json:"data"`
}

// WebhookChannel posts alerts as JSON to an HTTP endpoint.
type WebhookChannel struct {
	*notify.BaseChannel
	params *Params
	poster Poster
}

// NewWebhookChannel 创建Webhook渠道; poster 为 nil 时使用默认HTTP客户端
func NewWebhookChannel(poster Poster) *WebhookChannel {
	return &WebhookChannel{
		BaseChannel: notify.NewBaseChannel(model.ChannelWebhook),
		poster:      poster,
	}
}

// Init parses the url, method, headers and timeout.
func (c *WebhookChannel) Init(cfg model.AlertChannel) error {
	if err := c.Setup(cfg); err != nil {
		return err
	}
	params, err := notify.DecodeParams(cfg, Params{Method: http.MethodPost, Timeout: config.Duration(10 * time.Second)})
	if err != nil {
		return err
	}
	if params.Timeout.Duration() < 100*time.Millisecond {
		return fmt.Errorf("channel %s: timeout must be at least 100ms", cfg.ID)
	}
	c.params = params
	if c.poster == nil {
		c.poster = &HTTPPoster{Client: &http.Client{Timeout: params.Timeout.Duration()}}
	}
	c.LogInit()
	return nil
}

// Start is a no-op.
func (c *WebhookChannel) Start(ctx context.Context) error { return nil }

// Send posts the alert. Any non-2xx status is a failure.
func (c *WebhookChannel) Send(ctx context.Context, alert *model.Alert) error {
	body, err := json.Marshal(BuildPayload(alert))
	if err != nil {
		c.RecordResult(err)
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	status, err := c.poster.Post(ctx, c.params.Method, c.params.URL, c.params.Headers, body)
	if err == nil && (status < 200 || status >= 300) {
		err = fmt.Errorf("webhook responded with status %d", status)
	}
	c.RecordResult(err)
	if err != nil {
		return err
	}

	log.Debug().
		Str("channel_id", c.ID()).
		Str("alert_id", alert.ID).
		Int("status_code", status).
		Msg("webhook delivered")
	return nil
}

// Stop is a no-op.
func (c *WebhookChannel) Stop() error { return nil }

// BuildPayload maps an alert onto the webhook body.
func BuildPayload(alert *model.Alert) Payload {
	actions := alert.Actions
	if actions == nil {
		actions = []string{}
	}
	data := alert.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	return Payload{
		Title:     alert.Title,
		Color:     Color(alert.Type),
		Severity:  alert.Type,
		Category:  alert.Category,
		Message:   alert.Message,
		Timestamp: alert.Timestamp.UTC().Format(time.RFC3339),
		AlertID:   alert.ID,
		Actions:   actions,
		Data:      data,
	}
}

// Color 获取告警级别对应的颜色
func Color(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "#d73027"
	case model.SeverityWarning:
		return "#fee08b"
	case model.SeverityInfo:
		return "#91bfdb"
	default:
		return "#999999"
	}
}
