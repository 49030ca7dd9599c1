package console

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/model"
	"github.com/y001j/pizzeria-alerts/internal/notify"
)

func init() {
	// 注册控制台渠道工厂
	notify.Register(model.ChannelConsole, func() notify.Channel {
		return NewConsoleChannel(log.Logger)
	})
}

// ConsoleChannel writes alerts to the operational log.
type ConsoleChannel struct {
	*notify.BaseChannel
	logger zerolog.Logger
}

// NewConsoleChannel 创建一个新的控制台渠道
func NewConsoleChannel(logger zerolog.Logger) *ConsoleChannel {
	return &ConsoleChannel{
		BaseChannel: notify.NewBaseChannel(model.ChannelConsole),
		logger:      logger,
	}
}

// Init 初始化控制台渠道
func (c *ConsoleChannel) Init(cfg model.AlertChannel) error {
	if err := c.Setup(cfg); err != nil {
		return err
	}
	c.LogInit()
	return nil
}

// Start is a no-op.
func (c *ConsoleChannel) Start(ctx context.Context) error { return nil }

// Send always succeeds.
func (c *ConsoleChannel) Send(ctx context.Context, alert *model.Alert) error {
	event := c.logger.WithLevel(levelFor(alert.Type))
	event.
		Str("channel_id", c.ID()).
		Str("alert_id", alert.ID).
		Str("severity", string(alert.Type)).
		Str("category", string(alert.Category)).
		Str("message", alert.Message).
		Strs("actions", alert.Actions).
		Time("timestamp", alert.Timestamp).
		Msg(fmt.Sprintf("ALERT [%s] %s", strings.ToUpper(string(alert.Type)), alert.Title))

	c.RecordResult(nil)
	return nil
}

// Stop is a no-op.
func (c *ConsoleChannel) Stop() error { return nil }

func levelFor(s model.Severity) zerolog.Level {
	switch s {
	case model.SeverityCritical:
		return zerolog.ErrorLevel
	case model.SeverityWarning:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}
