package notify

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/y001j/pizzeria-alerts/internal/model"
)

// Channel 定义了所有通知渠道必须实现的接口
type Channel interface {
	// ID returns the configured channel id.
	ID() string

	// Type returns the channel type.
	Type() model.ChannelType

	// Enabled reports whether the channel should receive alerts.
	Enabled() bool

	// Init validates and applies the channel configuration. An error means
	// the channel is unusable and must not be dispatched to.
	Init(cfg model.AlertChannel) error

	// Start acquires long lived resources (connections, listeners).
	Start(ctx context.Context) error

	// Send delivers one alert.
	Send(ctx context.Context, alert *model.Alert) error

	// Stop releases resources.
	Stop() error
}

// Recorder is the durable alert sink used by the database channel.
type Recorder interface {
	Insert(ctx context.Context, alert *model.Alert) error
}

// RecorderAware channels need the durable sink injected before Init.
type RecorderAware interface {
	Channel
	SetRecorder(r Recorder)
}

// NATSAware channels can reuse the runtime's shared NATS connection.
type NATSAware interface {
	Channel
	SetNATSConnection(conn *nats.Conn)
}

// Factory 定义了创建渠道实例的工厂函数类型
type Factory func() Channel

// Registry 维护所有已注册的渠道工厂
var Registry = make(map[model.ChannelType]Factory)

// Register 注册一个渠道工厂到全局注册表
func Register(channelType model.ChannelType, factory Factory) {
	Registry[channelType] = factory
}

// Create 根据类型创建渠道实例
func Create(channelType model.ChannelType) (Channel, bool) {
	factory, exists := Registry[channelType]
	if !exists {
		return nil, false
	}
	return factory(), true
}
