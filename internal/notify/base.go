package notify

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/config"
	"github.com/y001j/pizzeria-alerts/internal/model"
)

// ChannelStats 定义了渠道的统计信息
type ChannelStats struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Type       model.ChannelType `json:"type"`
	Enabled    bool              `json:"enabled"`
	SentTotal  int64             `json:"sent_total"`
	FailTotal  int64             `json:"fail_total"`
	LastError  string            `json:"last_error,omitempty"`
	LastSentAt time.Time         `json:"last_sent_at"`
}

// ChannelHealthStatus 渠道健康状态
type ChannelHealthStatus struct {
	Status    string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Message   string    `json:"message"`
	LastCheck time.Time `json:"last_check"`
}

// BaseChannel 提供了所有渠道的基础实现
type BaseChannel struct {
	id          string
	name        string
	channelType model.ChannelType
	enabled     atomic.Bool
	sent        atomic.Int64
	failed      atomic.Int64

	mu        sync.RWMutex
	lastError string
	lastSent  time.Time
}

// NewBaseChannel 创建一个新的基础渠道
func NewBaseChannel(channelType model.ChannelType) *BaseChannel {
	return &BaseChannel{channelType: channelType}
}

// ID returns the channel id.
func (b *BaseChannel) ID() string { return b.id }

// Name returns the display name.
func (b *BaseChannel) Name() string { return b.name }

// Type returns the channel type.
func (b *BaseChannel) Type() model.ChannelType { return b.channelType }

// Enabled reports whether the channel is switched on.
func (b *BaseChannel) Enabled() bool { return b.enabled.Load() }

// SetEnabled switches the channel on or off.
func (b *BaseChannel) SetEnabled(enabled bool) { b.enabled.Store(enabled) }

// Setup applies the common fields of a channel configuration.
func (b *BaseChannel) Setup(cfg model.AlertChannel) error {
	if cfg.ID == "" {
		return errors.New("channel id is required")
	}
	if cfg.Type != "" && cfg.Type != b.channelType {
		return fmt.Errorf("channel %s: type %q does not match %q", cfg.ID, cfg.Type, b.channelType)
	}
	b.id = cfg.ID
	b.name = cfg.Name
	if b.name == "" {
		b.name = cfg.ID
	}
	b.enabled.Store(cfg.Enabled)
	return nil
}

// RecordResult updates statistics after a send attempt.
func (b *BaseChannel) RecordResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failed.Add(1)
		b.lastError = err.Error()
		return
	}
	b.sent.Add(1)
	b.lastSent = time.Now()
}

// Stats 获取渠道统计信息
func (b *BaseChannel) Stats() ChannelStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return ChannelStats{
		ID:         b.id,
		Name:       b.name,
		Type:       b.channelType,
		Enabled:    b.Enabled(),
		SentTotal:  b.sent.Load(),
		FailTotal:  b.failed.Load(),
		LastError:  b.lastError,
		LastSentAt: b.lastSent,
	}
}

// Health 返回渠道健康状态
func (b *BaseChannel) Health() ChannelHealthStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	status := "healthy"
	message := "channel is delivering normally"
	if !b.Enabled() {
		status = "unhealthy"
		message = "channel is disabled"
	} else if b.lastError != "" {
		status = "degraded"
		message = b.lastError
	}
	return ChannelHealthStatus{Status: status, Message: message, LastCheck: time.Now()}
}

// LogInit logs a successful initialisation.
func (b *BaseChannel) LogInit() {
	log.Info().
		Str("channel_id", b.id).
		Str("channel_type", string(b.channelType)).
		Bool("enabled", b.Enabled()).
		Msg("notification channel initialised")
}

// StatsReporter is implemented by every channel embedding BaseChannel.
type StatsReporter interface {
	Stats() ChannelStats
	Health() ChannelHealthStatus
}

// DecodeParams turns a channel's free-form config map into typed params and
// validates them with struct tags.
func DecodeParams[T any](cfg model.AlertChannel, defaults T) (*T, error) {
	data := cfg.Config
	if data == nil {
		data = map[string]interface{}{}
	}
	params, err := config.NewParserWithDefaults(defaults).ParseFromMap(data)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", cfg.ID, err)
	}
	return params, nil
}
