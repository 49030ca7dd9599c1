package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/model"
	"github.com/y001j/pizzeria-alerts/internal/notify"
)

func init() {
	// 注册Redis渠道工厂
	notify.Register(model.ChannelRedis, func() notify.Channel {
		return NewRedisChannel()
	})
}

// Params 是Redis渠道的特定参数配置
type Params struct {
	Address   string `json:"address" validate:"required"`
	Password  string `json:"password"`
	Database  int    `json:"database" validate:"min=0"`
	Channel   string `json:"channel" validate:"required"`
	ListKey   string `json:"list_key"`
	MaxLength int    `json:"max_length" validate:"min=1"`
}

// client is the subset of *redis.Client the channel needs.
type client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Close() error
}

// RedisChannel publishes alerts on a pub/sub channel and keeps a capped
// list of recent alerts.
type RedisChannel struct {
	*notify.BaseChannel
	params *Params
	client client
}

// NewRedisChannel 创建一个新的Redis渠道
func NewRedisChannel() *RedisChannel {
	return &RedisChannel{BaseChannel: notify.NewBaseChannel(model.ChannelRedis)}
}

// Init builds the client without connecting.
func (c *RedisChannel) Init(cfg model.AlertChannel) error {
	if err := c.Setup(cfg); err != nil {
		return err
	}
	params, err := notify.DecodeParams(cfg, Params{Channel: "pizzeria:alerts", MaxLength: 500})
	if err != nil {
		return err
	}
	c.params = params
	if c.client == nil {
		c.client = redis.NewClient(&redis.Options{
			Addr:     params.Address,
			Password: params.Password,
			DB:       params.Database,
		})
	}
	c.LogInit()
	return nil
}

// Start checks connectivity.
func (c *RedisChannel) Start(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("connect redis %s: %w", c.params.Address, err)
	}
	log.Info().Str("channel_id", c.ID()).Str("address", c.params.Address).Msg("redis channel connected")
	return nil
}

// Send publishes the alert and, when a list key is configured, pushes it
// onto the capped history list.
func (c *RedisChannel) Send(ctx context.Context, alert *model.Alert) error {
	err := c.send(ctx, alert)
	c.RecordResult(err)
	return err
}

func (c *RedisChannel) send(ctx context.Context, alert *model.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := c.client.Publish(ctx, c.params.Channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	if c.params.ListKey == "" {
		return nil
	}
	if err := c.client.LPush(ctx, c.params.ListKey, payload).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	if err := c.client.LTrim(ctx, c.params.ListKey, 0, int64(c.params.MaxLength-1)).Err(); err != nil {
		return fmt.Errorf("redis ltrim: %w", err)
	}
	return nil
}

// Stop closes the client.
func (c *RedisChannel) Stop() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
