package jetstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/model"
	"github.com/y001j/pizzeria-alerts/internal/notify"
)

func init() {
	notify.Register(model.ChannelJetStream, func() notify.Channel {
		return NewJetStreamChannel()
	})
}

// Params JetStream渠道配置
type Params struct {
	URL           string `json:"url" validate:"url"`
	StreamName    string `json:"stream_name" validate:"required"`
	SubjectPrefix string `json:"subject_prefix" validate:"required"`
	MaxAgeHours   int    `json:"max_age_hours" validate:"min=1"`
	Replicas      int    `json:"replicas" validate:"range=1-5"`
}

// JetStreamChannel publishes alerts to a JetStream stream under
// <prefix>.<category>.<severity>.
type JetStreamChannel struct {
	*notify.BaseChannel
	params *Params

	mu       sync.Mutex
	conn     *nats.Conn
	ownsConn bool
	js       nats.JetStreamContext
}

// NewJetStreamChannel 创建JetStream渠道
func NewJetStreamChannel() *JetStreamChannel {
	return &JetStreamChannel{BaseChannel: notify.NewBaseChannel(model.ChannelJetStream)}
}

// SetNATSConnection reuses the runtime's bus connection.
func (c *JetStreamChannel) SetNATSConnection(conn *nats.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.ownsConn = false
}

// Init validates params. A url or a shared connection is required.
func (c *JetStreamChannel) Init(cfg model.AlertChannel) error {
	if err := c.Setup(cfg); err != nil {
		return err
	}
	params, err := notify.DecodeParams(cfg, Params{
		StreamName:    "PIZZERIA_ALERTS",
		SubjectPrefix: "pizzeria.alerts",
		MaxAgeHours:   7 * 24,
		Replicas:      1,
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	shared := c.conn != nil
	c.mu.Unlock()
	if params.URL == "" && !shared {
		return fmt.Errorf("channel %s: url is required without a shared bus connection", cfg.ID)
	}
	c.params = params
	c.LogInit()
	return nil
}

// Start connects if needed and makes sure the stream exists.
func (c *JetStreamChannel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		conn, err := nats.Connect(c.params.URL,
			nats.Name("pizzeria-alerts-"+c.ID()),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(10),
			nats.ReconnectWait(5*time.Second),
		)
		if err != nil {
			return fmt.Errorf("connect nats %s: %w", c.params.URL, err)
		}
		c.conn = conn
		c.ownsConn = true
	}

	js, err := c.conn.JetStream(nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("jetstream context: %w", err)
	}
	c.js = js

	if _, err := js.StreamInfo(c.params.StreamName); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     c.params.StreamName,
			Subjects: []string{c.params.SubjectPrefix + ".>"},
			MaxAge:   time.Duration(c.params.MaxAgeHours) * time.Hour,
			Replicas: c.params.Replicas,
			Storage:  nats.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("create stream %s: %w", c.params.StreamName, err)
		}
		log.Info().
			Str("channel_id", c.ID()).
			Str("stream", c.params.StreamName).
			Msg("jetstream stream created")
	}
	return nil
}

// Send publishes the alert and waits for the stream ack.
func (c *JetStreamChannel) Send(ctx context.Context, alert *model.Alert) error {
	err := c.publish(ctx, alert)
	c.RecordResult(err)
	return err
}

func (c *JetStreamChannel) publish(ctx context.Context, alert *model.Alert) error {
	c.mu.Lock()
	js := c.js
	c.mu.Unlock()
	if js == nil {
		return fmt.Errorf("jetstream channel %s not started", c.ID())
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	msg := nats.NewMsg(Subject(c.params.SubjectPrefix, alert))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, alert.ID)
	if _, err := js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("jetstream publish: %w", err)
	}
	return nil
}

// Stop closes the connection if this channel opened it.
func (c *JetStreamChannel) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && c.ownsConn {
		c.conn.Close()
	}
	c.js = nil
	return nil
}

// Subject returns the publish subject for an alert.
func Subject(prefix string, alert *model.Alert) string {
	return fmt.Sprintf("%s.%s.%s", strings.TrimSuffix(prefix, "."), alert.Category, alert.Type)
}
