package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/model"
	"github.com/y001j/pizzeria-alerts/internal/notify"
)

func init() {
	notify.Register(model.ChannelMQTT, func() notify.Channel {
		return NewMQTTChannel()
	})
}

var connectTimeout = 10 * time.Second

// Params 是MQTT渠道的特定参数配置
type Params struct {
	Broker      string `json:"broker" validate:"required,url"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix" validate:"required"`
	QoS         int    `json:"qos" validate:"range=0-2"`
	Retained    bool   `json:"retained"`
}

// MQTTChannel publishes each alert to <prefix>/<category>/<severity>.
type MQTTChannel struct {
	*notify.BaseChannel
	params    *Params
	client    mqtt.Client
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// NewMQTTChannel 创建MQTT渠道
func NewMQTTChannel() *MQTTChannel {
	return &MQTTChannel{
		BaseChannel: notify.NewBaseChannel(model.ChannelMQTT),
		newClient:   mqtt.NewClient,
	}
}

// Init prepares client options.
func (c *MQTTChannel) Init(cfg model.AlertChannel) error {
	if err := c.Setup(cfg); err != nil {
		return err
	}
	params, err := notify.DecodeParams(cfg, Params{TopicPrefix: "pizzeria/alerts", QoS: 1})
	if err != nil {
		return err
	}
	if params.ClientID == "" {
		params.ClientID = "pizzeria-alerts-" + cfg.ID
	}
	c.params = params

	opts := mqtt.NewClientOptions()
	opts.AddBroker(params.Broker)
	opts.SetClientID(params.ClientID)
	opts.SetUsername(params.Username)
	opts.SetPassword(params.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetCleanSession(true)

	id := cfg.ID
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Str("channel_id", id).Msg("mqtt channel connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("channel_id", id).Msg("mqtt connection lost")
	})

	c.client = c.newClient(opts)
	c.LogInit()
	return nil
}

// Start connects to the broker. On failure the client is disconnected so
// paho's connect retry loop does not outlive the channel.
func (c *MQTTChannel) Start(ctx context.Context) error {
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		c.client.Disconnect(0)
		return fmt.Errorf("connect mqtt broker %s: timed out", c.params.Broker)
	}
	if err := token.Error(); err != nil {
		c.client.Disconnect(0)
		return fmt.Errorf("connect mqtt broker %s: %w", c.params.Broker, err)
	}
	return nil
}

// Send publishes the alert as JSON.
func (c *MQTTChannel) Send(ctx context.Context, alert *model.Alert) error {
	err := c.publish(ctx, alert)
	c.RecordResult(err)
	return err
}

func (c *MQTTChannel) publish(ctx context.Context, alert *model.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	token := c.client.Publish(Topic(c.params.TopicPrefix, alert), byte(c.params.QoS), c.params.Retained, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop disconnects, also ending any pending reconnect loop.
func (c *MQTTChannel) Stop() error {
	if c.client != nil {
		c.client.Disconnect(250)
	}
	return nil
}

// Topic returns the publish topic for an alert.
func Topic(prefix string, alert *model.Alert) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(prefix, "/"), alert.Category, alert.Type)
}
