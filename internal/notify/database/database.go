package database

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/model"
	"github.com/y001j/pizzeria-alerts/internal/notify"
)

func init() {
	notify.Register(model.ChannelDatabase, func() notify.Channel {
		return NewDatabaseChannel()
	})
}

// DatabaseChannel records alerts in the durable alert sink. Failures are
// expected while the sink table is missing and are only logged at debug.
type DatabaseChannel struct {
	*notify.BaseChannel
	recorder notify.Recorder
}

// NewDatabaseChannel 创建数据库渠道
func NewDatabaseChannel() *DatabaseChannel {
	return &DatabaseChannel{BaseChannel: notify.NewBaseChannel(model.ChannelDatabase)}
}

// SetRecorder injects the durable sink.
func (c *DatabaseChannel) SetRecorder(r notify.Recorder) {
	c.recorder = r
}

// Init requires a recorder to have been injected.
func (c *DatabaseChannel) Init(cfg model.AlertChannel) error {
	if err := c.Setup(cfg); err != nil {
		return err
	}
	if c.recorder == nil {
		return errors.New("database channel requires an alert sink")
	}
	c.LogInit()
	return nil
}

// Start is a no-op; the sink is owned by the runtime.
func (c *DatabaseChannel) Start(ctx context.Context) error { return nil }

// Send inserts the alert.
func (c *DatabaseChannel) Send(ctx context.Context, alert *model.Alert) error {
	err := c.recorder.Insert(ctx, alert)
	c.RecordResult(err)
	if err != nil {
		log.Debug().
			Err(err).
			Str("channel_id", c.ID()).
			Str("alert_id", alert.ID).
			Msg("alert sink insert failed")
	}
	return err
}

// Stop is a no-op.
func (c *DatabaseChannel) Stop() error { return nil }
