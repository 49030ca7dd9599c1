package influxdb

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/y001j/pizzeria-alerts/internal/model"
	"github.com/y001j/pizzeria-alerts/internal/notify"
)

func init() {
	notify.Register(model.ChannelInfluxDB, func() notify.Channel {
		return NewInfluxDBChannel()
	})
}

// Params InfluxDB渠道配置
type Params struct {
	URL         string `json:"url" validate:"required,url"`
	Token       string `json:"token" validate:"required"`
	Org         string `json:"org" validate:"required"`
	Bucket      string `json:"bucket" validate:"required"`
	Measurement string `json:"measurement" validate:"required"`
}

// InfluxDBChannel records every alert as a point so dashboards can chart
// alert frequency next to the underlying metrics.
type InfluxDBChannel struct {
	*notify.BaseChannel
	params *Params
	client influxdb2.Client
	writer api.WriteAPIBlocking
}

// NewInfluxDBChannel 创建InfluxDB渠道
func NewInfluxDBChannel() *InfluxDBChannel {
	return &InfluxDBChannel{BaseChannel: notify.NewBaseChannel(model.ChannelInfluxDB)}
}

// Init creates the client and blocking write API.
func (c *InfluxDBChannel) Init(cfg model.AlertChannel) error {
	if err := c.Setup(cfg); err != nil {
		return err
	}
	params, err := notify.DecodeParams(cfg, Params{Measurement: "pizzeria_alerts"})
	if err != nil {
		return err
	}
	c.params = params
	if c.writer == nil {
		options := influxdb2.DefaultOptions().SetHTTPRequestTimeout(10)
		c.client = influxdb2.NewClientWithOptions(params.URL, params.Token, options)
		c.writer = c.client.WriteAPIBlocking(params.Org, params.Bucket)
	}
	c.LogInit()
	return nil
}

// Start is a no-op; writes connect lazily.
func (c *InfluxDBChannel) Start(ctx context.Context) error { return nil }

// Send writes one point per alert.
func (c *InfluxDBChannel) Send(ctx context.Context, alert *model.Alert) error {
	err := c.writer.WritePoint(ctx, Point(c.params.Measurement, alert))
	if err != nil {
		err = fmt.Errorf("influxdb write: %w", err)
	}
	c.RecordResult(err)
	return err
}

// Stop closes the client.
func (c *InfluxDBChannel) Stop() error {
	if c.client != nil {
		c.client.Close()
	}
	return nil
}

// Point maps an alert to a point tagged by rule, severity and category.
// Numeric snapshot values become fields.
func Point(measurement string, alert *model.Alert) *write.Point {
	tags := map[string]string{
		"severity": string(alert.Type),
		"category": string(alert.Category),
	}
	if alert.RuleID != "" {
		tags["rule_id"] = alert.RuleID
	} else {
		tags["rule_id"] = "manual"
	}

	fields := map[string]interface{}{
		"alert_id": alert.ID,
		"title":    alert.Title,
		"count":    1,
	}
	for k, v := range alert.Data {
		switch n := v.(type) {
		case float64, int, int64, bool:
			fields[k] = n
		}
	}

	ts := alert.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(measurement, tags, fields, ts)
}
