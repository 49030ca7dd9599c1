package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/y001j/pizzeria-alerts/internal/model"
	"gopkg.in/yaml.v3"
)

// Duration accepts either a Go duration string ("30s") or a number of
// milliseconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return d.set(v)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v interface{}
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) set(v interface{}) error {
	switch value := v.(type) {
	case int:
		*d = Duration(time.Duration(value) * time.Millisecond)
	case float64:
		*d = Duration(time.Duration(value) * time.Millisecond)
	case string:
		duration, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("parse duration: %w", err)
		}
		*d = Duration(duration)
	default:
		return fmt.Errorf("invalid duration type: %T", v)
	}
	return nil
}

// Config is the full service configuration.
type Config struct {
	App      AppConfig            `mapstructure:"app" json:"app"`
	Engine   EngineConfig         `mapstructure:"engine" json:"engine"`
	Rules    RulesConfig          `mapstructure:"rules" json:"rules"`
	Storage  StorageConfig        `mapstructure:"storage" json:"storage"`
	Sources  SourcesConfig        `mapstructure:"sources" json:"sources"`
	Channels []model.AlertChannel `mapstructure:"channels" json:"channels"`
	Bus      BusConfig            `mapstructure:"bus" json:"bus"`
	Web      WebConfig            `mapstructure:"web" json:"web"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name      string `mapstructure:"name" json:"name" validate:"required"`
	LogLevel  string `mapstructure:"log_level" json:"log_level" validate:"oneof=trace debug info warn error fatal"`
	LogFormat string `mapstructure:"log_format" json:"log_format" validate:"oneof=console json"`
}

// EngineConfig controls the evaluation loop and retention.
type EngineConfig struct {
	EvalInterval    time.Duration `mapstructure:"eval_interval" json:"eval_interval"`
	PruneSchedule   string        `mapstructure:"prune_schedule" json:"prune_schedule" validate:"required"`
	Retention       time.Duration `mapstructure:"retention" json:"retention"`
	CollectTimeout  time.Duration `mapstructure:"collect_timeout" json:"collect_timeout"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout" json:"dispatch_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
}

// RuleOverride changes a catalog rule's runtime settings. Nil fields keep
// the catalog value.
type RuleOverride struct {
	Enabled         *bool `mapstructure:"enabled" json:"enabled,omitempty" yaml:"enabled,omitempty"`
	CooldownMinutes *int  `mapstructure:"cooldown_minutes" json:"cooldown_minutes,omitempty" yaml:"cooldown_minutes,omitempty"`
}

// RulesConfig 规则覆盖配置
type RulesConfig struct {
	File      string                  `mapstructure:"file" json:"file"`
	Overrides map[string]RuleOverride `mapstructure:"overrides" json:"overrides"`
}

// StorageConfig selects the durable alert sink.
type StorageConfig struct {
	Driver      string `mapstructure:"driver" json:"driver" validate:"oneof=sqlite mysql postgres"`
	DSN         string `mapstructure:"dsn" json:"dsn" validate:"required"`
	AutoMigrate bool   `mapstructure:"auto_migrate" json:"auto_migrate"`
}

// SourcesConfig 指标来源配置
type SourcesConfig struct {
	Database DatabaseSourceConfig `mapstructure:"database" json:"database"`
	System   SystemSourceConfig   `mapstructure:"system" json:"system"`
	Business BusinessSourceConfig `mapstructure:"business" json:"business"`
}

// DatabaseSourceConfig points at the storefront database being watched.
type DatabaseSourceConfig struct {
	Driver      string        `mapstructure:"driver" json:"driver"`
	DSN         string        `mapstructure:"dsn" json:"dsn"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
	SlowQueryMs int           `mapstructure:"slow_query_ms" json:"slow_query_ms" validate:"min=1"`
}

// SystemSourceConfig 主机指标配置
type SystemSourceConfig struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled"`
	DiskPath string `mapstructure:"disk_path" json:"disk_path"`
}

// BusinessSourceConfig reads order metrics from the storefront database.
type BusinessSourceConfig struct {
	Enabled   bool `mapstructure:"enabled" json:"enabled"`
	OpenHour  int  `mapstructure:"open_hour" json:"open_hour" validate:"range=0-23"`
	CloseHour int  `mapstructure:"close_hour" json:"close_hour" validate:"range=0-24"`
}

// BusConfig NATS 总线配置; "embedded" 启动内置服务器, 空字符串表示禁用
type BusConfig struct {
	NATSURL string `mapstructure:"nats_url" json:"nats_url"`
}

// WebConfig configures the admin HTTP API.
type WebConfig struct {
	Enabled           bool          `mapstructure:"enabled" json:"enabled"`
	Address           string        `mapstructure:"address" json:"address"`
	JWTSecret         string        `mapstructure:"jwt_secret" json:"-"`
	TokenTTL          time.Duration `mapstructure:"token_ttl" json:"token_ttl"`
	AdminUser         string        `mapstructure:"admin_user" json:"admin_user"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash" json:"-"`
}
