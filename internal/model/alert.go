package model

import "time"

// Severity 告警级别
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

// Category groups rules and alerts by the part of the pizzeria they watch.
type Category string

const (
	CategoryDatabase    Category = "database"
	CategoryPerformance Category = "performance"
	CategorySecurity    Category = "security"
	CategoryBusiness    Category = "business"
	CategorySystem      Category = "system"
)

// Categories lists every category in a stable order.
var Categories = []Category{
	CategoryDatabase,
	CategoryPerformance,
	CategorySecurity,
	CategoryBusiness,
	CategorySystem,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryDatabase, CategoryPerformance, CategorySecurity, CategoryBusiness, CategorySystem:
		return true
	}
	return false
}

// Condition is a predicate over one metrics snapshot.
type Condition func(Snapshot) bool

// AlertRule 告警规则
type AlertRule struct {
	ID              string    `json:"id" yaml:"id"`
	Name            string    `json:"name" yaml:"name"`
	Category        Category  `json:"category" yaml:"category"`
	Severity        Severity  `json:"severity" yaml:"severity"`
	CooldownMinutes int       `json:"cooldown_minutes" yaml:"cooldown_minutes"`
	Enabled         bool      `json:"enabled" yaml:"enabled"`
	Description     string    `json:"description" yaml:"description"`
	Condition       Condition `json:"-" yaml:"-"`

	// Message renders the alert body from the snapshot that fired the rule.
	// Description is used when nil.
	Message func(Snapshot) string `json:"-" yaml:"-"`
}

// Cooldown returns the minimum spacing between two firings of the rule.
func (r AlertRule) Cooldown() time.Duration {
	if r.CooldownMinutes <= 0 {
		return 0
	}
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// Alert 告警信息
type Alert struct {
	ID         string                 `json:"id"`
	RuleID     string                 `json:"rule_id,omitempty"`
	Type       Severity               `json:"type"`
	Category   Category               `json:"category"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Resolved   bool                   `json:"resolved"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty"`
	ResolvedBy string                 `json:"resolved_by,omitempty"`
	Actions    []string               `json:"actions"`
}

// Clone returns a deep enough copy for handing alerts outside the store.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	c := *a
	if a.Data != nil {
		c.Data = make(map[string]interface{}, len(a.Data))
		for k, v := range a.Data {
			c.Data[k] = v
		}
	}
	if a.Actions != nil {
		c.Actions = append([]string(nil), a.Actions...)
	}
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

// ChannelType 通知渠道类型
type ChannelType string

const (
	ChannelConsole   ChannelType = "console"
	ChannelDatabase  ChannelType = "database"
	ChannelWebhook   ChannelType = "webhook"
	ChannelEmail     ChannelType = "email"
	ChannelRedis     ChannelType = "redis"
	ChannelMQTT      ChannelType = "mqtt"
	ChannelInfluxDB  ChannelType = "influxdb"
	ChannelJetStream ChannelType = "jetstream"
	ChannelWebSocket ChannelType = "websocket"
)

// AlertChannel 通知渠道配置
type AlertChannel struct {
	ID      string                 `json:"id" mapstructure:"id" yaml:"id"`
	Name    string                 `json:"name" mapstructure:"name" yaml:"name"`
	Type    ChannelType            `json:"type" mapstructure:"type" yaml:"type"`
	Enabled bool                   `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
	Config  map[string]interface{} `json:"config" mapstructure:"config" yaml:"config"`
}

// AlertStats 告警统计
type AlertStats struct {
	Total      int              `json:"total"`
	Active     int              `json:"active"`
	Resolved   int              `json:"resolved"`
	ByType     map[Severity]int `json:"by_type"`
	ByCategory map[Category]int `json:"by_category"`
}
