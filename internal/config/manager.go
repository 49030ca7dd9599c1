package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. ALERTD_WEB_ADDRESS.
const EnvPrefix = "ALERTD"

// ConfigManager manages all configuration operations
type ConfigManager interface {
	Load() error
	Validate() error
	Config() (*Config, error)
	Get(key string) interface{}
	GetAs(key string, target interface{}) error
	Watch(key string, callback func(interface{})) error
	Hot() HotReloadManager
	GetViper() *viper.Viper
}

// HotReloadManager manages hot configuration reloading
type HotReloadManager interface {
	Enable() error
	Disable() error
	IsEnabled() bool
	AddWatcher(key string, callback func(interface{})) error
}

// Manager implements ConfigManager on top of viper.
type Manager struct {
	viper     *viper.Viper
	watchers  map[string][]func(interface{})
	hotReload *hotReloadManager
	mu        sync.RWMutex
}

// NewManager creates a manager for the YAML file at configPath. An empty
// path runs on defaults and environment only.
func NewManager(configPath string) (*Manager, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	mgr := &Manager{
		viper:    v,
		watchers: make(map[string][]func(interface{})),
	}
	mgr.hotReload = &hotReloadManager{manager: mgr}
	return mgr, nil
}

// Load reads the configuration file, if one was given.
func (m *Manager) Load() error {
	if m.viper.ConfigFileUsed() == "" {
		return nil
	}
	if err := m.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", m.viper.ConfigFileUsed(), err)
	}
	return nil
}

// Validate decodes and checks the whole configuration.
func (m *Manager) Validate() error {
	_, err := m.Config()
	return err
}

// Config decodes the typed configuration and validates it.
func (m *Manager) Config() (*Config, error) {
	var cfg Config
	if err := m.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get gets a configuration value
func (m *Manager) Get(key string) interface{} {
	return m.viper.Get(key)
}

// GetAs gets a configuration value and unmarshals it into target
func (m *Manager) GetAs(key string, target interface{}) error {
	value := m.viper.Get(key)
	if value == nil {
		return fmt.Errorf("configuration key not found: %s", key)
	}

	// Round trip through JSON so nested maps land in typed fields.
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal config value: %w", err)
	}
	if err := json.Unmarshal(jsonData, target); err != nil {
		return fmt.Errorf("failed to unmarshal config value: %w", err)
	}
	return nil
}

// Watch registers callback for changes to key after a hot reload.
func (m *Manager) Watch(key string, callback func(interface{})) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers[key] = append(m.watchers[key], callback)
	return nil
}

// Hot returns the hot reload manager
func (m *Manager) Hot() HotReloadManager {
	return m.hotReload
}

// GetViper returns the underlying viper instance.
func (m *Manager) GetViper() *viper.Viper {
	return m.viper
}

// notifyAll pushes the current value of every watched key.
func (m *Manager) notifyAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for key, callbacks := range m.watchers {
		value := m.viper.Get(key)
		for _, callback := range callbacks {
			go callback(value)
		}
	}
}

// hotReloadManager implements HotReloadManager
type hotReloadManager struct {
	manager *Manager
	enabled bool
	mu      sync.RWMutex
}

// Enable starts watching the config file. Failure to watch is logged and
// the service keeps running on the loaded configuration.
func (h *hotReloadManager) Enable() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.enabled {
		return nil
	}
	if h.manager.viper.ConfigFileUsed() == "" {
		log.Info().Msg("no config file, hot reload disabled")
		return nil
	}

	if err := h.start(); err != nil {
		log.Warn().Err(err).Msg("config hot reload unavailable, continuing without it")
		return nil
	}
	h.enabled = true
	return nil
}

func (h *hotReloadManager) start() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("viper WatchConfig panic: %v", r)
		}
	}()

	h.manager.viper.OnConfigChange(func(e fsnotify.Event) {
		if !h.IsEnabled() {
			return
		}
		log.Info().Str("file", e.Name).Str("op", e.Op.String()).Msg("config file changed")
		h.manager.notifyAll()
	})
	h.manager.viper.WatchConfig()
	return nil
}

// Disable stops delivering change notifications.
func (h *hotReloadManager) Disable() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enabled = false
	return nil
}

// IsEnabled returns whether hot reloading is enabled
func (h *hotReloadManager) IsEnabled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.enabled
}

// AddWatcher adds a watcher for hot reload
func (h *hotReloadManager) AddWatcher(key string, callback func(interface{})) error {
	return h.manager.Watch(key, callback)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pizzeria-alerts")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	v.SetDefault("engine.eval_interval", 30*time.Second)
	v.SetDefault("engine.prune_schedule", "@every 1h")
	v.SetDefault("engine.retention", 7*24*time.Hour)
	v.SetDefault("engine.collect_timeout", 10*time.Second)
	v.SetDefault("engine.dispatch_timeout", 15*time.Second)
	v.SetDefault("engine.shutdown_timeout", 30*time.Second)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "file:./data/alerts.db?_pragma=busy_timeout(5000)")
	v.SetDefault("storage.auto_migrate", true)

	v.SetDefault("sources.database.timeout", 5*time.Second)
	v.SetDefault("sources.database.slow_query_ms", 1000)
	v.SetDefault("sources.system.enabled", true)
	v.SetDefault("sources.system.disk_path", "/")
	v.SetDefault("sources.business.enabled", false)
	v.SetDefault("sources.business.open_hour", 18)
	v.SetDefault("sources.business.close_hour", 23)

	v.SetDefault("bus.nats_url", "")

	v.SetDefault("web.enabled", true)
	v.SetDefault("web.address", ":8090")
	v.SetDefault("web.token_ttl", 12*time.Hour)
	v.SetDefault("web.admin_user", "admin")
}

// validateConfig checks struct tags and cross-field constraints.
func validateConfig(cfg *Config) error {
	if err := ValidateStruct(cfg); err != nil {
		return err
	}

	durations := map[string]time.Duration{
		"engine.eval_interval":    cfg.Engine.EvalInterval,
		"engine.retention":        cfg.Engine.Retention,
		"engine.collect_timeout":  cfg.Engine.CollectTimeout,
		"engine.dispatch_timeout": cfg.Engine.DispatchTimeout,
		"engine.shutdown_timeout": cfg.Engine.ShutdownTimeout,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(cfg.Engine.PruneSchedule); err != nil {
		return fmt.Errorf("engine.prune_schedule: %w", err)
	}

	if cfg.Sources.Business.Enabled && cfg.Sources.Business.OpenHour == cfg.Sources.Business.CloseHour {
		return fmt.Errorf("sources.business.open_hour and close_hour must differ")
	}
	if (cfg.Sources.Database.DSN != "" || cfg.Sources.Business.Enabled) && cfg.Sources.Database.Driver == "" {
		return fmt.Errorf("sources.database.driver is required when a database source is configured")
	}

	if cfg.Web.Enabled {
		if cfg.Web.JWTSecret == "" {
			return fmt.Errorf("web.jwt_secret is required when web is enabled")
		}
		if cfg.Web.AdminPasswordHash == "" {
			return fmt.Errorf("web.admin_password_hash is required when web is enabled")
		}
	}

	seen := make(map[string]bool, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		if ch.ID == "" {
			return fmt.Errorf("channels[%d].id is required", i)
		}
		if seen[ch.ID] {
			return fmt.Errorf("duplicate channel id %q", ch.ID)
		}
		seen[ch.ID] = true
		if ch.Type == "" {
			return fmt.Errorf("channels[%d].type is required", i)
		}
	}
	return nil
}
