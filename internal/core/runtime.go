package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/y001j/pizzeria-alerts/internal/alerting"
	"github.com/y001j/pizzeria-alerts/internal/collector"
	"github.com/y001j/pizzeria-alerts/internal/config"
	"github.com/y001j/pizzeria-alerts/internal/model"
	"github.com/y001j/pizzeria-alerts/internal/core/bus"
	"github.com/y001j/pizzeria-alerts/internal/notify"
	"github.com/y001j/pizzeria-alerts/internal/notify/websocket"
	"github.com/y001j/pizzeria-alerts/internal/storage"
	"github.com/y001j/pizzeria-alerts/internal/web/api"
)

// ResolvedSubject carries resolution events when a bus is configured.
const ResolvedSubject = "pizzeria.alerts.resolved"

// Service is a component with a start/stop lifecycle.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Runtime wires configuration, storage, collectors, channels, the engine and
// the admin API.
type Runtime struct {
	Config *config.Config

	manager  *config.Manager
	db       *sql.DB
	sourceDB *sql.DB
	sink     *storage.AlertSink
	bus      *bus.Bus
	channels []notify.Channel
	engine   *alerting.Engine
	requests *collector.RequestCounters
	svcs     []Service

	mu      sync.Mutex
	cancel  context.CancelFunc
	watchWg sync.WaitGroup
}

// NewRuntime loads cfgPath and builds every component. Nothing runs until
// Start.
func NewRuntime(cfgPath string) (*Runtime, error) {
	manager, err := config.NewManager(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := manager.Load(); err != nil {
		return nil, err
	}
	cfg, err := manager.Config()
	if err != nil {
		return nil, err
	}
	ConfigureLogger(cfg.App, os.Stderr)

	rt := &Runtime{Config: cfg, manager: manager, requests: collector.NewRequestCounters()}
	if err := rt.build(); err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

// ConfigureLogger sets the global zerolog level and output.
func ConfigureLogger(app config.AppConfig, out io.Writer) {
	level, err := zerolog.ParseLevel(app.LogLevel)
	if err != nil || app.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var w io.Writer = out
	if app.LogFormat != "json" {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Str("app", app.Name).Logger()
}

func (r *Runtime) build() error {
	cfg := r.Config

	// storage
	if err := ensureSQLiteDir(cfg.Storage.Driver, cfg.Storage.DSN); err != nil {
		return err
	}
	db, dialect, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN, storage.DefaultPoolConfig())
	if err != nil {
		return err
	}
	r.db = db
	r.sink = storage.NewAlertSink(db, dialect)
	if cfg.Storage.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := r.sink.Migrate(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("migrate alert table: %w", err)
		}
	}

	// bus
	b, err := bus.Open(bus.Options{URL: cfg.Bus.NATSURL})
	if err != nil {
		return err
	}
	r.bus = b
	if b.Conn() != nil {
		log.Info().Bool("embedded", b.Embedded()).Str("url", b.Conn().ConnectedUrl()).Msg("nats bus ready")
	}

	// sources
	supplier, err := r.buildSupplier()
	if err != nil {
		return err
	}

	// channels
	r.channels = notify.Build(cfg.Channels, notify.Deps{Recorder: r.sink, NATS: r.bus.Conn()})

	store := alerting.NewStore(alerting.WithPersister(&resolutionFanout{sink: r.sink, bus: r.bus}))
	dispatcher := alerting.NewDispatcher(r.channels, cfg.Engine.DispatchTimeout)
	engine, err := alerting.NewEngine(supplier, alerting.DefaultRules(), store, dispatcher, alerting.EngineConfig{
		EvalInterval:   cfg.Engine.EvalInterval,
		PruneSchedule:  cfg.Engine.PruneSchedule,
		Retention:      cfg.Engine.Retention,
		CollectTimeout: cfg.Engine.CollectTimeout,
	})
	if err != nil {
		return err
	}
	r.engine = engine
	r.applyOverrides()

	if cfg.Web.Enabled {
		r.svcs = append(r.svcs, NewWebService(cfg.Web, cfg.App.Name, api.RouteDeps{
			Engine:  engine,
			History: r.sink,
			Login:   r.requests,
			Streams: r.embeddedStreams(),
		}, r.requests))
	}
	return nil
}

func (r *Runtime) buildSupplier() (*collector.Supplier, error) {
	cfg := r.Config.Sources
	supplier := collector.NewSupplier(r.Config.Engine.CollectTimeout, r.requests)

	if cfg.System.Enabled {
		supplier.Add(collector.NewSystemCollector(cfg.System.DiskPath))
	}

	if cfg.Database.Driver != "" {
		pool := storage.DefaultPoolConfig()
		db, dialect, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN, pool)
		if err != nil {
			return nil, fmt.Errorf("open source database: %w", err)
		}
		r.sourceDB = db
		dbCollector := collector.NewDatabaseCollector(db, time.Duration(cfg.Database.SlowQueryMs)*time.Millisecond)
		supplier.Add(dbCollector)

		if cfg.Business.Enabled {
			repo := collector.NewSQLOrderRepository(db, dialect).ObserveWith(dbCollector.ObserveQuery)
			supplier.Add(collector.NewBusinessCollector(repo, cfg.Business.OpenHour, cfg.Business.CloseHour))
		}
	}

	names := make([]string, 0, len(supplier.Collectors()))
	for _, c := range supplier.Collectors() {
		names = append(names, c.Name())
	}
	log.Info().Strs("collectors", names).Msg("metric sources ready")
	return supplier, nil
}

// embeddedStreams returns websocket feeds the admin API should mount.
func (r *Runtime) embeddedStreams() map[string]http.Handler {
	streams := make(map[string]http.Handler)
	for _, ch := range r.channels {
		ws, ok := ch.(*websocket.WebSocketChannel)
		if !ok || !ws.Enabled() || ws.Standalone() {
			continue
		}
		streams[ws.Path()] = ws.Handler()
	}
	return streams
}

func (r *Runtime) applyOverrides() {
	if n := r.engine.ApplyOverrides(r.Config.Rules.Overrides); n > 0 {
		log.Info().Int("applied", n).Msg("rule overrides from config applied")
	}
	if r.Config.Rules.File == "" {
		return
	}
	overrides, err := alerting.LoadOverrides(r.Config.Rules.File)
	if err != nil {
		log.Warn().Err(err).Str("file", r.Config.Rules.File).Msg("rule overrides file not loaded")
		return
	}
	if n := r.engine.ApplyOverrides(overrides); n > 0 {
		log.Info().Int("applied", n).Str("file", r.Config.Rules.File).Msg("rule overrides from file applied")
	}
}

// Engine exposes the alert engine.
func (r *Runtime) Engine() *alerting.Engine { return r.engine }

// Start starts channels, the engine, hot reload and registered services.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	notify.StartAll(runCtx, r.channels)

	if err := r.engine.Start(runCtx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	r.watchConfig(runCtx)

	for _, s := range r.svcs {
		if err := s.Start(runCtx); err != nil {
			log.Error().Err(err).Str("service", s.Name()).Msg("服务启动失败")
			return fmt.Errorf("服务 %s 启动失败: %w", s.Name(), err)
		}
	}
	log.Info().Int("channels", len(r.channels)).Int("services", len(r.svcs)).Msg("runtime started")
	return nil
}

func (r *Runtime) watchConfig(ctx context.Context) {
	if err := r.manager.Hot().Enable(); err != nil {
		log.Warn().Err(err).Msg("config hot reload unavailable")
	} else {
		_ = r.manager.Watch("rules.overrides", func(interface{}) {
			var overrides map[string]config.RuleOverride
			if err := r.manager.GetAs("rules.overrides", &overrides); err != nil {
				log.Warn().Err(err).Msg("reload rule overrides failed")
				return
			}
			n := r.engine.ApplyOverrides(overrides)
			log.Info().Int("applied", n).Msg("rule overrides reloaded from config")
		})
	}

	if r.Config.Rules.File == "" {
		return
	}
	r.watchWg.Add(1)
	go func() {
		defer r.watchWg.Done()
		err := alerting.WatchOverrides(ctx, r.Config.Rules.File, func(overrides map[string]config.RuleOverride) {
			n := r.engine.ApplyOverrides(overrides)
			log.Info().Int("applied", n).Str("file", r.Config.Rules.File).Msg("rule overrides reloaded")
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("file", r.Config.Rules.File).Msg("rule overrides watcher stopped")
		}
	}()
}

// Stop shuts everything down in reverse order within ctx.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for i := len(r.svcs) - 1; i >= 0; i-- {
		if err := r.svcs[i].Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.engine.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	_ = r.manager.Hot().Disable()
	if r.cancel != nil {
		r.cancel()
	}
	r.watchWg.Wait()

	notify.StopAll(r.channels)
	r.close()
	log.Info().Msg("runtime stopped")
	return errors.Join(errs...)
}

func (r *Runtime) close() {
	r.bus.Close()
	if r.sourceDB != nil {
		_ = r.sourceDB.Close()
	}
	if r.db != nil {
		_ = r.db.Close()
	}
}

// resolutionFanout persists resolutions and announces them on the bus.
type resolutionFanout struct {
	sink *storage.AlertSink
	bus  *bus.Bus
}

type resolvedEvent struct {
	AlertID    string    `json:"alert_id"`
	ResolvedAt time.Time `json:"resolved_at"`
	ResolvedBy string    `json:"resolved_by"`
}

func (f *resolutionFanout) Resolve(ctx context.Context, alert *model.Alert) error {
	err := f.sink.Resolve(ctx, alert)
	ev := resolvedEvent{AlertID: alert.ID, ResolvedAt: alert.ResolvedAt.UTC(), ResolvedBy: alert.ResolvedBy}
	if pubErr := f.bus.Publish(ResolvedSubject, ev); pubErr != nil {
		log.Debug().Err(pubErr).Str("alert_id", alert.ID).Msg("publish resolution failed")
	}
	return err
}

// ensureSQLiteDir creates the parent directory of a file-backed sqlite DSN.
func ensureSQLiteDir(driver, dsn string) error {
	if driver != string(storage.DialectSQLite) || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}

var _ alerting.Persister = (*resolutionFanout)(nil)
