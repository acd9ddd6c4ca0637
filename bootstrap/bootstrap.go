// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/masterdata/adapters/clock"
	"github.com/artpar/masterdata/adapters/idgen"
	"github.com/artpar/masterdata/adapters/metrics"
	"github.com/artpar/masterdata/adapters/sqlite"
	"github.com/artpar/masterdata/adapters/watch"
	"github.com/artpar/masterdata/app"
	"github.com/artpar/masterdata/config"
	"github.com/artpar/masterdata/core/accessor"
	httpchannel "github.com/artpar/masterdata/core/channel/http"
	"github.com/artpar/masterdata/core/events"
	"github.com/artpar/masterdata/core/openapi"
	"github.com/artpar/masterdata/core/registry"
	"github.com/artpar/masterdata/core/storage"
)

// App represents the running application.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	DB      *sqlite.DB
	Metrics *metrics.Collector

	Schemas *app.SchemaService
	Records *app.RecordService
	Groups  *sqlite.GroupStore
	Cache   *registry.Registry
	Bus     *events.Bus
	HTTP    *httpchannel.Channel

	promRegistry *prometheus.Registry
	watcher      *watch.Watcher
	holder       *config.Holder
	started      bool
}

// New creates and initializes the application from cfg. Nothing runs in
// the background until Start.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)
	logger.Info().Msg("initializing masterdata")

	a := &App{
		Config: cfg,
		Logger: logger,
		Cache:  registry.New(),
		Bus:    events.NewBus(logger),
	}

	if err := a.initDatabase(); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	if cfg.Metrics.Enabled {
		a.promRegistry = prometheus.NewRegistry()
		a.promRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(a.promRegistry)
		logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	if err := a.initServices(); err != nil {
		a.DB.Close()
		return nil, fmt.Errorf("init services: %w", err)
	}

	a.initHTTP()
	return a, nil
}

func (a *App) initDatabase() error {
	dsn := a.Config.Database.DSN

	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	a.DB = db
	a.Logger.Info().Str("dsn", dsn).Msg("database initialized")
	return nil
}

func (a *App) initServices() error {
	docs, err := storage.NewSQLiteStoreFromDB(a.DB.DB)
	if err != nil {
		return fmt.Errorf("record store: %w", err)
	}

	builder := accessor.NewBuilder(docs, idgen.Short{}, clock.Real{})
	a.Groups = sqlite.NewGroupStore(a.DB)
	a.Bus.Subscribe("schema.*", events.LogHandler(a.Logger))

	a.Schemas = app.NewSchemaService(
		sqlite.NewSchemaStore(a.DB, clock.Real{}),
		a.Groups,
		builder,
		a.Cache,
		a.Bus,
		a.Metrics,
		a.Logger,
		app.SchemaServiceConfig{SyncInterval: a.Config.Cache.SyncInterval},
	)

	a.Records = app.NewRecordService(a.Cache, a.Metrics, a.Logger, app.RecordServiceConfig{
		DefaultLimit: a.Config.Records.DefaultLimit,
		MaxLimit:     a.Config.Records.MaxLimit,
	})

	if a.Config.Cache.WatchStore && !sqlite.IsMemory(a.Config.Database.DSN) {
		w, err := watch.New(a.Config.Database.DSN, watch.DefaultDebounce, a.Schemas.Trigger, a.Logger)
		if err != nil {
			return fmt.Errorf("store watcher: %w", err)
		}
		a.watcher = w
	}

	return nil
}

func (a *App) initHTTP() {
	cfg := httpchannel.Config{
		Metrics:      a.Metrics,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		OpenAPI: openapi.NewService(openapi.ServiceConfig{
			Layouts: a.Cache.Layouts,
			Logger:  a.Logger,
		}),
	}
	if a.promRegistry != nil {
		cfg.MetricsHandler = promhttp.HandlerFor(a.promRegistry, promhttp.HandlerOpts{})
		cfg.MetricsPath = a.Config.Metrics.Path
	}

	a.HTTP = httpchannel.New(a.Schemas, a.Records, a.Logger, a.Config.Server.Addr(), cfg)
}

// Handler returns the HTTP handler without starting a listener.
func (a *App) Handler() http.Handler {
	return a.HTTP.Handler()
}

// WatchConfig reloads the log level whenever the config file at path
// changes or the process receives SIGHUP.
func (a *App) WatchConfig(path string) error {
	h, err := config.NewHolder(path, a.Logger)
	if err != nil {
		return err
	}

	h.OnChange(func(cfg *config.Config) {
		if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			zerolog.SetGlobalLevel(level)
		}
	})
	if err := h.WatchFile(); err != nil {
		h.Stop()
		return err
	}
	h.WatchSignals()

	a.holder = h
	return nil
}

// Start loads the schema cache and begins serving. The listener is
// skipped when listen is false.
func (a *App) Start(ctx context.Context, listen bool) error {
	if err := a.Schemas.Start(ctx); err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}
	a.started = true

	if a.watcher != nil {
		if err := a.watcher.Start(); err != nil {
			a.Logger.Warn().Err(err).Msg("store watcher disabled")
			a.watcher = nil
		}
	}

	if listen {
		return a.HTTP.Start(ctx)
	}
	return nil
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	if err := a.Start(context.Background(), true); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")

	return a.Shutdown()
}

// Shutdown stops background work and closes the database.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.holder != nil {
		a.holder.Stop()
	}

	if a.HTTP != nil {
		if err := a.HTTP.Stop(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.watcher != nil {
		a.watcher.Stop()
	}

	if a.started {
		a.Schemas.Stop()
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
