// Package app initializes and holds long-lived console services, acting as a
// dependency injection container for the commands.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/purifier-console/internal/clock/system"
	"github.com/JakeFAU/purifier-console/internal/config"
	"github.com/JakeFAU/purifier-console/internal/console"
	"github.com/JakeFAU/purifier-console/internal/id/uuid"
	"github.com/JakeFAU/purifier-console/internal/manager"
	"github.com/JakeFAU/purifier-console/internal/progress"
	"github.com/JakeFAU/purifier-console/internal/progress/sinks"
	"github.com/JakeFAU/purifier-console/internal/storage/memory"
	"github.com/JakeFAU/purifier-console/internal/storage/postgres"
	"github.com/JakeFAU/purifier-console/internal/store"
)

const closeTimeout = 5 * time.Second

// App holds the shared, long-lived services of one console process.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	manager *manager.Client
	console *console.Service
	actions store.ActionRepository
	dialer  progress.Dialer
	hub     *progress.Hub
	pg      *postgres.ActionStore

	mu       sync.Mutex
	channels []*progress.Channel
}

// Options override pieces of the container, mainly for tests.
type Options struct {
	// Dialer replaces the websocket dialer of every progress channel.
	Dialer progress.Dialer
	// Registerer receives the progress Prometheus collectors; the default
	// registerer when nil.
	Registerer prometheus.Registerer
}

// New wires every service from cfg. Postgres is only contacted when
// audit.dsn is set; otherwise the audit log lives in memory.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := manager.New(cfg.Manager.BaseURL, manager.Options{
		Timeout: cfg.ManagerTimeout(),
		Logger:  logger.Named("manager"),
	})
	if err != nil {
		return nil, fmt.Errorf("init manager client: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, manager: client}

	if cfg.Audit.DSN != "" {
		pg, err := postgres.NewActionStore(ctx, postgres.ActionStoreConfig{DSN: cfg.Audit.DSN, Table: cfg.Audit.Table})
		if err != nil {
			return nil, fmt.Errorf("init audit store: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("init audit store: %w", err)
		}
		a.pg = pg
		a.actions = pg
		logger.Info("audit log in postgres", zap.String("table", cfg.Audit.Table))
	} else {
		a.actions = memory.NewActionStore(cfg.Audit.Capacity)
		logger.Debug("audit log in memory", zap.Int("capacity", cfg.Audit.Capacity))
	}

	a.console, err = console.New(console.Config{
		Manager: client,
		Actions: a.actions,
		Clock:   system.New(),
		IDs:     uuid.New(),
		Logger:  logger.Named("console"),
	})
	if err != nil {
		a.closeStore()
		return nil, fmt.Errorf("init console service: %w", err)
	}

	a.dialer = opts.Dialer
	if a.dialer == nil {
		var header http.Header
		if cfg.Auth.Enabled {
			header = http.Header{"X-API-Key": {cfg.Auth.APIKey}}
		}
		a.dialer = progress.NewWebsocketDialer(cfg.HandshakeTimeout(), header)
	}

	promSink, err := sinks.NewPrometheusSink(opts.Registerer)
	if err != nil {
		a.closeStore()
		return nil, fmt.Errorf("init progress metrics: %w", err)
	}
	hubCfg := cfg.HubSettings()
	hubCfg.Logger = logger.Named("hub")
	a.hub = progress.NewHub(hubCfg, sinks.NewLogSink(logger.Named("progress")), promSink)

	return a, nil
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetManager returns the raw manager client.
func (a *App) GetManager() *manager.Client {
	return a.manager
}

// GetConsole returns the validating, auditing operator service.
func (a *App) GetConsole() *console.Service {
	return a.console
}

// GetActions returns the audit log repository.
func (a *App) GetActions() store.ActionRepository {
	return a.actions
}

// GetHub returns the progress fan-out hub.
func (a *App) GetHub() *progress.Hub {
	return a.hub
}

// NewChannel builds a disconnected progress channel whose events go to the
// hub and then to onEvent, if set. Close disconnects every channel built
// here.
func (a *App) NewChannel(onEvent func(progress.Event)) (*progress.Channel, error) {
	wsURL, err := a.cfg.ProgressURL()
	if err != nil {
		return nil, fmt.Errorf("progress url: %w", err)
	}
	logger := a.logger.Named("channel")
	ch, err := progress.NewChannel(progress.Config{
		URL:        wsURL,
		RetryDelay: a.cfg.RetryDelay(),
		Dialer:     a.dialer,
		Logger:     logger,
		OnEvent: func(evt progress.Event) {
			a.hub.Emit(evt)
			if onEvent != nil {
				onEvent(evt)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init progress channel: %w", err)
	}
	a.mu.Lock()
	a.channels = append(a.channels, ch)
	a.mu.Unlock()
	return ch, nil
}

// Ping checks the audit database when one is configured.
func (a *App) Ping(ctx context.Context) error {
	if a.pg == nil {
		return nil
	}
	return a.pg.Ping(ctx)
}

// Close gracefully shuts down all services in the container. It is called by
// a cobra hook after the command finishes.
func (a *App) Close() {
	a.mu.Lock()
	channels := a.channels
	a.channels = nil
	a.mu.Unlock()
	a.logger.Debug("shutting down console services", zap.Int("channels", len(channels)))
	for _, ch := range channels {
		ch.Disconnect()
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := a.hub.Close(ctx); err != nil {
		a.logger.Warn("progress hub close failed", zap.Error(err))
	}
	a.closeStore()

	// Sync fails on terminals; there is nowhere left to report it.
	_ = a.logger.Sync()
}

func (a *App) closeStore() {
	if a.pg != nil {
		a.pg.Close()
	}
}
