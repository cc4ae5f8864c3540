// Package app assembles the storage, change feed and services shared by the
// server and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"dashboards/internal/catalog"
	"dashboards/internal/config"
	"dashboards/internal/domain/repositories"
	"dashboards/internal/domain/services"
	"dashboards/internal/feed"
	"dashboards/internal/metrics"
	badgerstore "dashboards/internal/repository/badger"
	"dashboards/internal/repository/items"
	"dashboards/internal/repository/postgres"
	auditsvc "dashboards/internal/service/audit"
	dashboardsvc "dashboards/internal/service/dashboard"
	"dashboards/internal/service/friendlyurl"
	"dashboards/internal/service/identity"
	"dashboards/internal/service/topicarea"
	widgetsvc "dashboards/internal/service/widget"
	"dashboards/internal/worker"
)

const (
	memoryFeedSize  = 4096
	repairQueueSize = 256
)

// App holds the assembled services
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	Dashboards services.DashboardService
	Widgets    services.WidgetService
	TopicAreas services.TopicAreaService
	Audit      services.AuditService

	// AuditConsumer reads the change feed. Nil until OpenConsumer is called.
	AuditConsumer *auditsvc.Consumer

	Pool *pgxpool.Pool // set for the postgres driver

	repairs     *worker.Pool
	baseStore   repositories.ItemStore
	auditRepo   repositories.AuditRepository
	memoryFeed  *feed.MemoryFeed
	redisClient *redis.Client
	closers     []func() error
}

// New opens storage and the change feed and wires the services
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.build(ctx); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		a.Metrics = metrics.New(reg)
	}

	base, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.baseStore = base

	var store repositories.ItemStore = base
	if a.Metrics != nil {
		store = metrics.NewInstrumentedStore(base, a.Metrics)
	}

	publisher, err := a.openPublisher(ctx)
	if err != nil {
		return err
	}
	recorded := feed.NewRecordingStore(store, publisher, logger)

	cat, err := catalog.Load()
	if err != nil {
		return fmt.Errorf("load widget catalog: %w", err)
	}

	tokens := identity.NewTokens(nil)
	a.repairs = worker.NewPool(cfg.RepairWorkers, repairQueueSize, logger)

	// Audit entries are written to the unrecorded store so that they do
	// not feed back into the change feed.
	a.auditRepo = items.NewAuditRepository(store, logger)

	dashboardRepo := items.NewDashboardRepository(recorded, logger)
	widgetRepo := items.NewWidgetRepository(recorded, logger)
	topicAreaRepo := items.NewTopicAreaRepository(recorded, logger)
	urlRepo := items.NewFriendlyURLRepository(recorded, logger)

	a.Dashboards = dashboardsvc.NewService(dashboardsvc.Deps{
		Dashboards:        dashboardRepo,
		Widgets:           widgetRepo,
		TopicAreas:        topicAreaRepo,
		URLs:              friendlyurl.NewAllocator(urlRepo, logger),
		Tokens:            tokens,
		Metrics:           a.Metrics,
		Repairs:           a.repairs,
		RepairConcurrency: cfg.RepairWorkers,
	}, logger)
	a.Widgets = widgetsvc.NewService(widgetRepo, dashboardRepo, cat, tokens, a.Metrics, logger)
	a.TopicAreas = topicarea.NewService(topicAreaRepo, tokens, logger)
	a.Audit = auditsvc.NewService(a.auditRepo, logger)
	return nil
}

func (a *App) openStore(ctx context.Context) (repositories.ItemStore, error) {
	cfg, logger := a.Config, a.Logger

	switch cfg.StoreDriver {
	case "postgres":
		pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.Pool = pool
		a.closers = append(a.closers, func() error { pool.Close(); return nil })

		tables := postgres.NewTableNames(cfg.TablePrefix)
		if err := postgres.EnsureSchema(ctx, pool, tables); err != nil {
			return nil, err
		}
		logger.Info("connected to postgres", "table_prefix", cfg.TablePrefix)
		return postgres.NewItemStore(&postgres.RepositoryConfig{Pool: pool, Tables: tables, Logger: logger}), nil

	default:
		bcfg := badgerstore.DefaultConfig(cfg.BadgerDir)
		bcfg.Logger = logger
		db, err := badgerstore.Open(bcfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := a.startBadgerGC(db, bcfg); err != nil {
			return nil, err
		}
		logger.Info("opened badger store", "dir", cfg.BadgerDir)
		return badgerstore.NewItemStore(db, logger), nil
	}
}

func (a *App) startBadgerGC(db *badger.DB, cfg badgerstore.Config) error {
	if cfg.GCInterval <= 0 {
		return nil
	}
	gc, err := badgerstore.NewGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, a.Logger)
	if err != nil {
		return err
	}
	gc.Start()
	// Closers run in reverse, so GC stops before the database closes.
	a.closers = append(a.closers, func() error { gc.Stop(); return nil })
	return nil
}

func (a *App) openPublisher(ctx context.Context) (repositories.ChangePublisher, error) {
	cfg := a.Config
	if cfg.FeedDriver == "redis" {
		client, err := feed.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.redisClient = client
		a.closers = append(a.closers, client.Close)
		return feed.NewRedisPublisher(client, a.redisConfig()), nil
	}
	a.memoryFeed = feed.NewMemoryFeed(memoryFeedSize)
	a.closers = append(a.closers, a.memoryFeed.Close)
	return a.memoryFeed, nil
}

func (a *App) redisConfig() feed.RedisConfig {
	return feed.DefaultRedisConfig(a.Config.FeedStream, a.Config.FeedGroup, a.Config.FeedConsumer)
}

// OpenConsumer attaches the audit consumer to the change feed. With the
// memory feed only events published by this process are seen.
func (a *App) OpenConsumer(ctx context.Context) (*auditsvc.Consumer, error) {
	var sub repositories.ChangeSubscriber
	switch {
	case a.redisClient != nil:
		s, err := feed.NewRedisSubscriber(ctx, a.redisClient, a.redisConfig(), a.Logger)
		if err != nil {
			return nil, err
		}
		sub = s
	case a.memoryFeed != nil:
		sub = a.memoryFeed
	default:
		return nil, errors.New("no change feed configured")
	}
	a.AuditConsumer = auditsvc.NewConsumer(sub, a.auditRepo, a.Metrics, a.Logger)
	return a.AuditConsumer, nil
}

// Close drains background repairs and releases storage and feed connections
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.repairs != nil {
		if err := a.repairs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("repair pool: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
