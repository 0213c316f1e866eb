// Package app wires together all dependencies and runs the cart service.
package app

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/commercekit/cart-service/internal/cleanup"
	"github.com/commercekit/cart-service/internal/config"
	"github.com/commercekit/cart-service/internal/event"
	handler "github.com/commercekit/cart-service/internal/handler/http"
	"github.com/commercekit/cart-service/internal/repository/postgres"
	"github.com/commercekit/cart-service/internal/service"
	"github.com/commercekit/cart-service/internal/stock"
	"github.com/commercekit/cart-service/pkg/database"
	"github.com/commercekit/cart-service/pkg/health"
	"github.com/commercekit/cart-service/pkg/httpclient"
	pkgkafka "github.com/commercekit/cart-service/pkg/kafka"
	"github.com/commercekit/cart-service/pkg/tracing"
)

// App holds the long-lived resources of the running service.
type App struct {
	cfg             *config.Config
	logger          *slog.Logger
	pool            *pgxpool.Pool
	rdb             *redis.Client
	producer        *pkgkafka.Producer
	sweeper         *cleanup.Sweeper
	httpServer      *http.Server
	tracingShutdown func(context.Context) error
}

// NewApp creates an application instance, initializing all dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, migrations embed.FS) (*App, error) {
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Tracing bootstrap.
	traceCfg := tracing.DefaultConfig("cart-service")
	traceCfg.Environment = cfg.Environment
	traceCfg.OTLPEndpoint = cfg.TracingEndpoint
	traceCfg.SampleRate = cfg.TracingSample
	traceCfg.Enabled = cfg.TracingEnabled

	tracingShutdown, err := tracing.InitTracer(initCtx, traceCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	// Postgres pool with migrations.
	pgCfg := database.DefaultPostgresConfig()
	pgCfg.Host = cfg.PostgresHost
	pgCfg.Port = cfg.PostgresPort
	pgCfg.User = cfg.PostgresUser
	pgCfg.Password = cfg.PostgresPassword
	pgCfg.DBName = cfg.PostgresDB
	pgCfg.SSLMode = cfg.PostgresSSLMode

	pool, err := database.NewPostgresPool(initCtx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := database.RunMigrations(initCtx, pool, migrations, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	prometheus.MustRegister(database.NewPoolStatsCollector(pool, "cart"))

	// Redis for the cleanup gate.
	rdb, err := database.NewRedisClient(initCtx, database.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	// Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Stock checker: circuit-broken inventory client, or disabled outright.
	var checker stock.Checker = stock.Disabled{}
	if cfg.StockEnabled {
		client := httpclient.New(httpclient.DefaultConfig())
		cbClient := httpclient.NewCircuitBreakerClient(client, httpclient.DefaultBreakerConfig("inventory"), nil)
		checker = stock.NewInventoryChecker(cbClient, cfg.InventoryURL, logger)
	}

	// Build the dependency graph.
	store := postgres.NewCartStore(pool)
	discounts := postgres.NewDiscountSource(pool)
	eventProducer := event.NewProducer(producer, logger)
	resolver := service.NewCartResolver(store, discounts, checker, eventProducer, logger, cfg.CheckStockLevels)

	sweeper := cleanup.NewSweeper(store, rdb, logger, cleanup.Config{
		CheckInterval: cfg.CleanupCheckInterval,
		RunInterval:   cfg.CleanupRunInterval,
		RetentionDays: cfg.CartRetentionDays,
	})

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.Register("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	router := handler.NewRouter(resolver, healthHandler, logger, cfg.SecureCookies, cfg.PprofCIDRs)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:             cfg,
		logger:          logger,
		pool:            pool,
		rdb:             rdb,
		producer:        producer,
		sweeper:         sweeper,
		httpServer:      httpServer,
		tracingShutdown: tracingShutdown,
	}, nil
}

// Run starts the HTTP server and the cart sweeper, blocking until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go a.sweeper.Run(sweepCtx)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}

	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
	}

	a.pool.Close()

	if a.tracingShutdown != nil {
		if err := a.tracingShutdown(shutdownCtx); err != nil {
			a.logger.Error("tracing shutdown error", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("application shutdown complete")
	return nil
}
