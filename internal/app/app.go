package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/cartstate/internal/catalog"
	"github.com/utafrali/cartstate/internal/config"
	"github.com/utafrali/cartstate/internal/event"
	handler "github.com/utafrali/cartstate/internal/handler/http"
	"github.com/utafrali/cartstate/internal/notify"
	"github.com/utafrali/cartstate/internal/repository"
	"github.com/utafrali/cartstate/internal/repository/memory"
	pgrepo "github.com/utafrali/cartstate/internal/repository/postgres"
	redisrepo "github.com/utafrali/cartstate/internal/repository/redis"
	"github.com/utafrali/cartstate/internal/service"
	"github.com/utafrali/cartstate/pkg/database"
	"github.com/utafrali/cartstate/pkg/health"
	"github.com/utafrali/cartstate/pkg/httpclient"
	pkgkafka "github.com/utafrali/cartstate/pkg/kafka"
	"github.com/utafrali/cartstate/pkg/middleware"
	"github.com/utafrali/cartstate/pkg/tracing"
)

// App wires together all dependencies and runs the cart state service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	manager        *service.CartManager
	closeStore     func()
	kafka          *pkgkafka.Producer
	events         *event.Producer
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "cart-state",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{
		cfg:            cfg,
		logger:         logger,
		closeStore:     func() {},
		tracerShutdown: tracerShutdown,
	}
	if err := a.build(ctx); err != nil {
		a.release()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	healthHandler := health.NewHandler()

	// Snapshot store.
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a.closeStore = closeStore
	if p, ok := store.(repository.Pinger); ok {
		healthHandler.RegisterCritical("store", p.Ping)
	}

	// Catalog API client with retries and a circuit breaker.
	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = cfg.HTTPClientTimeout()
	clientCfg.MaxRetries = cfg.HTTPClientRetries
	baseClient := httpclient.New(clientCfg)
	cbCfg := httpclient.DefaultCircuitBreakerConfig("catalog-api")
	cbCfg.FailureRatio = cfg.CBFailureRatio
	cbCfg.MinRequests = cfg.CBMinRequests
	cbCfg.Timeout = time.Duration(cfg.CBOpenTimeoutSec) * time.Second
	cbClient := httpclient.NewCircuitBreakerClient(baseClient, cbCfg, logger).
		WithFallback(catalog.CircuitOpenFallback)
	logger.Info("circuit breaker initialized",
		slog.String("name", cbCfg.Name),
		slog.Float64("failure_ratio", cbCfg.FailureRatio),
		slog.Uint64("min_requests", uint64(cbCfg.MinRequests)),
	)

	stockClient := catalog.NewStockClient(cbClient, cfg.CatalogURL)
	productClient := catalog.NewProductClient(cbClient, cfg.CatalogURL)
	healthHandler.RegisterNonCritical("catalog", catalogCheck(cbClient, productClient.Ping))

	// Notification sinks.
	recorder := notify.NewRecorder(cfg.NotificationBuffer)
	sinks := notify.Fanout{notify.NewLogSink(logger), recorder}

	if cfg.KafkaEnabled() {
		a.kafka = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.events = event.NewProducer(a.kafka, cfg.StorageKey, cfg.NotificationBuffer, logger)
		sinks = append(sinks, a.events)
		brokers := cfg.KafkaBrokers
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, brokers)
		})
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	manager, err := service.NewCartManager(ctx, stockClient, productClient, store, sinks, logger, service.Options{
		StorageKey:       cfg.StorageKey,
		OperationTimeout: cfg.OperationTimeout(),
	})
	if err != nil {
		return fmt.Errorf("restore cart: %w", err)
	}
	if a.events != nil {
		manager.Subscribe(a.events.CartChanged)
	}
	a.manager = manager

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins

	router := handler.NewRouter(manager, recorder, healthHandler, logger, handler.RouterOptions{
		CORS: cors,
		RateLimit: middleware.RateLimitConfig{
			RPS:        cfg.RateLimitRPS,
			Burst:      cfg.RateLimitBurst,
			TrustProxy: cfg.RateLimitTrustProxy,
		},
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// openStore connects the snapshot store selected by cfg.Store. The returned
// func releases its connections.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.SnapshotStore, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory cart store; the cart will not survive a restart")
		return memory.NewSnapshotStore(), func() {}, nil

	case config.StoreRedis:
		rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis",
			slog.String("addr", cfg.RedisAddr),
			slog.Int("db", cfg.RedisDB),
		)
		closeFn := func() {
			if err := rdb.Close(); err != nil {
				logger.Error("redis close error", slog.String("error", err.Error()))
			}
		}
		return redisrepo.NewSnapshotStore(rdb, cfg.SnapshotTTL()), closeFn, nil

	case config.StorePostgres:
		pool, err := database.NewPostgresPool(ctx, database.DefaultPostgresConfig(cfg.PostgresDSN), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		store := pgrepo.NewSnapshotStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure cart schema: %w", err)
		}
		logger.Info("connected to PostgreSQL")
		return store, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown cart store %q", cfg.Store)
	}
}

// catalogCheck fails fast while the catalog breaker is open and pings the
// catalog API otherwise.
func catalogCheck(cb *httpclient.CircuitBreakerClient, ping health.Checker) health.Checker {
	return func(ctx context.Context) error {
		if cb.State() == gobreaker.StateOpen {
			return errors.New("catalog circuit breaker is open")
		}
		return ping(ctx)
	}
}

// Handler returns the HTTP handler serving the cart API.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Manager returns the cart manager.
func (a *App) Manager() *service.CartManager {
	return a.manager
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.release()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Cart event queue, then the Kafka writer
// 3. Tracer
// 4. Snapshot store
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	errs = append(errs, a.release())

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// release closes everything except the HTTP server.
func (a *App) release() error {
	var errs []error

	if a.events != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.events.Close(drainCtx); err != nil {
			a.logger.Error("cart event drain error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.tracerShutdown != nil {
		tracerCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.closeStore()
	return errors.Join(errs...)
}
