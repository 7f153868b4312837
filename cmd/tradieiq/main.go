package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/tradieiq/engine/internal/api/feed"
	"github.com/tradieiq/engine/internal/api/handler"
	"github.com/tradieiq/engine/internal/api/router"
	"github.com/tradieiq/engine/internal/app"
	"github.com/tradieiq/engine/internal/config"
	"github.com/tradieiq/engine/internal/domain"
	"github.com/tradieiq/engine/internal/gateway/kratos"
	"github.com/tradieiq/engine/internal/gateway/local"
	firestorestore "github.com/tradieiq/engine/internal/store/firestore"
	"github.com/tradieiq/engine/internal/store/memory"
	postgresstore "github.com/tradieiq/engine/internal/store/postgres"
	redisstore "github.com/tradieiq/engine/internal/store/redis"
	"github.com/tradieiq/engine/shared/logger"
	"github.com/tradieiq/engine/shared/postgresql"
	"github.com/tradieiq/engine/shared/rabbitmq"
	redisclient "github.com/tradieiq/engine/shared/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("TRADIEIQ_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting engine",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("store", cfg.Store.Backend),
		slog.String("auth", cfg.Auth.Backend),
	)

	// runCtx bounds the job subscriptions the controller opens; cancelling it
	// tears down whatever the graceful path missed.
	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	// Initialize the job store backend
	store, healthProbe, closeStore, err := initStore(runCtx, cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize job store: %w", err)
	}

	appLogger.Info("Job store ready", slog.String("backend", cfg.Store.Backend))

	// Initialize the auth gateway
	gateway, closeGateway, err := initGateway(runCtx, cfg, appLogger.Logger)
	if err != nil {
		closeStore()
		return fmt.Errorf("failed to initialize auth gateway: %w", err)
	}

	appLogger.Info("Auth gateway ready", slog.String("backend", cfg.Auth.Backend))

	// The state feed is the controller's renderer; every snapshot it receives
	// fans out to the stream subscribers.
	stateFeed := feed.New(appLogger.Logger)

	features := domain.FeatureFlags{
		GoogleSignIn: cfg.Features.GoogleSignIn,
		Recording:    cfg.Features.Recording,
	}
	engine := app.New(gateway, store, stateFeed, features, appLogger.Logger)
	engine.Start(runCtx)

	// Initialize router
	r := initRouter(cfg, appLogger.Logger, engine, stateFeed, healthProbe)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	appLogger.Info("Starting HTTP server",
		slog.String("address", addr),
		slog.Duration("read_timeout", cfg.Server.ReadTimeout),
		slog.Duration("write_timeout", cfg.Server.WriteTimeout),
	)

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Engine is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
	}

	// Stop the engine before the clients underneath it: Shutdown cancels the
	// live job subscription, then the feed drops its stream subscribers, then
	// the gateway and store connections close.
	engine.Shutdown()
	stateFeed.Close()
	closeGateway()
	closeStore()

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initStore builds the configured job store backend. It returns the store, a
// health probe for the readiness endpoint (nil when the backend has no
// meaningful probe), and a close function for the underlying clients.
func initStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.JobStore, func(context.Context) error, func(), error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		return memory.New(logger), nil, func() {}, nil

	case config.StoreRedis:
		client, err := redisclient.NewClient(&redisclient.Config{
			Host:         cfg.Store.Redis.Host,
			Port:         cfg.Store.Redis.Port,
			Password:     cfg.Store.Redis.Password,
			DB:           cfg.Store.Redis.DB,
			DialTimeout:  cfg.Store.Redis.DialTimeout,
			ReadTimeout:  cfg.Store.Redis.ReadTimeout,
			WriteTimeout: cfg.Store.Redis.WriteTimeout,
			PoolSize:     cfg.Store.Redis.PoolSize,
		}, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		store := redisstore.New(client.GetClient(), logger)
		return store, client.HealthCheck, func() { client.Close() }, nil

	case config.StorePostgres:
		dbClient, err := postgresql.NewClient(&postgresql.Config{
			Host:            cfg.Store.Postgres.Host,
			Port:            cfg.Store.Postgres.Port,
			User:            cfg.Store.Postgres.User,
			Password:        cfg.Store.Postgres.Password,
			Database:        cfg.Store.Postgres.Database,
			SSLMode:         cfg.Store.Postgres.SSLMode,
			MaxOpenConns:    cfg.Store.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Store.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Store.Postgres.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Store.Postgres.ConnMaxIdleTime,
		}, logger)
		if err != nil {
			return nil, nil, nil, err
		}

		rabbitClient, err := rabbitmq.NewClient(&rabbitmq.Config{
			Host:               cfg.RabbitMQ.Host,
			Port:               cfg.RabbitMQ.Port,
			User:               cfg.RabbitMQ.User,
			Password:           cfg.RabbitMQ.Password,
			VHost:              cfg.RabbitMQ.VHost,
			ExchangeName:       cfg.RabbitMQ.Exchange.Name,
			ExchangeType:       cfg.RabbitMQ.Exchange.Type,
			ExchangeDurable:    cfg.RabbitMQ.Exchange.Durable,
			ExchangeAutoDelete: cfg.RabbitMQ.Exchange.AutoDelete,
			RetryAttempts:      cfg.RabbitMQ.Connection.RetryAttempts,
			RetryInterval:      cfg.RabbitMQ.Connection.RetryInterval,
			Heartbeat:          cfg.RabbitMQ.Connection.Heartbeat,
			ConnectionTimeout:  cfg.RabbitMQ.Connection.ConnectionTimeout,
			PublishRetries:     cfg.RabbitMQ.Publish.RetryAttempts,
			PublishRetryDelay:  cfg.RabbitMQ.Publish.RetryInterval,
			PublishBackoffMult: cfg.RabbitMQ.Publish.BackoffMultiplier,
		}, logger)
		if err != nil {
			dbClient.Close()
			return nil, nil, nil, err
		}

		store := postgresstore.New(dbClient, rabbitClient, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			rabbitClient.Close()
			dbClient.Close()
			return nil, nil, nil, err
		}

		closer := func() {
			rabbitClient.Close()
			dbClient.Close()
		}
		return store, dbClient.HealthCheck, closer, nil

	case config.StoreFirestore:
		store, err := firestorestore.New(ctx, cfg.Store.Firestore.ProjectID, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return store, nil, func() { store.Close() }, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}
}

// initGateway builds the configured auth gateway. The gateway publishes its
// startup notification here; the controller picks it up through the replay
// when it registers.
func initGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.AuthGateway, func(), error) {
	switch cfg.Auth.Backend {
	case config.AuthLocal:
		seed := make([]local.SeedUser, len(cfg.Auth.Local.SeedUsers))
		for i, s := range cfg.Auth.Local.SeedUsers {
			seed[i] = local.SeedUser{
				Email:       s.Email,
				Password:    s.Password,
				DisplayName: s.DisplayName,
			}
		}
		gw, err := local.New(seed, logger)
		if err != nil {
			return nil, nil, err
		}
		return gw, gw.Close, nil

	case config.AuthKratos:
		client, err := kratos.NewClient(cfg.Auth.Kratos.PublicURL, logger)
		if err != nil {
			return nil, nil, err
		}
		gw := kratos.New(client, cfg.Auth.Kratos.SessionTokenPath, logger)
		gw.Start(ctx)
		return gw, gw.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown auth backend: %q", cfg.Auth.Backend)
	}
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, engine *app.Controller, stateFeed *feed.StateFeed, healthProbe func(context.Context) error) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize handler dependencies
	handlerDeps := &handler.Dependencies{
		Logger:        logger,
		Engine:        engine,
		Feed:          stateFeed,
		HealthProbe:   healthProbe,
		AuthRateEvery: cfg.Auth.RateLimit.Every,
		AuthRateBurst: cfg.Auth.RateLimit.Burst,
	}

	// Setup router
	return router.SetupRouter(handlerDeps)
}
