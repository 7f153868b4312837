// seed-jobs fills the configured job store with sample jobs for one owner.
// It writes through the same store implementations the engine uses, so a
// running engine signed in as that owner sees the jobs appear live.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/tradieiq/engine/internal/config"
	"github.com/tradieiq/engine/internal/domain"
	firestorestore "github.com/tradieiq/engine/internal/store/firestore"
	postgresstore "github.com/tradieiq/engine/internal/store/postgres"
	redisstore "github.com/tradieiq/engine/internal/store/redis"
	"github.com/tradieiq/engine/shared/logger"
	"github.com/tradieiq/engine/shared/postgresql"
	"github.com/tradieiq/engine/shared/rabbitmq"
	redisclient "github.com/tradieiq/engine/shared/redis"
)

// sampleJob is one seeded record: the draft the engine would capture plus the
// follow-up edits a tradie would have made since.
type sampleJob struct {
	draft     domain.JobDraft
	status    string
	tasks     []string
	materials []string
}

func sampleJobs() []sampleJob {
	return []sampleJob{
		{
			draft: domain.JobDraft{
				Client:     "Sarah Mitchell",
				Address:    "12 Harbour View Rd, Manly",
				Value:      "$4,800",
				Transcript: "Replace the back deck, about twenty square metres, merbau if the budget allows.",
			},
			status:    domain.JobStatusInProgress,
			tasks:     []string{"Strip old deck boards", "Check joists for rot", "Lay new merbau boards", "Oil and seal"},
			materials: []string{"Merbau decking 90x19 x 70m", "Stainless decking screws", "Decking oil 10L"},
		},
		{
			draft: domain.JobDraft{
				Client:     "Tom Barker",
				Address:    "3/45 Station St, Penrith",
				Value:      "$950",
				Transcript: "Leaking mixer in the ensuite and the laundry tap needs a new washer.",
			},
			status: domain.JobStatusQuoted,
			tasks:  []string{"Replace ensuite mixer", "Re-washer laundry tap"},
		},
		{
			draft: domain.JobDraft{
				Client:     "Priya Nair",
				Address:    "88 Wattle Cres, Blacktown",
				Value:      "$2,300",
				Transcript: "Fence blew over in the storm, roughly fifteen metres of colorbond along the west side.",
			},
			status:    domain.JobStatusCompleted,
			tasks:     []string{"Remove damaged panels", "Set new posts", "Hang colorbond sheets"},
			materials: []string{"Colorbond panels x 10", "Post mix concrete x 8 bags"},
		},
		{
			draft: domain.JobDraft{
				Client:     "Dave Okafor",
				Address:    "7 Seaview Pde, Cronulla",
				Value:      "$12,500",
				Transcript: "Full bathroom reno, strip to the studs, walk-in shower, wall-hung vanity.",
			},
		},
		{
			draft: domain.JobDraft{
				Client:  "Lin Zhao",
				Address: "21 Orchard Ave, Castle Hill",
				Value:   "$640",
			},
		},
	}
}

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
	owner := flag.String("owner", "", "Owner id to seed jobs for (required)")
	flag.Parse()

	if *owner == "" {
		return fmt.Errorf("the -owner flag is required")
	}

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

	if cfg.Store.Backend == config.StoreMemory {
		return fmt.Errorf("the memory store lives inside the engine process; seed against redis, postgres, or firestore")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Initialize the job store backend
	store, closeStore, err := initStore(ctx, cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize job store: %w", err)
	}
	defer closeStore()

	appLogger.Info("Seeding jobs",
		slog.String("backend", cfg.Store.Backend),
		slog.String("owner_id", *owner),
	)

	for _, sample := range sampleJobs() {
		id, err := store.Create(ctx, *owner, sample.draft)
		if err != nil {
			return fmt.Errorf("failed to create job for %q: %w", sample.draft.Client, err)
		}

		patch := patchFor(sample)
		if !patch.IsZero() {
			if err := store.Update(ctx, *owner, id, patch); err != nil {
				return fmt.Errorf("failed to update job %s: %w", id, err)
			}
		}

		appLogger.Info("Seeded job",
			slog.String("job_id", id),
			slog.String("client", sample.draft.Client),
		)
	}

	appLogger.Info("Seeding complete", slog.Int("jobs", len(sampleJobs())))
	return nil
}

// patchFor builds the follow-up edit for a sample. A zero patch means the job
// stays exactly as captured.
func patchFor(sample sampleJob) domain.JobPatch {
	var patch domain.JobPatch
	if sample.status != "" {
		status := sample.status
		patch.Status = &status
	}
	if sample.tasks != nil {
		tasks := sample.tasks
		patch.Tasks = &tasks
	}
	if sample.materials != nil {
		materials := sample.materials
		patch.Materials = &materials
	}
	return patch
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

// initStore builds the configured job store backend and a close function for
// the underlying clients.
func initStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (domain.JobStore, func(), error) {
	switch cfg.Store.Backend {
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
			return nil, nil, err
		}
		return redisstore.New(client.GetClient(), logger), func() { client.Close() }, nil

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
			return nil, nil, err
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
			return nil, nil, err
		}

		store := postgresstore.New(dbClient, rabbitClient, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			rabbitClient.Close()
			dbClient.Close()
			return nil, nil, err
		}

		closer := func() {
			rabbitClient.Close()
			dbClient.Close()
		}
		return store, closer, nil

	case config.StoreFirestore:
		store, err := firestorestore.New(ctx, cfg.Store.Firestore.ProjectID, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}
}
