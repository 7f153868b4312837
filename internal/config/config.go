package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Store backends selectable via store.backend
const (
	StoreMemory    = "memory"
	StoreRedis     = "redis"
	StorePostgres  = "postgres"
	StoreFirestore = "firestore"
)

// Auth backends selectable via auth.backend
const (
	AuthLocal  = "local"
	AuthKratos = "kratos"
)

// Config represents the complete engine configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Features FeaturesConfig `yaml:"features"`
	Auth     AuthConfig     `yaml:"auth"`
	Store    StoreConfig    `yaml:"store"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration. WriteTimeout should stay
// zero when the state stream is in use; a non-zero value cuts long-lived
// event streams off mid-connection.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// FeaturesConfig holds presentation feature toggles. They are carried
// verbatim into every snapshot and never inferred from other settings.
type FeaturesConfig struct {
	GoogleSignIn bool `yaml:"google_signin"`
	Recording    bool `yaml:"recording"`
}

// AuthConfig selects and configures the auth gateway
type AuthConfig struct {
	Backend   string          `yaml:"backend"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Local     LocalAuthConfig `yaml:"local"`
	Kratos    KratosConfig    `yaml:"kratos"`
}

// RateLimitConfig holds the per-client token bucket applied to the auth
// endpoints. A zero Every disables the limiter.
type RateLimitConfig struct {
	Every time.Duration `yaml:"every"`
	Burst int           `yaml:"burst"`
}

// LocalAuthConfig holds accounts pre-registered with the local gateway
type LocalAuthConfig struct {
	SeedUsers []SeedUserConfig `yaml:"seed_users"`
}

// SeedUserConfig is one development account for the local gateway
type SeedUserConfig struct {
	Email       string `yaml:"email"`
	Password    string `yaml:"password"`
	DisplayName string `yaml:"display_name"`
}

// KratosConfig holds Ory Kratos gateway settings
type KratosConfig struct {
	PublicURL        string `yaml:"public_url"`
	SessionTokenPath string `yaml:"session_token_path"`
}

// StoreConfig selects and configures the job store backend
type StoreConfig struct {
	Backend   string          `yaml:"backend"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  DatabaseConfig  `yaml:"postgres"`
	Firestore FirestoreConfig `yaml:"firestore"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// FirestoreConfig holds Google Cloud Firestore settings
type FirestoreConfig struct {
	ProjectID string `yaml:"project_id"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange configuration. It is
// only consulted when the postgres store backend is selected; that store
// publishes change events through the exchange.
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	return c.validateAuth()
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case StoreMemory:
		return nil

	case StoreRedis:
		if c.Store.Redis.Host == "" {
			return fmt.Errorf("redis host is required")
		}
		if c.Store.Redis.Port < MinPort || c.Store.Redis.Port > MaxPort {
			return fmt.Errorf("invalid redis port: %d (must be between %d and %d)", c.Store.Redis.Port, MinPort, MaxPort)
		}
		return nil

	case StorePostgres:
		if c.Store.Postgres.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Store.Postgres.Port < MinPort || c.Store.Postgres.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Store.Postgres.Port, MinPort, MaxPort)
		}
		if c.Store.Postgres.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if c.RabbitMQ.Host == "" {
			return fmt.Errorf("rabbitmq host is required")
		}
		if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
			return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
		}
		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
		return nil

	case StoreFirestore:
		if c.Store.Firestore.ProjectID == "" {
			return fmt.Errorf("firestore project id is required")
		}
		return nil

	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}
}

func (c *Config) validateAuth() error {
	switch c.Auth.Backend {
	case AuthLocal:
		return nil

	case AuthKratos:
		if c.Auth.Kratos.PublicURL == "" {
			return fmt.Errorf("kratos public url is required")
		}
		return nil

	default:
		return fmt.Errorf("unknown auth backend: %q", c.Auth.Backend)
	}
}
