// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Store, Search, Cache, Stats, Gateway, Redis, Kafka, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Search   SearchConfig   `yaml:"search"`
	Cache    CacheConfig    `yaml:"cache"`
	Stats    StatsConfig    `yaml:"stats"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// StoreConfig selects and configures the catalog record store backend.
type StoreConfig struct {
	// Backend is either "sqlite" (local bulk snapshot file) or "postgres"
	// (managed index).
	Backend      string        `yaml:"backend"`
	SQLitePath   string        `yaml:"sqlitePath"`
	QueryTimeout time.Duration `yaml:"queryTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig holds Redis connection parameters. Redis is optional and only
// used as an alternative stats snapshot store.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// KafkaConfig holds Kafka broker settings for the optional search-event
// export.
type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers"`
	EventsTopic string   `yaml:"eventsTopic"`
	BufferSize  int      `yaml:"bufferSize"`
}

// SearchConfig controls query execution and result shaping.
type SearchConfig struct {
	DefaultPageSize int `yaml:"defaultPageSize"`
	MaxPageSize     int `yaml:"maxPageSize"`
	// FetchWindow is the number of raw records pulled from the backend
	// before in-memory ranking. Pages past the window degrade gracefully;
	// raising it trades memory for deep-page ranking quality.
	FetchWindow int `yaml:"fetchWindow"`
}

// CacheConfig controls the in-process LRU response cache.
type CacheConfig struct {
	MaxEntries int `yaml:"maxEntries"`
}

// StatsConfig controls usage-statistics collection and persistence.
type StatsConfig struct {
	SnapshotPath  string        `yaml:"snapshotPath"`
	FlushInterval time.Duration `yaml:"flushInterval"`
	// SnapshotStore is "file" or "redis".
	SnapshotStore string `yaml:"snapshotStore"`
}

// GatewayConfig holds the IPFS gateway pool and health-check policy.
type GatewayConfig struct {
	Hosts         []string      `yaml:"hosts"`
	CheckInterval time.Duration `yaml:"checkInterval"`
	FailThreshold int           `yaml:"failThreshold"`
	ProbeTimeout  time.Duration `yaml:"probeTimeout"`
	// HealthStore is "memory" or "postgres".
	HealthStore string `yaml:"healthStore"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:      "sqlite",
			SQLitePath:   "data/books.db",
			QueryTimeout: 10 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "easybook",
			User:            "easybook",
			Password:        "easybook",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Kafka: KafkaConfig{
			Enabled:     false,
			Brokers:     []string{"localhost:9092"},
			EventsTopic: "search-events",
			BufferSize:  10000,
		},
		Search: SearchConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
			FetchWindow:     200,
		},
		Cache: CacheConfig{
			MaxEntries: 500,
		},
		Stats: StatsConfig{
			SnapshotPath:  "data/stats.json",
			FlushInterval: 5 * time.Minute,
			SnapshotStore: "file",
		},
		Gateway: GatewayConfig{
			Hosts: []string{
				"ipfs.io",
				"dweb.link",
				"gateway.pinata.cloud",
				"ipfs.filebase.io",
				"w3s.link",
				"4everland.io",
			},
			CheckInterval: 24 * time.Hour,
			FailThreshold: 3,
			ProbeTimeout:  10 * time.Second,
			HealthStore:   "memory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

func validate(cfg *Config) error {
	switch cfg.Store.Backend {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("store.backend must be sqlite or postgres, got %q", cfg.Store.Backend)
	}
	if cfg.Search.FetchWindow < cfg.Search.MaxPageSize {
		return fmt.Errorf("search.fetchWindow (%d) must be at least search.maxPageSize (%d)",
			cfg.Search.FetchWindow, cfg.Search.MaxPageSize)
	}
	if cfg.Gateway.FailThreshold <= 0 {
		return fmt.Errorf("gateway.failThreshold must be positive, got %d", cfg.Gateway.FailThreshold)
	}
	if cfg.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.maxEntries must be positive, got %d", cfg.Cache.MaxEntries)
	}
	return nil
}

// applyEnvOverrides reads EB_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EB_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("EB_STORE_SQLITE_PATH"); v != "" {
		cfg.Store.SQLitePath = v
	}
	if v := os.Getenv("EB_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("EB_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("EB_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("EB_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("EB_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("EB_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("EB_REDIS_ADDR"); v != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("EB_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("EB_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Enabled = true
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("EB_GATEWAY_HOSTS"); v != "" {
		hosts := make([]string, 0)
		for _, h := range strings.Split(v, ",") {
			if h = strings.TrimSpace(h); h != "" {
				hosts = append(hosts, h)
			}
		}
		cfg.Gateway.Hosts = hosts
	}
	if v := os.Getenv("EB_GATEWAY_FAIL_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.FailThreshold = n
		}
	}
	if v := os.Getenv("EB_STATS_SNAPSHOT_PATH"); v != "" {
		cfg.Stats.SnapshotPath = v
	}
	if v := os.Getenv("EB_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EB_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("EB_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
