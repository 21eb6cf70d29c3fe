package config

import (
	"strings"
	"time"
)

// Storage backend names shared by the cache and rate-limit sections.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"contentgen"`
	Password string `env:"PASSWORD"                envDefault:"contentgen"`
	Name     string `env:"NAME"                    envDefault:"contentgen"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// MaxOpenConns bounds the pool; each worker holds one connection while claiming.
	MaxOpenConns int `env:"MAX_OPEN_CONNS" envDefault:"25"`
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// CacheConfig controls the content-addressed generation cache.
type CacheConfig struct {
	// Backend selects postgres (default) or redis.
	Backend string `env:"BACKEND" envDefault:"postgres"`

	// TTL is how long a generated artifact stays reusable.
	TTL time.Duration `env:"TTL" envDefault:"168h"`

	// PurgeBatchSize bounds each reaper purge of expired rows.
	PurgeBatchSize int `env:"PURGE_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to cache configuration values.
func (c *CacheConfig) Sanitize() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend != BackendRedis {
		c.Backend = BackendPostgres
	}
	if c.TTL < time.Minute {
		c.TTL = time.Minute
	}
	if c.PurgeBatchSize < 1 {
		c.PurgeBatchSize = 1
	}
}
