package config

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Postgres, Redis and generation cache configuration
//   - http.go: HTTP server, CORS and rate limiting
//   - generation.go: provider credentials and outbound call policy
//   - services.go: service modes, queue, worker and reaper configuration
type AppConfig struct {
	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig `envPrefix:"CACHE_"`

	// HTTP server configuration
	HTTP      HTTPConfig
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`

	// Provider and generation configuration
	Providers  ProvidersConfig
	Generation GenerationConfig `envPrefix:"GENERATION_"`

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http"`

	Queue  QueueConfig  `envPrefix:"QUEUE_"`
	Worker WorkerConfig `envPrefix:"WORKER_"`
	Reaper ReaperConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Cache.Sanitize()
	c.HTTP.Sanitize()
	c.RateLimit.Sanitize()
	c.Generation.Sanitize()
	c.Queue.Sanitize()
	c.Worker.Sanitize(c.Queue)
	c.Reaper.Sanitize()
	c.Observability.Sanitize()
}

// NeedsRedis reports whether any configured backend uses Redis.
func (c *AppConfig) NeedsRedis() bool {
	return c.Cache.Backend == BackendRedis || c.RateLimit.Backend == BackendRedis
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.serviceEnabled(ServiceModeHTTP)
}

// IsWorkerEnabled returns true if the queue worker service is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	return c.serviceEnabled(ServiceModeWorker)
}

// IsReaperEnabled returns true if the reaper service is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	return c.serviceEnabled(ServiceModeReaper)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}
