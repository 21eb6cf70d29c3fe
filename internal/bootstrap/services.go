package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medforge/contentgen/config"
	"github.com/medforge/contentgen/internal/adapters/llm"
	"github.com/medforge/contentgen/internal/core"
	"github.com/medforge/contentgen/internal/data"
	"github.com/medforge/contentgen/internal/domain/mode"
	"github.com/medforge/contentgen/internal/domain/ratelimit"
	httpx "github.com/medforge/contentgen/internal/http"
	"github.com/medforge/contentgen/internal/observability/notify/slack"
	"github.com/medforge/contentgen/internal/observability/statsd"
	"github.com/medforge/contentgen/internal/service"
	"github.com/medforge/contentgen/internal/service/failurenotifier"
	"github.com/redis/go-redis/v9"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Catalog       *mode.Catalog
	Router        *service.ModelRouter
	Cache         *service.CacheService
	CacheRepo     core.GenerationCacheRepository
	Pipeline      *service.PipelineService
	Queue         *service.QueueService
	Jobs          *data.GenerationJobRepo
	RateLimiter   *service.RateLimiter
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	Jobs       *data.GenerationJobRepo
	Topics     *data.TopicRepo
	Flashcards *data.FlashcardRepo
	Questions  *data.QuestionRepo
	Cache      core.GenerationCacheRepository
	RateStore  core.RateLimitStore
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(obsLogger, cfg.Notifications),
		NotifierConfig:  cfg.Notifications,
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.HasSinks() {
		return failurenotifier.NewService(failurenotifier.Options{Logger: baseLogger})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 1)
	client, err := slack.NewClient(slack.Config{
		WebhookURL:     cfg.Slack.WebhookURL,
		Channel:        cfg.Slack.Channel,
		Username:       cfg.Slack.Username,
		Timeout:        cfg.Timeout,
		RetryLimit:     cfg.RetryLimit,
		TopicURLPrefix: cfg.Slack.TopicURLPrefix,
	})
	if err != nil {
		baseLogger.Error("failed to initialise slack notifier", "error", err)
	} else {
		sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger,
		Sinks:  sinks,
	})
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(deps *ServiceDeps, logger *slog.Logger) *serviceRepositories {
	cfg := deps.Config
	repos := &serviceRepositories{
		Jobs:       data.NewGenerationJobRepo(deps.DB, data.RepoConfig{Logger: logger}),
		Topics:     data.NewTopicRepo(deps.DB, &data.RealTimeProvider{}),
		Flashcards: data.NewFlashcardRepo(deps.DB),
		Questions:  data.NewQuestionRepo(deps.DB),
	}

	if cfg.Cache.Backend == config.BackendRedis && deps.RedisClient != nil {
		repos.Cache = data.NewRedisGenerationCacheRepo(deps.RedisClient)
	} else {
		if cfg.Cache.Backend == config.BackendRedis {
			logger.Warn("redis cache backend requested without a redis client, using postgres")
		}
		repos.Cache = data.NewGenerationCacheRepo(deps.DB)
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.Backend == config.BackendRedis && deps.RedisClient != nil {
			repos.RateStore = data.NewRedisRateStore(deps.RedisClient)
		} else {
			repos.RateStore = data.NewMemoryRateStore()
		}
	}

	return repos
}

// BuildProviders creates one adapter per supported provider. Adapters without a key
// stay registered so routing can report the missing credential.
func BuildProviders(cfg *config.AppConfig, logger *slog.Logger) []core.Provider {
	opts := func(p config.ProviderConfig) llm.ClientOptions {
		return llm.ClientOptions{
			APIKey:            p.APIKey,
			BaseURL:           p.BaseURL,
			Timeout:           cfg.Generation.Timeout,
			MaxRetries:        cfg.Generation.MaxRetries,
			RequestsPerSecond: cfg.Generation.RequestsPerSecond,
			Logger:            logger,
		}
	}
	return []core.Provider{
		llm.NewAnthropic(opts(cfg.Providers.Anthropic)),
		llm.NewGemini(opts(cfg.Providers.Gemini)),
	}
}

// NewServices wires repositories, providers and services from configuration.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service config is required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database connection is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	observability := buildObservability(logger, cfg.Observability)
	// A nil *statsd.Client must not become a non-nil Sink.
	var sink statsd.Sink
	if observability.MetricsSink != nil {
		sink = observability.MetricsSink
	}

	catalog, err := mode.Load(cfg.Generation.CatalogPath)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("load mode catalog: %w", err)
	}

	repos := buildRepositories(deps, logger)

	router, err := service.NewModelRouter(service.ModelRouterOptions{
		Catalog:         catalog,
		Providers:       BuildProviders(cfg, logger),
		DefaultProvider: cfg.Generation.DefaultProvider,
		Logger:          logger,
		Metrics:         sink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create model router: %w", err)
	}

	cache, err := service.NewCacheService(service.CacheServiceOptions{
		Repo:    repos.Cache,
		TTL:     cfg.Cache.TTL,
		Logger:  logger,
		Metrics: sink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create cache service: %w", err)
	}

	pipeline, err := service.NewPipelineService(service.PipelineServiceOptions{
		Stores: service.PipelineStores{
			Topics:     repos.Topics,
			Flashcards: repos.Flashcards,
			Questions:  repos.Questions,
		},
		Catalog: catalog,
		Router:  router,
		Cache:   cache,
		Logger:  logger,
		Metrics: sink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create pipeline service: %w", err)
	}

	queue, err := service.NewQueueService(service.QueueServiceOptions{
		Repo:     repos.Jobs,
		Pipeline: pipeline,
		Config:   cfg.Queue,
		Notifier: observability.FailureNotifier,
		Logger:   logger,
		Metrics:  sink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create queue service: %w", err)
	}

	var limiter *service.RateLimiter
	if repos.RateStore != nil {
		limiter, err = service.NewRateLimiter(service.RateLimiterOptions{
			Store:  repos.RateStore,
			Window: ratelimit.Window{Limit: cfg.RateLimit.Limit, Length: cfg.RateLimit.Window},
			Logger: logger,
		})
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("create rate limiter: %w", err)
		}
	}

	return ServiceContainer{
		Catalog:       catalog,
		Router:        router,
		Cache:         cache,
		CacheRepo:     repos.Cache,
		Pipeline:      pipeline,
		Queue:         queue,
		Jobs:          repos.Jobs,
		RateLimiter:   limiter,
		Observability: observability,
	}, nil
}

// redisPinger adapts a redis client to the health check contract.
type redisPinger struct {
	client redis.UniversalClient
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// healthChecks lists the dependencies /healthz checks.
func healthChecks(db *sql.DB, client redis.UniversalClient) []httpx.Pinger {
	checks := make([]httpx.Pinger, 0, 2)
	if db != nil {
		checks = append(checks, db)
	}
	if client != nil {
		checks = append(checks, redisPinger{client: client})
	}
	return checks
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Health:   healthChecks(deps.cfg.DB, deps.cfg.RedisClient),
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error", "service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newWorkerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeWorker,
		name: "worker",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Services.Queue == nil {
				return errors.New("queue service is not configured")
			}
			var workerCfg config.WorkerConfig
			if deps.cfg.Config != nil {
				workerCfg = deps.cfg.Config.Worker
			}
			wc := WorkerConfig{
				Queue:  deps.cfg.Services.Queue,
				Config: workerCfg,
				Logger: deps.logger,
			}
			if deps.cfg.Services.Jobs != nil {
				wc.Notifications = deps.cfg.Services.Jobs
			}
			return RunWorker(ctx, wc)
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var (
				reaperCfg config.ReaperConfig
				purge     int
			)
			if deps.cfg.Config != nil {
				reaperCfg = deps.cfg.Config.Reaper
				purge = deps.cfg.Config.Cache.PurgeBatchSize
			}
			rc := ReaperConfig{
				DB:     deps.cfg.DB,
				Cache:  deps.cfg.Services.CacheRepo,
				Purge:  purge,
				Logger: deps.logger,
				Config: reaperCfg,
			}
			if deps.cfg.Services.Observability.MetricsSink != nil {
				rc.Metrics = deps.cfg.Services.Observability.MetricsSink
			}
			return RunReaper(ctx, rc)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newWorkerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	return waitForShutdown(shutdownConfig{
		cancel:          cancel,
		errCh:           errCh,
		httpServer:      result.HTTPServer,
		httpGracePeriod: cfg.Config.HTTP.ShutdownTimeout,
		logger:          logger,
		backgrounds:     result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	cancel          context.CancelFunc
	errCh           <-chan error
	httpServer      *http.Server
	httpGracePeriod time.Duration
	logger          *slog.Logger
	backgrounds     []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop drains HTTP first so in-flight requests finish, then stops background services.
func gracefulStop(cfg shutdownConfig) error {
	var httpErr error
	if cfg.httpServer != nil {
		grace := cfg.httpGracePeriod
		if grace <= 0 {
			grace = shutdownWaitTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
		httpErr = ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		})
		cancel()
	}

	// Background loops observe cancellation; jobs they claimed stay leased and are reclaimed later.
	if cfg.cancel != nil {
		cfg.cancel()
	}
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return httpErr
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
