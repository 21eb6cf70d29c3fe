package httpx

import (
	"log/slog"
	"net/http"

	"github.com/medforge/contentgen/config"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Queue     BatchQueue
	Generator Generator
	// Optional: when nil the POST routes are not rate limited.
	Limiter Limiter
	// Optional: dependencies checked by /healthz.
	Health []Pinger
	Config config.HTTPConfig
	Logger *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	mux := http.NewServeMux()

	health := healthHandler(logger, services.Health...)
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)

	guard := []func(http.Handler) http.Handler{MaxBody(services.Config.MaxBodyBytes)}
	if services.Limiter != nil {
		guard = append(guard, RateLimit(services.Limiter, services.Config.IdentityHeader))
	}

	batch := &BatchHandlers{Queue: services.Queue, IdentityHeader: services.Config.IdentityHeader, Logger: logger}
	mux.Handle("POST /batch", Chain(http.HandlerFunc(batch.Batch), guard...))

	gen := &GenerateHandlers{Generator: services.Generator, Logger: logger}
	mux.Handle("POST /generate", Chain(http.HandlerFunc(gen.Generate), guard...))

	return Chain(mux,
		Recover(logger),
		Logging(logger),
		CORS(services.Config.CORSAllowedOrigins, services.Config.IdentityHeader),
	)
}
