package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/medforge/contentgen/config"
	httpx "github.com/medforge/contentgen/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Health   []httpx.Pinger
	Logger   *slog.Logger
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
		appCfg.HTTP.Sanitize()
	}

	return startServer(logger, BuildHTTPHandler(cfg.Services, cfg.Health, appCfg.HTTP, logger), appCfg.HTTP)
}

// BuildHTTPHandler wires the generation services into the router.
func BuildHTTPHandler(
	services ServiceContainer,
	health []httpx.Pinger,
	httpCfg config.HTTPConfig,
	logger *slog.Logger,
) http.Handler {
	routerServices := httpx.RouterServices{
		Queue:     services.Queue,
		Generator: services.Pipeline,
		Health:    health,
		Config:    httpCfg,
		Logger:    logger,
	}
	// A nil *RateLimiter must not become a non-nil interface.
	if services.RateLimiter != nil {
		routerServices.Limiter = services.RateLimiter
	}
	return httpx.NewRouter(routerServices)
}

func startServer(logger *slog.Logger, handler http.Handler, cfg config.HTTPConfig) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       2 * cfg.WriteTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server, letting in-flight generations finish.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	if err := cfg.Server.Shutdown(cfg.Context); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
