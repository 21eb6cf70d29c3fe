package config

import (
	"strings"
	"time"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// CORSAllowedOrigins is the explicit origin allow-list. Other origins get no CORS headers.
	CORSAllowedOrigins []string `env:"HTTP_CORS_ALLOWED_ORIGINS" envDefault:""`

	// IdentityHeader carries the caller identity used for rate limiting and submitted_by.
	// Requests without it are identified by client IP.
	IdentityHeader string `env:"HTTP_IDENTITY_HEADER" envDefault:"X-User-ID"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`

	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT"     envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT"    envDefault:"300s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	origins := make([]string, 0, len(h.CORSAllowedOrigins))
	for _, o := range h.CORSAllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	h.CORSAllowedOrigins = origins

	if strings.TrimSpace(h.IdentityHeader) == "" {
		h.IdentityHeader = "X-User-ID"
	}
	if h.MaxBodyBytes < 1024 {
		h.MaxBodyBytes = 1024
	}
	if h.ReadTimeout <= 0 {
		h.ReadTimeout = 15 * time.Second
	}
	// generation requests wait on provider calls
	if h.WriteTimeout < 30*time.Second {
		h.WriteTimeout = 30 * time.Second
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 30 * time.Second
	}
}

// RateLimitConfig controls the per-identity fixed window on POST routes.
type RateLimitConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`

	// Backend selects memory (per replica, default) or redis (shared).
	Backend string `env:"BACKEND" envDefault:"memory"`

	Limit  int           `env:"LIMIT"  envDefault:"10"`
	Window time.Duration `env:"WINDOW" envDefault:"1m"`
}

// Sanitize applies guardrails to rate limit configuration values.
func (r *RateLimitConfig) Sanitize() {
	r.Backend = strings.ToLower(strings.TrimSpace(r.Backend))
	if r.Backend != BackendRedis {
		r.Backend = BackendMemory
	}
	if r.Limit < 1 {
		r.Limit = 1
	}
	if r.Window < time.Second {
		r.Window = time.Second
	}
}
