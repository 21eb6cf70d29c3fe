package config

import (
	"strings"
	"time"

	"github.com/medforge/contentgen/internal/domain/model"
)

// ProviderConfig holds the credential and endpoint for one provider.
type ProviderConfig struct {
	APIKey  string `env:"API_KEY"`
	BaseURL string `env:"BASE_URL"`
}

// ProvidersConfig groups the supported providers.
type ProvidersConfig struct {
	Anthropic ProviderConfig `envPrefix:"PROVIDER_ANTHROPIC_"`
	Gemini    ProviderConfig `envPrefix:"PROVIDER_GEMINI_"`
}

// GenerationConfig controls how provider calls are made.
type GenerationConfig struct {
	// DefaultProvider receives modes whose preferred provider has no credential.
	DefaultProvider model.ProviderKind `env:"DEFAULT_PROVIDER" envDefault:"anthropic"`

	// CatalogPath optionally overrides the embedded mode catalog.
	CatalogPath string `env:"CATALOG_PATH"`

	// Timeout bounds a single provider HTTP call.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"120s"`

	// MaxRetries is the number of retries on transient provider failures.
	MaxRetries int `env:"MAX_RETRIES" envDefault:"3"`

	// RequestsPerSecond throttles outbound calls per provider; 0 disables the throttle.
	RequestsPerSecond float64 `env:"REQUESTS_PER_SECOND" envDefault:"2"`
}

// Sanitize applies guardrails to generation configuration values.
func (g *GenerationConfig) Sanitize() {
	if !g.DefaultProvider.Valid() {
		g.DefaultProvider = model.ProviderAnthropic
	}
	g.CatalogPath = strings.TrimSpace(g.CatalogPath)
	if g.Timeout < 5*time.Second {
		g.Timeout = 5 * time.Second
	}
	if g.MaxRetries < 0 {
		g.MaxRetries = 0
	}
	if g.MaxRetries > 10 {
		g.MaxRetries = 10
	}
	if g.RequestsPerSecond < 0 {
		g.RequestsPerSecond = 0
	}
}
