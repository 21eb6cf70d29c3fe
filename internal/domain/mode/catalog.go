// Package mode resolves the closed set of generation modes into validated configuration.
package mode

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/medforge/contentgen/internal/domain/cost"
	"github.com/medforge/contentgen/internal/domain/model"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// ErrUnknownMode is returned when a mode has no catalog entry.
var ErrUnknownMode = errors.New("unknown mode")

// Config is the resolved configuration of one mode.
type Config struct {
	Mode              model.Mode         `yaml:"-"`
	Provider          model.ProviderKind `yaml:"provider"`
	Model             string             `yaml:"model"`
	SystemPrompt      string             `yaml:"system_prompt"`
	UserPrompt        string             `yaml:"user_prompt"`
	DependsOnFullText bool               `yaml:"depends_on_fulltext"`
	MaxTokens         int                `yaml:"max_tokens"`
	Temperature       float64            `yaml:"temperature"`
	PayloadKey        string             `yaml:"payload_key"`
}

type providerDefaults struct {
	DefaultModel string `yaml:"default_model"`
}

type catalogFile struct {
	Providers map[model.ProviderKind]providerDefaults `yaml:"providers"`
	Prices    map[string]cost.Price                   `yaml:"prices"`
	Modes     map[model.Mode]Config                   `yaml:"modes"`
}

// Catalog is the immutable, validated mode table. Build it with Load or Parse.
type Catalog struct {
	modes         map[model.Mode]Config
	prices        map[string]cost.Price
	defaultModels map[model.ProviderKind]string
}

// Load parses the embedded catalog, or the file at overridePath when it is non-empty.
func Load(overridePath string) (*Catalog, error) {
	data := defaultCatalog
	if p := strings.TrimSpace(overridePath); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read mode catalog: %w", err)
		}
		data = b
	}
	return Parse(data)
}

// MustLoadDefault returns the embedded catalog and panics if it is invalid.
func MustLoadDefault() *Catalog {
	c, err := Load("")
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes and validates a catalog document. Unknown fields are rejected.
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f catalogFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode mode catalog: %w", err)
	}

	c := &Catalog{
		modes:         make(map[model.Mode]Config, len(f.Modes)),
		prices:        f.Prices,
		defaultModels: make(map[model.ProviderKind]string, len(f.Providers)),
	}
	for kind, d := range f.Providers {
		c.defaultModels[kind] = strings.TrimSpace(d.DefaultModel)
	}
	for m, cfg := range f.Modes {
		cfg.Mode = m
		cfg.Model = strings.TrimSpace(cfg.Model)
		c.modes[m] = cfg
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) validate() error {
	var errs []error

	for kind, defaultModel := range c.defaultModels {
		if !kind.Valid() {
			errs = append(errs, fmt.Errorf("provider %q: unknown provider", kind))
			continue
		}
		if defaultModel == "" {
			errs = append(errs, fmt.Errorf("provider %q: default_model is required", kind))
		} else if _, ok := c.prices[defaultModel]; !ok {
			errs = append(errs, fmt.Errorf("provider %q: no price for default model %q", kind, defaultModel))
		}
	}

	for name, p := range c.prices {
		if !p.Valid() {
			errs = append(errs, fmt.Errorf("price %q: costs must be non-negative", name))
		}
	}

	for m := range c.modes {
		if !m.Valid() {
			errs = append(errs, fmt.Errorf("mode %q: %w", m, ErrUnknownMode))
		}
	}

	producers := 0
	for _, m := range model.AllModes() {
		cfg, ok := c.modes[m]
		if !ok {
			errs = append(errs, fmt.Errorf("mode %q: missing from catalog", m))
			continue
		}
		errs = append(errs, c.validateMode(cfg)...)
		if !cfg.DependsOnFullText {
			producers++
		}
	}
	if full, ok := c.modes[model.ModeFullText]; ok && full.DependsOnFullText {
		errs = append(errs, errors.New("mode \"fulltext\": cannot depend on itself"))
	}
	if producers == 0 {
		errs = append(errs, errors.New("catalog has no mode that produces full text"))
	}

	return errors.Join(errs...)
}

func (c *Catalog) validateMode(cfg Config) []error {
	var errs []error
	prefix := fmt.Sprintf("mode %q", cfg.Mode)
	if !cfg.Provider.Valid() {
		errs = append(errs, fmt.Errorf("%s: invalid provider %q", prefix, cfg.Provider))
	} else if _, ok := c.defaultModels[cfg.Provider]; !ok {
		errs = append(errs, fmt.Errorf("%s: provider %q has no defaults entry", prefix, cfg.Provider))
	}
	if cfg.Model == "" {
		errs = append(errs, fmt.Errorf("%s: model is required", prefix))
	} else if _, ok := c.prices[cfg.Model]; !ok {
		errs = append(errs, fmt.Errorf("%s: no price for model %q", prefix, cfg.Model))
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" || strings.TrimSpace(cfg.UserPrompt) == "" {
		errs = append(errs, fmt.Errorf("%s: system_prompt and user_prompt are required", prefix))
	}
	if cfg.DependsOnFullText && !strings.Contains(cfg.UserPrompt, "{{full_text}}") {
		errs = append(errs, fmt.Errorf("%s: depends on full text but user_prompt lacks {{full_text}}", prefix))
	}
	if cfg.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("%s: max_tokens must be positive", prefix))
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		errs = append(errs, fmt.Errorf("%s: temperature must be within [0,2]", prefix))
	}
	if strings.TrimSpace(cfg.PayloadKey) == "" {
		errs = append(errs, fmt.Errorf("%s: payload_key is required", prefix))
	}
	return errs
}

// Get returns the configuration for m.
func (c *Catalog) Get(m model.Mode) (Config, error) {
	cfg, ok := c.modes[m]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownMode, m)
	}
	return cfg, nil
}

// Price returns the price entry for a model identifier.
func (c *Catalog) Price(modelID string) (cost.Price, bool) {
	p, ok := c.prices[modelID]
	return p, ok
}

// DefaultModel returns the model used when routing falls back to provider kind.
func (c *Catalog) DefaultModel(kind model.ProviderKind) string {
	return c.defaultModels[kind]
}

// Modes returns the configured modes in sorted order.
func (c *Catalog) Modes() []model.Mode {
	out := make([]model.Mode, 0, len(c.modes))
	for m := range c.modes {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Plan de-duplicates modes and orders them so every mode that produces full text runs
// before any mode that consumes it. Relative caller order is kept within each group.
func (c *Catalog) Plan(modes []model.Mode) ([]model.Mode, error) {
	modes = model.UniqueModes(modes)
	producers := make([]model.Mode, 0, len(modes))
	consumers := make([]model.Mode, 0, len(modes))
	for _, m := range modes {
		cfg, err := c.Get(m)
		if err != nil {
			return nil, err
		}
		if cfg.DependsOnFullText {
			consumers = append(consumers, m)
		} else {
			producers = append(producers, m)
		}
	}
	return append(producers, consumers...), nil
}
