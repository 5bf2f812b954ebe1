// Package config loads blueprintd settings from a YAML file, the
// environment and an optional .env file.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/desenyon/infiniteidea-sub000/pkg/metrics"
	"github.com/desenyon/infiniteidea-sub000/pkg/orchestrator"
	"github.com/desenyon/infiniteidea-sub000/pkg/ratelimit"
	"github.com/desenyon/infiniteidea-sub000/pkg/resilience"
)

// Provider client implementations a provider entry can use.
const (
	ProviderTypeOpenAI    = "openai"
	ProviderTypeAnthropic = "anthropic"
)

// Config is the complete application configuration.
type Config struct {
	Server     ServerConfig              `mapstructure:"server"`
	Logging    LoggingConfig             `mapstructure:"logging"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Resilience ResilienceConfig          `mapstructure:"resilience"`
	Dispatch   DispatchConfig            `mapstructure:"dispatch"`
	Pricing    []PriceEntry              `mapstructure:"pricing"`
	Generation GenerationConfig          `mapstructure:"generation"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Version         string        `mapstructure:"version"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// ProviderConfig describes one provider client. Type defaults to the
// provider's name, so an "openai" entry needs no type.
type ProviderConfig struct {
	Type         string        `mapstructure:"type"`
	APIKey       string        `mapstructure:"api_key"`
	OAuthToken   string        `mapstructure:"oauth_token"`
	BaseURL      string        `mapstructure:"base_url"`
	DefaultModel string        `mapstructure:"default_model"`
	Timeout      time.Duration `mapstructure:"timeout"`

	// ClientRequestsPerMinute paces requests inside the client itself,
	// below whatever the dispatcher's rate window allows.
	ClientRequestsPerMinute int `mapstructure:"client_requests_per_minute"`
}

// Configured reports whether the entry carries credentials.
func (p ProviderConfig) Configured() bool {
	return p.APIKey != "" || p.OAuthToken != ""
}

type ResilienceConfig struct {
	FailureThreshold int                         `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration               `mapstructure:"recovery_timeout"`
	WindowSize       time.Duration               `mapstructure:"window_size"`
	DefaultLimits    ratelimit.Limits            `mapstructure:"default_limits"`
	Limits           map[string]ratelimit.Limits `mapstructure:"limits"`
}

// Store converts the section into the resilience store's configuration.
func (r ResilienceConfig) Store() resilience.Config {
	limits := make(map[string]ratelimit.Limits, len(r.Limits))
	for name, l := range r.Limits {
		limits[name] = l
	}
	return resilience.Config{
		FailureThreshold: r.FailureThreshold,
		RecoveryTimeout:  r.RecoveryTimeout,
		DefaultLimits:    r.DefaultLimits,
		Limits:           limits,
		WindowSize:       r.WindowSize,
	}
}

type DispatchConfig struct {
	FallbackChain      []string      `mapstructure:"fallback_chain"`
	QueueRetryInterval time.Duration `mapstructure:"queue_retry_interval"`
}

// PriceEntry prices one provider, or one model of a provider when Model is
// set. Prices are per thousand tokens.
type PriceEntry struct {
	Provider        string `mapstructure:"provider"`
	Model           string `mapstructure:"model"`
	metrics.Pricing `mapstructure:",squash"`
}

type GenerationConfig struct {
	Temperature float64                      `mapstructure:"temperature"`
	MaxTokens   int                          `mapstructure:"max_tokens"`
	Default     orchestrator.Selection       `mapstructure:"default"`
	Rules       []orchestrator.SelectionRule `mapstructure:"rules"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Version:         "dev",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Providers: map[string]ProviderConfig{
			ProviderTypeOpenAI:    {Type: ProviderTypeOpenAI, Timeout: 2 * time.Minute},
			ProviderTypeAnthropic: {Type: ProviderTypeAnthropic, Timeout: 2 * time.Minute},
		},
		Resilience: ResilienceConfig{
			FailureThreshold: resilience.DefaultFailureThreshold,
			RecoveryTimeout:  resilience.DefaultRecoveryTimeout,
			WindowSize:       ratelimit.DefaultWindow,
			DefaultLimits:    ratelimit.Limits{RequestsPerMinute: 60},
			Limits:           map[string]ratelimit.Limits{},
		},
		Dispatch: DispatchConfig{
			FallbackChain:      []string{ProviderTypeOpenAI, ProviderTypeAnthropic},
			QueueRetryInterval: time.Second,
		},
		Generation: GenerationConfig{
			Temperature: 0.7,
			MaxTokens:   4096,
			Default:     orchestrator.Selection{Provider: ProviderTypeOpenAI},
		},
	}
}

// ProviderType resolves the client implementation for a provider entry.
func (c *Config) ProviderType(name string) string {
	p, ok := c.Providers[name]
	if !ok {
		return ""
	}
	if p.Type != "" {
		return strings.ToLower(p.Type)
	}
	return name
}

// ConfiguredProviders lists, sorted, the providers that have credentials.
func (c *Config) ConfiguredProviders() []string {
	var names []string
	for name, p := range c.Providers {
		if p.Configured() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// PricingTable builds the cost calculator's pricing table.
func (c *Config) PricingTable() map[string]metrics.Pricing {
	table := make(map[string]metrics.Pricing, len(c.Pricing))
	for _, e := range c.Pricing {
		key := e.Provider
		if e.Model != "" {
			key += "/" + e.Model
		}
		table[key] = e.Pricing
	}
	return table
}

// Selector builds the model selector from the generation section.
func (c *Config) Selector() *orchestrator.TableSelector {
	return orchestrator.NewTableSelector(c.Generation.Default, c.Generation.Rules...)
}

// Validate rejects configurations that reference unknown providers or
// carry values the dispatcher cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q is not supported", c.Logging.Format)
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be defined")
	}
	for name := range c.Providers {
		switch c.ProviderType(name) {
		case ProviderTypeOpenAI, ProviderTypeAnthropic:
		default:
			return fmt.Errorf("provider %q has unsupported type %q", name, c.ProviderType(name))
		}
	}

	if c.Resilience.FailureThreshold <= 0 {
		return fmt.Errorf("resilience.failure_threshold must be positive")
	}
	if c.Resilience.RecoveryTimeout <= 0 {
		return fmt.Errorf("resilience.recovery_timeout must be positive")
	}
	if err := checkLimits("resilience.default_limits", c.Resilience.DefaultLimits); err != nil {
		return err
	}
	for name, l := range c.Resilience.Limits {
		if err := c.checkProvider("resilience.limits", name); err != nil {
			return err
		}
		if err := checkLimits("resilience.limits."+name, l); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(c.Dispatch.FallbackChain))
	for _, name := range c.Dispatch.FallbackChain {
		if err := c.checkProvider("dispatch.fallback_chain", name); err != nil {
			return err
		}
		if seen[name] {
			return fmt.Errorf("dispatch.fallback_chain lists %q twice", name)
		}
		seen[name] = true
	}

	for _, e := range c.Pricing {
		if err := c.checkProvider("pricing", e.Provider); err != nil {
			return err
		}
		if e.InputPer1K < 0 || e.OutputPer1K < 0 {
			return fmt.Errorf("pricing for %q must not be negative", e.Provider)
		}
	}

	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("generation.temperature must be between 0 and 2")
	}
	if err := c.checkProvider("generation.default", c.Generation.Default.Provider); err != nil {
		return err
	}
	for i, r := range c.Generation.Rules {
		if err := c.checkProvider(fmt.Sprintf("generation.rules[%d]", i), r.Provider); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) checkProvider(field, name string) error {
	if name == "" {
		return fmt.Errorf("%s: provider name is required", field)
	}
	if _, ok := c.Providers[name]; !ok {
		return fmt.Errorf("%s references unknown provider %q", field, name)
	}
	return nil
}

func checkLimits(field string, l ratelimit.Limits) error {
	if l.RequestsPerMinute < 0 || l.TokensPerMinute < 0 {
		return fmt.Errorf("%s must not be negative", field)
	}
	return nil
}
