package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. BLUEPRINT_SERVER_PORT
// for server.port.
const EnvPrefix = "BLUEPRINT"

// Vendor credential variables accepted in addition to the prefixed ones.
var credentialEnv = map[string][]string{
	"providers.openai.api_key":        {"OPENAI_API_KEY"},
	"providers.anthropic.api_key":     {"ANTHROPIC_API_KEY"},
	"providers.anthropic.oauth_token": {"ANTHROPIC_OAUTH_TOKEN"},
}

// SetDefaults registers every default on v. Keys with a default are the
// keys environment variables can override.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.version", d.Server.Version)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)

	for name, p := range d.Providers {
		prefix := "providers." + name + "."
		v.SetDefault(prefix+"type", p.Type)
		v.SetDefault(prefix+"api_key", "")
		v.SetDefault(prefix+"base_url", "")
		v.SetDefault(prefix+"default_model", "")
		v.SetDefault(prefix+"timeout", p.Timeout)
		v.SetDefault(prefix+"client_requests_per_minute", 0)
	}
	v.SetDefault("providers.anthropic.oauth_token", "")

	v.SetDefault("resilience.failure_threshold", d.Resilience.FailureThreshold)
	v.SetDefault("resilience.recovery_timeout", d.Resilience.RecoveryTimeout)
	v.SetDefault("resilience.window_size", d.Resilience.WindowSize)
	v.SetDefault("resilience.default_limits.requests_per_minute", d.Resilience.DefaultLimits.RequestsPerMinute)
	v.SetDefault("resilience.default_limits.tokens_per_minute", d.Resilience.DefaultLimits.TokensPerMinute)

	v.SetDefault("dispatch.fallback_chain", d.Dispatch.FallbackChain)
	v.SetDefault("dispatch.queue_retry_interval", d.Dispatch.QueueRetryInterval)

	v.SetDefault("generation.temperature", d.Generation.Temperature)
	v.SetDefault("generation.max_tokens", d.Generation.MaxTokens)
	v.SetDefault("generation.default.provider", d.Generation.Default.Provider)
	v.SetDefault("generation.default.model", d.Generation.Default.Model)
}

// Load reads the configuration. Sources, lowest precedence first: defaults,
// the YAML file at path (skipped when path is empty), .env, then the
// environment. The result is validated.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range credentialEnv {
		envs := append([]string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads a .env file when one exists. Variables already set in
// the environment win.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}
