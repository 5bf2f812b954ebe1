// Package cli implements the blueprintd command line: the HTTP server and
// one-shot generate, validate and providers commands.
package cli

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/desenyon/infiniteidea-sub000/internal/config"
	internalhttp "github.com/desenyon/infiniteidea-sub000/internal/http"
	"github.com/desenyon/infiniteidea-sub000/internal/logging"
	"github.com/desenyon/infiniteidea-sub000/pkg/backend"
	"github.com/desenyon/infiniteidea-sub000/pkg/backendtypes"
	"github.com/desenyon/infiniteidea-sub000/pkg/dispatch"
	"github.com/desenyon/infiniteidea-sub000/pkg/metrics"
	"github.com/desenyon/infiniteidea-sub000/pkg/orchestrator"
	"github.com/desenyon/infiniteidea-sub000/pkg/prompts"
	"github.com/desenyon/infiniteidea-sub000/pkg/providers/anthropic"
	"github.com/desenyon/infiniteidea-sub000/pkg/providers/openai"
	"github.com/desenyon/infiniteidea-sub000/pkg/ratelimit"
	"github.com/desenyon/infiniteidea-sub000/pkg/types"
)

// ClientFactory builds the provider clients for a configuration.
type ClientFactory func(cfg *config.Config) ([]types.ProviderClient, error)

// BuildClients creates a client for every provider that has credentials.
// Providers without credentials are skipped.
func BuildClients(cfg *config.Config) ([]types.ProviderClient, error) {
	var clients []types.ProviderClient
	for _, name := range cfg.ConfiguredProviders() {
		p := cfg.Providers[name]
		httpConfig := internalhttp.ClientConfig{Timeout: p.Timeout}

		switch cfg.ProviderType(name) {
		case config.ProviderTypeOpenAI:
			c, err := openai.New(openai.Config{
				Name:              name,
				APIKey:            p.APIKey,
				BaseURL:           p.BaseURL,
				DefaultModel:      p.DefaultModel,
				RequestsPerMinute: p.ClientRequestsPerMinute,
				HTTP:              httpConfig,
			})
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", name, err)
			}
			clients = append(clients, c)
		case config.ProviderTypeAnthropic:
			if name != config.ProviderTypeAnthropic {
				return nil, fmt.Errorf("provider %s: anthropic clients must be named %q", name, config.ProviderTypeAnthropic)
			}
			c, err := anthropic.New(anthropic.Config{
				APIKey:            p.APIKey,
				OAuthToken:        p.OAuthToken,
				BaseURL:           p.BaseURL,
				DefaultModel:      p.DefaultModel,
				RequestsPerMinute: p.ClientRequestsPerMinute,
				HTTP:              httpConfig,
			})
			if err != nil {
				return nil, fmt.Errorf("provider %s: %w", name, err)
			}
			clients = append(clients, c)
		default:
			return nil, fmt.Errorf("provider %s: unsupported type %q", name, cfg.ProviderType(name))
		}
	}
	return clients, nil
}

// App holds the wired components shared by the commands.
type App struct {
	Config       *config.Config
	Logger       logging.Logger
	Registry     *prometheus.Registry
	Collector    *metrics.Collector
	Dispatcher   *dispatch.Dispatcher
	Orchestrator *orchestrator.Orchestrator
}

// NewApp wires clients into a dispatcher and orchestrator. Configuration
// that names providers without a client is narrowed to the registered ones;
// the default generation provider must be registered.
func NewApp(cfg *config.Config, logger logging.Logger, clients []types.ProviderClient) (*App, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("no provider has credentials; set OPENAI_API_KEY or ANTHROPIC_API_KEY")
	}
	registry, err := dispatch.NewRegistry(clients...)
	if err != nil {
		return nil, err
	}
	registered := func(name string) bool {
		_, ok := registry.Get(name)
		return ok
	}

	if !registered(cfg.Generation.Default.Provider) {
		return nil, fmt.Errorf("default generation provider %q has no credentials", cfg.Generation.Default.Provider)
	}

	var chain []string
	for _, name := range cfg.Dispatch.FallbackChain {
		if registered(name) {
			chain = append(chain, name)
		} else {
			logger.Warn("dropping unconfigured provider from fallback chain", logging.Fields{"provider": name})
		}
	}

	store := cfg.Resilience.Store()
	for name := range store.Limits {
		if !registered(name) {
			delete(store.Limits, name)
		}
	}

	var rules []orchestrator.SelectionRule
	for _, r := range cfg.Generation.Rules {
		if registered(r.Provider) {
			rules = append(rules, r)
		} else {
			logger.Warn("ignoring selection rule for unconfigured provider", logging.Fields{"provider": r.Provider})
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	d, err := dispatch.New(registry, dispatch.Config{
		Resilience:         store,
		FallbackChain:      chain,
		QueueRetryInterval: cfg.Dispatch.QueueRetryInterval,
	},
		dispatch.WithCostCalculator(metrics.NewPricingCalculator(cfg.PricingTable())),
		dispatch.WithCollector(collector),
		dispatch.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	catalogue, err := prompts.Default()
	if err != nil {
		d.Close()
		return nil, err
	}
	orch, err := orchestrator.New(d, catalogue,
		orchestrator.NewTableSelector(cfg.Generation.Default, rules...),
		orchestrator.WithCollector(collector),
		orchestrator.WithLogger(logger),
		orchestrator.WithSampling(cfg.Generation.Temperature, cfg.Generation.MaxTokens),
	)
	if err != nil {
		d.Close()
		return nil, err
	}

	logger.Info("providers registered", logging.Fields{
		"providers":      registry.Names(),
		"fallback_chain": chain,
	})

	return &App{
		Config:       cfg,
		Logger:       logger,
		Registry:     reg,
		Collector:    collector,
		Dispatcher:   d,
		Orchestrator: orch,
	}, nil
}

// Server builds the HTTP server over the app's components.
func (a *App) Server() (*backend.Server, error) {
	return backend.NewServer(ServerConfig(a.Config.Server), backend.Deps{
		Dispatcher:      a.Dispatcher,
		Blueprints:      a.Orchestrator,
		DefaultProvider: a.Config.Generation.Default.Provider,
		Gatherer:        a.Registry,
		Logger:          a.Logger,
	})
}

// Close stops the dispatcher queue and flushes the logger.
func (a *App) Close() {
	a.Dispatcher.Close()
	_ = a.Logger.Sync()
}

// ServerConfig maps the server section onto the HTTP server's settings.
// CORS is enabled whenever origins are listed.
func ServerConfig(s config.ServerConfig) backendtypes.ServerConfig {
	return backendtypes.ServerConfig{
		Host:            s.Host,
		Port:            s.Port,
		Version:         s.Version,
		ReadTimeout:     s.ReadTimeout,
		WriteTimeout:    s.WriteTimeout,
		ShutdownTimeout: s.ShutdownTimeout,
		CORS: backendtypes.CORSConfig{
			Enabled:        len(s.CORSOrigins) > 0,
			AllowedOrigins: s.CORSOrigins,
		},
	}
}

// providerLimits returns the rate limits the dispatcher applies to name.
func providerLimits(cfg *config.Config, name string) ratelimit.Limits {
	if l, ok := cfg.Resilience.Limits[name]; ok {
		return l
	}
	return cfg.Resilience.DefaultLimits
}
