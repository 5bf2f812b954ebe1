package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/desenyon/infiniteidea-sub000/internal/config"
	"github.com/desenyon/infiniteidea-sub000/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	clients    ClientFactory
	newLogger  func(level, format string) (logging.Logger, error)
}

// NewRootCommand returns the blueprintd command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&rootOptions{clients: BuildClients, newLogger: logging.New})
}

func newRootCommand(o *rootOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "blueprintd",
		Short: "Product blueprint generation over multiple LLM providers",
		Long: `blueprintd turns a processed product idea into a five-section blueprint
(product plan, tech stack, AI workflow, roadmap and financial model) by
dispatching prompts across rate limited, circuit broken LLM providers.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		newServeCommand(o),
		newGenerateCommand(o),
		newValidateCommand(o),
		newProvidersCommand(o),
	)
	return root
}

// loadConfig reads the configuration and applies flag overrides.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// app loads the configuration and wires every component.
func (o *rootOptions) app() (*App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := o.newLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	clients, err := o.clients(cfg)
	if err != nil {
		return nil, err
	}
	return NewApp(cfg, logger, clients)
}
