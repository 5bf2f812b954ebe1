package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newProvidersCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured providers and their limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}

			fallback := make(map[string]int, len(cfg.Dispatch.FallbackChain))
			for i, name := range cfg.Dispatch.FallbackChain {
				fallback[name] = i + 1
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tTYPE\tCREDENTIALS\tMODEL\tRPM\tTPM\tFALLBACK")
			for _, name := range sortedKeys(cfg.Providers) {
				p := cfg.Providers[name]
				limits := providerLimits(cfg, name)
				creds := "missing"
				if p.Configured() {
					creds = "set"
				}
				model := p.DefaultModel
				if model == "" {
					model = "-"
				}
				order := "-"
				if n, ok := fallback[name]; ok {
					order = fmt.Sprint(n)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					name, cfg.ProviderType(name), creds, model,
					limitString(limits.RequestsPerMinute), limitString(limits.TokensPerMinute), order)
			}
			return w.Flush()
		},
	}
}

func limitString(n int) string {
	if n == 0 {
		return "unlimited"
	}
	return fmt.Sprint(n)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
