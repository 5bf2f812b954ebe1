package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/desenyon/infiniteidea-sub000/pkg/blueprint"
	"github.com/desenyon/infiniteidea-sub000/pkg/orchestrator"
)

type generateOptions struct {
	ideaFile string
	output   string
	priority string
}

func newGenerateCommand(o *rootOptions) *cobra.Command {
	g := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a blueprint for an idea file",
		Long: `Reads a JSON file holding either a bare processed idea or an
{"idea": ..., "preferences": ...} request, runs the full generation
pipeline and writes the response as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readGenerationRequest(g.ideaFile)
			if err != nil {
				return err
			}
			if g.priority != "" {
				p, err := blueprint.ParsePriority(g.priority)
				if err != nil {
					return err
				}
				req.Preferences.Priority = p
			}

			app, err := o.app()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			resp, err := app.Orchestrator.GenerateBlueprint(ctx, req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), g.output, resp)
		},
	}

	cmd.Flags().StringVarP(&g.ideaFile, "idea-file", "i", "", "JSON file with the processed idea (required)")
	cmd.Flags().StringVarP(&g.output, "output", "o", "", "write the response to this file instead of stdout")
	cmd.Flags().StringVar(&g.priority, "priority", "", "model selection priority: speed, quality or cost")
	_ = cmd.MarkFlagRequired("idea-file")
	return cmd
}

// readGenerationRequest accepts a full request or a bare idea.
func readGenerationRequest(path string) (orchestrator.BlueprintGenerationRequest, error) {
	var req orchestrator.BlueprintGenerationRequest
	raw, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("failed to read idea file: %w", err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return req, fmt.Errorf("idea file %s is not a JSON object: %w", path, err)
	}
	if _, wrapped := top["idea"]; wrapped {
		err = json.Unmarshal(raw, &req)
	} else {
		err = json.Unmarshal(raw, &req.Idea)
	}
	if err != nil {
		return req, fmt.Errorf("failed to decode idea file %s: %w", path, err)
	}
	if err := req.Idea.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// writeJSON writes v indented to path, or to w when path is empty.
func writeJSON(w io.Writer, path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err = w.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
