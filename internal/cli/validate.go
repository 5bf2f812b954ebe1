package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/desenyon/infiniteidea-sub000/pkg/blueprint"
)

// ErrInvalidBlueprint is returned by validate when the blueprint has
// error-severity issues.
var ErrInvalidBlueprint = errors.New("blueprint is not valid")

func newValidateCommand(_ *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Score a blueprint file without calling any provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bp, err := readBlueprint(file)
			if err != nil {
				return err
			}
			result := blueprint.Validate(bp)
			if err := writeJSON(cmd.OutOrStdout(), "", result); err != nil {
				return err
			}
			if !result.IsValid {
				return ErrInvalidBlueprint
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "blueprint JSON file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// readBlueprint accepts a bare blueprint or a generation response that
// wraps one under "blueprint".
func readBlueprint(path string) (*blueprint.Blueprint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blueprint file: %w", err)
	}

	var wrapper struct {
		Blueprint *blueprint.Blueprint `json:"blueprint"`
	}
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to decode blueprint file %s: %w", path, err)
	}
	if wrapper.Blueprint != nil {
		return wrapper.Blueprint, nil
	}

	bp := &blueprint.Blueprint{}
	if err := json.Unmarshal(raw, bp); err != nil {
		return nil, fmt.Errorf("failed to decode blueprint file %s: %w", path, err)
	}
	return bp, nil
}
