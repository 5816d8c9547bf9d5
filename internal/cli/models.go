package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"whisper-desk/internal/acquire"
	"whisper-desk/internal/domain"
)

// NewModelsCmd creates the models command: list the preset catalog.
func NewModelsCmd(env domain.Environment) *cobra.Command {
	var vendorDir string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List available model presets and their download state",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, _, err := newEngine(env, "", vendorDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, model := range acquire.ListModels(manager.Paths().ModelsDir) {
				state := " "
				if model.Downloaded {
					state = "*"
				}
				fmt.Fprintf(out, "%s %-16s %-10s %s\n", state, model.ID, model.SizeLabel, model.Description)
			}
			fmt.Fprintln(out, "\n* = downloaded")
			return nil
		},
	}

	cmd.Flags().StringVar(&vendorDir, "vendor-dir", "", "override artifact storage directory")

	return cmd
}
