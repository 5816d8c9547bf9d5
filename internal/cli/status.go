package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"whisper-desk/internal/domain"
)

// NewStatusCmd creates the status command: report installed artifacts.
func NewStatusCmd(env domain.Environment) *cobra.Command {
	var (
		modelID   string
		vendorDir string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report engine and model installation state",
		Long: `Status inspects the vendor directory without building or downloading
anything. A non-zero exit code means at least one artifact is missing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, _, err := newEngine(env, modelID, vendorDir)
			if err != nil {
				return err
			}

			pathSet := manager.Paths()
			out := cmd.OutOrStdout()
			ready := true

			for _, artifact := range []struct {
				label string
				path  string
			}{
				{"engine binary", pathSet.BinaryPath},
				{"model", pathSet.ModelPath},
			} {
				if _, err := os.Stat(artifact.path); err != nil {
					ready = false
					fmt.Fprintf(out, "%-13s missing   %s\n", artifact.label, artifact.path)
					continue
				}
				fmt.Fprintf(out, "%-13s installed %s\n", artifact.label, artifact.path)
			}

			if !ready {
				return fmt.Errorf("environment is not ready; run whisperctl setup")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&modelID, "model", "", "model preset id (default from settings)")
	cmd.Flags().StringVar(&vendorDir, "vendor-dir", "", "override artifact storage directory")

	return cmd
}
