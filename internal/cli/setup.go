package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"whisper-desk/internal/domain"
)

// NewSetupCmd creates the setup command: provision engine and model.
func NewSetupCmd(env domain.Environment) *cobra.Command {
	var (
		modelID    string
		vendorDir  string
		forceModel bool
		skipDeps   bool
		tools      domain.ToolPaths
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Build or verify the engine and download the model",
		Long: `Setup verifies the local whisper.cpp installation, building it from
source when no working binary exists, and downloads the selected model.
A non-zero exit code means the environment is not ready.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, _, err := newEngine(env, modelID, vendorDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Preparing engine in %s\n", manager.Paths().VendorDir)

			binary, err := manager.EnsureReady(cmd.Context(), domain.InitOptions{
				ForceModelDownload:  forceModel,
				SkipDependencyCheck: skipDeps,
				Paths:               tools,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Engine ready: %s\n", binary.Path)
			fmt.Fprintf(out, "Model ready:  %s\n", manager.Paths().ModelPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&modelID, "model", "", "model preset id (default from settings)")
	cmd.Flags().StringVar(&vendorDir, "vendor-dir", "", "override artifact storage directory")
	cmd.Flags().BoolVar(&forceModel, "force-model", false, "re-download the model even if present")
	cmd.Flags().BoolVar(&skipDeps, "skip-deps", false, "skip the build dependency check")
	cmd.Flags().StringVar(&tools.CMake, "cmake", "", "explicit cmake executable path")
	cmd.Flags().StringVar(&tools.Make, "make", "", "explicit make executable path")
	cmd.Flags().StringVar(&tools.Python, "python", "", "explicit python executable path")

	return cmd
}
