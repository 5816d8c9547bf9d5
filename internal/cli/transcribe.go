package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"whisper-desk/internal/domain"
	"whisper-desk/internal/transcribe"
)

// NewTranscribeCmd creates the transcribe command: media file to text.
func NewTranscribeCmd(env domain.Environment) *cobra.Command {
	var (
		modelID   string
		vendorDir string
		language  string
	)

	cmd := &cobra.Command{
		Use:   "transcribe <media-file>",
		Short: "Transcribe a media file and print the text",
		Long: `Transcribe extracts audio from the given media file, runs the engine,
and prints the transcript to stdout. The engine is provisioned on demand,
so the first run may build from source and download the model.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, settings, err := newEngine(env, modelID, vendorDir)
			if err != nil {
				return err
			}
			if language == "" {
				language = settings.Language
			}

			driver := transcribe.NewDriver(env, manager)
			result, err := driver.Transcribe(cmd.Context(), transcribe.Request{
				MediaPath: args[0],
				Language:  language,
				OnStage: func(stage string) {
					fmt.Fprintf(cmd.ErrOrStderr(), "[%s]\n", stage)
				},
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Transcript)
			return nil
		},
	}

	cmd.Flags().StringVar(&modelID, "model", "", "model preset id (default from settings)")
	cmd.Flags().StringVar(&vendorDir, "vendor-dir", "", "override artifact storage directory")
	cmd.Flags().StringVarP(&language, "language", "l", "", "spoken language code, or auto")

	return cmd
}
