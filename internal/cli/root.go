// Package cli implements whisperctl, the headless control surface for the
// engine. It shares the acquisition and transcription packages with the
// desktop shell but talks to a terminal instead of a window.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"whisper-desk/internal/acquire"
	"whisper-desk/internal/config"
	"whisper-desk/internal/domain"
)

// NewRootCmd creates the root command for the whisperctl CLI.
func NewRootCmd(env domain.Environment) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "whisperctl",
		Short:        "Headless speech-to-text engine control",
		Long:         "Whisperctl provisions the whisper.cpp engine and transcribes media files without the desktop UI",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(NewSetupCmd(env))
	rootCmd.AddCommand(NewTranscribeCmd(env))
	rootCmd.AddCommand(NewStatusCmd(env))
	rootCmd.AddCommand(NewModelsCmd(env))

	return rootCmd
}

// newEngine builds an acquisition manager from persisted settings plus
// per-invocation overrides.
func newEngine(env domain.Environment, modelID, vendorDir string) (*acquire.Manager, domain.Settings, error) {
	settings, err := config.NewJSONStore(config.DefaultSettingsPath()).Load()
	if err != nil {
		return nil, domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	if modelID == "" {
		modelID = settings.ModelID
	}
	model, ok := acquire.ModelByID(modelID)
	if !ok {
		return nil, domain.Settings{}, fmt.Errorf("unknown model id: %s", modelID)
	}

	manager := acquire.NewManager(env, model)
	if vendorDir == "" {
		vendorDir = settings.VendorDir
	}
	manager.SetVendorDir(vendorDir)
	manager.SetBuildTimeout(time.Duration(settings.BuildTimeoutMinutes) * time.Minute)

	return manager, settings, nil
}
