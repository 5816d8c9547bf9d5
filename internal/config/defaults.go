package config

import (
	"os"
	"path/filepath"

	"whisper-desk/internal/acquire"
	"whisper-desk/internal/domain"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		ModelID:             acquire.DefaultModelID,
		Language:            "auto",
		VendorDir:           "",
		BuildTimeoutMinutes: 0,
	}
}

// DefaultSettingsPath returns the on-disk location for persisted settings.
func DefaultSettingsPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".whisper-desk", "settings.json")
}

// normalize fills omitted fields with defaults so older settings files
// keep loading after new fields are added.
func normalize(cfg domain.Settings) domain.Settings {
	if cfg.ModelID == "" {
		cfg.ModelID = acquire.DefaultModelID
	}
	if cfg.Language == "" {
		cfg.Language = "auto"
	}
	if cfg.BuildTimeoutMinutes < 0 {
		cfg.BuildTimeoutMinutes = 0
	}
	return cfg
}
