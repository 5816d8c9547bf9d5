package paths

import (
	"os"
	"path/filepath"

	"whisper-desk/internal/domain"
)

const (
	vendorDirName = "vendor"
	modelsDirName = "models"
	engineDirName = "whisper.cpp"

	currentBinaryBase = "whisper-cli"
)

// CurrentBinaryName returns the preferred engine executable name for an OS.
func CurrentBinaryName(goos string) string {
	if goos == "windows" {
		return currentBinaryBase + ".exe"
	}
	return currentBinaryBase
}

// LegacyBinaryNames returns deprecated executable names still accepted for
// binaries installed by older releases.
func LegacyBinaryNames(goos string) []string {
	if goos == "windows" {
		return []string{"main.exe", "whisper.exe"}
	}
	return []string{"main"}
}

// Resolve derives the full path set from one environment snapshot. Packaged
// installs relocate bundled assets under the OS-provided resources
// directory; a development checkout keeps them alongside the source. The
// returned paths may not exist yet; creating them is the caller's job.
func Resolve(env domain.Environment, modelFileName string) domain.PathSet {
	return ResolveAt(env, vendorRoot(env), modelFileName)
}

// ResolveAt derives the path set rooted at an explicit vendor directory.
// Used when the user overrides the storage location in settings; an empty
// override falls back to the run-mode default.
func ResolveAt(env domain.Environment, vendorDir, modelFileName string) domain.PathSet {
	if vendorDir == "" {
		vendorDir = vendorRoot(env)
	}
	modelsDir := filepath.Join(vendorDir, modelsDirName)
	engineDir := filepath.Join(vendorDir, engineDirName)

	return domain.PathSet{
		VendorDir:  vendorDir,
		ModelsDir:  modelsDir,
		EngineDir:  engineDir,
		ModelPath:  filepath.Join(modelsDir, modelFileName),
		BinaryPath: filepath.Join(engineDir, CurrentBinaryName(env.OS)),
	}
}

// vendorRoot picks the vendor directory root for the current run mode.
func vendorRoot(env domain.Environment) string {
	if env.RunMode == domain.RunModePackaged && env.ResourcesDir != "" {
		return filepath.Join(env.ResourcesDir, vendorDirName)
	}
	if env.SourceRoot != "" {
		return filepath.Join(env.SourceRoot, vendorDirName)
	}

	// Last resort for ambiguous environments: a stable home-relative root.
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".whisper-desk", vendorDirName)
}
