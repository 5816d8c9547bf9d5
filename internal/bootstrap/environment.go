package bootstrap

import (
	"os"
	"path/filepath"
	goruntime "runtime"

	"whisper-desk/internal/domain"
)

// DetectEnvironment computes the per-process runtime descriptor once, at
// the composition root. A packaged install is recognized by a resources
// directory near the executable (Contents/Resources inside a macOS bundle,
// a resources directory next to the binary elsewhere); anything else is
// treated as a development checkout rooted at the working directory.
func DetectEnvironment() domain.Environment {
	env := domain.Environment{
		RunMode: domain.RunModeDevelopment,
		OS:      goruntime.GOOS,
		Arch:    goruntime.GOARCH,
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		for _, dir := range []string{
			filepath.Join(exeDir, "..", "Resources"),
			filepath.Join(exeDir, "resources"),
		} {
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				env.RunMode = domain.RunModePackaged
				env.ResourcesDir = filepath.Clean(dir)
				return env
			}
		}
	}

	if wd, err := os.Getwd(); err == nil {
		env.SourceRoot = wd
	}
	return env
}
