package acquire

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// writeWrapperScripts generates the launcher scripts that set shared
// library search paths before invoking the engine. The engine's shared
// libraries are colocated with the binary and not on the default loader
// path after a source build.
func writeWrapperScripts(engineDir, binaryPath, goos string) error {
	if goos == "windows" {
		wrapperPath := filepath.Join(engineDir, "run-whisper.bat")
		content := fmt.Sprintf(
			"@echo off\r\nset PATH=%s;%%PATH%%\r\n\"%s\" %%*\r\n",
			engineDir, binaryPath,
		)
		if err := os.WriteFile(wrapperPath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write launcher script: %w", err)
		}
		return nil
	}

	libVar := "LD_LIBRARY_PATH"
	if goos == "darwin" {
		libVar = "DYLD_LIBRARY_PATH"
	}

	wrapperPath := filepath.Join(engineDir, "run-whisper.sh")
	escapedDir := strings.ReplaceAll(engineDir, `"`, `\"`)
	escapedBin := strings.ReplaceAll(binaryPath, `"`, `\"`)
	content := fmt.Sprintf(
		"#!/usr/bin/env sh\nexport %s=\"%s:${%s}\"\nexec \"%s\" \"$@\"\n",
		libVar, escapedDir, libVar, escapedBin,
	)
	if err := os.WriteFile(wrapperPath, []byte(content), 0o755); err != nil {
		return fmt.Errorf("write launcher script: %w", err)
	}
	return nil
}
