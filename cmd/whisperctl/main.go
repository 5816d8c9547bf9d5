package main

import (
	"os"

	"whisper-desk/internal/bootstrap"
	"whisper-desk/internal/cli"
)

func main() {
	rootCmd := cli.NewRootCmd(bootstrap.DetectEnvironment())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
