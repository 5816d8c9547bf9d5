package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"whisper-desk/internal/domain"
)

func testEnv(t *testing.T) domain.Environment {
	t.Helper()
	return domain.Environment{
		RunMode:    domain.RunModeDevelopment,
		OS:         "linux",
		Arch:       "amd64",
		SourceRoot: t.TempDir(),
	}
}

func TestNewRootCmd(t *testing.T) {
	rootCmd := NewRootCmd(testEnv(t))

	if rootCmd.Use != "whisperctl" {
		t.Errorf("expected Use to be 'whisperctl', got '%s'", rootCmd.Use)
	}

	subcommands := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		subcommands[strings.Fields(cmd.Use)[0]] = true
	}

	expected := []string{"setup", "transcribe", "status", "models"}
	for _, name := range expected {
		if !subcommands[name] {
			t.Errorf("expected subcommand '%s' to be registered", name)
		}
	}
}

func TestSetupCmdFlags(t *testing.T) {
	cmd := NewSetupCmd(testEnv(t))

	for _, flag := range []string{"model", "vendor-dir", "force-model", "skip-deps", "cmake", "make", "python"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("expected setup flag --%s", flag)
		}
	}
}

func TestStatusCmdReportsMissingArtifacts(t *testing.T) {
	vendorDir := t.TempDir()

	var buf bytes.Buffer
	cmd := NewStatusCmd(testEnv(t))
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--vendor-dir", vendorDir})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected non-ready error for empty vendor dir")
	}
	if !strings.Contains(buf.String(), "missing") {
		t.Fatalf("expected missing artifacts in output, got: %q", buf.String())
	}
}

func TestStatusCmdReportsInstalledArtifacts(t *testing.T) {
	vendorDir := t.TempDir()
	for _, path := range []string{
		filepath.Join(vendorDir, "whisper.cpp", "whisper-cli"),
		filepath.Join(vendorDir, "models", "ggml-base.en.bin"),
	} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o755); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	var buf bytes.Buffer
	cmd := NewStatusCmd(testEnv(t))
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--vendor-dir", vendorDir, "--model", "base.en"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("status: %v (output: %q)", err, buf.String())
	}
	if strings.Contains(buf.String(), "missing") {
		t.Fatalf("expected all artifacts installed, got: %q", buf.String())
	}
}

func TestModelsCmdListsCatalog(t *testing.T) {
	var buf bytes.Buffer
	cmd := NewModelsCmd(testEnv(t))
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--vendor-dir", t.TempDir()})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("models: %v", err)
	}

	output := buf.String()
	for _, id := range []string{"tiny", "base.en", "large-v3-turbo"} {
		if !strings.Contains(output, id) {
			t.Errorf("expected model id %q in output", id)
		}
	}
}

func TestTranscribeCmdRequiresArgument(t *testing.T) {
	cmd := NewTranscribeCmd(testEnv(t))
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err == nil {
		t.Fatal("expected missing argument error")
	}
}
