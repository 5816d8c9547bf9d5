// Package prereq probes the host for the build toolchain needed when the
// engine has to be compiled from source.
package prereq

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"whisper-desk/internal/domain"
)

const probeTimeout = 10 * time.Second

// dependency describes one required build tool and how to probe for it.
type dependency struct {
	id         string
	name       string
	candidates []string
	probeArgs  []string
	hints      map[string]string
}

// Checker validates the build toolchain. Probes classify by process exit
// status, not output parsing.
type Checker struct {
	goos      string
	lookPath  func(string) (string, error)
	stat      func(string) (os.FileInfo, error)
	runProbe  func(ctx context.Context, path string, args ...string) error
	knownDirs map[string][]string
}

// NewChecker builds a checker using real OS dependencies. The well-known
// install directory fallback only applies on Windows, where installers
// routinely skip PATH registration.
func NewChecker(goos string) *Checker {
	var knownDirs map[string][]string
	if goos == "windows" {
		knownDirs = windowsKnownDirs()
	}

	return &Checker{
		goos:      goos,
		lookPath:  exec.LookPath,
		stat:      os.Stat,
		runProbe:  runVersionProbe,
		knownDirs: knownDirs,
	}
}

// Result pairs the aggregated report with the search context accumulated
// while resolving tools outside the default PATH.
type Result struct {
	Report domain.DependencyReport
	Search SearchContext
}

// Check probes every required build tool. Explicit overrides in tools are
// tried before any PATH lookup. The whole missing list is reported at once
// so the shell never surfaces failures one at a time.
func (c *Checker) Check(ctx context.Context, tools domain.ToolPaths) Result {
	search := SearchContext{}
	items := make([]domain.DependencyItem, 0, 4)

	for _, dep := range c.dependencies() {
		override := overrideFor(dep.id, tools)
		item, updated := c.checkDependency(ctx, dep, override, search)
		search = updated
		items = append(items, item)
	}

	ok := true
	for _, item := range items {
		if item.Status == domain.DependencyStatusFail {
			ok = false
			break
		}
	}

	return Result{
		Report: domain.DependencyReport{
			GeneratedAt: time.Now().UTC(),
			OK:          ok,
			Items:       items,
		},
		Search: search,
	}
}

// checkDependency resolves and probes one tool, trying the override, the
// default PATH, and finally the OS's well-known install directories.
func (c *Checker) checkDependency(
	ctx context.Context,
	dep dependency,
	override string,
	search SearchContext,
) (domain.DependencyItem, SearchContext) {
	item := domain.DependencyItem{ID: dep.id, Name: dep.name}

	if override != "" {
		if err := c.runProbe(ctx, override, dep.probeArgs...); err == nil {
			item.Status = domain.DependencyStatusPass
			item.Path = override
			item.Message = fmt.Sprintf("Found at %s (configured path)", override)
			return item, search.WithDir(filepath.Dir(override))
		}
		item.Status = domain.DependencyStatusFail
		item.Message = fmt.Sprintf("Configured path for %s is not a working executable: %s", dep.name, override)
		item.Hint = c.installHint(dep)
		return item, search
	}

	for _, candidate := range dep.candidates {
		path, err := search.LookPath(c.lookPath, c.stat, candidate)
		if err != nil {
			continue
		}
		if probeErr := c.runProbe(ctx, path, dep.probeArgs...); probeErr == nil {
			item.Status = domain.DependencyStatusPass
			item.Path = path
			item.Message = fmt.Sprintf("Found at %s", path)
			return item, search
		}
	}

	// PATH lookup failed on the primary desktop OS: probe the fixed list of
	// well-known install directories and record a hit in the search context
	// so later acquisition subprocesses inherit the corrected lookup order.
	for _, dir := range c.knownDirs[dep.id] {
		for _, candidate := range dep.candidates {
			fullPath := filepath.Join(dir, candidate)
			info, err := c.stat(fullPath)
			if err != nil || info.IsDir() {
				continue
			}
			if probeErr := c.runProbe(ctx, fullPath, dep.probeArgs...); probeErr != nil {
				continue
			}
			item.Status = domain.DependencyStatusPass
			item.Path = fullPath
			item.Message = fmt.Sprintf("Found at %s (outside PATH)", fullPath)
			return item, search.WithDir(dir)
		}
	}

	item.Status = domain.DependencyStatusFail
	item.Message = fmt.Sprintf("Tool not found: %s", dep.name)
	item.Hint = c.installHint(dep)
	return item, search
}

// dependencies lists the toolchain probes for the current OS.
func (c *Checker) dependencies() []dependency {
	compiler := dependency{
		id:        "make",
		name:      "make",
		probeArgs: []string{"--version"},
		hints: map[string]string{
			"darwin":  "Install the Xcode command line tools: xcode-select --install",
			"linux":   "Install build tools, e.g. apt-get install build-essential",
			"windows": "Install Visual Studio Build Tools with the C++ workload",
		},
	}
	if c.goos == "windows" {
		compiler.candidates = []string{"msbuild.exe", "msbuild", "nmake.exe"}
		compiler.probeArgs = []string{"-version"}
	} else {
		compiler.candidates = []string{"make"}
	}

	python := dependency{
		id:        "python",
		name:      "python",
		probeArgs: []string{"--version"},
		hints: map[string]string{
			"darwin":  "Install Python 3: brew install python",
			"linux":   "Install Python 3 from your package manager",
			"windows": "Install Python 3 from python.org and enable the PATH option",
		},
	}
	if c.goos == "windows" {
		python.candidates = []string{"python.exe", "python", "py.exe"}
	} else {
		python.candidates = []string{"python3", "python"}
	}

	return []dependency{
		{
			id:         "git",
			name:       "git",
			candidates: gitCandidates(c.goos),
			probeArgs:  []string{"--version"},
			hints: map[string]string{
				"darwin":  "Install git: xcode-select --install or brew install git",
				"linux":   "Install git from your package manager",
				"windows": "Install Git for Windows from git-scm.com",
			},
		},
		{
			id:         "cmake",
			name:       "cmake",
			candidates: cmakeCandidates(c.goos),
			probeArgs:  []string{"--version"},
			hints: map[string]string{
				"darwin":  "Install CMake: brew install cmake",
				"linux":   "Install cmake from your package manager",
				"windows": "Install CMake from cmake.org and enable the PATH option",
			},
		},
		compiler,
		python,
	}
}

// installHint picks the OS-specific remediation text for a dependency.
func (c *Checker) installHint(dep dependency) string {
	if hint, ok := dep.hints[c.goos]; ok {
		return hint
	}
	return fmt.Sprintf("Install %s and ensure it is on PATH.", dep.name)
}

func gitCandidates(goos string) []string {
	if goos == "windows" {
		return []string{"git.exe", "git"}
	}
	return []string{"git"}
}

func cmakeCandidates(goos string) []string {
	if goos == "windows" {
		return []string{"cmake.exe", "cmake"}
	}
	return []string{"cmake"}
}

// windowsKnownDirs lists fixed fallback install locations probed when PATH
// lookup fails. Only Windows installs routinely miss PATH registration.
func windowsKnownDirs() map[string][]string {
	localAppData := os.Getenv("LOCALAPPDATA")
	pythonDirs := []string{
		`C:\Python313`,
		`C:\Python312`,
		`C:\Python311`,
	}
	if localAppData != "" {
		pythonDirs = append(pythonDirs,
			filepath.Join(localAppData, "Programs", "Python", "Python313"),
			filepath.Join(localAppData, "Programs", "Python", "Python312"),
			filepath.Join(localAppData, "Programs", "Python", "Python311"),
		)
	}

	return map[string][]string{
		"git": {
			`C:\Program Files\Git\cmd`,
			`C:\Program Files\Git\bin`,
			`C:\Program Files (x86)\Git\cmd`,
		},
		"cmake": {
			`C:\Program Files\CMake\bin`,
			`C:\Program Files (x86)\CMake\bin`,
		},
		"python": pythonDirs,
	}
}

// overrideFor maps a dependency id to its user-supplied tool path.
func overrideFor(id string, tools domain.ToolPaths) string {
	switch id {
	case "cmake":
		return strings.TrimSpace(tools.CMake)
	case "make":
		return strings.TrimSpace(tools.Make)
	case "python":
		return strings.TrimSpace(tools.Python)
	default:
		return ""
	}
}

// runVersionProbe executes a tool with its version flag under a bounded
// timeout and classifies success by exit status.
func runVersionProbe(ctx context.Context, path string, args ...string) error {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, path, args...)
	var sink bytes.Buffer
	cmd.Stdout = &sink
	cmd.Stderr = &sink
	return cmd.Run()
}

// NewCheckerForTests creates a checker with injectable dependencies.
func NewCheckerForTests(
	goos string,
	lookPath func(string) (string, error),
	stat func(string) (os.FileInfo, error),
	runProbe func(ctx context.Context, path string, args ...string) error,
	knownDirs map[string][]string,
) *Checker {
	return &Checker{
		goos:      goos,
		lookPath:  lookPath,
		stat:      stat,
		runProbe:  runProbe,
		knownDirs: knownDirs,
	}
}
