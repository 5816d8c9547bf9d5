// Package acquire ensures a working engine binary and model artifact
// exist, by locating, building, or downloading them.
package acquire

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"whisper-desk/internal/domain"
	"whisper-desk/internal/paths"
	"whisper-desk/internal/prereq"
	"whisper-desk/internal/strategy"
)

const (
	sourceRepoURL = "https://github.com/ggml-org/whisper.cpp.git"

	healthCheckTimeout = 15 * time.Second
	cloneTimeout       = 10 * time.Minute
	binarySearchDepth  = 6
)

// Manager drives the three-stage readiness machine: verify binary, build
// from source, ensure model. Stages run top to bottom, short-circuiting on
// the first success per stage.
type Manager struct {
	env     domain.Environment
	checker *prereq.Checker
	runner  commandRunner
	client  httpDoer
	lookPath func(string) (string, error)
	logf    func(format string, args ...any)
	sleep   func(time.Duration)
	environ func() []string
	numCPU  func() int
	repoURL string

	mu           sync.Mutex
	model        domain.WhisperModelOption
	vendorDir    string
	pathSet      domain.PathSet
	buildTimeout time.Duration
	cached       *domain.BinaryDescriptor
	search       prereq.SearchContext
}

// NewManager builds a manager with real OS dependencies.
func NewManager(env domain.Environment, model domain.WhisperModelOption) *Manager {
	return &Manager{
		env:      env,
		checker:  prereq.NewChecker(env.OS),
		runner:   &execRunner{},
		client:   newDownloadClient(),
		lookPath: exec.LookPath,
		logf:     log.Printf,
		sleep:    time.Sleep,
		environ:  os.Environ,
		numCPU:   goruntime.NumCPU,
		repoURL:  sourceRepoURL,
		model:    model,
		pathSet:  paths.Resolve(env, model.FileName),
	}
}

// Paths returns the current path set snapshot.
func (m *Manager) Paths() domain.PathSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pathSet
}

// Model returns the currently selected model preset.
func (m *Manager) Model() domain.WhisperModelOption {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// SetModel switches the target model. The path set is regenerated as a
// whole unit and the cached binary descriptor is invalidated so the next
// EnsureReady revalidates everything.
func (m *Manager) SetModel(model domain.WhisperModelOption) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
	m.pathSet = paths.ResolveAt(m.env, m.vendorDir, model.FileName)
	m.cached = nil
}

// SetVendorDir relocates all managed artifacts. An empty dir restores the
// run-mode default location.
func (m *Manager) SetVendorDir(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vendorDir = dir
	m.pathSet = paths.ResolveAt(m.env, dir, m.model.FileName)
	m.cached = nil
}

// SetBuildTimeout bounds the native build step. Zero keeps it unbounded.
func (m *Manager) SetBuildTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buildTimeout = d
}

// CachedBinary returns the descriptor selected by the last successful
// EnsureReady, if any.
func (m *Manager) CachedBinary() (domain.BinaryDescriptor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil {
		return domain.BinaryDescriptor{}, false
	}
	return *m.cached, true
}

// Search returns the lookup context accumulated by dependency checks.
func (m *Manager) Search() prereq.SearchContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.search
}

// EnsureReady guarantees the engine binary and model artifact exist,
// building or downloading them as needed. Calling it again when already
// ready re-validates the binary rather than trusting stale state.
func (m *Manager) EnsureReady(ctx context.Context, opts domain.InitOptions) (domain.BinaryDescriptor, error) {
	m.mu.Lock()
	pathSet := m.pathSet
	model := m.model
	m.mu.Unlock()

	if err := m.ensureDirs(pathSet); err != nil {
		return domain.BinaryDescriptor{}, &Error{
			Kind:    KindEnvironment,
			Message: "cannot create vendor directories",
			Err:     err,
		}
	}

	descriptor, err := m.locateBinary(ctx, pathSet)
	if err != nil {
		descriptor, err = m.buildFromSource(ctx, pathSet, opts)
		if err != nil {
			return domain.BinaryDescriptor{}, err
		}
	}

	needModel := opts.ForceModelDownload
	if !needModel {
		if _, statErr := os.Stat(pathSet.ModelPath); statErr != nil {
			needModel = true
		}
	}
	if needModel {
		if dlErr := m.downloadModel(ctx, model, pathSet, m.Search()); dlErr != nil {
			return domain.BinaryDescriptor{}, dlErr
		}
	}

	m.mu.Lock()
	m.cached = &descriptor
	m.mu.Unlock()
	return descriptor, nil
}

// locateBinary probes the engine directory for an executable under either
// accepted name and verifies it still answers the help flag.
func (m *Manager) locateBinary(ctx context.Context, pathSet domain.PathSet) (domain.BinaryDescriptor, error) {
	type candidate struct {
		name    string
		variant domain.BinaryVariant
	}

	candidates := []candidate{{paths.CurrentBinaryName(m.env.OS), domain.BinaryVariantCurrent}}
	for _, legacy := range paths.LegacyBinaryNames(m.env.OS) {
		candidates = append(candidates, candidate{legacy, domain.BinaryVariantLegacy})
	}

	probes := make([]strategy.Strategy[domain.BinaryDescriptor], 0, len(candidates))
	for _, c := range candidates {
		c := c
		probes = append(probes, strategy.Strategy[domain.BinaryDescriptor]{
			Name: c.name,
			Run: func(ctx context.Context) (domain.BinaryDescriptor, error) {
				binPath := filepath.Join(pathSet.EngineDir, c.name)
				info, err := os.Stat(binPath)
				if err != nil {
					return domain.BinaryDescriptor{}, err
				}
				if info.IsDir() {
					return domain.BinaryDescriptor{}, fmt.Errorf("%s is a directory", binPath)
				}
				if err := m.healthCheck(ctx, binPath); err != nil {
					return domain.BinaryDescriptor{}, err
				}
				return domain.BinaryDescriptor{Path: binPath, Variant: c.variant}, nil
			},
		})
	}

	descriptor, _, err := strategy.First(ctx, probes)
	if err != nil {
		return domain.BinaryDescriptor{}, err
	}
	if descriptor.Variant == domain.BinaryVariantLegacy {
		m.logf("engine binary %s uses a deprecated name; rebuilding will install the current name", descriptor.Path)
	}
	return descriptor, nil
}

// healthCheck executes the binary with the help flag under a bounded
// timeout and classifies by exit status.
func (m *Manager) healthCheck(ctx context.Context, binPath string) error {
	_, err := m.runner.Run(ctx, command{
		Name:    binPath,
		Args:    []string{"--help"},
		Env:     m.Search().Environ(m.environ()),
		Timeout: healthCheckTimeout,
	})
	return err
}

// buildFromSource acquires the engine from the upstream repository:
// dependency check, clone or validate source, configure, compile, locate
// output, install.
func (m *Manager) buildFromSource(
	ctx context.Context,
	pathSet domain.PathSet,
	opts domain.InitOptions,
) (domain.BinaryDescriptor, error) {
	search := m.Search()
	if !opts.SkipDependencyCheck {
		result := m.checker.Check(ctx, opts.Paths)
		if !result.Report.OK {
			hints := make([]string, 0, len(result.Report.Items))
			for _, item := range result.Report.Items {
				if item.Status == domain.DependencyStatusFail && item.Hint != "" {
					hints = append(hints, item.Hint)
				}
			}
			return domain.BinaryDescriptor{}, &Error{
				Kind:    KindDependencyMissing,
				Message: "Missing required dependencies",
				Missing: result.Report.Missing(),
				Hints:   hints,
			}
		}
		search = result.Search
		m.mu.Lock()
		m.search = search
		m.mu.Unlock()
	}

	if err := m.ensureSource(ctx, pathSet, search); err != nil {
		return domain.BinaryDescriptor{}, err
	}
	if err := m.runBuild(ctx, pathSet, opts.Paths, search); err != nil {
		return domain.BinaryDescriptor{}, err
	}
	return m.installBuiltBinary(ctx, pathSet)
}

// ensureSource validates the source checkout and shallow-clones it when
// absent or corrupted. The clone is attempted once per EnsureReady call.
func (m *Manager) ensureSource(ctx context.Context, pathSet domain.PathSet, search prereq.SearchContext) error {
	buildDescriptor := filepath.Join(pathSet.EngineDir, "CMakeLists.txt")
	if _, err := os.Stat(buildDescriptor); err == nil {
		return nil
	}

	// Anything without the build descriptor is treated as corrupt and purged.
	if err := os.RemoveAll(pathSet.EngineDir); err != nil {
		return &Error{
			Kind:    KindSourceAcquisition,
			Message: fmt.Sprintf("cannot remove invalid source directory %s", pathSet.EngineDir),
			Err:     err,
		}
	}
	if err := os.MkdirAll(pathSet.VendorDir, 0o755); err != nil {
		return &Error{
			Kind:    KindSourceAcquisition,
			Message: fmt.Sprintf("cannot create vendor directory %s", pathSet.VendorDir),
			Err:     err,
		}
	}

	gitPath, err := search.LookPath(m.lookPath, os.Stat, gitExecutable(m.env.OS))
	if err != nil {
		gitPath = "git"
	}

	result, err := m.runner.Run(ctx, command{
		Name:    gitPath,
		Args:    []string{"clone", "--depth", "1", m.repoURL, pathSet.EngineDir},
		Env:     search.Environ(m.environ()),
		Timeout: cloneTimeout,
	})
	if err != nil {
		return &Error{
			Kind:    KindSourceAcquisition,
			Message: fmt.Sprintf("clone %s failed (exit %d): %s", m.repoURL, result.ExitCode, outputTail(result.Stderr)),
			Err:     err,
		}
	}

	if _, err := os.Stat(buildDescriptor); err != nil {
		return &Error{
			Kind:    KindSourceAcquisition,
			Message: fmt.Sprintf("cloned source is missing the build descriptor %s", buildDescriptor),
			Err:     err,
		}
	}
	return nil
}

// runBuild configures and compiles the engine in release mode with static
// libraries, parallelized across the host cores. Build environments are
// assumed deterministic, so failures are not retried.
func (m *Manager) runBuild(
	ctx context.Context,
	pathSet domain.PathSet,
	tools domain.ToolPaths,
	search prereq.SearchContext,
) error {
	m.mu.Lock()
	buildTimeout := m.buildTimeout
	m.mu.Unlock()

	cmakePath := strings.TrimSpace(tools.CMake)
	if cmakePath == "" {
		resolved, err := search.LookPath(m.lookPath, os.Stat, cmakeExecutable(m.env.OS))
		if err != nil {
			resolved = "cmake"
		}
		cmakePath = resolved
	}

	buildDir := filepath.Join(pathSet.EngineDir, "build")
	env := search.Environ(m.environ())

	configure := command{
		Name: cmakePath,
		Args: []string{
			"-S", pathSet.EngineDir,
			"-B", buildDir,
			"-DCMAKE_BUILD_TYPE=Release",
			"-DBUILD_SHARED_LIBS=OFF",
			"-DWHISPER_BUILD_TESTS=OFF",
		},
		Dir:     pathSet.EngineDir,
		Env:     env,
		Timeout: buildTimeout,
	}
	if result, err := m.runner.Run(ctx, configure); err != nil {
		return &Error{
			Kind:    KindBuild,
			Message: fmt.Sprintf("engine configure failed (exit %d): %s", result.ExitCode, outputTail(result.Stderr)),
			Err:     err,
		}
	}

	compile := command{
		Name: cmakePath,
		Args: []string{
			"--build", buildDir,
			"--config", "Release",
			"-j", strconv.Itoa(m.numCPU()),
		},
		Dir:     pathSet.EngineDir,
		Env:     env,
		Timeout: buildTimeout,
	}
	if result, err := m.runner.Run(ctx, compile); err != nil {
		return &Error{
			Kind:    KindBuild,
			Message: fmt.Sprintf("engine compile failed (exit %d): %s", result.ExitCode, outputTail(result.Stderr)),
			Err:     err,
		}
	}
	return nil
}

// installBuiltBinary finds the build output under the known output
// directories or a bounded walk, copies it to the canonical location, and
// generates launcher scripts.
func (m *Manager) installBuiltBinary(ctx context.Context, pathSet domain.PathSet) (domain.BinaryDescriptor, error) {
	buildDir := filepath.Join(pathSet.EngineDir, "build")
	names := append(
		[]string{paths.CurrentBinaryName(m.env.OS)},
		paths.LegacyBinaryNames(m.env.OS)...,
	)
	candidateDirs := []string{
		filepath.Join(buildDir, "bin"),
		filepath.Join(buildDir, "bin", "Release"),
		filepath.Join(buildDir, "Release"),
		buildDir,
		pathSet.EngineDir,
	}

	var sourcePath string
	for _, dir := range candidateDirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			info, err := os.Stat(candidate)
			if err == nil && !info.IsDir() {
				sourcePath = candidate
				break
			}
		}
		if sourcePath != "" {
			break
		}
	}

	if sourcePath == "" {
		if found, ok := walkForBinary(ctx, buildDir, names, binarySearchDepth); ok {
			sourcePath = found
		}
	}
	if sourcePath == "" {
		return domain.BinaryDescriptor{}, &Error{
			Kind:    KindBinaryNotFound,
			Message: fmt.Sprintf("build completed but no engine binary found under %s", buildDir),
			Listing: directoryListing(buildDir),
		}
	}

	if sourcePath != pathSet.BinaryPath {
		if err := copyFile(sourcePath, pathSet.BinaryPath); err != nil {
			return domain.BinaryDescriptor{}, &Error{
				Kind:    KindEnvironment,
				Message: fmt.Sprintf("cannot install engine binary to %s", pathSet.BinaryPath),
				Err:     err,
			}
		}
	}
	if m.env.OS != "windows" {
		if err := os.Chmod(pathSet.BinaryPath, 0o755); err != nil {
			return domain.BinaryDescriptor{}, &Error{
				Kind:    KindEnvironment,
				Message: fmt.Sprintf("cannot mark engine binary executable at %s", pathSet.BinaryPath),
				Err:     err,
			}
		}
	}

	if err := writeWrapperScripts(pathSet.EngineDir, pathSet.BinaryPath, m.env.OS); err != nil {
		m.logf("launcher script generation failed: %v", err)
	}

	return domain.BinaryDescriptor{
		Path:    pathSet.BinaryPath,
		Variant: domain.BinaryVariantCurrent,
	}, nil
}

// ensureDirs creates the persisted vendor layout; safe to repeat.
func (m *Manager) ensureDirs(pathSet domain.PathSet) error {
	for _, dir := range []string{pathSet.VendorDir, pathSet.ModelsDir, pathSet.EngineDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// walkForBinary is a bounded breadth-first search for any accepted binary
// name, used as a last resort when the known output directories miss.
func walkForBinary(ctx context.Context, root string, names []string, maxDepth int) (string, bool) {
	type frame struct {
		dir   string
		depth int
	}

	queue := []frame{{root, 0}}
	for len(queue) > 0 {
		if ctx.Err() != nil {
			return "", false
		}

		current := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(current.dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				if current.depth < maxDepth {
					queue = append(queue, frame{filepath.Join(current.dir, entry.Name()), current.depth + 1})
				}
				continue
			}
			for _, name := range names {
				if entry.Name() == name {
					return filepath.Join(current.dir, entry.Name()), true
				}
			}
		}
	}
	return "", false
}

// directoryListing returns entry names for diagnostics, best effort.
func directoryListing(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return names
}

// copyFile copies src to dst, creating parent directories.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}

// outputTail truncates command output for error messages.
func outputTail(output string) string {
	trimmed := strings.TrimSpace(output)
	if len(trimmed) > 500 {
		return "..." + trimmed[len(trimmed)-500:]
	}
	return trimmed
}

func gitExecutable(goos string) string {
	if goos == "windows" {
		return "git.exe"
	}
	return "git"
}

func cmakeExecutable(goos string) string {
	if goos == "windows" {
		return "cmake.exe"
	}
	return "cmake"
}

// NewManagerForTests constructs a manager with injectable dependencies.
func NewManagerForTests(
	env domain.Environment,
	model domain.WhisperModelOption,
	checker *prereq.Checker,
	runner commandRunner,
	client httpDoer,
	lookPath func(string) (string, error),
	logf func(format string, args ...any),
	sleep func(time.Duration),
	repoURL string,
) *Manager {
	return &Manager{
		env:      env,
		checker:  checker,
		runner:   runner,
		client:   client,
		lookPath: lookPath,
		logf:     logf,
		sleep:    sleep,
		environ:  os.Environ,
		numCPU:   func() int { return 2 },
		repoURL:  repoURL,
		model:    model,
		pathSet:  paths.Resolve(env, model.FileName),
	}
}
