// Package transcribe drives the two-stage media pipeline: extract audio
// with ffmpeg, transcribe with the engine binary, recover the output.
package transcribe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"whisper-desk/internal/domain"
	"whisper-desk/internal/prereq"
	"whisper-desk/internal/strategy"
)

// Request contains input media and execution callbacks for one run.
type Request struct {
	MediaPath string
	Language  string
	OnStage   func(stage string)
	OnLog     func(log CommandLog)
}

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// PipelineError is a stage-aware error with optional command context.
type PipelineError struct {
	Stage      string     `json:"stage"`
	Message    string     `json:"message"`
	CommandLog CommandLog `json:"commandLog"`
	Err        error      `json:"-"`
}

// Error formats pipeline failures for logs and UI.
func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	if e.CommandLog.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}

	return fmt.Sprintf(
		"%s: %s (cmd=%s exit=%d)",
		e.Stage,
		e.Message,
		e.CommandLog.Command,
		e.CommandLog.ExitCode,
	)
}

// Unwrap exposes underlying error for errors.Is / errors.As.
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args []string, env []string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args []string, env []string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if env != nil {
		cmd.Env = env
	}

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// readinessEnsurer guarantees an engine binary and model exist before a
// run and exposes the resolved locations.
type readinessEnsurer interface {
	EnsureReady(ctx context.Context, opts domain.InitOptions) (domain.BinaryDescriptor, error)
	Paths() domain.PathSet
	Model() domain.WhisperModelOption
	Search() prereq.SearchContext
}

// audioExtensions lists inputs that already contain a bare audio stream.
// Extraction still runs for them to normalize sample rate and channels.
var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".m4a":  true,
	".flac": true,
	".aac":  true,
	".ogg":  true,
}

// Driver orchestrates ffmpeg extraction and engine transcription.
type Driver struct {
	env     domain.Environment
	manager readinessEnsurer
	runner  commandRunner

	lookPath  func(string) (string, error)
	stat      func(string) (os.FileInfo, error)
	readFile  func(string) ([]byte, error)
	writeFile func(string, []byte, os.FileMode) error
	remove    func(string) error
	tempDir   func() string
	environ   func() []string
	now       func() time.Time
	logf      func(format string, args ...any)
}

// NewDriver constructs the production driver with OS dependencies.
func NewDriver(env domain.Environment, manager readinessEnsurer) *Driver {
	return &Driver{
		env:      env,
		manager:  manager,
		runner:   &execRunner{},
		lookPath:  exec.LookPath,
		stat:      os.Stat,
		readFile:  os.ReadFile,
		writeFile: os.WriteFile,
		remove:    os.Remove,
		tempDir:   os.TempDir,
		environ:   os.Environ,
		now:       time.Now,
		logf:      log.Printf,
	}
}

// job tracks per-invocation temp artifacts for guaranteed cleanup.
type job struct {
	tempAudioPath  string
	tempOutputPath string
}

// Transcribe runs the full pipeline and returns plain transcript text plus
// the model identifier used.
func (d *Driver) Transcribe(ctx context.Context, req Request) (domain.TranscriptionResult, error) {
	if strings.TrimSpace(req.MediaPath) == "" {
		return domain.TranscriptionResult{}, &PipelineError{
			Stage:   "extracting",
			Message: "input media path is required",
		}
	}
	if _, err := d.stat(req.MediaPath); err != nil {
		return domain.TranscriptionResult{}, &PipelineError{
			Stage:   "extracting",
			Message: fmt.Sprintf("cannot access input media: %s", req.MediaPath),
			Err:     err,
		}
	}

	emitStage(req.OnStage, "initializing")
	binary, err := d.manager.EnsureReady(ctx, domain.InitOptions{})
	if err != nil {
		return domain.TranscriptionResult{}, &PipelineError{
			Stage:   "initializing",
			Message: "engine is not ready",
			Err:     err,
		}
	}

	pathSet := d.manager.Paths()
	model := d.manager.Model()

	// Timestamped temp names avoid collisions across successive runs.
	timestamp := d.now().UnixNano()
	run := &job{
		tempAudioPath:  filepath.Join(d.tempDir(), fmt.Sprintf("whisper-audio-%d.wav", timestamp)),
		tempOutputPath: filepath.Join(d.tempDir(), fmt.Sprintf("whisper-out-%d", timestamp)) + ".txt",
	}
	defer d.cleanup(run)

	if err := d.extractAudio(ctx, req, pathSet, run); err != nil {
		return domain.TranscriptionResult{}, err
	}
	if err := d.runEngine(ctx, req, binary, pathSet, run); err != nil {
		return domain.TranscriptionResult{}, err
	}

	emitStage(req.OnStage, "recovering")
	textPath, err := d.recoverOutput(req.MediaPath, run)
	if err != nil {
		return domain.TranscriptionResult{}, err
	}

	content, err := d.readFile(textPath)
	if err != nil {
		return domain.TranscriptionResult{}, &PipelineError{
			Stage:   "recovering",
			Message: fmt.Sprintf("failed to read transcript file: %s", textPath),
			Err:     err,
		}
	}

	return domain.TranscriptionResult{
		Transcript: strings.TrimSpace(string(content)),
		Model:      model.FileName,
	}, nil
}

// extractAudio transcodes input media to mono 16kHz 16-bit PCM WAV.
func (d *Driver) extractAudio(ctx context.Context, req Request, pathSet domain.PathSet, run *job) error {
	emitStage(req.OnStage, "extracting")

	ffmpegPath, err := d.resolveFFmpeg(ctx, pathSet)
	if err != nil {
		return &PipelineError{
			Stage:   "extracting",
			Message: "ffmpeg is not available",
			Err:     err,
		}
	}

	isAudio := IsAudioFile(req.MediaPath)
	args := buildFFmpegArgs(req.MediaPath, run.tempAudioPath, isAudio)

	result, runErr := d.runner.Run(ctx, ffmpegPath, args, nil)
	cmdLog := CommandLog{
		Command:  ffmpegPath,
		Args:     args,
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}
	emitLog(req.OnLog, cmdLog)
	if runErr != nil {
		return &PipelineError{
			Stage:      "extracting",
			Message:    "audio extraction failed",
			CommandLog: cmdLog,
			Err:        runErr,
		}
	}

	// A missing output means bad input, not a transient fault; no retry.
	if _, err := d.stat(run.tempAudioPath); err != nil {
		return &PipelineError{
			Stage:      "extracting",
			Message:    "extraction completed but produced no output file",
			CommandLog: cmdLog,
			Err:        err,
		}
	}
	return nil
}

// runEngine invokes the engine binary with library-path variables layered
// over the inherited environment.
func (d *Driver) runEngine(
	ctx context.Context,
	req Request,
	binary domain.BinaryDescriptor,
	pathSet domain.PathSet,
	run *job,
) error {
	emitStage(req.OnStage, "transcribing")

	outputBase := strings.TrimSuffix(run.tempOutputPath, ".txt")
	args := buildEngineArgs(pathSet.ModelPath, run.tempAudioPath, outputBase, req.Language)
	env := libraryPathEnviron(
		d.manager.Search().Environ(d.environ()),
		filepath.Dir(binary.Path),
		d.env.OS,
	)

	result, runErr := d.runner.Run(ctx, binary.Path, args, env)
	cmdLog := CommandLog{
		Command:  binary.Path,
		Args:     args,
		ExitCode: result.ExitCode,
		Stdout:   result.Stdout,
		Stderr:   result.Stderr,
	}
	emitLog(req.OnLog, cmdLog)
	if runErr != nil {
		return &PipelineError{
			Stage:      "transcribing",
			Message:    "engine transcription failed",
			CommandLog: cmdLog,
			Err:        runErr,
		}
	}
	return nil
}

// recoverOutput returns the transcript path, probing the naming
// conventions the engine has used historically when the expected explicit
// output name is absent. A total miss means the engine's output contract
// changed; it is fatal and never retried.
func (d *Driver) recoverOutput(mediaPath string, run *job) (string, error) {
	if _, err := d.stat(run.tempOutputPath); err == nil {
		return run.tempOutputPath, nil
	}

	mediaBase := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	candidates := []string{
		run.tempAudioPath + ".txt",
		filepath.Join(d.tempDir(), mediaBase+".txt"),
		filepath.Join(d.tempDir(), "transcript.txt"),
	}

	for _, candidate := range candidates {
		if _, err := d.stat(candidate); err != nil {
			continue
		}
		content, err := d.readFile(candidate)
		if err != nil {
			continue
		}
		if err := d.writeFile(run.tempOutputPath, content, 0o644); err != nil {
			return "", &PipelineError{
				Stage:   "recovering",
				Message: fmt.Sprintf("cannot copy transcript from %s", candidate),
				Err:     err,
			}
		}
		d.logf("recovered transcript from alternative location: %s", candidate)
		if removeErr := d.remove(candidate); removeErr != nil {
			d.logf("cleanup alternative transcript %s: %v", candidate, removeErr)
		}
		return run.tempOutputPath, nil
	}

	return "", &PipelineError{
		Stage:   "recovering",
		Message: fmt.Sprintf("engine produced no transcript under any known name (expected %s)", run.tempOutputPath),
	}
}

// cleanup removes temp artifacts; failures are logged, never escalated.
func (d *Driver) cleanup(run *job) {
	for _, path := range []string{run.tempAudioPath, run.tempOutputPath} {
		if path == "" {
			continue
		}
		if err := d.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.logf("cleanup temp file %s: %v", path, err)
		}
	}
}

// resolveFFmpeg picks the extraction tool: system install first, then the
// bundled copies at packaged- and development-relative locations.
func (d *Driver) resolveFFmpeg(ctx context.Context, pathSet domain.PathSet) (string, error) {
	ffmpegName := "ffmpeg"
	if d.env.OS == "windows" {
		ffmpegName = "ffmpeg.exe"
	}

	statCandidate := func(path string) func(context.Context) (string, error) {
		return func(context.Context) (string, error) {
			info, err := d.stat(path)
			if err != nil {
				return "", err
			}
			if info.IsDir() {
				return "", fmt.Errorf("%s is a directory", path)
			}
			return path, nil
		}
	}

	candidates := []strategy.Strategy[string]{
		{
			Name: "system",
			Run: func(context.Context) (string, error) {
				return d.lookPath("ffmpeg")
			},
		},
	}
	if d.env.ResourcesDir != "" {
		bundled := filepath.Join(d.env.ResourcesDir, "vendor", "ffmpeg", ffmpegName)
		candidates = append(candidates, strategy.Strategy[string]{Name: "packaged", Run: statCandidate(bundled)})
	}
	devBundled := filepath.Join(pathSet.VendorDir, "ffmpeg", ffmpegName)
	candidates = append(candidates, strategy.Strategy[string]{Name: "development", Run: statCandidate(devBundled)})

	path, _, err := strategy.First(ctx, candidates)
	return path, err
}

// emitStage forwards stage updates when callback is configured.
func emitStage(cb func(stage string), stage string) {
	if cb != nil {
		cb(stage)
	}
}

// emitLog forwards command logs when callback is configured.
func emitLog(cb func(log CommandLog), log CommandLog) {
	if cb != nil {
		cb(log)
	}
}

// IsAudioFile classifies input by extension into "already audio" vs
// "needs extraction".
func IsAudioFile(path string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(path))]
}

// normalizeLanguage maps "auto" and empty language to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

// buildFFmpegArgs builds extraction CLI args for mono 16k PCM WAV output.
// Video inputs additionally drop their video stream.
func buildFFmpegArgs(inputPath, outPath string, isAudio bool) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
	}
	if !isAudio {
		args = append(args, "-vn")
	}
	return append(args,
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	)
}

// buildEngineArgs builds engine args for plain-text transcript export.
func buildEngineArgs(modelPath, audioPath, outputBase, language string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outputBase,
		"-otxt",
	}

	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}

	return args
}

// libraryPathEnviron layers the engine directory onto the OS loader path
// variable, augmenting the inherited environment rather than replacing it.
func libraryPathEnviron(base []string, engineDir, goos string) []string {
	var key string
	switch goos {
	case "darwin":
		key = "DYLD_LIBRARY_PATH"
	case "windows":
		key = "PATH"
	default:
		key = "LD_LIBRARY_PATH"
	}

	existing := ""
	for _, entry := range base {
		if k, v, found := strings.Cut(entry, "="); found && strings.EqualFold(k, key) {
			existing = v
		}
	}

	value := engineDir
	if existing != "" {
		value = engineDir + string(os.PathListSeparator) + existing
	}

	// Duplicate keys are resolved last-wins by os/exec.
	out := append([]string(nil), base...)
	return append(out, key+"="+value)
}

// NewDriverForTests constructs a driver with injectable dependencies.
func NewDriverForTests(
	env domain.Environment,
	manager readinessEnsurer,
	runner commandRunner,
	lookPath func(string) (string, error),
	tempDir func() string,
	now func() time.Time,
	logf func(format string, args ...any),
) *Driver {
	return &Driver{
		env:       env,
		manager:   manager,
		runner:    runner,
		lookPath:  lookPath,
		stat:      os.Stat,
		readFile:  os.ReadFile,
		writeFile: os.WriteFile,
		remove:    os.Remove,
		tempDir:   tempDir,
		environ:   os.Environ,
		now:       now,
		logf:      logf,
	}
}
