// Package bootstrap is the composition root: it wires settings, the
// acquisition manager, the transcription driver, and the desktop shell.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"whisper-desk/internal/acquire"
	"whisper-desk/internal/config"
	"whisper-desk/internal/domain"
	"whisper-desk/internal/jobs"
	"whisper-desk/internal/transcribe"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

var mediaDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Media files",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.mp3;*.wav;*.m4a;*.flac;*.aac;*.ogg;*.webm",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// engineManager isolates engine/model acquisition behind an interface.
type engineManager interface {
	EnsureReady(ctx context.Context, opts domain.InitOptions) (domain.BinaryDescriptor, error)
	Paths() domain.PathSet
	Model() domain.WhisperModelOption
	SetModel(model domain.WhisperModelOption)
	SetVendorDir(dir string)
	SetBuildTimeout(d time.Duration)
}

// mediaTranscriber isolates the transcription pipeline behind an interface.
type mediaTranscriber interface {
	Transcribe(ctx context.Context, req transcribe.Request) (domain.TranscriptionResult, error)
}

// App wires configuration, jobs, acquisition, pipeline, and UI callbacks.
type App struct {
	Settings domain.Settings
	Store    config.Store
	Jobs     *jobs.Manager
	Engine   engineManager
	Driver   mediaTranscriber

	env    domain.Environment
	assets fs.FS

	mu          sync.Mutex
	readiness   domain.Readiness
	activeJobID string
	cancel      context.CancelFunc
	events      *jobs.EventBus
	runtimeCtx  context.Context
}

// New builds the application with persisted settings.
func New(env domain.Environment) (*App, error) {
	return NewWithAssets(env, nil)
}

// NewWithAssets builds the application and optionally configures embedded
// frontend assets.
func NewWithAssets(env domain.Environment, assets fs.FS) (*App, error) {
	store := config.NewJSONStore(config.DefaultSettingsPath())
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	model, ok := acquire.ModelByID(settings.ModelID)
	if !ok {
		model, _ = acquire.ModelByID(acquire.DefaultModelID)
	}

	engine := acquire.NewManager(env, model)
	applySettingsToEngine(engine, settings)

	return &App{
		Settings:  settings,
		Store:     store,
		Jobs:      jobs.NewManager(),
		Engine:    engine,
		Driver:    transcribe.NewDriver(env, engine),
		env:       env,
		assets:    assets,
		readiness: domain.Readiness{State: domain.ReadinessNotChecked},
		events:    jobs.NewEventBus(1000),
	}, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Whisper Desk",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// CheckStatus reports cached readiness without touching the filesystem.
func (a *App) CheckStatus() domain.StatusResponse {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readiness.Status()
}

// GetReadiness returns the full cached readiness record.
func (a *App) GetReadiness() domain.Readiness {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readiness
}

// Initialize verifies or provisions the engine and model. Force re-downloads
// the model even when a local copy exists.
func (a *App) Initialize(force bool) domain.StatusResponse {
	return a.InitializeWithOptions(domain.InitOptions{ForceModelDownload: force})
}

// InitializeWithOptions runs one acquisition pass with full tuning options
// and caches the outcome for subsequent status queries.
func (a *App) InitializeWithOptions(opts domain.InitOptions) domain.StatusResponse {
	binary, err := a.Engine.EnsureReady(context.Background(), opts)

	readiness := domain.Readiness{CheckedAt: time.Now().UTC()}
	if err != nil {
		readiness.State = domain.ReadinessFailed
		readiness.Error = err.Error()
	} else {
		readiness.State = domain.ReadinessReady
		readiness.Binary = binary.Path
		readiness.Model = a.Engine.Model().FileName
	}

	a.mu.Lock()
	a.readiness = readiness
	a.mu.Unlock()

	a.emitRuntimeEvent("readiness:changed", readiness)
	return readiness.Status()
}

// ListModels returns the model catalog with local download state.
func (a *App) ListModels() []domain.WhisperModelOption {
	return acquire.ListModels(a.Engine.Paths().ModelsDir)
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then propagates model and
// storage changes to the acquisition manager. Changing the model or the
// vendor directory invalidates cached readiness.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if _, ok := acquire.ModelByID(normalized.ModelID); !ok {
		return domain.Settings{}, fmt.Errorf("unknown model id: %s", normalized.ModelID)
	}
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	previous := a.Settings
	a.Settings = normalized
	invalidated := previous.ModelID != normalized.ModelID || previous.VendorDir != normalized.VendorDir
	if invalidated {
		a.readiness = domain.Readiness{State: domain.ReadinessNotChecked}
	}
	a.mu.Unlock()

	applySettingsToEngine(a.Engine, normalized)
	if invalidated {
		a.emitRuntimeEvent("readiness:changed", domain.Readiness{State: domain.ReadinessNotChecked})
	}

	return normalized, nil
}

// SelectMedia opens a native file dialog for media selection.
func (a *App) SelectMedia() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select media file",
		Filters: mediaDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// StartTranscription creates a job and runs it asynchronously. The driver
// initializes the engine on demand, so a cold start is a valid entry point.
func (a *App) StartTranscription(inputPath string) (domain.Job, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Job{}, fmt.Errorf("load settings: %w", err)
	}

	jobID := fmt.Sprintf("job-%d", time.Now().UnixNano())
	if err := a.Jobs.Start(jobID); err != nil {
		return domain.Job{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.activeJobID = jobID
	a.cancel = cancel
	a.Settings = settings
	a.mu.Unlock()

	a.publishStatus(jobID, domain.JobStatusInitializing, "Job started")

	go a.runTranscriptionJob(ctx, jobID, inputPath, settings)
	return a.Jobs.Current(), nil
}

// CancelTranscription cancels the currently running job, if any.
func (a *App) CancelTranscription() error {
	a.mu.Lock()
	cancel := a.cancel
	activeJobID := a.activeJobID
	a.mu.Unlock()

	if cancel == nil {
		return jobs.ErrNoRunningJob
	}

	cancel()
	if err := a.Jobs.Cancel(); err != nil && !errors.Is(err, jobs.ErrNoRunningJob) {
		return err
	}

	if activeJobID != "" {
		a.publishStatus(activeJobID, domain.JobStatusCancelled, "Cancellation requested")
	}
	return nil
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Jobs.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// runTranscriptionJob executes the pipeline and maps outcomes to job events.
func (a *App) runTranscriptionJob(ctx context.Context, jobID, inputPath string, settings domain.Settings) {
	req := transcribe.Request{
		MediaPath: inputPath,
		Language:  settings.Language,
		OnStage: func(stage string) {
			status, ok := mapStageToStatus(stage)
			if !ok {
				return
			}
			if err := a.Jobs.Transition(status); err == nil {
				a.publishStatus(jobID, status, "Running "+stage+" stage")
			}
		},
		OnLog: func(log transcribe.CommandLog) {
			a.publishEvent(jobs.Event{
				JobID:    jobID,
				Type:     jobs.EventTypeLog,
				Message:  "Command completed",
				Command:  log.Command,
				Args:     log.Args,
				ExitCode: log.ExitCode,
				Stdout:   log.Stdout,
				Stderr:   log.Stderr,
			})
		},
	}

	result, err := a.Driver.Transcribe(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			_ = a.Jobs.Transition(domain.JobStatusCancelled)
			a.publishStatus(jobID, domain.JobStatusCancelled, "Job cancelled")
			a.clearActiveJob(jobID)
			return
		}

		_ = a.Jobs.Transition(domain.JobStatusFailed)
		a.publishStatus(jobID, domain.JobStatusFailed, "Job failed")
		a.publishEvent(jobs.Event{
			JobID:   jobID,
			Type:    jobs.EventTypeError,
			Status:  domain.JobStatusFailed,
			Message: err.Error(),
		})

		var pipelineErr *transcribe.PipelineError
		if errors.As(err, &pipelineErr) && pipelineErr.CommandLog.Command != "" {
			a.publishEvent(jobs.Event{
				JobID:    jobID,
				Type:     jobs.EventTypeLog,
				Message:  "Failed command",
				Command:  pipelineErr.CommandLog.Command,
				Args:     pipelineErr.CommandLog.Args,
				ExitCode: pipelineErr.CommandLog.ExitCode,
				Stdout:   pipelineErr.CommandLog.Stdout,
				Stderr:   pipelineErr.CommandLog.Stderr,
			})
		}

		a.clearActiveJob(jobID)
		return
	}

	a.markReadyFromRun(result)

	if err := a.Jobs.Transition(domain.JobStatusDone); err == nil {
		a.publishStatus(jobID, domain.JobStatusDone, "Job completed")
	}
	a.publishEvent(jobs.Event{
		JobID:      jobID,
		Type:       jobs.EventTypeResult,
		Status:     domain.JobStatusDone,
		Message:    "Transcription completed",
		Transcript: result.Transcript,
		Model:      result.Model,
	})
	a.clearActiveJob(jobID)
}

// markReadyFromRun records readiness proven by a successful pipeline run.
func (a *App) markReadyFromRun(result domain.TranscriptionResult) {
	readiness := domain.Readiness{
		State:     domain.ReadinessReady,
		Binary:    a.Engine.Paths().BinaryPath,
		Model:     result.Model,
		CheckedAt: time.Now().UTC(),
	}

	a.mu.Lock()
	a.readiness = readiness
	a.mu.Unlock()

	a.emitRuntimeEvent("readiness:changed", readiness)
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(jobID string, status domain.JobStatus, message string) {
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)
	a.emitRuntimeEvent("job:event", published)
}

// emitRuntimeEvent pushes to the UI when the runtime context is live.
func (a *App) emitRuntimeEvent(name string, payload any) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, name, payload)
	}
}

// clearActiveJob clears cancellation handles for completed job IDs.
func (a *App) clearActiveJob(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeJobID == jobID {
		a.activeJobID = ""
		a.cancel = nil
	}
}

// mapStageToStatus maps pipeline stage names to job statuses.
func mapStageToStatus(stage string) (domain.JobStatus, bool) {
	switch stage {
	case "initializing":
		return domain.JobStatusInitializing, true
	case "extracting":
		return domain.JobStatusExtracting, true
	case "transcribing":
		return domain.JobStatusTranscribing, true
	case "recovering":
		return domain.JobStatusRecovering, true
	default:
		return "", false
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// applySettingsToEngine pushes persisted settings into the acquisition
// manager.
func applySettingsToEngine(engine engineManager, settings domain.Settings) {
	if model, ok := acquire.ModelByID(settings.ModelID); ok {
		engine.SetModel(model)
	}
	engine.SetVendorDir(settings.VendorDir)
	engine.SetBuildTimeout(time.Duration(settings.BuildTimeoutMinutes) * time.Minute)
}

// normalizeSettings trims user inputs and applies defaults for empty fields.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.ModelID = strings.TrimSpace(settings.ModelID)
	settings.Language = strings.TrimSpace(settings.Language)
	settings.VendorDir = strings.TrimSpace(settings.VendorDir)
	if settings.ModelID == "" {
		settings.ModelID = acquire.DefaultModelID
	}
	if settings.Language == "" {
		settings.Language = "auto"
	}
	if settings.BuildTimeoutMinutes < 0 {
		settings.BuildTimeoutMinutes = 0
	}
	return settings
}
