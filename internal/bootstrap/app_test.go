package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"whisper-desk/internal/acquire"
	"whisper-desk/internal/domain"
	"whisper-desk/internal/jobs"
	"whisper-desk/internal/transcribe"
)

// fakeStore returns deterministic settings for App tests.
type fakeStore struct {
	settings domain.Settings
	saved    []domain.Settings
}

// Load returns preconfigured settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	return s.settings, nil
}

// Save records settings handed to the store.
func (s *fakeStore) Save(settings domain.Settings) error {
	s.saved = append(s.saved, settings)
	return nil
}

// fakeEngine records propagated configuration and delegates EnsureReady.
type fakeEngine struct {
	ensure       func(ctx context.Context, opts domain.InitOptions) (domain.BinaryDescriptor, error)
	model        domain.WhisperModelOption
	vendorDir    string
	buildTimeout time.Duration
}

func (e *fakeEngine) EnsureReady(ctx context.Context, opts domain.InitOptions) (domain.BinaryDescriptor, error) {
	if e.ensure == nil {
		return domain.BinaryDescriptor{Path: "/vendor/whisper.cpp/whisper-cli"}, nil
	}
	return e.ensure(ctx, opts)
}

func (e *fakeEngine) Paths() domain.PathSet {
	return domain.PathSet{
		ModelsDir:  "/vendor/models",
		BinaryPath: "/vendor/whisper.cpp/whisper-cli",
	}
}

func (e *fakeEngine) Model() domain.WhisperModelOption        { return e.model }
func (e *fakeEngine) SetModel(model domain.WhisperModelOption) { e.model = model }
func (e *fakeEngine) SetVendorDir(dir string)                  { e.vendorDir = dir }
func (e *fakeEngine) SetBuildTimeout(d time.Duration)          { e.buildTimeout = d }

// fakeDriver allows injecting custom pipeline behavior per test.
type fakeDriver struct {
	run func(ctx context.Context, req transcribe.Request) (domain.TranscriptionResult, error)
}

// Transcribe delegates to injected function.
func (d *fakeDriver) Transcribe(ctx context.Context, req transcribe.Request) (domain.TranscriptionResult, error) {
	if d.run == nil {
		return domain.TranscriptionResult{}, nil
	}
	return d.run(ctx, req)
}

func newTestApp(store *fakeStore, engine *fakeEngine, driver *fakeDriver) *App {
	return &App{
		Settings:  store.settings,
		Store:     store,
		Jobs:      jobs.NewManager(),
		Engine:    engine,
		Driver:    driver,
		readiness: domain.Readiness{State: domain.ReadinessNotChecked},
		events:    jobs.NewEventBus(100),
	}
}

func defaultStore() *fakeStore {
	return &fakeStore{
		settings: domain.Settings{
			ModelID:  acquire.DefaultModelID,
			Language: "auto",
		},
	}
}

// TestInitializeRecordsReadiness verifies success and failure caching.
func TestInitializeRecordsReadiness(t *testing.T) {
	engine := &fakeEngine{model: domain.WhisperModelOption{FileName: "ggml-base.en.bin"}}
	app := newTestApp(defaultStore(), engine, &fakeDriver{})

	if got := app.CheckStatus(); got.Initialized {
		t.Fatal("fresh app must not report initialized")
	}

	if got := app.Initialize(false); !got.Initialized {
		t.Fatalf("Initialize = %+v, want initialized", got)
	}
	readiness := app.GetReadiness()
	if readiness.Binary == "" || readiness.Model != "ggml-base.en.bin" {
		t.Fatalf("readiness = %+v", readiness)
	}

	engine.ensure = func(context.Context, domain.InitOptions) (domain.BinaryDescriptor, error) {
		return domain.BinaryDescriptor{}, errors.New("clone failed")
	}
	got := app.Initialize(false)
	if got.Initialized {
		t.Fatal("failed initialize must not report initialized")
	}
	if got.Error != "clone failed" {
		t.Fatalf("error = %q, want clone failed", got.Error)
	}
}

// TestInitializeForcesModelDownload verifies flag propagation.
func TestInitializeForcesModelDownload(t *testing.T) {
	var gotOpts domain.InitOptions
	engine := &fakeEngine{
		ensure: func(_ context.Context, opts domain.InitOptions) (domain.BinaryDescriptor, error) {
			gotOpts = opts
			return domain.BinaryDescriptor{Path: "/bin"}, nil
		},
	}
	app := newTestApp(defaultStore(), engine, &fakeDriver{})

	app.Initialize(true)
	if !gotOpts.ForceModelDownload {
		t.Fatal("expected forced model download option")
	}
}

// TestStartTranscriptionEnforcesSingleRunningJob checks single-job guard.
func TestStartTranscriptionEnforcesSingleRunningJob(t *testing.T) {
	driver := &fakeDriver{run: func(ctx context.Context, _ transcribe.Request) (domain.TranscriptionResult, error) {
		<-ctx.Done()
		return domain.TranscriptionResult{}, ctx.Err()
	}}
	app := newTestApp(defaultStore(), &fakeEngine{}, driver)

	if _, err := app.StartTranscription("/tmp/input.mp4"); err != nil {
		t.Fatalf("start first job: %v", err)
	}
	if _, err := app.StartTranscription("/tmp/input-2.mp4"); !errors.Is(err, jobs.ErrJobAlreadyRunning) {
		t.Fatalf("second start error = %v, want %v", err, jobs.ErrJobAlreadyRunning)
	}

	if err := app.CancelTranscription(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusCancelled)
}

// TestStartTranscriptionPublishesProgressAndResultEvents checks event flow.
func TestStartTranscriptionPublishesProgressAndResultEvents(t *testing.T) {
	driver := &fakeDriver{run: func(_ context.Context, req transcribe.Request) (domain.TranscriptionResult, error) {
		if req.OnStage != nil {
			req.OnStage("extracting")
			req.OnStage("transcribing")
			req.OnStage("recovering")
		}
		if req.OnLog != nil {
			req.OnLog(transcribe.CommandLog{Command: "ffmpeg", ExitCode: 0})
			req.OnLog(transcribe.CommandLog{Command: "whisper-cli", ExitCode: 0})
		}
		return domain.TranscriptionResult{
			Transcript: "hello",
			Model:      "ggml-base.en.bin",
		}, nil
	}}
	app := newTestApp(defaultStore(), &fakeEngine{}, driver)

	if _, err := app.StartTranscription("/tmp/clip.mp4"); err != nil {
		t.Fatalf("start job: %v", err)
	}

	waitForStatus(t, app, domain.JobStatusDone)
	events := app.JobEvents(0)
	if len(events) == 0 {
		t.Fatal("expected events")
	}

	assertEventTypeExists(t, events, jobs.EventTypeStatus)
	assertEventTypeExists(t, events, jobs.EventTypeLog)
	assertEventTypeExists(t, events, jobs.EventTypeResult)

	var result jobs.Event
	for _, event := range events {
		if event.Type == jobs.EventTypeResult {
			result = event
		}
	}
	if result.Transcript != "hello" || result.Model != "ggml-base.en.bin" {
		t.Fatalf("result event = %+v", result)
	}

	if !app.CheckStatus().Initialized {
		t.Fatal("successful run must mark engine ready")
	}
}

// TestStartTranscriptionPublishesFailureEvents checks error path emissions.
func TestStartTranscriptionPublishesFailureEvents(t *testing.T) {
	driver := &fakeDriver{run: func(context.Context, transcribe.Request) (domain.TranscriptionResult, error) {
		return domain.TranscriptionResult{}, &transcribe.PipelineError{
			Stage:   "transcribing",
			Message: "engine failed",
			CommandLog: transcribe.CommandLog{
				Command:  "whisper-cli",
				Args:     []string{"-m", "/vendor/models/ggml-base.en.bin"},
				ExitCode: 1,
				Stderr:   "bad model",
			},
			Err: errors.New("exit status 1"),
		}
	}}
	app := newTestApp(defaultStore(), &fakeEngine{}, driver)

	if _, err := app.StartTranscription("/tmp/clip.mp4"); err != nil {
		t.Fatalf("start job: %v", err)
	}

	waitForStatus(t, app, domain.JobStatusFailed)
	events := app.JobEvents(0)
	if len(events) == 0 {
		t.Fatal("expected events")
	}

	assertEventTypeExists(t, events, jobs.EventTypeStatus)
	assertEventTypeExists(t, events, jobs.EventTypeError)
	assertEventTypeExists(t, events, jobs.EventTypeLog)
}

// TestSaveSettingsPropagatesEngineConfiguration checks manager updates and
// readiness invalidation on model change.
func TestSaveSettingsPropagatesEngineConfiguration(t *testing.T) {
	engine := &fakeEngine{}
	store := defaultStore()
	app := newTestApp(store, engine, &fakeDriver{})
	app.readiness = domain.Readiness{State: domain.ReadinessReady}

	saved, err := app.SaveSettings(domain.Settings{
		ModelID:             "small",
		Language:            "",
		VendorDir:           "  /opt/vendor ",
		BuildTimeoutMinutes: 20,
	})
	if err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	if saved.Language != "auto" {
		t.Fatalf("language = %q, want auto fill", saved.Language)
	}
	if engine.model.ID != "small" {
		t.Fatalf("engine model = %q, want small", engine.model.ID)
	}
	if engine.vendorDir != "/opt/vendor" {
		t.Fatalf("engine vendor dir = %q", engine.vendorDir)
	}
	if engine.buildTimeout != 20*time.Minute {
		t.Fatalf("engine build timeout = %v", engine.buildTimeout)
	}
	if app.CheckStatus().Initialized {
		t.Fatal("model change must invalidate readiness")
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected one persisted settings write, got %d", len(store.saved))
	}
}

// TestSaveSettingsRejectsUnknownModel verifies catalog validation.
func TestSaveSettingsRejectsUnknownModel(t *testing.T) {
	app := newTestApp(defaultStore(), &fakeEngine{}, &fakeDriver{})

	if _, err := app.SaveSettings(domain.Settings{ModelID: "nonexistent"}); err == nil {
		t.Fatal("expected unknown model error")
	}
}

// waitForStatus polls until job reaches desired status or times out.
func waitForStatus(t *testing.T, app *App, want domain.JobStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if app.CurrentJob().Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", app.CurrentJob().Status, want)
}

// assertEventTypeExists verifies at least one event of given type exists.
func assertEventTypeExists(t *testing.T, events []jobs.Event, want jobs.EventType) {
	t.Helper()
	for _, event := range events {
		if event.Type == want {
			return
		}
	}
	t.Fatalf("event type %s not found", want)
}
