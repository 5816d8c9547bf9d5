package domain

// RunMode distinguishes a development checkout from a packaged install.
type RunMode string

const (
	RunModeDevelopment RunMode = "development"
	RunModePackaged    RunMode = "packaged"
)

// Environment is the immutable per-process descriptor computed at startup
// by the composition root and injected everywhere below it.
type Environment struct {
	RunMode      RunMode `json:"runMode"`
	OS           string  `json:"os"`
	Arch         string  `json:"arch"`
	ResourcesDir string  `json:"resourcesDir,omitempty"`
	SourceRoot   string  `json:"sourceRoot,omitempty"`
}

// PathSet holds every filesystem location the orchestrator uses. It is
// always regenerated as a whole from one Environment snapshot.
type PathSet struct {
	VendorDir  string `json:"vendorDir"`
	ModelsDir  string `json:"modelsDir"`
	EngineDir  string `json:"engineDir"`
	ModelPath  string `json:"modelPath"`
	BinaryPath string `json:"binaryPath"`
}

// BinaryVariant names the two acceptable engine executable names. The
// upstream engine renamed its binary; previously installed legacy copies
// must keep working.
type BinaryVariant string

const (
	BinaryVariantCurrent BinaryVariant = "current"
	BinaryVariantLegacy  BinaryVariant = "legacy"
)

// BinaryDescriptor is the resolved engine executable for this process.
type BinaryDescriptor struct {
	Path    string        `json:"path"`
	Variant BinaryVariant `json:"variant"`
}

// ToolPaths carries user-supplied overrides for build tool locations.
type ToolPaths struct {
	CMake  string `json:"cmake,omitempty"`
	Make   string `json:"make,omitempty"`
	Python string `json:"python,omitempty"`
}

// InitOptions tunes one initialize pass.
type InitOptions struct {
	ForceModelDownload  bool      `json:"forceModelDownload,omitempty"`
	SkipDependencyCheck bool      `json:"skipDependencyCheck,omitempty"`
	Paths               ToolPaths `json:"paths,omitempty"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	ModelID             string `json:"modelId"`
	Language            string `json:"language"`
	VendorDir           string `json:"vendorDir,omitempty"`
	BuildTimeoutMinutes int    `json:"buildTimeoutMinutes,omitempty"`
}

// TranscriptionResult is returned to the shell for a completed job.
type TranscriptionResult struct {
	Transcript string `json:"transcript"`
	Model      string `json:"model"`
}

// JobStatus tracks each stage of a single orchestration job.
type JobStatus string

const (
	JobStatusIdle         JobStatus = "idle"
	JobStatusInitializing JobStatus = "initializing"
	JobStatusExtracting   JobStatus = "extracting"
	JobStatusTranscribing JobStatus = "transcribing"
	JobStatusRecovering   JobStatus = "recovering"
	JobStatusDone         JobStatus = "done"
	JobStatusFailed       JobStatus = "failed"
	JobStatusCancelled    JobStatus = "cancelled"
)

// Job stores the current job identity and lifecycle status.
type Job struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
}
