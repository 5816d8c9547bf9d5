package domain

import "time"

// ReadinessState is the tri-state result of engine/model verification.
type ReadinessState string

const (
	ReadinessNotChecked ReadinessState = "not_checked"
	ReadinessReady      ReadinessState = "ready"
	ReadinessFailed     ReadinessState = "failed"
)

// Readiness is the facade's cached verification result. It is recomputed on
// every initialize call, never persisted.
type Readiness struct {
	State     ReadinessState `json:"state"`
	Error     string         `json:"error,omitempty"`
	Binary    string         `json:"binary,omitempty"`
	Model     string         `json:"model,omitempty"`
	CheckedAt time.Time      `json:"checkedAt,omitempty"`
}

// Initialized reports whether the engine and model have been verified.
func (r Readiness) Initialized() bool {
	return r.State == ReadinessReady
}

// StatusResponse is the shell-facing shape of a readiness query.
type StatusResponse struct {
	Initialized bool   `json:"initialized"`
	Error       string `json:"error,omitempty"`
}

// Status converts cached readiness into the shell contract.
func (r Readiness) Status() StatusResponse {
	return StatusResponse{
		Initialized: r.Initialized(),
		Error:       r.Error,
	}
}
