package domain

import "time"

// DependencyStatus indicates whether a single toolchain probe passed.
type DependencyStatus string

const (
	DependencyStatusPass DependencyStatus = "pass"
	DependencyStatusFail DependencyStatus = "fail"
)

// DependencyItem is one build-tool probe result with optional install hint.
type DependencyItem struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Status  DependencyStatus `json:"status"`
	Path    string           `json:"path,omitempty"`
	Message string           `json:"message"`
	Hint    string           `json:"hint,omitempty"`
}

// DependencyReport aggregates toolchain probes for the acquisition manager
// and for shell rendering. The full missing list is surfaced at once.
type DependencyReport struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	OK          bool             `json:"ok"`
	Items       []DependencyItem `json:"items"`
}

// Missing returns the names of all failed probes.
func (r DependencyReport) Missing() []string {
	var names []string
	for _, item := range r.Items {
		if item.Status == DependencyStatusFail {
			names = append(names, item.Name)
		}
	}
	return names
}
