package api

import "time"

// v0 contains public types shared between the orchestration core and
// the reporting/CLI layers.

// Outcome is the immutable result of one deployment attempt against
// one host. Exactly one Outcome is produced per selected host per run.
type Outcome struct {
	Host     string        `json:"host"`
	Platform string        `json:"platform"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	// Error is empty on success and never empty on failure.
	Error   string `json:"error,omitempty"`
	LogFile string `json:"log_file,omitempty"`
}

// RunResult aggregates the outcomes of one orchestration run.
// Outcomes are ordered by completion, which under parallel execution
// is not the submission order.
type RunResult struct {
	RunID     string        `json:"run_id"`
	Outcomes  []Outcome     `json:"outcomes"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Ok reports whether every selected host succeeded. A run that
// selected zero hosts is vacuously ok.
func (r *RunResult) Ok() bool { return r.Failed == 0 }

// Status is the last-known state of a host in the rollout state file.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)
