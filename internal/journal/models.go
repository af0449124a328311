package journal

import "time"

// Run statuses. A run starts as StatusRunning and is closed with one of the
// terminal statuses.
const (
	StatusRunning  = "running"
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusRejected = "rejected"
)

// Step names for the two-phase deploy saga.
const (
	StepPull    = "pull"
	StepRestart = "restart"
)

// RunRecord represents a single deploy run. Intermediate state is observable:
// a failed run whose pull step succeeded still shows that step as success.
type RunRecord struct {
	ID              int64      `json:"id"`
	App             string     `json:"app"`
	Branch          string     `json:"branch"`
	Ref             string     `json:"ref"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	CommitHash      *string    `json:"commit_hash,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
}

// StepRecord represents one external action within a run.
type StepRecord struct {
	ID              int64   `json:"id"`
	RunID           int64   `json:"run_id"`
	Name            string  `json:"name"`
	Status          string  `json:"status"`
	ExitCode        int     `json:"exit_code"`
	DurationSeconds float64 `json:"duration_seconds"`
	Output          *string `json:"output,omitempty"`
}
