package models

import "time"

// Phase is the pipeline's run phase. Terminal phases (completed, stopped,
// failed) cannot be exited without a new run.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseDiscovering    Phase = "discovering"
	PhaseSearchComplete Phase = "hashtag_search_complete"
	PhaseEnriching      Phase = "profile_enrichment"
	PhasePaused         Phase = "paused_between_batches"
	PhaseCompleted      Phase = "completed"
	PhaseStopped        Phase = "stopped"
	PhaseFailed         Phase = "failed"
)

// Terminal reports whether the phase is final for the run.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseStopped || p == PhaseFailed
}

// PipelineRun is the durable record of one discovery+enrichment invocation.
type PipelineRun struct {
	ID           int64      `json:"id" db:"id"`
	Tag          string     `json:"tag" db:"tag"`
	SearchLimit  int        `json:"search_limit" db:"search_limit"`
	Status       Phase      `json:"status" db:"status"`
	LeadsFound   int        `json:"leads_found" db:"leads_found"`
	SessionHash  string     `json:"session_hash" db:"session_hash"`
	ErrorMessage string     `json:"error_message" db:"error_message"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time `json:"completed_at" db:"completed_at"`
}

// ProgressSnapshot is the read-only view of a running pipeline, polled by
// callers at will.
type ProgressSnapshot struct {
	Phase         Phase   `json:"phase"`
	StepsDone     int     `json:"steps_done"`
	StepsTotal    int     `json:"steps_total"`
	Batch         int     `json:"batch"`
	BatchCount    int     `json:"batch_count"`
	LeadsSaved    int     `json:"leads_saved"`
	ETASeconds    float64 `json:"eta_seconds"`
	StopRequested bool    `json:"stop_requested"`
}
