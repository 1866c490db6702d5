package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind identifies the type of a progress event.
type EventKind string

const (
	EventStageStarted    EventKind = "stage_started"
	EventPaperFound      EventKind = "paper_found"
	EventPaperDownloaded EventKind = "paper_downloaded"
	EventPaperExtracted  EventKind = "paper_extracted"
	EventPaperTranslated EventKind = "paper_translated"
	EventStageCompleted  EventKind = "stage_completed"
	EventWarning         EventKind = "warning"
	EventTerminal        EventKind = "terminal"
)

// ProgressEvent is the immutable, append-only record of observable progress
// emitted by the orchestrator at every stage boundary and per-paper step.
// Events are streamed to subscribers and persisted to the job's events.log
// as one JSON object per line. Within a job, ProgressPct never decreases.
type ProgressEvent struct {
	JobID       uuid.UUID     `json:"job_id"`
	Timestamp   time.Time     `json:"timestamp"`
	Kind        EventKind     `json:"kind"`
	Stage       Stage         `json:"stage,omitempty"`
	Counters    StageCounters `json:"counters"`
	ProgressPct int           `json:"progress_pct"`
	Message     string        `json:"message,omitempty"`
	PaperKey    string        `json:"paper_key,omitempty"`
	SkipReason  SkipReason    `json:"skip_reason,omitempty"`
	Error       string        `json:"error,omitempty"`
	// Status is set on terminal events only and carries the final job status.
	Status JobStatus `json:"status,omitempty"`
}

// IsTerminal returns true for the final event of a job's stream.
func (e ProgressEvent) IsTerminal() bool {
	return e.Kind == EventTerminal
}
