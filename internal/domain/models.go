// Package domain provides the core data model for the literature acquisition pipeline.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle states of an acquisition job.
// These values must match the database enum job_status.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// SourceType represents the academic source API that provided paper data.
type SourceType string

const (
	SourceTypePubMed          SourceType = "pubmed"
	SourceTypeArXiv           SourceType = "arxiv"
	SourceTypeSemanticScholar SourceType = "semantic_scholar"
)

// IsValidSourceType returns true for source types the pipeline knows how to query.
func IsValidSourceType(s SourceType) bool {
	switch s {
	case SourceTypePubMed, SourceTypeArXiv, SourceTypeSemanticScholar:
		return true
	default:
		return false
	}
}

// Stage identifies one of the pipeline stages a job moves through.
type Stage string

const (
	StageSearch    Stage = "search"
	StageDownload  Stage = "download"
	StageExtract   Stage = "extract"
	StageTranslate Stage = "translate"
)

// SkipReason records why a per-paper operation was not completed.
// Skips are never fatal to the owning job.
type SkipReason string

const (
	SkipNoURL         SkipReason = "no_url"
	SkipNotPDF        SkipReason = "not_pdf"
	SkipForbidden     SkipReason = "forbidden"
	SkipNotFound      SkipReason = "not_found"
	SkipExceededRetry SkipReason = "exceeded_retry"
)

// JobOptions holds the per-job feature toggles supplied at submission.
type JobOptions struct {
	// DownloadPDFs enables the download and extract stages.
	DownloadPDFs bool `json:"download_pdfs"`
	// Translate enables the translate stage.
	Translate bool `json:"translate"`
	// TargetLanguage is the ISO 639-1 code translations are produced in.
	// Required when Translate is true.
	TargetLanguage string `json:"target_language,omitempty"`
}

// StageCounters tracks per-stage completion counts for a job.
type StageCounters struct {
	Found      int `json:"found"`
	Downloaded int `json:"downloaded"`
	Extracted  int `json:"extracted"`
	Translated int `json:"translated"`
}

// Job represents one submitted acquisition request tracked through the
// pending -> running -> {paused <-> running} -> terminal state machine.
type Job struct {
	ID           uuid.UUID
	ProjectID    string
	Query        string
	Sources      []SourceType
	TargetCount  int
	Options      JobOptions
	Status       JobStatus
	ProgressPct  int
	Counters     StageCounters
	ErrorMessage string
	// CancelOrigin records the identity of the caller that cancelled the job.
	CancelOrigin string
	StorageRoot  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// Duration returns the elapsed wall time of the job, or 0 if it never started.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	return end.Sub(*j.StartedAt)
}

// EnabledStages returns the stages this job will run, in order.
// Search is always enabled; download and extract require DownloadPDFs,
// translate requires Translate.
func (j *Job) EnabledStages() []Stage {
	stages := []Stage{StageSearch}
	if j.Options.DownloadPDFs {
		stages = append(stages, StageDownload, StageExtract)
	}
	if j.Options.Translate {
		stages = append(stages, StageTranslate)
	}
	return stages
}
