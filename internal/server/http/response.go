package httpserver

import (
	"time"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

// Job response types for JSON serialization.

type submitJobResponse struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Message   string    `json:"message"`
}

type jobResponse struct {
	JobID        string           `json:"job_id"`
	ProjectID    string           `json:"project_id"`
	Query        string           `json:"query"`
	Sources      []string         `json:"sources"`
	TargetCount  int              `json:"target_count"`
	Options      jobOptions       `json:"options"`
	Status       string           `json:"status"`
	ProgressPct  int              `json:"progress_pct"`
	Counters     countersResponse `json:"counters"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CancelOrigin string           `json:"cancel_origin,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	Duration     string           `json:"duration,omitempty"`
}

type jobOptions struct {
	DownloadPDFs   bool   `json:"download_pdfs"`
	Translate      bool   `json:"translate"`
	TargetLanguage string `json:"target_language,omitempty"`
}

type countersResponse struct {
	Found      int `json:"found"`
	Downloaded int `json:"downloaded"`
	Extracted  int `json:"extracted"`
	Translated int `json:"translated"`
}

type listJobsResponse struct {
	Jobs       []jobResponse `json:"jobs"`
	TotalCount int           `json:"total_count"`
}

type paperResponse struct {
	PaperKey     string            `json:"paper_key"`
	Source       string            `json:"source"`
	SourceID     string            `json:"source_id"`
	Title        string            `json:"title"`
	Authors      []string          `json:"authors,omitempty"`
	Abstract     string            `json:"abstract,omitempty"`
	Journal      string            `json:"journal,omitempty"`
	Year         int               `json:"year,omitempty"`
	DOI          string            `json:"doi,omitempty"`
	PMID         string            `json:"pmid,omitempty"`
	ArXivID      string            `json:"arxiv_id,omitempty"`
	PDFURL       string            `json:"pdf_url,omitempty"`
	SkipReason   string            `json:"skip_reason,omitempty"`
	Translations []string          `json:"translations,omitempty"`
	Artifacts    artifactsResponse `json:"artifacts"`
}

type artifactsResponse struct {
	PDF       bool     `json:"pdf"`
	Fulltext  bool     `json:"fulltext"`
	Summaries []string `json:"summaries,omitempty"`
}

type listPapersResponse struct {
	Papers     []paperResponse `json:"papers"`
	TotalCount int             `json:"total_count"`
}

// Converter functions

func domainJobToResponse(job *domain.Job) jobResponse {
	srcs := make([]string, len(job.Sources))
	for i, s := range job.Sources {
		srcs[i] = string(s)
	}
	resp := jobResponse{
		JobID:       job.ID.String(),
		ProjectID:   job.ProjectID,
		Query:       job.Query,
		Sources:     srcs,
		TargetCount: job.TargetCount,
		Options: jobOptions{
			DownloadPDFs:   job.Options.DownloadPDFs,
			Translate:      job.Options.Translate,
			TargetLanguage: job.Options.TargetLanguage,
		},
		Status:      string(job.Status),
		ProgressPct: job.ProgressPct,
		Counters: countersResponse{
			Found:      job.Counters.Found,
			Downloaded: job.Counters.Downloaded,
			Extracted:  job.Counters.Extracted,
			Translated: job.Counters.Translated,
		},
		ErrorMessage: job.ErrorMessage,
		CancelOrigin: job.CancelOrigin,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
	if d := job.Duration(); d > 0 {
		resp.Duration = d.Round(time.Millisecond).String()
	}
	return resp
}

func domainPaperToResponse(rec *domain.PaperRecord, artifacts artifactsResponse) paperResponse {
	resp := paperResponse{
		PaperKey:   rec.PaperKey(),
		Source:     string(rec.SourceTag),
		SourceID:   rec.SourceID,
		Title:      rec.Title,
		Authors:    rec.Authors,
		Abstract:   rec.Abstract,
		Journal:    rec.Journal,
		Year:       rec.Year,
		DOI:        rec.IDs.DOI,
		PMID:       rec.IDs.PMID,
		ArXivID:    rec.IDs.ArXivID,
		PDFURL:     rec.PDFURL,
		SkipReason: string(rec.Provenance.SkipReason),
		Artifacts:  artifacts,
	}
	for lang := range rec.Translation {
		resp.Translations = append(resp.Translations, lang)
	}
	return resp
}
