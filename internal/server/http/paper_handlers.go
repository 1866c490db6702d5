package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

// listPapers handles GET /acquisition-jobs/{jobID}/papers. Papers are
// returned in discovery order, as recorded in the job's index.
func (s *Server) listPapers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID, ok := parseUUID(w, chi.URLParam(r, "jobID"), "job_id")
	if !ok {
		return
	}
	job, err := s.manager.Get(ctx, jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	keys, err := s.store.ReadIndex(jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	papers := make([]paperResponse, 0, len(keys))
	for _, key := range keys {
		rec, err := s.store.ReadMetadata(jobID, key)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		papers = append(papers, domainPaperToResponse(rec, s.paperArtifacts(jobID, key, job)))
	}

	writeJSON(w, http.StatusOK, listPapersResponse{
		Papers:     papers,
		TotalCount: len(papers),
	})
}

// getPaper handles GET /acquisition-jobs/{jobID}/papers/{paperKey}.
func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID, ok := parseUUID(w, chi.URLParam(r, "jobID"), "job_id")
	if !ok {
		return
	}
	job, err := s.manager.Get(ctx, jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	paperKey := chi.URLParam(r, "paperKey")
	rec, err := s.store.ReadMetadata(jobID, paperKey)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainPaperToResponse(rec, s.paperArtifacts(jobID, paperKey, job)))
}

// getArtifact handles
// GET /acquisition-jobs/{jobID}/papers/{paperKey}/artifacts/{artifact}.
// Valid artifact names are metadata.json, source.pdf, fulltext.txt and
// summary.<lang>.txt; the store rejects everything else.
func (s *Server) getArtifact(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseUUID(w, chi.URLParam(r, "jobID"), "job_id")
	if !ok {
		return
	}
	if _, err := s.manager.Get(r.Context(), jobID); err != nil {
		writeDomainError(w, err)
		return
	}

	paperKey := chi.URLParam(r, "paperKey")
	artifact := chi.URLParam(r, "artifact")
	path, err := s.store.ArtifactPath(jobID, paperKey, artifact)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	switch {
	case artifact == "source.pdf":
		w.Header().Set("Content-Type", "application/pdf")
	case artifact == "metadata.json":
		w.Header().Set("Content-Type", "application/json")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	http.ServeFile(w, r, path)
}

// paperArtifacts reports which artifacts exist on disk for a paper.
func (s *Server) paperArtifacts(jobID uuid.UUID, paperKey string, job *domain.Job) artifactsResponse {
	ar := artifactsResponse{
		PDF:      s.store.HasPDF(jobID, paperKey),
		Fulltext: s.store.HasFulltext(jobID, paperKey),
	}
	if lang := job.Options.TargetLanguage; lang != "" && s.store.HasSummary(jobID, paperKey, lang) {
		ar.Summaries = append(ar.Summaries, lang)
	}
	return ar
}
