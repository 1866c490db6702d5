package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
	"github.com/spinalsurgery-research/acquisition-service/internal/observability"
	"github.com/spinalsurgery-research/acquisition-service/internal/pipeline"
	"github.com/spinalsurgery-research/acquisition-service/internal/registry"
)

const (
	maxRequestBodySize = 1 << 20
)

var validate = validator.New()

// submitJobRequest is the JSON body for submitting an acquisition job.
type submitJobRequest struct {
	Query          string   `json:"query" validate:"required,min=3,max=2000"`
	Sources        []string `json:"sources" validate:"required,min=1,dive,oneof=pubmed arxiv semantic_scholar"`
	TargetCount    int      `json:"target_count" validate:"required,gt=0,lte=500"`
	DownloadPDFs   bool     `json:"download_pdfs"`
	Translate      bool     `json:"translate"`
	TargetLanguage string   `json:"target_language" validate:"required_if=Translate true,omitempty,len=2"`
}

// cancelJobRequest optionally overrides the recorded cancel origin.
type cancelJobRequest struct {
	Origin string `json:"origin,omitempty"`
}

// submitJob handles POST /acquisition-jobs.
func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, projectID := observability.CallerFromContext(ctx)

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	var req submitJobRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	srcTypes := make([]domain.SourceType, len(req.Sources))
	for i, src := range req.Sources {
		srcTypes[i] = domain.SourceType(src)
	}

	job, err := s.manager.Submit(ctx, pipeline.SubmitRequest{
		ProjectID:      projectID,
		Query:          req.Query,
		Sources:        srcTypes,
		TargetCount:    req.TargetCount,
		DownloadPDFs:   req.DownloadPDFs,
		Translate:      req.Translate,
		TargetLanguage: req.TargetLanguage,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, submitJobResponse{
		JobID:     job.ID.String(),
		Status:    string(job.Status),
		CreatedAt: job.CreatedAt,
		Message:   "acquisition job accepted",
	})
}

// getJob handles GET /acquisition-jobs/{jobID}.
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseUUID(w, chi.URLParam(r, "jobID"), "job_id")
	if !ok {
		return
	}
	job, err := s.manager.Get(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainJobToResponse(job))
}

// listJobs handles GET /acquisition-jobs.
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	_, projectID := observability.CallerFromContext(ctx)

	filter := registry.JobFilter{ProjectID: projectID}
	filter.Limit, filter.Offset = parsePaginationParams(r)
	if statusParam := r.URL.Query().Get("status"); statusParam != "" {
		filter.Status = []domain.JobStatus{domain.JobStatus(statusParam)}
	}

	jobs, totalCount, err := s.manager.List(ctx, filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summaries := make([]jobResponse, len(jobs))
	for i, job := range jobs {
		summaries[i] = domainJobToResponse(job)
	}
	writeJSON(w, http.StatusOK, listJobsResponse{
		Jobs:       summaries,
		TotalCount: int(totalCount),
	})
}

// pauseJob handles POST /acquisition-jobs/{jobID}/pause.
func (s *Server) pauseJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseUUID(w, chi.URLParam(r, "jobID"), "job_id")
	if !ok {
		return
	}
	job, err := s.manager.Pause(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainJobToResponse(job))
}

// resumeJob handles POST /acquisition-jobs/{jobID}/resume.
func (s *Server) resumeJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := parseUUID(w, chi.URLParam(r, "jobID"), "job_id")
	if !ok {
		return
	}
	job, err := s.manager.Resume(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainJobToResponse(job))
}

// cancelJob handles POST /acquisition-jobs/{jobID}/cancel. The origin
// recorded with the cancellation comes from the request body when
// given, otherwise from the caller identity.
func (s *Server) cancelJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, _ := observability.CallerFromContext(ctx)

	jobID, ok := parseUUID(w, chi.URLParam(r, "jobID"), "job_id")
	if !ok {
		return
	}

	var req cancelJobRequest
	if r.Body != nil && r.ContentLength != 0 {
		defer r.Body.Close()
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
		if err == nil && len(body) > 0 {
			_ = json.Unmarshal(body, &req)
		}
	}
	origin := req.Origin
	if origin == "" {
		origin = caller
	}

	job, err := s.manager.Cancel(ctx, jobID, origin)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainJobToResponse(job))
}

// writeDomainError maps domain errors to HTTP status codes without
// leaking internals.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid job state for this operation")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrSourceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "source unavailable")
	case errors.Is(err, domain.ErrCancelled):
		writeError(w, http.StatusConflict, "operation cancelled")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// validationMessage flattens validator errors into one readable line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	parts := make([]string, len(verrs))
	for i, fe := range verrs {
		parts[i] = fmt.Sprintf("%s failed %s validation", strings.ToLower(fe.Field()), fe.Tag())
	}
	return strings.Join(parts, "; ")
}

// parseUUID parses a UUID path parameter, writing a 400 on failure.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}

// parsePaginationParams extracts limit and offset query parameters.
// Zero values defer to the registry's defaults.
func parsePaginationParams(r *http.Request) (limit, offset int) {
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			offset = parsed
		}
	}
	return limit, offset
}
