// Package storage owns the on-disk artifact tree for acquisition jobs.
//
// Every job exclusively owns <root>/<job_id>/ with this layout:
//
//	<root>/<job_id>/
//	  job.json                  # job snapshot
//	  papers/<paper_key>/
//	    metadata.json           # PaperRecord plus translations
//	    source.pdf              # present iff a PDF was fetched
//	    fulltext.txt            # present iff extraction succeeded
//	    summary.<lang>.txt      # present iff translated
//	  index.json                # paper keys in insertion order
//	  events.log                # append-only progress events, JSON per line
//
// All writes go through this package. Files are written to a temp file
// in the target directory and renamed into place, so readers never see
// a partial file. No path outside the root is ever written.
package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

const (
	jobFileName    = "job.json"
	indexFileName  = "index.json"
	eventsFileName = "events.log"
	papersDirName  = "papers"

	// MetadataFileName is the per-paper record file.
	MetadataFileName = "metadata.json"
	// PDFFileName is the per-paper source document.
	PDFFileName = "source.pdf"
	// FulltextFileName is the per-paper extracted text.
	FulltextFileName = "fulltext.txt"

	dirPerm  = 0o755
	filePerm = 0o644
)

// Store provides confined filesystem access beneath one storage root.
type Store struct {
	root   string
	logger zerolog.Logger
}

// NewStore creates a Store rooted at root, creating the directory if
// needed. The root is resolved to an absolute path once so later
// confinement checks are cheap string comparisons.
func NewStore(root string, logger zerolog.Logger) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving storage root: %v", domain.ErrStorage, err)
	}
	if err := os.MkdirAll(abs, dirPerm); err != nil {
		return nil, fmt.Errorf("%w: creating storage root: %v", domain.ErrStorage, err)
	}
	return &Store{
		root:   abs,
		logger: logger.With().Str("component", "storage").Logger(),
	}, nil
}

// Root returns the absolute storage root.
func (s *Store) Root() string {
	return s.root
}

// JobDir returns the directory owned by a job, creating it if needed.
func (s *Store) JobDir(jobID uuid.UUID) (string, error) {
	dir := filepath.Join(s.root, jobID.String())
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("%w: creating job dir: %v", domain.ErrStorage, err)
	}
	return dir, nil
}

// PaperDir returns the directory for one paper, creating it if needed.
// The paper key must already be filesystem-safe; anything containing a
// path separator or dot-dot is rejected outright.
func (s *Store) PaperDir(jobID uuid.UUID, paperKey string) (string, error) {
	if err := validatePaperKey(paperKey); err != nil {
		return "", err
	}
	dir := filepath.Join(s.root, jobID.String(), papersDirName, paperKey)
	if !strings.HasPrefix(dir, filepath.Join(s.root, jobID.String())+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: paper key %q escapes job dir", domain.ErrStorage, paperKey)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("%w: creating paper dir: %v", domain.ErrStorage, err)
	}
	return dir, nil
}

// validatePaperKey rejects keys that could traverse outside the papers
// directory.
func validatePaperKey(paperKey string) error {
	if paperKey == "" || paperKey == "." || paperKey == ".." ||
		strings.ContainsAny(paperKey, `/\`) {
		return fmt.Errorf("%w: invalid paper key %q", domain.ErrStorage, paperKey)
	}
	return nil
}

// WriteJobSnapshot atomically persists the job snapshot.
func (s *Store) WriteJobSnapshot(job *domain.Job) error {
	dir, err := s.JobDir(job.ID)
	if err != nil {
		return err
	}
	return s.atomicWriteJSON(filepath.Join(dir, jobFileName), jobSnapshot(job))
}

// WriteMetadata atomically persists a paper's metadata.json.
func (s *Store) WriteMetadata(jobID uuid.UUID, record *domain.PaperRecord) error {
	dir, err := s.PaperDir(jobID, record.PaperKey())
	if err != nil {
		return err
	}
	return s.atomicWriteJSON(filepath.Join(dir, MetadataFileName), record)
}

// ReadMetadata loads a paper's metadata.json.
func (s *Store) ReadMetadata(jobID uuid.UUID, paperKey string) (*domain.PaperRecord, error) {
	if err := validatePaperKey(paperKey); err != nil {
		return nil, err
	}
	path := filepath.Join(s.root, jobID.String(), papersDirName, paperKey, MetadataFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewNotFoundError("paper", paperKey)
		}
		return nil, fmt.Errorf("%w: reading metadata: %v", domain.ErrStorage, err)
	}
	var record domain.PaperRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: parsing metadata for %s: %v", domain.ErrCheckpointCorrupt, paperKey, err)
	}
	return &record, nil
}

// WritePDF streams PDF bytes into source.pdf via a temp file, returning
// the number of bytes written.
func (s *Store) WritePDF(jobID uuid.UUID, paperKey string, r io.Reader) (int64, error) {
	dir, err := s.PaperDir(jobID, paperKey)
	if err != nil {
		return 0, err
	}
	return s.atomicWriteStream(filepath.Join(dir, PDFFileName), r)
}

// WriteFulltext atomically persists extracted text.
func (s *Store) WriteFulltext(jobID uuid.UUID, paperKey, text string) error {
	dir, err := s.PaperDir(jobID, paperKey)
	if err != nil {
		return err
	}
	_, err = s.atomicWriteStream(filepath.Join(dir, FulltextFileName), strings.NewReader(text))
	return err
}

// ReadFulltext loads the extracted text for a paper.
func (s *Store) ReadFulltext(jobID uuid.UUID, paperKey string) (string, error) {
	if err := validatePaperKey(paperKey); err != nil {
		return "", err
	}
	path := filepath.Join(s.root, jobID.String(), papersDirName, paperKey, FulltextFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", domain.NewNotFoundError("fulltext", paperKey)
		}
		return "", fmt.Errorf("%w: reading fulltext: %v", domain.ErrStorage, err)
	}
	return string(data), nil
}

// WriteSummary atomically persists the translated summary for one
// language as summary.<lang>.txt.
func (s *Store) WriteSummary(jobID uuid.UUID, paperKey, lang, content string) error {
	dir, err := s.PaperDir(jobID, paperKey)
	if err != nil {
		return err
	}
	_, err = s.atomicWriteStream(filepath.Join(dir, SummaryFileName(lang)), strings.NewReader(content))
	return err
}

// SummaryFileName returns the per-language summary file name.
func SummaryFileName(lang string) string {
	return "summary." + lang + ".txt"
}

// ArtifactPath resolves a named artifact of a paper, confirming it
// exists. Used by the HTTP layer to serve files.
func (s *Store) ArtifactPath(jobID uuid.UUID, paperKey, name string) (string, error) {
	if err := validatePaperKey(paperKey); err != nil {
		return "", err
	}
	switch {
	case name == MetadataFileName, name == PDFFileName, name == FulltextFileName:
	case strings.HasPrefix(name, "summary.") && strings.HasSuffix(name, ".txt") && !strings.ContainsAny(name, `/\`):
	default:
		return "", domain.NewNotFoundError("artifact", name)
	}
	path := filepath.Join(s.root, jobID.String(), papersDirName, paperKey, name)
	if _, err := os.Stat(path); err != nil {
		return "", domain.NewNotFoundError("artifact", name)
	}
	return path, nil
}

// HasPDF reports whether source.pdf exists for the paper.
func (s *Store) HasPDF(jobID uuid.UUID, paperKey string) bool {
	return s.hasArtifact(jobID, paperKey, PDFFileName)
}

// HasFulltext reports whether fulltext.txt exists for the paper.
func (s *Store) HasFulltext(jobID uuid.UUID, paperKey string) bool {
	return s.hasArtifact(jobID, paperKey, FulltextFileName)
}

// HasSummary reports whether summary.<lang>.txt exists for the paper.
func (s *Store) HasSummary(jobID uuid.UUID, paperKey, lang string) bool {
	return s.hasArtifact(jobID, paperKey, SummaryFileName(lang))
}

func (s *Store) hasArtifact(jobID uuid.UUID, paperKey, name string) bool {
	if validatePaperKey(paperKey) != nil {
		return false
	}
	_, err := os.Stat(filepath.Join(s.root, jobID.String(), papersDirName, paperKey, name))
	return err == nil
}

// PDFPath returns the path PDF bytes live at for a paper. The file may
// not exist yet.
func (s *Store) PDFPath(jobID uuid.UUID, paperKey string) (string, error) {
	if err := validatePaperKey(paperKey); err != nil {
		return "", err
	}
	return filepath.Join(s.root, jobID.String(), papersDirName, paperKey, PDFFileName), nil
}

// AppendIndex adds a paper key to index.json if not already present.
// The index preserves insertion order; resumption relies on it instead
// of directory enumeration order.
func (s *Store) AppendIndex(jobID uuid.UUID, paperKey string) error {
	if err := validatePaperKey(paperKey); err != nil {
		return err
	}
	keys, err := s.ReadIndex(jobID)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k == paperKey {
			return nil
		}
	}
	keys = append(keys, paperKey)

	dir, err := s.JobDir(jobID)
	if err != nil {
		return err
	}
	return s.atomicWriteJSON(filepath.Join(dir, indexFileName), keys)
}

// ReadIndex returns the paper keys of a job in insertion order.
// A missing index is an empty job, not an error.
func (s *Store) ReadIndex(jobID uuid.UUID) ([]string, error) {
	path := filepath.Join(s.root, jobID.String(), indexFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading index: %v", domain.ErrStorage, err)
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("%w: parsing index: %v", domain.ErrCheckpointCorrupt, err)
	}
	return keys, nil
}

// AppendEvent appends one progress event to events.log as a JSON line.
func (s *Store) AppendEvent(jobID uuid.UUID, event domain.ProgressEvent) error {
	dir, err := s.JobDir(jobID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: encoding event: %v", domain.ErrStorage, err)
	}

	f, err := os.OpenFile(filepath.Join(dir, eventsFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return fmt.Errorf("%w: opening events log: %v", domain.ErrStorage, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("%w: appending event: %v", domain.ErrStorage, err)
	}
	return nil
}

// ReadEvents replays the events.log of a job in append order.
// Unparseable lines are skipped with a warning; a torn final line from
// a crashed writer must not poison replay.
func (s *Store) ReadEvents(jobID uuid.UUID) ([]domain.ProgressEvent, error) {
	path := filepath.Join(s.root, jobID.String(), eventsFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: reading events log: %v", domain.ErrStorage, err)
	}

	var events []domain.ProgressEvent
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var event domain.ProgressEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			s.logger.Warn().Str("job_id", jobID.String()).Err(err).Msg("skipping malformed event log line")
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// atomicWriteJSON marshals v with indentation and writes it atomically.
func (s *Store) atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", domain.ErrStorage, filepath.Base(path), err)
	}
	_, err = s.atomicWriteStream(path, strings.NewReader(string(data)))
	return err
}

// atomicWriteStream copies r into a temp file next to path and renames
// it into place.
func (s *Store) atomicWriteStream(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("%w: creating temp file: %v", domain.ErrStorage, err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, fmt.Errorf("%w: writing %s: %v", domain.ErrStorage, filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("%w: closing temp file: %v", domain.ErrStorage, err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("%w: setting permissions: %v", domain.ErrStorage, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("%w: renaming into place: %v", domain.ErrStorage, err)
	}
	return n, nil
}

// JobSnapshot is the serialized form of job.json.
type JobSnapshot struct {
	ID           uuid.UUID            `json:"job_id"`
	ProjectID    string               `json:"project_id"`
	Query        string               `json:"query"`
	Sources      []domain.SourceType  `json:"sources"`
	TargetCount  int                  `json:"target_count"`
	Options      domain.JobOptions    `json:"options"`
	Status       domain.JobStatus     `json:"status"`
	ProgressPct  int                  `json:"progress_pct"`
	Counters     domain.StageCounters `json:"counters"`
	ErrorMessage string               `json:"error,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// jobSnapshot builds the serializable view of a job.
func jobSnapshot(job *domain.Job) JobSnapshot {
	return JobSnapshot{
		ID:           job.ID,
		ProjectID:    job.ProjectID,
		Query:        job.Query,
		Sources:      job.Sources,
		TargetCount:  job.TargetCount,
		Options:      job.Options,
		Status:       job.Status,
		ProgressPct:  job.ProgressPct,
		Counters:     job.Counters,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}

// ReadJobSnapshot loads job.json for a job.
func (s *Store) ReadJobSnapshot(jobID uuid.UUID) (*JobSnapshot, error) {
	path := filepath.Join(s.root, jobID.String(), jobFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.NewNotFoundError("job snapshot", jobID.String())
		}
		return nil, fmt.Errorf("%w: reading job snapshot: %v", domain.ErrStorage, err)
	}
	var snap JobSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: parsing job snapshot: %v", domain.ErrCheckpointCorrupt, err)
	}
	return &snap, nil
}
