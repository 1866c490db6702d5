package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
	"github.com/spinalsurgery-research/acquisition-service/internal/observability"
	"github.com/spinalsurgery-research/acquisition-service/internal/progress"
	"github.com/spinalsurgery-research/acquisition-service/internal/registry"
	"github.com/spinalsurgery-research/acquisition-service/internal/sources"
	"github.com/spinalsurgery-research/acquisition-service/internal/storage"
)

const (
	// DefaultMaxConcurrentJobs caps jobs running in parallel per process.
	DefaultMaxConcurrentJobs = 2
	// DefaultMaxPagesPerSource caps search pagination per source per job.
	DefaultMaxPagesPerSource = 10
	// DefaultPageSize is the number of records requested per search page.
	DefaultPageSize = 25
	// DefaultMaxDownloads caps concurrent PDF downloads within one job.
	DefaultMaxDownloads = 4
)

// ManagerConfig tunes the orchestrator. Zero values take the defaults.
type ManagerConfig struct {
	MaxConcurrentJobs int
	MaxPagesPerSource int
	PageSize          int
	MaxDownloads      int
}

func (c *ManagerConfig) applyDefaults() {
	if c.MaxConcurrentJobs <= 0 {
		c.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if c.MaxPagesPerSource <= 0 {
		c.MaxPagesPerSource = DefaultMaxPagesPerSource
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.MaxDownloads <= 0 {
		c.MaxDownloads = DefaultMaxDownloads
	}
}

// SubmitRequest carries the parameters of a new acquisition job.
type SubmitRequest struct {
	ProjectID      string
	Query          string
	Sources        []domain.SourceType
	TargetCount    int
	DownloadPDFs   bool
	Translate      bool
	TargetLanguage string
}

// Validate rejects requests the orchestrator cannot run.
func (req *SubmitRequest) Validate() error {
	if strings.TrimSpace(req.Query) == "" {
		return domain.NewValidationError("query", "query must not be empty")
	}
	if len(req.Sources) == 0 {
		return domain.NewValidationError("sources", "at least one source is required")
	}
	for _, src := range req.Sources {
		if !domain.IsValidSourceType(src) {
			return domain.NewValidationError("sources", fmt.Sprintf("unknown source %q", src))
		}
	}
	if req.TargetCount <= 0 {
		return domain.NewValidationError("target_count", "target count must be positive")
	}
	if req.Translate && strings.TrimSpace(req.TargetLanguage) == "" {
		return domain.NewValidationError("target_language", "target language is required when translation is enabled")
	}
	return nil
}

// Manager owns the lifecycle of acquisition jobs: it admits new jobs
// against the global concurrency cap, relays pause, resume and cancel
// requests to the running worker, and reconciles jobs left running by
// a previous process at startup.
type Manager struct {
	cfg    ManagerConfig
	deps   runnerDeps
	logger zerolog.Logger

	slots *semaphore.Weighted

	mu     sync.Mutex
	active map[uuid.UUID]*jobRunner

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewManager wires the orchestrator. The sink may be nil when event
// publishing beyond the in-process bus is disabled.
func NewManager(
	cfg ManagerConfig,
	jobs registry.JobRegistry,
	store *storage.Store,
	srcs *sources.Registry,
	bus *progress.Bus,
	sink EventSink,
	downloader PDFDownloader,
	extractor TextExtractor,
	translator RecordTranslator,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Manager {
	cfg.applyDefaults()
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Manager{
		cfg: cfg,
		deps: runnerDeps{
			registry:          jobs,
			store:             store,
			sources:           srcs,
			bus:               bus,
			sink:              sink,
			downloader:        downloader,
			extractor:         extractor,
			translator:        translator,
			metrics:           metrics,
			logger:            logger,
			pageSize:          cfg.PageSize,
			maxPagesPerSource: cfg.MaxPagesPerSource,
			maxDownloads:      cfg.MaxDownloads,
		},
		logger:     logger.With().Str("component", "pipeline").Logger(),
		slots:      semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)),
		active:     make(map[uuid.UUID]*jobRunner),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
}

// Submit registers a new job and schedules it. The job is returned in
// pending state; it starts running as soon as a concurrency slot frees.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:          uuid.New(),
		ProjectID:   req.ProjectID,
		Query:       strings.TrimSpace(req.Query),
		Sources:     req.Sources,
		TargetCount: req.TargetCount,
		Options: domain.JobOptions{
			DownloadPDFs:   req.DownloadPDFs,
			Translate:      req.Translate,
			TargetLanguage: req.TargetLanguage,
		},
		Status:    domain.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	dir, err := m.deps.store.JobDir(job.ID)
	if err != nil {
		return nil, err
	}
	job.StorageRoot = dir

	if err := m.deps.registry.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := m.deps.store.WriteJobSnapshot(job); err != nil {
		return nil, err
	}
	m.deps.metrics.JobsSubmitted.Inc()

	m.launch(job)
	return job, nil
}

// launch schedules a runner for the job. The goroutine waits for a
// concurrency slot, so admitted jobs queue instead of failing.
func (m *Manager) launch(job *domain.Job) {
	runner := newJobRunner(job, m.deps)

	m.mu.Lock()
	m.active[job.ID] = runner
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.active, job.ID)
			m.mu.Unlock()
		}()

		// A queued job can be cancelled before a slot frees; it must
		// not wait for one to record its terminal state.
		acquired := make(chan error, 1)
		go func() { acquired <- m.slots.Acquire(m.baseCtx, 1) }()
		select {
		case err := <-acquired:
			if err != nil {
				return
			}
		case <-runner.gate.cancelledCh():
			go func() {
				if err := <-acquired; err == nil {
					m.slots.Release(1)
				}
			}()
			runner.finishCancelled(m.baseCtx)
			return
		}
		defer m.slots.Release(1)

		if runner.gate.isCancelled() {
			runner.finishCancelled(m.baseCtx)
			return
		}
		runner.Run(m.baseCtx)
	}()
}

// Get returns the current registry view of a job.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return m.deps.registry.Get(ctx, id)
}

// List proxies job enumeration to the registry.
func (m *Manager) List(ctx context.Context, filter registry.JobFilter) ([]*domain.Job, int64, error) {
	return m.deps.registry.List(ctx, filter)
}

// Pause suspends a running job at its next checkpoint. Pausing a
// terminal job is a no-op; pausing a pending job is rejected by the
// registry's transition rules.
func (m *Manager) Pause(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := m.deps.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() || job.Status == domain.JobStatusPaused {
		return job, nil
	}
	if err := m.deps.registry.UpdateStatus(ctx, id, domain.JobStatusPaused, ""); err != nil {
		return nil, err
	}
	if runner := m.runner(id); runner != nil {
		runner.gate.pause()
	}
	return m.snapshotAfterChange(ctx, id)
}

// Resume releases a paused job. A paused job whose runner died with the
// previous process is relaunched and picks up from its persisted index.
func (m *Manager) Resume(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := m.deps.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() || job.Status == domain.JobStatusRunning {
		return job, nil
	}
	if err := m.deps.registry.UpdateStatus(ctx, id, domain.JobStatusRunning, ""); err != nil {
		return nil, err
	}
	if runner := m.runner(id); runner != nil {
		runner.gate.resume()
	} else {
		job.Status = domain.JobStatusRunning
		m.launch(job)
	}
	return m.snapshotAfterChange(ctx, id)
}

// Cancel stops a job and records who asked. Cancelling a terminal job
// changes nothing and reports the job as is.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID, origin string) (*domain.Job, error) {
	job, err := m.deps.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return job, nil
	}
	if err := m.deps.registry.Cancel(ctx, id, origin); err != nil {
		return nil, err
	}
	if runner := m.runner(id); runner != nil {
		runner.gate.cancel()
		return m.deps.registry.Get(ctx, id)
	}

	// No live runner (a pending or paused job from a previous process):
	// the terminal record is written here instead.
	job, err = m.deps.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.deps.store.WriteJobSnapshot(job); err != nil {
		m.logger.Error().Err(err).Str("job_id", id.String()).Msg("writing cancel snapshot failed")
	}
	event := domain.ProgressEvent{
		JobID:       job.ID,
		Timestamp:   time.Now().UTC(),
		Kind:        domain.EventTerminal,
		Counters:    job.Counters,
		ProgressPct: job.ProgressPct,
		Status:      domain.JobStatusCancelled,
	}
	if err := m.deps.store.AppendEvent(job.ID, event); err != nil {
		m.logger.Error().Err(err).Str("job_id", id.String()).Msg("appending cancel event failed")
	}
	m.deps.bus.Publish(event)
	if m.deps.sink != nil {
		m.deps.sink.Publish(ctx, event)
	}
	return job, nil
}

// Reconcile relaunches jobs the registry still reports as running,
// typically after a crash. Each relaunched runner replays its index and
// resumes at the earliest unfinished stage. A job whose persisted state
// cannot be read is marked failed.
func (m *Manager) Reconcile(ctx context.Context) error {
	jobs, err := m.deps.registry.ListRunning(ctx)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if m.runner(job.ID) != nil {
			continue
		}
		if _, err := m.deps.store.ReadIndex(job.ID); err != nil {
			m.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("job state unreadable, marking failed")
			if uerr := m.deps.registry.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, err.Error()); uerr != nil {
				m.logger.Error().Err(uerr).Str("job_id", job.ID.String()).Msg("marking job failed failed")
			}
			continue
		}
		m.logger.Info().Str("job_id", job.ID.String()).Msg("reconciling interrupted job")
		m.launch(job)
	}
	return nil
}

// Shutdown stops accepting work and waits for running jobs to unwind.
// Jobs that do not finish before ctx expires stay running in the
// registry and are reconciled on the next start.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.baseCancel()
	m.mu.Lock()
	for _, runner := range m.active {
		runner.gate.stop()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveJobs reports how many runners currently exist, queued included.
func (m *Manager) ActiveJobs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Manager) runner(id uuid.UUID) *jobRunner {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[id]
}

func (m *Manager) snapshotAfterChange(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := m.deps.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.deps.store.WriteJobSnapshot(job); err != nil {
		m.logger.Error().Err(err).Str("job_id", id.String()).Msg("writing job snapshot failed")
	}
	return job, nil
}
