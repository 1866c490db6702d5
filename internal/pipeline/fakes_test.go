package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
	"github.com/spinalsurgery-research/acquisition-service/internal/extract"
	"github.com/spinalsurgery-research/acquisition-service/internal/observability"
	"github.com/spinalsurgery-research/acquisition-service/internal/pdf"
	"github.com/spinalsurgery-research/acquisition-service/internal/progress"
	"github.com/spinalsurgery-research/acquisition-service/internal/registry"
	"github.com/spinalsurgery-research/acquisition-service/internal/sources"
	"github.com/spinalsurgery-research/acquisition-service/internal/storage"
)

// fakeRegistry is an in-memory JobRegistry for orchestrator tests. It
// keeps the same transition discipline as the PostgreSQL implementation
// but without any SQL.
type fakeRegistry struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job
}

var _ registry.JobRegistry = (*fakeRegistry)(nil)

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{jobs: make(map[uuid.UUID]*domain.Job)}
}

func cloneJob(job *domain.Job) *domain.Job {
	c := *job
	c.Sources = append([]domain.SourceType(nil), job.Sources...)
	if job.StartedAt != nil {
		t := *job.StartedAt
		c.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func (f *fakeRegistry) Create(_ context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = cloneJob(job)
	return nil
}

func (f *fakeRegistry) Get(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.NewNotFoundError("job", id.String())
	}
	return cloneJob(job), nil
}

func (f *fakeRegistry) List(_ context.Context, _ registry.JobFilter) ([]*domain.Job, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Job, 0, len(f.jobs))
	for _, job := range f.jobs {
		out = append(out, cloneJob(job))
	}
	return out, int64(len(out)), nil
}

func (f *fakeRegistry) UpdateStatus(_ context.Context, id uuid.UUID, status domain.JobStatus, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.NewNotFoundError("job", id.String())
	}
	if job.Status.IsTerminal() {
		return domain.NewInvalidTransitionError(id.String(), job.Status, status)
	}
	now := time.Now().UTC()
	job.Status = status
	job.UpdatedAt = now
	if errMsg != "" {
		job.ErrorMessage = errMsg
	}
	if status == domain.JobStatusRunning && job.StartedAt == nil {
		job.StartedAt = &now
	}
	if status.IsTerminal() {
		job.CompletedAt = &now
	}
	return nil
}

func (f *fakeRegistry) Cancel(_ context.Context, id uuid.UUID, origin string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.NewNotFoundError("job", id.String())
	}
	if job.Status.IsTerminal() {
		return nil
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusCancelled
	job.CancelOrigin = origin
	job.UpdatedAt = now
	job.CompletedAt = &now
	return nil
}

func (f *fakeRegistry) RecordProgress(_ context.Context, id uuid.UUID, pct int, counters domain.StageCounters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.NewNotFoundError("job", id.String())
	}
	if job.Status != domain.JobStatusRunning && job.Status != domain.JobStatusPaused {
		return nil
	}
	if pct > job.ProgressPct {
		job.ProgressPct = pct
	}
	job.Counters = counters
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeRegistry) ListRunning(_ context.Context) ([]*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Job
	for _, job := range f.jobs {
		if job.Status == domain.JobStatusRunning {
			out = append(out, cloneJob(job))
		}
	}
	return out, nil
}

// seed inserts a job directly, bypassing Submit, for resume tests.
func (f *fakeRegistry) seed(job *domain.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = cloneJob(job)
}

// fakeAdapter serves pre-built result pages for one source. When block
// is set, every Search call parks until the channel is closed or the
// context ends, which lets tests hold a concurrency slot open.
type fakeAdapter struct {
	source  domain.SourceType
	name    string
	pages   []*sources.SearchPage
	err     error
	pageErr map[int]error
	block   chan struct{}
	mu      sync.Mutex
	nextIdx int
	calls   int
}

var _ sources.Adapter = (*fakeAdapter)(nil)

func (a *fakeAdapter) Search(ctx context.Context, _ sources.SearchQuery) (*sources.SearchPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	if err := a.pageErr[a.calls-1]; err != nil {
		return nil, err
	}
	if a.nextIdx >= len(a.pages) {
		return &sources.SearchPage{Source: a.source}, nil
	}
	page := a.pages[a.nextIdx]
	a.nextIdx++
	return page, nil
}

func (a *fakeAdapter) SourceType() domain.SourceType { return a.source }
func (a *fakeAdapter) Name() string                  { return a.name }
func (a *fakeAdapter) IsEnabled() bool               { return true }

// singlePageAdapter wraps records into one exhausted page.
func singlePageAdapter(source domain.SourceType, name string, records ...*domain.PaperRecord) *fakeAdapter {
	return &fakeAdapter{
		source: source,
		name:   name,
		pages: []*sources.SearchPage{{
			Papers:       records,
			TotalResults: len(records),
			Source:       source,
		}},
	}
}

// fakeDownloader serves canned PDF bytes, optionally blocking each call
// until released so tests can interleave cancel and pause requests.
type fakeDownloader struct {
	mu      sync.Mutex
	errs    map[string]error
	calls   []string
	started chan string
	release chan struct{}
}

var _ PDFDownloader = (*fakeDownloader)(nil)

func (d *fakeDownloader) Download(ctx context.Context, url string) (*pdf.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.calls = append(d.calls, url)
	err := d.errs[url]
	d.mu.Unlock()

	if d.started != nil {
		select {
		case d.started <- url:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		select {
		case <-d.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	content := []byte("%PDF-1.4 fake body for " + url)
	sum := sha256.Sum256(content)
	return &pdf.Result{
		Content:   content,
		SHA256:    hex.EncodeToString(sum[:]),
		SizeBytes: int64(len(content)),
	}, nil
}

func (d *fakeDownloader) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// fakeExtractor returns a fixed body per call and records the paths.
type fakeExtractor struct {
	mu    sync.Mutex
	err   error
	paths []string
}

var _ TextExtractor = (*fakeExtractor)(nil)

func (e *fakeExtractor) Extract(ctx context.Context, pdfPath string) (*extract.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.paths = append(e.paths, pdfPath)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return &extract.Result{
		FullText: "Abstract\nPosterior fixation improved fusion rates.\n\nMethods\nRetrospective cohort.",
		Sections: map[string]string{
			"abstract": "Posterior fixation improved fusion rates.",
			"methods":  "Retrospective cohort.",
		},
		Pages: 4,
	}, nil
}

func (e *fakeExtractor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.paths)
}

// fakeTranslator fails for listed paper keys and succeeds otherwise.
type fakeTranslator struct {
	mu      sync.Mutex
	failFor map[string]error
	calls   []string
}

var _ RecordTranslator = (*fakeTranslator)(nil)

func (t *fakeTranslator) TranslateRecord(ctx context.Context, record *domain.PaperRecord, sectionDigest, targetLang string) (*domain.Translation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := record.PaperKey()
	t.mu.Lock()
	t.calls = append(t.calls, key)
	err := t.failFor[key]
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &domain.Translation{
		Title:        "[" + targetLang + "] " + record.Title,
		Abstract:     "[" + targetLang + "] " + record.Abstract,
		Sections:     "[" + targetLang + "] " + sectionDigest,
		TranslatedAt: time.Now().UTC(),
	}, nil
}

// testEnv bundles a fully wired manager backed by fakes and a real
// on-disk store.
type testEnv struct {
	manager    *Manager
	registry   *fakeRegistry
	store      *storage.Store
	bus        *progress.Bus
	downloader *fakeDownloader
	extractor  *fakeExtractor
	translator *fakeTranslator
}

func newTestEnv(t *testing.T, cfg ManagerConfig, adapters ...sources.Adapter) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	store, err := storage.NewStore(t.TempDir(), logger)
	require.NoError(t, err)

	srcs := sources.NewRegistry()
	for _, a := range adapters {
		srcs.Register(a)
	}

	env := &testEnv{
		registry:   newFakeRegistry(),
		store:      store,
		bus:        progress.NewBus(progress.DefaultQueueSize, logger),
		downloader: &fakeDownloader{},
		extractor:  &fakeExtractor{},
		translator: &fakeTranslator{},
	}
	metrics := observability.NewMetricsWithRegistry("litpipe", prometheus.NewRegistry())
	env.manager = NewManager(cfg, env.registry, store, srcs, env.bus, nil,
		env.downloader, env.extractor, env.translator, metrics, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.manager.Shutdown(ctx)
	})
	return env
}

// waitForStatus polls the registry until the job reaches the wanted
// status or the test times out.
func (env *testEnv) waitForStatus(t *testing.T, id uuid.UUID, want domain.JobStatus) *domain.Job {
	t.Helper()
	var job *domain.Job
	require.Eventually(t, func() bool {
		j, err := env.registry.Get(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status == want
	}, 5*time.Second, 10*time.Millisecond, "job never reached status %s", want)
	return job
}

func (env *testEnv) events(t *testing.T, id uuid.UUID) []domain.ProgressEvent {
	t.Helper()
	events, err := env.store.ReadEvents(id)
	require.NoError(t, err)
	return events
}

func eventsOfKind(events []domain.ProgressEvent, kind domain.EventKind) []domain.ProgressEvent {
	var out []domain.ProgressEvent
	for _, e := range events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// spinePaper builds a PubMed-style record for tests.
func spinePaper(pmid, title, pdfURL string) *domain.PaperRecord {
	rec, err := domain.NewPaperRecord(domain.SourceTypePubMed, pmid, title)
	if err != nil {
		panic(fmt.Sprintf("building test record: %v", err))
	}
	rec.IDs.PMID = pmid
	rec.Abstract = "Background and outcomes for " + title
	rec.PDFURL = pdfURL
	rec.Year = 2024
	rec.Journal = "Eur Spine J"
	return rec
}
