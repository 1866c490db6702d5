// Package pipeline orchestrates acquisition jobs end to end: searching
// the configured academic sources, deduplicating results, downloading
// PDFs, extracting text and translating records, while persisting every
// artifact and progress event so an interrupted job can resume.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/spinalsurgery-research/acquisition-service/internal/dedup"
	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
	"github.com/spinalsurgery-research/acquisition-service/internal/extract"
	"github.com/spinalsurgery-research/acquisition-service/internal/observability"
	"github.com/spinalsurgery-research/acquisition-service/internal/pdf"
	"github.com/spinalsurgery-research/acquisition-service/internal/progress"
	"github.com/spinalsurgery-research/acquisition-service/internal/registry"
	"github.com/spinalsurgery-research/acquisition-service/internal/sources"
	"github.com/spinalsurgery-research/acquisition-service/internal/storage"
	"github.com/spinalsurgery-research/acquisition-service/internal/translate"
)

// PDFDownloader fetches one PDF by URL.
type PDFDownloader interface {
	Download(ctx context.Context, url string) (*pdf.Result, error)
}

// TextExtractor pulls full text and sections out of a stored PDF.
type TextExtractor interface {
	Extract(ctx context.Context, pdfPath string) (*extract.Result, error)
}

// RecordTranslator produces the translated fields for one record.
type RecordTranslator interface {
	TranslateRecord(ctx context.Context, record *domain.PaperRecord, sectionDigest, targetLang string) (*domain.Translation, error)
}

// EventSink receives every progress event in addition to the in-process
// bus, typically for publishing to Kafka. Sink failures never affect
// the job; events.log is the durable record.
type EventSink interface {
	Publish(ctx context.Context, event domain.ProgressEvent)
}

// runnerDeps bundles everything a job runner needs. The manager fills
// it once and shares it across runners.
type runnerDeps struct {
	registry   registry.JobRegistry
	store      *storage.Store
	sources    *sources.Registry
	bus        *progress.Bus
	sink       EventSink
	downloader PDFDownloader
	extractor  TextExtractor
	translator RecordTranslator
	metrics    *observability.Metrics
	logger     zerolog.Logger

	pageSize          int
	maxPagesPerSource int
	maxDownloads      int
}

// jobRunner drives a single job through its enabled stages.
type jobRunner struct {
	job     *domain.Job
	deps    runnerDeps
	gate    *gate
	tracker *progressTracker
	logger  zerolog.Logger

	// mu guards counters and byKey, and serializes event emission so
	// events.log and the bus see one ordered stream per job.
	mu       sync.Mutex
	counters domain.StageCounters
	byKey    map[string]*domain.PaperRecord
}

func newJobRunner(job *domain.Job, deps runnerDeps) *jobRunner {
	return &jobRunner{
		job:     job,
		deps:    deps,
		gate:    newGate(),
		tracker: newProgressTracker(job.EnabledStages()),
		logger:  deps.logger.With().Str("job_id", job.ID.String()).Logger(),
		byKey:   make(map[string]*domain.PaperRecord),
	}
}

// Run executes the job and records its terminal state. It never panics
// the caller; all failures end in a terminal status and event.
func (r *jobRunner) Run(ctx context.Context) {
	err := r.run(ctx)
	switch {
	case err == nil:
		r.finish(ctx, domain.JobStatusCompleted, "")
	case errors.Is(err, domain.ErrCancelled):
		r.finishCancelled(ctx)
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Process shutdown. The job stays running in the registry and
		// is reconciled on the next start.
		r.logger.Info().Msg("job interrupted by shutdown, will resume on restart")
	default:
		r.logger.Error().Err(err).Msg("job failed")
		r.finish(ctx, domain.JobStatusFailed, err.Error())
	}
}

func (r *jobRunner) run(ctx context.Context) error {
	if err := r.start(ctx); err != nil {
		return err
	}

	deduper := dedup.New()
	existing, err := r.loadExisting(ctx, deduper)
	if err != nil {
		return err
	}

	if err := r.searchStage(ctx, deduper, len(existing)); err != nil {
		return err
	}
	records := deduper.Records()

	if r.job.Options.DownloadPDFs {
		if err := r.downloadStage(ctx, records); err != nil {
			return err
		}
		if err := r.extractStage(ctx, records); err != nil {
			return err
		}
	}
	if r.job.Options.Translate {
		if err := r.translateStage(ctx, records); err != nil {
			return err
		}
	}
	return nil
}

// start moves a pending job to running and refreshes the local copy so
// timestamps set by the registry are reflected in snapshots.
func (r *jobRunner) start(ctx context.Context) error {
	if r.job.Status == domain.JobStatusPending {
		if err := r.deps.registry.UpdateStatus(ctx, r.job.ID, domain.JobStatusRunning, ""); err != nil {
			return err
		}
	}
	job, err := r.deps.registry.Get(ctx, r.job.ID)
	if err != nil {
		return err
	}
	r.job = job
	return r.deps.store.WriteJobSnapshot(job)
}

// loadExisting replays the job's index so resumed jobs pick up where
// they stopped. Every indexed record is fed back into the deduper and
// reflected in the counters; papers with artifacts already on disk are
// not re-processed by later stages.
func (r *jobRunner) loadExisting(ctx context.Context, deduper *dedup.Deduper) ([]*domain.PaperRecord, error) {
	keys, err := r.deps.store.ReadIndex(r.job.ID)
	if err != nil {
		return nil, err
	}
	records := make([]*domain.PaperRecord, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.deps.store.ReadMetadata(r.job.ID, key)
		if err != nil {
			return nil, err
		}
		// The index names the directory the artifacts live in; pin the
		// record there regardless of what its identifiers derive to.
		rec.Key = key
		deduper.Add(rec)
		records = append(records, rec)
		r.byKey[key] = rec
		r.counters.Found++
		if rec.Provenance.DownloadedAt != nil || r.deps.store.HasPDF(r.job.ID, key) {
			r.counters.Downloaded++
		}
		if r.deps.store.HasFulltext(r.job.ID, key) {
			r.counters.Extracted++
		}
		if _, ok := rec.Translation[r.job.Options.TargetLanguage]; ok {
			r.counters.Translated++
		}
	}
	if len(records) > 0 {
		r.logger.Info().Int("papers", len(records)).Msg("resuming from persisted index")
		r.tracker.Update(domain.StageSearch, len(records), r.job.TargetCount)
	}
	return records, nil
}

// searchStage pages through every resolved source concurrently until
// the target count of unique papers is reached, all sources are
// exhausted, or the per-source page cap is hit. Each unique insert is
// persisted and announced before the next page is requested.
func (r *jobRunner) searchStage(ctx context.Context, deduper *dedup.Deduper, preloaded int) error {
	if preloaded >= r.job.TargetCount {
		r.tracker.Complete(domain.StageSearch)
		return nil
	}
	defer r.observeStage(domain.StageSearch, time.Now())
	if err := r.emit(ctx, domain.ProgressEvent{
		Kind:    domain.EventStageStarted,
		Stage:   domain.StageSearch,
		Message: fmt.Sprintf("searching %d sources", len(r.job.Sources)),
	}); err != nil {
		return err
	}

	adapters, unavailable := r.deps.sources.Resolve(r.job.Sources)
	for _, src := range unavailable {
		if err := r.emit(ctx, domain.ProgressEvent{
			Kind:    domain.EventWarning,
			Stage:   domain.StageSearch,
			Message: fmt.Sprintf("source %s is unavailable and was skipped", src),
		}); err != nil {
			return err
		}
	}
	if len(adapters) == 0 {
		return fmt.Errorf("%w: none of the requested sources are available", domain.ErrSourceUnavailable)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, adapter := range adapters {
		g.Go(func() error {
			return r.searchSource(gctx, adapter, deduper)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.tracker.Complete(domain.StageSearch)
	return r.emit(ctx, domain.ProgressEvent{
		Kind:    domain.EventStageCompleted,
		Stage:   domain.StageSearch,
		Message: fmt.Sprintf("found %d unique papers", r.foundCount()),
	})
}

func (r *jobRunner) searchSource(ctx context.Context, adapter sources.Adapter, deduper *dedup.Deduper) error {
	offset := 0
	warned := false
	for page := 0; page < r.deps.maxPagesPerSource; page++ {
		if err := r.gate.checkpoint(ctx); err != nil {
			return err
		}
		if r.foundCount() >= r.job.TargetCount {
			return nil
		}
		r.deps.metrics.SourceRequestsTotal.WithLabelValues(adapter.Name()).Inc()
		sp, err := adapter.Search(ctx, sources.SearchQuery{
			Query:      r.job.Query,
			MaxResults: r.deps.pageSize,
			Offset:     offset,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.deps.metrics.SourceRequestsFailed.WithLabelValues(adapter.Name()).Inc()
			// A failed page is skipped, not fatal: pagination moves on
			// to the next one. The degraded source costs one warning no
			// matter how many of its pages fail.
			if !warned {
				warned = true
				if werr := r.emit(ctx, domain.ProgressEvent{
					Kind:    domain.EventWarning,
					Stage:   domain.StageSearch,
					Message: fmt.Sprintf("%s search failed: %v", adapter.Name(), err),
				}); werr != nil {
					return werr
				}
			}
			offset += r.deps.pageSize
			continue
		}
		r.deps.metrics.SourceSearchDuration.WithLabelValues(adapter.Name()).Observe(sp.SearchDuration.Seconds())
		if err := r.ingestPage(ctx, sp, deduper); err != nil {
			return err
		}
		if !sp.HasMore {
			return nil
		}
		offset = sp.NextOffset
	}
	return nil
}

// ingestPage feeds one page of results through the deduper and persists
// every record that survives as a new unique paper.
func (r *jobRunner) ingestPage(ctx context.Context, sp *sources.SearchPage, deduper *dedup.Deduper) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range sp.Papers {
		if r.counters.Found >= r.job.TargetCount {
			return nil
		}
		outcome := deduper.Add(rec)
		if !outcome.Kept {
			r.deps.metrics.PapersDuplicate.Inc()
			// The merge may have enriched the survivor (a PDF URL or
			// an abstract the first source lacked), so rewrite it.
			if survivor, ok := r.byKey[outcome.MergedInto]; ok {
				if err := r.deps.store.WriteMetadata(r.job.ID, survivor); err != nil {
					return err
				}
			}
			continue
		}
		key := rec.PaperKey()
		r.byKey[key] = rec
		if err := r.deps.store.WriteMetadata(r.job.ID, rec); err != nil {
			return err
		}
		if err := r.deps.store.AppendIndex(r.job.ID, key); err != nil {
			return err
		}
		r.counters.Found++
		r.deps.metrics.PapersFound.Inc()
		r.tracker.Update(domain.StageSearch, r.counters.Found, r.job.TargetCount)
		if err := r.emitLocked(ctx, domain.ProgressEvent{
			Kind:     domain.EventPaperFound,
			Stage:    domain.StageSearch,
			PaperKey: key,
			Message:  rec.Title,
		}); err != nil {
			return err
		}
	}
	return nil
}

// downloadStage fetches the PDF for every record that has a candidate
// URL, up to maxDownloads in flight at once. A paper without a URL, or
// whose download fails permanently, is recorded with a skip reason and
// never retried; the job itself keeps going.
func (r *jobRunner) downloadStage(ctx context.Context, records []*domain.PaperRecord) error {
	defer r.observeStage(domain.StageDownload, time.Now())
	if err := r.emit(ctx, domain.ProgressEvent{
		Kind:    domain.EventStageStarted,
		Stage:   domain.StageDownload,
		Message: fmt.Sprintf("downloading PDFs for %d papers", len(records)),
	}); err != nil {
		return err
	}

	var processed int
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.deps.maxDownloads)
	for _, rec := range records {
		if err := r.gate.checkpoint(gctx); err != nil {
			break
		}
		g.Go(func() error {
			err := r.downloadOne(gctx, rec)
			r.mu.Lock()
			processed++
			r.tracker.Update(domain.StageDownload, processed, len(records))
			r.mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := r.gate.checkpoint(ctx); err != nil {
		return err
	}

	r.tracker.Complete(domain.StageDownload)
	return r.emit(ctx, domain.ProgressEvent{
		Kind:    domain.EventStageCompleted,
		Stage:   domain.StageDownload,
		Message: fmt.Sprintf("downloaded %d of %d papers", r.downloadedCount(), len(records)),
	})
}

func (r *jobRunner) downloadOne(ctx context.Context, rec *domain.PaperRecord) error {
	key := rec.PaperKey()
	if rec.Provenance.SkipReason != "" || rec.Provenance.DownloadedAt != nil || r.deps.store.HasPDF(r.job.ID, key) {
		return nil
	}
	if !rec.HasPDFURL() {
		return r.skipPaper(ctx, rec, domain.StageDownload, domain.SkipNoURL, "no PDF URL available")
	}

	result, err := r.deps.downloader.Download(ctx, rec.PDFURL)
	if err != nil {
		if reason, ok := pdf.AsSkip(err); ok {
			return r.skipPaper(ctx, rec, domain.StageDownload, reason, err.Error())
		}
		return err
	}
	// A download that raced a cancellation is discarded; artifacts
	// written before the cancel stay on disk.
	if err := r.gate.checkpoint(ctx); err != nil {
		return err
	}

	if _, err := r.deps.store.WritePDF(r.job.ID, key, bytes.NewReader(result.Content)); err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.Provenance.DownloadedAt = &now
	if err := r.deps.store.WriteMetadata(r.job.ID, rec); err != nil {
		return err
	}

	r.deps.metrics.PapersDownloaded.Inc()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters.Downloaded++
	return r.emitLocked(ctx, domain.ProgressEvent{
		Kind:     domain.EventPaperDownloaded,
		Stage:    domain.StageDownload,
		PaperKey: key,
		Message:  fmt.Sprintf("%d bytes", result.SizeBytes),
	})
}

// extractStage runs text extraction sequentially over every stored PDF.
// Extraction failures are per-paper warnings, never job failures.
func (r *jobRunner) extractStage(ctx context.Context, records []*domain.PaperRecord) error {
	defer r.observeStage(domain.StageExtract, time.Now())
	if err := r.emit(ctx, domain.ProgressEvent{
		Kind:  domain.EventStageStarted,
		Stage: domain.StageExtract,
	}); err != nil {
		return err
	}

	for i, rec := range records {
		if err := r.gate.checkpoint(ctx); err != nil {
			return err
		}
		if err := r.extractOne(ctx, rec); err != nil {
			return err
		}
		r.tracker.Update(domain.StageExtract, i+1, len(records))
	}

	r.tracker.Complete(domain.StageExtract)
	return r.emit(ctx, domain.ProgressEvent{
		Kind:    domain.EventStageCompleted,
		Stage:   domain.StageExtract,
		Message: fmt.Sprintf("extracted text from %d papers", r.extractedCount()),
	})
}

func (r *jobRunner) extractOne(ctx context.Context, rec *domain.PaperRecord) error {
	key := rec.PaperKey()
	if !r.deps.store.HasPDF(r.job.ID, key) {
		return nil
	}
	if r.deps.store.HasFulltext(r.job.ID, key) {
		return nil
	}

	pdfPath, err := r.deps.store.PDFPath(r.job.ID, key)
	if err != nil {
		return err
	}
	result, err := r.deps.extractor.Extract(ctx, pdfPath)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return r.skipPaper(ctx, rec, domain.StageExtract, domain.SkipNotPDF, fmt.Sprintf("text extraction failed: %v", err))
	}

	if err := r.deps.store.WriteFulltext(r.job.ID, key, result.FullText); err != nil {
		return err
	}
	now := time.Now().UTC()
	rec.Provenance.ExtractedAt = &now
	if err := r.deps.store.WriteMetadata(r.job.ID, rec); err != nil {
		return err
	}

	r.deps.metrics.PapersExtracted.Inc()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters.Extracted++
	return r.emitLocked(ctx, domain.ProgressEvent{
		Kind:     domain.EventPaperExtracted,
		Stage:    domain.StageExtract,
		PaperKey: key,
		Message:  fmt.Sprintf("%d sections", len(result.Sections)),
	})
}

// translateStage translates records sequentially. A paper whose
// translation fails permanently ends up without a translations entry;
// the remaining papers still get theirs.
func (r *jobRunner) translateStage(ctx context.Context, records []*domain.PaperRecord) error {
	defer r.observeStage(domain.StageTranslate, time.Now())
	lang := r.job.Options.TargetLanguage
	if err := r.emit(ctx, domain.ProgressEvent{
		Kind:    domain.EventStageStarted,
		Stage:   domain.StageTranslate,
		Message: fmt.Sprintf("translating to %s", lang),
	}); err != nil {
		return err
	}

	for i, rec := range records {
		if err := r.gate.checkpoint(ctx); err != nil {
			return err
		}
		if err := r.translateOne(ctx, rec, lang); err != nil {
			return err
		}
		r.tracker.Update(domain.StageTranslate, i+1, len(records))
	}

	r.tracker.Complete(domain.StageTranslate)
	return r.emit(ctx, domain.ProgressEvent{
		Kind:    domain.EventStageCompleted,
		Stage:   domain.StageTranslate,
		Message: fmt.Sprintf("translated %d papers", r.translatedCount()),
	})
}

func (r *jobRunner) translateOne(ctx context.Context, rec *domain.PaperRecord, lang string) error {
	key := rec.PaperKey()
	if _, ok := rec.Translation[lang]; ok {
		return nil
	}

	digest := ""
	if r.deps.store.HasFulltext(r.job.ID, key) {
		text, err := r.deps.store.ReadFulltext(r.job.ID, key)
		if err != nil {
			return err
		}
		digest = extract.SectionDigest(extract.FindSections(text))
	}

	tr, err := r.deps.translator.TranslateRecord(ctx, rec, digest, lang)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return r.warn(ctx, domain.StageTranslate, key, fmt.Sprintf("translation to %s failed: %v", lang, err))
	}

	if rec.Translation == nil {
		rec.Translation = make(map[string]domain.Translation)
	}
	rec.Translation[lang] = *tr
	if err := r.deps.store.WriteMetadata(r.job.ID, rec); err != nil {
		return err
	}
	if err := r.deps.store.WriteSummary(r.job.ID, key, lang, translate.RenderSummary(rec, lang)); err != nil {
		return err
	}

	r.deps.metrics.PapersTranslated.Inc()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters.Translated++
	return r.emitLocked(ctx, domain.ProgressEvent{
		Kind:     domain.EventPaperTranslated,
		Stage:    domain.StageTranslate,
		PaperKey: key,
	})
}

// skipPaper records a permanent per-paper failure: the skip reason goes
// into the paper's metadata and a warning event carries it to watchers.
func (r *jobRunner) skipPaper(ctx context.Context, rec *domain.PaperRecord, stage domain.Stage, reason domain.SkipReason, msg string) error {
	r.deps.metrics.PapersSkipped.WithLabelValues(string(reason)).Inc()
	rec.Provenance.SkipReason = reason
	if err := r.deps.store.WriteMetadata(r.job.ID, rec); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emitLocked(ctx, domain.ProgressEvent{
		Kind:       domain.EventWarning,
		Stage:      stage,
		PaperKey:   rec.PaperKey(),
		SkipReason: reason,
		Message:    msg,
	})
}

func (r *jobRunner) warn(ctx context.Context, stage domain.Stage, paperKey, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emitLocked(ctx, domain.ProgressEvent{
		Kind:     domain.EventWarning,
		Stage:    stage,
		PaperKey: paperKey,
		Message:  msg,
	})
}

// finish records a terminal status, snapshots the job and emits the
// terminal event. Finalization outlives the job context so shutdowns
// and cancellations still leave a consistent record behind.
func (r *jobRunner) finish(ctx context.Context, status domain.JobStatus, errMsg string) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := r.deps.registry.UpdateStatus(fctx, r.job.ID, status, errMsg); err != nil {
		r.logger.Error().Err(err).Str("status", string(status)).Msg("recording terminal status failed")
	}
	r.finalize(fctx, status, errMsg)
}

// finishCancelled assumes the registry transition was already made by
// the cancel request and only persists the terminal record.
func (r *jobRunner) finishCancelled(ctx context.Context) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	r.finalize(fctx, domain.JobStatusCancelled, "")
}

func (r *jobRunner) observeStage(stage domain.Stage, start time.Time) {
	r.deps.metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}

func (r *jobRunner) finalize(ctx context.Context, status domain.JobStatus, errMsg string) {
	switch status {
	case domain.JobStatusCompleted:
		r.deps.metrics.JobsCompleted.Inc()
	case domain.JobStatusFailed:
		r.deps.metrics.JobsFailed.Inc()
	case domain.JobStatusCancelled:
		r.deps.metrics.JobsCancelled.Inc()
	}
	if job, err := r.deps.registry.Get(ctx, r.job.ID); err == nil {
		r.job = job
		r.deps.metrics.JobDuration.Observe(job.Duration().Seconds())
	} else {
		r.logger.Error().Err(err).Msg("refreshing job for terminal snapshot failed")
		r.job.Status = status
	}
	if err := r.deps.store.WriteJobSnapshot(r.job); err != nil {
		r.logger.Error().Err(err).Msg("writing terminal snapshot failed")
	}
	pct := r.tracker.Pct()
	if status == domain.JobStatusCompleted {
		pct = 100
	}
	event := domain.ProgressEvent{
		JobID:       r.job.ID,
		Timestamp:   time.Now().UTC(),
		Kind:        domain.EventTerminal,
		Counters:    r.countersSnapshot(),
		ProgressPct: pct,
		Status:      status,
		Error:       errMsg,
	}
	if err := r.deps.store.AppendEvent(r.job.ID, event); err != nil {
		r.logger.Error().Err(err).Msg("appending terminal event failed")
	}
	r.deps.bus.Publish(event)
	if r.deps.sink != nil {
		r.deps.sink.Publish(ctx, event)
	}
}

// emit persists an event, fans it out and pushes the progress counters
// to the registry. An events.log write failure is fatal for the job;
// everything downstream of it is best effort.
func (r *jobRunner) emit(ctx context.Context, event domain.ProgressEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.emitLocked(ctx, event)
}

func (r *jobRunner) emitLocked(ctx context.Context, event domain.ProgressEvent) error {
	event.JobID = r.job.ID
	event.Timestamp = time.Now().UTC()
	event.Counters = r.counters
	event.ProgressPct = r.tracker.Pct()
	if err := r.deps.store.AppendEvent(r.job.ID, event); err != nil {
		return fmt.Errorf("appending progress event: %w", err)
	}
	r.deps.bus.Publish(event)
	if r.deps.sink != nil {
		r.deps.sink.Publish(ctx, event)
	}
	if err := r.deps.registry.RecordProgress(ctx, r.job.ID, event.ProgressPct, event.Counters); err != nil {
		r.logger.Warn().Err(err).Msg("recording progress failed")
	}
	return nil
}

func (r *jobRunner) countersSnapshot() domain.StageCounters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}

func (r *jobRunner) foundCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters.Found
}

func (r *jobRunner) downloadedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters.Downloaded
}

func (r *jobRunner) extractedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters.Extracted
}

func (r *jobRunner) translatedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters.Translated
}
