package pipeline

import (
	"sync"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

// stageWeights assigns the relative contribution of each stage to the
// overall job percentage. Weights are rescaled over the stages a job
// actually runs, so a search-only job reaches 100% on search alone.
var stageWeights = map[domain.Stage]int{
	domain.StageSearch:    30,
	domain.StageDownload:  30,
	domain.StageExtract:   20,
	domain.StageTranslate: 20,
}

// progressTracker folds per-stage completion fractions into a single
// monotonic percentage. Both per-stage fractions and the overall value
// only move forward; stale or repeated updates are absorbed silently.
type progressTracker struct {
	mu      sync.Mutex
	weights map[domain.Stage]float64
	done    map[domain.Stage]float64
	last    int
}

func newProgressTracker(stages []domain.Stage) *progressTracker {
	total := 0
	for _, s := range stages {
		total += stageWeights[s]
	}
	t := &progressTracker{
		weights: make(map[domain.Stage]float64, len(stages)),
		done:    make(map[domain.Stage]float64, len(stages)),
	}
	if total == 0 {
		return t
	}
	for _, s := range stages {
		t.weights[s] = float64(stageWeights[s]) / float64(total)
	}
	return t
}

// Update records that done out of total units of a stage have finished
// and returns the overall percentage. A stage with zero total units
// counts as complete. Updates for stages the job does not run are
// ignored, as are updates that would move a stage backwards.
func (t *progressTracker) Update(stage domain.Stage, done, total int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.weights[stage]; !ok {
		return t.last
	}
	frac := 1.0
	if total > 0 {
		frac = float64(done) / float64(total)
		if frac > 1 {
			frac = 1
		}
		if frac < 0 {
			frac = 0
		}
	}
	if frac > t.done[stage] {
		t.done[stage] = frac
	}
	pct := 0.0
	for s, w := range t.weights {
		pct += w * t.done[s]
	}
	if p := int(pct*100 + 0.5); p > t.last {
		t.last = p
	}
	return t.last
}

// Complete marks a stage fully finished.
func (t *progressTracker) Complete(stage domain.Stage) int {
	return t.Update(stage, 1, 1)
}

// Pct returns the current overall percentage.
func (t *progressTracker) Pct() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
