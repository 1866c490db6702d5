package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

func TestTrackerRescalesOverEnabledStages(t *testing.T) {
	// A search-only job reaches 100% on search alone.
	searchOnly := newProgressTracker([]domain.Stage{domain.StageSearch})
	assert.Equal(t, 50, searchOnly.Update(domain.StageSearch, 1, 2))
	assert.Equal(t, 100, searchOnly.Complete(domain.StageSearch))

	// With every stage enabled, search is worth 30 points.
	full := newProgressTracker([]domain.Stage{
		domain.StageSearch, domain.StageDownload, domain.StageExtract, domain.StageTranslate,
	})
	assert.Equal(t, 30, full.Complete(domain.StageSearch))
	assert.Equal(t, 60, full.Complete(domain.StageDownload))
	assert.Equal(t, 80, full.Complete(domain.StageExtract))
	assert.Equal(t, 100, full.Complete(domain.StageTranslate))
}

func TestTrackerNeverMovesBackwards(t *testing.T) {
	tr := newProgressTracker([]domain.Stage{domain.StageSearch, domain.StageTranslate})
	first := tr.Update(domain.StageSearch, 8, 10)
	assert.Equal(t, first, tr.Update(domain.StageSearch, 3, 10))
	assert.Equal(t, first, tr.Pct())
}

func TestTrackerIgnoresDisabledStages(t *testing.T) {
	tr := newProgressTracker([]domain.Stage{domain.StageSearch})
	assert.Zero(t, tr.Update(domain.StageDownload, 5, 10))
	assert.Zero(t, tr.Pct())
}

func TestTrackerEmptyStageCountsComplete(t *testing.T) {
	tr := newProgressTracker([]domain.Stage{domain.StageSearch, domain.StageDownload})
	tr.Complete(domain.StageSearch)
	// Zero papers to download still finishes the stage.
	assert.Equal(t, 100, tr.Update(domain.StageDownload, 0, 0))
}

func TestTrackerClampsOvershoot(t *testing.T) {
	tr := newProgressTracker([]domain.Stage{domain.StageSearch})
	// Sources can return more uniques than the target in one page.
	assert.Equal(t, 100, tr.Update(domain.StageSearch, 12, 10))
}
