package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t, ManagerConfig{})

	valid := SubmitRequest{
		ProjectID:   "proj-spine-7",
		Query:       "disc herniation",
		Sources:     []domain.SourceType{domain.SourceTypePubMed},
		TargetCount: 5,
	}

	tests := []struct {
		name   string
		mutate func(*SubmitRequest)
	}{
		{"empty query", func(r *SubmitRequest) { r.Query = "   " }},
		{"no sources", func(r *SubmitRequest) { r.Sources = nil }},
		{"unknown source", func(r *SubmitRequest) { r.Sources = []domain.SourceType{"library-of-alexandria"} }},
		{"zero target", func(r *SubmitRequest) { r.TargetCount = 0 }},
		{"negative target", func(r *SubmitRequest) { r.TargetCount = -3 }},
		{"translate without language", func(r *SubmitRequest) { r.Translate = true; r.TargetLanguage = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := env.manager.Submit(context.Background(), req)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestManagerConfigDefaults(t *testing.T) {
	var cfg ManagerConfig
	cfg.applyDefaults()
	assert.Equal(t, DefaultMaxConcurrentJobs, cfg.MaxConcurrentJobs)
	assert.Equal(t, DefaultMaxPagesPerSource, cfg.MaxPagesPerSource)
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
	assert.Equal(t, DefaultMaxDownloads, cfg.MaxDownloads)
}

func TestLifecycleRequestsAreIdempotentInTerminalStates(t *testing.T) {
	adapter := singlePageAdapter(domain.SourceTypePubMed, "PubMed",
		spinePaper("800001", "Cauda equina syndrome outcomes", ""),
	)
	env := newTestEnv(t, ManagerConfig{}, adapter)

	job, err := env.manager.Submit(context.Background(), SubmitRequest{
		ProjectID:   "proj-spine-7",
		Query:       "cauda equina",
		Sources:     []domain.SourceType{domain.SourceTypePubMed},
		TargetCount: 1,
	})
	require.NoError(t, err)
	env.waitForStatus(t, job.ID, domain.JobStatusCompleted)

	eventsBefore := len(env.events(t, job.ID))

	got, err := env.manager.Cancel(context.Background(), job.ID, "client:late")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Empty(t, got.CancelOrigin)

	got, err = env.manager.Pause(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)

	got, err = env.manager.Resume(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)

	// Nothing was replayed or re-emitted.
	assert.Len(t, env.events(t, job.ID), eventsBefore)
}

func TestCancelQueuedJobWritesTerminalRecord(t *testing.T) {
	// One slot, occupied by a job whose source never answers, so the
	// second job stays queued in pending state.
	holder := &fakeAdapter{source: domain.SourceTypePubMed, name: "PubMed", block: make(chan struct{})}
	env := newTestEnv(t, ManagerConfig{MaxConcurrentJobs: 1}, holder)

	_, err := env.manager.Submit(context.Background(), SubmitRequest{
		ProjectID:   "proj-spine-7",
		Query:       "slot holder",
		Sources:     []domain.SourceType{domain.SourceTypePubMed},
		TargetCount: 1,
	})
	require.NoError(t, err)

	queued, err := env.manager.Submit(context.Background(), SubmitRequest{
		ProjectID:   "proj-spine-7",
		Query:       "queued work",
		Sources:     []domain.SourceType{domain.SourceTypePubMed},
		TargetCount: 1,
	})
	require.NoError(t, err)

	got, err := env.manager.Cancel(context.Background(), queued.ID, "operator:maintenance")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, got.Status)
	assert.Equal(t, "operator:maintenance", got.CancelOrigin)

	require.Eventually(t, func() bool {
		terminals := eventsOfKind(env.events(t, queued.ID), domain.EventTerminal)
		return len(terminals) == 1 && terminals[0].Status == domain.JobStatusCancelled
	}, 5*time.Second, 10*time.Millisecond)

	// The queued job never touched a source.
	holder.mu.Lock()
	calls := holder.calls
	holder.mu.Unlock()
	assert.LessOrEqual(t, calls, 1)
}
