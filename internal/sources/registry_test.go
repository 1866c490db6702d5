package sources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

// fakeAdapter is a minimal Adapter for registry tests.
type fakeAdapter struct {
	sourceType domain.SourceType
	enabled    bool
}

func (f *fakeAdapter) Search(_ context.Context, _ SearchQuery) (*SearchPage, error) {
	return &SearchPage{Source: f.sourceType}, nil
}

func (f *fakeAdapter) SourceType() domain.SourceType { return f.sourceType }
func (f *fakeAdapter) Name() string                  { return string(f.sourceType) }
func (f *fakeAdapter) IsEnabled() bool               { return f.enabled }

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	pubmed := &fakeAdapter{sourceType: domain.SourceTypePubMed, enabled: true}
	r.Register(pubmed)

	assert.Equal(t, pubmed, r.Get(domain.SourceTypePubMed))
	assert.Nil(t, r.Get(domain.SourceTypeArXiv))
}

func TestRegistry_Enabled(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdapter{sourceType: domain.SourceTypePubMed, enabled: true})
	r.Register(&fakeAdapter{sourceType: domain.SourceTypeArXiv, enabled: false})

	enabled := r.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, domain.SourceTypePubMed, enabled[0].SourceType())
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeAdapter{sourceType: domain.SourceTypePubMed, enabled: true})
	r.Register(&fakeAdapter{sourceType: domain.SourceTypeArXiv, enabled: false})

	adapters, unavailable := r.Resolve([]domain.SourceType{
		domain.SourceTypePubMed,
		domain.SourceTypeArXiv,
		domain.SourceTypeSemanticScholar,
	})

	require.Len(t, adapters, 1)
	assert.Equal(t, domain.SourceTypePubMed, adapters[0].SourceType())
	assert.Equal(t, []domain.SourceType{domain.SourceTypeArXiv, domain.SourceTypeSemanticScholar}, unavailable)
}
