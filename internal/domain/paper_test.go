package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPaperRecord(t *testing.T) {
	tests := []struct {
		name     string
		source   SourceType
		sourceID string
		title    string
		wantErr  bool
	}{
		{
			name:     "valid pubmed record",
			source:   SourceTypePubMed,
			sourceID: "12345678",
			title:    "Lumbar Fusion Outcomes",
			wantErr:  false,
		},
		{
			name:     "empty title rejected",
			source:   SourceTypePubMed,
			sourceID: "12345678",
			title:    "   ",
			wantErr:  true,
		},
		{
			name:     "empty source id rejected",
			source:   SourceTypeArXiv,
			sourceID: "",
			title:    "A Title",
			wantErr:  true,
		},
		{
			name:     "unknown source rejected",
			source:   SourceType("scopus"),
			sourceID: "x",
			title:    "A Title",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewPaperRecord(tt.source, tt.sourceID, tt.title)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.source, rec.SourceTag)
			assert.Equal(t, AccessUnknown, rec.AccessHint)
			assert.False(t, rec.Provenance.FetchedAt.IsZero())
		})
	}
}

func TestPaperKeyPrecedence(t *testing.T) {
	rec := &PaperRecord{
		SourceTag: SourceTypePubMed,
		SourceID:  "999",
		IDs: Identifiers{
			DOI:     "10.1234/Spine.2023.001",
			PMID:    "12345678",
			ArXivID: "2301.12345",
		},
	}

	// DOI wins, lowercased.
	assert.Equal(t, "doi-10.1234-spine.2023.001", rec.PaperKey())

	rec.IDs.DOI = ""
	assert.Equal(t, "pmid-12345678", rec.PaperKey())

	rec.IDs.PMID = ""
	assert.Equal(t, "arxiv-2301.12345", rec.PaperKey())

	rec.IDs.ArXivID = ""
	assert.Equal(t, "pubmed-999", rec.PaperKey())
}

func TestFreezeKeyPinsAcrossIdentifierChanges(t *testing.T) {
	rec := &PaperRecord{
		SourceTag: SourceTypeArXiv,
		SourceID:  "2301.12345",
		IDs:       Identifiers{ArXivID: "2301.12345"},
	}

	key := rec.FreezeKey()
	assert.Equal(t, "arxiv-2301.12345", key)

	// A DOI learned later outranks the arXiv ID for derivation but must
	// not move the record once the key is pinned.
	rec.IDs.DOI = "10.1000/lumbar.77"
	assert.Equal(t, key, rec.PaperKey())
	assert.Equal(t, key, rec.FreezeKey())
}

func TestPaperKeyDeterministic(t *testing.T) {
	rec := &PaperRecord{SourceTag: SourceTypeArXiv, SourceID: "abs/2301.001"}
	first := rec.PaperKey()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, rec.PaperKey())
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "slashes collapse", in: "doi-10.1007/s00586-023", want: "doi-10.1007-s00586-023"},
		{name: "spaces and symbols", in: "a b?c*d", want: "a-b-c-d"},
		{name: "trims separators", in: "--abc--", want: "abc"},
		{name: "unicode stripped", in: "étude‐spinale", want: "tude-spinale"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeKey(tt.in))
		})
	}

	t.Run("length capped", func(t *testing.T) {
		key := sanitizeKey("doi-" + strings.Repeat("x", 300))
		assert.LessOrEqual(t, len(key), maxKeyLength)
	})
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "case and punctuation",
			in:   "Lumbar Fusion: A Meta-Analysis!",
			want: "lumbar fusion a metaanalysis",
		},
		{
			name: "whitespace collapse",
			in:   "  Outcomes\tafter   TLIF ",
			want: "outcomes after tlif",
		},
		{
			name: "identical after normalization",
			in:   "Outcomes, after TLIF.",
			want: "outcomes after tlif",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTitle(tt.in))
		})
	}
}

func TestEnabledStages(t *testing.T) {
	tests := []struct {
		name string
		opts JobOptions
		want []Stage
	}{
		{
			name: "search only",
			opts: JobOptions{},
			want: []Stage{StageSearch},
		},
		{
			name: "with downloads",
			opts: JobOptions{DownloadPDFs: true},
			want: []Stage{StageSearch, StageDownload, StageExtract},
		},
		{
			name: "all stages",
			opts: JobOptions{DownloadPDFs: true, Translate: true, TargetLanguage: "ko"},
			want: []Stage{StageSearch, StageDownload, StageExtract, StageTranslate},
		},
		{
			name: "translate without downloads",
			opts: JobOptions{Translate: true, TargetLanguage: "ko"},
			want: []Stage{StageSearch, StageTranslate},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &Job{Options: tt.opts}
			assert.Equal(t, tt.want, j.EnabledStages())
		})
	}
}

func TestJobStatusIsTerminal(t *testing.T) {
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.True(t, JobStatusCancelled.IsTerminal())
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusRunning.IsTerminal())
	assert.False(t, JobStatusPaused.IsTerminal())
}
