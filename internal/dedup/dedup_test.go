package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

func newRecord(t *testing.T, source domain.SourceType, sourceID, title string) *domain.PaperRecord {
	t.Helper()
	record, err := domain.NewPaperRecord(source, sourceID, title)
	require.NoError(t, err)
	return record
}

func TestDeduper_KeepsDistinctRecords(t *testing.T) {
	d := New()

	a := newRecord(t, domain.SourceTypePubMed, "111", "Lumbar Fusion Outcomes")
	a.IDs.DOI = "10.1/a"
	b := newRecord(t, domain.SourceTypePubMed, "222", "Cervical Disc Replacement")
	b.IDs.DOI = "10.1/b"

	assert.True(t, d.Add(a).Kept)
	assert.True(t, d.Add(b).Kept)
	assert.Equal(t, 2, d.Len())
}

func TestDeduper_MatchesByDOI(t *testing.T) {
	d := New()

	a := newRecord(t, domain.SourceTypePubMed, "111", "Lumbar Fusion Outcomes")
	a.IDs.DOI = "10.1016/j.spinee.2021.05.011"
	a.IDs.PMID = "34010682"

	b := newRecord(t, domain.SourceTypeSemanticScholar, "s2-abc", "Lumbar fusion outcomes.")
	b.IDs.DOI = "10.1016/J.SPINEE.2021.05.011" // DOIs compare case-insensitively

	require.True(t, d.Add(a).Kept)
	outcome := d.Add(b)
	assert.False(t, outcome.Kept)
	assert.Equal(t, a.PaperKey(), outcome.MergedInto)
	assert.Equal(t, 1, d.Len())
}

func TestDeduper_MatchesByPMIDWithoutDOI(t *testing.T) {
	d := New()

	a := newRecord(t, domain.SourceTypePubMed, "34010682", "Some Spine Paper")
	a.IDs.PMID = "34010682"

	b := newRecord(t, domain.SourceTypeSemanticScholar, "s2-xyz", "A different looking title")
	b.IDs.PMID = "34010682"

	require.True(t, d.Add(a).Kept)
	assert.False(t, d.Add(b).Kept)
	assert.Equal(t, 1, d.Len())
}

func TestDeduper_TitleYearMatch(t *testing.T) {
	t.Run("same title within one year merges", func(t *testing.T) {
		d := New()

		a := newRecord(t, domain.SourceTypeArXiv, "2301.1", "Deep Learning for Spine Segmentation")
		a.IDs.ArXivID = "2301.1"
		a.Year = 2023

		b := newRecord(t, domain.SourceTypePubMed, "999", "Deep learning for spine segmentation!")
		b.IDs.PMID = "999"
		b.Year = 2024

		require.True(t, d.Add(a).Kept)
		outcome := d.Add(b)
		assert.False(t, outcome.Kept)
		assert.Equal(t, a.PaperKey(), outcome.MergedInto)
	})

	t.Run("same title with distant years stays distinct", func(t *testing.T) {
		d := New()

		a := newRecord(t, domain.SourceTypePubMed, "1", "Spinal Cord Injury Review")
		a.IDs.PMID = "1"
		a.Year = 2010

		b := newRecord(t, domain.SourceTypePubMed, "2", "Spinal Cord Injury Review")
		b.IDs.PMID = "2"
		b.Year = 2020

		assert.True(t, d.Add(a).Kept)
		assert.True(t, d.Add(b).Kept)
		assert.Equal(t, 2, d.Len())
	})

	t.Run("missing year matches anything", func(t *testing.T) {
		d := New()

		a := newRecord(t, domain.SourceTypePubMed, "1", "Pedicle Screw Accuracy")
		a.IDs.PMID = "1"
		a.Year = 2018

		b := newRecord(t, domain.SourceTypeSemanticScholar, "s2-1", "Pedicle screw accuracy")

		require.True(t, d.Add(a).Kept)
		assert.False(t, d.Add(b).Kept)
	})
}

func TestDeduper_MergeFillsAndPromotes(t *testing.T) {
	d := New()

	a := newRecord(t, domain.SourceTypePubMed, "111", "Scoliosis Bracing Outcomes")
	a.IDs.PMID = "111"
	a.Authors = []string{"First Author"}
	a.Keywords = []string{"scoliosis", "bracing"}
	a.AccessHint = domain.AccessAbstractOnly

	b := newRecord(t, domain.SourceTypeSemanticScholar, "s2-1", "Scoliosis Bracing Outcomes")
	b.IDs.PMID = "111"
	b.IDs.DOI = "10.1/scoliosis"
	b.Abstract = "Brace wear time correlated with curve progression."
	b.Authors = []string{"Other Author"}
	b.Keywords = []string{"Scoliosis", "adolescent"}
	b.PDFURL = "https://example.org/scoliosis.pdf"
	b.AccessHint = domain.AccessFulltextAvailable
	b.Year = 2020

	require.True(t, d.Add(a).Kept)
	require.False(t, d.Add(b).Kept)

	survivor := d.Records()[0]
	// First-seen authors win; empty fields are filled from the duplicate.
	assert.Equal(t, []string{"First Author"}, survivor.Authors)
	assert.Equal(t, "10.1/scoliosis", survivor.IDs.DOI)
	assert.Equal(t, "Brace wear time correlated with curve progression.", survivor.Abstract)
	assert.Equal(t, 2020, survivor.Year)
	// Keywords union, case-insensitive.
	assert.Equal(t, []string{"scoliosis", "bracing", "adolescent"}, survivor.Keywords)
	// Access hint promoted, PDF URL taken.
	assert.Equal(t, domain.AccessFulltextAvailable, survivor.AccessHint)
	assert.Equal(t, "https://example.org/scoliosis.pdf", survivor.PDFURL)
	// Merging never demotes: a later abstract-only copy changes nothing.
	c := newRecord(t, domain.SourceTypePubMed, "112", "Scoliosis Bracing Outcomes")
	c.IDs.PMID = "111"
	c.AccessHint = domain.AccessAbstractOnly
	c.PDFURL = "https://other.example.org/dup.pdf"
	require.False(t, d.Add(c).Kept)
	assert.Equal(t, domain.AccessFulltextAvailable, survivor.AccessHint)
	assert.Equal(t, "https://example.org/scoliosis.pdf", survivor.PDFURL)
}

func TestDeduper_MergeKeepsAdmittedKey(t *testing.T) {
	d := New()

	// First seen from arXiv with no DOI: key derives from the arXiv ID.
	a := newRecord(t, domain.SourceTypeArXiv, "2301.12345", "Lumbar Load Modelling")
	a.IDs.ArXivID = "2301.12345"
	a.Year = 2023

	require.True(t, d.Add(a).Kept)
	admittedKey := a.PaperKey()
	assert.Equal(t, "arxiv-2301.12345", admittedKey)

	// The published copy carries a DOI, which outranks the arXiv ID in
	// key precedence. Merging must enrich the survivor without moving it.
	b := newRecord(t, domain.SourceTypeSemanticScholar, "s2-77", "Lumbar load modelling")
	b.IDs.DOI = "10.1000/lumbar.77"
	b.Year = 2023

	outcome := d.Add(b)
	require.False(t, outcome.Kept)
	assert.Equal(t, admittedKey, outcome.MergedInto)
	assert.Equal(t, admittedKey, a.PaperKey())
	assert.Equal(t, "10.1000/lumbar.77", a.IDs.DOI)
}

func TestDeduper_MergedIdentifiersBecomeMatchable(t *testing.T) {
	d := New()

	// First record only has a PMID.
	a := newRecord(t, domain.SourceTypePubMed, "111", "Title A")
	a.IDs.PMID = "111"

	// Duplicate links the PMID to a DOI.
	b := newRecord(t, domain.SourceTypeSemanticScholar, "s2-1", "Completely Different Title")
	b.IDs.PMID = "111"
	b.IDs.DOI = "10.1/linked"

	// Third record only shares the DOI learned from the merge.
	c := newRecord(t, domain.SourceTypeArXiv, "2301.2", "Yet Another Title")
	c.IDs.ArXivID = "2301.2"
	c.IDs.DOI = "10.1/linked"

	require.True(t, d.Add(a).Kept)
	require.False(t, d.Add(b).Kept)
	assert.False(t, d.Add(c).Kept)
	assert.Equal(t, 1, d.Len())
}

func TestDeduper_Deterministic(t *testing.T) {
	// Same input sequence always yields the same surviving set.
	build := func() []*domain.PaperRecord {
		d := New()
		a := newRecord(t, domain.SourceTypePubMed, "1", "Alpha")
		a.IDs.PMID = "1"
		b := newRecord(t, domain.SourceTypePubMed, "2", "Beta")
		b.IDs.PMID = "2"
		dup := newRecord(t, domain.SourceTypeSemanticScholar, "s2", "Alpha")
		dup.IDs.PMID = "1"
		d.Add(a)
		d.Add(b)
		d.Add(dup)
		return d.Records()
	}

	first := build()
	second := build()
	require.Len(t, first, 2)
	for i := range first {
		assert.Equal(t, first[i].PaperKey(), second[i].PaperKey())
	}
}
