package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleArticleText = `Posterior Lumbar Interbody Fusion Outcomes

Abstract
We evaluated fusion rates in 120 patients undergoing PLIF with
cortical bone trajectory screws over a 24-month follow-up period.

1. Introduction
Degenerative spondylolisthesis remains a leading indication for
lumbar fusion surgery worldwide.

2. Materials and Methods
A retrospective cohort of 120 patients was reviewed. CT-confirmed
fusion was the primary endpoint.

3. Results
Fusion was achieved in 112 of 120 patients (93.3%).

4. Discussion
Our fusion rate compares favorably with pedicle screw constructs.

Conclusions
PLIF with cortical trajectory screws achieves high fusion rates.
`

func testExtractor(primary func(string, int) (string, int, error), fallback func(string) (string, error)) *Extractor {
	e := NewExtractor(Config{MaxPages: 5}, zerolog.Nop())
	// Bypass document preparation so tests run without PDF files.
	e.primary = primary
	e.fallback = fallback
	return e
}

func TestFindSections(t *testing.T) {
	sections := FindSections(sampleArticleText)
	require.Len(t, sections, 6)

	assert.Contains(t, sections["abstract"], "120 patients undergoing PLIF")
	assert.Contains(t, sections["introduction"], "Degenerative spondylolisthesis")
	assert.Contains(t, sections["methods"], "retrospective cohort")
	assert.Contains(t, sections["results"], "93.3%")
	assert.Contains(t, sections["discussion"], "pedicle screw")
	assert.Contains(t, sections["conclusion"], "high fusion rates")
}

func TestFindSectionsAliases(t *testing.T) {
	text := "Summary\nShort overview here.\n\nBackground\nPrior work.\n\nFindings\nThe data.\n"
	sections := FindSections(text)

	assert.Contains(t, sections["abstract"], "Short overview")
	assert.Contains(t, sections["introduction"], "Prior work")
	assert.Contains(t, sections["results"], "The data")
}

func TestFindSectionsNoHeadings(t *testing.T) {
	assert.Nil(t, FindSections("just a paragraph of prose without any headings at all"))
}

func TestFindSectionsFirstOccurrenceWins(t *testing.T) {
	text := "Methods\nFirst methods body.\n\nResults\nNumbers.\n\nMethods\nSupplementary methods.\n"
	sections := FindSections(text)

	assert.Contains(t, sections["methods"], "First methods body")
	assert.NotContains(t, sections["methods"], "Supplementary")
	// The repeated heading is treated as body text of the section before it.
	assert.Contains(t, sections["results"], "Supplementary methods")
}

func TestFindSectionsIgnoresHeadingMidSentence(t *testing.T) {
	text := "The methods used were standard.\nAll results were recorded daily.\n"
	assert.Nil(t, FindSections(text))
}

func TestSectionDigestOrder(t *testing.T) {
	digest := SectionDigest(map[string]string{
		"conclusion": "Last.",
		"abstract":   "First.",
		"results":    "Middle.",
	})

	first := len("Abstract")
	require.Greater(t, len(digest), first)
	assert.Equal(t, "Abstract", digest[:first])
	assert.Less(t, indexOf(digest, "Results"), indexOf(digest, "Conclusion"))
}

func TestSectionDigestCapsPerSection(t *testing.T) {
	long := strings.Repeat("x", maxDigestChars+500)
	digest := SectionDigest(map[string]string{
		"abstract": long,
		"methods":  "Short body.",
	})

	abstractPart := digest[:indexOf(digest, "Methods")]
	assert.LessOrEqual(t, len(abstractPart), len("Abstract\n")+maxDigestChars+len("\n\n"))
	assert.Contains(t, digest, "Short body.")
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestExtractUsesPrimary(t *testing.T) {
	e := testExtractor(
		func(string, int) (string, int, error) { return sampleArticleText, 3, nil },
		func(string) (string, error) { t.Fatal("fallback should not run"); return "", nil },
	)
	e.prepare = func(path string) (string, int, func(), error) { return path, 3, func() {}, nil }

	result, err := e.Extract(context.Background(), "paper.pdf")
	require.NoError(t, err)

	assert.Contains(t, result.FullText, "Posterior Lumbar Interbody Fusion")
	assert.Equal(t, 3, result.Pages)
	assert.Contains(t, result.Sections, "methods")
}

func TestExtractFallsBackOnEmptyPrimary(t *testing.T) {
	e := testExtractor(
		func(string, int) (string, int, error) { return "   \n  ", 2, nil },
		func(string) (string, error) { return sampleArticleText, nil },
	)
	e.prepare = func(path string) (string, int, func(), error) { return path, 2, func() {}, nil }

	result, err := e.Extract(context.Background(), "paper.pdf")
	require.NoError(t, err)
	assert.Contains(t, result.FullText, "Degenerative spondylolisthesis")
}

func TestExtractFallsBackOnPrimaryError(t *testing.T) {
	e := testExtractor(
		func(string, int) (string, int, error) { return "", 0, errors.New("bad xref") },
		func(string) (string, error) { return "recovered text content", nil },
	)
	e.prepare = func(path string) (string, int, func(), error) { return path, 1, func() {}, nil }

	result, err := e.Extract(context.Background(), "paper.pdf")
	require.NoError(t, err)
	assert.Equal(t, "recovered text content", result.FullText)
}

func TestExtractBothEmpty(t *testing.T) {
	e := testExtractor(
		func(string, int) (string, int, error) { return "", 1, nil },
		func(string) (string, error) { return "", nil },
	)
	e.prepare = func(path string) (string, int, func(), error) { return path, 1, func() {}, nil }

	_, err := e.Extract(context.Background(), "paper.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestExtractCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := testExtractor(nil, nil)
	_, err := e.Extract(ctx, "paper.pdf")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeText(t *testing.T) {
	in := "  a  b \n\n\n\nc   d\t e\n"
	assert.Equal(t, "a b\n\nc d e", normalizeText(in))
}
