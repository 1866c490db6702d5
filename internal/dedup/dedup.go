// Package dedup merges paper records collected from multiple sources
// into a single record per underlying work.
//
// Matching happens in two passes. First by shared identifier, in
// precedence order DOI, PMID, PMC ID, arXiv ID: two records sharing any
// one of these describe the same work. Second by normalized title with
// publication years at most one apart, which catches the same work
// indexed without cross-identifiers (preprint versus published copy).
// Title-only matches with distant years are left distinct.
package dedup

import (
	"fmt"
	"strings"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

// Outcome describes what Add did with a record.
type Outcome struct {
	// Kept is true when the record was accepted as a new entry.
	Kept bool

	// MergedInto is the paper key of the surviving record when the
	// incoming record was recognized as a duplicate.
	MergedInto string
}

// Deduper accumulates the unique records of one job's search stage.
// Not safe for concurrent use; the search stage feeds it serially.
type Deduper struct {
	// records holds the surviving record per paper key, in insertion order.
	records []*domain.PaperRecord

	// byIdentifier maps qualified identifiers ("doi:...", "pmid:...")
	// to the index of the surviving record.
	byIdentifier map[string]int

	// byTitle maps normalized titles to surviving record indexes.
	byTitle map[string][]int
}

// New creates an empty Deduper.
func New() *Deduper {
	return &Deduper{
		byIdentifier: make(map[string]int),
		byTitle:      make(map[string][]int),
	}
}

// Add offers a record to the deduper. If it matches an existing record
// the two are merged and the outcome names the surviving key; otherwise
// the record is kept as a new entry and its key is pinned, so identifier
// enrichment from later merges never moves its artifacts. The incoming
// record is never mutated after a merge.
func (d *Deduper) Add(record *domain.PaperRecord) Outcome {
	if idx, ok := d.findMatch(record); ok {
		survivor := d.records[idx]
		merge(survivor, record)
		// Merging may surface identifiers the survivor lacked.
		d.indexIdentifiers(survivor, idx)
		return Outcome{MergedInto: survivor.PaperKey()}
	}

	record.FreezeKey()
	idx := len(d.records)
	d.records = append(d.records, record)
	d.indexIdentifiers(record, idx)

	title := domain.NormalizeTitle(record.Title)
	if title != "" {
		d.byTitle[title] = append(d.byTitle[title], idx)
	}

	return Outcome{Kept: true}
}

// Records returns the surviving records in first-seen order.
func (d *Deduper) Records() []*domain.PaperRecord {
	return d.records
}

// Len returns the number of unique records accumulated so far.
func (d *Deduper) Len() int {
	return len(d.records)
}

// findMatch locates an existing record matching the incoming one,
// by identifier first and normalized title second.
func (d *Deduper) findMatch(record *domain.PaperRecord) (int, bool) {
	for _, key := range identifierKeys(record) {
		if idx, ok := d.byIdentifier[key]; ok {
			return idx, true
		}
	}

	title := domain.NormalizeTitle(record.Title)
	if title == "" {
		return 0, false
	}
	for _, idx := range d.byTitle[title] {
		if yearsCompatible(d.records[idx].Year, record.Year) {
			return idx, true
		}
	}

	return 0, false
}

// indexIdentifiers registers every identifier the record carries.
func (d *Deduper) indexIdentifiers(record *domain.PaperRecord, idx int) {
	for _, key := range identifierKeys(record) {
		if _, ok := d.byIdentifier[key]; !ok {
			d.byIdentifier[key] = idx
		}
	}
}

// identifierKeys returns the record's qualified identifiers in
// precedence order: DOI, PMID, PMC ID, arXiv ID.
func identifierKeys(record *domain.PaperRecord) []string {
	keys := make([]string, 0, 4)
	if record.IDs.DOI != "" {
		keys = append(keys, "doi:"+strings.ToLower(record.IDs.DOI))
	}
	if record.IDs.PMID != "" {
		keys = append(keys, "pmid:"+record.IDs.PMID)
	}
	if record.IDs.PMCID != "" {
		keys = append(keys, "pmc:"+strings.ToUpper(record.IDs.PMCID))
	}
	if record.IDs.ArXivID != "" {
		keys = append(keys, "arxiv:"+strings.ToLower(record.IDs.ArXivID))
	}
	return keys
}

// yearsCompatible allows a one-year skew between records of the same
// work, covering preprint/published splits and late indexing. Records
// missing a year match anything.
func yearsCompatible(a, b int) bool {
	if a == 0 || b == 0 {
		return true
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff <= 1
}

// merge folds the duplicate into the survivor. The survivor's non-empty
// fields win; empty fields are filled from the duplicate. Keywords are
// unioned, the access hint is promoted when the duplicate knows more,
// and the first non-empty PDF URL is kept.
func merge(survivor, dup *domain.PaperRecord) {
	if survivor.IDs.DOI == "" {
		survivor.IDs.DOI = dup.IDs.DOI
	}
	if survivor.IDs.PMID == "" {
		survivor.IDs.PMID = dup.IDs.PMID
	}
	if survivor.IDs.PMCID == "" {
		survivor.IDs.PMCID = dup.IDs.PMCID
	}
	if survivor.IDs.ArXivID == "" {
		survivor.IDs.ArXivID = dup.IDs.ArXivID
	}

	if survivor.Abstract == "" {
		survivor.Abstract = dup.Abstract
	}
	if survivor.Journal == "" {
		survivor.Journal = dup.Journal
	}
	if survivor.Year == 0 {
		survivor.Year = dup.Year
	}
	if len(survivor.Authors) == 0 {
		survivor.Authors = dup.Authors
	}

	survivor.Keywords = unionKeywords(survivor.Keywords, dup.Keywords)

	if survivor.PDFURL == "" {
		survivor.PDFURL = dup.PDFURL
	}

	if accessRank(dup.AccessHint) > accessRank(survivor.AccessHint) {
		survivor.AccessHint = dup.AccessHint
	}
}

// accessRank orders access hints so merges only ever promote.
func accessRank(h domain.AccessHint) int {
	switch h {
	case domain.AccessFulltextAvailable:
		return 2
	case domain.AccessAbstractOnly:
		return 1
	default:
		return 0
	}
}

// unionKeywords appends keywords from b not already present in a,
// comparing case-insensitively and preserving order.
func unionKeywords(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a))
	for _, kw := range a {
		seen[strings.ToLower(kw)] = struct{}{}
	}
	for _, kw := range b {
		lower := strings.ToLower(kw)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		a = append(a, kw)
	}
	return a
}

// String implements fmt.Stringer for debug logging.
func (o Outcome) String() string {
	if o.Kept {
		return "kept"
	}
	return fmt.Sprintf("merged into %s", o.MergedInto)
}
