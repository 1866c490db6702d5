package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AccessHint describes how much of a paper a source expects to be retrievable.
type AccessHint string

const (
	AccessAbstractOnly      AccessHint = "abstract_only"
	AccessFulltextAvailable AccessHint = "fulltext_available"
	AccessUnknown           AccessHint = "unknown"
)

// Identifiers holds the cross-identifiers a paper may carry.
// A record must have at least one non-empty identifier; SourceID always
// qualifies because every adapter assigns one.
type Identifiers struct {
	DOI     string `json:"doi,omitempty"`
	PMID    string `json:"pmid,omitempty"`
	PMCID   string `json:"pmc_id,omitempty"`
	ArXivID string `json:"arxiv_id,omitempty"`
}

// Translation holds translated fields for one target language.
// Source-language fields on the record are never overwritten.
type Translation struct {
	Title        string    `json:"title,omitempty"`
	Abstract     string    `json:"abstract,omitempty"`
	Sections     string    `json:"sections,omitempty"`
	TranslatedAt time.Time `json:"translated_at"`
}

// Provenance records where a paper came from and what happened to it.
type Provenance struct {
	FetchedAt    time.Time  `json:"fetched_at"`
	DownloadedAt *time.Time `json:"downloaded_at,omitempty"`
	ExtractedAt  *time.Time `json:"extracted_at,omitempty"`
	SkipReason   SkipReason `json:"skip_reason,omitempty"`
}

// PaperRecord is the normalized bibliographic entity produced by a source
// adapter, merged by the deduper and persisted under its owning job.
type PaperRecord struct {
	// Key is the storage key this record lives under, pinned when the
	// record is first admitted. Merges may enrich identifiers afterwards
	// without moving the record's artifacts.
	Key         string                 `json:"paper_key,omitempty"`
	SourceTag   SourceType             `json:"source_tag"`
	SourceID    string                 `json:"source_id"`
	IDs         Identifiers            `json:"identifiers"`
	Title       string                 `json:"title"`
	Authors     []string               `json:"authors,omitempty"`
	Abstract    string                 `json:"abstract,omitempty"`
	Journal     string                 `json:"journal,omitempty"`
	Year        int                    `json:"year,omitempty"`
	Keywords    []string               `json:"keywords,omitempty"`
	PDFURL      string                 `json:"pdf_url,omitempty"`
	AccessHint  AccessHint             `json:"access_hint"`
	Translation map[string]Translation `json:"translations,omitempty"`
	Provenance  Provenance             `json:"provenance"`
}

// NewPaperRecord constructs a PaperRecord and enforces the model invariants:
// non-empty title, a source tag and source ID, and at least one identifier
// (the source ID qualifies). It returns a ValidationError otherwise.
func NewPaperRecord(source SourceType, sourceID, title string) (*PaperRecord, error) {
	if !IsValidSourceType(source) {
		return nil, NewValidationError("source_tag", fmt.Sprintf("unknown source %q", source))
	}
	if strings.TrimSpace(sourceID) == "" {
		return nil, NewValidationError("source_id", "source ID is required")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, NewValidationError("title", "title is required")
	}
	return &PaperRecord{
		SourceTag:  source,
		SourceID:   sourceID,
		Title:      title,
		AccessHint: AccessUnknown,
		Provenance: Provenance{FetchedAt: time.Now().UTC()},
	}, nil
}

// HasPDFURL returns true if the record carries a candidate PDF location.
func (p *PaperRecord) HasPDFURL() bool {
	return strings.TrimSpace(p.PDFURL) != ""
}

// unsafeKeyChars matches every run of characters that may not appear in a
// filesystem path component of a paper key.
var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// maxKeyLength caps paper keys so derived directory names stay portable.
const maxKeyLength = 120

// PaperKey returns the filesystem-safe key for this record. Once pinned
// via FreezeKey the stored key is returned unchanged; until then the key
// is derived from identifier precedence. The stable key is the sole
// mechanism for idempotent resumption.
func (p *PaperRecord) PaperKey() string {
	if p.Key != "" {
		return p.Key
	}
	return p.deriveKey()
}

// FreezeKey pins the derived key on the record so later identifier
// enrichment cannot move it. Idempotent; returns the pinned key.
func (p *PaperRecord) FreezeKey() string {
	if p.Key == "" {
		p.Key = p.deriveKey()
	}
	return p.Key
}

// deriveKey computes the key from identifier precedence: DOI, then PMID,
// then arXiv ID, then source_tag plus source_id.
func (p *PaperRecord) deriveKey() string {
	switch {
	case p.IDs.DOI != "":
		return sanitizeKey("doi-" + strings.ToLower(p.IDs.DOI))
	case p.IDs.PMID != "":
		return sanitizeKey("pmid-" + p.IDs.PMID)
	case p.IDs.ArXivID != "":
		return sanitizeKey("arxiv-" + p.IDs.ArXivID)
	default:
		return sanitizeKey(string(p.SourceTag) + "-" + p.SourceID)
	}
}

// sanitizeKey collapses unsafe character runs to a single dash and trims
// leading/trailing separators.
func sanitizeKey(raw string) string {
	key := unsafeKeyChars.ReplaceAllString(raw, "-")
	key = strings.Trim(key, "-.")
	if len(key) > maxKeyLength {
		key = key[:maxKeyLength]
		key = strings.TrimRight(key, "-.")
	}
	return key
}

// titlePunct matches characters stripped during title normalization.
var titlePunct = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// titleSpace matches whitespace runs collapsed during title normalization.
var titleSpace = regexp.MustCompile(`\s+`)

// NormalizeTitle lowercases a title, strips punctuation and collapses
// whitespace so near-identical titles from different sources compare equal.
func NormalizeTitle(title string) string {
	t := strings.ToLower(title)
	t = titlePunct.ReplaceAllString(t, "")
	t = titleSpace.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}
