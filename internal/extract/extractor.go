// Package extract turns downloaded PDFs into plain text and a
// best-effort map of canonical paper sections.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"
)

// ErrEmptyText means no extractor produced any text from the PDF.
var ErrEmptyText = errors.New("extract: no text extracted")

// DefaultMaxPages bounds extraction cost on long documents.
const DefaultMaxPages = 20

// Result is the extraction output for one PDF.
type Result struct {
	// FullText is the concatenated page text.
	FullText string
	// Sections maps canonical section names (abstract, introduction,
	// methods, results, discussion, conclusion) to their text. Only
	// sections whose headings were found are present.
	Sections map[string]string
	// Pages is how many pages were read.
	Pages int
}

// Config holds extractor configuration.
type Config struct {
	// MaxPages caps extraction to the first N pages. Default: 20.
	MaxPages int
}

func (c *Config) applyDefaults() {
	if c.MaxPages == 0 {
		c.MaxPages = DefaultMaxPages
	}
}

// Extractor reads text out of PDF files. The layout-aware row reader
// is tried first; when it yields nothing (image-only rows, unusual
// encodings) the plain-text stream reader runs as a fallback.
type Extractor struct {
	config Config
	logger zerolog.Logger

	// Swappable in tests.
	prepare  func(path string) (string, int, func(), error)
	primary  func(path string, maxPages int) (string, int, error)
	fallback func(path string) (string, error)
}

// NewExtractor creates an Extractor.
func NewExtractor(cfg Config, logger zerolog.Logger) *Extractor {
	cfg.applyDefaults()
	e := &Extractor{
		config:   cfg,
		logger:   logger.With().Str("component", "extractor").Logger(),
		primary:  extractByRows,
		fallback: extractPlainText,
	}
	e.prepare = e.preparePDF
	return e
}

// Extract produces text and sections from the PDF at path. Oversized
// documents are trimmed to the page budget before reading. Errors are
// per-paper; callers record a warning and move on.
func (e *Extractor) Extract(ctx context.Context, pdfPath string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	readPath, pages, cleanup, err := e.prepare(pdfPath)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	text, readPages, err := e.primary(readPath, e.config.MaxPages)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			e.logger.Debug().Err(err).Str("path", pdfPath).Msg("row extraction failed, trying plain text")
		}
		text, err = e.fallback(readPath)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", filepath.Base(pdfPath), err)
		}
		readPages = pages
	}

	text = normalizeText(text)
	if text == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyText, filepath.Base(pdfPath))
	}

	return &Result{
		FullText: text,
		Sections: FindSections(text),
		Pages:    readPages,
	}, nil
}

// preparePDF validates the document and trims it to the page budget
// when it is longer. Returns the path to read, the page count that
// will be read, and a cleanup func for any temporary file.
func (e *Extractor) preparePDF(pdfPath string) (string, int, func(), error) {
	noop := func() {}

	pageCount, err := api.PageCountFile(pdfPath)
	if err != nil {
		return "", 0, noop, fmt.Errorf("page count %s: %w", filepath.Base(pdfPath), err)
	}
	if pageCount <= e.config.MaxPages {
		return pdfPath, pageCount, noop, nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(pdfPath), ".trim-*.pdf")
	if err != nil {
		return "", 0, noop, fmt.Errorf("create trim file: %w", err)
	}
	tmp.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	selection := []string{fmt.Sprintf("1-%d", e.config.MaxPages)}
	if err := api.TrimFile(pdfPath, tmp.Name(), selection, conf); err != nil {
		os.Remove(tmp.Name())
		return "", 0, noop, fmt.Errorf("trim %s to %d pages: %w", filepath.Base(pdfPath), e.config.MaxPages, err)
	}

	e.logger.Debug().
		Str("path", pdfPath).
		Int("pages", pageCount).
		Int("budget", e.config.MaxPages).
		Msg("trimmed PDF to page budget")

	cleanup := func() { os.Remove(tmp.Name()) }
	return tmp.Name(), e.config.MaxPages, cleanup, nil
}

// extractByRows reads text page by page, preserving row order.
func extractByRows(path string, maxPages int) (string, int, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	if total > maxPages {
		total = maxPages
	}

	var sb strings.Builder
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range rows {
			for _, word := range row.Content {
				sb.WriteString(word.S)
				sb.WriteByte(' ')
			}
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	return sb.String(), total, nil
}

// extractPlainText reads the whole content stream in one pass.
func extractPlainText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	r, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("plain text: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return string(data), nil
}

// normalizeText collapses runs of blank lines and trims whitespace
// per line while keeping line structure for section scanning.
func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(strings.Join(strings.Fields(line), " "), " ")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
