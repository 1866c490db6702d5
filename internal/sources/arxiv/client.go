package arxiv

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
	"github.com/spinalsurgery-research/acquisition-service/internal/sources"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRateLimit is the default rate limit (arXiv asks for no more
	// than one request every three seconds; 1/s with a small burst is a
	// practical ceiling the limiter enforces per page).
	DefaultRateLimit = 1.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per page.
	DefaultMaxResults = 20

	// sourceName is the human-readable name for this source.
	sourceName = "arXiv"
)

// arxivIDRegex extracts the arXiv ID from the entry URL.
// Matches "http://arxiv.org/abs/2301.12345v1" and legacy forms like
// "http://arxiv.org/abs/hep-th/9901001v1".
var arxivIDRegex = regexp.MustCompile(`arxiv\.org/abs/(.+?)(?:v\d+)?$`)

// Config holds configuration for the arXiv client.
type Config struct {
	// BaseURL is the arXiv API base URL.
	BaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults is the maximum results per search page.
	MaxResults int

	// Enabled indicates whether this source is enabled for searches.
	Enabled bool
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client implements the sources.Adapter interface for arXiv.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

// Ensure Client implements the Adapter interface.
var _ sources.Adapter = (*Client)(nil)

// New creates a new arXiv client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpClient := sources.NewHTTPClient(sources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// NewWithHTTPClient creates an arXiv client with a custom HTTP client.
// Useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search retrieves one page of arXiv results via the Atom query API.
func (c *Client) Search(ctx context.Context, query sources.SearchQuery) (*sources.SearchPage, error) {
	if !c.config.Enabled {
		return nil, errors.New("arxiv source is disabled")
	}

	startTime := time.Now()

	searchURL, err := c.buildSearchURL(query)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var feed Feed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	papers := make([]*domain.PaperRecord, 0, len(feed.Entries))
	for i := range feed.Entries {
		record := c.entryToRecord(&feed.Entries[i])
		if record != nil {
			papers = append(papers, record)
		}
	}

	nextOffset := query.Offset + len(feed.Entries)
	hasMore := nextOffset < feed.TotalResults

	return &sources.SearchPage{
		Papers:         papers,
		TotalResults:   feed.TotalResults,
		HasMore:        hasMore,
		NextOffset:     nextOffset,
		Source:         domain.SourceTypeArXiv,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeArXiv
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// buildSearchURL constructs the arXiv query API URL.
func (c *Client) buildSearchURL(query sources.SearchQuery) (string, error) {
	baseURL, err := url.Parse(c.config.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}

	baseURL.Path = strings.TrimRight(baseURL.Path, "/") + "/query"

	q := url.Values{}
	q.Set("search_query", "all:"+query.Query)

	maxResults := query.MaxResults
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}
	q.Set("max_results", strconv.Itoa(maxResults))

	if query.Offset > 0 {
		q.Set("start", strconv.Itoa(query.Offset))
	}

	q.Set("sortBy", "relevance")
	q.Set("sortOrder", "descending")

	baseURL.RawQuery = q.Encode()
	return baseURL.String(), nil
}

// entryToRecord converts an arXiv Atom entry to a PaperRecord.
// Entries without an extractable arXiv ID or title are dropped.
func (c *Client) entryToRecord(entry *Entry) *domain.PaperRecord {
	if entry == nil {
		return nil
	}

	arxivID := extractArXivID(entry.ID)
	if arxivID == "" {
		return nil
	}

	title := normalizeWhitespace(entry.Title)
	record, err := domain.NewPaperRecord(domain.SourceTypeArXiv, arxivID, title)
	if err != nil {
		return nil
	}

	record.IDs.ArXivID = arxivID
	record.IDs.DOI = strings.TrimSpace(entry.DOI)
	record.Abstract = normalizeWhitespace(entry.Summary)
	record.Journal = strings.TrimSpace(entry.JournalRef)

	if entry.Published != "" {
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			record.Year = t.Year()
		}
	}

	for _, a := range entry.Authors {
		name := strings.TrimSpace(a.Name)
		if name != "" {
			record.Authors = append(record.Authors, name)
		}
	}

	for _, cat := range entry.Categories {
		if cat.Term != "" {
			record.Keywords = append(record.Keywords, cat.Term)
		}
	}

	pdfURL := ""
	for _, link := range entry.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			pdfURL = link.Href
			break
		}
	}
	if pdfURL == "" {
		pdfURL = "https://arxiv.org/pdf/" + arxivID
	}
	record.PDFURL = pdfURL

	// Every arXiv entry is open access.
	record.AccessHint = domain.AccessFulltextAvailable

	return record
}

// extractArXivID extracts the arXiv ID from the full entry URL,
// dropping any version suffix: "http://arxiv.org/abs/2301.12345v1"
// yields "2301.12345".
func extractArXivID(entryURL string) string {
	matches := arxivIDRegex.FindStringSubmatch(entryURL)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// normalizeWhitespace trims and collapses whitespace runs; arXiv wraps
// titles and abstracts with newlines and indentation.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
