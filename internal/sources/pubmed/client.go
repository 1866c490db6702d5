package pubmed

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
	"github.com/spinalsurgery-research/acquisition-service/internal/sources"
)

const (
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key (3 requests/second).
	// With an API key the limit increases to 10 requests/second.
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search page.
	DefaultMaxResults = 20

	// EFetchBatchSize caps the number of PMIDs sent to a single efetch
	// call so request URLs stay well within NCBI limits.
	EFetchBatchSize = 20

	// sourceName is the human-readable name for this source.
	sourceName = "PubMed"
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL is the base URL for the E-utilities API.
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits.
	// Optional but recommended for production use.
	APIKey string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults is the default maximum results per search page.
	MaxResults int

	// Enabled indicates whether this source is enabled.
	Enabled bool
}

// applyDefaults applies default values to the config.
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

// Client implements the sources.Adapter interface for PubMed.
type Client struct {
	config     Config
	httpClient *sources.HTTPClient
}

// Compile-time check that Client implements Adapter.
var _ sources.Adapter = (*Client)(nil)

// New creates a new PubMed client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	httpCfg := sources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	}

	return &Client{
		config:     cfg,
		httpClient: sources.NewHTTPClient(httpCfg),
	}
}

// NewWithHTTPClient creates a PubMed client with a custom HTTP client.
// Useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *sources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Search retrieves one page of PubMed results. It performs the two-phase
// E-utilities flow: esearch returns PMIDs, then efetch retrieves article
// metadata in batches of at most EFetchBatchSize IDs. A failed efetch
// batch fails the whole page so the caller can surface a source warning.
func (c *Client) Search(ctx context.Context, query sources.SearchQuery) (*sources.SearchPage, error) {
	if !c.config.Enabled {
		return nil, errors.New("pubmed source is disabled")
	}

	startTime := time.Now()

	searchResult, err := c.esearch(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("esearch failed: %w", err)
	}

	if searchResult.ErrorList != nil && len(searchResult.ErrorList.PhraseNotFound) > 0 {
		// Phrases not found produce an empty page, not an error.
		return &sources.SearchPage{
			Papers:         []*domain.PaperRecord{},
			TotalResults:   0,
			Source:         domain.SourceTypePubMed,
			SearchDuration: time.Since(startTime),
		}, nil
	}

	if len(searchResult.IDList.IDs) == 0 {
		return &sources.SearchPage{
			Papers:         []*domain.PaperRecord{},
			TotalResults:   searchResult.Count,
			HasMore:        false,
			NextOffset:     query.Offset,
			Source:         domain.SourceTypePubMed,
			SearchDuration: time.Since(startTime),
		}, nil
	}

	papers := make([]*domain.PaperRecord, 0, len(searchResult.IDList.IDs))
	ids := searchResult.IDList.IDs
	for start := 0; start < len(ids); start += EFetchBatchSize {
		end := start + EFetchBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		articles, err := c.efetch(ctx, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("efetch failed: %w", err)
		}

		for _, article := range articles.Articles {
			record := c.articleToRecord(article)
			if record != nil {
				papers = append(papers, record)
			}
		}
	}

	nextOffset := query.Offset + len(ids)
	hasMore := nextOffset < searchResult.Count

	return &sources.SearchPage{
		Papers:         papers,
		TotalResults:   searchResult.Count,
		HasMore:        hasMore,
		NextOffset:     nextOffset,
		Source:         domain.SourceTypePubMed,
		SearchDuration: time.Since(startTime),
	}, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypePubMed
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether the source is enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// esearch performs a relevance-sorted search and returns matching PMIDs.
func (c *Client) esearch(ctx context.Context, query sources.SearchQuery) (*ESearchResult, error) {
	u, err := url.Parse(c.config.BaseURL + "/esearch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("term", query.Query)
	q.Set("retmode", "xml")
	q.Set("sort", "relevance")
	q.Set("usehistory", "n")

	maxResults := query.MaxResults
	if maxResults <= 0 {
		maxResults = c.config.MaxResults
	}
	q.Set("retmax", strconv.Itoa(maxResults))

	if query.Offset > 0 {
		q.Set("retstart", strconv.Itoa(query.Offset))
	}

	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}

	u.RawQuery = q.Encode()

	var result ESearchResult
	if err := c.getXML(ctx, u.String(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// efetch retrieves full article metadata for the given PMIDs.
// Callers must keep batches at or below EFetchBatchSize.
func (c *Client) efetch(ctx context.Context, pmids []string) (*PubmedArticleSet, error) {
	if len(pmids) == 0 {
		return &PubmedArticleSet{}, nil
	}

	u, err := url.Parse(c.config.BaseURL + "/efetch.fcgi")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	q := u.Query()
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(pmids, ","))
	q.Set("retmode", "xml")
	q.Set("rettype", "abstract")

	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}

	u.RawQuery = q.Encode()

	var result PubmedArticleSet
	if err := c.getXML(ctx, u.String(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// getXML executes a GET request and decodes the XML response into dst.
func (c *Client) getXML(ctx context.Context, rawURL string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	if err := xml.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("failed to parse XML response: %w", err)
	}
	return nil
}

// articleToRecord converts a PubmedArticle to a domain.PaperRecord.
// Articles without a usable title are dropped.
func (c *Client) articleToRecord(article PubmedArticle) *domain.PaperRecord {
	citation := article.MedlineCitation
	pubmedData := article.PubmedData

	record, err := domain.NewPaperRecord(domain.SourceTypePubMed, citation.PMID.Value, citation.Article.ArticleTitle)
	if err != nil {
		return nil
	}

	record.IDs.PMID = citation.PMID.Value
	record.IDs.DOI = extractDOI(citation.Article, pubmedData)
	for _, aid := range pubmedData.ArticleIdList.ArticleIds {
		if aid.IdType == "pmc" {
			record.IDs.PMCID = aid.Value
			break
		}
	}

	record.Abstract = extractAbstract(citation.Article.Abstract)
	record.Authors = extractAuthors(citation.Article.AuthorList)
	record.Year = extractYear(citation.Article)

	journal := citation.Article.Journal.Title
	if journal == "" {
		journal = citation.Article.Journal.ISOAbbreviation
	}
	record.Journal = journal

	if citation.KeywordList != nil {
		for _, kw := range citation.KeywordList.Keywords {
			if v := strings.TrimSpace(kw.Value); v != "" {
				record.Keywords = append(record.Keywords, v)
			}
		}
	}

	// A PMC deposit means an open-access PDF should exist.
	if record.IDs.PMCID != "" {
		record.PDFURL = PMCArticlePDFURL(record.IDs.PMCID)
		record.AccessHint = domain.AccessFulltextAvailable
	} else {
		record.AccessHint = domain.AccessAbstractOnly
	}

	return record
}

// PMCArticlePDFURL returns the PubMed Central PDF location for a PMCID.
func PMCArticlePDFURL(pmcid string) string {
	id := strings.TrimPrefix(pmcid, "PMC")
	return fmt.Sprintf("https://www.ncbi.nlm.nih.gov/pmc/articles/PMC%s/pdf/", id)
}

// extractDOI extracts the DOI from article metadata.
// ELocationID is checked first, then ArticleIdList.
func extractDOI(article Article, pubmedData PubmedData) string {
	for _, eloc := range article.ELocationID {
		if eloc.EIdType == "doi" && (eloc.Valid == "" || eloc.Valid == "Y") {
			return eloc.Value
		}
	}

	for _, aid := range pubmedData.ArticleIdList.ArticleIds {
		if aid.IdType == "doi" {
			return aid.Value
		}
	}

	return ""
}

// extractYear returns the publication year, preferring the electronic
// ArticleDate and falling back to the journal issue PubDate.
func extractYear(article Article) int {
	for _, ad := range article.ArticleDate {
		if ad.DateType == "epublish" || ad.DateType == "Electronic" || ad.DateType == "" {
			if y, err := strconv.Atoi(ad.Year); err == nil {
				return y
			}
		}
	}

	pubDate := article.Journal.JournalIssue.PubDate
	if pubDate.Year != "" {
		if y, err := strconv.Atoi(pubDate.Year); err == nil {
			return y
		}
	}

	// MedlineDate can be "2020 Jan-Feb", "2020 Spring", "2020-2021", etc.
	if pubDate.MedlineDate != "" {
		parts := strings.Fields(pubDate.MedlineDate)
		if len(parts) > 0 {
			yearStr := strings.Split(parts[0], "-")[0]
			if y, err := strconv.Atoi(yearStr); err == nil {
				return y
			}
		}
	}

	return 0
}

// extractAbstract joins structured abstract sections. Labeled sections
// are rendered as "LABEL: text" so the structure survives flattening.
func extractAbstract(abstract *Abstract) string {
	if abstract == nil || len(abstract.AbstractTexts) == 0 {
		return ""
	}

	if len(abstract.AbstractTexts) == 1 && abstract.AbstractTexts[0].Label == "" {
		return strings.TrimSpace(abstract.AbstractTexts[0].Value)
	}

	var parts []string
	for _, at := range abstract.AbstractTexts {
		text := strings.TrimSpace(at.Value)
		if text == "" {
			continue
		}
		if at.Label != "" {
			parts = append(parts, at.Label+": "+text)
		} else {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " ")
}

// extractAuthors flattens the author list into display names.
func extractAuthors(authorList *AuthorList) []string {
	if authorList == nil || len(authorList.Authors) == 0 {
		return nil
	}

	authors := make([]string, 0, len(authorList.Authors))
	for _, a := range authorList.Authors {
		if a.ValidYN == "N" {
			continue
		}

		var name string
		if a.CollectiveName != "" {
			name = a.CollectiveName
		} else {
			nameParts := make([]string, 0, 2)
			if a.ForeName != "" {
				nameParts = append(nameParts, a.ForeName)
			}
			if a.LastName != "" {
				nameParts = append(nameParts, a.LastName)
			}
			name = strings.Join(nameParts, " ")
		}

		if name == "" {
			continue
		}
		authors = append(authors, name)
	}

	return authors
}
