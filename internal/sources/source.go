// Package sources provides clients for searching academic paper databases.
//
// Each supported database (PubMed, arXiv, Semantic Scholar) implements the
// Adapter interface, letting the acquisition pipeline page through result
// sets from several sources with a unified API. Adapters normalize
// source-specific responses into domain.PaperRecord values; they never
// deduplicate or persist anything themselves.
//
// Example usage:
//
//	adapter := pubmed.New(cfg, httpClient)
//	page, err := adapter.Search(ctx, sources.SearchQuery{
//		Query:      "lumbar interbody fusion outcomes",
//		MaxResults: 20,
//	})
package sources

import (
	"context"
	"time"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

// SearchQuery defines the parameters for one page of a source search.
type SearchQuery struct {
	// Query is the search expression (required). The format varies by
	// source; adapters pass it through without rewriting.
	Query string

	// MaxResults limits the number of records returned for this page.
	// Sources may impose their own smaller maximums. Zero uses the
	// source default.
	MaxResults int

	// Offset is the starting position for paginated retrieval.
	Offset int
}

// SearchPage holds one page of normalized results from one source.
type SearchPage struct {
	// Papers contains the normalized records for this page. May be
	// empty when the source has no further matches.
	Papers []*domain.PaperRecord

	// TotalResults is the source's estimate of the total number of
	// matches for the query, independent of pagination. Sources that
	// do not report a total set it to -1.
	TotalResults int

	// HasMore indicates whether another page is available.
	HasMore bool

	// NextOffset is the offset to request for the following page.
	// Only meaningful when HasMore is true.
	NextOffset int

	// Source identifies which adapter produced this page.
	Source domain.SourceType

	// SearchDuration is the wall time spent on this page, including
	// network latency and response parsing.
	SearchDuration time.Duration
}

// Adapter is implemented by every academic source client.
type Adapter interface {
	// Search retrieves one page of results for the given query.
	// A failed page returns a nil SearchPage and a non-nil error;
	// adapters wrap errors with source context so callers can report
	// which source degraded.
	//
	// Implementations must:
	//   - Respect context cancellation
	//   - Apply their source's rate limits before each request
	//   - Normalize responses into domain.PaperRecord
	Search(ctx context.Context, query SearchQuery) (*SearchPage, error)

	// SourceType returns the type identifier for this source.
	SourceType() domain.SourceType

	// Name returns a human-readable source name for logging and events.
	Name() string

	// IsEnabled reports whether this source may be used. A source may
	// be disabled by configuration or a missing required API key.
	IsEnabled() bool
}
