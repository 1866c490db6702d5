package semanticscholar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
	"github.com/spinalsurgery-research/acquisition-service/internal/sources"
)

const searchResponseJSON = `{
	"total": 153,
	"offset": 0,
	"next": 2,
	"data": [
		{
			"paperId": "649def34f8be52c8b66281af98ae884c09aef38b",
			"externalIds": {
				"DOI": "10.1016/j.spinee.2021.05.011",
				"PubMed": "34010682"
			},
			"title": "Sagittal Alignment After Adult Spinal Deformity Surgery",
			"abstract": "We evaluated sagittal alignment restoration in 87 patients.",
			"year": 2021,
			"venue": "The Spine Journal",
			"journal": {"name": "The Spine Journal", "volume": "21"},
			"authors": [
				{"authorId": "1", "name": "Maria Garcia"},
				{"authorId": "2", "name": "Tom Lee"}
			],
			"isOpenAccess": true,
			"openAccessPdf": {"url": "https://example.org/papers/sagittal.pdf", "status": "HYBRID"},
			"fieldsOfStudy": ["Medicine"]
		},
		{
			"paperId": "b2c9f6a7",
			"title": "Osteoporosis and Instrumentation Failure",
			"abstract": null,
			"year": 2019,
			"venue": "Clinical Orthopaedics",
			"authors": [{"authorId": "3", "name": "Sam Patel"}],
			"isOpenAccess": false
		}
	]
}`

const searchEmptyResponseJSON = `{"total": 0, "offset": 0, "data": []}`

func createTestClient(baseURL string, enabled bool) *Client {
	cfg := Config{
		BaseURL:   baseURL,
		RateLimit: 1000,
		BurstSize: 1000,
		Timeout:   5 * time.Second,
		Enabled:   enabled,
	}
	httpClient := sources.NewHTTPClient(sources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	})
	return NewWithHTTPClient(cfg, httpClient)
}

func TestNewClient(t *testing.T) {
	client := New(Config{Enabled: true})

	require.NotNil(t, client)
	assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
	assert.Equal(t, DefaultMaxResults, client.config.MaxResults)
	assert.Equal(t, domain.SourceTypeSemanticScholar, client.SourceType())
	assert.Equal(t, "Semantic Scholar", client.Name())
	assert.True(t, client.IsEnabled())
}

func TestClient_Search(t *testing.T) {
	t.Run("parses search response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.URL.Path, "/paper/search")
			assert.Contains(t, r.URL.Query().Get("fields"), "openAccessPdf")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(searchResponseJSON))
		}))
		defer server.Close()

		client := createTestClient(server.URL, true)

		page, err := client.Search(context.Background(), sources.SearchQuery{
			Query:      "spinal deformity",
			MaxResults: 2,
		})
		require.NoError(t, err)
		require.NotNil(t, page)

		assert.Equal(t, 153, page.TotalResults)
		assert.True(t, page.HasMore)
		assert.Equal(t, 2, page.NextOffset)
		assert.Equal(t, domain.SourceTypeSemanticScholar, page.Source)
		require.Len(t, page.Papers, 2)

		paper1 := page.Papers[0]
		assert.Equal(t, "649def34f8be52c8b66281af98ae884c09aef38b", paper1.SourceID)
		assert.Equal(t, "10.1016/j.spinee.2021.05.011", paper1.IDs.DOI)
		assert.Equal(t, "34010682", paper1.IDs.PMID)
		assert.Equal(t, "Sagittal Alignment After Adult Spinal Deformity Surgery", paper1.Title)
		assert.Equal(t, "The Spine Journal", paper1.Journal)
		assert.Equal(t, 2021, paper1.Year)
		assert.Equal(t, []string{"Maria Garcia", "Tom Lee"}, paper1.Authors)
		assert.Equal(t, "https://example.org/papers/sagittal.pdf", paper1.PDFURL)
		assert.Equal(t, domain.AccessFulltextAvailable, paper1.AccessHint)

		paper2 := page.Papers[1]
		assert.Equal(t, "b2c9f6a7", paper2.SourceID)
		assert.Empty(t, paper2.PDFURL)
		assert.Equal(t, domain.AccessAbstractOnly, paper2.AccessHint)
	})

	t.Run("empty response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(searchEmptyResponseJSON))
		}))
		defer server.Close()

		client := createTestClient(server.URL, true)

		page, err := client.Search(context.Background(), sources.SearchQuery{Query: "nothing"})
		require.NoError(t, err)
		assert.Empty(t, page.Papers)
		assert.False(t, page.HasMore)
	})

	t.Run("API error response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": "query is required"}`))
		}))
		defer server.Close()

		client := createTestClient(server.URL, true)

		_, err := client.Search(context.Background(), sources.SearchQuery{Query: ""})
		require.Error(t, err)

		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
		assert.Contains(t, apiErr.Message, "query is required")
	})

	t.Run("disabled source returns error", func(t *testing.T) {
		client := New(Config{Enabled: false})

		_, err := client.Search(context.Background(), sources.SearchQuery{Query: "spine"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disabled")
	})
}
