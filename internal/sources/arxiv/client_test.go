package arxiv

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

const atomFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <title type="html">ArXiv Query: search_query=all:spinal robotics</title>
  <opensearch:totalResults>42</opensearch:totalResults>
  <opensearch:startIndex>0</opensearch:startIndex>
  <opensearch:itemsPerPage>2</opensearch:itemsPerPage>
  <entry>
    <id>http://arxiv.org/abs/2301.12345v2</id>
    <updated>2023-02-01T10:00:00Z</updated>
    <published>2023-01-15T18:30:00Z</published>
    <title>Robot-Assisted Pedicle Screw Placement:
  A Deep Learning Approach</title>
    <summary>  We present a learning-based planning system for
  pedicle screw trajectories in spinal fusion surgery.
    </summary>
    <author>
      <name>Jane Doe</name>
    </author>
    <author>
      <name>Wei Zhang</name>
    </author>
    <arxiv:doi xmlns:arxiv="http://arxiv.org/schemas/atom">10.1000/robot.2023.01</arxiv:doi>
    <link href="http://arxiv.org/abs/2301.12345v2" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2301.12345v2" rel="related" type="application/pdf"/>
    <arxiv:primary_category xmlns:arxiv="http://arxiv.org/schemas/atom" term="cs.RO" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.RO" scheme="http://arxiv.org/schemas/atom"/>
    <category term="cs.LG" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2205.00001v1</id>
    <updated>2022-05-01T00:00:00Z</updated>
    <published>2022-05-01T00:00:00Z</published>
    <title>Spine Segmentation in CT Volumes</title>
    <summary>A segmentation benchmark.</summary>
    <author>
      <name>Alex Kim</name>
    </author>
    <link href="http://arxiv.org/abs/2205.00001v1" rel="alternate" type="text/html"/>
    <category term="eess.IV" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
</feed>`

const atomEmptyFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">
  <opensearch:totalResults>0</opensearch:totalResults>
  <opensearch:startIndex>0</opensearch:startIndex>
  <opensearch:itemsPerPage>0</opensearch:itemsPerPage>
</feed>`

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
	assert.Equal(t, domain.SourceTypeArXiv, client.SourceType())
	assert.Equal(t, "arXiv", client.Name())
	assert.True(t, client.IsEnabled())
}

func TestClient_Search(t *testing.T) {
	t.Run("parses atom feed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.URL.Query().Get("search_query"), "all:")
			w.Header().Set("Content-Type", "application/atom+xml")
			w.Write([]byte(atomFeedXML))
		}))
		defer server.Close()

		client := createTestClient(server.URL, true)

		page, err := client.Search(context.Background(), sources.SearchQuery{
			Query:      "spinal robotics",
			MaxResults: 2,
		})
		require.NoError(t, err)
		require.NotNil(t, page)

		assert.Equal(t, 42, page.TotalResults)
		assert.True(t, page.HasMore)
		assert.Equal(t, 2, page.NextOffset)
		assert.Equal(t, domain.SourceTypeArXiv, page.Source)
		require.Len(t, page.Papers, 2)

		paper1 := page.Papers[0]
		assert.Equal(t, "2301.12345", paper1.SourceID)
		assert.Equal(t, "2301.12345", paper1.IDs.ArXivID)
		assert.Equal(t, "10.1000/robot.2023.01", paper1.IDs.DOI)
		assert.Equal(t, "Robot-Assisted Pedicle Screw Placement: A Deep Learning Approach", paper1.Title)
		assert.Contains(t, paper1.Abstract, "pedicle screw trajectories")
		assert.Equal(t, []string{"Jane Doe", "Wei Zhang"}, paper1.Authors)
		assert.Equal(t, 2023, paper1.Year)
		assert.Equal(t, "http://arxiv.org/pdf/2301.12345v2", paper1.PDFURL)
		assert.Equal(t, domain.AccessFulltextAvailable, paper1.AccessHint)
		assert.Contains(t, paper1.Keywords, "cs.RO")

		// Second entry has no pdf link; the URL is derived from the ID.
		paper2 := page.Papers[1]
		assert.Equal(t, "2205.00001", paper2.IDs.ArXivID)
		assert.Empty(t, paper2.IDs.DOI)
		assert.Equal(t, "https://arxiv.org/pdf/2205.00001", paper2.PDFURL)
		assert.Equal(t, domain.AccessFulltextAvailable, paper2.AccessHint)
	})

	t.Run("empty feed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/atom+xml")
			w.Write([]byte(atomEmptyFeedXML))
		}))
		defer server.Close()

		client := createTestClient(server.URL, true)

		page, err := client.Search(context.Background(), sources.SearchQuery{Query: "nothing"})
		require.NoError(t, err)
		assert.Empty(t, page.Papers)
		assert.False(t, page.HasMore)
	})

	t.Run("disabled source returns error", func(t *testing.T) {
		client := New(Config{Enabled: false})

		_, err := client.Search(context.Background(), sources.SearchQuery{Query: "spine"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disabled")
	})

	t.Run("server error is wrapped", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		client := createTestClient(server.URL, true)

		_, err := client.Search(context.Background(), sources.SearchQuery{Query: "spine"})
		require.Error(t, err)

		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	})
}

func TestExtractArXivID(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"modern id with version", "http://arxiv.org/abs/2301.12345v1", "2301.12345"},
		{"modern id without version", "http://arxiv.org/abs/2301.12345", "2301.12345"},
		{"legacy id", "http://arxiv.org/abs/hep-th/9901001v1", "hep-th/9901001"},
		{"not an arxiv url", "http://example.com/paper/1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractArXivID(tt.url))
		})
	}
}
