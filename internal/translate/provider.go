package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

// ErrProviderTransient marks failures worth retrying: network errors,
// rate limiting, and provider-side 5xx responses.
var ErrProviderTransient = errors.New("translate: transient provider error")

// Provider translates a single chunk of text. Implementations must
// distinguish transient failures (wrap ErrProviderTransient) from
// permanent ones (wrap domain.ErrTranslationUnavailable).
type Provider interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
	Name() string
}

// HTTPProviderConfig configures the JSON-over-HTTP provider.
type HTTPProviderConfig struct {
	// Endpoint is the provider's translate URL.
	Endpoint string
	// APIKey authenticates requests, sent as a bearer token.
	APIKey string
	// Timeout is the per-request timeout. Default: 30 seconds.
	Timeout time.Duration
}

// HTTPProvider is a vendor-neutral JSON translation client. The wire
// shape matches the common REST translation contract: POST
// {text, target_language} and read back {translated_text}.
type HTTPProvider struct {
	config HTTPProviderConfig
	client *http.Client
}

// NewHTTPProvider creates an HTTPProvider.
func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// NewHTTPProviderWithClient creates an HTTPProvider with a custom HTTP
// client. Useful for testing.
func NewHTTPProviderWithClient(cfg HTTPProviderConfig, client *http.Client) *HTTPProvider {
	p := NewHTTPProvider(cfg)
	p.client = client
	return p
}

var _ Provider = (*HTTPProvider)(nil)

// Name implements Provider.
func (p *HTTPProvider) Name() string {
	return "http"
}

type translateRequest struct {
	Text           string `json:"text"`
	TargetLanguage string `json:"target_language"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
	Error          string `json:"error,omitempty"`
}

// Translate implements Provider.
func (p *HTTPProvider) Translate(ctx context.Context, text, targetLang string) (string, error) {
	body, err := json.Marshal(translateRequest{Text: text, TargetLanguage: targetLang})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", domain.ErrTranslationUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", domain.ErrTranslationUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrProviderTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrProviderTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// proceed
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: HTTP %d", ErrProviderTransient, resp.StatusCode)
	default:
		return "", fmt.Errorf("%w: HTTP %d: %s", domain.ErrTranslationUnavailable, resp.StatusCode, firstLine(data))
	}

	var parsed translateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrTranslationUnavailable, err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("%w: %s", domain.ErrTranslationUnavailable, parsed.Error)
	}
	return parsed.TranslatedText, nil
}

func firstLine(data []byte) string {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}
	if len(data) > 200 {
		data = data[:200]
	}
	return string(data)
}
