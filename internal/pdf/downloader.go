// Package pdf provides downloading and validation of paper PDFs.
package pdf

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

// pdfMagic is the byte prefix every PDF starts with.
var pdfMagic = []byte("%PDF-")

// ErrDownloadFailed wraps network and HTTP failures during download.
var ErrDownloadFailed = errors.New("pdf: download failed")

// SkipError marks a download that permanently failed for one paper.
// Skips never fail the owning job; the reason lands in metadata.json.
type SkipError struct {
	Reason domain.SkipReason
	Cause  error
}

// Error implements the error interface.
func (e *SkipError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("skipped (%s): %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("skipped (%s)", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *SkipError) Unwrap() error {
	return e.Cause
}

// AsSkip extracts the skip reason from an error chain, if any.
func AsSkip(err error) (domain.SkipReason, bool) {
	var skip *SkipError
	if errors.As(err, &skip) {
		return skip.Reason, true
	}
	return "", false
}

// Result holds a successfully downloaded PDF.
type Result struct {
	// Content is the verified PDF bytes.
	Content []byte
	// SHA256 is the hex digest of the content.
	SHA256 string
	// SizeBytes is the content length.
	SizeBytes int64
}

// Config holds downloader configuration.
type Config struct {
	// Timeout is the HTTP request timeout. Default: 30 seconds.
	Timeout time.Duration
	// MaxSizeBytes caps accepted PDFs. Default: 50MB.
	MaxSizeBytes int64
	// MaxConcurrent bounds in-flight downloads. Default: 4.
	MaxConcurrent int64
	// MaxAttempts is total attempts per URL on transient failures. Default: 3.
	MaxAttempts int
	// UserAgent is the User-Agent header sent with requests.
	UserAgent string
}

// applyDefaults fills zero-valued settings.
func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxSizeBytes == 0 {
		c.MaxSizeBytes = 50 * 1024 * 1024
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = 4
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.UserAgent == "" {
		c.UserAgent = "SpinalSurgery-AcquisitionService/1.0"
	}
}

// Downloader fetches paper PDFs with bounded concurrency and retries.
// Transient failures (network errors, 429, 5xx) are retried with
// exponential backoff up to MaxAttempts; permanent failures are
// classified into a SkipReason. Safe for concurrent use.
type Downloader struct {
	client *http.Client
	sem    *semaphore.Weighted
	config Config
}

// NewDownloader creates a Downloader with the given configuration.
func NewDownloader(cfg Config) *Downloader {
	cfg.applyDefaults()
	return &Downloader{
		client: &http.Client{Timeout: cfg.Timeout},
		sem:    semaphore.NewWeighted(cfg.MaxConcurrent),
		config: cfg,
	}
}

// NewDownloaderWithClient creates a Downloader with a custom HTTP
// client. Useful for testing.
func NewDownloaderWithClient(cfg Config, client *http.Client) *Downloader {
	cfg.applyDefaults()
	return &Downloader{
		client: client,
		sem:    semaphore.NewWeighted(cfg.MaxConcurrent),
		config: cfg,
	}
}

// Download fetches and verifies a PDF. An empty URL yields a SkipError
// with reason no_url; permanent HTTP failures yield forbidden or
// not_found; non-PDF bodies yield not_pdf; exhausted retries on
// transient failures yield exceeded_retry. Context cancellation is
// returned as-is.
func (d *Downloader) Download(ctx context.Context, url string) (*Result, error) {
	if url == "" {
		return nil, &SkipError{Reason: domain.SkipNoURL}
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer d.sem.Release(1)

	var result *Result
	attempt := func() error {
		r, err := d.fetch(ctx, url)
		if err != nil {
			return err
		}
		result = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second

	err := backoff.Retry(attempt,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(d.config.MaxAttempts-1)), ctx))
	if err != nil {
		if _, isSkip := AsSkip(err); isSkip {
			return nil, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		// Transient failures survived every attempt.
		return nil, &SkipError{Reason: domain.SkipExceededRetry, Cause: err}
	}

	return result, nil
}

// fetch performs one download attempt. Permanent failures are returned
// as backoff.Permanent-wrapped SkipErrors so retry stops immediately.
func (d *Downloader) fetch(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(&SkipError{Reason: domain.SkipNotFound, Cause: err})
	}
	req.Header.Set("User-Agent", d.config.UserAgent)
	req.Header.Set("Accept", "application/pdf, */*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, backoff.Permanent(err)
		}
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// proceed
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: HTTP %d", ErrDownloadFailed, resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, backoff.Permanent(&SkipError{
			Reason: domain.SkipForbidden,
			Cause:  fmt.Errorf("HTTP %d", resp.StatusCode),
		})
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, backoff.Permanent(&SkipError{
			Reason: domain.SkipNotFound,
			Cause:  fmt.Errorf("HTTP %d", resp.StatusCode),
		})
	default:
		// Remaining 4xx: the server understood and refused.
		return nil, backoff.Permanent(&SkipError{
			Reason: domain.SkipForbidden,
			Cause:  fmt.Errorf("HTTP %d", resp.StatusCode),
		})
	}

	// Read one extra byte to detect oversize bodies.
	content, err := io.ReadAll(io.LimitReader(resp.Body, d.config.MaxSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrDownloadFailed, err)
	}
	if int64(len(content)) > d.config.MaxSizeBytes {
		return nil, backoff.Permanent(&SkipError{
			Reason: domain.SkipNotPDF,
			Cause:  fmt.Errorf("exceeds %d bytes", d.config.MaxSizeBytes),
		})
	}

	// The magic prefix is authoritative; Content-Type headers lie on
	// landing pages and HTML error bodies served with 200.
	if !bytes.HasPrefix(content, pdfMagic) {
		return nil, backoff.Permanent(&SkipError{
			Reason: domain.SkipNotPDF,
			Cause:  fmt.Errorf("content does not start with %%PDF- (Content-Type %q)", resp.Header.Get("Content-Type")),
		})
	}

	hash := sha256.Sum256(content)
	return &Result{
		Content:   content,
		SHA256:    hex.EncodeToString(hash[:]),
		SizeBytes: int64(len(content)),
	}, nil
}
