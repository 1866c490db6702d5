package pdf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

const minimalPDF = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF"

func fastDownloader(cfg Config) *Downloader {
	d := NewDownloader(cfg)
	d.client.Timeout = 5 * time.Second
	return d
}

func TestDownloadSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "SpinalSurgery")
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte(minimalPDF))
	}))
	defer server.Close()

	d := fastDownloader(Config{})
	result, err := d.Download(context.Background(), server.URL+"/paper.pdf")
	require.NoError(t, err)

	assert.Equal(t, int64(len(minimalPDF)), result.SizeBytes)
	assert.True(t, strings.HasPrefix(string(result.Content), "%PDF-"))
	assert.Len(t, result.SHA256, 64)
}

func TestDownloadMissingURL(t *testing.T) {
	d := fastDownloader(Config{})
	_, err := d.Download(context.Background(), "")
	require.Error(t, err)

	reason, ok := AsSkip(err)
	require.True(t, ok)
	assert.Equal(t, domain.SkipNoURL, reason)
}

func TestDownloadNotPDF(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>Sign in to view this article</body></html>"))
	}))
	defer server.Close()

	d := fastDownloader(Config{})
	_, err := d.Download(context.Background(), server.URL)
	require.Error(t, err)

	reason, ok := AsSkip(err)
	require.True(t, ok)
	assert.Equal(t, domain.SkipNotPDF, reason)
}

func TestDownloadHTMLWithPDFContentType(t *testing.T) {
	// Some publishers serve an HTML interstitial with a PDF Content-Type.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("<!DOCTYPE html><html></html>"))
	}))
	defer server.Close()

	d := fastDownloader(Config{})
	_, err := d.Download(context.Background(), server.URL)
	require.Error(t, err)

	reason, ok := AsSkip(err)
	require.True(t, ok)
	assert.Equal(t, domain.SkipNotPDF, reason)
}

func TestDownloadPermanentStatuses(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantReason domain.SkipReason
	}{
		{"forbidden", http.StatusForbidden, domain.SkipForbidden},
		{"unauthorized", http.StatusUnauthorized, domain.SkipForbidden},
		{"not found", http.StatusNotFound, domain.SkipNotFound},
		{"gone", http.StatusGone, domain.SkipNotFound},
		{"bad request", http.StatusBadRequest, domain.SkipForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			d := fastDownloader(Config{})
			_, err := d.Download(context.Background(), server.URL)
			require.Error(t, err)

			reason, ok := AsSkip(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantReason, reason)
			assert.Equal(t, int32(1), calls.Load(), "permanent failures must not be retried")
		})
	}
}

func TestDownloadRetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte(minimalPDF))
	}))
	defer server.Close()

	d := fastDownloader(Config{MaxAttempts: 3})
	result, err := d.Download(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(len(minimalPDF)), result.SizeBytes)
}

func TestDownloadRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	d := fastDownloader(Config{MaxAttempts: 2})
	_, err := d.Download(context.Background(), server.URL)
	require.Error(t, err)

	reason, ok := AsSkip(err)
	require.True(t, ok)
	assert.Equal(t, domain.SkipExceededRetry, reason)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDownloadTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4\n"))
		w.Write(make([]byte, 2048))
	}))
	defer server.Close()

	d := fastDownloader(Config{MaxSizeBytes: 1024})
	_, err := d.Download(context.Background(), server.URL)
	require.Error(t, err)

	reason, ok := AsSkip(err)
	require.True(t, ok)
	assert.Equal(t, domain.SkipNotPDF, reason)
}

func TestDownloadContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	d := fastDownloader(Config{})
	_, err := d.Download(ctx, server.URL)
	require.Error(t, err)

	_, isSkip := AsSkip(err)
	assert.False(t, isSkip, "cancellation is not a per-paper skip")
}

func TestDownloadConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte(minimalPDF))
	}))
	defer server.Close()

	d := fastDownloader(Config{MaxConcurrent: 2})
	done := make(chan error, 6)
	for i := 0; i < 6; i++ {
		go func() {
			_, err := d.Download(context.Background(), server.URL)
			done <- err
		}()
	}
	for i := 0; i < 6; i++ {
		require.NoError(t, <-done)
	}

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, int64(50*1024*1024), cfg.MaxSizeBytes)
	assert.Equal(t, int64(4), cfg.MaxConcurrent)
	assert.Equal(t, 3, cfg.MaxAttempts)
}
