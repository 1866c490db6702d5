// Package translate produces target-language renderings of paper
// fields through a pluggable provider, with chunking and rate
// discipline so provider limits are respected.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

// Config holds translator configuration.
type Config struct {
	// ChunkSize caps each provider call's input length. Default: 4500.
	ChunkSize int
	// MinCallInterval is the minimum delay between provider calls.
	// Default: 500ms.
	MinCallInterval time.Duration
	// MaxRetries is how many times a transient chunk failure is
	// retried before giving up on the paper. Default: 2.
	MaxRetries int
}

func (c *Config) applyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = 4500
	}
	if c.MinCallInterval == 0 {
		c.MinCallInterval = 500 * time.Millisecond
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
}

// Translator translates paper fields chunk by chunk. Chunks go to the
// provider sequentially; a permanent failure on any chunk abandons the
// whole paper so no partial translations are ever stored.
type Translator struct {
	provider Provider
	limiter  *rate.Limiter
	config   Config
	logger   zerolog.Logger
}

// NewTranslator creates a Translator around the given provider.
func NewTranslator(provider Provider, cfg Config, logger zerolog.Logger) *Translator {
	cfg.applyDefaults()
	return &Translator{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Every(cfg.MinCallInterval), 1),
		config:   cfg,
		logger:   logger.With().Str("component", "translator").Str("provider", provider.Name()).Logger(),
	}
}

// Translate renders text in targetLang. Input is split at sentence
// boundaries into chunks within the provider limit; outputs are
// concatenated in order.
func (t *Translator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	chunks := SplitChunks(text, t.config.ChunkSize)
	out := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		translated, err := t.translateChunk(ctx, chunk, targetLang)
		if err != nil {
			return "", fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		out = append(out, translated)
	}
	return strings.Join(out, ""), nil
}

// translateChunk submits one chunk, retrying transient failures.
func (t *Translator) translateChunk(ctx context.Context, chunk, targetLang string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= t.config.MaxRetries; attempt++ {
		if err := t.limiter.Wait(ctx); err != nil {
			return "", err
		}

		translated, err := t.provider.Translate(ctx, chunk, targetLang)
		if err == nil {
			return translated, nil
		}
		if !errors.Is(err, ErrProviderTransient) {
			return "", err
		}
		lastErr = err
		t.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", t.config.MaxRetries+1).
			Msg("transient translation failure")
	}
	return "", fmt.Errorf("%w: retries exhausted: %v", domain.ErrTranslationUnavailable, lastErr)
}

// TranslateRecord translates title, abstract, and the section digest
// for one paper, returning a complete Translation. Nothing is written
// to the record here; callers attach the result only on success, which
// keeps partial translations out of persisted metadata.
func (t *Translator) TranslateRecord(ctx context.Context, record *domain.PaperRecord, sectionDigest, targetLang string) (*domain.Translation, error) {
	title, err := t.Translate(ctx, record.Title, targetLang)
	if err != nil {
		return nil, fmt.Errorf("title: %w", err)
	}
	abstract, err := t.Translate(ctx, record.Abstract, targetLang)
	if err != nil {
		return nil, fmt.Errorf("abstract: %w", err)
	}
	sections, err := t.Translate(ctx, sectionDigest, targetLang)
	if err != nil {
		return nil, fmt.Errorf("sections: %w", err)
	}

	return &domain.Translation{
		Title:        title,
		Abstract:     abstract,
		Sections:     sections,
		TranslatedAt: time.Now().UTC(),
	}, nil
}
