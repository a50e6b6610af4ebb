// Package embedding wraps a Genkit embedder with the input-budget and
// rate-limit policies the knowledge pipeline relies on.
//
// The embedding model has a token limit; inputs are truncated to a character
// budget derived from an explicit chars-per-token heuristic rather than a
// magic number, because the budget is model-dependent and must be swappable
// per embedding-model choice. Batches are partitioned into fixed-size chunks
// with a pacing delay between chunks to respect provider rate limits.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
)

// Input-budget policy for the default embedding model (text-embedding-3-small,
// 8191-token limit). ~4 characters per token, with 8000 characters kept as a
// safety margin below the limit.
const (
	// CharsPerToken is the character-count heuristic used to approximate
	// token length without a tokenizer.
	CharsPerToken = 4

	// DefaultMaxInputChars is the truncation budget applied to every input.
	DefaultMaxInputChars = 8000

	// DefaultBatchSize is the number of texts sent per provider request.
	DefaultBatchSize = 100

	// DefaultBatchDelay is the pacing interval between batch chunks.
	DefaultBatchDelay = 100 * time.Millisecond

	// DefaultTimeout bounds each provider round trip so a stalled upstream
	// cannot hang the enclosing request.
	DefaultTimeout = 15 * time.Second
)

// Config tunes the client. Zero values fall back to the defaults above.
type Config struct {
	MaxInputChars int
	BatchSize     int
	BatchDelay    time.Duration
	Timeout       time.Duration
}

// Client generates embeddings through a Genkit ai.Embedder.
// It is stateless apart from its rate limiter and safe for concurrent use.
type Client struct {
	embedder ai.Embedder
	limiter  *rate.Limiter
	logger   *slog.Logger

	maxInputChars int
	batchSize     int
	timeout       time.Duration
}

// New creates a Client around the given embedder.
// logger may be nil (defaults to slog.Default()).
func New(embedder ai.Embedder, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = DefaultMaxInputChars
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = DefaultBatchDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		embedder:      embedder,
		limiter:       rate.NewLimiter(rate.Every(cfg.BatchDelay), 1),
		logger:        logger,
		maxInputChars: cfg.MaxInputChars,
		batchSize:     cfg.BatchSize,
		timeout:       cfg.Timeout,
	}
}

// Embed returns the embedding vector for a single text.
// The input is truncated to the configured character budget before the call.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			ai.DocumentFromText(c.truncate(text), nil),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedder returned empty embedding")
	}

	return resp.Embeddings[0].Embedding, nil
}

// EmbedBatch returns one vector per input text, in input order.
// Texts are partitioned into chunks of the configured batch size with a
// pacing delay between chunks. A provider error on any chunk aborts the
// whole batch: returning partial results would let a caller believe all
// inputs were embedded.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))

		// Pacing between chunks; the first chunk passes immediately.
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for embed rate limit: %w", err)
		}

		chunk, err := c.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding chunk [%d:%d]: %w", start, end, err)
		}
		vectors = append(vectors, chunk...)
	}

	c.logger.Debug("embedded batch", "texts", len(texts), "vectors", len(vectors))
	return vectors, nil
}

func (c *Client) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		docs[i] = ai.DocumentFromText(c.truncate(text), nil)
	}

	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d embeddings for %d inputs",
			len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("embedder returned empty embedding at index %d", i)
		}
		vectors[i] = emb.Embedding
	}
	return vectors, nil
}

// truncate cuts text to the character budget on a rune boundary.
func (c *Client) truncate(text string) string {
	if len(text) <= c.maxInputChars {
		return text
	}
	runes := []rune(text)
	if len(runes) <= c.maxInputChars {
		return text
	}
	return string(runes[:c.maxInputChars])
}
