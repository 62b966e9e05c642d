package embedder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/reposcope-mcp/internal/logging"
	"github.com/dshills/reposcope-mcp/internal/retry"
)

// Client wraps a provider with caching and bounded retry.
// It is the Embedder the rest of the system talks to.
type Client struct {
	inner  Embedder
	cache  *Cache
	policy retry.Policy
	logger *zap.Logger
}

// DefaultRetryPolicy retries immediately, up to MaxRetries attempts in total
func DefaultRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: MaxRetries,
		Delay:       0,
		Classify:    classifyEmbedError,
	}
}

// NewClient wraps inner. A nil cache disables caching.
func NewClient(inner Embedder, cache *Cache, policy retry.Policy, logger *zap.Logger) *Client {
	if policy.Classify == nil {
		policy.Classify = classifyEmbedError
	}
	c := &Client{
		inner:  inner,
		cache:  cache,
		policy: policy,
		logger: logging.OrNop(logger),
	}
	c.policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("embedding attempt failed, retrying",
			zap.String("provider", inner.Provider()),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.policy.MaxAttempts),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	return c
}

// classifyEmbedError retries everything except caller mistakes and cancellation
func classifyEmbedError(err error) retry.Decision {
	if errors.Is(err, ErrEmptyText) || errors.Is(err, ErrInvalidInput) {
		return retry.Stop
	}
	return retry.Always(err)
}

// GenerateEmbedding returns a cached embedding or calls the provider.
// Any provider failure, after retries, wraps ErrProviderFailed.
func (c *Client) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	req.Mode = normalizeMode(req.Mode)

	key := CacheKey(req)
	if c.cache != nil {
		if emb, ok := c.cache.Get(key); ok {
			return emb, nil
		}
	}

	emb, err := retry.Do(ctx, c.policy, func(ctx context.Context) (*Embedding, error) {
		return c.inner.GenerateEmbedding(ctx, req)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
	}

	emb.Hash = key
	if c.cache != nil {
		c.cache.Set(key, emb)
	}
	return emb, nil
}

// CacheSize returns the number of cached embeddings, or 0 without a cache
func (c *Client) CacheSize() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Size()
}

func (c *Client) Dimension() int   { return c.inner.Dimension() }
func (c *Client) Provider() string { return c.inner.Provider() }
func (c *Client) Model() string    { return c.inner.Model() }
func (c *Client) Close() error     { return c.inner.Close() }
