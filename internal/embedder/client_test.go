package embedder

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/reposcope-mcp/internal/retry"
)

// flakyProvider fails the first failures calls, then delegates to a local provider
type flakyProvider struct {
	*LocalProvider
	failures int32
	calls    atomic.Int32
	modes    []TaskMode
}

func (f *flakyProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	n := f.calls.Add(1)
	f.modes = append(f.modes, req.Mode)
	if n <= f.failures {
		return nil, errors.New("transient upstream error")
	}
	return f.LocalProvider.GenerateEmbedding(ctx, req)
}

func TestClient_RetriesThenSucceeds(t *testing.T) {
	p := &flakyProvider{LocalProvider: NewLocalProvider(8), failures: 2}
	c := NewClient(p, nil, DefaultRetryPolicy(), nil)

	emb, err := c.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
	require.NoError(t, err)
	assert.Len(t, emb.Vector, 8)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestClient_ExhaustsRetries(t *testing.T) {
	p := &flakyProvider{LocalProvider: NewLocalProvider(8), failures: 100}
	c := NewClient(p, nil, DefaultRetryPolicy(), nil)

	_, err := c.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, int32(MaxRetries), p.calls.Load())
}

func TestClient_EmptyTextNotRetried(t *testing.T) {
	p := &flakyProvider{LocalProvider: NewLocalProvider(8)}
	c := NewClient(p, nil, DefaultRetryPolicy(), nil)

	_, err := c.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "  "})
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestClient_CacheByMode(t *testing.T) {
	p := &flakyProvider{LocalProvider: NewLocalProvider(8)}
	c := NewClient(p, NewCache(10), DefaultRetryPolicy(), nil)
	ctx := context.Background()

	_, err := c.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x", Mode: TaskDocument})
	require.NoError(t, err)
	_, err = c.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x", Mode: TaskDocument})
	require.NoError(t, err)
	assert.Equal(t, int32(1), p.calls.Load(), "second document call should hit the cache")

	_, err = c.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x", Mode: TaskQuery})
	require.NoError(t, err)
	assert.Equal(t, int32(2), p.calls.Load())
	assert.Equal(t, []TaskMode{TaskDocument, TaskQuery}, p.modes)
	assert.Equal(t, 2, c.CacheSize())
}

func TestClient_DefaultsModeToDocument(t *testing.T) {
	p := &flakyProvider{LocalProvider: NewLocalProvider(8)}
	c := NewClient(p, nil, DefaultRetryPolicy(), nil)

	_, err := c.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, []TaskMode{TaskDocument}, p.modes)
}

func TestClient_ContextCancelled(t *testing.T) {
	p := &flakyProvider{LocalProvider: NewLocalProvider(8), failures: 100}
	c := NewClient(p, nil, DefaultRetryPolicy(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GenerateEmbedding(ctx, EmbeddingRequest{Text: "x"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrProviderFailed))
}

func TestClient_Delegates(t *testing.T) {
	c := NewClient(NewLocalProvider(16), nil, DefaultRetryPolicy(), nil)
	assert.Equal(t, 16, c.Dimension())
	assert.Equal(t, ProviderLocal, c.Provider())
	assert.Equal(t, DefaultLocalModel, c.Model())
	assert.NoError(t, c.Close())
}
