package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", ComputeHash(""))
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", ComputeHash("hello world"))
	assert.Equal(t, ComputeHash("test"), ComputeHash("test"))
}

func TestCacheKey(t *testing.T) {
	doc := CacheKey(EmbeddingRequest{Text: "auth flow", Mode: TaskDocument})
	query := CacheKey(EmbeddingRequest{Text: "auth flow", Mode: TaskQuery})
	def := CacheKey(EmbeddingRequest{Text: "auth flow"})

	assert.NotEqual(t, doc, query)
	assert.Equal(t, doc, def, "empty mode is treated as document")
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     EmbeddingRequest
		wantErr error
	}{
		{"valid document", EmbeddingRequest{Text: "x", Mode: TaskDocument}, nil},
		{"valid default mode", EmbeddingRequest{Text: "x"}, nil},
		{"empty text", EmbeddingRequest{Text: ""}, ErrEmptyText},
		{"whitespace text", EmbeddingRequest{Text: " \n\t"}, ErrEmptyText},
		{"unknown mode", EmbeddingRequest{Text: "x", Mode: "classify"}, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCache(t *testing.T) {
	t.Run("get returns a copy", func(t *testing.T) {
		cache := NewCache(3)
		cache.Set("k", &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3})

		got, ok := cache.Get("k")
		require.True(t, ok)
		got.Vector[0] = 99

		again, ok := cache.Get("k")
		require.True(t, ok)
		assert.Equal(t, float32(1), again.Vector[0])
	})

	t.Run("set stores a copy", func(t *testing.T) {
		cache := NewCache(3)
		emb := &Embedding{Vector: []float32{1, 2, 3}}
		cache.Set("k", emb)
		emb.Vector[0] = 42

		got, _ := cache.Get("k")
		assert.Equal(t, float32(1), got.Vector[0])
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("a", &Embedding{})
		cache.Set("b", &Embedding{})
		_, _ = cache.Get("a")
		cache.Set("c", &Embedding{})

		_, okA := cache.Get("a")
		_, okB := cache.Get("b")
		assert.True(t, okA)
		assert.False(t, okB)
		assert.Equal(t, 2, cache.Size())
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(0)
		cache.Set("a", &Embedding{})
		cache.Clear()
		assert.Equal(t, 0, cache.Size())
	})
}

func TestHashVector(t *testing.T) {
	v1 := HashVector("package main", 100)
	v2 := HashVector("package main", 100)
	v3 := HashVector("package other", 100)

	assert.Len(t, v1, 100)
	assert.Equal(t, v1, v2)
	assert.NotEqual(t, v1, v3)
	for _, x := range v1 {
		assert.GreaterOrEqual(t, x, float32(0))
		assert.Less(t, x, float32(1))
	}
}

func TestLocalProvider(t *testing.T) {
	p := NewLocalProvider(0)
	assert.Equal(t, LocalDimension, p.Dimension())
	assert.Equal(t, ProviderLocal, p.Provider())
	assert.Equal(t, DefaultLocalModel, p.Model())

	ctx := context.Background()
	doc, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello", Mode: TaskDocument})
	require.NoError(t, err)
	query, err := p.GenerateEmbedding(ctx, EmbeddingRequest{Text: "hello", Mode: TaskQuery})
	require.NoError(t, err)
	assert.Equal(t, doc.Vector, query.Vector)
	assert.Len(t, doc.Vector, LocalDimension)

	_, err = p.GenerateEmbedding(ctx, EmbeddingRequest{Text: ""})
	assert.ErrorIs(t, err, ErrEmptyText)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = p.GenerateEmbedding(cancelled, EmbeddingRequest{Text: "hello"})
	assert.ErrorIs(t, err, context.Canceled)

	assert.NoError(t, p.Close())
}
