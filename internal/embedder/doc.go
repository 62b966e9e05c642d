// Package embedder turns text into fixed-dimension vectors through a remote
// embedding API, with an LRU cache and bounded retry in front of it.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "gemini", CacheSize: 10000}, logger)
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	doc, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: summaryJSON,
//	    Mode: embedder.TaskDocument,
//	})
//
// # Task Modes
//
// Retrieval models embed stored passages and search queries differently.
// Documents are embedded with TaskDocument and queries with TaskQuery; the
// cache is keyed by mode and text so the two never collide.
//
// # Provider Selection
//
// When Config.Provider is empty the provider is detected from the environment:
//
//  1. GEMINI_API_KEY set → Gemini (gemini-embedding-001, 3072 dimensions)
//  2. JINA_API_KEY set → Jina AI (jina-embeddings-v3, 1024 dimensions)
//  3. OPENAI_API_KEY set → OpenAI (text-embedding-3-small, 1536 dimensions)
//  4. otherwise → local hash vectors (offline, 384 dimensions)
//
// # Error Handling
//
// The Client retries failed provider calls immediately, up to three attempts
// by default. Empty text and cancellation are never retried. Once attempts run
// out the error wraps ErrProviderFailed:
//
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // provider unavailable; the upload or query fails
//	}
package embedder
