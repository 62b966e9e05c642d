package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds embedder configuration
type Config struct {
	Provider   string // Empty auto-detects from the environment
	APIKey     string // Empty reads the provider's API key variable
	Model      string
	Dimension  int
	BaseURL    string
	CacheSize  int // <= 0 disables caching
	MaxRetries int // <= 0 uses MaxRetries
	RetryDelay time.Duration
}

// New creates a retrying, caching Client around the configured provider
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = DetectProvider()
	}

	inner, err := newProvider(provider, cfg)
	if err != nil {
		return nil, err
	}

	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	policy := DefaultRetryPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxAttempts = cfg.MaxRetries
	}
	policy.Delay = cfg.RetryDelay

	return NewClient(inner, cache, policy, logger), nil
}

func newProvider(provider string, cfg Config) (Embedder, error) {
	pc := ProviderConfig{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		Dimension: cfg.Dimension,
		BaseURL:   cfg.BaseURL,
	}

	switch provider {
	case ProviderGemini:
		if pc.APIKey == "" {
			pc.APIKey = os.Getenv(EnvGeminiAPIKey)
		}
		return NewGeminiProvider(pc)
	case ProviderJina:
		if pc.APIKey == "" {
			pc.APIKey = os.Getenv(EnvJinaAPIKey)
		}
		return NewJinaProvider(pc)
	case ProviderOpenAI:
		if pc.APIKey == "" {
			pc.APIKey = os.Getenv(EnvOpenAIAPIKey)
		}
		return NewOpenAIProvider(pc)
	case ProviderLocal:
		return NewLocalProvider(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, provider)
	}
}

// DetectProvider returns the provider implied by available API keys.
// Priority: GEMINI_API_KEY, JINA_API_KEY, OPENAI_API_KEY, then local.
func DetectProvider() string {
	if os.Getenv(EnvGeminiAPIKey) != "" {
		return ProviderGemini
	}
	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}

// ensure Client satisfies Embedder
var _ Embedder = (*Client)(nil)
