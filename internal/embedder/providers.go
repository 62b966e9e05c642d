package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dshills/reposcope-mcp/internal/retry"
)

// Provider configuration
const (
	ProviderGemini = "gemini"
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Default models
	DefaultGeminiModel = "gemini-embedding-001"
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-hash-v1"

	// Dimensions
	GeminiDimension = 3072
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// Endpoints
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultJinaBaseURL   = "https://api.jina.ai/v1"
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"

	// Retry configuration
	MaxRetries = 3

	defaultHTTPTimeout = 30 * time.Second
)

// Environment variables consulted when no API key is configured
const (
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// ProviderConfig configures a single remote provider
type ProviderConfig struct {
	APIKey    string
	Model     string        // Empty uses the provider default
	Dimension int           // Zero uses the provider default
	BaseURL   string        // Empty uses the public endpoint
	Timeout   time.Duration // Zero uses 30s
}

func (c ProviderConfig) withDefaults(model string, dim int, baseURL string) ProviderConfig {
	if c.Model == "" {
		c.Model = model
	}
	if c.Dimension <= 0 {
		c.Dimension = dim
	}
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = defaultHTTPTimeout
	}
	return c
}

// httpProvider holds the plumbing shared by remote providers
type httpProvider struct {
	cfg        ProviderConfig
	httpClient *http.Client
}

func newHTTPProvider(cfg ProviderConfig) httpProvider {
	return httpProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// postJSON sends body to url and decodes a 200 response into out.
// Non-200 responses come back as *retry.StatusError so callers can classify them.
func (h *httpProvider) postJSON(ctx context.Context, url string, headers map[string]string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &retry.StatusError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (h *httpProvider) Dimension() int { return h.cfg.Dimension }

func (h *httpProvider) Model() string { return h.cfg.Model }

func (h *httpProvider) Close() error {
	h.httpClient.CloseIdleConnections()
	return nil
}

// GeminiProvider implements Embedder using the Gemini embedContent API
type GeminiProvider struct {
	httpProvider
}

// NewGeminiProvider creates a new Gemini embedder
func NewGeminiProvider(cfg ProviderConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvGeminiAPIKey)
	}
	cfg = cfg.withDefaults(DefaultGeminiModel, GeminiDimension, DefaultGeminiBaseURL)
	return &GeminiProvider{httpProvider: newHTTPProvider(cfg)}, nil
}

// geminiTaskType maps a task mode onto Gemini's retrieval task types
func geminiTaskType(m TaskMode) string {
	if m == TaskQuery {
		return "RETRIEVAL_QUERY"
	}
	return "RETRIEVAL_DOCUMENT"
}

func (g *GeminiProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"model": "models/" + g.cfg.Model,
		"content": map[string]interface{}{
			"parts": []map[string]string{{"text": req.Text}},
		},
		"taskType":             geminiTaskType(req.Mode),
		"outputDimensionality": g.cfg.Dimension,
	}

	var apiResp struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	url := fmt.Sprintf("%s/models/%s:embedContent", g.cfg.BaseURL, g.cfg.Model)
	headers := map[string]string{"x-goog-api-key": g.cfg.APIKey}
	if err := g.postJSON(ctx, url, headers, reqBody, &apiResp); err != nil {
		return nil, err
	}
	if len(apiResp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", ErrProviderFailed)
	}

	return &Embedding{
		Vector:    apiResp.Embedding.Values,
		Dimension: len(apiResp.Embedding.Values),
		Provider:  ProviderGemini,
		Model:     g.cfg.Model,
	}, nil
}

func (g *GeminiProvider) Provider() string { return ProviderGemini }

// JinaProvider implements Embedder using Jina AI API
type JinaProvider struct {
	httpProvider
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(cfg ProviderConfig) (*JinaProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}
	cfg = cfg.withDefaults(DefaultJinaModel, JinaDimension, DefaultJinaBaseURL)
	return &JinaProvider{httpProvider: newHTTPProvider(cfg)}, nil
}

func jinaTask(m TaskMode) string {
	if m == TaskQuery {
		return "retrieval.query"
	}
	return "retrieval.passage"
}

func (j *JinaProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"input":      []string{req.Text},
		"model":      j.cfg.Model,
		"task":       jinaTask(req.Mode),
		"dimensions": j.cfg.Dimension,
	}
	headers := map[string]string{"Authorization": "Bearer " + j.cfg.APIKey}
	return decodeDataEmbedding(ctx, &j.httpProvider, j.cfg.BaseURL+"/embeddings", headers, reqBody, ProviderJina)
}

func (j *JinaProvider) Provider() string { return ProviderJina }

// OpenAIProvider implements Embedder using OpenAI API.
// OpenAI models have no task modes, so the mode is ignored.
type OpenAIProvider struct {
	httpProvider
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(cfg ProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}
	cfg = cfg.withDefaults(DefaultOpenAIModel, OpenAIDimension, DefaultOpenAIBaseURL)
	return &OpenAIProvider{httpProvider: newHTTPProvider(cfg)}, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"input":      []string{req.Text},
		"model":      o.cfg.Model,
		"dimensions": o.cfg.Dimension,
	}
	headers := map[string]string{"Authorization": "Bearer " + o.cfg.APIKey}
	return decodeDataEmbedding(ctx, &o.httpProvider, o.cfg.BaseURL+"/embeddings", headers, reqBody, ProviderOpenAI)
}

func (o *OpenAIProvider) Provider() string { return ProviderOpenAI }

// decodeDataEmbedding handles the {"data":[{"embedding":[...]}]} response shape
// shared by Jina and OpenAI
func decodeDataEmbedding(ctx context.Context, h *httpProvider, url string, headers map[string]string, body interface{}, provider string) (*Embedding, error) {
	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := h.postJSON(ctx, url, headers, body, &apiResp); err != nil {
		return nil, err
	}
	if len(apiResp.Data) == 0 || len(apiResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	model := apiResp.Model
	if model == "" {
		model = h.cfg.Model
	}
	vec := apiResp.Data[0].Embedding
	return &Embedding{
		Vector:    vec,
		Dimension: len(vec),
		Provider:  provider,
		Model:     model,
	}, nil
}

// LocalProvider produces deterministic hash-derived vectors without any network
// access. Identical text always maps to the identical vector, in both modes.
type LocalProvider struct {
	model     string
	dimension int
}

// NewLocalProvider creates a new local embedder; dimension <= 0 uses LocalDimension
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{
		model:     DefaultLocalModel,
		dimension: dimension,
	}
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Embedding{
		Vector:    HashVector(req.Text, l.dimension),
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     l.model,
	}, nil
}

// HashVector expands sha256 blocks of text into a vector of values in [0, 1)
func HashVector(text string, dimension int) []float32 {
	vector := make([]float32, dimension)
	var counter [4]byte
	var block [sha256.Size]byte
	for i := 0; i < dimension; i++ {
		slot := i % (sha256.Size / 4)
		if slot == 0 {
			binary.LittleEndian.PutUint32(counter[:], uint32(i))
			block = sha256.Sum256(append([]byte(text), counter[:]...))
		}
		val := binary.LittleEndian.Uint32(block[slot*4 : slot*4+4])
		vector[i] = float32(float64(val) / float64(1<<32))
	}
	return vector
}

func (l *LocalProvider) Dimension() int { return l.dimension }

func (l *LocalProvider) Provider() string { return ProviderLocal }

func (l *LocalProvider) Model() string { return l.model }

func (l *LocalProvider) Close() error { return nil }
