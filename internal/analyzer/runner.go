package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dshills/reposcope-mcp/internal/retry"
)

// Defaults for the chat-completions runner
const (
	DefaultModel   = "gpt-4o-mini"
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultTimeout = 2 * time.Minute
)

var (
	// ErrMissingAPIKey is returned when a runner is built without credentials
	ErrMissingAPIKey = errors.New("analysis api key is required")
	// ErrEmptyCompletion is returned when the model returns no choices
	ErrEmptyCompletion = errors.New("model returned no completion")
)

// Usage counts tokens consumed by one run
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the model output of one run
type Response struct {
	Text  string
	Usage Usage
}

// Runner sends one prompt to a language model
type Runner interface {
	Run(ctx context.Context, prompt string) (Response, error)
}

// RunnerConfig configures an OpenAIRunner
type RunnerConfig struct {
	APIKey  string
	Model   string        // Empty uses DefaultModel
	BaseURL string        // Empty uses DefaultBaseURL
	Timeout time.Duration // Zero uses DefaultTimeout
}

// OpenAIRunner calls an OpenAI-compatible chat completions endpoint.
// Non-2xx responses are returned as *retry.StatusError, so HTTP 429 is
// classified as a rate limit.
type OpenAIRunner struct {
	cfg    RunnerConfig
	client *http.Client
}

// NewOpenAIRunner creates a runner
func NewOpenAIRunner(cfg RunnerConfig) (*OpenAIRunner, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &OpenAIRunner{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Model returns the configured model name
func (r *OpenAIRunner) Model() string {
	return r.cfg.Model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Run sends prompt with the summarization system prompt
func (r *OpenAIRunner) Run(ctx context.Context, prompt string) (Response, error) {
	body, err := json.Marshal(chatRequest{
		Model: r.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Response{}, &retry.StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return Response{}, ErrEmptyCompletion
	}
	return Response{Text: out.Choices[0].Message.Content, Usage: out.Usage}, nil
}
