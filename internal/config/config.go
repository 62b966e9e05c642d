// Package config loads reposcope configuration from an optional YAML file and
// REPOSCOPE_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. REPOSCOPE_LOG_LEVEL
const EnvPrefix = "REPOSCOPE"

// Config holds all application configuration.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Proposals ProposalsConfig `mapstructure:"proposals"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type StorageConfig struct {
	Root string `mapstructure:"root"`
}

type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	Dimension  int           `mapstructure:"dimension"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	CacheSize  int           `mapstructure:"cache_size"`
}

type ChunkingConfig struct {
	MaxTokens int `mapstructure:"max_tokens"`
	MaxFiles  int `mapstructure:"max_files"`
}

type AnalysisConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type ProposalsConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// setDefaults registers every default on v
func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.root", "~/.reposcope")

	v.SetDefault("embedding.provider", "")
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.retry_delay", time.Duration(0))
	v.SetDefault("embedding.cache_size", 10000)

	v.SetDefault("chunking.max_tokens", 8000)
	v.SetDefault("chunking.max_files", 10)

	v.SetDefault("analysis.concurrency", 5)
	v.SetDefault("analysis.cooldown", 45*time.Second)
	v.SetDefault("analysis.max_attempts", 4)
	v.SetDefault("analysis.retry_delay", 2*time.Second)
	v.SetDefault("analysis.model", "gpt-4o-mini")
	v.SetDefault("analysis.base_url", "https://api.openai.com/v1")
	v.SetDefault("analysis.timeout", 2*time.Minute)

	v.SetDefault("proposals.ttl", time.Hour)
	v.SetDefault("proposals.max_entries", 1000)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("http.addr", ":8080")

	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)
}

// Load reads configuration from an optional file and the environment.
// An empty path skips the file and uses defaults plus environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	root, err := expandHome(cfg.Storage.Root)
	if err != nil {
		return nil, err
	}
	cfg.Storage.Root = root

	return &cfg, nil
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Chunking.MaxTokens <= 0 {
		warnings = append(warnings, fmt.Sprintf("chunking max_tokens %d is not positive", c.Chunking.MaxTokens))
	}
	if c.Chunking.MaxFiles <= 0 {
		warnings = append(warnings, fmt.Sprintf("chunking max_files %d is not positive", c.Chunking.MaxFiles))
	}
	if c.Analysis.Concurrency <= 0 {
		warnings = append(warnings, fmt.Sprintf("analysis concurrency %d is not positive", c.Analysis.Concurrency))
	}
	if c.Analysis.APIKey == "" {
		warnings = append(warnings, "analysis api_key is empty; repository analysis will fail")
	}
	if c.Embedding.MaxRetries < 1 {
		warnings = append(warnings, fmt.Sprintf("embedding max_retries %d is below 1", c.Embedding.MaxRetries))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0, 1]", c.Tracing.SampleRate))
	}

	return warnings
}

// ReposDir holds cloned or copied repository checkouts, one directory per folder id
func (c *Config) ReposDir() string {
	return filepath.Join(c.Storage.Root, "repos")
}

// RepoDir returns the checkout directory for a folder id
func (c *Config) RepoDir(folderID string) string {
	return filepath.Join(c.ReposDir(), folderID)
}

// IndicesDir holds one index directory per folder id
func (c *Config) IndicesDir() string {
	return filepath.Join(c.Storage.Root, "indices")
}

// ChunksDir holds chunk_<session>.json and file_index_<session>.json
func (c *Config) ChunksDir() string {
	return filepath.Join(c.Storage.Root, "chunks")
}

// LedgerDir holds response_<folder>.json
func (c *Config) LedgerDir() string {
	return filepath.Join(c.Storage.Root, "llm_response")
}

func expandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
