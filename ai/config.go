// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"errors"
	"strings"
	"time"
)

// Embedding provider identifiers.
const (
	// ProviderOpenAI talks to an OpenAI-compatible embedding endpoint (Ollama, LocalAI, vLLM).
	ProviderOpenAI = "openai"

	// ProviderHashing uses the offline feature-hashing embedder.
	ProviderHashing = "hashing"
)

const (
	// DefaultEmbeddingModel is used when no model identifier is configured.
	DefaultEmbeddingModel = "all-minilm:l6-v2"

	// DefaultDevice is the compute device hint used when none is configured.
	DefaultDevice = "cpu"

	// DefaultDimensions matches the output size of all-minilm.
	DefaultDimensions = 384
)

// Config holds configuration for the text embedder.
type Config struct {
	// Provider selects the embedder implementation: "openai" or "hashing".
	Provider string

	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "all-minilm:l6-v2", "nomic-embed-text"
	EmbeddingModel string

	// Device is a compute-device hint ("cpu", "cuda", "mps").
	// It is recorded alongside persisted embeddings.
	Device string

	// Dimensions is the vector size produced by the hashing provider.
	Dimensions int

	// BatchSize is the maximum number of texts sent in one request.
	// Default: 64
	BatchSize int

	// PoolSize is the number of concurrent embedding requests.
	// Default: 2
	PoolSize int

	// MaxRetries is the number of attempts per batch before failing.
	// Default: 3
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff between attempts.
	RetryDelay time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithProvider sets the embedder implementation.
func WithProvider(provider string) ConfigOption {
	return func(c *Config) {
		c.Provider = provider
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithDevice sets the compute device hint.
func WithDevice(device string) ConfigOption {
	return func(c *Config) {
		c.Device = device
	}
}

// WithDimensions sets the hashing embedder's vector size.
func WithDimensions(dims int) ConfigOption {
	return func(c *Config) {
		c.Dimensions = dims
	}
}

// WithBatchSize sets the per-request batch size.
func WithBatchSize(size int) ConfigOption {
	return func(c *Config) {
		c.BatchSize = size
	}
}

// WithPoolSize sets the number of concurrent embedding requests.
func WithPoolSize(size int) ConfigOption {
	return func(c *Config) {
		c.PoolSize = size
	}
}

// WithRetry sets the retry policy for embedding requests.
func WithRetry(maxRetries int, delay time.Duration) ConfigOption {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// DefaultConfig returns a Config with sensible defaults for a local OpenAI-compatible service.
func DefaultConfig() *Config {
	return &Config{
		Provider:       ProviderOpenAI,
		EmbeddingHost:  "http://localhost:11434/v1",
		EmbeddingModel: DefaultEmbeddingModel,
		Device:         DefaultDevice,
		Dimensions:     DefaultDimensions,
		BatchSize:      64,
		PoolSize:       2,
		MaxRetries:     3,
		RetryDelay:     500 * time.Millisecond,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithEmbeddingHost("http://localhost:11434/v1"),
//	    WithEmbeddingModel("nomic-embed-text"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to the host if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc), and
// fills empty model and device with their defaults.
func (c *Config) Normalize() {
	if c.EmbeddingHost != "" && !strings.HasSuffix(c.EmbeddingHost, "/v1") {
		c.EmbeddingHost = strings.TrimSuffix(c.EmbeddingHost, "/")
		c.EmbeddingHost = c.EmbeddingHost + "/v1"
	}
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if strings.TrimSpace(c.EmbeddingModel) == "" {
		c.EmbeddingModel = DefaultEmbeddingModel
	}
	if strings.TrimSpace(c.Device) == "" {
		c.Device = DefaultDevice
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Provider {
	case ProviderOpenAI:
		if c.EmbeddingHost == "" {
			return errors.New("ai config: EmbeddingHost is required")
		}
	case ProviderHashing:
		if c.Dimensions < 1 {
			return errors.New("ai config: Dimensions must be positive")
		}
	default:
		return errors.New("ai config: Provider must be one of openai, hashing")
	}
	if c.BatchSize < 1 {
		return errors.New("ai config: BatchSize must be positive")
	}
	if c.PoolSize < 1 {
		return errors.New("ai config: PoolSize must be positive")
	}
	if c.MaxRetries < 1 {
		return errors.New("ai config: MaxRetries must be positive")
	}
	return nil
}
