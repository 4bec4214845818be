package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// An empty string must still produce a valid vector.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings.
	// The returned slice has the same length and order as texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ModelDescriber is implemented by embedders that can report the identity of
// the model producing their vectors. Persisted embeddings are only reused
// when the model identifier matches.
type ModelDescriber interface {
	// Model returns the embedding model identifier.
	Model() string

	// Device returns the compute device hint the embedder was configured with.
	Device() string
}

// Describe returns the model and device of e, falling back to the supplied
// config when e does not implement ModelDescriber.
func Describe(e Embedder, cfg *Config) (model, device string) {
	if d, ok := e.(ModelDescriber); ok {
		return d.Model(), d.Device()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg.EmbeddingModel, cfg.Device
}
