package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/plexrec/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrEmbedderClosed is returned when the embedder is used after Close.
var ErrEmbedderClosed = errors.New("embedder is closed")

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
// Large inputs are split into batches that are embedded concurrently on a
// bounded worker pool; output order always matches input order.
type Embedder struct {
	config *ai.Config
	logger *slog.Logger

	once    sync.Once
	initErr error
	client  embeddings.Embedder
	pool    *ants.Pool
}

// newEmbedder is an internal constructor that returns the concrete type.
// The HTTP client is created lazily on first use so that commands which
// never embed do not pay for it.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if config == nil {
		config = ai.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(config.PoolSize)
	if err != nil {
		return nil, err
	}

	return &Embedder{
		config: config,
		pool:   pool,
		logger: slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

func (e *Embedder) init() error {
	e.once.Do(func() {
		// Use "none" as token for local OpenAI-compatible services that don't require authentication
		client, err := openai.New(
			openai.WithBaseURL(e.config.EmbeddingHost),
			openai.WithToken("none"),
			openai.WithEmbeddingModel(e.config.EmbeddingModel),
		)
		if err != nil {
			e.initErr = err
			return
		}

		embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
		if err != nil {
			e.initErr = err
			return
		}
		e.client = embedder
		e.logger.Info("embedding client ready", "host", e.config.EmbeddingHost, "model", e.config.EmbeddingModel, "device", e.config.Device)
	})
	return e.initErr
}

// Model returns the configured embedding model identifier.
func (e *Embedder) Model() string {
	return e.config.EmbeddingModel
}

// Device returns the configured compute device hint.
func (e *Embedder) Device() string {
	return e.config.Device
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding for single text", "length", len(text))

	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		e.logger.Warn("embedder returned empty result")
		return []float32{}, nil
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if e.pool == nil || e.pool.IsClosed() {
		return nil, ErrEmbedderClosed
	}
	if err := e.init(); err != nil {
		e.logger.Error("failed to create embedding client", "err", err)
		return nil, err
	}

	e.logger.Debug("generating embeddings for texts", "count", len(texts), "batchSize", e.config.BatchSize)

	// Servers reject empty input, so blank entries are sent as a single space.
	inputs := make([]string, len(texts))
	for i, text := range texts {
		if text == "" {
			text = " "
		}
		inputs[i] = text
	}

	batches := splitBatches(len(inputs), e.config.BatchSize)
	results := make([][]float32, len(texts))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for _, b := range batches {
		wg.Add(1)
		start, end := b[0], b[1]
		submitErr := e.pool.Submit(func() {
			defer wg.Done()
			vectors, err := e.embedBatch(ctx, inputs[start:end])
			if err != nil {
				fail(err)
				return
			}
			copy(results[start:end], vectors)
		})
		if submitErr != nil {
			wg.Done()
			fail(submitErr)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", firstErr)
		return nil, firstErr
	}
	return results, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := ai.RetryWithBackoff(ctx, func() error {
		var err error
		vectors, err = e.client.EmbedDocuments(ctx, texts)
		return err
	}, e.config.MaxRetries, e.config.RetryDelay)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

// Close releases the worker pool.
func (e *Embedder) Close() error {
	if e.pool != nil {
		e.pool.Release()
	}
	return nil
}

// splitBatches returns [start, end) ranges covering n items in chunks of size.
func splitBatches(n, size int) [][2]int {
	if size < 1 {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		out = append(out, [2]int{start, end})
	}
	return out
}
