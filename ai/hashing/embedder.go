// Package hashing implements an offline ai.Embedder based on feature hashing.
//
// Each lowercased word and adjacent word pair of the input is hashed with
// BLAKE2b into a bucket of a fixed-size vector with a hash-derived sign. The
// result is L2-normalized, so cosine similarity reflects shared vocabulary.
// It needs no model download or network access, which makes it suitable for
// CI and for machines without an embedding server.
package hashing

import (
	"context"
	"encoding/binary"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/plexrec/ai"
)

// ModelName is the model identifier recorded alongside cached vectors.
const ModelName = "hashing-v1"

// Embedder is a deterministic bag-of-words embedder.
type Embedder struct {
	dims   int
	device string
	logger *slog.Logger
}

// NewEmbedder creates a hashing embedder with config.Dimensions buckets.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	if config == nil {
		config = ai.NewConfig(ai.WithProvider(ai.ProviderHashing))
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Embedder{
		dims:   config.Dimensions,
		device: config.Device,
		logger: slog.Default().With("component", "hashing-embedder"),
	}, nil
}

// Model implements ai.ModelDescriber. The dimension is part of the identity
// so that resizing invalidates persisted vectors.
func (e *Embedder) Model() string {
	return ModelName + "-" + strconv.Itoa(e.dims)
}

// Device implements ai.ModelDescriber.
func (e *Embedder) Device() string {
	return e.device
}

// EmbedText embeds a single string. Empty text yields the zero vector.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

// EmbedTexts embeds every string in order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("hashing texts", "count", len(texts), "dims", e.dims)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *Embedder) embed(text string) []float32 {
	vec := make([]float32, e.dims)
	tokens := tokenize(text)
	for i, tok := range tokens {
		e.add(vec, tok, 1)
		if i > 0 {
			e.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return ai.NormalizeVector(vec)
}

func (e *Embedder) add(vec []float32, token string, weight float32) {
	h, _ := blake2b.New(8, nil)
	h.Write([]byte(token))
	sum := binary.LittleEndian.Uint64(h.Sum(nil))

	bucket := int(sum % uint64(e.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[bucket] += weight
}

// tokenize splits on anything that is not a letter or digit and lowercases.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
