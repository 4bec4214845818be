package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/poiesic/plexrec/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingDatum struct {
	Object    string    `json:"object"`
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingResponse struct {
	Object string           `json:"object"`
	Data   []embeddingDatum `json:"data"`
	Model  string           `json:"model"`
}

// newFakeServer answers /v1/embeddings with [len(text), 1] per input.
func newFakeServer(t *testing.T, failures int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= failures {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := embeddingResponse{Object: "list", Model: req.Model}
		for i, text := range req.Input {
			resp.Data = append(resp.Data, embeddingDatum{
				Object:    "embedding",
				Embedding: []float32{float32(len(text)), 1},
				Index:     i,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestNewEmbedder_InvalidConfig(t *testing.T) {
	_, err := NewEmbedder(&ai.Config{Provider: ai.ProviderOpenAI})
	require.Error(t, err)
}

func TestEmbedder_PreservesOrderAcrossBatches(t *testing.T) {
	srv, calls := newFakeServer(t, 0)
	cfg := ai.NewConfig(
		ai.WithEmbeddingHost(srv.URL),
		ai.WithBatchSize(2),
		ai.WithPoolSize(3),
	)
	e, err := newEmbedder(cfg)
	require.NoError(t, err)
	defer e.Close()

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := e.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vectors[i][0], "vector %d out of order", i)
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbedder_EmbedText(t *testing.T) {
	srv, _ := newFakeServer(t, 0)
	e, err := newEmbedder(ai.NewConfig(ai.WithEmbeddingHost(srv.URL)))
	require.NoError(t, err)
	defer e.Close()

	vec, err := e.EmbedText(context.Background(), "dream heist")
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 1}, vec)
	assert.Equal(t, ai.DefaultEmbeddingModel, e.Model())
	assert.Equal(t, ai.DefaultDevice, e.Device())
}

func TestEmbedder_RetriesTransientFailures(t *testing.T) {
	srv, calls := newFakeServer(t, 1)
	e, err := newEmbedder(ai.NewConfig(
		ai.WithEmbeddingHost(srv.URL),
		ai.WithRetry(3, time.Millisecond),
	))
	require.NoError(t, err)
	defer e.Close()

	vectors, err := e.EmbedTexts(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestEmbedder_EmptyInput(t *testing.T) {
	e, err := newEmbedder(ai.NewConfig(ai.WithEmbeddingHost("http://127.0.0.1:1")))
	require.NoError(t, err)
	defer e.Close()

	vectors, err := e.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestEmbedder_Closed(t *testing.T) {
	e, err := newEmbedder(ai.NewConfig(ai.WithEmbeddingHost("http://127.0.0.1:1")))
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.EmbedTexts(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrEmbedderClosed)
}

func TestSplitBatches(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 2}, {2, 4}, {4, 5}}, splitBatches(5, 2))
	assert.Equal(t, [][2]int{{0, 3}}, splitBatches(3, 0))
	assert.Nil(t, splitBatches(0, 4))
}
