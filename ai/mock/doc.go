// Package mock provides a test double for ai.Embedder.
//
// MockEmbedder lets tests run without an embedding service. By default it
// returns deterministic vectors derived from an FNV hash of the input text;
// behavior can be replaced through the EmbedTextFunc and EmbedTextsFunc
// fields.
//
// # Usage in Tests
//
//	embedder := mock.NewMockEmbedder()
//	embedder.Dimensions = 8
//	vectors, err := embedder.EmbedTexts(ctx, []string{"a", "b"})
//
//	// Separate counters for single and batch calls
//	assert.Equal(t, 1, embedder.TextsCalls())
//	assert.Equal(t, 0, embedder.TextCalls())
package mock
