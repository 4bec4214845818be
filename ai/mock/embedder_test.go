package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/plexrec/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ai.Embedder = (*MockEmbedder)(nil)
var _ ai.ModelDescriber = (*MockEmbedder)(nil)

func TestMockEmbedder_Deterministic(t *testing.T) {
	m := NewMockEmbedder()
	m.Dimensions = 16

	a, err := m.EmbedText(context.Background(), "Inception")
	require.NoError(t, err)
	b, err := m.EmbedTexts(context.Background(), []string{"Inception", "Heat"})
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.Equal(t, a, b[0])
	assert.NotEqual(t, b[0], b[1])
	assert.Equal(t, 1, m.TextCalls())
	assert.Equal(t, 1, m.TextsCalls())
	assert.Equal(t, 2, m.CallCount())
	assert.Equal(t, []string{"Inception", "Heat"}, m.LastTexts())
}

func TestMockEmbedder_InjectedFailure(t *testing.T) {
	m := NewMockEmbedder()
	boom := errors.New("boom")
	m.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, boom
	}

	_, err := m.EmbedTexts(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, boom)

	m.Reset()
	assert.Equal(t, 0, m.CallCount())
	_, err = m.EmbedTexts(context.Background(), []string{"x"})
	assert.NoError(t, err)
}
