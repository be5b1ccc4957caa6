package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddingAPI is a test double for the OpenAI API
type fakeEmbeddingAPI struct {
	vectors [][]float32
	err     error
	gotTexts []string
}

func (f *fakeEmbeddingAPI) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	f.gotTexts = texts
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func makeVector(dims int, fill float32) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestEmbedBatch(t *testing.T) {
	api := &fakeEmbeddingAPI{
		vectors: [][]float32{
			makeVector(DefaultEmbeddingDimensions, 0.1),
			makeVector(DefaultEmbeddingDimensions, 0.2),
		},
	}
	c := &Client{api: api, dimensions: DefaultEmbeddingDimensions}

	vectors, err := c.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []string{"first", "second"}, api.gotTexts)
	assert.InDelta(t, 0.1, vectors[0][0], 1e-6)
	assert.InDelta(t, 0.2, vectors[1][0], 1e-6)
}

func TestEmbedBatch_EmptyInput(t *testing.T) {
	c := &Client{api: &fakeEmbeddingAPI{}, dimensions: DefaultEmbeddingDimensions}

	_, err := c.EmbedBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestEmbedBatch_APIError(t *testing.T) {
	apiErr := errors.New("rate limited")
	c := &Client{api: &fakeEmbeddingAPI{err: apiErr}, dimensions: DefaultEmbeddingDimensions}

	_, err := c.EmbedBatch(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, apiErr)
}

func TestEmbedBatch_WrongDimensions(t *testing.T) {
	c := &Client{
		api:        &fakeEmbeddingAPI{vectors: [][]float32{makeVector(8, 0.5)}},
		dimensions: DefaultEmbeddingDimensions,
	}

	_, err := c.EmbedBatch(context.Background(), []string{"text"})
	assert.ErrorIs(t, err, ErrWrongDimensions)
}

func TestNewClientWithConfig_Defaults(t *testing.T) {
	c := NewClientWithConfig(Config{APIKey: "test-key"})
	assert.Equal(t, DefaultEmbeddingDimensions, c.dimensions)
	assert.Equal(t, string(DefaultEmbeddingModel), c.Model())
}
