package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragqa/internal/embedding"
)

type countingResolver struct {
	tier  string
	calls int
	texts [][]string
}

func (c *countingResolver) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	res, err := c.Resolve(ctx, texts)
	return res.Vectors, err
}

func (c *countingResolver) Resolve(ctx context.Context, texts []string) (embedding.Result, error) {
	c.calls++
	c.texts = append(c.texts, texts)
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = []float32{float32(len(t)), 1}
	}
	return embedding.Result{Vectors: vectors, Tier: c.tier}, nil
}

func TestWrap_DisabledReturnsNext(t *testing.T) {
	next := &countingResolver{tier: "stub"}
	assert.Same(t, next, Wrap(next, 0, time.Minute, nil))
	assert.Same(t, next, Wrap(next, 10, 0, nil))
}

func TestEmbedder_ServesFullHits(t *testing.T) {
	next := &countingResolver{tier: "stub"}
	e := Wrap(next, 16, time.Minute, nil)
	ctx := context.Background()

	first, err := e.EmbedTexts(ctx, []string{"what is microsurgery"})
	require.NoError(t, err)
	second, err := e.EmbedTexts(ctx, []string{"what is microsurgery"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.calls)
}

func TestEmbedder_PartialHitsGoToNextAsWholeBatch(t *testing.T) {
	next := &countingResolver{tier: "stub"}
	e := Wrap(next, 16, time.Minute, nil)
	ctx := context.Background()

	_, err := e.EmbedTexts(ctx, []string{"a"})
	require.NoError(t, err)
	_, err = e.EmbedTexts(ctx, []string{"a", "bb"})
	require.NoError(t, err)

	require.Equal(t, 2, next.calls)
	assert.Equal(t, []string{"a", "bb"}, next.texts[1])
}

func TestEmbedder_MixedTierHitsAreNotServed(t *testing.T) {
	next := &countingResolver{tier: "remote"}
	e := Wrap(next, 16, time.Minute, nil)
	ctx := context.Background()

	_, err := e.EmbedTexts(ctx, []string{"a"})
	require.NoError(t, err)
	next.tier = "stub"
	_, err = e.EmbedTexts(ctx, []string{"b"})
	require.NoError(t, err)

	res, err := e.Resolve(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 3, next.calls)
	assert.Equal(t, "stub", res.Tier)
}

func TestEmbedder_ReturnsCopies(t *testing.T) {
	next := &countingResolver{tier: "stub"}
	e := Wrap(next, 16, time.Minute, nil)
	ctx := context.Background()

	v, err := e.EmbedTexts(ctx, []string{"abc"})
	require.NoError(t, err)
	v[0][0] = 99

	again, err := e.EmbedTexts(ctx, []string{"abc"})
	require.NoError(t, err)
	assert.Equal(t, float32(3), again[0][0])
}
