package local

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragqa/internal/domain"
)

func doc(title string) domain.Document {
	return domain.Document{Content: "content of " + title, Metadata: domain.Metadata{Title: title}}
}

func TestStorage_SimilaritySearch_TiesKeepInsertionOrder(t *testing.T) {
	s := NewStorage(0)
	ctx := context.Background()

	err := s.Add(ctx,
		[]string{"a", "b", "c"},
		[][]float32{{1, 0}, {0, 1}, {1, 0}},
		[]domain.Document{doc("a"), doc("b"), doc("c")},
	)
	require.NoError(t, err)

	got, err := s.SimilaritySearch(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.Document{doc("a"), doc("c")}, got)
}

func TestStorage_SimilaritySearch_RanksDescending(t *testing.T) {
	s := NewStorage(2)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx,
		[]string{"x", "y", "z"},
		[][]float32{{0, 1}, {1, 1}, {1, 0.1}},
		[]domain.Document{doc("x"), doc("y"), doc("z")},
	))

	got, err := s.SimilaritySearch(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "z", got[0].Metadata.Title)
	assert.Equal(t, "y", got[1].Metadata.Title)
	assert.Equal(t, "x", got[2].Metadata.Title)
}

func TestStorage_SimilaritySearch_EmptyStore(t *testing.T) {
	s := NewStorage(0)
	for _, k := range []int{1, 4, 100} {
		got, err := s.SimilaritySearch(context.Background(), []float32{1, 2, 3}, k)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}

func TestStorage_SimilaritySearch_InvalidK(t *testing.T) {
	_, err := NewStorage(0).SimilaritySearch(context.Background(), []float32{1}, 0)
	require.ErrorIs(t, err, domain.ErrInvalidK)
}

func TestStorage_ZeroMagnitudeScoresZero(t *testing.T) {
	s := NewStorage(0)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx,
		[]string{"zero", "neg"},
		[][]float32{{0, 0}, {-1, 0}},
		[]domain.Document{doc("zero"), doc("neg")},
	))

	got, err := s.SimilaritySearch(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, "zero", got[0].Metadata.Title)

	got, err = s.SimilaritySearch(ctx, []float32{0, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"zero", "neg"}, []string{got[0].Metadata.Title, got[1].Metadata.Title})
}

func TestStorage_Add_RejectsMisalignedWithoutMutation(t *testing.T) {
	s := NewStorage(0)
	err := s.Add(context.Background(), []string{"a", "b"}, [][]float32{{1}}, []domain.Document{doc("a"), doc("b")})
	require.ErrorIs(t, err, domain.ErrMisaligned)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.Dimension())
}

func TestStorage_Add_DimensionMismatchIsAllOrNothing(t *testing.T) {
	s := NewStorage(0)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{1, 0}}, []domain.Document{doc("a")}))
	assert.Equal(t, 2, s.Dimension())

	err := s.Add(ctx,
		[]string{"b", "c"},
		[][]float32{{1, 0}, {1, 0, 0}},
		[]domain.Document{doc("b"), doc("c")},
	)
	require.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Equal(t, 1, s.Len())

	_, err = s.SimilaritySearch(ctx, []float32{1, 0, 0}, 1)
	require.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestStorage_Add_CopiesVectors(t *testing.T) {
	s := NewStorage(0)
	ctx := context.Background()
	v := []float32{1, 0}
	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{v}, []domain.Document{doc("a")}))
	require.NoError(t, s.Add(ctx, []string{"b"}, [][]float32{{0, 1}}, []domain.Document{doc("b")}))
	v[0], v[1] = 0, 0

	got, err := s.SimilaritySearch(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "a", got[0].Metadata.Title)
}

func TestStorage_ConcurrentAddAndSearch(t *testing.T) {
	s := NewStorage(3)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("id-%d", i)
			assert.NoError(t, s.Add(ctx, []string{id}, [][]float32{{1, float32(i), 0}}, []domain.Document{doc(id)}))
		}(i)
		go func() {
			defer wg.Done()
			_, err := s.SimilaritySearch(ctx, []float32{1, 0, 0}, 3)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, s.Len())
}
