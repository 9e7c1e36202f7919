package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragqa/internal/domain"
)

func numberedWords(n int) []string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i+1)
	}
	return words
}

func TestChunk_ShortTextIsSingleChunk(t *testing.T) {
	text := strings.Join(numberedWords(350), " ")

	chunks, err := Chunk(text, 400, 60)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestChunk_WindowsAdvanceByStep(t *testing.T) {
	words := numberedWords(1000)

	chunks, err := Chunk(strings.Join(words, " "), 400, 60)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for i, chunk := range chunks {
		got := strings.Fields(chunk)
		assert.Equal(t, words[i*340], got[0], "window %d start", i)
	}
	last := strings.Fields(chunks[len(chunks)-1])
	assert.Equal(t, "w1000", last[len(last)-1])
	assert.Len(t, last, 320)
	assert.Len(t, strings.Fields(chunks[0]), 400)
}

func TestChunk_ExactMultipleStopsAtEnd(t *testing.T) {
	chunks, err := Chunk(strings.Join(numberedWords(400), " "), 400, 60)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestChunk_EmptyText(t *testing.T) {
	chunks, err := Chunk("  \n\t ", 400, 60)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_InvalidWindowFailsFast(t *testing.T) {
	tests := []struct {
		name      string
		maxTokens int
		overlap   int
	}{
		{name: "overlap equals window", maxTokens: 10, overlap: 10},
		{name: "overlap exceeds window", maxTokens: 10, overlap: 20},
		{name: "zero window", maxTokens: 0, overlap: 0},
		{name: "negative overlap", maxTokens: 10, overlap: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Chunk("a b c", tt.maxTokens, tt.overlap)
			require.ErrorIs(t, err, domain.ErrInvalidWindow)

			_, err = NewWordChunker(tt.maxTokens, tt.overlap)
			require.ErrorIs(t, err, domain.ErrInvalidWindow)
		})
	}
}

func TestWordChunker_NormalizesWhitespace(t *testing.T) {
	c, err := NewWordChunker(3, 1)
	require.NoError(t, err)

	chunks, err := c.Chunk("one  two\nthree\tfour five")
	require.NoError(t, err)
	assert.Equal(t, []string{"one two three", "three four five"}, chunks)
}
