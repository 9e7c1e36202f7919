package chunker

import (
	"fmt"
	"strings"

	"ragqa/internal/domain"
)

const (
	DefaultMaxTokens = 400
	DefaultOverlap   = 60
)

// WordChunker splits text into overlapping windows of whitespace-separated words.
// Words approximate tokens; no real tokenizer is involved.
type WordChunker struct {
	maxTokens int
	overlap   int
}

func NewWordChunker(maxTokens, overlap int) (*WordChunker, error) {
	if err := validateWindow(maxTokens, overlap); err != nil {
		return nil, err
	}
	return &WordChunker{maxTokens: maxTokens, overlap: overlap}, nil
}

// Chunk returns the windows for text. The last window may be shorter than maxTokens.
func (c *WordChunker) Chunk(text string) ([]string, error) {
	return Chunk(text, c.maxTokens, c.overlap)
}

// Chunk splits text into windows of maxTokens words advancing by maxTokens-overlap.
func Chunk(text string, maxTokens, overlap int) ([]string, error) {
	if err := validateWindow(maxTokens, overlap); err != nil {
		return nil, err
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}
	step := maxTokens - overlap
	chunks := make([]string, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := start + maxTokens
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks, nil
}

func validateWindow(maxTokens, overlap int) error {
	if maxTokens <= 0 || overlap < 0 || maxTokens-overlap <= 0 {
		return fmt.Errorf("%w (max_tokens=%d, overlap=%d)", domain.ErrInvalidWindow, maxTokens, overlap)
	}
	return nil
}
