package vectorstore

import (
	"context"
	"fmt"

	"ragqa/internal/domain"
)

// Backend identifies a store implementation.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRemote Backend = "remote"
)

// ParseBackend accepts "local" (also "memory" and "") or "remote" (also "pinecone").
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "", "local", "memory":
		return BackendLocal, nil
	case "remote", "pinecone":
		return BackendRemote, nil
	default:
		return "", fmt.Errorf("unknown vector store backend: %q", s)
	}
}

// Storage persists vectors and supports similarity search.
type Storage interface {
	// Add stores ids[i], vectors[i] and docs[i] together. It applies all records or none.
	Add(ctx context.Context, ids []string, vectors [][]float32, docs []domain.Document) error
	// SimilaritySearch returns up to k documents by descending similarity to query.
	SimilaritySearch(ctx context.Context, query []float32, k int) ([]domain.Document, error)
	Backend() Backend
	// Dimension is the pinned vector length, or 0 while a store has not seen a vector yet.
	Dimension() int
}

// ValidateBatch checks alignment and dimension of an Add call before anything is stored.
// dim 0 means the first vector decides.
func ValidateBatch(ids []string, vectors [][]float32, docs []domain.Document, dim int) (int, error) {
	if len(ids) != len(vectors) || len(ids) != len(docs) {
		return dim, fmt.Errorf("%w: %d ids, %d vectors, %d docs", domain.ErrMisaligned, len(ids), len(vectors), len(docs))
	}
	for i, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) == 0 || len(v) != dim {
			return dim, fmt.Errorf("%w: record %s has %d values, store expects %d", domain.ErrDimensionMismatch, ids[i], len(v), dim)
		}
	}
	return dim, nil
}
