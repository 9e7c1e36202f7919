package local

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"ragqa/internal/domain"
	"ragqa/internal/vectorstore"
)

type record struct {
	id     string
	vector []float32
	doc    domain.Document
}

// Storage is an append-only in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	records   []record
}

// NewStorage creates a store. A dimension of 0 is pinned by the first Add.
func NewStorage(dimension int) *Storage {
	if dimension < 0 {
		dimension = 0
	}
	return &Storage{dimension: dimension}
}

func (s *Storage) Backend() vectorstore.Backend { return vectorstore.BackendLocal }

func (s *Storage) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Len returns the number of stored records.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Storage) Add(ctx context.Context, ids []string, vectors [][]float32, docs []domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dim, err := vectorstore.ValidateBatch(ids, vectors, docs, s.dimension)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	s.dimension = dim
	for i := range ids {
		v := make([]float32, len(vectors[i]))
		copy(v, vectors[i])
		s.records = append(s.records, record{id: ids[i], vector: v, doc: docs[i]})
	}
	return nil
}

// SimilaritySearch ranks every record by cosine similarity. Equal scores keep insertion order.
func (s *Storage) SimilaritySearch(ctx context.Context, query []float32, k int) ([]domain.Document, error) {
	if k <= 0 {
		return nil, domain.ErrInvalidK
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return []domain.Document{}, nil
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d values, store expects %d", domain.ErrDimensionMismatch, len(query), s.dimension)
	}
	scores := make([]float64, len(s.records))
	for i := range s.records {
		scores[i] = cosine(query, s.records[i].vector)
	}
	idxs := argsortDesc(scores)
	if k > len(idxs) {
		k = len(idxs)
	}
	results := make([]domain.Document, 0, k)
	for _, j := range idxs[:k] {
		results = append(results, s.records[j].doc)
	}
	return results, nil
}

// cosine is 0 when either vector has zero magnitude.
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func argsortDesc(vals []float64) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(i, j int) bool { return vals[idxs[i]] > vals[idxs[j]] })
	return idxs
}
