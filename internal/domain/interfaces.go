package domain

import (
	"context"
	"errors"
)

var (
	// ErrDimensionMismatch is returned when a vector length disagrees with the store dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrMisaligned is returned when ids, vectors and documents differ in length.
	ErrMisaligned = errors.New("ids, vectors and documents length mismatch")
	// ErrInvalidK is returned for a non-positive result count.
	ErrInvalidK = errors.New("k must be positive")
	// ErrInvalidWindow is returned for chunk windows that cannot advance.
	ErrInvalidWindow = errors.New("invalid chunk window: overlap must be smaller than max tokens")
	// ErrTierUnavailable marks an embedding tier whose prerequisites are missing.
	ErrTierUnavailable = errors.New("embedding tier unavailable")
	// ErrNoTierSucceeded is returned when every embedding tier failed.
	ErrNoTierSucceeded = errors.New("no embedding tier succeeded")
	// ErrTierMismatch is returned when a store holds vectors from a different embedding tier.
	ErrTierMismatch = errors.New("embedding tier does not match the store")
)

// Metadata is the provenance attached to a retrievable document.
type Metadata struct {
	Identifier string            `json:"identifier,omitempty"`
	Title      string            `json:"title"`
	Authors    string            `json:"authors,omitempty"`
	Date       string            `json:"date,omitempty"`
	Link       string            `json:"link,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Document is one retrievable unit: a chunk of source text plus its provenance.
type Document struct {
	Content  string
	Metadata Metadata
}

// Item is a raw source record handed to ingestion.
type Item struct {
	Title      string
	Text       string
	Identifier string
	Authors    string
	Date       string
	Link       string
	Extra      map[string]string
}

// Metadata returns the item's fields other than the text.
func (it Item) Metadata() Metadata {
	var extra map[string]string
	if len(it.Extra) > 0 {
		extra = make(map[string]string, len(it.Extra))
		for k, v := range it.Extra {
			extra[k] = v
		}
	}
	return Metadata{
		Identifier: it.Identifier,
		Title:      it.Title,
		Authors:    it.Authors,
		Date:       it.Date,
		Link:       it.Link,
		Extra:      extra,
	}
}

// Chunker splits text into ordered retrieval windows.
type Chunker interface {
	Chunk(text string) ([]string, error)
}

// Embedder converts texts into vectors, one per text, in input order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// RAGService defines the operations exposed by the retrieval core.
type RAGService interface {
	Ingest(ctx context.Context, items []Item) (int, error)
	Query(ctx context.Context, question string, k int) ([]Document, error)
}
