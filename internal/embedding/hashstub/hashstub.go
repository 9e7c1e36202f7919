// Package hashstub is the last-resort embedding tier: vectors derived from a SHA-256 digest.
// Identical text always yields an identical vector, across calls and processes.
package hashstub

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// DefaultDimension is the size of one SHA-256 digest.
const DefaultDimension = sha256.Size

type Embedder struct {
	dimension int
}

func New(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{dimension: dimension}
}

func (e *Embedder) Name() string { return "hash-stub" }

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Available(ctx context.Context) error { return nil }

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.Vector(t)
	}
	return out, nil
}

// Vector maps each digest byte to byte/255. Block 0 of the digest stream is sha256(text);
// longer vectors continue with sha256(text || counter) blocks.
func (e *Embedder) Vector(text string) []float32 {
	vec := make([]float32, 0, e.dimension)
	for block := uint32(0); len(vec) < e.dimension; block++ {
		for _, b := range digestBlock([]byte(text), block) {
			if len(vec) == e.dimension {
				break
			}
			vec = append(vec, float32(b)/255)
		}
	}
	return vec
}

func digestBlock(data []byte, block uint32) [sha256.Size]byte {
	if block == 0 {
		return sha256.Sum256(data)
	}
	buf := make([]byte, len(data)+4)
	copy(buf, data)
	binary.BigEndian.PutUint32(buf[len(data):], block)
	return sha256.Sum256(buf)
}
