package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ragqa/internal/domain"
)

// Tier is one strategy of the embedding fallback chain.
// A tier either embeds the whole batch or fails; it never returns partial output.
type Tier interface {
	Name() string
	// Dimension is the fixed vector length the tier produces, or 0 when unknown until the first call.
	Dimension() int
	// Available reports whether the tier's prerequisites are present.
	// It returns an error wrapping domain.ErrTierUnavailable when the tier must be skipped.
	Available(ctx context.Context) error
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Resolver is an Embedder that also reports which tier served a batch.
type Resolver interface {
	domain.Embedder
	Resolve(ctx context.Context, texts []string) (Result, error)
}

// Attempt records the outcome of one tier for one batch.
type Attempt struct {
	Tier string
	Err  error
}

// Result is the output of a resolved batch.
type Result struct {
	Vectors  [][]float32
	Tier     string
	Attempts []Attempt
}

// Chain tries tiers in order and returns the first full-batch success.
type Chain struct {
	tiers  []Tier
	logger *zap.Logger
}

// NewChain builds a chain. When requiredDim is positive, tiers with a different fixed
// dimension are left out so every vector the chain returns fits the target store.
func NewChain(logger *zap.Logger, requiredDim int, tiers ...Tier) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]Tier, 0, len(tiers))
	for _, t := range tiers {
		if t == nil {
			continue
		}
		if requiredDim > 0 && t.Dimension() > 0 && t.Dimension() != requiredDim {
			logger.Info("embedding tier excluded by store dimension",
				zap.String("tier", t.Name()),
				zap.Int("tier_dimension", t.Dimension()),
				zap.Int("required_dimension", requiredDim),
			)
			continue
		}
		kept = append(kept, t)
	}
	return &Chain{tiers: kept, logger: logger}
}

// Tiers returns the tier names in resolution order.
func (c *Chain) Tiers() []string {
	names := make([]string, 0, len(c.tiers))
	for _, t := range c.tiers {
		names = append(names, t.Name())
	}
	return names
}

// EmbedTexts implements domain.Embedder.
func (c *Chain) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	res, err := c.Resolve(ctx, texts)
	if err != nil {
		return nil, err
	}
	return res.Vectors, nil
}

// Resolve embeds texts with the first tier that succeeds for the entire batch.
func (c *Chain) Resolve(ctx context.Context, texts []string) (Result, error) {
	if len(texts) == 0 {
		return Result{}, nil
	}
	var attempts []Attempt
	for _, t := range c.tiers {
		vectors, err := c.try(ctx, t, texts)
		attempts = append(attempts, Attempt{Tier: t.Name(), Err: err})
		if err == nil {
			c.logger.Debug("embedding tier selected", zap.String("tier", t.Name()), zap.Int("texts", len(texts)))
			return Result{Vectors: vectors, Tier: t.Name(), Attempts: attempts}, nil
		}
		if errors.Is(err, domain.ErrTierUnavailable) {
			c.logger.Debug("embedding tier skipped", zap.String("tier", t.Name()), zap.Error(err))
		} else {
			c.logger.Warn("embedding tier failed", zap.String("tier", t.Name()), zap.Error(err))
		}
		if ctx.Err() != nil {
			break
		}
	}
	return Result{Attempts: attempts}, fmt.Errorf("%w: %s", domain.ErrNoTierSucceeded, summarize(attempts))
}

func (c *Chain) try(ctx context.Context, t Tier, texts []string) ([][]float32, error) {
	if err := t.Available(ctx); err != nil {
		return nil, err
	}
	vectors, err := t.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	if err := checkBatch(vectors, len(texts), t.Dimension()); err != nil {
		return nil, fmt.Errorf("%s: %w", t.Name(), err)
	}
	return vectors, nil
}

func checkBatch(vectors [][]float32, want, dim int) error {
	if len(vectors) != want {
		return fmt.Errorf("got %d vectors for %d texts", len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("empty vector at %d", i)
		}
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d values, want %d", domain.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return nil
}

func summarize(attempts []Attempt) string {
	if len(attempts) == 0 {
		return "no tiers configured"
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		parts = append(parts, a.Tier+": "+a.Err.Error())
	}
	return strings.Join(parts, "; ")
}

// IsPlaceholderKey reports whether an API key is absent or a test placeholder.
func IsPlaceholderKey(key string) bool {
	key = strings.TrimSpace(key)
	return key == "" || strings.HasPrefix(strings.ToLower(key), "test")
}

// Batches splits texts into consecutive slices of at most size elements.
func Batches(texts []string, size int) [][]string {
	if len(texts) == 0 {
		return nil
	}
	if size <= 0 || size > len(texts) {
		size = len(texts)
	}
	out := make([][]string, 0, (len(texts)+size-1)/size)
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		out = append(out, texts[start:end])
	}
	return out
}
