package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragqa/internal/domain"
	"ragqa/internal/embedding"
	"ragqa/internal/vectorstore"
)

// StoreProvider hands out the active vector store.
type StoreProvider interface {
	Get(ctx context.Context) vectorstore.Storage
}

// EmbedderProvider returns a resolver whose vectors have length dim. dim 0 accepts any tier.
type EmbedderProvider interface {
	For(dim int) embedding.Resolver
}

// EmbedderFunc adapts a function to EmbedderProvider.
type EmbedderFunc func(dim int) embedding.Resolver

func (f EmbedderFunc) For(dim int) embedding.Resolver { return f(dim) }

type RAGServiceImpl struct {
	chunker   domain.Chunker
	stores    StoreProvider
	embedders EmbedderProvider
	logger    *zap.Logger

	mu sync.Mutex
	// tier that wrote the first vectors of each store
	pinned map[vectorstore.Storage]string
}

func NewRAGService(chunker domain.Chunker, stores StoreProvider, embedders EmbedderProvider, logger *zap.Logger) *RAGServiceImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RAGServiceImpl{
		chunker:   chunker,
		stores:    stores,
		embedders: embedders,
		logger:    logger,
		pinned:    make(map[vectorstore.Storage]string),
	}
}

// Ingest chunks every item, embeds all chunks in one call and stores them in one Add.
// It returns the number of stored chunks.
func (s *RAGServiceImpl) Ingest(ctx context.Context, items []domain.Item) (int, error) {
	var (
		texts []string
		docs  []domain.Document
		ids   []string
	)
	for _, it := range items {
		chunks, err := s.chunker.Chunk(it.Text)
		if err != nil {
			return 0, fmt.Errorf("chunk %q: %w", it.Title, err)
		}
		meta := it.Metadata()
		for _, ch := range chunks {
			docs = append(docs, domain.Document{Content: ch, Metadata: meta})
			texts = append(texts, ch)
			ids = append(ids, uuid.NewString())
		}
	}
	if len(docs) == 0 {
		return 0, nil
	}

	store := s.stores.Get(ctx)
	res, err := s.embed(ctx, store, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if err := store.Add(ctx, ids, res.Vectors, docs); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}
	s.pin(store, res.Tier)
	s.logger.Info("ingested",
		zap.Int("items", len(items)),
		zap.Int("chunks", len(docs)),
		zap.String("backend", string(store.Backend())),
		zap.String("tier", res.Tier),
	)
	return len(docs), nil
}

// Query embeds the question and returns up to k similar documents.
func (s *RAGServiceImpl) Query(ctx context.Context, question string, k int) ([]domain.Document, error) {
	if k <= 0 {
		return nil, domain.ErrInvalidK
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("empty question")
	}
	store := s.stores.Get(ctx)
	res, err := s.embed(ctx, store, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	docs, err := store.SimilaritySearch(ctx, res.Vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	s.logger.Debug("query", zap.Int("k", k), zap.Int("results", len(docs)))
	return docs, nil
}

// embed resolves texts against the chain for the store's dimension and rejects
// vectors from a tier other than the one that filled the store.
func (s *RAGServiceImpl) embed(ctx context.Context, store vectorstore.Storage, texts []string) (embedding.Result, error) {
	res, err := s.embedders.For(store.Dimension()).Resolve(ctx, texts)
	if err != nil {
		return embedding.Result{}, err
	}
	s.mu.Lock()
	want := s.pinned[store]
	s.mu.Unlock()
	if want != "" && res.Tier != want {
		return embedding.Result{}, fmt.Errorf("%w: store holds %s vectors, got %s", domain.ErrTierMismatch, want, res.Tier)
	}
	return res, nil
}

func (s *RAGServiceImpl) pin(store vectorstore.Storage, tier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pinned[store]; !ok && tier != "" {
		s.pinned[store] = tier
	}
}

// Backend reports which store is serving requests.
func (s *RAGServiceImpl) Backend(ctx context.Context) vectorstore.Backend {
	return s.stores.Get(ctx).Backend()
}
