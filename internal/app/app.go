// Package app assembles the retrieval components from config. One App is built per process
// and passed to whatever drives it.
package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"ragqa/internal/chunker"
	"ragqa/internal/config"
	"ragqa/internal/embedding"
	"ragqa/internal/embedding/cache"
	"ragqa/internal/embedding/gemini"
	"ragqa/internal/embedding/hashstub"
	"ragqa/internal/embedding/ollama"
	"ragqa/internal/embedding/openai"
	"ragqa/internal/service"
	"ragqa/internal/vectorstore"
	"ragqa/internal/vectorstore/registry"
	"ragqa/internal/vectorstore/remote"
)

type App struct {
	Config  *config.AppConfig
	Logger  *zap.Logger
	Stores  *registry.Registry
	Service *service.RAGServiceImpl

	remoteTier embedding.Tier
	localTier  embedding.Tier

	mu     sync.Mutex
	chains map[int]*chainEntry
}

type chainEntry struct {
	chain    *embedding.Chain
	resolver embedding.Resolver
}

func New(cfg *config.AppConfig, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	backend, err := vectorstore.ParseBackend(cfg.VectorStore.Backend)
	if err != nil {
		return nil, err
	}
	ch, err := chunker.NewWordChunker(cfg.Chunker.MaxTokens, cfg.Chunker.Overlap)
	if err != nil {
		return nil, err
	}
	a := &App{
		Config: cfg,
		Logger: logger,
		chains: make(map[int]*chainEntry),
	}
	a.remoteTier, err = newRemoteTier(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	if cfg.Embedder.Local.Enabled {
		a.localTier = ollama.NewClient(ollama.Config{
			BaseURL:   cfg.Embedder.Local.BaseURL,
			Model:     cfg.Embedder.Local.Model,
			Dimension: cfg.Embedder.Local.Dimension,
			Timeout:   config.Seconds(cfg.Embedder.Local.TimeoutSecs),
		})
	}
	a.Stores = registry.New(backend, a.newRemoteStore, logger.Named("vectorstore"))
	a.Service = service.NewRAGService(ch, a.Stores, a, logger.Named("service"))
	return a, nil
}

func newRemoteTier(cfg config.EmbedderConfig) (embedding.Tier, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewClient(openai.Config{
			BaseURL:           cfg.OpenAI.BaseURL,
			APIKey:            cfg.OpenAI.APIKey(),
			Model:             cfg.OpenAI.Model,
			Dimension:         cfg.OpenAI.Dimension,
			BatchSize:         cfg.OpenAI.BatchSize,
			Timeout:           config.Seconds(cfg.OpenAI.TimeoutSecs),
			RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
		}), nil
	case "gemini":
		return gemini.NewClient(gemini.Config{
			BaseURL:   cfg.Gemini.BaseURL,
			APIKey:    cfg.Gemini.APIKey(),
			Model:     cfg.Gemini.Model,
			Dimension: cfg.Gemini.Dimension,
			BatchSize: cfg.Gemini.BatchSize,
			Timeout:   config.Seconds(cfg.Gemini.TimeoutSecs),
		}), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

func (a *App) newRemoteStore(ctx context.Context) (vectorstore.Storage, error) {
	p := a.Config.VectorStore.Pinecone
	return remote.NewStorage(ctx, remote.Config{
		APIKey:            p.APIKey(),
		IndexName:         p.Index,
		Dimension:         p.Dimension,
		Cloud:             p.Cloud,
		Region:            p.Region,
		Namespace:         p.Namespace,
		ControlURL:        p.ControlURL,
		ContentChars:      p.ContentChars,
		Timeout:           config.Seconds(p.TimeoutSecs),
		RequestsPerSecond: p.RequestsPerSecond,
	}, a.Logger.Named("pinecone"))
}

// For returns the embedding chain for stores pinned to dim. Chains are built once per dimension.
func (a *App) For(dim int) embedding.Resolver {
	return a.entry(dim).resolver
}

// Tiers lists the tier names that would serve a store pinned to dim.
func (a *App) Tiers(dim int) []string {
	return a.entry(dim).chain.Tiers()
}

func (a *App) entry(dim int) *chainEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.chains[dim]; ok {
		return e
	}
	var tiers []embedding.Tier
	if a.remoteTier != nil {
		tiers = append(tiers, a.remoteTier)
	}
	if a.localTier != nil {
		tiers = append(tiers, a.localTier)
	}
	tiers = append(tiers, hashstub.New(a.Config.Embedder.Stub.Dimension))

	logger := a.Logger.Named("embedding")
	chain := embedding.NewChain(logger, dim, tiers...)
	c := a.Config.Embedder.Cache
	e := &chainEntry{
		chain:    chain,
		resolver: cache.Wrap(chain, c.Size, config.Seconds(c.TTLSecs), logger),
	}
	a.chains[dim] = e
	return e
}

// Close flushes the logger.
func (a *App) Close() {
	_ = a.Logger.Sync()
}
