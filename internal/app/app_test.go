package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragqa/internal/config"
	"ragqa/internal/domain"
	"ragqa/internal/vectorstore"
)

func offlineConfig() *config.AppConfig {
	cfg := config.Default()
	cfg.Embedder.Provider = "none"
	cfg.Embedder.Local.Enabled = false
	cfg.Embedder.Stub.Dimension = 24
	return cfg
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := offlineConfig()
	cfg.VectorStore.Backend = "sqlite"
	_, err := New(cfg, nil)
	require.Error(t, err)

	cfg = offlineConfig()
	cfg.Chunker.Overlap = cfg.Chunker.MaxTokens
	_, err = New(cfg, nil)
	require.ErrorIs(t, err, domain.ErrInvalidWindow)

	cfg = offlineConfig()
	cfg.Embedder.Provider = "cohere"
	_, err = New(cfg, nil)
	require.Error(t, err)
}

func TestApp_IngestAndQueryOffline(t *testing.T) {
	a, err := New(offlineConfig(), nil)
	require.NoError(t, err)

	n, err := a.Service.Ingest(context.Background(), []domain.Item{
		{Title: "Flap", Text: "free flap survival after microsurgery", Identifier: "1"},
		{Title: "Graft", Text: "fat grafting retention rates", Identifier: "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	store := a.Stores.Get(context.Background())
	assert.Equal(t, 24, store.Dimension())

	docs, err := a.Service.Query(context.Background(), "fat grafting retention rates", 1)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "2", docs[0].Metadata.Identifier)
}

func TestApp_ChainsRespectStoreDimension(t *testing.T) {
	t.Setenv("RAGQA_TEST_OPENAI_KEY", "sk-real-looking")
	cfg := offlineConfig()
	cfg.Embedder.Provider = "openai"
	cfg.Embedder.OpenAI.APIKeyEnv = "RAGQA_TEST_OPENAI_KEY"
	cfg.Embedder.Local.Enabled = true

	a, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"openai", "local-model", "hash-stub"}, a.Tiers(0))
	assert.Equal(t, []string{"openai"}, a.Tiers(1536))
	assert.Equal(t, []string{"local-model"}, a.Tiers(384))
	assert.Equal(t, []string{"hash-stub"}, a.Tiers(24))
	assert.Same(t, a.entry(384), a.entry(384))
}

// flakyOpenAI answers the first embeddings call with 8-d vectors and fails every later one.
func flakyOpenAI(t *testing.T) *httptest.Server {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) > 1 {
			http.Error(w, "upstream down", http.StatusInternalServerError)
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		type datum struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		var resp struct {
			Data []datum `json:"data"`
		}
		for i := range req.Input {
			v := make([]float32, 8)
			v[i%8] = 1
			resp.Data = append(resp.Data, datum{Index: i, Embedding: v})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestApp_RemoteOutageDoesNotMixTiers(t *testing.T) {
	tests := []struct {
		name    string
		stubDim int
		wantErr error
	}{
		{name: "stub dimension differs", stubDim: 32, wantErr: domain.ErrNoTierSucceeded},
		{name: "stub dimension collides", stubDim: 8, wantErr: domain.ErrTierMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := flakyOpenAI(t)
			t.Setenv("RAGQA_TEST_OPENAI_KEY", "sk-real-looking")
			cfg := offlineConfig()
			cfg.Embedder.Provider = "openai"
			cfg.Embedder.OpenAI.APIKeyEnv = "RAGQA_TEST_OPENAI_KEY"
			cfg.Embedder.OpenAI.BaseURL = srv.URL
			cfg.Embedder.OpenAI.Dimension = 8
			cfg.Embedder.OpenAI.RequestsPerSecond = 0
			cfg.Embedder.Stub.Dimension = tt.stubDim

			a, err := New(cfg, nil)
			require.NoError(t, err)
			ctx := context.Background()

			n, err := a.Service.Ingest(ctx, []domain.Item{{Title: "Flap", Text: "free flap survival", Identifier: "1"}})
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			store := a.Stores.Get(ctx)
			assert.Equal(t, 8, store.Dimension())

			_, err = a.Service.Ingest(ctx, []domain.Item{{Title: "Graft", Text: "fat grafting retention", Identifier: "2"}})
			require.ErrorIs(t, err, tt.wantErr)

			_, err = a.Service.Query(ctx, "fat grafting", 2)
			require.ErrorIs(t, err, tt.wantErr)

			docs, err := store.SimilaritySearch(ctx, []float32{1, 0, 0, 0, 0, 0, 0, 0}, 10)
			require.NoError(t, err)
			require.Len(t, docs, 1)
			assert.Equal(t, "1", docs[0].Metadata.Identifier)
		})
	}
}

func TestApp_RemoteWithoutKeyFallsBackToLocal(t *testing.T) {
	t.Setenv("RAGQA_TEST_PINECONE_KEY", "")
	cfg := offlineConfig()
	cfg.VectorStore.Backend = "remote"
	cfg.VectorStore.Pinecone.APIKeyEnv = "RAGQA_TEST_PINECONE_KEY"

	a, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, vectorstore.BackendRemote, a.Stores.Requested())
	assert.Equal(t, vectorstore.BackendLocal, a.Service.Backend(context.Background()))
	assert.Error(t, a.Stores.FallbackErr())
}
