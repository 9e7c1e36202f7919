package ollama

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragqa/internal/domain"
)

func TestClient_EmbedTexts_Normalized(t *testing.T) {
	var embedCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/show":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{}`))
		case "/api/embed":
			embedCalls++
			var req embedRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			out := embedResponse{Model: req.Model}
			for range req.Input {
				out.Embeddings = append(out.Embeddings, []float32{3, 4, 0})
			}
			_ = json.NewEncoder(w).Encode(out)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Dimension: 3})
	require.NoError(t, c.Available(context.Background()))

	vectors, err := c.EmbedTexts(context.Background(), []string{"x", "y"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, 1, embedCalls)
	for _, v := range vectors {
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
	}
}

func TestClient_Available_ModelMissingIsCached(t *testing.T) {
	var showCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		showCalls++
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	err := c.Available(context.Background())
	require.ErrorIs(t, err, domain.ErrTierUnavailable)
	require.ErrorIs(t, c.Available(context.Background()), domain.ErrTierUnavailable)
	assert.Equal(t, 1, showCalls)
}

func TestClient_Available_IgnoresCancelledCaller(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/show", r.URL.Path)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, c.Available(ctx))
	require.NoError(t, c.Available(context.Background()))
}

func TestNormalize_ZeroVector(t *testing.T) {
	v := []float32{0, 0}
	normalize(v)
	assert.Equal(t, []float32{0, 0}, v)
}
