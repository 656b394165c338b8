package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hdql/internal/config"
	"hdql/internal/vector"
)

func TestHashEmbedder(t *testing.T) {
	h := NewHashEmbedder(512)
	vs, err := h.Embed(context.Background(), []string{
		"add a dependency to the project",
		"Add a Dependency to the project!",
		"remove a dependency from the project",
		"render quarterly sales charts",
		"",
	})
	require.NoError(t, err)
	require.Len(t, vs, 5)
	for _, v := range vs {
		assert.Len(t, v, 512)
	}

	assert.InDelta(t, 1.0, vector.Norm(vs[0]), 1e-5)
	assert.Equal(t, vs[0], vs[1], "case and punctuation are ignored")
	assert.Greater(t, vector.Cosine(vs[0], vs[2]), vector.Cosine(vs[0], vs[3]))
	assert.Less(t, vector.Cosine(vs[0], vs[3]), 0.3)
	assert.Zero(t, vector.Norm(vs[4]))

	again, err := NewHashEmbedder(512).Embed(context.Background(), []string{"add a dependency to the project"})
	require.NoError(t, err)
	assert.Equal(t, vs[0], again[0])
	assert.Equal(t, "hash:512", h.Name())
}

func TestHashEmbedderCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHashEmbedder(8).Embed(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"deps", "add", "v2"}, Tokenize("deps-add (v2)"))
	assert.Empty(t, Tokenize(" --- "))
}

func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Model != "nomic-embed-text" {
			http.Error(w, "model not found", http.StatusNotFound)
			return
		}
		resp := embedResponse{}
		for i := range req.Input {
			resp.Embeddings = append(resp.Embeddings, []float32{float32(i), 1})
		}
		json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tagsResponse{Models: []OllamaModel{{Name: "nomic-embed-text:latest", Size: 274 << 20}}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder(t *testing.T) {
	srv := fakeOllama(t)
	ctx := context.Background()

	e := NewOllamaEmbedder(srv.URL+"/", "nomic-embed-text")
	vs, err := e.Embed(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}, {1, 1}}, vs)
	require.NoError(t, e.CheckModel(ctx))
	assert.Equal(t, "ollama:nomic-embed-text", e.Name())

	empty, err := e.Embed(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, empty)

	missing := NewOllamaEmbedder(srv.URL, "llama-embed")
	_, err = missing.Embed(ctx, []string{"a"})
	assert.ErrorContains(t, err, "404")
	assert.ErrorIs(t, missing.CheckModel(ctx), ErrModelNotFound)

	models, err := ListModels(ctx, srv.URL)
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "nomic-embed-text:latest", models[0].Name)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	e, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "hash:1000", e.Name())

	cfg.Embedder = config.EmbedderOllama
	e, err = FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "ollama:nomic-embed-text", e.Name())

	cfg.Embedder = "bert"
	_, err = FromConfig(cfg)
	assert.Error(t, err)
}
