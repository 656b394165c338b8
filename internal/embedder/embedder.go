// Package embedder turns entity text into vectors.
package embedder

import (
	"context"
	"fmt"

	"hdql/internal/config"
)

// Embedder maps texts to vectors of one fixed dimension.
type Embedder interface {
	// Embed returns one vector per text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name identifies the embedder and its model. Vectors from embedders
	// with different names are not comparable.
	Name() string
}

// FromConfig builds the embedder named by cfg.Embedder.
func FromConfig(cfg *config.Config) (Embedder, error) {
	switch cfg.Embedder {
	case config.EmbedderHash:
		return NewHashEmbedder(cfg.Dimension), nil
	case config.EmbedderOllama:
		return NewOllamaEmbedder(cfg.OllamaURL, cfg.EmbedModel), nil
	}
	return nil, fmt.Errorf("unknown embedder %q", cfg.Embedder)
}
