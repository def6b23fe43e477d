// Package embeddings binds the embedding models that turn a decoded
// image into a fixed-length vector.
package embeddings

import (
	"context"
	"fmt"
	"image"
)

// Embedder generates vector embeddings for images.
type Embedder interface {
	// Embed generates an embedding vector for a single image.
	Embed(ctx context.Context, img image.Image) ([]float32, error)

	// Dimensions returns the size of the embedding vectors.
	Dimensions() int

	// Name returns the name/model of this embedder.
	Name() string
}

// Config holds configuration for creating an embedder.
type Config struct {
	Provider string `yaml:"provider"`

	// Ollama config
	OllamaURL   string `yaml:"ollama_url,omitempty"`
	OllamaModel string `yaml:"ollama_model,omitempty"`

	// CLIP service config
	CLIPURL   string `yaml:"clip_url,omitempty"`
	CLIPKey   string `yaml:"clip_key,omitempty"`
	CLIPModel string `yaml:"clip_model,omitempty"`
}

// NewEmbedder creates an embedder based on the config. An empty
// provider defaults to the built-in pixel embedder, which needs no
// external service.
func NewEmbedder(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "", "pixel":
		return NewPixelEmbedder(), nil
	case "ollama":
		return NewOllamaEmbedder(cfg.OllamaURL, cfg.OllamaModel), nil
	case "clip":
		return NewCLIPEmbedder(cfg.CLIPURL, cfg.CLIPKey, cfg.CLIPModel)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
