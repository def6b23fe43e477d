package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"time"
)

// CLIPEmbedder talks to a CLIP-style embedding service exposing an
// OpenAI-compatible embeddings endpoint that accepts base64 images.
type CLIPEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	dims    int
}

// NewCLIPEmbedder creates a new CLIP service embedder.
func NewCLIPEmbedder(baseURL, apiKey, model string) (*CLIPEmbedder, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("CLIP service URL is required")
	}
	if model == "" {
		model = "clip-vit-base-patch32"
	}

	return &CLIPEmbedder{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
		dims:    512, // ViT-B/32 projection size
	}, nil
}

// Embed generates an embedding for a single image.
func (c *CLIPEmbedder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	encoded, err := encodePNGBase64(img)
	if err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"model": c.model,
		"input": []string{encoded},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/embeddings",
		bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return nil, fmt.Errorf("CLIP service error (status %d): %s", resp.StatusCode, errResp.Error.Message)
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	return result.Data[0].Embedding, nil
}

// Dimensions returns the embedding dimension size.
func (c *CLIPEmbedder) Dimensions() int {
	return c.dims
}

// Name returns the model name.
func (c *CLIPEmbedder) Name() string {
	return fmt.Sprintf("clip/%s", c.model)
}
