package embeddings

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"time"
)

// OllamaEmbedder generates image embeddings through Ollama's local API
// using a multimodal model.
type OllamaEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
	dims    int
}

// NewOllamaEmbedder creates a new Ollama embedder.
func NewOllamaEmbedder(baseURL, model string) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llava"
	}

	return &OllamaEmbedder{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
		dims:    4096, // llava projection size
	}
}

// Embed generates an embedding for a single image.
func (o *OllamaEmbedder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	encoded, err := encodePNGBase64(img)
	if err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"model":  o.model,
		"prompt": "",
		"images": []string{encoded},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/api/embeddings",
		bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}

	return result.Embedding, nil
}

// Dimensions returns the embedding dimension size.
func (o *OllamaEmbedder) Dimensions() int {
	return o.dims
}

// Name returns the model name.
func (o *OllamaEmbedder) Name() string {
	return fmt.Sprintf("ollama/%s", o.model)
}

// encodePNGBase64 re-encodes the image for transport to an embedding
// service.
func encodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
