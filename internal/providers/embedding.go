package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hubenschmidt/meeting-ingest/gateway/internal/metrics"
)

// OllamaEmbeddingProvider generates vector embeddings via Ollama's /api/embed.
type OllamaEmbeddingProvider struct {
	url       string
	modelName string
	dim       int
	client    *http.Client
}

// NewOllamaEmbeddingProvider creates an Ollama embedding client. dim is the
// embedding provider's declared dimension, used to validate vector-store
// collection compatibility (VECTOR_DIM_MISMATCH).
func NewOllamaEmbeddingProvider(url, modelName string, dim, poolSize int) *OllamaEmbeddingProvider {
	return &OllamaEmbeddingProvider{
		url:       url,
		modelName: modelName,
		dim:       dim,
		client:    NewPooledHTTPClient(poolSize, 30*time.Second),
	}
}

// Dimension reports the declared embedding dimension.
func (c *OllamaEmbeddingProvider) Dimension() int { return c.dim }

// Ready probes whether Ollama is reachable.
func (c *OllamaEmbeddingProvider) Ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", c.url+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Embed sends one or more texts to Ollama and returns their embedding vectors.
func (c *OllamaEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	start := time.Now()
	out := make([][]float64, 0, len(texts))

	for _, text := range texts {
		vec, err := c.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}

	metrics.EmbeddingDuration.Observe(time.Since(start).Seconds())
	return out, nil
}

func (c *OllamaEmbeddingProvider) embedOne(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embedRequest{Model: c.modelName, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed status %d", resp.StatusCode)
	}

	var result embedResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return result.Embeddings[0], nil
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
}
