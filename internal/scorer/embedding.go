package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/eventscout/eventscout/internal/domain"
)

// EmbeddingConfig holds embedding service configuration.
type EmbeddingConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// EmbeddingClient scores semantically: it embeds the interest prompt
// via a remote embedding API and compares the vector against the
// event's precomputed embedding.
type EmbeddingClient struct {
	config EmbeddingConfig
	client *http.Client
}

// NewEmbeddingClient creates an embedding client.
func NewEmbeddingClient(config EmbeddingConfig) *EmbeddingClient {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &EmbeddingClient{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Score implements Scorer for events that carry an embedding.
func (c *EmbeddingClient) Score(ctx context.Context, prompt string, event domain.Event) (Result, error) {
	if len(event.Embedding) == 0 {
		return Result{}, fmt.Errorf("event %s has no embedding", event.ID)
	}

	promptVec, err := c.Embed(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("embed prompt: %w", err)
	}

	// Cosine similarity lands in [-1,1] up to rounding: negative
	// similarity carries no relevance signal, and near-parallel vectors
	// can edge past 1 by an epsilon, which downstream score validation
	// rejects. Pin the result to [0,1].
	score := clampUnit(cosineSimilarity(promptVec, event.Embedding))

	return Result{Score: score, MatchType: domain.MatchTypeSemantic}, nil
}

// Embed requests an embedding vector for the given text.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float64, error) {
	reqBody := embeddingRequest{
		Input: []string{text},
		Model: c.config.Model,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding api error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp embeddingResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(apiResp.Data) == 0 {
		return nil, fmt.Errorf("embedding api returned no vectors")
	}

	return apiResp.Data[0].Embedding, nil
}

// clampUnit pins x to [0,1].
func clampUnit(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}

// cosineSimilarity computes similarity between two vectors. Mismatched
// lengths or zero vectors score zero.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}
