package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TeiEmbedder uses HuggingFace Text Embeddings Inference.
type TeiEmbedder struct {
	url        string
	httpClient *http.Client
}

func NewTeiEmbedder(url string) *TeiEmbedder {
	if url == "" {
		url = "http://localhost:8080"
	}
	return &TeiEmbedder{
		url:        strings.TrimSuffix(url, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *TeiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	batch, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, fmt.Errorf("empty response from TEI")
	}
	return batch[0], nil
}

// EmbedBatch posts {"inputs": [...], "normalize": true, "truncate": true} to /embed.
func (e *TeiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	jsonBody, err := json.Marshal(map[string]any{
		"inputs":    texts,
		"normalize": true,
		"truncate":  true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.url+"/embed", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tei error %d: %s", resp.StatusCode, string(body))
	}

	var embeddings [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&embeddings); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return embeddings, nil
}

// Dimensions assumes BAAI/bge-small-en-v1.5, the default TEI model.
func (e *TeiEmbedder) Dimensions() int {
	return 384
}
