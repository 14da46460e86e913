package store

import (
	"context"
	"fmt"

	"github.com/paperdesk/paperdesk/internal/ollama"
)

// OllamaEmbedder generates embeddings through a local Ollama instance.
type OllamaEmbedder struct {
	client *ollama.Client
	model  string
}

// NewOllamaEmbedder creates an embedder using the given client and model name.
func NewOllamaEmbedder(c *ollama.Client, model string) *OllamaEmbedder {
	return &OllamaEmbedder{client: c, model: model}
}

// Embed returns the embedding vector for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.client.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vec, nil
}
