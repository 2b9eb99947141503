package rag

import (
	"context"
	"fmt"
)

// Message roles used in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Prompt is everything sent to the generator for one answer.
type Prompt struct {
	System   string
	History  []Message
	Question string
}

// Embedder turns texts into vectors, one per text, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryEmbedder is implemented by embedders that encode search queries
// differently from the documents they are matched against.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// embedQuery embeds one search query, as a query when e supports it.
func embedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	if q, ok := e.(QueryEmbedder); ok {
		return q.EmbedQuery(ctx, text)
	}
	v, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(v) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 text", len(v))
	}
	return v[0], nil
}

// Generator produces an answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}
