package rag

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const (
	DefaultGenerationModel = "gemini-1.5-flash"
	DefaultEmbeddingModel  = "text-embedding-004"

	embedBatchSize = 100
)

type GeminiConfig struct {
	APIKey          string
	Model           string
	EmbeddingModel  string
	Temperature     float32
	MaxOutputTokens int32
}

// GeminiClient implements Embedder and Generator with the Gemini API.
type GeminiClient struct {
	client      *genai.Client
	model       string
	embedModel  string
	temperature float32
	maxTokens   int32
}

var (
	_ Embedder      = (*GeminiClient)(nil)
	_ QueryEmbedder = (*GeminiClient)(nil)
	_ Generator     = (*GeminiClient)(nil)
)

func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGenerationModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = 1024
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{
		client:      client,
		model:       cfg.Model,
		embedModel:  cfg.EmbeddingModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxOutputTokens,
	}, nil
}

const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// Embed implements Embedder. Texts are embedded as documents to retrieve.
func (g *GeminiClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return g.embed(ctx, texts, taskRetrievalDocument)
}

// EmbedQuery implements QueryEmbedder.
func (g *GeminiClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := g.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (g *GeminiClient) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}
		resp, err := g.client.Models.EmbedContent(ctx, g.embedModel, contents, &genai.EmbedContentConfig{
			TaskType: taskType,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini embed: %w", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini embed: got %d embeddings for %d texts", len(resp.Embeddings), end-start)
		}
		for _, e := range resp.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}

// Generate implements Generator.
func (g *GeminiClient) Generate(ctx context.Context, p Prompt) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: g.maxTokens,
	}
	if p.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: p.System}},
		}
	}
	contents := make([]*genai.Content, 0, len(p.History)+1)
	for _, m := range p.History {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(p.Question, genai.RoleUser))

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("gemini generate: empty response")
	}
	return text, nil
}
