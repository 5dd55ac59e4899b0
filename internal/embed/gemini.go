package embed

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiEncoder embeds texts with the Gemini EmbedContent API
type GeminiEncoder struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGeminiEncoder creates a new Gemini encoder
func NewGeminiEncoder(ctx context.Context, apiKey, model string, dimensions int) (*GeminiEncoder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required for embeddings")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	if model == "" {
		model = "text-embedding-004"
	}

	return &GeminiEncoder{client: client, model: model, dimensions: dimensions}, nil
}

// Model returns the embedding model name
func (e *GeminiEncoder) Model() string {
	return e.model
}

// Encode embeds all texts in a single batched call
func (e *GeminiEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	cfg := &genai.EmbedContentConfig{}
	if e.dimensions > 0 {
		dim := int32(e.dimensions)
		cfg.OutputDimensionality = &dim
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("no embedding returned from API")
	}

	vectors := make([][]float32, 0, len(result.Embeddings))
	for _, emb := range result.Embeddings {
		vectors = append(vectors, emb.Values)
	}

	if err := checkCount(vectors, len(texts)); err != nil {
		return nil, err
	}
	return vectors, nil
}
