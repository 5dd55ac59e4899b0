// Package embed turns text into vectors and compares them.
package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

// ErrDimensionMismatch is returned when an encoder yields the wrong number of vectors
var ErrDimensionMismatch = errors.New("encoder returned unexpected number of vectors")

// Encoder converts texts into embedding vectors, one per input, in order.
// Implementations must be deterministic for a fixed model and input.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// NewEncoder builds the encoder selected by configuration
func NewEncoder(ctx context.Context, cfg model.EmbeddingConfig, httpCfg model.HTTPConfig) (Encoder, error) {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return NewOpenAIEncoder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions)
	case "gemini":
		return NewGeminiEncoder(ctx, cfg.APIKey, cfg.Model, cfg.Dimensions)
	case "http":
		return NewHTTPEncoder(cfg.BaseURL, cfg.Model, timeout, httpCfg), nil
	case "hashing":
		return NewHashingEncoder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, gemini, http, hashing)", cfg.Provider)
	}
}

// Cosine returns the cosine similarity of a and b. Zero vectors and
// mismatched lengths compare as 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Similarity is Cosine clamped to [0,1]
func Similarity(a, b []float32) float64 {
	s := Cosine(a, b)
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// checkCount verifies an encoder returned one vector per input
func checkCount(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, want, len(vectors))
	}
	return nil
}
