// Package score computes the answer-level safety signals: attribution
// against source chunks, weak sentences, consistency across repeated
// answers and semantic entropy across diverse samples.
package score

import (
	"context"
	"fmt"

	"github.com/ppiankov/veracity/internal/embed"
	"github.com/ppiankov/veracity/internal/extract"
	"github.com/ppiankov/veracity/internal/model"
)

// Attribution returns the mean best-match similarity of the answer
// sentences against the sources, and the per-sentence best scores.
// An empty answer or an empty source set scores 0 without calling the encoder.
func Attribution(ctx context.Context, answer string, sources []string, enc embed.Encoder) (float64, []float64, error) {
	scores, err := SentenceScores(ctx, answer, sources, enc)
	if err != nil {
		return 0, nil, err
	}

	perSentence := make([]float64, len(scores))
	for i, s := range scores {
		perSentence[i] = s.BestSimilarity
	}
	return Overall(scores), perSentence, nil
}

// SentenceScores splits the answer into sentences and finds, for each one,
// the most similar source and its similarity.
func SentenceScores(ctx context.Context, answer string, sources []string, enc embed.Encoder) ([]model.SentenceScore, error) {
	sentences := extract.SplitSentences(answer)
	if len(sentences) == 0 || len(sources) == 0 {
		return []model.SentenceScore{}, nil
	}

	// One round trip for both sides
	texts := make([]string, 0, len(sentences)+len(sources))
	texts = append(texts, sentences...)
	texts = append(texts, sources...)

	vectors, err := enc.Encode(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("encode %d sentences and %d sources: %w", len(sentences), len(sources), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: want %d, got %d", embed.ErrDimensionMismatch, len(texts), len(vectors))
	}

	sentenceVecs := vectors[:len(sentences)]
	sourceVecs := vectors[len(sentences):]

	scores := make([]model.SentenceScore, len(sentences))
	for i, sv := range sentenceVecs {
		best, bestIdx := 0.0, -1
		for j, src := range sourceVecs {
			if sim := embed.Similarity(sv, src); bestIdx < 0 || sim > best {
				best, bestIdx = sim, j
			}
		}
		scores[i] = model.SentenceScore{
			Sentence:       sentences[i],
			BestSimilarity: best,
			SourceIndex:    bestIdx,
		}
	}
	return scores, nil
}

// Overall is the arithmetic mean of the best similarities, 0 for no sentences
func Overall(scores []model.SentenceScore) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s.BestSimilarity
	}
	return sum / float64(len(scores))
}
