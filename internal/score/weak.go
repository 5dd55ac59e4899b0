package score

import (
	"context"

	"github.com/ppiankov/veracity/internal/embed"
	"github.com/ppiankov/veracity/internal/model"
)

// WeakSentences returns every answer sentence whose best similarity to the
// sources is strictly below threshold. Empty input yields an empty slice.
func WeakSentences(ctx context.Context, answer string, sources []string, enc embed.Encoder, threshold float64) ([]model.WeakSentence, error) {
	scores, err := SentenceScores(ctx, answer, sources, enc)
	if err != nil {
		return nil, err
	}
	return Weak(scores, threshold), nil
}

// Weak filters already computed sentence scores
func Weak(scores []model.SentenceScore, threshold float64) []model.WeakSentence {
	weak := []model.WeakSentence{}
	for i, s := range scores {
		if s.BestSimilarity < threshold {
			weak = append(weak, model.WeakSentence{
				Sentence: s.Sentence,
				Score:    s.BestSimilarity,
				Index:    i,
			})
		}
	}
	return weak
}
