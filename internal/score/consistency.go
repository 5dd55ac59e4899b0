package score

import (
	"context"
	"fmt"

	"github.com/ppiankov/veracity/internal/embed"
	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/retrieve"
	"github.com/ppiankov/veracity/internal/worker"
)

// ConsistencyResult holds the stability score of repeated answers
type ConsistencyResult struct {
	Score     float64
	Responses []string
	Pairwise  []float64 // Similarity of every unordered pair, (0,1) (0,2) ... order
}

// Consistency asks the retriever the same question tries times, one call at
// a time with spacer enforcing the gap between calls, and scores the mean
// pairwise similarity of the responses. Fewer than two tries score 1.0.
func Consistency(ctx context.Context, question string, r retrieve.Retriever, enc embed.Encoder, tries int, spacer *worker.Spacer) (*ConsistencyResult, error) {
	responses := make([]string, 0, max(tries, 0))
	for i := 0; i < tries; i++ {
		if err := spacer.Wait(ctx); err != nil {
			return nil, err
		}

		answer, err := r.Retrieve(ctx, question, llm.Params{})
		if err != nil {
			return nil, fmt.Errorf("consistency attempt %d: %w", i+1, err)
		}
		responses = append(responses, answer.Text)
	}

	if len(responses) < 2 {
		return &ConsistencyResult{Score: 1.0, Responses: responses}, nil
	}

	score, pairwise, err := PairwiseSimilarity(ctx, responses, enc)
	if err != nil {
		return nil, err
	}
	return &ConsistencyResult{Score: score, Responses: responses, Pairwise: pairwise}, nil
}

// PairwiseSimilarity returns the mean similarity over all unordered pairs
// of texts, along with the individual pair similarities.
func PairwiseSimilarity(ctx context.Context, texts []string, enc embed.Encoder) (float64, []float64, error) {
	if len(texts) < 2 {
		return 1.0, nil, nil
	}

	vectors, err := enc.Encode(ctx, texts)
	if err != nil {
		return 0, nil, fmt.Errorf("encode %d responses: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return 0, nil, fmt.Errorf("%w: want %d, got %d", embed.ErrDimensionMismatch, len(texts), len(vectors))
	}

	pairwise := make([]float64, 0, len(texts)*(len(texts)-1)/2)
	var sum float64
	for i := 0; i < len(vectors); i++ {
		for j := i + 1; j < len(vectors); j++ {
			sim := embed.Similarity(vectors[i], vectors[j])
			pairwise = append(pairwise, sim)
			sum += sim
		}
	}
	return sum / float64(len(pairwise)), pairwise, nil
}
