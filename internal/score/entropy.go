package score

import (
	"context"
	"fmt"
	"math"

	"github.com/ppiankov/veracity/internal/embed"
	"github.com/ppiankov/veracity/internal/extract"
	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/retrieve"
	"github.com/ppiankov/veracity/internal/worker"
)

// Clustering selects how entropy sentences are grouped
type Clustering string

const (
	// ClusterGreedy seeds a cluster with the first unclustered sentence and
	// attaches later sentences similar to the seed. Depends on input order.
	ClusterGreedy Clustering = "greedy"

	// ClusterConnected groups the connected components of the similarity
	// graph. Independent of input order.
	ClusterConnected Clustering = "connected"
)

const (
	interpretHighUncertainty   = "HIGH uncertainty - likely hallucination"
	interpretMediumUncertainty = "MEDIUM uncertainty - review recommended"
	interpretLowUncertainty    = "LOW uncertainty - confident answer"
)

// EntropyOptions tunes the semantic entropy estimator
type EntropyOptions struct {
	MinSentenceLength int
	Clustering        Clustering
	Thresholds        model.Thresholds
	Spacer            *worker.Spacer
}

// DefaultEntropyOptions returns greedy clustering over sentences of at least 10 characters
func DefaultEntropyOptions() EntropyOptions {
	return EntropyOptions{
		MinSentenceLength: 10,
		Clustering:        ClusterGreedy,
		Thresholds:        model.DefaultThresholds(),
	}
}

// EntropyOptionsFromConfig builds options from the safety configuration
func EntropyOptionsFromConfig(cfg model.SafetyConfig, spacer *worker.Spacer) EntropyOptions {
	return EntropyOptions{
		MinSentenceLength: cfg.MinEntropySentenceLength,
		Clustering:        Clustering(cfg.Clustering),
		Thresholds:        cfg.Thresholds,
		Spacer:            spacer,
	}
}

// Entropy samples the retriever samples times at the given temperature and
// measures the semantic entropy of the pooled response sentences. The
// temperature travels with each call and is never stored on a client.
func Entropy(ctx context.Context, question string, r retrieve.Retriever, enc embed.Encoder, samples int, temperature float64, opts EntropyOptions) (*model.EntropyResult, error) {
	responses := make([]string, 0, max(samples, 0))
	for i := 0; i < samples; i++ {
		if err := opts.Spacer.Wait(ctx); err != nil {
			return nil, err
		}

		answer, err := r.Retrieve(ctx, question, llm.WithTemperature(temperature))
		if err != nil {
			return nil, fmt.Errorf("entropy sample %d: %w", i+1, err)
		}
		responses = append(responses, answer.Text)
	}

	value, sizes, err := SentenceEntropy(ctx, responses, enc, opts)
	if err != nil {
		return nil, err
	}

	confidence, uncertainty, interpretation := ClassifyEntropy(value, opts.Thresholds)

	total := 0
	for _, s := range sizes {
		total += s
	}

	return &model.EntropyResult{
		SemanticEntropy: value,
		Confidence:      confidence,
		Uncertainty:     uncertainty,
		Interpretation:  interpretation,
		HighUncertainty: value >= opts.Thresholds.HighUncertainty,
		NumSentences:    total,
		ClusterSizes:    sizes,
		Responses:       responses,
	}, nil
}

// SentenceEntropy pools the sentences of all responses, clusters them by
// similarity and returns the Shannon entropy (bits) of the cluster sizes.
// Fewer than two sentences give 0.
func SentenceEntropy(ctx context.Context, responses []string, enc embed.Encoder, opts EntropyOptions) (float64, []int, error) {
	var sentences []string
	for _, resp := range responses {
		sentences = append(sentences, extract.SplitSentencesMin(resp, opts.MinSentenceLength)...)
	}

	if len(sentences) < 2 {
		sizes := []int{}
		if len(sentences) == 1 {
			sizes = []int{1}
		}
		return 0, sizes, nil
	}

	vectors, err := enc.Encode(ctx, sentences)
	if err != nil {
		return 0, nil, fmt.Errorf("encode %d entropy sentences: %w", len(sentences), err)
	}
	if len(vectors) != len(sentences) {
		return 0, nil, fmt.Errorf("%w: want %d, got %d", embed.ErrDimensionMismatch, len(sentences), len(vectors))
	}

	threshold := opts.Thresholds.ClusterSimilarity

	var sizes []int
	switch opts.Clustering {
	case ClusterConnected:
		sizes = connectedClusters(vectors, threshold)
	case ClusterGreedy, "":
		sizes = greedyClusters(vectors, threshold)
	default:
		return 0, nil, fmt.Errorf("unknown clustering strategy: %s", opts.Clustering)
	}

	return shannon(sizes, len(sentences)), sizes, nil
}

// ClassifyEntropy maps an entropy value onto the confidence bands
func ClassifyEntropy(entropy float64, th model.Thresholds) (model.Confidence, model.Uncertainty, string) {
	switch {
	case entropy >= th.EntropyHigh:
		return model.ConfidenceLow, model.UncertaintyHigh, interpretHighUncertainty
	case entropy >= th.EntropyMedium:
		return model.ConfidenceMedium, model.UncertaintyMedium, interpretMediumUncertainty
	default:
		return model.ConfidenceHigh, model.UncertaintyLow, interpretLowUncertainty
	}
}

// greedyClusters makes one pass in input order. Similarity is measured
// against the seed only.
func greedyClusters(vectors [][]float32, threshold float64) []int {
	used := make([]bool, len(vectors))
	var sizes []int

	for i := range vectors {
		if used[i] {
			continue
		}
		used[i] = true
		size := 1

		for j := i + 1; j < len(vectors); j++ {
			if used[j] {
				continue
			}
			if embed.Cosine(vectors[i], vectors[j]) > threshold {
				used[j] = true
				size++
			}
		}
		sizes = append(sizes, size)
	}
	return sizes
}

// connectedClusters unions every pair above threshold. Sizes are reported
// in order of each component's first member.
func connectedClusters(vectors [][]float32, threshold float64) []int {
	parent := make([]int, len(vectors))
	for i := range parent {
		parent[i] = i
	}

	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	for i := range vectors {
		for j := i + 1; j < len(vectors); j++ {
			if embed.Cosine(vectors[i], vectors[j]) > threshold {
				a, b := find(i), find(j)
				if a == b {
					continue
				}
				if a < b {
					parent[b] = a
				} else {
					parent[a] = b
				}
			}
		}
	}

	counts := make(map[int]int)
	var roots []int
	for i := range vectors {
		root := find(i)
		if counts[root] == 0 {
			roots = append(roots, root)
		}
		counts[root]++
	}

	sizes := make([]int, len(roots))
	for i, root := range roots {
		sizes[i] = counts[root]
	}
	return sizes
}

// shannon returns -sum(p*log2(p)) with p = size/total
func shannon(sizes []int, total int) float64 {
	if total == 0 {
		return 0
	}
	var entropy float64
	for _, size := range sizes {
		if size == 0 {
			continue
		}
		p := float64(size) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}
