package score

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/veracity/internal/embed"
	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/retrieve"
)

type scriptedRetriever struct {
	responses []string
	err       error
	calls     int
	params    []llm.Params
}

func (s *scriptedRetriever) Retrieve(ctx context.Context, question string, params llm.Params) (*model.Answer, error) {
	s.params = append(s.params, params)
	if s.err != nil {
		return nil, s.err
	}
	text := s.responses[s.calls%len(s.responses)]
	s.calls++
	return &model.Answer{Text: text}, nil
}

type failingEncoder struct{}

func (failingEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("encoder offline")
}

func (failingEncoder) Model() string { return "failing" }

func newEncoder() embed.Encoder {
	return embed.NewHashingEncoder(0)
}

func TestAttribution_EmptyInputs(t *testing.T) {
	ctx := context.Background()

	overall, perSentence, err := Attribution(ctx, "", []string{"Pneumonia is treated with antibiotics."}, failingEncoder{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, overall)
	assert.Empty(t, perSentence)

	overall, perSentence, err = Attribution(ctx, "Pneumonia is treated with antibiotics.", nil, failingEncoder{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, overall)
	assert.Empty(t, perSentence)

	overall, _, err = Attribution(ctx, " . ! ? ", []string{"source"}, failingEncoder{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, overall)
}

func TestAttribution_ExactSupport(t *testing.T) {
	ctx := context.Background()
	answer := "Pneumonia is treated with antibiotics."
	sources := []string{"Pneumonia is treated with antibiotics."}

	overall, perSentence, err := Attribution(ctx, answer, sources, newEncoder())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, overall, 1e-6)
	require.Len(t, perSentence, 1)

	weak, err := WeakSentences(ctx, answer, sources, newEncoder(), 0.5)
	require.NoError(t, err)
	assert.Empty(t, weak)
}

func TestAttribution_BoundedAndBestSource(t *testing.T) {
	ctx := context.Background()
	answer := "Pneumonia is treated with antibiotics. Rest helps recovery! Is chocolate a cure?"
	sources := []string{
		"Guidelines recommend rest and fluids to help recovery.",
		"Pneumonia is usually treated with antibiotics such as amoxicillin.",
	}

	scores, err := SentenceScores(ctx, answer, sources, newEncoder())
	require.NoError(t, err)
	require.Len(t, scores, 3)

	assert.Equal(t, 1, scores[0].SourceIndex)
	assert.Equal(t, 0, scores[1].SourceIndex)
	for _, s := range scores {
		assert.GreaterOrEqual(t, s.BestSimilarity, 0.0)
		assert.LessOrEqual(t, s.BestSimilarity, 1.0)
	}

	overall := Overall(scores)
	assert.GreaterOrEqual(t, overall, 0.0)
	assert.LessOrEqual(t, overall, 1.0)
}

func TestAttribution_EncoderError(t *testing.T) {
	_, _, err := Attribution(context.Background(), "One sentence here.", []string{"source"}, failingEncoder{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encoder offline")
}

func TestWeakSentences_Monotonic(t *testing.T) {
	ctx := context.Background()
	answer := "Pneumonia is treated with antibiotics. Rest helps recovery. Chocolate cures everything. Fluids are useful for patients."
	sources := []string{
		"Pneumonia is treated with antibiotics.",
		"Rest and fluids help patients recover.",
	}

	scores, err := SentenceScores(ctx, answer, sources, newEncoder())
	require.NoError(t, err)

	previous := map[int]bool{}
	for _, threshold := range []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1.01} {
		weak := Weak(scores, threshold)

		current := map[int]bool{}
		for _, w := range weak {
			current[w.Index] = true
			assert.Less(t, w.Score, threshold)
			assert.Equal(t, scores[w.Index].Sentence, w.Sentence)
		}
		for idx := range previous {
			assert.True(t, current[idx], "sentence %d dropped out at threshold %.2f", idx, threshold)
		}
		previous = current
	}

	assert.Empty(t, Weak(scores, 0))
	assert.Len(t, Weak(scores, 1.01), len(scores))
}

func TestWeakSentences_FlagsUnsupported(t *testing.T) {
	weak, err := WeakSentences(context.Background(),
		"Pneumonia is treated with antibiotics. Chocolate cures everything.",
		[]string{"Pneumonia is treated with antibiotics."},
		newEncoder(), 0.5)
	require.NoError(t, err)
	require.Len(t, weak, 1)
	assert.Equal(t, "Chocolate cures everything", weak[0].Sentence)
	assert.Equal(t, 1, weak[0].Index)
	assert.Less(t, weak[0].Score, 0.5)
}

func TestConsistency_SingleTry(t *testing.T) {
	r := &scriptedRetriever{responses: []string{"Anything at all."}}

	result, err := Consistency(context.Background(), "q", r, failingEncoder{}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Score)
	assert.Equal(t, 1, r.calls)
	assert.Len(t, result.Responses, 1)

	result, err = Consistency(context.Background(), "q", r, failingEncoder{}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Score)
	assert.Equal(t, 1, r.calls)
}

func TestConsistency_IdenticalResponses(t *testing.T) {
	r := &scriptedRetriever{responses: []string{"Pneumonia is treated with antibiotics."}}

	result, err := Consistency(context.Background(), "How is pneumonia treated?", r, newEncoder(), 3, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, result.Score, 1e-6)
	assert.Equal(t, 3, r.calls)
	assert.Len(t, result.Pairwise, 3)

	for _, p := range r.params {
		assert.Nil(t, p.Temperature)
	}
}

func TestConsistency_PermutationInvariant(t *testing.T) {
	responses := []string{
		"Pneumonia is treated with antibiotics.",
		"Doctors treat pneumonia using antibiotics and rest.",
		"Vaccines prevent some forms of pneumonia.",
	}
	permuted := []string{responses[2], responses[0], responses[1]}

	a, err := Consistency(context.Background(), "q", &scriptedRetriever{responses: responses}, newEncoder(), 3, nil)
	require.NoError(t, err)
	b, err := Consistency(context.Background(), "q", &scriptedRetriever{responses: permuted}, newEncoder(), 3, nil)
	require.NoError(t, err)

	assert.InDelta(t, a.Score, b.Score, 1e-9)
	assert.Less(t, a.Score, 1.0)
}

func TestConsistency_RetrievalFailure(t *testing.T) {
	r := &scriptedRetriever{err: fmt.Errorf("%w: engine down", retrieve.ErrRetrieval)}

	_, err := Consistency(context.Background(), "q", r, newEncoder(), 3, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, retrieve.ErrRetrieval))
	assert.Equal(t, 1, len(r.params))
}

func TestConsistency_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &scriptedRetriever{responses: []string{"text"}}
	_, err := Consistency(ctx, "q", r, newEncoder(), 3, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, r.calls)
}

func TestEntropy_IdenticalSamples(t *testing.T) {
	r := &scriptedRetriever{responses: []string{"Pneumonia is treated with antibiotics."}}

	result, err := Entropy(context.Background(), "q", r, newEncoder(), 3, 0.8, DefaultEntropyOptions())
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.SemanticEntropy)
	assert.Equal(t, []int{3}, result.ClusterSizes)
	assert.Equal(t, 3, result.NumSentences)
	assert.Equal(t, model.ConfidenceHigh, result.Confidence)
	assert.Equal(t, model.UncertaintyLow, result.Uncertainty)
	assert.False(t, result.HighUncertainty)
	assert.Len(t, result.Responses, 3)
}

func TestEntropy_TemperaturePerCall(t *testing.T) {
	r := &scriptedRetriever{responses: []string{"Pneumonia is treated with antibiotics."}}

	_, err := Entropy(context.Background(), "q", r, newEncoder(), 4, 0.8, DefaultEntropyOptions())
	require.NoError(t, err)
	require.Len(t, r.params, 4)
	for _, p := range r.params {
		require.NotNil(t, p.Temperature)
		assert.Equal(t, 0.8, *p.Temperature)
	}
}

func TestSentenceEntropy_DissimilarSentences(t *testing.T) {
	responses := []string{
		"Aspirin reduces fever quickly. Mountains rise above clouds.",
		"Violins produce beautiful music. Engineers design sturdy bridges.",
	}

	value, sizes, err := SentenceEntropy(context.Background(), responses, newEncoder(), DefaultEntropyOptions())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1, 1}, sizes)
	assert.InDelta(t, math.Log2(4), value, 1e-12)

	confidence, uncertainty, _ := ClassifyEntropy(value, model.DefaultThresholds())
	assert.Equal(t, model.ConfidenceLow, confidence)
	assert.Equal(t, model.UncertaintyHigh, uncertainty)
}

func TestSentenceEntropy_ShortSentencesDropped(t *testing.T) {
	value, sizes, err := SentenceEntropy(context.Background(), []string{"Yes. No. Maybe so."}, failingEncoder{}, DefaultEntropyOptions())
	require.NoError(t, err)
	assert.Equal(t, 0.0, value)
	assert.Empty(t, sizes)

	value, sizes, err = SentenceEntropy(context.Background(), []string{"Only one long sentence here. Ok."}, failingEncoder{}, DefaultEntropyOptions())
	require.NoError(t, err)
	assert.Equal(t, 0.0, value)
	assert.Equal(t, []int{1}, sizes)
}

func TestSentenceEntropy_UnknownStrategy(t *testing.T) {
	opts := DefaultEntropyOptions()
	opts.Clustering = "spectral"

	_, _, err := SentenceEntropy(context.Background(), []string{"First long sentence here. Second long sentence here."}, newEncoder(), opts)
	assert.Error(t, err)
}

func TestClassifyEntropy_Boundaries(t *testing.T) {
	th := model.DefaultThresholds()

	tests := []struct {
		entropy     float64
		confidence  model.Confidence
		uncertainty model.Uncertainty
	}{
		{0, model.ConfidenceHigh, model.UncertaintyLow},
		{0.999, model.ConfidenceHigh, model.UncertaintyLow},
		{1.0, model.ConfidenceMedium, model.UncertaintyMedium},
		{1.999, model.ConfidenceMedium, model.UncertaintyMedium},
		{2.0, model.ConfidenceLow, model.UncertaintyHigh},
		{3.5, model.ConfidenceLow, model.UncertaintyHigh},
	}

	for _, tt := range tests {
		confidence, uncertainty, interpretation := ClassifyEntropy(tt.entropy, th)
		assert.Equal(t, tt.confidence, confidence, "entropy %.3f", tt.entropy)
		assert.Equal(t, tt.uncertainty, uncertainty, "entropy %.3f", tt.entropy)
		assert.NotEmpty(t, interpretation)
	}
}

// angle returns a unit vector at deg degrees
func angle(deg float64) []float32 {
	rad := deg * math.Pi / 180
	return []float32{float32(math.Cos(rad)), float32(math.Sin(rad))}
}

func TestClustering_OrderDependence(t *testing.T) {
	// a~b and b~c are above 0.7, a~c is not
	a, b, c := angle(0), angle(40), angle(80)

	assert.Equal(t, []int{2, 1}, greedyClusters([][]float32{a, b, c}, 0.7))
	assert.Equal(t, []int{3}, greedyClusters([][]float32{b, a, c}, 0.7))

	assert.Equal(t, []int{3}, connectedClusters([][]float32{a, b, c}, 0.7))
	assert.Equal(t, []int{3}, connectedClusters([][]float32{b, a, c}, 0.7))
	assert.Equal(t, []int{3}, connectedClusters([][]float32{c, a, b}, 0.7))
}

func TestClustering_ConnectedSeparateGroups(t *testing.T) {
	vectors := [][]float32{angle(0), angle(90), angle(5), angle(95), angle(180)}

	sizes := connectedClusters(vectors, 0.7)
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, greedyClusters(vectors, 0.7), sizes)
}

func TestShannon(t *testing.T) {
	assert.Equal(t, 0.0, shannon([]int{5}, 5))
	assert.InDelta(t, 1.0, shannon([]int{2, 2}, 4), 1e-12)
	assert.InDelta(t, 2.0, shannon([]int{1, 1, 1, 1}, 4), 1e-12)
	assert.Equal(t, 0.0, shannon(nil, 0))
}
