package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/veracity/internal/embed"
	"github.com/ppiankov/veracity/internal/factcheck"
	"github.com/ppiankov/veracity/internal/literature"
	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/logging"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/retrieve"
	"github.com/ppiankov/veracity/internal/telemetry"
)

const pneumonia = "Pneumonia is treated with antibiotics."

type fakeRetriever struct {
	mu       sync.Mutex
	answers  map[string]*model.Answer
	fallback *model.Answer
	err      error
	params   []llm.Params
	asked    []string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, question string, params llm.Params) (*model.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.params = append(f.params, params)
	f.asked = append(f.asked, question)
	if f.err != nil {
		return nil, f.err
	}
	if a, ok := f.answers[question]; ok {
		return a, nil
	}
	return f.fallback, nil
}

type scriptedProvider struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.calls >= len(p.replies) {
		return nil, llm.ErrNoResponse
	}
	text := p.replies[p.calls]
	p.calls++
	return &llm.Response{Text: text}, nil
}

type fakeSearcher struct {
	papers []literature.Paper
	err    error
}

func (s *fakeSearcher) Name() string { return "fake" }

func (s *fakeSearcher) Search(ctx context.Context, query string, limit int) ([]literature.Paper, error) {
	return s.papers, s.err
}

func supportedAnswer() *model.Answer {
	return &model.Answer{
		Text:         pneumonia,
		SourceChunks: []model.SourceChunk{{Text: pneumonia, RelevanceScore: 0.92, ProvenanceID: "pmid-1", Title: "Pneumonia care"}},
	}
}

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Safety.CallSpacing = 0
	cfg.External.Enabled = false
	return cfg
}

func newAggregator(t *testing.T, cfg *model.Config, deps Dependencies) *Aggregator {
	t.Helper()
	if deps.Encoder == nil {
		deps.Encoder = embed.NewHashingEncoder(0)
	}
	deps.Logger = logging.Discard()

	g, err := NewAggregator(cfg, deps)
	require.NoError(t, err)
	return g
}

func newChecker(provider llm.Provider, searcher literature.Searcher) *factcheck.Checker {
	cfg := model.DefaultConfig()
	return factcheck.NewChecker(provider, searcher, embed.NewHashingEncoder(0),
		factcheck.OptionsFromConfig(cfg.External, cfg.Safety.Thresholds, logging.Discard()))
}

func stageByName(t *testing.T, a *model.SafetyAssessment, s model.Stage) model.StageResult {
	t.Helper()
	r, ok := a.Stage(s)
	require.True(t, ok, "stage %s missing", s)
	return r
}

func TestAssess_AllPassWithoutExternal(t *testing.T) {
	r := &fakeRetriever{fallback: supportedAnswer()}
	g := newAggregator(t, testConfig(), Dependencies{Retriever: r})

	a, err := g.AssessQuestion(context.Background(), "How is pneumonia treated?")
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, pneumonia, a.Answer)
	assert.InDelta(t, 1.0, a.AttributionScore, 1e-6)
	assert.InDelta(t, 1.0, a.ConsistencyScore, 1e-6)
	assert.Equal(t, 0.0, a.SemanticEntropy)
	assert.Empty(t, a.WeakSentences)
	assert.False(t, a.HasWeak)

	assert.Equal(t, 3, a.SafetyScore)
	assert.Equal(t, 3, a.MaxSafetyScore)
	assert.Equal(t, model.ConfidenceHigh, a.Confidence)
	assert.Nil(t, a.FactCheck)
	assert.False(t, a.FactCheckEnabled)

	var order []model.Stage
	for _, s := range a.Stages {
		order = append(order, s.Stage)
	}
	assert.Equal(t, []model.Stage{
		model.StageRetrieve,
		model.StageAttribution,
		model.StageConsistency,
		model.StageWeakSentences,
		model.StageEntropy,
		model.StageExternal,
		model.StageAggregate,
	}, order)
	assert.Equal(t, model.StageSkipped, stageByName(t, a, model.StageExternal).Status)

	// 1 answer + 3 consistency + 3 entropy
	assert.Len(t, r.asked, 7)
	assert.Contains(t, a.Interpretations["attribution"], "Excellent")
}

func TestAssess_TemperatureOnlyOnEntropyCalls(t *testing.T) {
	r := &fakeRetriever{fallback: supportedAnswer()}
	cfg := testConfig()
	cfg.Safety.EntropyTemperature = 0.9
	g := newAggregator(t, cfg, Dependencies{Retriever: r})

	_, err := g.AssessQuestion(context.Background(), "How is pneumonia treated?")
	require.NoError(t, err)

	withTemp := 0
	for _, p := range r.params {
		if p.Temperature != nil {
			withTemp++
			assert.Equal(t, 0.9, *p.Temperature)
		}
	}
	assert.Equal(t, cfg.Safety.EntropySamples, withTemp)
}

func TestAssess_ExternalZeroResultsDegrades(t *testing.T) {
	r := &fakeRetriever{fallback: supportedAnswer()}
	checker := newChecker(&scriptedProvider{replies: []string{"pneumonia antibiotics"}}, &fakeSearcher{})

	g := newAggregator(t, testConfig(), Dependencies{Retriever: r, Checker: checker})

	req := g.NewRequest("How is pneumonia treated?")
	req.ExternalCheck = true
	a, err := g.Assess(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 3, a.MaxSafetyScore)
	assert.Equal(t, 3, a.SafetyScore)
	assert.Equal(t, model.ConfidenceHigh, a.Confidence)
	assert.Equal(t, []string{"external_validation"}, a.Unavailable)

	require.NotNil(t, a.FactCheck)
	assert.Equal(t, a.AttributionScore, a.FactCheck.CombinedScore)
	assert.Equal(t, model.ReliabilityInternalOnly, a.FactCheck.Reliability)
	require.NotNil(t, a.ExternalEvidence)
	assert.Equal(t, 0.0, a.ExternalEvidence.SupportScore)
	assert.Equal(t, model.ReasonNoSources, a.ExternalEvidence.Error.Reason)

	ext := stageByName(t, a, model.StageExternal)
	assert.Equal(t, model.StageError, ext.Status)
	assert.False(t, ext.Counted)
	assert.Contains(t, a.Interpretations["external"], "Unavailable")
}

func TestAssess_ExternalWithoutChecker(t *testing.T) {
	g := newAggregator(t, testConfig(), Dependencies{Retriever: &fakeRetriever{fallback: supportedAnswer()}})

	req := g.NewRequest("How is pneumonia treated?")
	req.ExternalCheck = true
	a, err := g.Assess(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 3, a.MaxSafetyScore)
	assert.Equal(t, model.ReasonDisabled, a.ExternalEvidence.Error.Reason)
}

func TestAssess_ExternalSuccessCountsFourth(t *testing.T) {
	r := &fakeRetriever{fallback: supportedAnswer()}
	searcher := &fakeSearcher{papers: []literature.Paper{
		{ID: "1", Abstract: "Pneumonia is treated with antibiotics in most adults."},
	}}
	checker := newChecker(&scriptedProvider{replies: []string{"pneumonia antibiotics"}}, searcher)

	cfg := testConfig()
	cfg.External.Enabled = true
	metrics := telemetry.NewMetrics()
	g := newAggregator(t, cfg, Dependencies{Retriever: r, Checker: checker, Metrics: metrics})

	a, err := g.AssessQuestion(context.Background(), "How is pneumonia treated?")
	require.NoError(t, err)

	assert.True(t, a.FactCheckEnabled)
	assert.Equal(t, 4, a.MaxSafetyScore)
	assert.Equal(t, 4, a.SafetyScore)
	assert.Equal(t, model.ConfidenceHigh, a.Confidence)
	assert.Empty(t, a.Unavailable)

	require.NotNil(t, a.FactCheck)
	assert.Equal(t, model.ReliabilityInternalAndExternal, a.FactCheck.Reliability)
	assert.InDelta(t, 0.7*a.AttributionScore+0.3*a.FactCheck.ExternalScore, a.FactCheck.CombinedScore, 1e-12)
	assert.True(t, stageByName(t, a, model.StageExternal).Counted)

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestAssess_RetrievalFailureIsFatal(t *testing.T) {
	r := &fakeRetriever{err: fmt.Errorf("%w: engine returned 503", retrieve.ErrRetrieval)}
	g := newAggregator(t, testConfig(), Dependencies{Retriever: r})

	a, err := g.AssessQuestion(context.Background(), "How is pneumonia treated?")
	require.Error(t, err)
	assert.Nil(t, a)
	assert.True(t, errors.Is(err, retrieve.ErrRetrieval))
}

func TestAssess_InvalidRequest(t *testing.T) {
	g := newAggregator(t, testConfig(), Dependencies{Retriever: &fakeRetriever{fallback: supportedAnswer()}})

	_, err := g.AssessQuestion(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = g.AssessQuestion(context.Background(), strings.Repeat("a", 1001))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	req := g.NewRequest("ok?")
	req.ConsistencyTries = -1
	_, err = g.Assess(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAssess_MultiStageFallback(t *testing.T) {
	r := &fakeRetriever{fallback: supportedAnswer()}
	p := &scriptedProvider{replies: []string{"This question cannot be split."}}
	g := newAggregator(t, testConfig(), Dependencies{Retriever: r, Provider: p})

	req := g.NewRequest("How is pneumonia treated?")
	req.MultiStage = true
	a, err := g.Assess(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, a.MultiStage.Requested)
	assert.False(t, a.MultiStage.Used)
	assert.True(t, a.MultiStage.Fallback)
	assert.Equal(t, pneumonia, a.Answer)
	assert.Equal(t, "How is pneumonia treated?", r.asked[0])
}

func TestAssess_MultiStageUsed(t *testing.T) {
	r := &fakeRetriever{
		fallback: supportedAnswer(),
		answers: map[string]*model.Answer{
			"Which antibiotics are used?": {
				Text:         "Amoxicillin is used.",
				SourceChunks: []model.SourceChunk{{Text: "Amoxicillin is used for pneumonia."}},
			},
			"How long is treatment?": {
				Text:         "Five days.",
				SourceChunks: []model.SourceChunk{{Text: "Treatment usually lasts five days."}},
			},
		},
	}
	p := &scriptedProvider{replies: []string{
		"1. Which antibiotics are used?\n2. How long is treatment?",
		"Amoxicillin is used for pneumonia. Treatment usually lasts five days.",
	}}
	g := newAggregator(t, testConfig(), Dependencies{Retriever: r, Provider: p})

	req := g.NewRequest("How is pneumonia treated and for how long?")
	req.MultiStage = true
	a, err := g.Assess(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, a.MultiStage.Used)
	assert.False(t, a.MultiStage.Fallback)
	assert.Len(t, a.MultiStage.SubQuestions, 2)
	assert.Len(t, a.SourceChunks, 2)
	assert.Equal(t, "Amoxicillin is used for pneumonia. Treatment usually lasts five days.", a.Answer)
	assert.InDelta(t, 1.0, a.AttributionScore, 1e-6)
}

func TestAssess_WeakSentencesDoNotCount(t *testing.T) {
	answer := &model.Answer{
		Text:         pneumonia + " Chocolate cures every infection overnight.",
		SourceChunks: []model.SourceChunk{{Text: pneumonia}},
	}
	g := newAggregator(t, testConfig(), Dependencies{Retriever: &fakeRetriever{fallback: answer}})

	a, err := g.AssessQuestion(context.Background(), "How is pneumonia treated?")
	require.NoError(t, err)

	assert.True(t, a.HasWeak)
	require.Len(t, a.WeakSentences, 1)
	assert.Equal(t, 1, a.WeakSentences[0].Index)

	weak := stageByName(t, a, model.StageWeakSentences)
	assert.False(t, weak.Counted)
	assert.Equal(t, 3, a.MaxSafetyScore)

	// Mean of ~1.0 and ~0.0 fails the 0.6 attribution threshold
	assert.Equal(t, model.StageFailed, stageByName(t, a, model.StageAttribution).Status)

	// Two clusters of three sentences give exactly one bit
	assert.InDelta(t, 1.0, a.SemanticEntropy, 1e-12)
	assert.Equal(t, model.StageFailed, stageByName(t, a, model.StageEntropy).Status)

	assert.Equal(t, 1, a.SafetyScore)
	assert.Equal(t, model.ConfidenceLow, a.Confidence)
}

func TestAssess_ConcurrentAssessmentsIndependent(t *testing.T) {
	r := &fakeRetriever{fallback: supportedAnswer()}
	g := newAggregator(t, testConfig(), Dependencies{Retriever: r})

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := g.AssessQuestion(context.Background(), fmt.Sprintf("Question %d?", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, r.asked, 28)
}

func TestNewAggregator_RequiresCollaborators(t *testing.T) {
	_, err := NewAggregator(testConfig(), Dependencies{Encoder: embed.NewHashingEncoder(0)})
	assert.Error(t, err)

	_, err = NewAggregator(testConfig(), Dependencies{Retriever: &fakeRetriever{}})
	assert.Error(t, err)
}

func TestConfidenceFor_Boundaries(t *testing.T) {
	th := model.DefaultThresholds()

	tests := []struct {
		score, max int
		want       model.Confidence
	}{
		{4, 4, model.ConfidenceHigh},
		{3, 4, model.ConfidenceHigh},
		{2, 4, model.ConfidenceMedium},
		{1, 4, model.ConfidenceLow},
		{0, 4, model.ConfidenceLow},
		{3, 3, model.ConfidenceHigh},
		{2, 3, model.ConfidenceMedium},
		{1, 3, model.ConfidenceLow},
		{0, 0, model.ConfidenceLow},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ConfidenceFor(tt.score, tt.max, th), "%d/%d", tt.score, tt.max)
	}
}

func TestInterpretations_FollowThresholds(t *testing.T) {
	a := &model.SafetyAssessment{
		AttributionScore: 0.65,
		ConsistencyScore: 0.7,
		SemanticEntropy:  1.2,
	}

	defaults := Interpretations(a, model.DefaultThresholds())
	assert.Contains(t, defaults["attribution"], "Good")
	assert.Contains(t, defaults["consistency"], "Good")
	assert.Contains(t, defaults["entropy"], "MEDIUM")

	strict := model.DefaultThresholds()
	strict.EntropyMedium = 1.5
	strict.EntropyHigh = 3.0
	strict.Attribution = 0.7
	strict.AttributionExcellent = 0.9
	strict.ConsistencyHigh = 0.65

	custom := Interpretations(a, strict)
	assert.Contains(t, custom["entropy"], "LOW", "entropy bands come from the thresholds")
	assert.Contains(t, custom["attribution"], "Fair")
	assert.Contains(t, custom["consistency"], "High")

	a.Entropy.Interpretation = "precomputed"
	assert.Equal(t, "precomputed", Interpretations(a, strict)["entropy"])
}
