// Package pipeline runs one safety assessment end to end and renders the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ppiankov/veracity/internal/decompose"
	"github.com/ppiankov/veracity/internal/embed"
	"github.com/ppiankov/veracity/internal/factcheck"
	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/retrieve"
	"github.com/ppiankov/veracity/internal/score"
	"github.com/ppiankov/veracity/internal/telemetry"
	"github.com/ppiankov/veracity/internal/worker"
)

// ErrInvalidRequest is returned for requests that fail validation
var ErrInvalidRequest = errors.New("invalid assessment request")

// Unavailable evidence labels
const unavailableExternal = "external_validation"

var requestValidator = validator.New()

// Request is one assessment
type Request struct {
	Question         string `validate:"required,max=1000"`
	MultiStage       bool
	ExternalCheck    bool
	ConsistencyTries int `validate:"gte=0"`
	EntropySamples   int `validate:"gte=0"`
}

// Dependencies are the collaborators of an Aggregator
type Dependencies struct {
	Retriever retrieve.Retriever
	Encoder   embed.Encoder

	// Provider serves decomposition and synthesis; nil disables multi-stage
	Provider llm.Provider

	// Checker runs external fact checks; nil marks them unavailable
	Checker *factcheck.Checker

	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// Aggregator runs the assessment state machine:
// retrieve, attribution, consistency, weak sentences, entropy,
// optional external check, aggregate. Stages run strictly in order.
type Aggregator struct {
	retriever retrieve.Retriever
	encoder   embed.Encoder
	provider  llm.Provider
	checker   *factcheck.Checker
	metrics   *telemetry.Metrics
	logger    *slog.Logger

	safety   model.SafetyConfig
	external model.ExternalConfig
}

// NewAggregator creates an aggregator from configuration and collaborators
func NewAggregator(cfg *model.Config, deps Dependencies) (*Aggregator, error) {
	if deps.Retriever == nil {
		return nil, errors.New("aggregator requires a retriever")
	}
	if deps.Encoder == nil {
		return nil, errors.New("aggregator requires an encoder")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Aggregator{
		retriever: deps.Retriever,
		encoder:   deps.Encoder,
		provider:  deps.Provider,
		checker:   deps.Checker,
		metrics:   deps.Metrics,
		logger:    logger,
		safety:    cfg.Safety,
		external:  cfg.External,
	}, nil
}

// NewRequest fills a request for question from the configured defaults
func (g *Aggregator) NewRequest(question string) Request {
	return Request{
		Question:         question,
		ExternalCheck:    g.external.Enabled,
		ConsistencyTries: g.safety.ConsistencyTries,
		EntropySamples:   g.safety.EntropySamples,
	}
}

// AssessQuestion assesses a question with the configured defaults
func (g *Aggregator) AssessQuestion(ctx context.Context, question string) (*model.SafetyAssessment, error) {
	return g.Assess(ctx, g.NewRequest(question))
}

// Assess runs every stage for one request. Only retrieval, encoder and
// cancellation failures are returned as errors; a failed external check
// degrades the assessment instead.
func (g *Aggregator) Assess(ctx context.Context, req Request) (assessment *model.SafetyAssessment, err error) {
	if verr := requestValidator.Struct(req); verr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, verr)
	}

	start := time.Now()
	a := &model.SafetyAssessment{
		ID:               uuid.NewString(),
		Question:         req.Question,
		CreatedAt:        start.UTC(),
		Interpretations:  map[string]string{},
		MultiStage:       model.MultiStage{Requested: req.MultiStage},
		FactCheckEnabled: req.ExternalCheck,
		WeakSentences:    []model.WeakSentence{},
	}

	ctx, span := telemetry.StartAssessment(ctx, a.ID, req.Question, req.MultiStage)
	defer func() {
		telemetry.EndAssessment(span, assessment, err)
		if err != nil {
			g.metrics.ObserveError()
			return
		}
		g.metrics.ObserveAssessment(assessment)
	}()

	logger := g.logger.With("assessment_id", a.ID)
	th := g.safety.Thresholds

	// Each assessment paces its own calls
	spacer := worker.NewSpacer(g.safety.CallSpacing)

	var answer *model.Answer
	err = g.stage(ctx, a, logger, model.StageRetrieve, func(ctx context.Context) (model.StageResult, error) {
		var rerr error
		answer, rerr = g.answer(ctx, req, a, spacer, logger)
		if rerr != nil {
			return model.StageResult{}, rerr
		}
		return model.StageResult{
			Status: model.StagePassed,
			Value:  float64(len(answer.SourceChunks)),
			Data: map[string]interface{}{
				"source_chunks": len(answer.SourceChunks),
				"multi_stage":   a.MultiStage.Used,
				"fallback":      a.MultiStage.Fallback,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	a.Answer = answer.Text
	a.SourceChunks = answer.SourceChunks
	if a.SourceChunks == nil {
		a.SourceChunks = []model.SourceChunk{}
	}
	sources := answer.SourceTexts()

	var sentenceScores []model.SentenceScore
	err = g.stage(ctx, a, logger, model.StageAttribution, func(ctx context.Context) (model.StageResult, error) {
		var serr error
		sentenceScores, serr = score.SentenceScores(ctx, a.Answer, sources, g.encoder)
		if serr != nil {
			return model.StageResult{}, serr
		}
		a.SentenceScores = sentenceScores
		a.AttributionScore = score.Overall(sentenceScores)

		return threshold(a.AttributionScore, th.Attribution, map[string]interface{}{
			"formula":   "mean over answer sentences of max cosine similarity to any source chunk",
			"sentences": len(sentenceScores),
			"sources":   len(sources),
		}), nil
	})
	if err != nil {
		return nil, err
	}

	err = g.stage(ctx, a, logger, model.StageConsistency, func(ctx context.Context) (model.StageResult, error) {
		res, cerr := score.Consistency(ctx, req.Question, g.retriever, g.encoder, req.ConsistencyTries, spacer)
		if cerr != nil {
			return model.StageResult{}, cerr
		}
		a.ConsistencyScore = res.Score

		return threshold(res.Score, th.Consistency, map[string]interface{}{
			"formula":  "mean pairwise cosine similarity of repeated answers",
			"tries":    req.ConsistencyTries,
			"pairwise": res.Pairwise,
		}), nil
	})
	if err != nil {
		return nil, err
	}

	err = g.stage(ctx, a, logger, model.StageWeakSentences, func(ctx context.Context) (model.StageResult, error) {
		a.WeakSentences = score.Weak(sentenceScores, th.WeakSentence)
		a.HasWeak = len(a.WeakSentences) > 0

		status := model.StagePassed
		if a.HasWeak {
			status = model.StageFailed
			for _, w := range a.WeakSentences {
				logger.Warn("weak sentence", "index", w.Index, "score", w.Score, "sentence", w.Sentence)
			}
		}
		return model.StageResult{
			Status:    status,
			Value:     float64(len(a.WeakSentences)),
			Threshold: th.WeakSentence,
			Data: map[string]interface{}{
				"formula": "answer sentences whose best similarity is below the threshold",
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	err = g.stage(ctx, a, logger, model.StageEntropy, func(ctx context.Context) (model.StageResult, error) {
		opts := score.EntropyOptionsFromConfig(g.safety, spacer)
		res, eerr := score.Entropy(ctx, req.Question, g.retriever, g.encoder, req.EntropySamples, g.safety.EntropyTemperature, opts)
		if eerr != nil {
			return model.StageResult{}, eerr
		}
		a.Entropy = *res
		a.SemanticEntropy = res.SemanticEntropy

		status := model.StageFailed
		if res.Confidence == model.ConfidenceHigh {
			status = model.StagePassed
		}
		return model.StageResult{
			Status:    status,
			Value:     res.SemanticEntropy,
			Threshold: th.EntropyMedium,
			Counted:   true,
			Data: map[string]interface{}{
				"formula":       "shannon entropy (bits) of semantic cluster sizes",
				"samples":       req.EntropySamples,
				"temperature":   g.safety.EntropyTemperature,
				"cluster_sizes": res.ClusterSizes,
				"clustering":    string(opts.Clustering),
				"confidence":    string(res.Confidence),
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	if req.ExternalCheck {
		err = g.stage(ctx, a, logger, model.StageExternal, func(ctx context.Context) (model.StageResult, error) {
			return g.externalCheck(ctx, a, th), nil
		})
	} else {
		a.Stages = append(a.Stages, model.StageResult{Stage: model.StageExternal, Status: model.StageSkipped})
	}
	if err != nil {
		return nil, err
	}

	g.aggregate(a, th)
	a.Duration = time.Since(start).Seconds()

	logger.Info("assessment complete",
		"confidence", a.Confidence,
		"safety_score", a.SafetyScore,
		"max_safety_score", a.MaxSafetyScore,
		"duration", time.Since(start))

	return a, nil
}

// answer runs the retrieve stage, multi-stage when requested. Any
// decomposition problem other than a retrieval failure falls back to a
// single direct retrieval.
func (g *Aggregator) answer(ctx context.Context, req Request, a *model.SafetyAssessment, spacer *worker.Spacer, logger *slog.Logger) (*model.Answer, error) {
	if req.MultiStage {
		if g.provider == nil {
			logger.Warn("multi-stage requested without a language model, using single-stage")
		} else {
			res, err := decompose.Run(ctx, req.Question, g.retriever, g.provider, decompose.Options{
				Temperature: g.safety.DecomposeTemperature,
				Spacer:      spacer,
				Logger:      logger,
			})
			switch {
			case err != nil && errors.Is(err, retrieve.ErrRetrieval):
				return nil, err
			case err != nil:
				logger.Warn("multi-stage failed, using single-stage", "error", err)
			case res.Empty():
				logger.Info("no sub-questions, using single-stage")
			default:
				a.MultiStage.Used = true
				a.MultiStage.SubQuestions = res.SubQuestions
				a.MultiStage.SubAnswers = res.SubAnswers
				return res.Answer(), nil
			}
		}

		a.MultiStage.Fallback = true
		g.metrics.ObserveFallback()
	}

	return g.retriever.Retrieve(ctx, req.Question, llm.Params{})
}

// externalCheck never fails the assessment. A failed lookup is recorded
// as an uncounted stage and listed as unavailable.
func (g *Aggregator) externalCheck(ctx context.Context, a *model.SafetyAssessment, th model.Thresholds) model.StageResult {
	var ev model.ExternalEvidence
	if g.checker == nil {
		ev = model.ExternalEvidence{Error: &model.EvidenceError{
			Reason:  model.ReasonDisabled,
			Message: "no external fact checker configured",
		}}
	} else {
		ev = g.checker.External(ctx, a.Answer, g.external.MaxResults)
	}

	fc := factcheck.Combine(a.AttributionScore, ev, th)
	a.FactCheck = fc
	a.ExternalEvidence = &fc.External

	data := map[string]interface{}{
		"formula":     "internal_weight*internal + external_weight*external",
		"internal":    fc.InternalScore,
		"external":    fc.ExternalScore,
		"reliability": string(fc.Reliability),
		"query":       ev.QueryUsed,
		"num_sources": ev.NumSources,
	}

	if ev.Failed() {
		a.Unavailable = append(a.Unavailable, unavailableExternal)
		g.metrics.ObserveExternalFailure(ev.Error.Reason)
		return model.StageResult{
			Status:    model.StageError,
			Value:     fc.CombinedScore,
			Threshold: th.External,
			Error:     ev.Error.Error(),
			Data:      data,
		}
	}

	return threshold(fc.CombinedScore, th.External, data)
}

// aggregate counts passed stages and derives the confidence tier
func (g *Aggregator) aggregate(a *model.SafetyAssessment, th model.Thresholds) {
	passed, counted := 0, 0
	for _, s := range a.Stages {
		if !s.Counted {
			continue
		}
		counted++
		if s.Status == model.StagePassed {
			passed++
		}
	}

	a.SafetyScore = passed
	a.MaxSafetyScore = counted
	a.Confidence = ConfidenceFor(passed, counted, th)

	a.Interpretations = Interpretations(a, th)

	a.Stages = append(a.Stages, model.StageResult{
		Stage:     model.StageAggregate,
		Status:    model.StagePassed,
		Value:     a.ConfidenceRatio(),
		Threshold: th.ConfidenceHigh,
		Data: map[string]interface{}{
			"formula":          "safety_score / max_safety_score",
			"safety_score":     a.SafetyScore,
			"max_safety_score": a.MaxSafetyScore,
			"confidence":       string(a.Confidence),
		},
	})
}

// stage times fn, wraps it in a span and appends its result
func (g *Aggregator) stage(ctx context.Context, a *model.SafetyAssessment, logger *slog.Logger, name model.Stage, fn func(context.Context) (model.StageResult, error)) error {
	start := time.Now()
	stageCtx, span := telemetry.StartStage(ctx, name)

	result, err := fn(stageCtx)
	result.Stage = name
	if err != nil {
		result = model.StageResult{Stage: name, Status: model.StageError, Error: err.Error()}
	}

	telemetry.EndStage(span, result, err)
	g.metrics.ObserveStage(name, result.Status, time.Since(start))
	a.Stages = append(a.Stages, result)

	if err != nil {
		logger.Error("stage failed", "stage", name, "error", err)
		return fmt.Errorf("%s: %w", name, err)
	}

	logger.Debug("stage complete",
		"stage", name,
		"status", result.Status,
		"value", result.Value,
		"duration", time.Since(start))
	return nil
}

// threshold builds a counted pass/fail result for value >= limit
func threshold(value, limit float64, data map[string]interface{}) model.StageResult {
	status := model.StageFailed
	if value >= limit {
		status = model.StagePassed
	}
	return model.StageResult{
		Status:    status,
		Value:     value,
		Threshold: limit,
		Counted:   true,
		Data:      data,
	}
}
