// Package factcheck cross-checks an answer against independently
// retrieved literature and combines the result with internal attribution.
package factcheck

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ppiankov/veracity/internal/embed"
	"github.com/ppiankov/veracity/internal/extract"
	"github.com/ppiankov/veracity/internal/literature"
	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/score"
)

// abstractSample is how many abstracts are kept on the evidence for display
const abstractSample = 3

// Options tunes the fact checker
type Options struct {
	MinSentenceLength  int
	MaxKeywords        int
	KeywordTemperature float64
	Thresholds         model.Thresholds
	Logger             *slog.Logger
}

// OptionsFromConfig builds options from configuration
func OptionsFromConfig(ext model.ExternalConfig, th model.Thresholds, logger *slog.Logger) Options {
	return Options{
		MinSentenceLength:  ext.MinSentenceLength,
		MaxKeywords:        ext.MaxKeywords,
		KeywordTemperature: ext.KeywordTemperature,
		Thresholds:         th,
		Logger:             logger,
	}
}

// Checker runs external fact checks
type Checker struct {
	provider llm.Provider
	searcher literature.Searcher
	encoder  embed.Encoder
	opts     Options
	logger   *slog.Logger
}

// NewChecker creates a checker. A nil searcher makes every external
// lookup fail with the disabled reason.
func NewChecker(provider llm.Provider, searcher literature.Searcher, enc embed.Encoder, opts Options) *Checker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		provider: provider,
		searcher: searcher,
		encoder:  enc,
		opts:     opts,
		logger:   logger,
	}
}

// External looks the answer up in the literature and scores how well the
// abstracts support it. It never returns an error: every failure is
// recorded on the evidence as a typed tag with a zero support score.
func (c *Checker) External(ctx context.Context, answer string, maxResults int) model.ExternalEvidence {
	ev := model.ExternalEvidence{}

	if c.searcher == nil {
		return c.fail(ev, model.ReasonDisabled, errors.New("no literature searcher configured"))
	}

	query, err := c.ExtractKeywords(ctx, answer)
	if err != nil {
		return c.fail(ev, model.ReasonKeywordExtraction, err)
	}
	ev.QueryUsed = query

	papers, err := c.searcher.Search(ctx, query, maxResults)
	if err != nil {
		return c.fail(ev, literature.ReasonOf(err), err)
	}

	abstracts := make([]string, 0, len(papers))
	for _, p := range papers {
		if p.Abstract != "" {
			abstracts = append(abstracts, p.Abstract)
		}
	}
	ev.NumSources = len(abstracts)
	if len(abstracts) == 0 {
		return c.fail(ev, model.ReasonNoSources, errors.New("no external sources found"))
	}
	ev.Abstracts = abstracts[:min(abstractSample, len(abstracts))]

	sentences := extract.FlattenEvidence(abstracts, c.opts.MinSentenceLength)
	ev.NumSentences = len(sentences)
	if len(sentences) == 0 {
		return c.fail(ev, model.ReasonNoSentences, errors.New("no sentences extracted from abstracts"))
	}

	support, perSentence, err := score.Attribution(ctx, answer, sentences, c.encoder)
	if err != nil {
		return c.fail(ev, model.ReasonScoring, err)
	}
	ev.SupportScore = support
	ev.SentenceScores = perSentence

	c.logger.Info("external fact check complete",
		"searcher", c.searcher.Name(),
		"query", query,
		"sources", ev.NumSources,
		"sentences", ev.NumSentences,
		"support", support)

	return ev
}

// Comprehensive scores internal attribution against the retrieved sources,
// runs the external check and combines both. Only an encoder failure on
// the internal side is returned as an error.
func (c *Checker) Comprehensive(ctx context.Context, answer string, internalSources []string, maxResults int) (*model.FactCheck, error) {
	internal, _, err := score.Attribution(ctx, answer, internalSources, c.encoder)
	if err != nil {
		return nil, err
	}

	ev := c.External(ctx, answer, maxResults)
	return Combine(internal, ev, c.opts.Thresholds), nil
}

// fail zeroes the support score and attaches the reason
func (c *Checker) fail(ev model.ExternalEvidence, reason model.EvidenceErrorReason, err error) model.ExternalEvidence {
	ev.SupportScore = 0
	ev.SentenceScores = nil
	ev.Error = &model.EvidenceError{Reason: reason, Message: err.Error()}

	c.logger.Warn("external fact check unavailable",
		"reason", reason,
		"error", err)

	return ev
}
