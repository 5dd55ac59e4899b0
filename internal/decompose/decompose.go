// Package decompose answers complex questions in stages: it splits the
// question into simpler sub-questions, answers each from the document
// collection and synthesizes one final answer.
package decompose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/MakeNowJust/heredoc"

	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/retrieve"
	"github.com/ppiankov/veracity/internal/worker"
)

// ErrSynthesis is returned when the final answer cannot be written
var ErrSynthesis = errors.New("synthesis failed")

// markerPattern matches list numbering and dashes at the start of a line
var markerPattern = regexp.MustCompile(`^[\d\-\.\)\s]+`)

// Options are per-run settings
type Options struct {
	// Temperature for the decomposition and synthesis calls
	Temperature float64

	// Spacer paces the sub-question retrievals; nil means no pacing
	Spacer *worker.Spacer

	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// Result is the outcome of a multi-stage run
type Result struct {
	Question     string
	SubQuestions []string
	SubAnswers   []model.SubAnswer
	FinalAnswer  string
	Sources      []model.SourceChunk // Merged across sub-answers, unique by text
}

// Empty reports whether decomposition produced nothing to answer.
// Callers fall back to single-stage retrieval.
func (r *Result) Empty() bool {
	return r == nil || len(r.SubQuestions) == 0
}

// Answer returns the synthesized answer with the merged sources
func (r *Result) Answer() *model.Answer {
	return &model.Answer{Text: r.FinalAnswer, SourceChunks: r.Sources}
}

// Decompose asks the model for 2-4 simpler sub-questions. The reply is
// parsed leniently: only lines starting with a digit or a dash count.
// An unparseable reply yields an empty slice, not an error.
func Decompose(ctx context.Context, question string, provider llm.Provider, opts Options) ([]string, error) {
	resp, err := provider.Complete(ctx, llm.Request{
		Prompt:      decomposePrompt(question),
		Temperature: opts.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("decompose question: %w", err)
	}

	subs := ParseSubQuestions(resp.Text)
	opts.logger().Debug("question decomposed",
		"sub_questions", len(subs),
		"model", resp.Model)
	return subs, nil
}

// ParseSubQuestions extracts list items from free-form model output
func ParseSubQuestions(text string) []string {
	subs := []string{}
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		first := []rune(line)[0]
		if !unicode.IsDigit(first) && first != '-' {
			continue
		}

		if clean := strings.TrimSpace(markerPattern.ReplaceAllString(line, "")); clean != "" {
			subs = append(subs, clean)
		}
	}
	return subs
}

// Run performs the full multi-stage retrieval. Decomposition failures
// return an empty Result so the caller can fall back; retrieval failures
// are returned as errors wrapping retrieve.ErrRetrieval.
func Run(ctx context.Context, question string, r retrieve.Retriever, provider llm.Provider, opts Options) (*Result, error) {
	logger := opts.logger()
	result := &Result{Question: question, SubQuestions: []string{}}

	subs, err := Decompose(ctx, question, provider, opts)
	if err != nil {
		logger.Warn("decomposition failed, falling back to single-stage", "error", err)
		return result, nil
	}
	if len(subs) == 0 {
		logger.Warn("decomposition produced no sub-questions, falling back to single-stage")
		return result, nil
	}
	result.SubQuestions = subs

	seen := make(map[string]bool)
	for i, sub := range subs {
		if err := opts.Spacer.Wait(ctx); err != nil {
			return nil, err
		}

		answer, err := r.Retrieve(ctx, sub, llm.Params{})
		if err != nil {
			return nil, fmt.Errorf("sub-question %d: %w", i+1, err)
		}

		result.SubAnswers = append(result.SubAnswers, model.SubAnswer{
			Question: sub,
			Answer:   answer.Text,
			Sources:  answer.SourceChunks,
		})

		for _, chunk := range answer.SourceChunks {
			if seen[chunk.Text] {
				continue
			}
			seen[chunk.Text] = true
			result.Sources = append(result.Sources, chunk)
		}

		logger.Debug("sub-question answered",
			"index", i+1,
			"sources", len(answer.SourceChunks))
	}

	resp, err := provider.Complete(ctx, llm.Request{
		Prompt:      synthesisPrompt(question, result.SubAnswers),
		Temperature: opts.Temperature,
	})
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrSynthesis, err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return result, fmt.Errorf("%w: %w", ErrSynthesis, llm.ErrNoResponse)
	}
	result.FinalAnswer = strings.TrimSpace(resp.Text)

	logger.Info("multi-stage answer synthesized",
		"sub_questions", len(subs),
		"unique_sources", len(result.Sources))

	return result, nil
}

var decomposeTemplate = heredoc.Doc(`
	You are a medical librarian. Break down this complex medical question into 2-4 simpler, specific questions that together would provide a complete answer.

	Complex question: %s

	Provide the simpler questions as a numbered list:
	1.
	2.
	3.
	4.
`)

func decomposePrompt(question string) string {
	return fmt.Sprintf(decomposeTemplate, question)
}

var synthesisTemplate = heredoc.Doc(`
	Based on the following information, provide a comprehensive answer to the original question.

	Original question: %s

	Information gathered:
	%s
	Instructions:
	- Combine the information into one coherent answer
	- Only use the information provided above
	- If there are contradictions, mention them
	- Be specific and cite relevant details

	Comprehensive answer:
`)

func synthesisPrompt(question string, subs []model.SubAnswer) string {
	var b strings.Builder
	for i, sub := range subs {
		fmt.Fprintf(&b, "Sub-question %d: %s\n", i+1, sub.Question)
		fmt.Fprintf(&b, "Answer: %s\n\n", sub.Answer)
	}
	return fmt.Sprintf(synthesisTemplate, question, b.String())
}
