package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

// Assessor runs the full safety assessment for one question
type Assessor interface {
	AssessQuestion(ctx context.Context, question string) (*model.SafetyAssessment, error)
}

// AssessJob represents one question in a batch
type AssessJob struct {
	Index    int
	Question string
	Assessor Assessor
	Logger   *slog.Logger
}

// Execute runs the assessment
func (j *AssessJob) Execute(ctx context.Context) Result {
	start := time.Now()
	assessment, err := j.Assessor.AssessQuestion(ctx, j.Question)
	elapsed := time.Since(start)

	if err != nil {
		j.Logger.Warn("assessment failed", "index", j.Index, "error", err)
	} else {
		j.Logger.Debug("assessment complete", "index", j.Index,
			"confidence", assessment.Confidence, "duration", elapsed)
	}

	return &AssessResult{
		Index:      j.Index,
		Question:   j.Question,
		Assessment: assessment,
		Duration:   elapsed,
		Error:      err,
	}
}

// AssessResult represents the result of one batch entry
type AssessResult struct {
	Index      int
	Question   string
	Assessment *model.SafetyAssessment
	Duration   time.Duration
	Error      error
}

// GetError returns the error from the assessment
func (r *AssessResult) GetError() error {
	return r.Error
}

// BatchSummary tallies a finished batch
type BatchSummary struct {
	Total        int
	Succeeded    int
	Failed       int
	ByConfidence map[model.Confidence]int
}

// Summarize counts outcomes across results
func Summarize(results []*AssessResult) BatchSummary {
	s := BatchSummary{
		Total:        len(results),
		ByConfidence: make(map[model.Confidence]int),
	}
	for _, r := range results {
		if r.Error != nil || r.Assessment == nil {
			s.Failed++
			continue
		}
		s.Succeeded++
		s.ByConfidence[r.Assessment.Confidence]++
	}
	return s
}

var errNotAssessed = errors.New("question was not assessed")

// BatchProcessor assesses many questions concurrently
type BatchProcessor struct {
	assessor    Assessor
	concurrency int
	logger      *slog.Logger
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(assessor Assessor, concurrency int, logger *slog.Logger) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		assessor:    assessor,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ProcessQuestions assesses every question and returns results in input order
func (b *BatchProcessor) ProcessQuestions(ctx context.Context, questions []string) []*AssessResult {
	if len(questions) == 0 {
		return []*AssessResult{}
	}

	jobs := make([]Job, len(questions))
	for i, q := range questions {
		jobs[i] = &AssessJob{Index: i, Question: q, Assessor: b.assessor, Logger: b.logger}
	}

	pool := NewPool(ctx, b.concurrency)
	results := pool.Run(jobs)

	out := make([]*AssessResult, len(questions))
	for _, result := range results {
		r := result.(*AssessResult)
		out[r.Index] = r
	}

	// Jobs still queued when the context ended produce no result
	missing := 0
	for i, r := range out {
		if r != nil {
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = errNotAssessed
		}
		out[i] = &AssessResult{Index: i, Question: questions[i], Error: err}
		missing++
	}
	if missing > 0 {
		b.logger.Warn("batch ended before every question was assessed", "missing", missing, "error", ctx.Err())
	}

	return out
}

// ProcessFile reads questions from a file and assesses them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*AssessResult, error) {
	questions, err := ReadQuestionsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read questions: %w", err)
	}

	b.logger.Info("starting batch", "questions", len(questions), "workers", b.concurrency)
	return b.ProcessQuestions(ctx, questions), nil
}

// ReadQuestionsFromFile reads questions from a file (one per line).
// Blank lines and lines starting with '#' are skipped; duplicates are dropped.
func ReadQuestionsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var questions []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			questions = append(questions, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return questions, nil
}
