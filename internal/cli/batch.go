package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/pipeline"
	"github.com/ppiankov/veracity/internal/worker"
)

const maxSlugLength = 60

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	batchMetrics string
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Assess multiple questions from a file in parallel",
	Long: `Batch assesses many questions concurrently:
- Read questions from input file (one per line, '#' comments skipped)
- Assess questions in parallel with configurable worker count
- Within one question the checks still run strictly in order
- Generate a JSON and a Markdown report for each question

Example:
  veracity batch questions.txt
  veracity batch questions.txt --concurrency 4 --output-dir ./reports
  veracity batch questions.txt --no-external --timeout 1h`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default from config, capped at CPU count)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./veracity-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", time.Hour, "total timeout for batch processing")
	batchCmd.Flags().StringVar(&batchMetrics, "metrics-file", "", "write Prometheus metrics in text format to this path")

	batchCmd.Flags().BoolVar(&multiStage, "multi-stage", false, "decompose each question into sub-questions")
	batchCmd.Flags().BoolVar(&externalCheck, "external", false, "force the external literature check on")
	batchCmd.Flags().BoolVar(&noExternal, "no-external", false, "disable the external literature check")
	batchCmd.Flags().IntVar(&maxSources, "max-external-sources", 0, "maximum external papers to fetch (default from config)")
	batchCmd.Flags().IntVar(&tries, "tries", 0, "consistency checks to run, 2-10 (default from config)")
	batchCmd.Flags().IntVar(&samples, "samples", 0, "entropy samples to draw (default from config)")
	batchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	batchCmd.MarkFlagsMutuallyExclusive("external", "no-external")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyAssessFlags(cmd, cfg); err != nil {
		return err
	}
	if cmd.Flags().Changed("samples") {
		cfg.Safety.EntropySamples = samples
	}

	workers := cfg.Concurrency.Workers
	if cmd.Flags().Changed("concurrency") {
		workers = concurrency
	}
	workers = max(1, min(workers, runtime.NumCPU()))

	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Veracity Batch Assessment\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", workers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "  External:     %v\n", cfg.External.Enabled)
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	var assessor worker.Assessor = a.aggregator
	if multiStage {
		assessor = multiStageAssessor{a.aggregator}
	}
	processor := worker.NewBatchProcessor(assessor, workers, a.logger)

	fmt.Fprintf(os.Stderr, "⚙️  Assessing questions with %d workers...\n", workers)
	fmt.Fprintf(os.Stderr, "\n")

	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	renderer := pipeline.NewRenderer(cfg.Output.IncludeFooter)
	for _, result := range results {
		if result.Error != nil {
			fmt.Fprintf(os.Stderr, "✗ [%d] %s: %v\n", result.Index+1, truncateQuestion(result.Question), result.Error)
			continue
		}

		base := reportBaseName(result.Index, result.Question)
		jsonPath := filepath.Join(outputDir, base+".json")
		mdPath := filepath.Join(outputDir, base+".md")

		if err := renderer.RenderJSON(result.Assessment, jsonPath); err != nil {
			fmt.Fprintf(os.Stderr, "✗ [%d] failed to write JSON: %v\n", result.Index+1, err)
			continue
		}
		if err := renderer.RenderMarkdown(result.Assessment, mdPath); err != nil {
			fmt.Fprintf(os.Stderr, "✗ [%d] failed to write Markdown: %v\n", result.Index+1, err)
			continue
		}

		fmt.Fprintf(os.Stderr, "✓ [%d] %s (%s %d/%d, %.1fs)\n",
			result.Index+1, truncateQuestion(result.Question),
			result.Assessment.Confidence, result.Assessment.SafetyScore, result.Assessment.MaxSafetyScore,
			result.Duration.Seconds())
	}

	summary := worker.Summarize(results)

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d questions\n", summary.Total)
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", summary.Succeeded)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", summary.Failed)
	for _, c := range []model.Confidence{model.ConfidenceHigh, model.ConfidenceMedium, model.ConfidenceLow} {
		fmt.Fprintf(os.Stderr, "  %-9s  %d\n", string(c)+":", summary.ByConfidence[c])
	}
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return a.writeMetrics(batchMetrics)
}

// multiStageAssessor assesses every question with decomposition enabled
type multiStageAssessor struct {
	aggregator *pipeline.Aggregator
}

func (m multiStageAssessor) AssessQuestion(ctx context.Context, question string) (*model.SafetyAssessment, error) {
	req := m.aggregator.NewRequest(question)
	req.MultiStage = true
	return m.aggregator.Assess(ctx, req)
}

// reportBaseName names a report by its 1-based position and a slug of the
// question, so reports sort in input order and never collide
func reportBaseName(index int, question string) string {
	slug := sanitizeFilename(question)
	if slug == "" {
		slug = "question"
	}
	return fmt.Sprintf("%03d-%s", index+1, slug)
}

// sanitizeFilename reduces s to lowercase letters, digits and single dashes
func sanitizeFilename(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}

func truncateQuestion(q string) string {
	r := []rune(q)
	if len(r) <= 60 {
		return q
	}
	return string(r[:57]) + "..."
}
