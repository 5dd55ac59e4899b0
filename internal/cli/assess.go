package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/pipeline"
)

const (
	minTries = 2
	maxTries = 10
)

var (
	outJSON       string
	outMD         string
	timeout       time.Duration
	multiStage    bool
	externalCheck bool
	noExternal    bool
	maxSources    int
	tries         int
	samples       int
	noFooter      bool
	metricsFile   string
)

// assessCmd represents the assess command
var assessCmd = &cobra.Command{
	Use:   "assess <question>",
	Short: "Ask the retrieval system a question and score the safety of its answer",
	Long: `Assess sends a question to the configured retrieval system and checks
the answer it returns:
- Attribution: is every sentence supported by the retrieved sources
- Consistency: do repeated answers agree with each other
- Semantic entropy: how much do sampled answers disagree in meaning
- External check: does published literature support the answer (optional)

The verdict is HIGH, MEDIUM or LOW confidence from the fraction of
checks that passed. A failed external lookup is reported, not counted.

Example:
  veracity assess "What antibiotics are safe to use with warfarin in elderly patients?"
  veracity assess "What is the first-line treatment for pneumonia?" --json report.json --md report.md
  veracity assess "..." --multi-stage --tries 5 --no-external`,
	Args: cobra.ExactArgs(1),
	RunE: runAssess,
}

func init() {
	rootCmd.AddCommand(assessCmd)

	assessCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (\"-\" for stdout)")
	assessCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (\"-\" for stdout)")
	assessCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")

	assessCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall assessment timeout")
	assessCmd.Flags().BoolVar(&multiStage, "multi-stage", false, "decompose the question into sub-questions before answering")
	assessCmd.Flags().BoolVar(&externalCheck, "external", false, "force the external literature check on")
	assessCmd.Flags().BoolVar(&noExternal, "no-external", false, "disable the external literature check")
	assessCmd.Flags().IntVar(&maxSources, "max-external-sources", 0, "maximum external papers to fetch (default from config)")
	assessCmd.Flags().IntVar(&tries, "tries", 0, "consistency checks to run, 2-10 (default from config)")
	assessCmd.Flags().IntVar(&samples, "samples", 0, "entropy samples to draw (default from config)")
	assessCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this path")
	assessCmd.MarkFlagsMutuallyExclusive("external", "no-external")
}

func runAssess(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(args[0])

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyAssessFlags(cmd, cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	req := a.aggregator.NewRequest(question)
	req.MultiStage = multiStage
	if cmd.Flags().Changed("samples") {
		req.EntropySamples = samples
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Assessing: %s\n", question)
		fmt.Fprintf(os.Stderr, "Timeout: %v\n", timeout)
		fmt.Fprintf(os.Stderr, "Consistency tries: %d\n", req.ConsistencyTries)
		fmt.Fprintf(os.Stderr, "Entropy samples: %d\n", req.EntropySamples)
		fmt.Fprintf(os.Stderr, "Multi-stage: %v\n", req.MultiStage)
		fmt.Fprintf(os.Stderr, "External check: %v\n", req.ExternalCheck)
		fmt.Fprintln(os.Stderr)
	}

	assessment, err := a.aggregator.Assess(ctx, req)
	if err != nil {
		_ = a.writeMetrics(metricsFile)
		return fmt.Errorf("assessment failed: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Retrieved answer with %d sources\n", len(assessment.SourceChunks))
		fmt.Fprintf(os.Stderr, "✓ Safety score: %d/%d\n", assessment.SafetyScore, assessment.MaxSafetyScore)
		fmt.Fprintln(os.Stderr)
	}

	renderer := pipeline.NewRenderer(cfg.Output.IncludeFooter)
	if err := renderer.RenderReport(assessment, outJSON, outMD, verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	return a.writeMetrics(metricsFile)
}

// applyAssessFlags overlays explicitly set flags on the loaded config
func applyAssessFlags(cmd *cobra.Command, cfg *model.Config) error {
	if cmd.Flags().Changed("tries") {
		if err := validateTries(tries); err != nil {
			return err
		}
		cfg.Safety.ConsistencyTries = tries
	}
	if cmd.Flags().Changed("samples") && samples < 0 {
		return fmt.Errorf("--samples must not be negative, got %d", samples)
	}
	if cmd.Flags().Changed("max-external-sources") {
		if maxSources < 1 || maxSources > 100 {
			return fmt.Errorf("--max-external-sources must be between 1 and 100, got %d", maxSources)
		}
		cfg.External.MaxResults = maxSources
	}

	switch {
	case externalCheck:
		cfg.External.Enabled = true
	case noExternal:
		cfg.External.Enabled = false
	}
	if noFooter {
		cfg.Output.IncludeFooter = false
	}
	return nil
}

func validateTries(n int) error {
	if n < minTries || n > maxTries {
		return fmt.Errorf("--tries must be between %d and %d, got %d", minTries, maxTries, n)
	}
	return nil
}
