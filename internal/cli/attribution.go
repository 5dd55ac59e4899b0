package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veracity/internal/cache"
	"github.com/ppiankov/veracity/internal/extract"
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/score"
)

var (
	answerFile  string
	sourceFiles []string
	attrJSON    bool
	stripHTML   bool
)

// attributionCmd scores a stored answer against stored sources
var attributionCmd = &cobra.Command{
	Use:   "attribution",
	Short: "Score how well an answer is supported by a set of source texts",
	Long: `Attribution scores every sentence of an answer against the source
texts it should be grounded in and flags weak sentences. Only the encoder
is used: no retrieval system or LLM is contacted.

Example:
  veracity attribution --answer answer.txt --source chunk1.txt --source chunk2.txt
  veracity attribution --answer answer.txt --source page.html --html --json`,
	Args: cobra.NoArgs,
	RunE: runAttribution,
}

func init() {
	rootCmd.AddCommand(attributionCmd)

	attributionCmd.Flags().StringVar(&answerFile, "answer", "", "file containing the answer text")
	attributionCmd.Flags().StringArrayVar(&sourceFiles, "source", nil, "source text file (repeatable)")
	attributionCmd.Flags().BoolVar(&attrJSON, "json", false, "print the result as JSON")
	attributionCmd.Flags().BoolVar(&stripHTML, "html", false, "strip HTML markup from sources before scoring")
	_ = attributionCmd.MarkFlagRequired("answer")
}

// attributionReport is the JSON shape of the attribution command
type attributionReport struct {
	Score          float64               `json:"attribution_score"`
	Threshold      float64               `json:"threshold"`
	Passed         bool                  `json:"passed"`
	SentenceScores []model.SentenceScore `json:"sentence_scores"`
	WeakSentences  []model.WeakSentence  `json:"weak_sentences"`
}

func runAttribution(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	answer, err := os.ReadFile(answerFile)
	if err != nil {
		return fmt.Errorf("read answer: %w", err)
	}

	sources := make([]string, 0, len(sourceFiles))
	for _, path := range sourceFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}
		text := string(data)
		if stripHTML {
			text = extract.StripMarkup(text)
		}
		if strings.TrimSpace(text) != "" {
			sources = append(sources, text)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	logger, logCloser, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logCloser.Close() }()

	c, cacheCloser, err := cache.Open(cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer func() { _ = cacheCloser.Close() }()

	enc, err := newEncoder(ctx, cfg, c)
	if err != nil {
		return err
	}

	th := cfg.Safety.Thresholds
	scores, err := score.SentenceScores(ctx, string(answer), sources, enc)
	if err != nil {
		return fmt.Errorf("attribution: %w", err)
	}

	report := attributionReport{
		Score:          score.Overall(scores),
		Threshold:      th.Attribution,
		SentenceScores: scores,
		WeakSentences:  score.Weak(scores, th.WeakSentence),
	}
	report.Passed = report.Score >= th.Attribution

	if attrJSON {
		out := json.NewEncoder(os.Stdout)
		out.SetIndent("", "  ")
		return out.Encode(report)
	}

	mark := "✗"
	if report.Passed {
		mark = "✓"
	}

	fmt.Printf("\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("  Attribution\n")
	fmt.Printf("═══════════════════════════════════════════════════════════\n")
	fmt.Printf("\n")
	fmt.Printf("  Sources:      %d\n", len(sources))
	fmt.Printf("  Sentences:    %d\n", len(scores))
	fmt.Printf("  %s Score:      %.3f (threshold %.2f)\n", mark, report.Score, th.Attribution)

	if verbose {
		fmt.Printf("\n")
		for i, s := range scores {
			fmt.Printf("  %2d. %.3f  %s\n", i+1, s.BestSimilarity, truncateQuestion(s.Sentence))
		}
	}

	if len(report.WeakSentences) > 0 {
		fmt.Printf("\n  ⚠ %d weak sentence(s)\n", len(report.WeakSentences))
		for _, ws := range report.WeakSentences {
			fmt.Printf("    • %.3f  %s\n", ws.Score, ws.Sentence)
		}
	}
	fmt.Printf("\n")

	return nil
}
