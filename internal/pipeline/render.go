package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/veracity/internal/model"
)

// Disclaimer closes every rendered report
const Disclaimer = "Medical Disclaimer: This information is for educational purposes only. It is not medical advice; consult a qualified healthcare professional."

// Renderer writes assessments as JSON, Markdown and a console summary
type Renderer struct {
	includeFooter bool
	out           io.Writer
}

// NewRenderer creates a renderer printing summaries to stdout
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter, out: os.Stdout}
}

// WithOutput redirects summaries and "-" paths to w
func (r *Renderer) WithOutput(w io.Writer) *Renderer {
	r.out = w
	return r
}

// RenderReport writes the requested files and prints the summary
func (r *Renderer) RenderReport(a *model.SafetyAssessment, jsonPath, mdPath string, verbose bool) error {
	if jsonPath != "" {
		if err := r.RenderJSON(a, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose && jsonPath != "-" {
			fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", jsonPath)
		}
	}

	if mdPath != "" {
		if err := r.RenderMarkdown(a, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose && mdPath != "-" {
			fmt.Fprintf(os.Stderr, "✓ Wrote Markdown: %s\n", mdPath)
		}
	}

	if jsonPath != "-" && mdPath != "-" {
		r.RenderSummary(a)
	}
	return nil
}

// RenderJSON writes indented JSON to path, or to the output for "-"
func (r *Renderer) RenderJSON(a *model.SafetyAssessment, path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}
	data = append(data, '\n')
	return r.write(path, data)
}

// RenderMarkdown writes the Markdown report to path, or to the output for "-"
func (r *Renderer) RenderMarkdown(a *model.SafetyAssessment, path string) error {
	return r.write(path, []byte(r.Markdown(a)))
}

func (r *Renderer) write(path string, data []byte) error {
	if path == "-" {
		_, err := r.out.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Markdown formats the assessment as a Markdown document
func (r *Renderer) Markdown(a *model.SafetyAssessment) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Safety Assessment\n\n")
	fmt.Fprintf(&b, "**Question:** %s\n\n", a.Question)
	fmt.Fprintf(&b, "**Confidence:** %s (%d/%d)\n\n", a.Confidence, a.SafetyScore, a.MaxSafetyScore)

	if len(a.Unavailable) > 0 {
		fmt.Fprintf(&b, "> **Unavailable evidence:** %s\n\n", strings.Join(a.Unavailable, ", "))
	}

	fmt.Fprintf(&b, "## Answer\n\n%s\n\n", a.Answer)

	if a.MultiStage.Used {
		fmt.Fprintf(&b, "## Sub-questions\n\n")
		for i, sub := range a.MultiStage.SubAnswers {
			fmt.Fprintf(&b, "%d. **%s**\n   %s\n", i+1, sub.Question, oneLine(sub.Answer))
		}
		b.WriteString("\n")
	} else if a.MultiStage.Fallback {
		b.WriteString("_Multi-stage retrieval was requested but fell back to single-stage._\n\n")
	}

	fmt.Fprintf(&b, "## Checks\n\n")
	fmt.Fprintf(&b, "| Check | Value | Threshold | Result |\n")
	fmt.Fprintf(&b, "|---|---|---|---|\n")
	for _, s := range a.Stages {
		if s.Stage == model.StageRetrieve || s.Stage == model.StageAggregate {
			continue
		}
		fmt.Fprintf(&b, "| %s | %.3f | %s | %s |\n", s.Stage, s.Value, thresholdCell(s), statusCell(s))
	}
	b.WriteString("\n")

	if len(a.Interpretations) > 0 {
		fmt.Fprintf(&b, "## Interpretation\n\n")
		for _, key := range []string{"attribution", "consistency", "entropy", "external", "recommendation"} {
			if text, ok := a.Interpretations[key]; ok {
				fmt.Fprintf(&b, "- **%s:** %s\n", key, text)
			}
		}
		b.WriteString("\n")
	}

	if a.HasWeak {
		fmt.Fprintf(&b, "## Weak Sentences\n\n")
		for _, w := range a.WeakSentences {
			fmt.Fprintf(&b, "- (%.3f) %s\n", w.Score, w.Sentence)
		}
		b.WriteString("\n")
	}

	if a.FactCheck != nil && !a.FactCheck.External.Failed() {
		ev := a.FactCheck.External
		fmt.Fprintf(&b, "## External Evidence\n\n")
		fmt.Fprintf(&b, "- Query: `%s`\n", ev.QueryUsed)
		fmt.Fprintf(&b, "- Sources: %d abstracts, %d sentences\n", ev.NumSources, ev.NumSentences)
		fmt.Fprintf(&b, "- Combined score: %.3f (%s)\n\n", a.FactCheck.CombinedScore, a.FactCheck.Reliability)
	}

	if len(a.SourceChunks) > 0 {
		fmt.Fprintf(&b, "## Sources\n\n")
		for i, c := range a.SourceChunks {
			label := c.Title
			if label == "" {
				label = c.ProvenanceID
			}
			if label == "" {
				label = fmt.Sprintf("chunk %d", i+1)
			}
			fmt.Fprintf(&b, "%d. **%s** (relevance %.3f): %s\n", i+1, label, c.RelevanceScore, truncate(oneLine(c.Text), 200))
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\n\n%s\n", Disclaimer)
	if r.includeFooter {
		fmt.Fprintf(&b, "\n_Assessment %s generated %s._\n", a.ID, a.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
	}

	return b.String()
}

// RenderSummary prints a short console verdict
func (r *Renderer) RenderSummary(a *model.SafetyAssessment) {
	w := r.out

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "  Safety Assessment\n")
	fmt.Fprintf(w, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Question:     %s\n", truncate(a.Question, 80))
	fmt.Fprintf(w, "  Answer:       %s\n", truncate(oneLine(a.Answer), 80))
	fmt.Fprintf(w, "\n")

	for _, s := range a.Stages {
		switch s.Stage {
		case model.StageRetrieve, model.StageAggregate, model.StageWeakSentences:
			continue
		}
		fmt.Fprintf(w, "  %s %-14s %.3f\n", statusMark(s), s.Stage, s.Value)
	}

	if a.HasWeak {
		fmt.Fprintf(w, "\n  ⚠ %d weak sentence(s)\n", len(a.WeakSentences))
		for _, ws := range a.WeakSentences {
			fmt.Fprintf(w, "    • %s\n", truncate(ws.Sentence, 100))
		}
	}
	if len(a.Unavailable) > 0 {
		fmt.Fprintf(w, "\n  ⚠ Unavailable: %s\n", strings.Join(a.Unavailable, ", "))
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Final:        %s CONFIDENCE (%d/%d)\n", a.Confidence, a.SafetyScore, a.MaxSafetyScore)
	fmt.Fprintf(w, "\n  %s\n\n", Disclaimer)
}

func statusMark(s model.StageResult) string {
	switch s.Status {
	case model.StagePassed:
		return "✓"
	case model.StageFailed:
		return "✗"
	case model.StageSkipped:
		return "-"
	default:
		return "!"
	}
}

func statusCell(s model.StageResult) string {
	cell := string(s.Status)
	if !s.Counted {
		cell += " (not counted)"
	}
	return cell
}

func thresholdCell(s model.StageResult) string {
	if s.Status == model.StageSkipped {
		return "-"
	}
	return fmt.Sprintf("%.2f", s.Threshold)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
