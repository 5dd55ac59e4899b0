package factcheck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/MakeNowJust/heredoc"

	"github.com/ppiankov/veracity/internal/llm"
)

var keywordSystemPrompt = heredoc.Doc(`
	You are a clinical NLP assistant that extracts 3-6 concise keywords
	from an answer so they can be used as a literature search query.

	Rules
	1. Output ONE line containing only the keywords separated by spaces.
	2. Use lower-case nouns; drop adjectives and stop-words.
	3. Include a keyword for:
	   - the main disease / problem
	   - the intervention / drug class (if present)
	   - the population or special setting (if present)
	4. Do NOT include numbers, punctuation, extra words, or explanations.
	5. If the answer covers multiple distinct topics, pick the MOST
	   central one (usually the first sentence).
`)

var keywordUserTemplate = heredoc.Doc(`
	Extract keywords for a literature search from this answer:

	%s

	Keywords:
`)

// ExtractKeywords asks the model for a one-line keyword query describing
// the answer and cleans it up. An empty result is an error.
func (c *Checker) ExtractKeywords(ctx context.Context, answer string) (string, error) {
	if c.provider == nil {
		return "", errors.New("keyword extraction: no LLM provider configured")
	}

	resp, err := c.provider.Complete(ctx, llm.Request{
		System:      keywordSystemPrompt,
		Prompt:      fmt.Sprintf(keywordUserTemplate, answer),
		Temperature: c.opts.KeywordTemperature,
		MaxTokens:   60,
	})
	if err != nil {
		return "", fmt.Errorf("keyword extraction: %w", err)
	}

	query := ParseKeywords(resp.Text, c.opts.MaxKeywords)
	if query == "" {
		return "", fmt.Errorf("keyword extraction: %w", llm.ErrNoResponse)
	}
	return query, nil
}

// ParseKeywords reduces a model reply to a lowercase space-separated query.
// Only the first non-empty line is used, a leading "Keywords:" label is
// dropped, punctuation becomes whitespace and at most limit terms are kept.
func ParseKeywords(text string, limit int) string {
	var line string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}

	line = strings.ToLower(line)
	line = strings.TrimPrefix(line, "keywords:")

	terms := strings.FieldsFunc(line, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	kept := terms[:0]
	for _, t := range terms {
		if t = strings.Trim(t, "-"); t != "" {
			kept = append(kept, t)
		}
	}

	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return strings.Join(kept, " ")
}
