package extract

import (
	"strings"
	"unicode/utf8"
)

// isTerminator reports whether r ends a sentence
func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// SplitSentences splits text on every sentence terminator and drops
// empty or whitespace-only fragments. Used for answer sentences.
func SplitSentences(text string) []string {
	fragments := strings.FieldsFunc(text, isTerminator)

	sentences := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if s := strings.TrimSpace(f); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// SplitSentencesMin is SplitSentences keeping only sentences of at least minLen characters
func SplitSentencesMin(text string, minLen int) []string {
	var kept []string
	for _, s := range SplitSentences(text) {
		if utf8.RuneCountInString(s) >= minLen {
			kept = append(kept, s)
		}
	}
	return kept
}

// SplitEvidenceSentences splits prose where a terminator is followed by
// whitespace, so decimals and abbreviations like "2.5 mg" stay intact.
// Sentences shorter than minLen characters are dropped.
func SplitEvidenceSentences(text string, minLen int) []string {
	text = strings.ReplaceAll(text, "\n", " ")

	var sentences []string
	var current strings.Builder

	flush := func() {
		sentence := strings.TrimSpace(current.String())
		if sentence != "" && utf8.RuneCountInString(sentence) >= minLen {
			sentences = append(sentences, sentence)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)

		if isTerminator(r) && i+1 < len(runes) && (runes[i+1] == ' ' || runes[i+1] == '\t') {
			flush()
		}
	}

	if current.Len() > 0 {
		flush()
	}

	return sentences
}

// FlattenEvidence splits every document into evidence sentences and concatenates them in order
func FlattenEvidence(docs []string, minLen int) []string {
	var sentences []string
	for _, doc := range docs {
		sentences = append(sentences, SplitEvidenceSentences(StripMarkup(doc), minLen)...)
	}
	return sentences
}
