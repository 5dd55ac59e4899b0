package model

// SourceChunk is one retrieved evidence passage with its provenance
type SourceChunk struct {
	Text           string  `json:"text"`                    // Passage text
	RelevanceScore float64 `json:"relevance_score"`         // Retrieval engine relevance
	ProvenanceID   string  `json:"provenance_id,omitempty"` // Document of origin
	Title          string  `json:"title,omitempty"`         // Document title
}

// Answer is a generated response together with the chunks it was grounded on
type Answer struct {
	Text         string        `json:"text"`
	SourceChunks []SourceChunk `json:"source_chunks"`
}

// SourceTexts returns the chunk texts in order
func (a Answer) SourceTexts() []string {
	return ChunkTexts(a.SourceChunks)
}

// ChunkTexts returns the text of every chunk in order
func ChunkTexts(chunks []SourceChunk) []string {
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	return texts
}

// SentenceScore is the best-match similarity of one answer sentence
type SentenceScore struct {
	Sentence       string  `json:"sentence"`
	BestSimilarity float64 `json:"best_similarity"` // In [0,1]
	SourceIndex    int     `json:"source_index"`    // Index of the best-matching source, -1 if none
}

// WeakSentence is an answer sentence whose best similarity is below the weak threshold
type WeakSentence struct {
	Sentence string  `json:"sentence"`
	Score    float64 `json:"score"`
	Index    int     `json:"index"` // Sentence index in the answer (0-based)
}
