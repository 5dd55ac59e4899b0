package model

import "time"

// Confidence is the three-level verdict tier
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Uncertainty is the semantic entropy band (inverse of confidence)
type Uncertainty string

const (
	UncertaintyHigh   Uncertainty = "HIGH"
	UncertaintyMedium Uncertainty = "MEDIUM"
	UncertaintyLow    Uncertainty = "LOW"
)

// EntropyResult is the output of the semantic entropy estimator
type EntropyResult struct {
	SemanticEntropy float64     `json:"semantic_entropy"`
	Confidence      Confidence  `json:"confidence"`
	Uncertainty     Uncertainty `json:"uncertainty"`
	Interpretation  string      `json:"interpretation"`
	HighUncertainty bool        `json:"high_uncertainty"`
	NumSentences    int         `json:"num_sentences"`
	ClusterSizes    []int       `json:"cluster_sizes,omitempty"`
	Responses       []string    `json:"responses,omitempty"`
}

// Stage names the steps of the assessment state machine
type Stage string

const (
	StageRetrieve      Stage = "retrieve"
	StageAttribution   Stage = "attribution"
	StageConsistency   Stage = "consistency"
	StageWeakSentences Stage = "weak_sentences"
	StageEntropy       Stage = "entropy"
	StageExternal      Stage = "external_check"
	StageAggregate     Stage = "aggregate"
)

// StageStatus records how a stage ended
type StageStatus string

const (
	StagePassed  StageStatus = "passed"
	StageFailed  StageStatus = "failed"  // Completed, below threshold
	StageError   StageStatus = "error"   // Could not complete; excluded from the count
	StageSkipped StageStatus = "skipped" // Not requested
)

// StageResult is the transparent record of one scored stage
type StageResult struct {
	Stage     Stage                  `json:"stage"`
	Status    StageStatus            `json:"status"`
	Value     float64                `json:"value"`
	Threshold float64                `json:"threshold,omitempty"`
	Counted   bool                   `json:"counted"` // Contributes to max_safety_score
	Error     string                 `json:"error,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"` // Formula and inputs
}

// SubAnswer is one answered sub-question of a multi-stage retrieval
type SubAnswer struct {
	Question string        `json:"question"`
	Answer   string        `json:"answer"`
	Sources  []SourceChunk `json:"sources"`
}

// MultiStage describes how multi-stage retrieval went
type MultiStage struct {
	Requested    bool        `json:"requested"`
	Used         bool        `json:"used"`
	Fallback     bool        `json:"fallback"` // Decomposition failed, single-stage used
	SubQuestions []string    `json:"sub_questions,omitempty"`
	SubAnswers   []SubAnswer `json:"sub_answers,omitempty"`
}

// SafetyAssessment is the terminal aggregate for one question
type SafetyAssessment struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
	Duration  float64   `json:"duration_seconds"`

	SourceChunks []SourceChunk `json:"source_chunks"`

	AttributionScore float64           `json:"attribution_score"`
	SentenceScores   []SentenceScore   `json:"sentence_scores,omitempty"`
	ConsistencyScore float64           `json:"consistency_score"`
	SemanticEntropy  float64           `json:"semantic_entropy"`
	Entropy          EntropyResult     `json:"entropy"`
	WeakSentences    []WeakSentence    `json:"weak_sentences"`
	HasWeak          bool              `json:"has_weak_sentences"`
	FactCheck        *FactCheck        `json:"fact_check,omitempty"`
	ExternalEvidence *ExternalEvidence `json:"external_evidence,omitempty"`

	SafetyScore    int        `json:"safety_score"`
	MaxSafetyScore int        `json:"max_safety_score"`
	Confidence     Confidence `json:"confidence"`

	Stages           []StageResult     `json:"stages"`
	Unavailable      []string          `json:"unavailable,omitempty"` // Evidence sources that failed
	Interpretations  map[string]string `json:"interpretations"`
	MultiStage       MultiStage        `json:"multi_stage"`
	FactCheckEnabled bool              `json:"fact_check_enabled"`
}

// ConfidenceRatio returns safety_score / max_safety_score
func (a SafetyAssessment) ConfidenceRatio() float64 {
	if a.MaxSafetyScore == 0 {
		return 0
	}
	return float64(a.SafetyScore) / float64(a.MaxSafetyScore)
}

// Stage returns the recorded result for a stage, if any
func (a SafetyAssessment) Stage(s Stage) (StageResult, bool) {
	for _, r := range a.Stages {
		if r.Stage == s {
			return r, true
		}
	}
	return StageResult{}, false
}
