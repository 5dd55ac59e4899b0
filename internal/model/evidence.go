package model

// EvidenceErrorReason tags why external evidence could not be produced
type EvidenceErrorReason string

const (
	ReasonNoSources         EvidenceErrorReason = "no_external_sources"  // Search returned nothing
	ReasonNoSentences       EvidenceErrorReason = "no_sentences"         // Abstracts had no usable sentences
	ReasonKeywordExtraction EvidenceErrorReason = "keyword_extraction"   // LLM could not produce a query
	ReasonNetwork           EvidenceErrorReason = "network"              // Transport failure
	ReasonRateLimit         EvidenceErrorReason = "rate_limit"           // Search service throttled us
	ReasonParse             EvidenceErrorReason = "parse"                // Undecodable response
	ReasonStatus            EvidenceErrorReason = "status"               // Unexpected HTTP status
	ReasonScoring           EvidenceErrorReason = "scoring"              // Encoder failed while scoring
	ReasonDisabled          EvidenceErrorReason = "disabled"             // No searcher configured
)

// EvidenceError is the explicit error tag carried by ExternalEvidence
type EvidenceError struct {
	Reason  EvidenceErrorReason `json:"reason"`
	Message string              `json:"message"`
}

func (e *EvidenceError) Error() string {
	return string(e.Reason) + ": " + e.Message
}

// ExternalEvidence is the result of one external literature lookup
type ExternalEvidence struct {
	QueryUsed      string         `json:"query_used"`
	Abstracts      []string       `json:"abstracts,omitempty"`
	NumSources     int            `json:"num_sources"`
	NumSentences   int            `json:"num_sentences"`
	SupportScore   float64        `json:"support_score"`
	SentenceScores []float64      `json:"sentence_scores,omitempty"`
	Error          *EvidenceError `json:"error,omitempty"`
}

// Failed reports whether the lookup carries an error tag
func (e ExternalEvidence) Failed() bool {
	return e.Error != nil
}

// SupportTier is the qualitative band of a support score
type SupportTier string

const (
	SupportHigh    SupportTier = "HIGH"
	SupportMedium  SupportTier = "MEDIUM"
	SupportLow     SupportTier = "LOW"
	SupportVeryLow SupportTier = "VERY LOW"
)

// Interpretation explains a support score
type Interpretation struct {
	Score          float64     `json:"score"`
	Tier           SupportTier `json:"confidence"`
	Interpretation string      `json:"interpretation"`
}

// Reliability states which evidence a combined fact-check score rests on
type Reliability string

const (
	ReliabilityInternalOnly        Reliability = "internal_only"
	ReliabilityInternalAndExternal Reliability = "internal_and_external"
)

// FactCheck combines internal attribution with external evidence
type FactCheck struct {
	InternalScore          float64          `json:"internal_score"`
	InternalInterpretation Interpretation   `json:"internal_interpretation"`
	ExternalScore          float64          `json:"external_score"`
	ExternalInterpretation *Interpretation  `json:"external_interpretation,omitempty"`
	External               ExternalEvidence `json:"external_details"`
	CombinedScore          float64          `json:"combined_score"`
	Reliability            Reliability      `json:"reliability"`
	Recommendation         string           `json:"recommendation"`
}
