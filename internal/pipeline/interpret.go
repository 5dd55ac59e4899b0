package pipeline

import (
	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/score"
)

// ConfidenceFor maps passed/counted checks onto a tier. Both boundaries
// are inclusive, so 2/4 is MEDIUM and 3/4 is HIGH.
func ConfidenceFor(safetyScore, maxScore int, th model.Thresholds) model.Confidence {
	if maxScore <= 0 {
		return model.ConfidenceLow
	}

	ratio := float64(safetyScore) / float64(maxScore)
	switch {
	case ratio >= th.ConfidenceHigh:
		return model.ConfidenceHigh
	case ratio >= th.ConfidenceMedium:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

// Interpretations returns the human readable reading of each signal
func Interpretations(a *model.SafetyAssessment, th model.Thresholds) map[string]string {
	out := map[string]string{
		"attribution": interpretAttribution(a.AttributionScore, th),
		"consistency": interpretConsistency(a.ConsistencyScore, th),
		"entropy":     a.Entropy.Interpretation,
	}
	if out["entropy"] == "" {
		_, _, out["entropy"] = score.ClassifyEntropy(a.SemanticEntropy, th)
	}

	if a.FactCheck != nil {
		if a.FactCheck.External.Failed() {
			out["external"] = "Unavailable - " + string(a.FactCheck.External.Error.Reason)
		} else if a.FactCheck.ExternalInterpretation != nil {
			out["external"] = a.FactCheck.ExternalInterpretation.Interpretation
		}
		out["recommendation"] = a.FactCheck.Recommendation
	}
	return out
}

func interpretAttribution(s float64, th model.Thresholds) string {
	switch {
	case s >= th.AttributionExcellent:
		return "Excellent - answer is well-grounded in sources"
	case s >= th.Attribution:
		return "Good - answer is mostly supported by sources"
	case s >= th.AttributionFair:
		return "Fair - some parts may lack source support"
	default:
		return "Poor - answer may contain unsupported claims"
	}
}

func interpretConsistency(s float64, th model.Thresholds) string {
	switch {
	case s >= th.ConsistencyHigh:
		return "High - very stable responses"
	case s >= th.Consistency:
		return "Good - mostly consistent responses"
	default:
		return "Low - responses vary significantly"
	}
}
