package factcheck

import "github.com/ppiankov/veracity/internal/model"

// Interpret places a support score into its qualitative tier
func Interpret(score float64, th model.Thresholds) model.Interpretation {
	var tier model.SupportTier
	var text string

	switch {
	case score >= th.SupportHigh:
		tier = model.SupportHigh
		text = "Strong external validation - answer aligns well with recent literature"
	case score >= th.SupportMedium:
		tier = model.SupportMedium
		text = "Moderate external validation - answer has some support in literature"
	case score >= th.SupportLow:
		tier = model.SupportLow
		text = "Weak external validation - limited support in recent literature"
	default:
		tier = model.SupportVeryLow
		text = "Poor external validation - answer not well-supported by recent literature"
	}

	return model.Interpretation{Score: score, Tier: tier, Interpretation: text}
}

// Recommendation is the advice shown next to a combined score. Wording
// differs depending on whether external evidence was available.
func Recommendation(score float64, reliability model.Reliability, th model.Thresholds) string {
	if reliability == model.ReliabilityInternalOnly {
		switch {
		case score >= th.SupportHigh:
			return "Well-supported by internal sources, but external validation unavailable"
		case score >= th.SupportMedium:
			return "Moderately supported by internal sources, consider seeking additional validation"
		default:
			return "Poorly supported by internal sources, high risk of inaccuracy"
		}
	}

	switch {
	case score >= th.SupportHigh:
		return "Well-validated by both internal and external sources"
	case score >= th.SupportMedium:
		return "Moderately validated, exercise caution in clinical application"
	default:
		return "Poorly validated, do not use without consulting healthcare professional"
	}
}

// Combine merges the internal attribution score with external evidence.
// Failed evidence leaves the internal score untouched.
func Combine(internal float64, ev model.ExternalEvidence, th model.Thresholds) *model.FactCheck {
	fc := &model.FactCheck{
		InternalScore:          internal,
		InternalInterpretation: Interpret(internal, th),
		ExternalScore:          ev.SupportScore,
		External:               ev,
	}

	if ev.Failed() {
		fc.CombinedScore = internal
		fc.Reliability = model.ReliabilityInternalOnly
	} else {
		interp := Interpret(ev.SupportScore, th)
		fc.ExternalInterpretation = &interp
		fc.CombinedScore = th.InternalWeight*internal + th.ExternalWeight*ev.SupportScore
		fc.Reliability = model.ReliabilityInternalAndExternal
	}

	fc.Recommendation = Recommendation(fc.CombinedScore, fc.Reliability, th)
	return fc
}
