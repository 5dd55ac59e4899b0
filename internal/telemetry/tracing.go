package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/veracity/internal/model"
)

// tracer reports through whatever provider the host process installed.
// Without one, spans are no-ops.
var tracer = otel.Tracer("veracity.pipeline")

// StartAssessment opens the root span for one question
func StartAssessment(ctx context.Context, id, question string, multiStage bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Aggregator.Assess",
		trace.WithAttributes(
			attribute.String("veracity.assessment_id", id),
			attribute.Int("veracity.question_length", len(question)),
			attribute.Bool("veracity.multi_stage", multiStage),
		),
	)
}

// StartStage opens a child span for one pipeline stage
func StartStage(ctx context.Context, stage model.Stage) (context.Context, trace.Span) {
	return tracer.Start(ctx, "stage."+string(stage),
		trace.WithAttributes(attribute.String("veracity.stage", string(stage))),
	)
}

// EndStage records the stage result on the span and ends it
func EndStage(span trace.Span, result model.StageResult, err error) {
	span.SetAttributes(
		attribute.String("veracity.status", string(result.Status)),
		attribute.Float64("veracity.value", result.Value),
		attribute.Bool("veracity.counted", result.Counted),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// EndAssessment records the verdict on the root span and ends it
func EndAssessment(span trace.Span, a *model.SafetyAssessment, err error) {
	if a != nil {
		span.SetAttributes(
			attribute.Int("veracity.safety_score", a.SafetyScore),
			attribute.Int("veracity.max_safety_score", a.MaxSafetyScore),
			attribute.String("veracity.confidence", string(a.Confidence)),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
