package usecase

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var usecaseTracer = otel.Tracer("lineup-orchestrator/internal/usecase")

var noopSpan = trace.SpanFromContext(context.Background())

// startUsecaseSpan opens a child span only when ctx already carries a
// trace. Otherwise it returns a no-op span that is safe to End.
func startUsecaseSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if name == "" || !trace.SpanContextFromContext(ctx).IsValid() {
		return ctx, noopSpan
	}
	return usecaseTracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func teamAttrs(teamID string, period int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("lineup.team_id", teamID),
		attribute.Int("lineup.period", period),
	}
}
