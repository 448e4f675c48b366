package httpapi

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var apiTracer = otel.Tracer("lineup-orchestrator/internal/interfaces/httpapi")

// startSpan opens a child span for handler work only. Requests the server
// middleware did not trace (probes) and helper names get the parent span.
func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	parent := trace.SpanFromContext(ctx)
	if !parent.SpanContext().IsValid() || !isHandlerSpan(name) {
		return ctx, parent
	}
	return apiTracer.Start(ctx, name)
}

func isHandlerSpan(name string) bool {
	return strings.HasPrefix(name, "httpapi.Handler.")
}
