package httpapi

import (
	"context"
	"testing"
)

func TestIsHandlerSpan(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{in: "httpapi.Handler.SwapPlayers", want: true},
		{in: "httpapi.RequestLogging"},
		{in: "httpapi.writeError"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := isHandlerSpan(tt.in); got != tt.want {
				t.Fatalf("isHandlerSpan(%q)=%v want=%v", tt.in, got, tt.want)
			}
		})
	}
}

func TestStartSpan_NoParentKeepsContext(t *testing.T) {
	ctx := context.Background()
	got, span := startSpan(ctx, "httpapi.Handler.GetLineup")
	defer span.End()

	if got != ctx {
		t.Fatalf("expected context to be returned unchanged without a parent span")
	}
	if span.SpanContext().IsValid() {
		t.Fatalf("expected a non-recording span without a parent")
	}
}
