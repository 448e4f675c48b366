package logging

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"info":    LevelInfo,
		"verbose": LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestLoggerContextAddsTraceFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(core)).With("component", "lineup_store")

	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3},
		SpanID:  trace.SpanID{4, 5, 6},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.WarnContext(ctx, "remote call failed", "op", "lineup.fetch", "error", errors.New("boom"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["component"] != "lineup_store" || fields["op"] != "lineup.fetch" {
		t.Fatalf("unexpected fields: %+v", fields)
	}
	if fields["trace_id"] != spanCtx.TraceID().String() || fields["span_id"] != spanCtx.SpanID().String() {
		t.Fatalf("expected trace fields, got %+v", fields)
	}
	if fields["error"] != "boom" {
		t.Fatalf("expected error field, got %+v", fields["error"])
	}
}

func TestMirrorReceivesEnabledRecordsOnly(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	logger := FromZap(zap.New(core))

	var got []string
	SetMirror(func(_ context.Context, level Level, msg string, _ ...any) {
		got = append(got, level.String()+":"+msg)
	})
	t.Cleanup(func() { SetMirror(nil) })

	logger.Debug("dropped")
	logger.Info("kept")
	logger.ErrorContext(context.Background(), "also kept")

	if len(got) != 2 || got[0] != "info:kept" || got[1] != "error:also kept" {
		t.Fatalf("unexpected mirrored records: %v", got)
	}
}

func TestNilLoggerFallsBackToDefault(t *testing.T) {
	var logger *Logger
	logger.Info("does not panic")
	if logger.With("k", "v") == nil {
		t.Fatalf("expected non-nil logger from nil receiver")
	}
}

func TestZapFieldsOddArgs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(core))

	logger.Info("odd args", 42, "value", "dangling")

	fields := logs.All()[0].ContextMap()
	if fields["arg_0"] != "value" {
		t.Fatalf("expected non-string key to become arg_0, got %+v", fields)
	}
	if v, ok := fields["dangling"]; !ok || v != nil {
		t.Fatalf("expected dangling key logged as null, got %+v", fields)
	}
}
