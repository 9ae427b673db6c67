package log_test

import (
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kdapp-net/auth-episode/pkg/log"
)

func TestOtelSpanEventRecorder_NoopSpanDoesNotPanic(t *testing.T) {
	tracer := noop.NewTracerProvider().Tracer("test")
	_, span := tracer.Start(t.Context(), "test-span")
	defer span.End()

	rec := log.NewOtelSpanEventRecorder(span)

	rec.RecordEvent("challenge_issued", "episode_id", uint32(1), "timestamp", uint64(1700000000))
	rec.RecordError("invalid_signature", "episode_id", uint32(1))

	if rec.TraceID() == "" {
		t.Fatal("expected a non-empty trace id")
	}
	if rec.SpanID() == "" {
		t.Fatal("expected a non-empty span id")
	}
	var _ trace.Span = span
}
