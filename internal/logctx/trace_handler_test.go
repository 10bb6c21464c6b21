package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON log output: %v", err)
	}
	return entry
}

// TestTraceHandler_NoSpanContext verifies that logs without span context
// do NOT include trace_id or span_id fields.
func TestTraceHandler_NoSpanContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "test message", "key", "value")

	entry := decodeLogLine(t, &buf)
	if _, exists := entry["trace_id"]; exists {
		t.Errorf("trace_id should not be present without span context, got: %v", entry["trace_id"])
	}
	if _, exists := entry["span_id"]; exists {
		t.Errorf("span_id should not be present without span context, got: %v", entry["span_id"])
	}
	if entry["msg"] != "test message" {
		t.Errorf("expected msg='test message', got: %v", entry["msg"])
	}
}

// spanStub carries a fixed, valid span context so the injection path is exercised
// without a real tracer provider.
type spanStub struct {
	trace.Span
	spanContext trace.SpanContext
}

func (s *spanStub) SpanContext() trace.SpanContext { return s.spanContext }

func (s *spanStub) End(...trace.SpanEndOption) {}

func newSpanContext(t *testing.T) trace.SpanContext {
	t.Helper()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	if err != nil {
		t.Fatalf("trace id: %v", err)
	}
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	if err != nil {
		t.Fatalf("span id: %v", err)
	}
	return trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
}

// TestTraceHandler_WithValidSpan verifies trace fields are injected when the
// context carries a valid span.
func TestTraceHandler_WithValidSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil)))

	span := &spanStub{spanContext: newSpanContext(t)}
	ctx := trace.ContextWithSpan(context.Background(), span)

	logger.InfoContext(ctx, "test message", "key", "value")

	entry := decodeLogLine(t, &buf)
	if entry["trace_id"] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("unexpected trace_id: %v", entry["trace_id"])
	}
	if entry["span_id"] != "00f067aa0ba902b7" {
		t.Errorf("unexpected span_id: %v", entry["span_id"])
	}
	if entry["key"] != "value" {
		t.Errorf("expected key='value', got: %v", entry["key"])
	}
}

// TestTraceHandler_Enabled verifies that Enabled delegates to the inner handler.
func TestTraceHandler_Enabled(t *testing.T) {
	h := NewTraceHandler(slog.NewJSONHandler(nil, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx := context.Background()
	if h.Enabled(ctx, slog.LevelInfo) {
		t.Errorf("expected Info level to be disabled when handler level is Warn")
	}
	if !h.Enabled(ctx, slog.LevelWarn) {
		t.Errorf("expected Warn level to be enabled")
	}
}

// TestTraceHandler_WithAttrs verifies the returned handler keeps injecting and
// carries the attributes.
func TestTraceHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewTraceHandler(slog.NewJSONHandler(&buf, nil))

	wrapped, ok := h.WithAttrs([]slog.Attr{slog.String("component", "mirror")}).(*TraceHandler)
	if !ok {
		t.Fatalf("WithAttrs should return *TraceHandler")
	}

	slog.New(wrapped).InfoContext(context.Background(), "test")

	entry := decodeLogLine(t, &buf)
	if entry["component"] != "mirror" {
		t.Errorf("expected component attribute, got: %v", entry)
	}
}

// TestTraceHandler_NilHandler verifies that NewTraceHandler panics with a nil handler.
func TestTraceHandler_NilHandler(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("NewTraceHandler with nil handler should panic")
		}
	}()

	NewTraceHandler(nil)
}

func TestWithLoggerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := WithLogger(context.Background(), base)
	ctx, logger := With(ctx, "group", "Bangkok")
	logger.InfoContext(ctx, "scanning")

	entry := decodeLogLine(t, &buf)
	if entry["group"] != "Bangkok" {
		t.Errorf("expected group attribute from With, got: %v", entry)
	}

	if got := LoggerFromContext(ctx); got != logger {
		t.Errorf("LoggerFromContext should return the derived logger")
	}
	if got := LoggerFromContext(context.Background()); got == nil {
		t.Errorf("LoggerFromContext should fall back to slog.Default")
	}
}
