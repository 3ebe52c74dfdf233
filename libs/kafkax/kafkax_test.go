package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMetaFallbacks(t *testing.T) {
	msg := kafka.Message{Topic: "accounts.provider.upserted.v1", Partition: 2, Offset: 41, Key: []byte("prov-1")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "accounts.provider.upserted.v1/2/41" || meta.EventType != "accounts.provider.upserted.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	// Same key at a later offset is a different event.
	next := msg
	next.Offset = 42
	if ExtractEventMeta(next).EventID == meta.EventID {
		t.Fatal("messages sharing a key must not share an event id")
	}

	if got := ExtractEventMeta(kafka.Message{Key: []byte("k")}).EventID; got != "" {
		t.Fatalf("expected empty id without header or topic, got %q", got)
	}

	msg.Headers = []kafka.Header{
		{Key: HeaderEventID, Value: []byte("evt-2")},
		{Key: HeaderEventType, Value: []byte("custom.v1")},
	}
	meta = ExtractEventMeta(msg)
	if meta.EventID != "evt-2" || meta.EventType != "custom.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: HeaderEventID, Value: []byte("e")}})
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatalf("traceparent not injected: %v", headers)
	}

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), kafka.Message{Headers: headers}))
	if got.TraceID() != traceID {
		t.Fatalf("trace id mismatch: %s", got.TraceID())
	}
}

func TestReadyCheckWithoutBrokers(t *testing.T) {
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatal("expected error without brokers")
	}
}
