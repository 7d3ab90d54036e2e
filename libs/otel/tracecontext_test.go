package otelx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	ctx := ContextWithTraceContext(context.Background(), traceparent, "")
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || sc.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("unexpected span context %+v", sc)
	}

	gotParent, _ := TraceContextStrings(ctx)
	if gotParent != traceparent {
		t.Fatalf("expected %q, got %q", traceparent, gotParent)
	}
}

func TestContextWithoutTraceparentIsUnchanged(t *testing.T) {
	ctx := context.Background()
	if got := ContextWithTraceContext(ctx, "", "vendor=1"); got != ctx {
		t.Fatal("expected original context")
	}
}
