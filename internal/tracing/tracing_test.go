package tracing

import (
	"context"
	"errors"
	"testing"
)

func TestInitTracing_Disabled(t *testing.T) {
	tr, err := InitTracing(Config{Enabled: false})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if GetTracer() != tr {
		t.Error("Expected disabled tracer to become the global tracer")
	}
	ctx, span := tr.StartSpan(context.Background(), "engine.validate")
	if ctx == nil {
		t.Fatal("Expected a context")
	}
	if span.SpanContext().IsValid() {
		t.Error("Expected no-op span")
	}
	EndSpan(span, errors.New("boom"))
}

func TestStartSpan_NilTracer(t *testing.T) {
	var tr *Tracer
	_, span := tr.StartSpan(context.Background(), "noop")
	span.End()
}
