package trace_test

import (
	"context"
	"strings"
	"testing"

	"github.com/igorvasilek/hoshi/common/trace"
)

func TestGenerateID_Format(t *testing.T) {
	id := trace.GenerateID()
	if !strings.HasPrefix(id, "t_") {
		t.Fatalf("expected t_ prefix, got %q", id)
	}
	if len(id) != 34 {
		t.Errorf("expected 34 chars, got %d (%q)", len(id), id)
	}
	if id == trace.GenerateID() {
		t.Error("two generated IDs should differ")
	}
}

func TestEnsure_KeepsExistingID(t *testing.T) {
	ctx := trace.WithTraceID(context.Background(), "t_fixed")
	if got := trace.FromContext(trace.Ensure(ctx)); got != "t_fixed" {
		t.Errorf("expected t_fixed, got %q", got)
	}
	if got := trace.FromContext(trace.Ensure(context.Background())); got == "" {
		t.Error("expected a generated trace ID")
	}
}
