package tracing

import (
	"context"
	"strings"
	"testing"

	"github.com/keeldata/trustvault/internal/log"
)

func TestGenerateTraceID(t *testing.T) {
	id := GenerateTraceID()

	if !strings.HasPrefix(id, "tv-") {
		t.Errorf("GenerateTraceID() = %v, want tv- prefix", id)
	}

	if id == GenerateTraceID() {
		t.Error("GenerateTraceID() should not repeat")
	}
}

func TestTraceFieldsHooks_NilContext(t *testing.T) {
	fields := TraceFieldsHooks(nil, "msg", log.String("a", "b"))

	if len(fields) != 1 {
		t.Errorf("TraceFieldsHooks(nil) should pass fields through, got %d", len(fields))
	}
}

func TestTraceFieldsHooks_EmptyContext(t *testing.T) {
	fields := TraceFieldsHooks(context.Background(), "msg")

	if len(fields) != 0 {
		t.Errorf("TraceFieldsHooks() should add nothing without ids, got %d", len(fields))
	}
}

func TestTraceFieldsHooks_AddsContextFields(t *testing.T) {
	ctx := WithTraceID(context.Background(), "tv-123")
	ctx = WithRequestID(ctx, "req-456")
	ctx = WithOperationName(ctx, "PutEntity")

	fields := TraceFieldsHooks(ctx, "msg")

	if len(fields) != 3 {
		t.Fatalf("TraceFieldsHooks() should add 3 fields, got %d", len(fields))
	}

	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}

	for _, want := range []string{"trace_id", "request_id", "operation_name"} {
		found := false

		for _, k := range keys {
			if k == want {
				found = true
			}
		}

		if !found {
			t.Errorf("TraceFieldsHooks() missing field %q in %v", want, keys)
		}
	}
}

func TestRoundTrips(t *testing.T) {
	ctx := context.Background()

	if _, ok := GetTraceID(ctx); ok {
		t.Error("GetTraceID should be false on empty context")
	}

	ctx = WithTraceID(ctx, "tv-abc")
	if got, ok := GetTraceID(ctx); !ok || got != "tv-abc" {
		t.Errorf("GetTraceID = %v, %v", got, ok)
	}

	ctx = WithRequestID(ctx, "r1")
	if got, ok := GetRequestID(ctx); !ok || got != "r1" {
		t.Errorf("GetRequestID = %v, %v", got, ok)
	}

	ctx = WithOperationName(ctx, "CheckAccess")
	if got, ok := GetOperationName(ctx); !ok || got != "CheckAccess" {
		t.Errorf("GetOperationName = %v, %v", got, ok)
	}
}
