package services_test

import (
	"context"
	"testing"

	"npprobes/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithSessionID(ctx, "DRpilot_626791_20220817")
	ctx = services.WithProbe(ctx, "probeA")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.SessionIDFromContext(ctx); !ok || id != "DRpilot_626791_20220817" {
		t.Fatalf("unexpected session id: %v %v", id, ok)
	}
	if probe, ok := services.ProbeFromContext(ctx); !ok || probe != "probeA" {
		t.Fatalf("unexpected probe: %v %v", probe, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankProbePreservesContext(t *testing.T) {
	ctx := services.WithProbe(context.Background(), "")
	if _, ok := services.ProbeFromContext(ctx); ok {
		t.Fatal("expected no probe value")
	}
}
