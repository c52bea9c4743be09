package service

import (
	"context"
	"testing"
)

func TestContextValuesDefaultToUnknown(t *testing.T) {
	ctx := context.Background()
	if got := RoleFromContext(ctx); got != "unknown" {
		t.Fatalf("role=%q, want unknown", got)
	}
	if got := TaskIDFromContext(ctx); got != "" {
		t.Fatalf("task id=%q, want empty", got)
	}
}

func TestContextValuesRoundTrip(t *testing.T) {
	ctx := WithTaskID(WithProvider(WithRole(context.Background(), " writer "), "openai"), "t-1")
	if RoleFromContext(ctx) != "writer" || ProviderFromContext(ctx) != "openai" || TaskIDFromContext(ctx) != "t-1" {
		t.Fatalf("unexpected values role=%q provider=%q task=%q",
			RoleFromContext(ctx), ProviderFromContext(ctx), TaskIDFromContext(ctx))
	}
	if WithRole(ctx, "  ") != ctx {
		t.Fatalf("blank role should keep ctx")
	}
}
