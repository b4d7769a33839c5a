package services_test

import (
	"context"
	"testing"

	"peoplepipe/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-123")
	ctx = services.WithStep(ctx, "tmdb")
	ctx = services.WithMode(ctx, "resume")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-123" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if step, ok := services.StepFromContext(ctx); !ok || step != "tmdb" {
		t.Fatalf("unexpected step: %v %v", step, ok)
	}
	if mode, ok := services.ModeFromContext(ctx); !ok || mode != "resume" {
		t.Fatalf("unexpected mode: %v %v", mode, ok)
	}
}

func TestStepBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStep(ctx, "")
	if _, ok := services.StepFromContext(ctx); ok {
		t.Fatal("expected no step value")
	}
}
