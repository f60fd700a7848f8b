package services_test

import (
	"context"
	"testing"

	"storyreel/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithProject(ctx, "p1", "c7")
	ctx = services.WithStage(ctx, "scenes")
	ctx = services.WithOperation(ctx, "scene_images")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.ProjectFromContext(ctx); !ok || id != "p1" {
		t.Fatalf("unexpected project id: %v %v", id, ok)
	}
	if id, ok := services.ChapterFromContext(ctx); !ok || id != "c7" {
		t.Fatalf("unexpected chapter id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "scenes" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if op, ok := services.OperationFromContext(ctx); !ok || op != "scene_images" {
		t.Fatalf("unexpected operation: %v %v", op, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithProject(ctx, "", "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.ProjectFromContext(ctx); ok {
		t.Fatal("expected no project value")
	}
}
