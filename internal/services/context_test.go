package services

import (
	"context"
	"testing"
)

func TestContextRoundTrips(t *testing.T) {
	ctx := context.Background()
	ctx = WithBatchID(ctx, "batch-1")
	ctx = WithFileIndex(ctx, 3)
	ctx = WithStage(ctx, "audio_conversion")
	ctx = WithRequestID(ctx, "req-9")

	if id, ok := BatchIDFromContext(ctx); !ok || id != "batch-1" {
		t.Fatalf("batch id: %q %v", id, ok)
	}
	if idx, ok := FileIndexFromContext(ctx); !ok || idx != 3 {
		t.Fatalf("file index: %d %v", idx, ok)
	}
	if stage, ok := StageFromContext(ctx); !ok || stage != "audio_conversion" {
		t.Fatalf("stage: %q %v", stage, ok)
	}
	if rid, ok := RequestIDFromContext(ctx); !ok || rid != "req-9" {
		t.Fatalf("request id: %q %v", rid, ok)
	}
}

func TestContextMissingValues(t *testing.T) {
	ctx := context.Background()
	if _, ok := BatchIDFromContext(ctx); ok {
		t.Fatal("expected no batch id")
	}
	if _, ok := FileIndexFromContext(ctx); ok {
		t.Fatal("expected no file index")
	}
	if WithStage(ctx, "") != ctx {
		t.Fatal("empty stage must not allocate a new context")
	}
}
