package store_test

import (
	"context"
	"testing"

	"github.com/fluidml-go/fluidml/store"
)

func TestMemStoreSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	cfg := map[string]any{"lr": 0.1}

	if err := s.Save(ctx, 42, "answer", "json", "Train", cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, found, err := s.Load(ctx, "answer", "Train", cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found {
		t.Fatal("want found=true after Save")
	}
	if got != float64(42) {
		t.Fatalf("want 42 round-tripped through json as float64, got %#v (%T)", got, got)
	}
}

func TestMemStoreLoadMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()

	_, found, err := s.Load(ctx, "missing", "Train", map[string]any{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if found {
		t.Fatal("want found=false for a never-saved artifact")
	}
}

func TestMemStoreHasCompleteRun(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	cfg := map[string]any{"lr": 0.1}

	if s.HasCompleteRun(ctx, "Train", cfg, []string{"model", "loss"}) {
		t.Fatal("want incomplete before any Save")
	}
	if err := s.Save(ctx, "m", "model", "json", "Train", cfg); err != nil {
		t.Fatalf("Save model: %v", err)
	}
	if s.HasCompleteRun(ctx, "Train", cfg, []string{"model", "loss"}) {
		t.Fatal("want incomplete with only one of two published names saved")
	}
	if err := s.Save(ctx, 0.5, "loss", "json", "Train", cfg); err != nil {
		t.Fatalf("Save loss: %v", err)
	}
	if !s.HasCompleteRun(ctx, "Train", cfg, []string{"model", "loss"}) {
		t.Fatal("want complete once every published name is saved")
	}
}

func TestMemStoreDeleteRun(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	cfg := map[string]any{"lr": 0.1}

	if err := s.Save(ctx, 1, "a", "json", "Train", cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.DeleteRun(ctx, "Train", cfg); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if s.HasCompleteRun(ctx, "Train", cfg, nil) {
		t.Fatal("want no run after DeleteRun")
	}
}

func TestMemStoreGetContextIsStableAndDistinguishesTasks(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()
	cfg := map[string]any{"lr": 0.1}

	h1, err := s.GetContext(ctx, "Train", cfg)
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	h2, err := s.GetContext(ctx, "Train", cfg)
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("want the same handle for repeated calls on the same identity, got %v and %v", h1, h2)
	}

	h3, err := s.GetContext(ctx, "Other", cfg)
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if h3 == h1 {
		t.Fatal("want distinct handles for distinct task names")
	}
}

func TestMemStoreListRuns(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemStore()

	if err := s.Save(ctx, 1, "a", "json", "Train", map[string]any{"lr": 0.1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, 1, "a", "json", "Train", map[string]any{"lr": 0.01}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, 1, "a", "json", "Other", map[string]any{"lr": 0.1}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	runs, err := s.ListRuns(ctx, "Train")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("want 2 runs for Train, got %d", len(runs))
	}
}
