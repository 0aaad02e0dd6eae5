package sqlstore_test

import (
	"context"
	"testing"

	"github.com/fluidml-go/fluidml/store/sqlstore"
)

func openTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSqlstoreSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	cfg := map[string]any{"lr": 0.1}

	if err := s.Save(ctx, 7, "answer", "json", "Train", cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, found, err := s.Load(ctx, "answer", "Train", cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !found {
		t.Fatal("want found=true after Save")
	}
	if got != float64(7) {
		t.Fatalf("want 7 round-tripped through json as float64, got %#v", got)
	}
}

func TestSqlstoreHasCompleteRunAndDeleteRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	cfg := map[string]any{"lr": 0.1}

	if err := s.Save(ctx, "m", "model", "json", "Train", cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if s.HasCompleteRun(ctx, "Train", cfg, []string{"model", "loss"}) {
		t.Fatal("want incomplete until loss is also saved")
	}
	if err := s.Save(ctx, 0.3, "loss", "json", "Train", cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !s.HasCompleteRun(ctx, "Train", cfg, []string{"model", "loss"}) {
		t.Fatal("want complete once both artifacts are saved")
	}

	if err := s.DeleteRun(ctx, "Train", cfg); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if s.HasCompleteRun(ctx, "Train", cfg, nil) {
		t.Fatal("want no run after DeleteRun")
	}
}

func TestSqlstoreGetResultsOmitsMissingNames(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	cfg := map[string]any{"lr": 0.1}

	if err := s.Save(ctx, "m", "model", "json", "Train", cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	results, err := s.GetResults(ctx, "Train", cfg, []string{"model", "loss"})
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if _, ok := results["loss"]; ok {
		t.Fatal("want loss absent since it was never saved")
	}
	if results["model"] != "m" {
		t.Fatalf("want model=%q, got %#v", "m", results["model"])
	}
}

func TestSqlstoreGetContextQueriesSameRow(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	cfg := map[string]any{"lr": 0.1}

	if err := s.Save(ctx, "m", "model", "json", "Train", cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	handle, err := s.GetContext(ctx, "Train", cfg)
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	rc, ok := handle.(sqlstore.RunContext)
	if !ok {
		t.Fatalf("want a sqlstore.RunContext handle, got %T", handle)
	}
	if rc.TaskName != "Train" {
		t.Fatalf("want TaskName=Train, got %q", rc.TaskName)
	}

	var n int
	if err := rc.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fluidml_artifacts WHERE task_name = ? AND config_hash = ? AND name = ?`,
		rc.TaskName, rc.ConfigHash, "model").Scan(&n); err != nil {
		t.Fatalf("query via handle: %v", err)
	}
	if n != 1 {
		t.Fatalf("want the handle's join key to match the row Save wrote, got count %d", n)
	}
}

func TestSqlstoreListRunsDistinguishesConfigs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.Save(ctx, "a", "out", "json", "Train", map[string]any{"lr": 0.1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, "b", "out", "json", "Train", map[string]any{"lr": 0.01}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	runs, err := s.ListRuns(ctx, "Train")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("want 2 distinct runs, got %d", len(runs))
	}
}
