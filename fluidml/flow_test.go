package fluidml_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fluidml-go/fluidml"
	"github.com/fluidml-go/fluidml/store"
)

func oneResource() []fluidml.Resource {
	return []fluidml.Resource{{"id": 0}}
}

// TestLinearSkip is scenario S1: a second run over the same specs and
// store must skip both tasks, yet still return the stored results.
func TestLinearSkip(t *testing.T) {
	log := newCallLog()
	st := store.NewMemStore()

	build := func() (*fluidml.Flow, error) {
		a := fluidml.NewTaskSpec("A", loggedCtor(log, nil)).
			WithConfig(fluidml.Config{"a": 1}).WithPublishes("a")
		b := fluidml.NewTaskSpec("B", loggedCtor(log, nil)).
			WithConfig(fluidml.Config{"b": 1}).WithPublishes("b").Requires(a)
		return fluidml.NewFlow([]*fluidml.TaskSpec{a, b})
	}

	flow1, err := build()
	if err != nil {
		t.Fatalf("build flow 1: %v", err)
	}
	if _, err := flow1.Run(context.Background(), oneResource(), st, nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if got := log.count("A"); got != 1 {
		t.Fatalf("A should run once on first pass, ran %d times", got)
	}
	if got := log.count("B"); got != 1 {
		t.Fatalf("B should run once on first pass, ran %d times", got)
	}

	flow2, err := build()
	if err != nil {
		t.Fatalf("build flow 2: %v", err)
	}
	results, err := flow2.Run(context.Background(), oneResource(), st, nil)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := log.count("A"); got != 1 {
		t.Fatalf("A should still have run exactly once after a skip-only second pass, ran %d times", got)
	}
	if got := log.count("B"); got != 1 {
		t.Fatalf("B should still have run exactly once after a skip-only second pass, ran %d times", got)
	}

	bResult, ok := results["B"].(map[string]any)
	if !ok {
		t.Fatalf("B result not a map: %T", results["B"])
	}
	if bResult["b"] != float64(1) && bResult["b"] != 1 {
		t.Fatalf("unexpected B result: %+v", bResult)
	}
}

// TestForceCascade is scenario S5: forcing "B+" reruns B and C but skips A.
func TestForceCascade(t *testing.T) {
	log := newCallLog()
	st := store.NewMemStore()

	build := func() (*fluidml.Flow, error) {
		a := fluidml.NewTaskSpec("A", loggedCtor(log, nil)).
			WithConfig(fluidml.Config{"a": 1}).WithPublishes("a")
		b := fluidml.NewTaskSpec("B", loggedCtor(log, nil)).
			WithConfig(fluidml.Config{"b": 1}).WithPublishes("b").Requires(a)
		c := fluidml.NewTaskSpec("C", loggedCtor(log, nil)).
			WithConfig(fluidml.Config{"c": 1}).WithPublishes("c").Requires(b)
		return fluidml.NewFlow([]*fluidml.TaskSpec{a, b, c})
	}

	flow1, err := build()
	if err != nil {
		t.Fatalf("build flow 1: %v", err)
	}
	if _, err := flow1.Run(context.Background(), oneResource(), st, nil); err != nil {
		t.Fatalf("seed run: %v", err)
	}

	flow2, err := build()
	if err != nil {
		t.Fatalf("build flow 2: %v", err)
	}
	if _, err := flow2.Run(context.Background(), oneResource(), st, "B+"); err != nil {
		t.Fatalf("forced run: %v", err)
	}

	if got := log.count("A"); got != 1 {
		t.Fatalf("A should not rerun under force=B+, ran %d times total", got)
	}
	if got := log.count("B"); got != 2 {
		t.Fatalf("B should rerun under force=B+, ran %d times total", got)
	}
	if got := log.count("C"); got != 2 {
		t.Fatalf("C should rerun via cascade under force=B+, ran %d times total", got)
	}
}

// TestFailureCancelsSuccessors is scenario S6: A fails, so B and C
// (both depending on A) never start and Flow.Run surfaces the failure.
func TestFailureCancelsSuccessors(t *testing.T) {
	log := newCallLog()
	st := store.NewMemStore()

	a := fluidml.NewTaskSpec("A", loggedCtor(log, failingCtorErr))
	b := fluidml.NewTaskSpec("B", loggedCtor(log, nil)).Requires(a)
	c := fluidml.NewTaskSpec("C", loggedCtor(log, nil)).Requires(a)

	flow, err := fluidml.NewFlow([]*fluidml.TaskSpec{a, b, c})
	if err != nil {
		t.Fatalf("NewFlow: %v", err)
	}

	_, err = flow.Run(context.Background(), oneResource(), st, nil)
	if err == nil {
		t.Fatal("want an error from the failed task, got nil")
	}
	var fe *fluidml.Error
	if !errors.As(err, &fe) {
		t.Fatalf("want *fluidml.Error, got %T: %v", err, err)
	}
	if fe.TaskName != "A" {
		t.Fatalf("want failure attributed to A, got %q", fe.TaskName)
	}
	if got := log.count("B"); got != 0 {
		t.Fatalf("B must never run after A fails, ran %d times", got)
	}
	if got := log.count("C"); got != 0 {
		t.Fatalf("C must never run after A fails, ran %d times", got)
	}
}

// TestReduceRunReceivesAggregatedGroup is scenario S4: Select.Run must
// observe a Reduced group with one entry per Train sibling.
func TestReduceRunReceivesAggregatedGroup(t *testing.T) {
	st := store.NewMemStore()

	var observedLen int
	selectCtor := func(fluidml.Kwargs) (fluidml.Task, error) {
		return reduceObserverTask{observed: &observedLen}, nil
	}

	data := fluidml.NewTaskSpec("Data", newRecordingTask).WithPublishes("n")
	train := fluidml.NewTaskSpec("Train", newRecordingTask).
		WithConfig(fluidml.Config{"lr": []any{0.1, 0.01}}).
		WithExpand(fluidml.ExpandProduct).
		WithPublishes("score").
		Requires(data)
	sel := fluidml.NewTaskSpec("Select", selectCtor).WithReduce().Requires(train)

	flow, err := fluidml.NewFlow([]*fluidml.TaskSpec{data, train, sel})
	if err != nil {
		t.Fatalf("NewFlow: %v", err)
	}
	if _, err := flow.Run(context.Background(), oneResource(), st, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if observedLen != 2 {
		t.Fatalf("Select.Run should observe 2 reduced siblings, observed %d", observedLen)
	}
}

type reduceObserverTask struct{ observed *int }

func (r reduceObserverTask) Run(_ context.Context, rt *fluidml.Runtime) error {
	*r.observed = len(rt.Reduced())
	return nil
}

// storeContextTask records whatever rt.StoreContext() hands back so
// the test can assert the handle is non-nil and matches the store's own
// notion of that task's identity.
type storeContextTask struct{ observed *any }

func (r storeContextTask) Run(_ context.Context, rt *fluidml.Runtime) error {
	handle, err := rt.StoreContext()
	if err != nil {
		return err
	}
	*r.observed = handle
	return nil
}

// TestRuntimeStoreContext verifies a task can reach the store-specific
// handle for its own (name, unique config), per the Results Store
// contract's get_store_context operation.
func TestRuntimeStoreContext(t *testing.T) {
	st := store.NewMemStore()

	var observed any
	ctor := func(fluidml.Kwargs) (fluidml.Task, error) {
		return storeContextTask{observed: &observed}, nil
	}
	a := fluidml.NewTaskSpec("A", ctor).WithConfig(fluidml.Config{"x": 1})

	flow, err := fluidml.NewFlow([]*fluidml.TaskSpec{a})
	if err != nil {
		t.Fatalf("NewFlow: %v", err)
	}
	if _, err := flow.Run(context.Background(), oneResource(), st, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if observed == nil {
		t.Fatal("want a non-nil store context handle")
	}

	want, err := st.GetContext(context.Background(), "A", fluidml.UniqueConfig{"A": fluidml.Kwargs{"x": 1}})
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if observed != want {
		t.Fatalf("want the task's own handle %v to match the store's handle %v for its identity", observed, want)
	}
}

// TestRequiresArtifactsCaughtBeforeRun verifies that a task declaring
// WithRequiresArtifacts fails at dispatch, before its Run is ever
// invoked, when the named artifact was never published by any
// predecessor.
func TestRequiresArtifactsCaughtBeforeRun(t *testing.T) {
	log := newCallLog()
	st := store.NewMemStore()

	a := fluidml.NewTaskSpec("A", loggedCtor(log, nil)).
		WithConfig(fluidml.Config{"a": 1}).WithPublishes("a")
	b := fluidml.NewTaskSpec("B", loggedCtor(log, nil)).
		WithRequiresArtifacts("nope").Requires(a)

	flow, err := fluidml.NewFlow([]*fluidml.TaskSpec{a, b})
	if err != nil {
		t.Fatalf("NewFlow: %v", err)
	}

	_, err = flow.Run(context.Background(), oneResource(), st, nil)
	if !errors.Is(err, fluidml.ErrMissingPredecessorArtifact) {
		t.Fatalf("want ErrMissingPredecessorArtifact, got %v", err)
	}
	if got := log.count("B"); got != 0 {
		t.Fatalf("B.Run must never be invoked when a required artifact is missing, ran %d times", got)
	}
}

// TestRequiresArtifactsSatisfiedRuns verifies that a declared requirement
// satisfied by a predecessor's published artifact lets the task run
// normally.
func TestRequiresArtifactsSatisfiedRuns(t *testing.T) {
	log := newCallLog()
	st := store.NewMemStore()

	a := fluidml.NewTaskSpec("A", loggedCtor(log, nil)).
		WithConfig(fluidml.Config{"a": 1}).WithPublishes("a")
	b := fluidml.NewTaskSpec("B", loggedCtor(log, nil)).
		WithRequiresArtifacts("a").Requires(a)

	flow, err := fluidml.NewFlow([]*fluidml.TaskSpec{a, b})
	if err != nil {
		t.Fatalf("NewFlow: %v", err)
	}

	if _, err := flow.Run(context.Background(), oneResource(), st, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := log.count("B"); got != 1 {
		t.Fatalf("want B to run once, ran %d times", got)
	}
}

// TestDuplicatePredecessorKeyIsFatal verifies that two predecessors
// publishing the same artifact name surface ErrDuplicatePredecessorKey
// rather than silently picking one.
func TestDuplicatePredecessorKeyIsFatal(t *testing.T) {
	st := store.NewMemStore()

	left := fluidml.NewTaskSpec("Left", newRecordingTask).
		WithConfig(fluidml.Config{"shared": "left"}).WithPublishes("shared")
	right := fluidml.NewTaskSpec("Right", newRecordingTask).
		WithConfig(fluidml.Config{"shared": "right"}).WithPublishes("shared")
	merge := fluidml.NewTaskSpec("Merge", newRecordingTask).Requires(left, right)

	flow, err := fluidml.NewFlow([]*fluidml.TaskSpec{left, right, merge})
	if err != nil {
		t.Fatalf("NewFlow: %v", err)
	}

	_, err = flow.Run(context.Background(), oneResource(), st, nil)
	if !errors.Is(err, fluidml.ErrDuplicatePredecessorKey) {
		t.Fatalf("want ErrDuplicatePredecessorKey, got %v", err)
	}
}
