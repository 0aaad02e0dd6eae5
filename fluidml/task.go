package fluidml

import (
	"context"
	"fmt"

	"github.com/fluidml-go/fluidml/store"
)

// Task is the behavior a TaskConstructor produces: one unit of work
// bound to a concrete Runtime. Run should use rt to read predecessor
// results and its own resource, and rt.Save to publish artifacts; it
// must not retain rt past return.
type Task interface {
	Run(ctx context.Context, rt *Runtime) error
}

// ExpandedTask is one concrete node produced by expansion from a
// TaskSpec: a specific kwargs combination (and, for reduce nodes, a
// specific predecessor group) with its own UniqueConfig and id.
type ExpandedTask struct {
	Node

	// ID is assigned during expansion in deterministic topological,
	// then-FIFO order; it is the tie-breaker the swarm's ready queue
	// sorts on, so equal runs of a flow always dispatch in the same
	// order.
	ID int

	Name         string
	Spec         *TaskSpec
	Kwargs       Kwargs
	UniqueConfig UniqueConfig
	Reduce       bool
	Publishes    []string

	// ReduceAxis names the predecessor spec this task reduces over
	// (empty for non-reduce tasks). A predecessor whose Name equals
	// ReduceAxis is packed into Reduced, not into the ordinary
	// Result/FlatResult view.
	ReduceAxis string

	// Reduced holds, for Reduce tasks only, the predecessor group this
	// instance aggregates: one entry per sibling expansion of the
	// reduced predecessor, each carrying that sibling's own
	// UniqueConfig and (once it has run) its published results.
	Reduced []*ReducedResult

	// Force is set by the force-cascade resolution pass before the
	// swarm starts; true means "ignore any complete prior run, execute
	// unconditionally".
	Force bool

	construct TaskConstructor
}

// Predecessors returns the expanded predecessor tasks feeding this one.
// For a Reduce task this is the members of its reduced group (also
// exposed via Reduced) followed by its broadcast predecessors.
func (t *ExpandedTask) Predecessors() []*ExpandedTask {
	raw := t.Node.predecessorsAny()
	out := make([]*ExpandedTask, len(raw))
	for i, p := range raw {
		out[i] = p.(*ExpandedTask)
	}
	return out
}

// Successors returns the expanded tasks that directly depend on this one.
func (t *ExpandedTask) Successors() []*ExpandedTask {
	raw := t.Node.successorsAny()
	out := make([]*ExpandedTask, len(raw))
	for i, p := range raw {
		out[i] = p.(*ExpandedTask)
	}
	return out
}

// ReducedResult is one member of a Reduce task's predecessor group: the
// sibling's UniqueConfig alongside its published results, keyed by
// artifact name.
type ReducedResult struct {
	Config  UniqueConfig
	Results map[string]any
}

// Runtime is the handle a Task.Run receives: its bound resource, its
// predecessors' published results (packed per the spec's reduce/non-
// reduce rules), and Save/Load access to the results store. Runtime is
// constructed fresh per dispatch and must not outlive the Run call it
// was built for.
type Runtime struct {
	ctx      context.Context
	task     *ExpandedTask
	resource Resource
	st       store.Store

	// results holds predecessor artifacts for a non-reduce task, keyed
	// by "<predecessor task name>.<artifact name>" to avoid collisions
	// when two predecessors publish artifacts with the same name.
	results map[string]any

	// flat holds the same artifacts keyed only by artifact name, for
	// tasks that don't care which predecessor published a value. It is
	// built at Runtime construction time; if two predecessors published
	// the same artifact name, Flat construction fails fast rather than
	// silently picking one.
	flat map[string]any
}

func newRuntime(ctx context.Context, task *ExpandedTask, resource Resource, st store.Store, results, flat map[string]any) *Runtime {
	return &Runtime{ctx: ctx, task: task, resource: resource, st: st, results: results, flat: flat}
}

// Context returns the execution context the swarm dispatched this task
// with; Run should pass it to any blocking call it makes.
func (rt *Runtime) Context() context.Context { return rt.ctx }

// Resource returns the worker resource this task instance is bound to.
func (rt *Runtime) Resource() Resource { return rt.resource }

// Name returns the originating TaskSpec's name.
func (rt *Runtime) Name() string { return rt.task.Name }

// UniqueConfig returns this task instance's canonical unique config.
func (rt *Runtime) UniqueConfig() UniqueConfig { return rt.task.UniqueConfig }

// Kwargs returns the concrete kwargs this instance was constructed from.
func (rt *Runtime) Kwargs() Kwargs { return rt.task.Kwargs }

// Result returns the artifact named name published by predecessor
// taskName, or (nil, false) if it was never published. On a Reduce task
// it covers only the broadcast predecessors; the reduced group is
// reached through Reduced.
func (rt *Runtime) Result(taskName, name string) (any, bool) {
	v, ok := rt.results[taskName+"."+name]
	return v, ok
}

// Reduced returns the predecessor group this Reduce task instance
// aggregates. It is empty for non-reduce tasks.
func (rt *Runtime) Reduced() []*ReducedResult {
	return rt.task.Reduced
}

// FlatResult returns the artifact named name published by any direct
// predecessor, without needing to know which one. Prefer Result when
// two predecessors might plausibly publish the same artifact name; the
// swarm refuses to dispatch a task whose predecessors collide on a flat
// key (see ErrDuplicatePredecessorKey), so a successful dispatch
// guarantees FlatResult is unambiguous.
func (rt *Runtime) FlatResult(name string) (any, bool) {
	v, ok := rt.flat[name]
	return v, ok
}

// RequireResult is Result, but returns ErrMissingPredecessorArtifact
// instead of found=false when the artifact was never published. Use it
// for artifacts a task cannot proceed without.
func (rt *Runtime) RequireResult(taskName, name string) (any, error) {
	v, ok := rt.Result(taskName, name)
	if !ok {
		return nil, newError(ErrMissingPredecessorArtifact, "missing_predecessor_artifact",
			fmt.Sprintf("predecessor %q never published %q", taskName, name)).withTask(rt.task.Name, rt.task.UniqueConfig)
	}
	return v, nil
}

// Save persists obj under name using the "json" type handler,
// namespaced under this task's name and unique config.
func (rt *Runtime) Save(obj any, name string) error {
	return rt.SaveAs(obj, name, "json")
}

// SaveAs persists obj under name using the type handler registered for
// type_.
func (rt *Runtime) SaveAs(obj any, name, type_ string) error {
	if rt.st == nil {
		return fmt.Errorf("fluidml: task %q has no results store configured", rt.task.Name)
	}
	return rt.st.Save(rt.ctx, obj, name, type_, rt.task.Name, rt.task.UniqueConfig)
}

// Load retrieves a previously saved artifact published by taskName
// under taskUniqueConfig, typically used to reach further back than an
// immediate predecessor's packed results.
func (rt *Runtime) Load(name, taskName string, taskUniqueConfig UniqueConfig) (any, bool, error) {
	if rt.st == nil {
		return nil, false, fmt.Errorf("fluidml: task %q has no results store configured", rt.task.Name)
	}
	return rt.st.Load(rt.ctx, name, taskName, taskUniqueConfig)
}

// StoreContext returns the store-specific handle for this task's own
// (name, unique config), e.g. a run directory path for LocalFileStore
// or a join key for sqlstore. Use it when a task needs to reach storage
// directly rather than through Save/Load (get_store_context in the
// Results Store contract).
func (rt *Runtime) StoreContext() (any, error) {
	if rt.st == nil {
		return nil, fmt.Errorf("fluidml: task %q has no results store configured", rt.task.Name)
	}
	return rt.st.GetContext(rt.ctx, rt.task.Name, rt.task.UniqueConfig)
}
