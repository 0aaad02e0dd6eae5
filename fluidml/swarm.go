package fluidml

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fluidml-go/fluidml/emit"
	"github.com/fluidml-go/fluidml/store"
)

// taskStatus tracks one expanded task's lifecycle within a single swarm run.
type taskStatus int

const (
	statusPending taskStatus = iota
	statusReady
	statusRunning
	statusDone
	statusSkipped
	statusFailed
)

// taskHeap orders ready tasks by ascending ID so that, for a given
// graph and force selection, two runs always dispatch ties (multiple
// tasks becoming ready at once) in the same order.
type taskHeap []*ExpandedTask

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].ID < h[j].ID }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)         { *h = append(*h, x.(*ExpandedTask)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// swarm drives one Flow's expanded tasks to completion: a bounded
// worker pool, one per resource, pulling from a ready heap ordered by
// ascending task id. The heap is unbounded; readyCh (sized by
// queueDepth) receives a copy of each dispatched task while it has room
// and is not read by the workers, so queueDepth does not limit how many
// tasks can be waiting.
type swarm struct {
	flow      *Flow
	resources []Resource
	st        store.Store

	mu       sync.Mutex
	status   map[*ExpandedTask]taskStatus
	pending  map[*ExpandedTask]int // unfinished direct predecessor count
	readyH   taskHeap
	readyCh  chan *ExpandedTask
	remaining int
	cancelled bool
	firstErr  error
}

func newSwarm(f *Flow, resources []Resource, st store.Store) *swarm {
	sw := &swarm{
		flow:      f,
		resources: resources,
		st:        st,
		status:    make(map[*ExpandedTask]taskStatus, len(f.expanded)),
		pending:   make(map[*ExpandedTask]int, len(f.expanded)),
		readyCh:   make(chan *ExpandedTask, f.queueDepth),
		remaining: len(f.expanded),
	}
	for _, t := range f.expanded {
		sw.status[t] = statusPending
		sw.pending[t] = len(t.Predecessors())
	}
	return sw
}

// run dispatches every expanded task to completion (or to the first
// fatal failure), honoring force/skip decisions and the
// skip-on-cancellation rule: once a fatal error has occurred, tasks
// that have not yet started are marked failed rather than dispatched,
// while tasks already running are allowed to finish.
func (sw *swarm) run(ctx context.Context) error {
	if len(sw.resources) == 0 {
		return fmt.Errorf("fluidml: Run requires at least one resource")
	}

	sw.mu.Lock()
	for _, t := range sw.flow.expanded {
		if sw.pending[t] == 0 {
			sw.enqueueLocked(t)
		}
	}
	sw.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for i := range sw.resources {
		resource := sw.resources[i]
		g.Go(func() error {
			return sw.workerLoop(gctx, resource)
		})
	}

	if sw.flow.refreshEvery > 0 {
		stop := make(chan struct{})
		g.Go(func() error {
			sw.refreshLoop(gctx, stop)
			return nil
		})
		defer close(stop)
	}

	err := g.Wait()
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.firstErr != nil {
		return sw.firstErr
	}
	return err
}

func (sw *swarm) refreshLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(sw.flow.refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			sw.mu.Lock()
			depth := len(sw.readyH)
			running := 0
			for _, st := range sw.status {
				if st == statusRunning {
					running++
				}
			}
			sw.mu.Unlock()
			sw.flow.metrics.setQueueDepth(depth)
			sw.flow.metrics.setActiveWorkers(running)
			sw.flow.emitter.Emit(emit.Event{
				RunID: sw.flow.runID,
				Msg:   "swarm_snapshot",
				Meta:  map[string]any{"queue_depth": depth, "active_workers": running},
			})
		}
	}
}

// enqueueLocked marks t ready and pushes it onto the heap/channel pair.
// Caller must hold sw.mu.
func (sw *swarm) enqueueLocked(t *ExpandedTask) {
	sw.status[t] = statusReady
	heap.Push(&sw.readyH, t)
}

// popNextLocked pops the lowest-id ready task off the heap. Caller must
// hold sw.mu and have verified len(sw.readyH) > 0.
func (sw *swarm) popNextLocked() *ExpandedTask {
	return heap.Pop(&sw.readyH).(*ExpandedTask)
}

func (sw *swarm) workerLoop(ctx context.Context, resource Resource) error {
	for {
		task, ok := sw.nextTask(ctx)
		if !ok {
			return nil
		}
		if err := sw.dispatch(ctx, task, resource); err != nil {
			return err
		}
	}
}

// nextTask blocks until a ready task is available, the run has nothing
// left to do, or ctx is done. The second return is false when the
// worker should stop (drained or cancelled with nothing left to drain).
func (sw *swarm) nextTask(ctx context.Context) (*ExpandedTask, bool) {
	for {
		sw.mu.Lock()
		if sw.remaining == 0 {
			sw.mu.Unlock()
			return nil, false
		}
		if sw.cancelled {
			// A fatal error has occurred: tasks still waiting in the
			// ready heap terminate as failed instead of being dispatched.
			for len(sw.readyH) > 0 {
				t := sw.popNextLocked()
				sw.status[t] = statusFailed
				sw.remaining--
			}
			sw.mu.Unlock()
			return nil, false
		}
		if len(sw.readyH) > 0 {
			t := sw.popNextLocked()
			sw.status[t] = statusRunning
			sw.mu.Unlock()
			select {
			case sw.readyCh <- t:
			default:
			}
			return t, true
		}
		sw.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(time.Millisecond):
			// Poll rather than block indefinitely on a channel, since
			// readiness is decided under sw.mu by whichever worker just
			// finished a predecessor, not by a producer goroutine.
		}
	}
}

// dispatch runs the skip/force/run decision for task, executes it if
// required, and propagates completion to its successors. It returns a
// non-nil error only when the task's failure should abort the run
// (every task failure is fatal, per the swarm's cancel-on-error model);
// the caller (workerLoop) treats a non-nil return as "stop taking new
// work", not as "tear down what's already running".
func (sw *swarm) dispatch(ctx context.Context, task *ExpandedTask, resource Resource) error {
	spec := task.Spec
	runID := sw.flow.runID

	sw.flow.emitter.Emit(emit.Event{RunID: runID, TaskName: task.Name, TaskID: task.ID, Msg: "task_ready"})

	if task.Force {
		sw.flow.metrics.incForceCascade(runID, task.Name)
		sw.flow.emitter.Emit(emit.Event{RunID: runID, TaskName: task.Name, TaskID: task.ID, Msg: "force_cascade"})
		_ = sw.st.DeleteRun(ctx, task.Name, task.UniqueConfig)
	} else if sw.st.HasCompleteRun(ctx, task.Name, task.UniqueConfig, spec.Publishes) {
		sw.flow.metrics.incSkipped(runID, task.Name)
		sw.flow.emitter.Emit(emit.Event{RunID: runID, TaskName: task.Name, TaskID: task.ID, Msg: "task_skipped"})
		sw.finish(task, statusSkipped, nil)
		return nil
	}

	rt, err := sw.buildRuntime(ctx, task, resource)
	if err != nil {
		return sw.fail(runID, task, err)
	}

	instance, err := task.construct(task.Kwargs)
	if err != nil {
		return sw.fail(runID, task, newError(ErrTaskFailed, "task_failed", "construct task").
			withTask(task.Name, task.UniqueConfig).withCause(err))
	}

	sw.flow.emitter.Emit(emit.Event{RunID: runID, TaskName: task.Name, TaskID: task.ID, Msg: "task_started",
		Meta: map[string]any{"resource": resource.Label()}})
	start := time.Now()
	runErr := instance.Run(ctx, rt)
	elapsed := time.Since(start)

	if runErr != nil {
		sw.flow.metrics.observeLatency(runID, task.Name, elapsed, "error")
		return sw.fail(runID, task, newError(ErrTaskFailed, "task_failed", "task run").
			withTask(task.Name, task.UniqueConfig).withCause(runErr))
	}

	sw.flow.metrics.observeLatency(runID, task.Name, elapsed, "success")
	sw.flow.metrics.incRun(runID, task.Name)
	sw.flow.emitter.Emit(emit.Event{RunID: runID, TaskName: task.Name, TaskID: task.ID, Msg: "task_done",
		Meta: map[string]any{"duration_ms": elapsed.Milliseconds()}})
	sw.finish(task, statusDone, nil)
	return nil
}

func (sw *swarm) fail(runID string, task *ExpandedTask, err error) error {
	sw.flow.metrics.incFailed(runID, task.Name)
	sw.flow.emitter.Emit(emit.Event{RunID: runID, TaskName: task.Name, TaskID: task.ID, Msg: "task_failed",
		Meta: map[string]any{"error": err.Error()}})

	sw.mu.Lock()
	if sw.firstErr == nil {
		sw.firstErr = err
	}
	sw.cancelled = true
	sw.mu.Unlock()

	sw.finish(task, statusFailed, err)
	return err
}

// finish records task's terminal status, decrements the run's
// remaining counter, and propagates readiness (or cascaded failure) to
// its successors.
func (sw *swarm) finish(task *ExpandedTask, status taskStatus, cause error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.status[task] = status
	sw.remaining--

	for _, succ := range task.Successors() {
		if sw.status[succ] != statusPending {
			continue
		}
		if status == statusFailed || sw.cancelled {
			// A predecessor failed, or the run was already cancelled by
			// an unrelated branch: this successor can never legitimately
			// run, so it terminates as failed without dispatch.
			sw.status[succ] = statusFailed
			sw.remaining--
			sw.propagateFailureLocked(succ)
			continue
		}
		sw.pending[succ]--
		if sw.pending[succ] == 0 {
			sw.enqueueLocked(succ)
		}
	}
}

// propagateFailureLocked marks every pending descendant of t as failed
// without running it. Caller must hold sw.mu.
func (sw *swarm) propagateFailureLocked(t *ExpandedTask) {
	for _, succ := range t.Successors() {
		if sw.status[succ] != statusPending {
			continue
		}
		sw.status[succ] = statusFailed
		sw.remaining--
		sw.propagateFailureLocked(succ)
	}
}

// buildRuntime loads every direct predecessor's published results (and,
// for a Reduce task, every group member's results) and packs them into
// a Runtime. It fails with ErrDuplicatePredecessorKey if two
// predecessors publish an artifact under the same name, since
// Runtime.FlatResult could not disambiguate them.
func (sw *swarm) buildRuntime(ctx context.Context, task *ExpandedTask, resource Resource) (*Runtime, error) {
	namespaced := make(map[string]any)
	flat := make(map[string]any)

	loadInto := func(predName string, uc UniqueConfig, publishes []string) error {
		results, err := sw.st.GetResults(ctx, predName, uc, publishes)
		if err != nil {
			return newError(ErrStoreUnavailable, "store_unavailable", "load predecessor results").
				withTask(task.Name, task.UniqueConfig).withCause(err)
		}
		for name, v := range results {
			namespaced[predName+"."+name] = v
			if _, dup := flat[name]; dup {
				return newError(ErrDuplicatePredecessorKey, "duplicate_predecessor_key",
					fmt.Sprintf("artifact %q published by more than one predecessor", name)).
					withTask(task.Name, task.UniqueConfig)
			}
			flat[name] = v
		}
		return nil
	}

	if task.Reduce {
		for _, member := range task.Reduced {
			results, err := sw.st.GetResults(ctx, task.Predecessors()[0].Name, member.Config, nil)
			if err != nil {
				return nil, newError(ErrStoreUnavailable, "store_unavailable", "load reduce member results").
					withTask(task.Name, task.UniqueConfig).withCause(err)
			}
			member.Results = results
		}
	}

	// Non-reduce predecessors (for a Reduce task these are the
	// "broadcast" predecessors beyond the reduced axis; the axis
	// members themselves are packed via Reduced, not Result/FlatResult).
	for _, p := range task.Predecessors() {
		if task.Reduce && p.Name == task.ReduceAxis {
			continue
		}
		if err := loadInto(p.Name, p.UniqueConfig, p.Publishes); err != nil {
			return nil, err
		}
	}

	// Declared-schema check (spec.md §9 design note, option (b)): a task
	// that names its required predecessor artifacts via
	// TaskSpec.RequiresArtifacts is verified here, before construct/Run
	// ever sees it, rather than discovering a hole in its inputs mid-Run
	// via RequireResult. Meaningless for a Reduce task, whose reduced
	// predecessor group is packed into Reduced instead of flat.
	if !task.Reduce {
		for _, name := range task.Spec.RequiresArtifacts {
			if _, ok := flat[name]; !ok {
				return nil, newError(ErrMissingPredecessorArtifact, "missing_predecessor_artifact",
					fmt.Sprintf("required artifact %q was never published by any predecessor", name)).
					withTask(task.Name, task.UniqueConfig)
			}
		}
	}

	return newRuntime(ctx, task, resource, sw.st, namespaced, flat), nil
}
