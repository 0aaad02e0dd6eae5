package fluidml_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/fluidml-go/fluidml"
)

// recordingTask is a fluidml.Task used across the package's tests: it
// publishes every kwarg under its own name (so successors can assert on
// what a predecessor produced) and records, in a shared call log, that
// it actually ran — letting tests assert a task was invoked exactly
// once (or not at all, for skip/cancellation scenarios).
type recordingTask struct {
	kwargs fluidml.Kwargs
	log    *callLog
	fail   error
}

func newRecordingTask(kwargs fluidml.Kwargs) (fluidml.Task, error) {
	return recordingTask{kwargs: kwargs}, nil
}

func (r recordingTask) Run(_ context.Context, rt *fluidml.Runtime) error {
	if r.log != nil {
		r.log.record(rt.Name())
	}
	if r.fail != nil {
		return r.fail
	}
	for k, v := range r.kwargs {
		if err := rt.Save(v, k); err != nil {
			return err
		}
	}
	return nil
}

// callLog counts task invocations by name across one or more Flow.Run
// calls, for asserting "ran exactly once" / "never ran" properties.
type callLog struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCallLog() *callLog { return &callLog{counts: make(map[string]int)} }

func (c *callLog) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name]++
}

func (c *callLog) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

// loggedCtor builds a TaskConstructor that records its invocation under
// name in log and, on Run, publishes kwargs and optionally fails.
func loggedCtor(log *callLog, fail error) fluidml.TaskConstructor {
	return func(kwargs fluidml.Kwargs) (fluidml.Task, error) {
		return recordingTask{kwargs: kwargs, log: log, fail: fail}, nil
	}
}

// failingCtorErr is a sentinel error a recordingTask's Run returns when
// constructed with a non-nil fail argument.
var failingCtorErr = fmt.Errorf("task failed deliberately")
