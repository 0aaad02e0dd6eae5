package fluidml

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fluidml-go/fluidml/emit"
	"github.com/fluidml-go/fluidml/store"
)

const defaultQueueDepth = 1024

// Option configures a Flow at construction time. Options are applied in
// the order given to NewFlow, so a later option overrides an earlier one.
type Option func(*Flow) error

// WithQueueDepth sets the capacity of the swarm's internal ready
// channel. Default 1024. The ready heap workers pull from is unbounded,
// so this setting does not limit how many tasks can be waiting.
func WithQueueDepth(n int) Option {
	return func(f *Flow) error {
		if n <= 0 {
			return fmt.Errorf("fluidml: queue depth must be positive, got %d", n)
		}
		f.queueDepth = n
		return nil
	}
}

// WithRefreshEvery sets how often the swarm emits an observational
// snapshot event (queue depth, active worker count) while a run is in
// progress. Zero (the default) disables periodic snapshots.
func WithRefreshEvery(d time.Duration) Option {
	return func(f *Flow) error {
		f.refreshEvery = d
		return nil
	}
}

// WithEmitter sets the Emitter the swarm reports task lifecycle events
// to. Default is emit.NewNullEmitter().
func WithEmitter(e emit.Emitter) Option {
	return func(f *Flow) error {
		if e == nil {
			return fmt.Errorf("fluidml: emitter must not be nil")
		}
		f.emitter = e
		return nil
	}
}

// WithMetrics attaches a Metrics recorder. Default is a disabled
// Metrics whose methods are no-ops.
func WithMetrics(m *Metrics) Option {
	return func(f *Flow) error {
		f.metrics = m
		return nil
	}
}

// WithRunID overrides the flow's run identifier, used to namespace
// emitted events and metrics. Default is a freshly generated UUID.
func WithRunID(id string) Option {
	return func(f *Flow) error {
		if id == "" {
			return fmt.Errorf("fluidml: run id must not be empty")
		}
		f.runID = id
		return nil
	}
}

// Flow is a fully expanded task graph ready to execute. Build one with
// NewFlow from a set of TaskSpecs wired together with Requires.
type Flow struct {
	specs    []*TaskSpec
	byName   map[string]*TaskSpec
	expanded []*ExpandedTask

	queueDepth   int
	refreshEvery time.Duration
	emitter      emit.Emitter
	metrics      *Metrics
	runID        string
}

// NewFlow validates that specs form a DAG, expands every spec into its
// concrete ExpandedTask instances, and applies opts.
func NewFlow(specs []*TaskSpec, opts ...Option) (*Flow, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("fluidml: NewFlow requires at least one task spec")
	}

	byName := make(map[string]*TaskSpec, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("fluidml: task spec missing a Name")
		}
		if _, dup := byName[s.Name]; dup {
			return nil, fmt.Errorf("fluidml: duplicate task spec name %q", s.Name)
		}
		byName[s.Name] = s
	}

	expanded, err := Expand(specs)
	if err != nil {
		return nil, err
	}

	f := &Flow{
		specs:        specs,
		byName:       byName,
		expanded:     expanded,
		queueDepth:   defaultQueueDepth,
		emitter:      emit.NewNullEmitter(),
		metrics:      &Metrics{},
		runID:        uuid.NewString(),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// RunID returns the flow's run identifier.
func (f *Flow) RunID() string { return f.runID }

// Tasks returns every expanded task in the flow, in deterministic id
// order.
func (f *Flow) Tasks() []*ExpandedTask { return f.expanded }

// resolveForce parses force (nil, "all", "name", "name+", or a []string
// of such tokens) into the set of TaskSpecs that must rerun
// unconditionally, and marks Force on every matching ExpandedTask. A
// bare name forces only that spec's own instances; a "name+" suffix
// cascades the force to every transitive successor spec as well.
func (f *Flow) resolveForce(force any) error {
	tokens, err := forceTokens(force)
	if err != nil {
		return err
	}

	forceAll := false
	forcedOnly := make(map[string]bool)
	cascadeRoots := make(map[string]bool)
	for _, tok := range tokens {
		switch {
		case tok == "all":
			forceAll = true
		case strings.HasSuffix(tok, "+"):
			name := strings.TrimSuffix(tok, "+")
			if _, ok := f.byName[name]; !ok {
				return fmt.Errorf("fluidml: force references unknown task %q", name)
			}
			cascadeRoots[name] = true
		default:
			if _, ok := f.byName[tok]; !ok {
				return fmt.Errorf("fluidml: force references unknown task %q", tok)
			}
			forcedOnly[tok] = true
		}
	}

	forcedSpecs := make(map[*TaskSpec]bool, len(f.specs))
	if forceAll {
		for _, s := range f.specs {
			forcedSpecs[s] = true
		}
	} else {
		var queue []*TaskSpec
		for name := range cascadeRoots {
			queue = append(queue, f.byName[name])
		}
		visited := make(map[*TaskSpec]bool)
		for len(queue) > 0 {
			s := queue[0]
			queue = queue[1:]
			if visited[s] {
				continue
			}
			visited[s] = true
			forcedSpecs[s] = true
			queue = append(queue, s.Successors()...)
		}
		for name := range forcedOnly {
			forcedSpecs[f.byName[name]] = true
		}
	}

	for _, t := range f.expanded {
		t.Force = forcedSpecs[t.Spec]
	}
	return nil
}

func forceTokens(force any) ([]string, error) {
	switch v := force.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	default:
		return nil, fmt.Errorf("fluidml: force must be nil, a string, or a []string, got %T", force)
	}
}

// SpecResult is one expanded instance's output within a multi-instance
// spec's aggregated result: the instance's UniqueConfig and its published
// results keyed by artifact name. Run returns a []SpecResult for a spec
// that expanded to more than one instance, and the bare results map for
// a spec that expanded to a single instance.
type SpecResult struct {
	Config UniqueConfig
	Result map[string]any
}

// Run executes the flow to completion: dispatches every expanded task
// through the swarm (honoring force/skip decisions against st), then
// aggregates each spec's published results. resources is the pool of
// execution resources workers bind to; len(resources) bounds the
// concurrency of the run.
func (f *Flow) Run(ctx context.Context, resources []Resource, st store.Store, force any) (map[string]any, error) {
	if err := f.resolveForce(force); err != nil {
		return nil, err
	}

	sw := newSwarm(f, resources, st)
	if err := sw.run(ctx); err != nil {
		return nil, err
	}

	out := make(map[string]any, len(f.specs))
	for _, spec := range f.specs {
		var instances []*ExpandedTask
		for _, t := range f.expanded {
			if t.Spec == spec {
				instances = append(instances, t)
			}
		}
		if len(instances) == 0 {
			continue
		}

		if len(instances) == 1 {
			results, err := st.GetResults(ctx, spec.Name, instances[0].UniqueConfig, spec.Publishes)
			if err != nil {
				return nil, newError(ErrStoreUnavailable, "store_unavailable", "load results").
					withTask(spec.Name, instances[0].UniqueConfig).withCause(err)
			}
			out[spec.Name] = results
			continue
		}

		var specResults []SpecResult
		for _, t := range instances {
			results, err := st.GetResults(ctx, spec.Name, t.UniqueConfig, spec.Publishes)
			if err != nil {
				return nil, newError(ErrStoreUnavailable, "store_unavailable", "load results").
					withTask(spec.Name, t.UniqueConfig).withCause(err)
			}
			specResults = append(specResults, SpecResult{Config: t.UniqueConfig, Result: results})
		}
		out[spec.Name] = specResults
	}
	return out, nil
}
