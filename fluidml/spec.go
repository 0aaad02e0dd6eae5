package fluidml

// TaskConstructor builds one concrete Task instance from its expanded
// kwargs. It is called lazily by the swarm, once per expanded task that
// is actually going to run (skipped tasks never construct their Task),
// so that expensive setup (model allocation, client handles, ...) is
// paid for only when needed.
//
// Constructing from kwargs here — rather than having Task.Run informed
// by reflection over its own parameter names, as the dynamically typed
// source does — is how FluidML-Go resolves the "dynamic predecessor-to-
// parameter binding" design note for a statically typed rewrite: each
// task parses its own configuration explicitly, so a typo or missing
// field is a compile-time or construction-time error instead of a
// silent runtime no-op.
type TaskConstructor func(kwargs Kwargs) (Task, error)

// TaskSpec is a declarative template for one graph node, prior to
// parameter expansion. Specs are built by the caller, wired together
// with Requires, and handed to NewFlow; they are immutable once
// expansion runs.
type TaskSpec struct {
	Node

	// Name identifies the task and is used as the store namespace. It
	// has no default: NewFlow rejects an empty Name, and it must be
	// unique within a spec graph.
	Name string

	// New constructs one Task instance per expanded kwargs combination.
	New TaskConstructor

	// Config maps parameter name to either a scalar value or, under
	// Expand=ExpandProduct/ExpandZip, a slice of candidate values.
	Config Config

	// Expand selects how Config's list-valued entries combine into
	// concrete kwargs. Zero value is ExpandNone.
	Expand ExpandKind

	// Reduce marks this spec as a fan-in aggregation node: expansion
	// collapses sibling expansions of its predecessor(s) into one
	// instance per equivalence class (see the expansion algorithm).
	Reduce bool

	// Publishes optionally declares the artifact names this task
	// commits. When set, the store uses it to decide whether a prior
	// run is complete enough to skip re-execution.
	Publishes []string

	// RequiresArtifacts optionally declares the predecessor-published
	// artifact names this task's Run cannot proceed without. This is
	// the declared-schema alternative to the source's reflection-over-
	// parameter-names binding (spec.md §9 design note, option (b)): the
	// swarm checks every name here is present in the packed predecessor
	// results at dispatch time, before Run is invoked, raising
	// ErrMissingPredecessorArtifact instead of letting Run silently
	// proceed with a hole in its inputs. Unset (the default) means Run
	// takes full responsibility for checking its own inputs, e.g. via
	// Runtime.RequireResult. Meaningless (and ignored) on a Reduce spec,
	// whose predecessor group arrives via Runtime.Reduced instead.
	RequiresArtifacts []string
}

// NewTaskSpec creates a TaskSpec named name, constructed via ctor.
func NewTaskSpec(name string, ctor TaskConstructor) *TaskSpec {
	return &TaskSpec{Name: name, New: ctor}
}

// WithConfig sets the spec's static configuration and returns the spec
// for chaining.
func (s *TaskSpec) WithConfig(cfg Config) *TaskSpec {
	s.Config = cfg
	return s
}

// WithExpand sets the expansion kind and returns the spec for chaining.
func (s *TaskSpec) WithExpand(kind ExpandKind) *TaskSpec {
	s.Expand = kind
	return s
}

// WithReduce marks the spec as a reduce (fan-in) node and returns the
// spec for chaining.
func (s *TaskSpec) WithReduce() *TaskSpec {
	s.Reduce = true
	return s
}

// WithPublishes declares the artifact names this task commits and
// returns the spec for chaining.
func (s *TaskSpec) WithPublishes(names ...string) *TaskSpec {
	s.Publishes = names
	return s
}

// WithRequiresArtifacts declares the predecessor-published artifact
// names this task's Run cannot proceed without, checked at dispatch
// time before Run is invoked (see RequiresArtifacts). Returns the spec
// for chaining.
func (s *TaskSpec) WithRequiresArtifacts(names ...string) *TaskSpec {
	s.RequiresArtifacts = names
	return s
}

// Requires appends preds to this spec's predecessor list and appends
// this spec to each predecessor's successor list. Duplicate edges are
// idempotent. Returns the spec for chaining.
func (s *TaskSpec) Requires(preds ...*TaskSpec) *TaskSpec {
	for _, p := range preds {
		if p == nil {
			continue
		}
		if s.Node.addPredecessor(p) {
			p.Node.addSuccessor(s)
		}
	}
	return s
}

// Predecessors returns the specs this spec directly depends on.
func (s *TaskSpec) Predecessors() []*TaskSpec {
	raw := s.Node.predecessorsAny()
	out := make([]*TaskSpec, len(raw))
	for i, p := range raw {
		out[i] = p.(*TaskSpec)
	}
	return out
}

// Successors returns the specs that directly depend on this spec.
func (s *TaskSpec) Successors() []*TaskSpec {
	raw := s.Node.successorsAny()
	out := make([]*TaskSpec, len(raw))
	for i, p := range raw {
		out[i] = p.(*TaskSpec)
	}
	return out
}
