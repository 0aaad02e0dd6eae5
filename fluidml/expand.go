package fluidml

import "fmt"

// topoSortSpecs returns specs in an order where every predecessor
// precedes its successors, breaking ties by the specs' position in the
// input slice (Kahn's algorithm with a stable, index-ordered frontier
// so expansion is deterministic across runs of the same graph). It
// returns ErrCycleDetected if the graph is not acyclic.
func topoSortSpecs(specs []*TaskSpec) ([]*TaskSpec, error) {
	index := make(map[*TaskSpec]int, len(specs))
	for i, s := range specs {
		index[s] = i
	}
	indegree := make(map[*TaskSpec]int, len(specs))
	for _, s := range specs {
		indegree[s] = len(s.Predecessors())
	}

	var frontier []*TaskSpec
	for _, s := range specs {
		if indegree[s] == 0 {
			frontier = append(frontier, s)
		}
	}

	var order []*TaskSpec
	for len(frontier) > 0 {
		// Pick the lowest-index ready spec so order is stable regardless
		// of map iteration or caller-supplied ordering quirks.
		best := 0
		for i := 1; i < len(frontier); i++ {
			if index[frontier[i]] < index[frontier[best]] {
				best = i
			}
		}
		next := frontier[best]
		frontier = append(frontier[:best], frontier[best+1:]...)
		order = append(order, next)

		for _, succ := range next.Successors() {
			indegree[succ]--
			if indegree[succ] == 0 {
				frontier = append(frontier, succ)
			}
		}
	}

	if len(order) != len(specs) {
		return nil, newError(ErrCycleDetected, "cycle_detected",
			fmt.Sprintf("spec graph has a cycle: %d of %d specs are reachable from roots", len(order), len(specs)))
	}
	return order, nil
}

// strippedUniqueConfig returns uc with ownName's own contribution
// removed, leaving only the portion its predecessors contributed. This
// is the equivalence key a reduce spec groups its fan-in predecessor's
// instances by: two instances of the same spec whose predecessors
// produced identical configuration belong in the same reduce group.
func strippedUniqueConfig(uc UniqueConfig, ownName string) UniqueConfig {
	out := make(UniqueConfig, len(uc))
	for k, v := range uc {
		if k == ownName {
			continue
		}
		out[k] = v
	}
	return out
}

// expander holds the mutable state threaded through expansion of one
// spec graph: the running id counter and each spec's realized instances.
type expander struct {
	nextID       int
	instances    map[*TaskSpec][]*ExpandedTask
	byUniqueJSON map[*TaskSpec]map[string]*ExpandedTask
}

func newExpander() *expander {
	return &expander{
		instances:    make(map[*TaskSpec][]*ExpandedTask),
		byUniqueJSON: make(map[*TaskSpec]map[string]*ExpandedTask),
	}
}

// Expand realizes every TaskSpec in specs (which must already form a
// DAG reachable from the slice as given) into its concrete
// ExpandedTask instances, wiring expanded-level predecessor/successor
// edges as it goes. It returns the full flattened instance list across
// all specs, in deterministic id order.
func Expand(specs []*TaskSpec) ([]*ExpandedTask, error) {
	order, err := topoSortSpecs(specs)
	if err != nil {
		return nil, err
	}

	ex := newExpander()
	for _, spec := range order {
		var instances []*ExpandedTask
		var err error
		if spec.Reduce {
			instances, err = ex.expandReduceSpec(spec)
		} else {
			instances, err = ex.expandPlainSpec(spec)
		}
		if err != nil {
			return nil, err
		}
		ex.instances[spec] = instances
	}

	var all []*ExpandedTask
	for _, spec := range order {
		all = append(all, ex.instances[spec]...)
	}
	return all, nil
}

// dedupOrCreate returns the existing instance for spec whose unique
// config has the same canonical encoding as uc, if one was already
// created in this expansion pass
// (collapsing expansions that happen to coincide on the same unique
// config into a single task instance), otherwise registers and returns
// a newly allocated one.
func (ex *expander) dedupOrCreate(spec *TaskSpec, uc UniqueConfig, kwargs Kwargs, reduceAxis string, reduced []*ReducedResult) (*ExpandedTask, bool, error) {
	raw, err := CanonicalJSON(uc)
	if err != nil {
		return nil, false, fmt.Errorf("fluidml: compute unique config for %q: %w", spec.Name, err)
	}
	key := string(raw)

	if ex.byUniqueJSON[spec] == nil {
		ex.byUniqueJSON[spec] = make(map[string]*ExpandedTask)
	}
	if existing, ok := ex.byUniqueJSON[spec][key]; ok {
		return existing, false, nil
	}

	t := &ExpandedTask{
		ID:           ex.nextID,
		Name:         spec.Name,
		Spec:         spec,
		Kwargs:       kwargs,
		UniqueConfig: uc,
		Reduce:       spec.Reduce,
		Publishes:    spec.Publishes,
		ReduceAxis:   reduceAxis,
		Reduced:      reduced,
		construct:    spec.New,
	}
	ex.nextID++
	ex.byUniqueJSON[spec][key] = t
	return t, true, nil
}

// expandPlainSpec realizes a non-reduce spec: the Cartesian product of
// every predecessor spec's already-realized instance list against this
// spec's own kwargs combinations (expandCombinations over Config/Expand).
func (ex *expander) expandPlainSpec(spec *TaskSpec) ([]*ExpandedTask, error) {
	ownCombos, err := expandCombinations(spec.Config, spec.Expand)
	if err != nil {
		if fe, ok := err.(*Error); ok {
			return nil, fe.withTask(spec.Name, nil)
		}
		return nil, err
	}

	preds := spec.Predecessors()
	predTuples := cartesianInstances(predInstanceLists(ex, preds))

	var out []*ExpandedTask
	for _, tuple := range predTuples {
		for _, kw := range ownCombos {
			uc := make(UniqueConfig, len(tuple)+1)
			for i, p := range preds {
				uc[p.Name] = tuple[i].UniqueConfig
			}
			uc[spec.Name] = kw

			t, created, err := ex.dedupOrCreate(spec, uc, kw, "", nil)
			if err != nil {
				return nil, err
			}
			if created {
				for _, p := range tuple {
					if t.Node.addPredecessor(p) {
						p.Node.addSuccessor(t)
					}
				}
				out = append(out, t)
			}
		}
	}
	if len(predTuples) == 0 && len(preds) > 0 {
		// A predecessor spec produced zero instances (only possible if
		// its own Config's axes were empty slices); nothing downstream
		// can run.
		return nil, nil
	}
	return out, nil
}

// expandReduceSpec realizes a reduce spec. Its first predecessor is the
// reduce axis: its expanded instances are partitioned into equivalence
// classes by strippedUniqueConfig (the portion of their config
// contributed by THEIR predecessors, i.e. with the axis spec's own
// kwargs removed), and each class becomes one reduce instance whose
// Reduced group is that class's members. Any additional predecessors
// are treated as broadcast dependencies: every one of their instances
// is combined via cross product against every reduce group, exactly
// like a plain (non-reduce) predecessor would be.
func (ex *expander) expandReduceSpec(spec *TaskSpec) ([]*ExpandedTask, error) {
	preds := spec.Predecessors()
	if len(preds) == 0 {
		return nil, newError(ErrInvalidExpansionAxis, "invalid_expansion_axis",
			fmt.Sprintf("reduce spec %q has no predecessors to reduce over", spec.Name)).withTask(spec.Name, nil)
	}
	axis := preds[0]
	broadcast := preds[1:]

	axisInstances := ex.instances[axis]
	groups, groupOrder := groupByStrippedConfig(axisInstances, axis.Name)

	ownCombos, err := expandCombinations(spec.Config, spec.Expand)
	if err != nil {
		if fe, ok := err.(*Error); ok {
			return nil, fe.withTask(spec.Name, nil)
		}
		return nil, err
	}

	broadcastTuples := cartesianInstances(predInstanceLists(ex, broadcast))
	if len(broadcastTuples) == 0 {
		broadcastTuples = [][]*ExpandedTask{{}}
	}

	var out []*ExpandedTask
	for _, groupKey := range groupOrder {
		members := groups[groupKey]
		stripped := strippedUniqueConfig(members[0].UniqueConfig, axis.Name)

		reduced := make([]*ReducedResult, len(members))
		for i, m := range members {
			reduced[i] = &ReducedResult{Config: m.UniqueConfig}
		}

		for _, btuple := range broadcastTuples {
			for _, kw := range ownCombos {
				uc := make(UniqueConfig, len(broadcast)+2)
				uc[axis.Name] = stripped
				for i, b := range broadcast {
					uc[b.Name] = btuple[i].UniqueConfig
				}
				uc[spec.Name] = kw

				t, created, err := ex.dedupOrCreate(spec, uc, kw, axis.Name, reduced)
				if err != nil {
					return nil, err
				}
				if created {
					for _, m := range members {
						if t.Node.addPredecessor(m) {
							m.Node.addSuccessor(t)
						}
					}
					for _, b := range btuple {
						if t.Node.addPredecessor(b) {
							b.Node.addSuccessor(t)
						}
					}
					out = append(out, t)
				}
			}
		}
	}
	return out, nil
}

func predInstanceLists(ex *expander, preds []*TaskSpec) [][]*ExpandedTask {
	lists := make([][]*ExpandedTask, len(preds))
	for i, p := range preds {
		lists[i] = ex.instances[p]
	}
	return lists
}

// cartesianInstances returns the Cartesian product of lists, each inner
// slice one representative per input list, last list varying fastest.
// An empty input yields a single empty tuple (so specs with no
// predecessors still run their own combos exactly once per combo).
func cartesianInstances(lists [][]*ExpandedTask) [][]*ExpandedTask {
	if len(lists) == 0 {
		return [][]*ExpandedTask{{}}
	}
	for _, l := range lists {
		if len(l) == 0 {
			return nil
		}
	}
	tuples := [][]*ExpandedTask{{}}
	for _, l := range lists {
		var next [][]*ExpandedTask
		for _, tuple := range tuples {
			for _, inst := range l {
				nt := make([]*ExpandedTask, len(tuple)+1)
				copy(nt, tuple)
				nt[len(tuple)] = inst
				next = append(next, nt)
			}
		}
		tuples = next
	}
	return tuples
}

// groupByStrippedConfig partitions instances by the canonical JSON of
// their stripped UniqueConfig, returning both the group contents and
// the order in which distinct keys were first seen (so reduce instance
// ids stay deterministic across repeated runs of the same graph).
func groupByStrippedConfig(instances []*ExpandedTask, ownName string) (map[string][]*ExpandedTask, []string) {
	groups := make(map[string][]*ExpandedTask)
	var order []string
	for _, inst := range instances {
		stripped := strippedUniqueConfig(inst.UniqueConfig, ownName)
		raw, err := CanonicalJSON(stripped)
		key := string(raw)
		if err != nil {
			// Degrade to a per-instance singleton group rather than
			// dropping the instance from the reduce.
			key = fmt.Sprintf("__err_%d", inst.ID)
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], inst)
	}
	return groups, order
}
