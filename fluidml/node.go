package fluidml

// Node is the dependency-edge mixin embedded by both TaskSpec and
// ExpandedTask. It tracks predecessor/successor links without
// prescribing what the linked values are, mirroring the composition
// pattern used throughout the retrieved corpus for graph node types
// (edges as a plain slice-holding struct embedded by the concrete node).
//
// addPredecessor/addSuccessor are declared in terms of `any` so the same Node
// type serves both TaskSpec (predecessors are *TaskSpec) and
// ExpandedTask (predecessors are *ExpandedTask); callers type-assert
// back via the Predecessors()/Successors() accessors on the embedding
// type rather than on Node directly.
type Node struct {
	predecessors []any
	successors   []any
	edgeSet      map[any]struct{}
}

func (n *Node) ensureInit() {
	if n.edgeSet == nil {
		n.edgeSet = make(map[any]struct{})
	}
}

// addPredecessor appends a predecessor edge, collapsing duplicates so
// that requiring the same spec twice is a no-op.
func (n *Node) addPredecessor(pred any) bool {
	n.ensureInit()
	if _, exists := n.edgeSet[pred]; exists {
		return false
	}
	n.edgeSet[pred] = struct{}{}
	n.predecessors = append(n.predecessors, pred)
	return true
}

func (n *Node) addSuccessor(succ any) {
	n.successors = append(n.successors, succ)
}

func (n *Node) predecessorsAny() []any { return n.predecessors }
func (n *Node) successorsAny() []any   { return n.successors }
