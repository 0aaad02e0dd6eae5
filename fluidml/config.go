package fluidml

import (
	"fmt"
	"reflect"
	"sort"
)

// ExpandKind selects how a TaskSpec's Config axes are combined into
// concrete kwargs candidates during expansion.
type ExpandKind int

const (
	// ExpandNone passes Config through verbatim as a single kwargs
	// candidate; list-valued entries are not treated as expansion axes.
	ExpandNone ExpandKind = iota

	// ExpandProduct takes the Cartesian product of all list-valued axes.
	ExpandProduct

	// ExpandZip zips all list-valued axes together; they must all have
	// the same length.
	ExpandZip
)

func (k ExpandKind) String() string {
	switch k {
	case ExpandProduct:
		return "product"
	case ExpandZip:
		return "zip"
	default:
		return "none"
	}
}

// Config is a task spec's static configuration: a mapping of parameter
// name to either a scalar value or, under ExpandProduct/ExpandZip, a
// slice of candidate values (an expansion axis).
type Config map[string]any

// Kwargs is one concrete parameter combination produced by expansion.
// It never contains a slice-valued expansion axis; list values that
// survive into Kwargs are either ExpandNone pass-throughs or ordinary
// scalar list parameters the user never intended to expand.
type Kwargs map[string]any

// isSliceValue reports whether v is a slice or array value (excluding
// []byte, which is treated as an opaque scalar blob).
func isSliceValue(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if _, ok := v.([]byte); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// scanAxes splits cfg into expansion axes (slice-valued entries) and
// fixed (scalar) entries, in deterministic key order.
func scanAxes(cfg Config) (axisKeys []string, axes map[string][]any, fixed map[string]any) {
	axes = make(map[string][]any)
	fixed = make(map[string]any)
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if vals, ok := isSliceValue(cfg[k]); ok {
			axes[k] = vals
			axisKeys = append(axisKeys, k)
			continue
		}
		fixed[k] = cfg[k]
	}
	return axisKeys, axes, fixed
}

// expandCombinations turns a Config into the ordered list of concrete
// Kwargs candidates per the spec's expand semantics. Order is
// deterministic: for ExpandProduct, axes vary with the last sorted key
// fastest; for ExpandZip, combination i takes index i from every axis.
func expandCombinations(cfg Config, kind ExpandKind) ([]Kwargs, error) {
	switch kind {
	case ExpandNone:
		kw := make(Kwargs, len(cfg))
		for k, v := range cfg {
			kw[k] = v
		}
		return []Kwargs{kw}, nil

	case ExpandZip:
		axisKeys, axes, fixed := scanAxes(cfg)
		if len(axisKeys) == 0 {
			kw := make(Kwargs, len(fixed))
			for k, v := range fixed {
				kw[k] = v
			}
			return []Kwargs{kw}, nil
		}
		n := len(axes[axisKeys[0]])
		for _, k := range axisKeys {
			if len(axes[k]) != n {
				return nil, newError(ErrInvalidExpansionAxis, "invalid_expansion_axis",
					fmt.Sprintf("zip axis %q has length %d, expected %d", k, len(axes[k]), n))
			}
		}
		combos := make([]Kwargs, n)
		for i := 0; i < n; i++ {
			kw := make(Kwargs, len(fixed)+len(axisKeys))
			for k, v := range fixed {
				kw[k] = v
			}
			for _, k := range axisKeys {
				kw[k] = axes[k][i]
			}
			combos[i] = kw
		}
		return combos, nil

	case ExpandProduct:
		axisKeys, axes, fixed := scanAxes(cfg)
		if len(axisKeys) == 0 {
			kw := make(Kwargs, len(fixed))
			for k, v := range fixed {
				kw[k] = v
			}
			return []Kwargs{kw}, nil
		}
		combos := []Kwargs{{}}
		for _, k := range axisKeys {
			var next []Kwargs
			for _, combo := range combos {
				for _, v := range axes[k] {
					nc := make(Kwargs, len(combo)+1)
					for ck, cv := range combo {
						nc[ck] = cv
					}
					nc[k] = v
					next = append(next, nc)
				}
			}
			combos = next
		}
		for _, combo := range combos {
			for k, v := range fixed {
				combo[k] = v
			}
		}
		return combos, nil

	default:
		return nil, newError(ErrInvalidExpansionAxis, "invalid_expansion_axis",
			fmt.Sprintf("unknown expand kind %v", kind))
	}
}
