package fluidml_test

import (
	"testing"

	"github.com/fluidml-go/fluidml"
)

func TestCanonicalJSONKeyOrderStability(t *testing.T) {
	a := fluidml.UniqueConfig{"b": 1, "a": 2, "c": fluidml.Kwargs{"z": 1, "y": 2}}
	b := fluidml.UniqueConfig{"c": fluidml.Kwargs{"y": 2, "z": 1}, "a": 2, "b": 1}

	rawA, err := fluidml.CanonicalJSON(a)
	if err != nil {
		t.Fatalf("CanonicalJSON(a): %v", err)
	}
	rawB, err := fluidml.CanonicalJSON(b)
	if err != nil {
		t.Fatalf("CanonicalJSON(b): %v", err)
	}
	if string(rawA) != string(rawB) {
		t.Fatalf("canonical encodings differ despite structural equality:\na=%s\nb=%s", rawA, rawB)
	}
}

func TestCanonicalJSONListOrderPreserved(t *testing.T) {
	a := fluidml.UniqueConfig{"xs": []any{1, 2, 3}}
	b := fluidml.UniqueConfig{"xs": []any{3, 2, 1}}

	rawA, err := fluidml.CanonicalJSON(a)
	if err != nil {
		t.Fatalf("CanonicalJSON(a): %v", err)
	}
	rawB, err := fluidml.CanonicalJSON(b)
	if err != nil {
		t.Fatalf("CanonicalJSON(b): %v", err)
	}
	if string(rawA) == string(rawB) {
		t.Fatalf("differently ordered lists produced identical canonical encodings: %s", rawA)
	}
}

func TestRunHashDeterministic(t *testing.T) {
	cfg := fluidml.UniqueConfig{"lr": 0.1, "data": fluidml.Kwargs{"n": 100}}

	h1, err := fluidml.RunHash(cfg)
	if err != nil {
		t.Fatalf("RunHash: %v", err)
	}
	h2, err := fluidml.RunHash(fluidml.UniqueConfig{"data": fluidml.Kwargs{"n": 100}, "lr": 0.1})
	if err != nil {
		t.Fatalf("RunHash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("RunHash not invariant to key order: %s != %s", h1, h2)
	}
}
