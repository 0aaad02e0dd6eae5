package fluidml

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/sjson"
)

// escapeSjsonKey escapes gjson/sjson path metacharacters (\, *, ?, .)
// in a map key so it can be used as a literal path segment.
func escapeSjsonKey(k string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`*`, `\*`,
		`?`, `\?`,
		`.`, `\.`,
	)
	return replacer.Replace(k)
}

// UniqueConfig is the canonical nested mapping that identifies an
// expanded task for memoization: { pred_i.name: pred_i.UniqueConfig,
// ..., self.name: self.Kwargs }. Equality of UniqueConfig is structural,
// determined by CanonicalJSON, not Go map identity.
type UniqueConfig map[string]any

// CanonicalJSON serializes v (a UniqueConfig, Kwargs, or any JSON-shaped
// value built from maps/slices/scalars) into a deterministic byte
// encoding: map keys are sorted lexicographically at every nesting
// level, lists keep user order, and numeric values retain their Go
// type's JSON rendering. Two structurally equal configs always produce
// byte-identical output, which is what makes UniqueConfig usable both
// as an in-memory dedup key and, hashed, as a stable store run-id.
//
// The document is assembled incrementally with sjson so that canonical
// key order is controlled explicitly rather than left to encoding/json's
// (correct, but here re-derived rather than relied upon) map-sorting
// behavior.
func CanonicalJSON(v any) ([]byte, error) {
	return canonicalize(v)
}

func canonicalize(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil

	case map[string]any:
		return canonicalizeMap(val)

	case UniqueConfig:
		return canonicalizeMap(map[string]any(val))

	case Kwargs:
		return canonicalizeMap(map[string]any(val))

	default:
		if items, ok := isSliceValue(v); ok {
			return canonicalizeSlice(items)
		}
		// Scalars (string, bool, numeric types, etc.) get encoding/json's
		// stable, type-preserving rendering.
		return json.Marshal(v)
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := "{}"
	for _, k := range keys {
		raw, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		doc, err = sjson.SetRaw(doc, escapeSjsonKey(k), string(raw))
		if err != nil {
			return nil, fmt.Errorf("fluidml: canonicalize key %q: %w", k, err)
		}
	}
	return []byte(doc), nil
}

func canonicalizeSlice(items []any) ([]byte, error) {
	doc := "[]"
	for i, item := range items {
		raw, err := canonicalize(item)
		if err != nil {
			return nil, err
		}
		doc, err = sjson.SetRaw(doc, fmt.Sprintf("%d", i), string(raw))
		if err != nil {
			return nil, fmt.Errorf("fluidml: canonicalize index %d: %w", i, err)
		}
	}
	return []byte(doc), nil
}

// RunHash returns a stable content hash of v's canonical JSON form,
// suitable for use as a store run-id or directory name. Format:
// "sha256:" followed by the hex-encoded digest.
func RunHash(v any) (string, error) {
	raw, err := canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// sameUniqueConfig reports structural equality between two UniqueConfig
// values via their canonical encoding.
func sameUniqueConfig(a, b UniqueConfig) bool {
	ja, err := canonicalizeMap(map[string]any(a))
	if err != nil {
		return false
	}
	jb, err := canonicalizeMap(map[string]any(b))
	if err != nil {
		return false
	}
	return string(ja) == string(jb)
}
