// Package store defines the results-store contract that the swarm and
// task runtime consume, plus a registry of artifact type handlers
// (json, pickle, yaml, ...) that concrete store implementations use to
// serialize saved objects.
//
// Store deliberately depends on nothing in the fluidml package: the
// contract is expressed entirely in terms of strings and `any` so that
// concrete backends (memory, local filesystem, sqlstore) can be tested
// and reused independently of the scheduler that drives them.
package store

import (
	"context"
	"errors"
)

// ErrNotFound names the absence of an artifact under
// (task_name, task_unique_config, name). Load does not return it: the
// backends in this module report a missing artifact as (nil, false, nil).
var ErrNotFound = errors.New("store: not found")

// Store persists and loads per-task artifacts keyed by
// (task_name, task_unique_config, artifact_name), and lists prior runs
// for a given task name. Implementations must be safe for concurrent
// Save/Load from distinct workers; Save for a given
// (task_name, unique_config, artifact_name) must be atomic from a
// reader's standpoint (write-then-rename or equivalent).
type Store interface {
	// Save persists obj under name using the type handler registered for
	// type_, namespaced by taskName and taskUniqueConfig.
	Save(ctx context.Context, obj any, name, type_, taskName string, taskUniqueConfig any) error

	// Load retrieves a previously saved artifact. It returns
	// (nil, false, nil) if no prior run exists or the run exists but
	// never published name; it returns a non-nil error only on I/O
	// failure.
	Load(ctx context.Context, name, taskName string, taskUniqueConfig any) (obj any, found bool, err error)

	// GetResults loads every name in publishes for
	// (taskName, taskUniqueConfig) into a map. Missing names are simply
	// absent from the result map (not an error); callers that require
	// completeness should compare len(result) against len(publishes).
	GetResults(ctx context.Context, taskName string, taskUniqueConfig any, publishes []string) (map[string]any, error)

	// HasCompleteRun reports whether a prior run exists for
	// (taskName, taskUniqueConfig) that published every name in
	// publishes (or, if publishes is empty, whether any run exists at
	// all). Implementations that cannot determine completeness should
	// return false rather than erroring, so the skip/run decision stays
	// conservative (spec: store lookup failures are "no prior run", not
	// fatal).
	HasCompleteRun(ctx context.Context, taskName string, taskUniqueConfig any, publishes []string) bool

	// DeleteRun removes every artifact stored under
	// (taskName, taskUniqueConfig), used by the force cascade before a
	// forced re-run.
	DeleteRun(ctx context.Context, taskName string, taskUniqueConfig any) error

	// ListRuns returns the taskUniqueConfig of every run ever saved for
	// taskName, in no particular order.
	ListRuns(ctx context.Context, taskName string) ([]any, error)

	// GetContext returns a store-specific handle for (taskName,
	// taskUniqueConfig) that a task can use to reach storage directly
	// rather than through Save/Load — e.g. a directory path a task wants
	// to write a large file tree into itself. The handle's concrete type
	// is backend-specific (a string path for LocalFileStore, a string run
	// key for MemStore, a sqlstore.RunContext for sqlstore); callers that
	// need a particular backend's
	// handle type assert on the result.
	GetContext(ctx context.Context, taskName string, taskUniqueConfig any) (any, error)
}

// TypeHandler serializes and deserializes one artifact type token
// (e.g. "json", "pickle", "yaml"). NeedsPath is true for handlers that
// must write directly to a filesystem path (large binary blobs) rather
// than returning an in-memory encoding; LocalFileStore honors it, and
// MemStore ignores it (everything lives in memory regardless).
type TypeHandler struct {
	// Ext is the file extension (without the dot) a concrete filesystem
	// backend should use for this type, e.g. "json", "pkl", "yaml".
	Ext string

	// NeedsPath is true when SaveFn/LoadFn operate on a filesystem path
	// rather than an in-memory byte encoding.
	NeedsPath bool

	// SaveFn encodes obj. When NeedsPath is false it returns the encoded
	// bytes; when true, dest is the absolute path SaveFn must write to
	// and the returned bytes are ignored.
	SaveFn func(obj any, dest string) ([]byte, error)

	// LoadFn decodes either raw bytes (NeedsPath=false) or the file at
	// path (NeedsPath=true) back into a value.
	LoadFn func(raw []byte, path string) (any, error)
}

// Registry is a mutable set of TypeHandlers keyed by type token. The
// zero value is empty; use NewRegistry for one preloaded with the
// required "json" and "pickle" tokens.
type Registry struct {
	handlers map[string]TypeHandler
}

// NewRegistry returns a Registry preloaded with the built-in "json" and
// "pickle" handlers (see handlers.go) plus the "yaml" handler.
// Implementations may Register additional tokens.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]TypeHandler)}
	r.Register("json", jsonHandler())
	r.Register("pickle", pickleHandler())
	r.Register("yaml", yamlHandler())
	return r
}

// Register adds or overwrites the handler for token.
func (r *Registry) Register(token string, h TypeHandler) {
	if r.handlers == nil {
		r.handlers = make(map[string]TypeHandler)
	}
	r.handlers[token] = h
}

// Handler returns the handler registered for token, if any.
func (r *Registry) Handler(token string) (TypeHandler, bool) {
	h, ok := r.handlers[token]
	return h, ok
}
