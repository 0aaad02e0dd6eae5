package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// contentHash derives a run directory name from a task's unique config.
// encoding/json already sorts map[string]any keys during marshal, so this
// is stable regardless of construction order without needing the fuller
// canonicalization fluidml.CanonicalJSON performs (store does not import
// fluidml; see package doc).
func contentHash(cfgJSON []byte) string {
	sum := sha256.Sum256(cfgJSON)
	return hex.EncodeToString(sum[:])
}

// sidecarName is the per-run metadata file holding the unique config
// verbatim plus the set of artifact names committed so far, used for
// exact-match lookup and fast completeness checks without opening every
// artifact file.
const sidecarName = "config.json"

// LocalFileStore is the filesystem-backed reference Store implementation
// described by the results-store layout: under baseDir, runs live at
// <project>/<task_name>/<run_id>/, where run_id is a content hash of the
// task's unique config, and artifacts are <name>.<ext>. A sidecar
// config.json holds the unique config verbatim (for debugging and
// exact-match lookup) and the list of published artifact names.
type LocalFileStore struct {
	baseDir  string
	project  string
	registry *Registry
	mu       sync.Mutex
}

// NewLocalFileStore creates a LocalFileStore rooted at baseDir for the
// given project namespace. baseDir is created on first use if absent.
func NewLocalFileStore(baseDir, project string) *LocalFileStore {
	return &LocalFileStore{
		baseDir:  baseDir,
		project:  project,
		registry: NewRegistry(),
	}
}

// Registry exposes the store's type-handler registry so callers can
// register additional artifact types at construction time.
func (s *LocalFileStore) Registry() *Registry { return s.registry }

func (s *LocalFileStore) runDir(taskName string, taskUniqueConfig any) (string, error) {
	cfgJSON, err := json.Marshal(taskUniqueConfig)
	if err != nil {
		return "", fmt.Errorf("store: marshal unique config: %w", err)
	}
	runID := contentHash(cfgJSON)
	return filepath.Join(s.baseDir, s.project, taskName, runID), nil
}

func (s *LocalFileStore) sidecarPath(dir string) string {
	return filepath.Join(dir, sidecarName)
}

// ensureSidecar creates dir and writes the initial sidecar (unique
// config verbatim, empty published list) if it does not already exist.
func (s *LocalFileStore) ensureSidecar(dir string, taskUniqueConfig any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: mkdir %s: %w", dir, err)
	}
	path := s.sidecarPath(dir)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	doc := "{}"
	cfgJSON, err := json.Marshal(taskUniqueConfig)
	if err != nil {
		return err
	}
	doc, err = sjson.SetRaw(doc, "unique_config", string(cfgJSON))
	if err != nil {
		return err
	}
	doc, err = sjson.Set(doc, "published", []string{})
	if err != nil {
		return err
	}
	return atomicWrite(path, []byte(doc))
}

// markPublished appends name to the sidecar's "published" list (if not
// already present) using a targeted sjson patch rather than rewriting
// the whole document by hand.
func (s *LocalFileStore) markPublished(dir, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.sidecarPath(dir)
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	published := gjson.GetBytes(raw, "published").Array()
	for _, v := range published {
		if v.String() == name {
			return nil
		}
	}
	names := make([]string, 0, len(published)+1)
	for _, v := range published {
		names = append(names, v.String())
	}
	names = append(names, name)

	patched, err := sjson.SetBytes(raw, "published", names)
	if err != nil {
		return err
	}
	return atomicWrite(path, patched)
}

func (s *LocalFileStore) publishedNames(dir string) ([]string, bool) {
	raw, err := os.ReadFile(s.sidecarPath(dir))
	if err != nil {
		return nil, false
	}
	arr := gjson.GetBytes(raw, "published").Array()
	out := make([]string, len(arr))
	for i, v := range arr {
		out[i] = v.String()
	}
	return out, true
}

// atomicWrite writes data to path via a temp file in the same directory
// followed by an atomic rename, so concurrent readers never observe a
// partially written file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *LocalFileStore) Save(_ context.Context, obj any, name, type_, taskName string, taskUniqueConfig any) error {
	handler, ok := s.registry.Handler(type_)
	if !ok {
		return fmt.Errorf("store: no handler registered for type %q", type_)
	}

	dir, err := s.runDir(taskName, taskUniqueConfig)
	if err != nil {
		return err
	}
	if err := s.ensureSidecar(dir, taskUniqueConfig); err != nil {
		return err
	}

	artifactPath := filepath.Join(dir, name+"."+handler.Ext)
	if handler.NeedsPath {
		if _, err := handler.SaveFn(obj, artifactPath); err != nil {
			return err
		}
	} else {
		encoded, err := handler.SaveFn(obj, "")
		if err != nil {
			return err
		}
		if err := atomicWrite(artifactPath, encoded); err != nil {
			return err
		}
	}
	return s.markPublished(dir, name)
}

func (s *LocalFileStore) Load(_ context.Context, name, taskName string, taskUniqueConfig any) (any, bool, error) {
	dir, err := s.runDir(taskName, taskUniqueConfig)
	if err != nil {
		return nil, false, err
	}
	published, ok := s.publishedNames(dir)
	if !ok {
		return nil, false, nil
	}
	found := false
	for _, n := range published {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		return nil, false, nil
	}

	// Determine the handler from the stored extension by probing each
	// registered token; local file layout keys artifacts by name+ext, so
	// we resolve by directory listing rather than storing the token
	// separately (the sidecar only tracks names).
	matches, err := filepath.Glob(filepath.Join(dir, name+".*"))
	if err != nil {
		return nil, false, err
	}
	if len(matches) == 0 {
		return nil, false, nil
	}
	ext := filepath.Ext(matches[0])
	if len(ext) > 0 {
		ext = ext[1:]
	}

	var handler TypeHandler
	found = false
	for _, h := range s.handlersByExt(ext) {
		handler = h
		found = true
		break
	}
	if !found {
		return nil, false, fmt.Errorf("store: no handler for extension %q", ext)
	}

	if handler.NeedsPath {
		obj, err := handler.LoadFn(nil, matches[0])
		return obj, true, err
	}
	raw, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, false, err
	}
	obj, err := handler.LoadFn(raw, matches[0])
	return obj, true, err
}

func (s *LocalFileStore) handlersByExt(ext string) []TypeHandler {
	var out []TypeHandler
	for _, token := range []string{"json", "pickle", "yaml"} {
		if h, ok := s.registry.Handler(token); ok && h.Ext == ext {
			out = append(out, h)
		}
	}
	if len(out) == 0 {
		for token := range s.registry.handlers {
			if h, ok := s.registry.Handler(token); ok && h.Ext == ext {
				out = append(out, h)
			}
		}
	}
	return out
}

func (s *LocalFileStore) GetResults(ctx context.Context, taskName string, taskUniqueConfig any, publishes []string) (map[string]any, error) {
	dir, err := s.runDir(taskName, taskUniqueConfig)
	if err != nil {
		return nil, err
	}
	names := publishes
	if len(names) == 0 {
		var ok bool
		names, ok = s.publishedNames(dir)
		if !ok {
			return map[string]any{}, nil
		}
	}

	out := make(map[string]any, len(names))
	for _, name := range names {
		obj, found, err := s.Load(ctx, name, taskName, taskUniqueConfig)
		if err != nil {
			return nil, err
		}
		if found {
			out[name] = obj
		}
	}
	return out, nil
}

func (s *LocalFileStore) HasCompleteRun(_ context.Context, taskName string, taskUniqueConfig any, publishes []string) bool {
	dir, err := s.runDir(taskName, taskUniqueConfig)
	if err != nil {
		return false
	}
	published, ok := s.publishedNames(dir)
	if !ok {
		return false
	}
	if len(publishes) == 0 {
		return len(published) > 0
	}
	have := make(map[string]struct{}, len(published))
	for _, n := range published {
		have[n] = struct{}{}
	}
	for _, want := range publishes {
		if _, ok := have[want]; !ok {
			return false
		}
	}
	return true
}

func (s *LocalFileStore) DeleteRun(_ context.Context, taskName string, taskUniqueConfig any) error {
	dir, err := s.runDir(taskName, taskUniqueConfig)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// GetContext returns the run's directory path as the store-specific
// handle, creating it (and its sidecar) if this is the first call for
// (taskName, taskUniqueConfig) — matching the reference layout in
// spec.md §6, where a task can write directly into
// <project>/<task_name>/<run_id>/ alongside its published artifacts.
func (s *LocalFileStore) GetContext(_ context.Context, taskName string, taskUniqueConfig any) (any, error) {
	dir, err := s.runDir(taskName, taskUniqueConfig)
	if err != nil {
		return nil, err
	}
	if err := s.ensureSidecar(dir, taskUniqueConfig); err != nil {
		return nil, err
	}
	return dir, nil
}

func (s *LocalFileStore) ListRuns(_ context.Context, taskName string) ([]any, error) {
	taskDir := filepath.Join(s.baseDir, s.project, taskName)
	entries, err := os.ReadDir(taskDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []any
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(taskDir, entry.Name(), sidecarName))
		if err != nil {
			continue
		}
		var cfg any
		if err := json.Unmarshal([]byte(gjson.GetBytes(raw, "unique_config").Raw), &cfg); err != nil {
			continue
		}
		out = append(out, cfg)
	}
	return out, nil
}
