// Package sqlstore is a SQLite-backed Store implementation: a relational
// alternative to the local-file and in-memory reference stores, useful
// when a flow's results should be queryable with SQL or shared between
// processes on the same machine without a directory-tree convention.
//
// It uses modernc.org/sqlite, a pure-Go SQLite driver, so the package
// never needs cgo.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/fluidml-go/fluidml/store"
)

// Store is a SQLite-backed store.Store. A single connection is kept open
// for the store's lifetime (SQLite only supports one writer at a time),
// so every statement, reads included, is serialized through it; WAL mode
// is enabled on the database file. Save runs in one transaction, so a
// reader never observes a partially saved artifact.
type Store struct {
	db       *sql.DB
	registry *store.Registry
	mu       sync.Mutex
}

// Open creates (or reuses) a SQLite database at path and ensures its
// schema exists. Use ":memory:" for a throwaway, process-local store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlstore: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, registry: store.NewRegistry()}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	const runsTable = `
		CREATE TABLE IF NOT EXISTS fluidml_runs (
			task_name    TEXT NOT NULL,
			config_hash  TEXT NOT NULL,
			unique_config TEXT NOT NULL,
			PRIMARY KEY (task_name, config_hash)
		)`
	const artifactsTable = `
		CREATE TABLE IF NOT EXISTS fluidml_artifacts (
			task_name   TEXT NOT NULL,
			config_hash TEXT NOT NULL,
			name        TEXT NOT NULL,
			type        TEXT NOT NULL,
			data        BLOB NOT NULL,
			PRIMARY KEY (task_name, config_hash, name),
			FOREIGN KEY (task_name, config_hash) REFERENCES fluidml_runs(task_name, config_hash)
		)`
	if _, err := s.db.ExecContext(ctx, runsTable); err != nil {
		return fmt.Errorf("sqlstore: create fluidml_runs: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, artifactsTable); err != nil {
		return fmt.Errorf("sqlstore: create fluidml_artifacts: %w", err)
	}
	return nil
}

// Registry exposes the store's type-handler registry so callers can
// register additional artifact types at construction time.
func (s *Store) Registry() *store.Registry { return s.registry }

// Close releases the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func configHash(taskUniqueConfig any) (string, []byte, error) {
	raw, err := json.Marshal(taskUniqueConfig)
	if err != nil {
		return "", nil, fmt.Errorf("sqlstore: marshal unique config: %w", err)
	}
	return fmt.Sprintf("%x", rawHash(raw)), raw, nil
}

func rawHash(raw []byte) []byte {
	h := fnv64a(raw)
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte(h >> (56 - 8*i))
	}
	return out
}

// fnv64a is a small non-cryptographic hash: the config hash only needs
// to be a stable join key within one database, not collision-resistant
// across the internet, so FNV is used here instead of crypto/sha256.
// Lookups compare only this hash, not the marshalled config.
func fnv64a(data []byte) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for _, b := range data {
		h ^= uint64(b)
		h *= prime64
	}
	return h
}

func (s *Store) Save(ctx context.Context, obj any, name, type_, taskName string, taskUniqueConfig any) error {
	handler, ok := s.registry.Handler(type_)
	if !ok {
		return fmt.Errorf("sqlstore: no handler registered for type %q", type_)
	}
	encoded, err := handler.SaveFn(obj, "")
	if err != nil {
		return err
	}
	hash, raw, err := configHash(taskUniqueConfig)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO fluidml_runs (task_name, config_hash, unique_config) VALUES (?, ?, ?)
		 ON CONFLICT (task_name, config_hash) DO NOTHING`,
		taskName, hash, string(raw)); err != nil {
		return fmt.Errorf("sqlstore: insert run: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO fluidml_artifacts (task_name, config_hash, name, type, data) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (task_name, config_hash, name) DO UPDATE SET type = excluded.type, data = excluded.data`,
		taskName, hash, name, type_, encoded); err != nil {
		return fmt.Errorf("sqlstore: insert artifact: %w", err)
	}
	return tx.Commit()
}

func (s *Store) Load(ctx context.Context, name, taskName string, taskUniqueConfig any) (any, bool, error) {
	hash, _, err := configHash(taskUniqueConfig)
	if err != nil {
		return nil, false, err
	}

	var type_ string
	var data []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT type, data FROM fluidml_artifacts WHERE task_name = ? AND config_hash = ? AND name = ?`,
		taskName, hash, name).Scan(&type_, &data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlstore: load %s/%s: %w", taskName, name, err)
	}

	handler, ok := s.registry.Handler(type_)
	if !ok {
		return nil, false, fmt.Errorf("sqlstore: no handler registered for type %q", type_)
	}
	obj, err := handler.LoadFn(data, "")
	if err != nil {
		return nil, false, err
	}
	return obj, true, nil
}

func (s *Store) GetResults(ctx context.Context, taskName string, taskUniqueConfig any, publishes []string) (map[string]any, error) {
	hash, _, err := configHash(taskUniqueConfig)
	if err != nil {
		return nil, err
	}

	names := publishes
	if len(names) == 0 {
		rows, err := s.db.QueryContext(ctx,
			`SELECT name FROM fluidml_artifacts WHERE task_name = ? AND config_hash = ?`, taskName, hash)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: list artifacts: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				return nil, err
			}
			names = append(names, n)
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

func (s *Store) HasCompleteRun(ctx context.Context, taskName string, taskUniqueConfig any, publishes []string) bool {
	hash, _, err := configHash(taskUniqueConfig)
	if err != nil {
		return false
	}

	if len(publishes) == 0 {
		var n int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM fluidml_runs WHERE task_name = ? AND config_hash = ?`,
			taskName, hash).Scan(&n); err != nil {
			return false
		}
		return n > 0
	}

	for _, name := range publishes {
		var n int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM fluidml_artifacts WHERE task_name = ? AND config_hash = ? AND name = ?`,
			taskName, hash, name).Scan(&n); err != nil {
			return false
		}
		if n == 0 {
			return false
		}
	}
	return true
}

func (s *Store) DeleteRun(ctx context.Context, taskName string, taskUniqueConfig any) error {
	hash, _, err := configHash(taskUniqueConfig)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fluidml_artifacts WHERE task_name = ? AND config_hash = ?`, taskName, hash); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fluidml_runs WHERE task_name = ? AND config_hash = ?`, taskName, hash); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListRuns(ctx context.Context, taskName string) ([]any, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT unique_config FROM fluidml_runs WHERE task_name = ?`, taskName)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list runs: %w", err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var cfg any
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// RunContext is the store-specific handle sqlstore's GetContext returns:
// the join key (task_name, config_hash) a caller needs to query
// fluidml_runs/fluidml_artifacts directly against the same database, plus
// the DB handle itself since sqlstore keeps a single shared connection.
type RunContext struct {
	DB         *sql.DB
	TaskName   string
	ConfigHash string
}

// GetContext returns a RunContext for (taskName, taskUniqueConfig), the
// join key a task can use to query fluidml_runs/fluidml_artifacts
// directly rather than through Save/Load.
func (s *Store) GetContext(_ context.Context, taskName string, taskUniqueConfig any) (any, error) {
	hash, _, err := configHash(taskUniqueConfig)
	if err != nil {
		return nil, err
	}
	return RunContext{DB: s.db, TaskName: taskName, ConfigHash: hash}, nil
}

var _ store.Store = (*Store)(nil)
