package fluidml

import "fmt"

// Resource names one unit of execution capacity a worker is bound to
// for the task instance it is running — a GPU index, an API rate-limit
// bucket, a filesystem shard, or simply {"id": N} for an unconstrained
// worker pool. The swarm assigns exactly one Resource per worker and
// never shares a Resource between two concurrently running tasks.
type Resource map[string]any

// Label returns a short human-readable identifier for the resource,
// preferring a "name" or "id" entry if present, falling back to the
// full map. Used by emitters and log lines rather than for equality.
func (r Resource) Label() string {
	if v, ok := r["name"]; ok {
		return fmt.Sprintf("%v", v)
	}
	if v, ok := r["id"]; ok {
		return fmt.Sprintf("%v", v)
	}
	return fmt.Sprintf("%v", map[string]any(r))
}
