// Package fluidml is a task-graph execution engine: it expands a
// declarative DAG of parametric task specs into a concrete execution
// graph, schedules ready tasks onto a bounded pool of resource-bound
// workers, and memoizes results in a content-addressed store keyed by
// each task's effective configuration.
package fluidml
