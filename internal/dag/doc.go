// Package dag provides the directed acyclic graph the runtime environment
// uses to order job-graph vertices. Nodes are identified by string IDs and
// remember the order they were added in, so every traversal is
// deterministic for identical input.
package dag
