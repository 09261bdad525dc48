// Package gridpath provides grid-based A* pathfinding for agents moving across a
// sampled world surface.
//
// It exposes three main entry points:
//
//   - Build: sample host-supplied traversability predicates into an immutable Grid.
//   - FindPath: run the search to completion on a Grid and get a Result.
//   - Service: request paths asynchronously against the currently published Grid,
//     and regenerate that Grid without disturbing searches already in flight.
//
// Stepper iterates the same search one expansion at a time to drive UIs or
// debugging tools.
//
// Per-search cost bookkeeping lives in pooled scratch buffers indexed by node id,
// so any number of searches may read one Grid concurrently.
package gridpath
