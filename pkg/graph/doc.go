// Package graph provides the resolved Cargo package graph used to compute
// retention sets.
//
// A [Graph] is built once from a metadata document through a [Builder] and is
// immutable afterwards. Nodes are keyed by [PackageID], the full
// (name, version, source) tuple, so the same crate version published to two
// registries stays two distinct packages.
//
// # Edges
//
// Every [Edge] carries its dependency [DepKind] and its guards as data:
//
//   - Optional: the edge only exists when the parent activates the optional
//     dependency through a feature
//   - Platform: a cfg(...) expression or target triple the edge is limited to
//
// Guards are not evaluated here. See package features for that.
//
// # Validation
//
// [Builder.Build] rejects edges that reference unknown packages and cycles
// among normal edges. Cycles that pass through a dev or build edge are legal
// in Cargo (a crate may dev-depend on a crate that depends on it) and are
// accepted.
//
// # Units
//
// [Units] is a small bitset over the compilation units Cargo produces for a
// package: library, binaries, build script and test harness.
package graph
