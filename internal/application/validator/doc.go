// Package validator statically checks pipeline schemas.
//
// Four sub-validators run over a schema value:
//   - topology: node/edge presence, required node kinds, unique ids, edge
//     endpoints, cycles (DFS with a recursion stack), reachability and
//     isolated nodes
//   - variables: variable mappings against the input/output field paths
//   - completeness: required fields and per-kind node configuration
//   - constraints: node/edge limits and allowed node kinds
//
// Validation is pure: it never mutates the schema and always returns its
// findings as data.
package validator
