// Package transform holds the simplifying passes applied to isolated module
// declarations before they are handed to a code generator.
//
// Passes rewrite the declaration in place. Logic runs the fixed chain
// required for declarations whose standard is "logic"; DeleteInitial and
// DeadCodeEliminate are also used on their own when a JIT clone is prepared.
package transform
