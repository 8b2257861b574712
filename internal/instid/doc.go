/*
Package instid provides the structured, deterministic identifier of a module
instance within the live instantiation tree.

An identifier is the dot-separated instantiation path from the root, where a
segment produced by an indexed generate block carries its index, e.g.
`root.cpu.alu[2].adder`.

Identifiers only depend on instance names, never on allocation order, so they
stay stable across recompilations of ancestors. Save files and data-plane
subscriptions match modules by this value.
*/
package instid
