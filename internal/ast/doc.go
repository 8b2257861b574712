// Package ast holds the module declaration model consumed by the recompilation
// pipeline and the slot scheduler, together with the analysis queries both
// need (port/state sets, trigger and latch checks, child instances).
//
// The model is intentionally shallow: statements are opaque text and only the
// structure the runtime reasons about (declarations, instances, generate
// blocks, initial/always constructs) is represented.
package ast
