// Package engine defines the compiled execution form of one module.
//
// An Engine wraps a Core. Cores come in three flavors: stubs that hold
// registers while a real compile is pending, software cores, and hardware
// cores bound to a compile slot. Engines are exclusively owned and replaced
// in place with ReplaceWith, which carries register state across the swap.
package engine
