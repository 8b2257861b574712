// Package program holds the live, append-only program: the module
// declarations seen so far and the ordered item list of the implicit root
// module. Source arrives as HCL text and is decoded in source order, since
// item order is significant to instantiation and to initial-block handling.
package program
