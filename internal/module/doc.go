// Package module maintains the live instantiation tree of a program and
// drives the recompilation of each instance.
//
// Every Node owns its children and its Engine. Recompiling a node isolates
// it, simplifies it when its standard is "logic", bumps its version and runs
// the first compile pass synchronously. Pass 1 must target software and must
// succeed. When the target annotation lists further ';'-separated segments,
// each later pass runs on the background pool and is installed through an
// interrupt only if no newer version of the node has been compiled since.
package module
