// Package slots arbitrates a fixed pool of hardware slots among modules that
// compile concurrently.
//
// All occupied slots are compiled together into one composite image. A single
// slot, the compile lead, is COMPILING at any instant; a new request demotes
// the lead to WAITING and takes its place, and a request from a requester that
// already has a WAITING slot stops that earlier attempt. Callers block in
// Compile until their slot becomes CURRENT or is STOPPED.
//
// The slot table is a monitor: one mutex plus a condition variable, broadcast
// after every state change.
package slots
