// Package runtime owns a live program: its declarations, the instance tree,
// the compiler and the queues later compile passes run on.
//
// Every change to the tree happens on a single interpreter goroutine. Callers
// reach it through Eval, Save, Restart and StateSafe, which block until the
// loop has run their work, or through ScheduleInterrupt, which does not.
// Background compile passes run on a jobs.Pool and come back to the loop as
// interrupts.
//
// A runtime finishes either when Close is called or when a compilation fails
// fatally. After that, queued interrupts run their alternate function instead
// and every blocking call returns ErrFinished.
package runtime
