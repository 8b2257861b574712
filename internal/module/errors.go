package module

import "fmt"

// FatalError reports a failure the runtime cannot recover from: a module
// whose authoritative software compile failed has nothing left to run on.
type FatalError struct {
	Module string
	Pass   int
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: pass %d compilation of %s: %v", e.Pass, e.Module, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
