package engine

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/specialistvlad/slotjit/internal/ast"
)

// ID identifies the module an engine was compiled for. It is the module's
// instantiation path, so successive engines of one module share it.
type ID string

// Engine is the current compiled form of a module.
type Engine struct {
	id ID

	mu   sync.Mutex
	core Core
	// vids maps global variable ids to the variable names of the core.
	vids map[uint32]string
}

// New wraps core. decl supplies the variable ids used by the data plane and
// may be nil.
func New(id ID, decl *ast.ModuleDecl, core Core) *Engine {
	e := &Engine{id: id, core: core, vids: make(map[uint32]string)}
	if decl != nil {
		ast.Walk(decl.Items, func(it ast.Item) bool {
			if d, ok := it.(*ast.Decl); ok && d.VID != 0 {
				e.vids[d.VID] = d.Name
			}
			return true
		})
	}
	return e
}

// ID returns the module id this engine belongs to.
func (e *Engine) ID() ID { return e.id }

func (e *Engine) current() Core {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.core
}

// IsStub reports whether the engine is a placeholder awaiting compilation.
// An emptied engine counts as a stub.
func (e *Engine) IsStub() bool {
	c := e.current()
	return c == nil || c.IsStub()
}

// Core returns the wrapped core, or nil once the engine has been emptied.
func (e *Engine) Core() Core { return e.current() }

// Input returns a snapshot of the engine's input registers.
func (e *Engine) Input() *RegisterFile {
	if c := e.current(); c != nil {
		return c.Input()
	}
	return NewRegisterFile()
}

// State returns a snapshot of the engine's stateful registers.
func (e *Engine) State() *RegisterFile {
	if c := e.current(); c != nil {
		return c.State()
	}
	return NewRegisterFile()
}

// SetInput loads input registers present in rf.
func (e *Engine) SetInput(rf *RegisterFile) {
	if c := e.current(); c != nil {
		c.SetInput(rf)
	}
}

// SetState loads stateful registers present in rf.
func (e *Engine) SetState(rf *RegisterFile) {
	if c := e.current(); c != nil {
		c.SetState(rf)
	}
}

// ReadVar returns the value of the variable with global id vid.
func (e *Engine) ReadVar(vid uint32) (*big.Int, bool) {
	e.mu.Lock()
	name, ok := e.vids[vid]
	c := e.core
	e.mu.Unlock()
	if !ok || c == nil {
		return nil, false
	}
	return c.Get(name)
}

// WriteVar sets the variable with global id vid. Unknown ids are ignored.
func (e *Engine) WriteVar(vid uint32, v *big.Int) {
	e.mu.Lock()
	name, ok := e.vids[vid]
	c := e.core
	e.mu.Unlock()
	if ok && c != nil {
		c.Set(name, v)
	}
}

// ReplaceWith moves next's core into e. The current inputs and state are
// copied into the incoming core, which is finalized before it takes over;
// the outgoing core is closed. next is left empty and may be discarded.
func (e *Engine) ReplaceWith(next *Engine) error {
	if next == e {
		return nil
	}
	next.mu.Lock()
	in, vids := next.core, next.vids
	next.core, next.vids = nil, nil
	next.mu.Unlock()
	if in == nil {
		return errors.New("replacing with an empty engine")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	old := e.core
	if old != nil {
		in.SetInput(old.Input())
		in.SetState(old.State())
	}
	if err := in.Finalize(); err != nil {
		return errors.Join(fmt.Errorf("finalizing engine for %s: %w", e.id, err), in.Close())
	}
	e.core, e.vids = in, vids
	if old != nil {
		if err := old.Close(); err != nil {
			return fmt.Errorf("closing replaced engine for %s: %w", e.id, err)
		}
	}
	return nil
}

// Close releases the wrapped core. It is safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	c := e.core
	e.core = nil
	e.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Close()
}
