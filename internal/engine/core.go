package engine

import (
	"math/big"
	"sync"

	"github.com/specialistvlad/slotjit/internal/ast"
)

// Core is the backend an Engine delegates to.
type Core interface {
	IsStub() bool
	Input() *RegisterFile
	State() *RegisterFile
	SetInput(*RegisterFile)
	SetState(*RegisterFile)
	// Get and Set address any variable of the module by name.
	Get(name string) (*big.Int, bool)
	Set(name string, v *big.Int)
	// Finalize is called once the core has received the state of the core
	// it replaces, before it starts executing.
	Finalize() error
	Close() error
}

// RegisterCore keeps a module's variables in memory. It backs stubs and
// software cores and mirrors the registers of hardware cores.
type RegisterCore struct {
	stub bool

	mu     sync.Mutex
	inputs map[string]bool
	state  map[string]bool
	vars   *RegisterFile
	closed bool
}

// NewStub returns a placeholder core for decl that holds registers but is
// waiting for a real compile.
func NewStub(decl *ast.ModuleDecl) *RegisterCore {
	return newRegisterCore(decl, true)
}

// NewSoftware returns a software core for decl.
func NewSoftware(decl *ast.ModuleDecl) *RegisterCore {
	return newRegisterCore(decl, false)
}

func newRegisterCore(decl *ast.ModuleDecl, stub bool) *RegisterCore {
	c := &RegisterCore{
		stub:   stub,
		inputs: make(map[string]bool),
		state:  make(map[string]bool),
		vars:   NewRegisterFile(),
	}
	info := ast.NewInfo(decl)
	for _, d := range info.Inputs() {
		c.inputs[d.Name] = true
		c.vars.vals[d.Name] = initial(d)
	}
	for _, d := range info.Stateful() {
		c.state[d.Name] = true
		c.vars.vals[d.Name] = initial(d)
	}
	for _, d := range info.Outputs() {
		c.vars.vals[d.Name] = initial(d)
	}
	return c
}

func initial(d *ast.Decl) *big.Int {
	if d.Init != nil {
		return new(big.Int).Set(d.Init)
	}
	return new(big.Int)
}

func (c *RegisterCore) IsStub() bool { return c.stub }

func (c *RegisterCore) subset(names map[string]bool) *RegisterFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := NewRegisterFile()
	for n := range names {
		out.Set(n, c.vars.vals[n])
	}
	return out
}

// Input returns a snapshot of the input ports.
func (c *RegisterCore) Input() *RegisterFile { return c.subset(c.inputs) }

// State returns a snapshot of the stateful registers.
func (c *RegisterCore) State() *RegisterFile { return c.subset(c.state) }

// SetInput loads the inputs present in both rf and the module.
func (c *RegisterCore) SetInput(rf *RegisterFile) { c.load(rf, c.inputs) }

// SetState loads the registers present in both rf and the module.
func (c *RegisterCore) SetState(rf *RegisterFile) { c.load(rf, c.state) }

func (c *RegisterCore) load(rf *RegisterFile, names map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for n, v := range rf.vals {
		if names[n] {
			c.vars.Set(n, v)
		}
	}
}

func (c *RegisterCore) Get(name string) (*big.Int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vars.Get(name)
}

func (c *RegisterCore) Set(name string, v *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vars.Has(name) {
		c.vars.Set(name, v)
	}
}

func (c *RegisterCore) Finalize() error { return nil }

func (c *RegisterCore) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (c *RegisterCore) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
