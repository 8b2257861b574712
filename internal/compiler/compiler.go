// Package compiler turns isolated module declarations into engines, routing
// each declaration to the backend its target annotation names.
package compiler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"github.com/specialistvlad/slotjit/internal/engine"
	"github.com/specialistvlad/slotjit/internal/hwcore"
	"github.com/specialistvlad/slotjit/internal/slots"
)

// Built-in targets.
const (
	TargetSoftware = "sw"
	TargetStub     = "stub"
)

// Compiler routes compilations by target.
type Compiler struct {
	mu       sync.RWMutex
	hardware map[string]*slots.Scheduler
}

// New returns a compiler that knows the built-in targets only.
func New() *Compiler {
	return &Compiler{hardware: make(map[string]*slots.Scheduler)}
}

// Register makes a hardware target available under name.
func (c *Compiler) Register(name string, s *slots.Scheduler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hardware[name] = s
}

// Scheduler returns the scheduler registered under name.
func (c *Compiler) Scheduler(name string) (*slots.Scheduler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.hardware[name]
	return s, ok
}

// Schedulers returns every registered scheduler ordered by name.
func (c *Compiler) Schedulers() []*slots.Scheduler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.hardware))
	for n := range c.hardware {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*slots.Scheduler, len(names))
	for i, n := range names {
		out[i] = c.hardware[n]
	}
	return out
}

// CompileStub returns a placeholder engine for decl.
func (c *Compiler) CompileStub(id engine.ID, decl *ast.ModuleDecl) *engine.Engine {
	return engine.New(id, decl, engine.NewStub(decl))
}

// Compile builds an engine for decl. Hardware targets block until the slot
// scheduler has finished or abandoned the build.
func (c *Compiler) Compile(ctx context.Context, id engine.ID, decl *ast.ModuleDecl) (*engine.Engine, error) {
	target := decl.Attr(ast.AttrTarget)
	switch target {
	case TargetSoftware, "":
		return engine.New(id, decl, engine.NewSoftware(decl)), nil
	case TargetStub:
		return c.CompileStub(id, decl), nil
	}

	s, ok := c.Scheduler(target)
	if !ok {
		return nil, fmt.Errorf("unknown target %q for %s", target, id)
	}
	ctxlog.FromContext(ctx).Debug("Compiling for hardware target.", "target", target, "loc", decl.Attr(ast.AttrLoc), "module", id)
	logic, err := s.Compile(ctx, decl, id)
	if err != nil {
		return nil, fmt.Errorf("compiling %s for %s: %w", id, target, err)
	}
	return engine.New(id, decl, hwcore.New(logic)), nil
}

// StopCompile abandons every pending hardware compilation of id.
func (c *Compiler) StopCompile(id engine.ID) {
	for _, s := range c.Schedulers() {
		s.Stop(id, true)
	}
}

// StopAll abandons every pending hardware compilation.
func (c *Compiler) StopAll() {
	for _, s := range c.Schedulers() {
		s.StopAll(true)
	}
}
