package module

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/specialistvlad/slotjit/internal/dataplane"
	"github.com/specialistvlad/slotjit/internal/dispose"
	"github.com/specialistvlad/slotjit/internal/engine"
	"github.com/specialistvlad/slotjit/internal/instid"
	"github.com/specialistvlad/slotjit/internal/isolate"
	"github.com/specialistvlad/slotjit/internal/jobs"
	"github.com/specialistvlad/slotjit/internal/metrics"
)

// Compiler builds engines for isolated declarations.
type Compiler interface {
	Compile(ctx context.Context, id engine.ID, decl *ast.ModuleDecl) (*engine.Engine, error)
	CompileStub(id engine.ID, decl *ast.ModuleDecl) *engine.Engine
	// StopCompile abandons the pending hardware builds of id.
	StopCompile(id engine.ID)
}

// Scheduler is the part of the runtime later compile passes run through.
type Scheduler interface {
	// ScheduleAsync runs job on the background pool.
	ScheduleAsync(job jobs.Job) error
	// ScheduleInterrupt runs fn on the interpreter loop. If the runtime has
	// finished, alt runs instead so that fn's resources can be released.
	ScheduleInterrupt(fn, alt func(ctx context.Context))
}

// Env holds the collaborators shared by every node of a tree.
type Env struct {
	Resolver  isolate.Resolver
	Isolator  *isolate.Isolator
	Compiler  Compiler
	Plane     *dataplane.Plane
	Disposer  *dispose.Sequencer
	Scheduler Scheduler
	Metrics   *metrics.Metrics
}

// Node is one instance of the live program.
type Node struct {
	env      *Env
	id       *instid.Address
	parent   *Node
	children []*Node
	src      *ast.ModuleDecl
	engine   *engine.Engine
	version  atomic.Uint64
}

// NewRoot creates the root of a tree instantiating src. Its engine is a stub
// until the first Synchronize.
func NewRoot(env *Env, src *ast.ModuleDecl) *Node {
	return newNode(env, instid.Root(), nil, src)
}

func newNode(env *Env, id *instid.Address, parent *Node, src *ast.ModuleDecl) *Node {
	n := &Node{env: env, id: id, parent: parent, src: src}
	n.engine = env.Compiler.CompileStub(n.engineID(), src)
	return n
}

func (n *Node) engineID() engine.ID { return engine.ID(n.id.String()) }

// ID returns the node's instantiation path.
func (n *Node) ID() *instid.Address { return n.id }

// Parent returns the owning node, or nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the child nodes in lexicographic order.
func (n *Node) Children() []*Node { return slices.Clone(n.children) }

// Source returns the declaration the node instantiates.
func (n *Node) Source() *ast.ModuleDecl { return n.src }

// Engine returns the node's engine. The pointer is stable for the node's
// lifetime; recompiles swap what it runs.
func (n *Node) Engine() *engine.Engine { return n.engine }

// Version returns the number of compilations started for the node.
func (n *Node) Version() uint64 { return n.version.Load() }

// addChild inserts c keeping children sorted by their last path segment.
func (n *Node) addChild(c *Node) {
	i, _ := slices.BinarySearchFunc(n.children, c, func(a, b *Node) int {
		return instid.CompareSegments(a.id.Last(), b.id.Last())
	})
	n.children = slices.Insert(n.children, i, c)
}

func (n *Node) child(id *instid.Address) *Node {
	for _, c := range n.children {
		if c.id.Equal(id) {
			return c
		}
	}
	return nil
}

// Walk visits the subtree rooted at n in preorder, children in lexicographic
// order, until fn returns false.
func (n *Node) Walk(fn func(*Node) bool) {
	stack := []*Node{n}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(top) {
			return
		}
		for i := len(top.children) - 1; i >= 0; i-- {
			stack = append(stack, top.children[i])
		}
	}
}

// Nodes returns the subtree in preorder.
func (n *Node) Nodes() []*Node {
	var out []*Node
	n.Walk(func(m *Node) bool {
		out = append(out, m)
		return true
	})
	return out
}

// Find returns the node of the subtree with the given id.
func (n *Node) Find(id *instid.Address) *Node {
	var found *Node
	n.Walk(func(m *Node) bool {
		if m.id.Equal(id) {
			found = m
		}
		return found == nil
	})
	return found
}

// Size returns the number of nodes in the subtree.
func (n *Node) Size() int {
	size := 0
	n.Walk(func(*Node) bool {
		size++
		return true
	})
	return size
}

// Close tears down the subtree, children first, disposing every engine.
func (n *Node) Close(ctx context.Context) {
	nodes := n.Nodes()
	for i := len(nodes) - 1; i >= 0; i-- {
		m := nodes[i]
		if m.env.Plane != nil {
			m.env.Plane.Unregister(m.engine)
		}
		m.env.Disposer.Dispose(ctx, m.engine)
		m.children = nil
	}
}
