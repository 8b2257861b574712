package module

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"github.com/specialistvlad/slotjit/internal/instid"
	"github.com/specialistvlad/slotjit/internal/isolate"
)

const maxInlineDepth = 64

var identExpr = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// Synchronize brings the tree in line with a root declaration to which added
// items were just appended. New instances found in those items are created,
// then every node is recompiled in preorder, and only then are data plane
// subscriptions refreshed, since variable ids are assigned during isolation.
func (n *Node) Synchronize(ctx context.Context, added int) error {
	items := n.src.Items
	if added > len(items) {
		added = len(items)
	}
	if err := n.instantiate(ctx, items[len(items)-added:], -1, 0, nil); err != nil {
		return err
	}

	for _, m := range n.Nodes() {
		ignore := 0
		if m == n {
			ignore = len(items) - added
		}
		if err := m.CompileAndReplace(ctx, ignore); err != nil {
			return err
		}
	}

	n.subscribe()
	return nil
}

// Rebuild recompiles every node with all of its items already finalized.
func (n *Node) Rebuild(ctx context.Context) error {
	for _, m := range n.Nodes() {
		if err := m.CompileAndReplace(ctx, len(m.src.Items)); err != nil {
			return err
		}
	}
	return nil
}

// inlined tracks the names an inlined module declares, which isolation
// renames under the inline prefix.
type inlined struct {
	prefix string
	names  map[string]bool
}

func (s *inlined) name(n string) string {
	if s != nil && s.names[n] {
		return s.prefix + n
	}
	return n
}

func (n *Node) instantiate(ctx context.Context, items []ast.Item, genIndex, depth int, scope *inlined) error {
	for _, it := range items {
		switch v := it.(type) {
		case *ast.Generate:
			if v.Elaborated {
				if err := n.instantiate(ctx, v.Items, v.Index, depth, scope); err != nil {
					return err
				}
			}
		case *ast.Instance:
			src, ok := n.env.Resolver.Lookup(v.Module)
			if !ok {
				return fmt.Errorf("instance %q of %s refers to undeclared module %q", v.Name, n.id, v.Module)
			}
			if v.Inline {
				if depth >= maxInlineDepth {
					return fmt.Errorf("inlining %q in %s exceeds depth %d", v.Name, n.id, maxInlineDepth)
				}
				outer := ""
				if scope != nil {
					outer = scope.prefix
				}
				inner := &inlined{prefix: isolate.InlinePrefix(outer, v.Name), names: make(map[string]bool)}
				isolate.Declared(src.Items, func(d *ast.Decl) { inner.names[d.Name] = true })
				if err := n.instantiate(ctx, src.Items, genIndex, depth+1, inner); err != nil {
					return err
				}
				continue
			}
			if err := n.instantiateChild(ctx, v, src, genIndex, scope); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *Node) instantiateChild(ctx context.Context, inst *ast.Instance, src *ast.ModuleDecl, genIndex int, scope *inlined) error {
	seg := instid.NewPathSegment(inst.Name)
	switch {
	case inst.Index >= 0:
		seg = instid.NewPathSegmentWithIndex(inst.Name, inst.Index)
	case genIndex >= 0:
		seg = instid.NewPathSegmentWithIndex(inst.Name, genIndex)
	}
	id := n.id.Child(seg)
	if n.child(id) != nil {
		ctxlog.FromContext(ctx).Warn("Instance already exists, ignoring redeclaration.", "module", id.String())
		return nil
	}

	c := newNode(n.env, id, n, src)
	n.addChild(c)
	ctxlog.FromContext(ctx).Debug("Instantiated module.", "module", id.String(), "decl", src.Name)

	ports := make([]string, 0, len(inst.Connect))
	for p := range inst.Connect {
		ports = append(ports, p)
	}
	sort.Strings(ports)
	for _, p := range ports {
		if expr := inst.Connect[p]; identExpr.MatchString(expr) {
			n.env.Isolator.Alias(id, p, n.id, scope.name(expr))
		}
	}
	return c.instantiate(ctx, src.Items, -1, 0, nil)
}

// subscribe registers every node's ports with the data plane: the variables
// others read from a node make it a writer, the ones others write into it make
// it a reader.
func (n *Node) subscribe() {
	if n.env.Plane == nil {
		return
	}
	for _, m := range n.Nodes() {
		info := ast.NewInfo(m.src)
		for _, d := range info.Reads() {
			gid := n.env.Isolator.VarID(m.id, d.Name)
			n.env.Plane.RegisterID(gid)
			n.env.Plane.RegisterWriter(m.engine, gid)
		}
		for _, d := range info.Writes() {
			gid := n.env.Isolator.VarID(m.id, d.Name)
			n.env.Plane.RegisterID(gid)
			n.env.Plane.RegisterReader(m.engine, gid)
		}
	}
}
