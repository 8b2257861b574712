// Package isolate turns one instantiated module into a stand-alone,
// hierarchy-free declaration and assigns the global variable ids used by the
// data plane and by hardware variable tables.
//
// Isolation enforces the following on its output:
//
//  1. Declarations are promoted to the top-most scope, ahead of every other item.
//  2. Elaborated generate blocks are flattened into their enclosing scope;
//     unelaborated ones are dropped.
//  3. Inlined instances are replaced by the items of the module they name,
//     renamed under the instance's path and bound to their connections.
//     Other instances are dropped: they are compiled as separate modules.
//  4. Initial blocks among the first `ignore` top-level items are deleted.
//  5. Every declaration carries its global variable id.
package isolate

import (
	"fmt"
	"math/big"
	"regexp"
	"sync"

	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/specialistvlad/slotjit/internal/instid"
)

// Resolver finds module declarations by name.
type Resolver interface {
	Lookup(name string) (*ast.ModuleDecl, bool)
}

// Isolator assigns variable ids and isolates modules. Variable ids are handed
// out in first-seen order and never reassigned, so they are deterministic as
// long as callers visit modules in a deterministic order.
type Isolator struct {
	resolver Resolver

	mu   sync.Mutex
	vars map[string]uint32
	next uint32
}

// New returns an Isolator resolving inlined instances through r.
func New(r Resolver) *Isolator {
	return &Isolator{resolver: r, vars: make(map[string]uint32), next: 1}
}

// VarID returns the global id of variable name inside instance inst.
func (iso *Isolator) VarID(inst *instid.Address, name string) uint32 {
	key := inst.String() + "." + name
	iso.mu.Lock()
	defer iso.mu.Unlock()
	if id, ok := iso.vars[key]; ok {
		return id
	}
	id := iso.next
	iso.next++
	iso.vars[key] = id
	return id
}

// Alias makes port of instance inst share the id of variable name in
// instance parent, so that a connection between them is one data plane
// variable. It has no effect if the port already has an id.
func (iso *Isolator) Alias(inst *instid.Address, port string, parent *instid.Address, name string) {
	target := iso.VarID(parent, name)
	key := inst.String() + "." + port
	iso.mu.Lock()
	defer iso.mu.Unlock()
	if _, ok := iso.vars[key]; !ok {
		iso.vars[key] = target
	}
}

// Isolate produces the flattened declaration for src instantiated at inst,
// ignoring initial blocks among its first ignore top-level items.
func (iso *Isolator) Isolate(inst *instid.Address, src *ast.ModuleDecl, ignore int) (*ast.ModuleDecl, error) {
	out := &ast.ModuleDecl{Name: inst.Mangle(), Attrs: make(ast.Attrs, len(src.Attrs))}
	for k, v := range src.Attrs {
		out.Attrs[k] = v
	}

	w := &walker{iso: iso, inst: inst, ignore: ignore}
	if err := w.items(src.Items, true); err != nil {
		return nil, fmt.Errorf("isolating %s: %w", inst, err)
	}
	out.Items = make([]ast.Item, 0, len(w.decls)+len(w.rest))
	out.Items = append(out.Items, w.decls...)
	out.Items = append(out.Items, w.rest...)
	return out, nil
}

type walker struct {
	iso    *Isolator
	inst   *instid.Address
	ignore int
	decls  []ast.Item
	rest   []ast.Item
	depth  int
	scope  *scope
}

// scope renames the identifiers declared by an inlined module so that they
// stay distinct from the parent's and from other inlined copies.
type scope struct {
	prefix string
	names  map[string]string
	params map[string]*big.Int
}

var identToken = regexp.MustCompile(`[A-Za-z0-9_$]+`)

// InlinePrefix is the prefix given to names declared by inlined instance inst
// of a scope whose own prefix is outer.
func InlinePrefix(outer, inst string) string {
	return outer + inst + "__"
}

func (sc *scope) prefixOrEmpty() string {
	if sc == nil {
		return ""
	}
	return sc.prefix
}

func (sc *scope) name(n string) string {
	if sc == nil {
		return n
	}
	if r, ok := sc.names[n]; ok {
		return r
	}
	return n
}

func (sc *scope) text(s string) string {
	if sc == nil || len(sc.names) == 0 {
		return s
	}
	return identToken.ReplaceAllStringFunc(s, sc.name)
}

func (sc *scope) texts(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = sc.text(s)
	}
	return out
}

// maxInlineDepth bounds recursive inlining of self-referencing modules.
const maxInlineDepth = 64

func (w *walker) items(items []ast.Item, topLevel bool) error {
	sc := w.scope
	for _, it := range items {
		ignored := false
		if topLevel {
			w.ignore--
			ignored = w.ignore >= 0
		}
		switch v := it.(type) {
		case *ast.Decl:
			d := ast.CloneItem(v).(*ast.Decl)
			d.Name = sc.name(v.Name)
			if sc != nil && v.Kind == ast.Param {
				if val, ok := sc.params[v.Name]; ok {
					d.Init = new(big.Int).Set(val)
				}
			}
			d.VID = w.iso.VarID(w.inst, d.Name)
			w.decls = append(w.decls, d)
		case *ast.Generate:
			if v.Elaborated {
				if err := w.items(v.Items, false); err != nil {
					return err
				}
			}
		case *ast.Instance:
			if !v.Inline {
				continue
			}
			if err := w.inline(v); err != nil {
				return err
			}
		case *ast.Initial:
			if ignored {
				continue
			}
			w.rest = append(w.rest, &ast.Initial{Body: sc.texts(v.Body)})
		case *ast.Always:
			a := &ast.Always{Triggers: make([]ast.Trigger, len(v.Triggers)), Body: sc.texts(v.Body)}
			for i, tr := range v.Triggers {
				a.Triggers[i] = ast.Trigger{Edge: tr.Edge, Signal: sc.name(tr.Signal)}
			}
			w.rest = append(w.rest, a)
		case *ast.Assign:
			w.rest = append(w.rest, &ast.Assign{LHS: sc.text(v.LHS), RHS: sc.text(v.RHS)})
		default:
			w.rest = append(w.rest, ast.CloneItem(it))
		}
	}
	return nil
}

// inline merges the items of the module inst names into the current scope.
// Its declarations are renamed to <path>__<name>, and each connected port is
// bound to the parent expression by a continuous assignment.
func (w *walker) inline(inst *ast.Instance) error {
	md, ok := w.iso.resolver.Lookup(inst.Module)
	if !ok {
		return fmt.Errorf("inlined instance %q refers to undeclared module %q", inst.Name, inst.Module)
	}
	if w.depth >= maxInlineDepth {
		return fmt.Errorf("inlining %q exceeds depth %d", inst.Name, maxInlineDepth)
	}

	parent := w.scope
	prefix := InlinePrefix(parent.prefixOrEmpty(), inst.Name)
	child := &scope{prefix: prefix, names: make(map[string]string), params: inst.Params}
	kinds := make(map[string]ast.DeclKind)
	Declared(md.Items, func(d *ast.Decl) {
		child.names[d.Name] = prefix + d.Name
		kinds[d.Name] = d.Kind
	})
	for _, name := range sortedKeys(inst.Params) {
		if _, ok := kinds[name]; ok {
			continue
		}
		child.names[name] = prefix + name
		w.decls = append(w.decls, &ast.Decl{
			Kind: ast.Param,
			Name: prefix + name,
			Init: new(big.Int).Set(inst.Params[name]),
			VID:  w.iso.VarID(w.inst, prefix+name),
		})
	}
	for _, port := range sortedKeys(inst.Connect) {
		kind, ok := kinds[port]
		if !ok {
			return fmt.Errorf("inlined instance %q connects unknown port %q of %q", inst.Name, port, inst.Module)
		}
		expr := parent.text(inst.Connect[port])
		if kind == ast.Output {
			w.rest = append(w.rest, &ast.Assign{LHS: expr, RHS: prefix + port})
		} else {
			w.rest = append(w.rest, &ast.Assign{LHS: prefix + port, RHS: expr})
		}
	}

	w.depth++
	w.scope = child
	defer func() {
		w.depth--
		w.scope = parent
	}()
	return w.items(md.Items, false)
}

// Declared calls fn for every declaration in items, descending into
// elaborated generate blocks but not into instances.
func Declared(items []ast.Item, fn func(*ast.Decl)) {
	for _, it := range items {
		switch v := it.(type) {
		case *ast.Decl:
			fn(v)
		case *ast.Generate:
			if v.Elaborated {
				Declared(v.Items, fn)
			}
		}
	}
}
