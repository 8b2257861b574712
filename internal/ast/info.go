package ast

import (
	"regexp"
	"strings"
)

// Walk visits items in preorder. Elaborated generate blocks are descended
// into; unelaborated ones and instances are visited but not entered. Walk
// stops early when fn returns false.
func Walk(items []Item, fn func(Item) bool) bool {
	for _, it := range items {
		if !fn(it) {
			return false
		}
		if g, ok := it.(*Generate); ok && g.Elaborated {
			if !Walk(g.Items, fn) {
				return false
			}
		}
	}
	return true
}

// Info answers analysis queries about one module declaration. It does not
// cache: callers that mutate the declaration simply build a new Info.
type Info struct {
	md *ModuleDecl
}

// NewInfo returns the analysis view of md.
func NewInfo(md *ModuleDecl) *Info {
	return &Info{md: md}
}

func (i *Info) decls(keep func(*Decl) bool) []*Decl {
	var out []*Decl
	Walk(i.md.Items, func(it Item) bool {
		if d, ok := it.(*Decl); ok && keep(d) {
			out = append(out, d)
		}
		return true
	})
	return out
}

// Inputs returns the declared input ports.
func (i *Info) Inputs() []*Decl {
	return i.decls(func(d *Decl) bool { return d.Kind == Input })
}

// Outputs returns the declared output ports.
func (i *Info) Outputs() []*Decl {
	return i.decls(func(d *Decl) bool { return d.Kind == Output })
}

// Stateful returns registers which hold state across evaluations.
func (i *Info) Stateful() []*Decl {
	return i.decls(func(d *Decl) bool { return d.Kind == Reg && !d.Latch })
}

// ImpliedLatches returns registers inferred as implied latches.
func (i *Info) ImpliedLatches() []*Decl {
	return i.decls(func(d *Decl) bool { return d.Kind == Reg && d.Latch })
}

// Reads returns the variables other modules read from this one.
func (i *Info) Reads() []*Decl {
	return i.Outputs()
}

// Writes returns the variables other modules write into this one.
func (i *Info) Writes() []*Decl {
	return i.Inputs()
}

// UsesMixedTriggers reports whether any always block combines edge and level
// triggers.
func (i *Info) UsesMixedTriggers() bool {
	mixed := false
	Walk(i.md.Items, func(it Item) bool {
		a, ok := it.(*Always)
		if !ok {
			return true
		}
		var edge, level bool
		for _, t := range a.Triggers {
			if t.Edge == Level {
				level = true
			} else {
				edge = true
			}
		}
		mixed = edge && level
		return !mixed
	})
	return mixed
}

// Children returns the non-inlined instances reachable without descending
// into other instances.
func (i *Info) Children() []*Instance {
	var out []*Instance
	Walk(i.md.Items, func(it Item) bool {
		if inst, ok := it.(*Instance); ok && !inst.Inline {
			out = append(out, inst)
		}
		return true
	})
	return out
}

// References reports whether name appears as an identifier in any statement,
// assignment, trigger or connection of the declaration.
func (i *Info) References(name string) bool {
	re := regexp.MustCompile(`(^|[^A-Za-z0-9_$])` + regexp.QuoteMeta(name) + `($|[^A-Za-z0-9_$])`)
	found := false
	Walk(i.md.Items, func(it Item) bool {
		var texts []string
		switch v := it.(type) {
		case *Initial:
			texts = v.Body
		case *Always:
			texts = append(texts, v.Body...)
			for _, t := range v.Triggers {
				texts = append(texts, t.Signal)
			}
		case *Assign:
			texts = []string{v.LHS, v.RHS}
		case *Instance:
			for _, c := range v.Connect {
				texts = append(texts, c)
			}
		}
		found = re.MatchString(strings.Join(texts, "\n"))
		return !found
	})
	return found
}
