package ast

import (
	"fmt"
	"math/big"
	"strings"
)

// Attribute keys recognised on module declarations.
const (
	AttrStd          = "std"
	AttrTarget       = "target"
	AttrLoc          = "loc"
	AttrDelay        = "delay"
	AttrStateSafeInt = "state_safe_int"
)

// StdLogic marks a declaration that must reduce to a finite, synthesizable form.
const StdLogic = "logic"

// Attrs are the string annotations attached to a module declaration.
type Attrs map[string]string

// ModuleDecl is a module declaration: a name, its annotations and an ordered
// list of items.
type ModuleDecl struct {
	Name  string
	Attrs Attrs
	Items []Item
}

// Attr returns the value of an annotation, or "" if it is not set.
func (m *ModuleDecl) Attr(key string) string {
	if m.Attrs == nil {
		return ""
	}
	return m.Attrs[key]
}

// SetAttr sets or replaces an annotation.
func (m *ModuleDecl) SetAttr(key, val string) {
	if m.Attrs == nil {
		m.Attrs = make(Attrs)
	}
	m.Attrs[key] = val
}

// DeleteAttr removes an annotation if present.
func (m *ModuleDecl) DeleteAttr(key string) {
	delete(m.Attrs, key)
}

// IsLogic reports whether the declaration's standard is "logic".
func (m *ModuleDecl) IsLogic() bool {
	return m.Attr(AttrStd) == StdLogic
}

// Clone returns a deep copy of the declaration.
func (m *ModuleDecl) Clone() *ModuleDecl {
	if m == nil {
		return nil
	}
	out := &ModuleDecl{Name: m.Name, Attrs: make(Attrs, len(m.Attrs))}
	for k, v := range m.Attrs {
		out.Attrs[k] = v
	}
	out.Items = CloneItems(m.Items)
	return out
}

// Item is one element of a module body.
type Item interface {
	clone() Item
}

// CloneItem deep-copies a single item.
func CloneItem(it Item) Item {
	return it.clone()
}

// CloneItems deep-copies a list of items.
func CloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.clone()
	}
	return out
}

// DeclKind distinguishes between the kinds of declarations.
type DeclKind int

const (
	Input DeclKind = iota
	Output
	Reg
	Wire
	Param
)

func (k DeclKind) String() string {
	switch k {
	case Input:
		return "input"
	case Output:
		return "output"
	case Reg:
		return "reg"
	case Wire:
		return "wire"
	case Param:
		return "param"
	}
	return fmt.Sprintf("DeclKind(%d)", int(k))
}

// Decl declares a port, register, wire or parameter.
type Decl struct {
	Kind  DeclKind
	Name  string
	Width int
	// Volatile state is excluded from the non-volatile section of a
	// hardware variable table and appended at its end.
	Volatile bool
	// Latch marks a register the analysis inferred as an implied latch.
	Latch bool
	Init  *big.Int
	// VID is the global variable id assigned by isolation. Zero until then.
	VID uint32
}

func (d *Decl) clone() Item {
	c := *d
	if d.Init != nil {
		c.Init = new(big.Int).Set(d.Init)
	}
	return &c
}

// Words returns the number of 64-bit words needed to hold the declaration.
func (d *Decl) Words() int {
	w := d.Width
	if w <= 0 {
		w = 1
	}
	return (w + 63) / 64
}

// Instance instantiates another module declaration by name.
type Instance struct {
	Name   string
	Module string
	// Index is -1 unless the instance was produced by an indexed generate.
	Index int
	// Inline instances are merged into their parent instead of becoming a
	// separate node of the instance tree.
	Inline  bool
	Params  map[string]*big.Int
	Connect map[string]string
}

func (i *Instance) clone() Item {
	c := *i
	if i.Params != nil {
		c.Params = make(map[string]*big.Int, len(i.Params))
		for k, v := range i.Params {
			c.Params[k] = new(big.Int).Set(v)
		}
	}
	if i.Connect != nil {
		c.Connect = make(map[string]string, len(i.Connect))
		for k, v := range i.Connect {
			c.Connect[k] = v
		}
	}
	return &c
}

// Generate is a generate block. Only elaborated blocks contribute items.
type Generate struct {
	Name       string
	Index      int
	Elaborated bool
	Items      []Item
}

func (g *Generate) clone() Item {
	c := *g
	c.Items = CloneItems(g.Items)
	return &c
}

// Initial is a one-shot block executed at program start.
type Initial struct {
	Body []string
}

func (i *Initial) clone() Item {
	return &Initial{Body: append([]string(nil), i.Body...)}
}

// Edge is the kind of a sensitivity-list entry.
type Edge int

const (
	Level Edge = iota
	Posedge
	Negedge
)

// Trigger is one entry of an always block's sensitivity list.
type Trigger struct {
	Edge   Edge
	Signal string
}

// ParseTrigger parses "posedge clk", "negedge rst" or a bare signal name.
func ParseTrigger(s string) (Trigger, error) {
	fields := strings.Fields(s)
	switch {
	case len(fields) == 1:
		return Trigger{Edge: Level, Signal: fields[0]}, nil
	case len(fields) == 2 && fields[0] == "posedge":
		return Trigger{Edge: Posedge, Signal: fields[1]}, nil
	case len(fields) == 2 && fields[0] == "negedge":
		return Trigger{Edge: Negedge, Signal: fields[1]}, nil
	}
	return Trigger{}, fmt.Errorf("invalid trigger %q", s)
}

func (t Trigger) String() string {
	switch t.Edge {
	case Posedge:
		return "posedge " + t.Signal
	case Negedge:
		return "negedge " + t.Signal
	}
	return t.Signal
}

// Always is a block re-evaluated whenever one of its triggers fires.
type Always struct {
	Triggers []Trigger
	Body     []string
}

func (a *Always) clone() Item {
	return &Always{
		Triggers: append([]Trigger(nil), a.Triggers...),
		Body:     append([]string(nil), a.Body...),
	}
}

// Assign is a continuous assignment.
type Assign struct {
	LHS string
	RHS string
}

func (a *Assign) clone() Item {
	c := *a
	return &c
}
