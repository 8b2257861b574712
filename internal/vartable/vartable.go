// Package vartable lays out the register-mapped address space of a module
// bound to a hardware slot.
package vartable

import (
	"errors"
	"fmt"
	"sort"

	"github.com/specialistvlad/slotjit/internal/ast"
)

// Capacity is the number of 64-bit words a slot can address.
const Capacity = 0x4000

// ErrOverflow is returned when the non-volatile part of a table does not fit.
var ErrOverflow = errors.New("variable table exceeds slot address space")

// Section tells which part of the table an entry lives in.
type Section int

const (
	Input Section = iota
	State
	Output
	Volatile
)

func (s Section) String() string {
	switch s {
	case Input:
		return "input"
	case State:
		return "state"
	case Output:
		return "output"
	case Volatile:
		return "volatile"
	}
	return fmt.Sprintf("Section(%d)", int(s))
}

// Entry is one variable's placement.
type Entry struct {
	VID     uint32
	Name    string
	Section Section
	Base    int
	Words   int
}

// Table is an ordered, deterministic variable layout.
type Table struct {
	entries []Entry
	size    int
}

// Build lays out decl: inputs, then non-volatile state, then outputs, each
// ordered by variable id. Volatile state is appended after the overflow check
// and is not counted against Capacity.
func Build(decl *ast.ModuleDecl) (*Table, error) {
	info := ast.NewInfo(decl)
	var state, volatile []*ast.Decl
	for _, d := range info.Stateful() {
		if d.Volatile {
			volatile = append(volatile, d)
		} else {
			state = append(state, d)
		}
	}

	t := &Table{}
	t.add(Input, info.Inputs())
	t.add(State, state)
	t.add(Output, info.Outputs())
	if t.size >= Capacity {
		return nil, fmt.Errorf("%s needs %d words: %w", decl.Name, t.size, ErrOverflow)
	}
	t.add(Volatile, volatile)
	return t, nil
}

func (t *Table) add(sec Section, decls []*ast.Decl) {
	sorted := append([]*ast.Decl(nil), decls...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].VID < sorted[j].VID })
	for _, d := range sorted {
		t.entries = append(t.entries, Entry{
			VID:     d.VID,
			Name:    d.Name,
			Section: sec,
			Base:    t.size,
			Words:   d.Words(),
		})
		t.size += d.Words()
	}
}

// Entries returns the table in address order.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Size returns the total number of words, volatile state included.
func (t *Table) Size() int { return t.size }

// Lookup finds an entry by variable name.
func (t *Table) Lookup(name string) (Entry, bool) {
	for _, e := range t.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}
