package program

import (
	"context"
	"fmt"
	"sync"

	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/specialistvlad/slotjit/internal/ctxlog"
)

// RootName is the declaration name of the implicit top-level module.
const RootName = "root"

// Program is the live program. Declarations only change through Retarget,
// which swaps their annotations; the root declaration only ever grows at the
// end of its item list.
type Program struct {
	mu       sync.RWMutex
	defaults ast.Attrs
	decls    map[string]*ast.ModuleDecl
	root     *ast.ModuleDecl
}

// New creates an empty program. defaults are applied to every declaration
// (including the root) for annotations the source leaves unset.
func New(defaults ast.Attrs) *Program {
	p := &Program{
		defaults: make(ast.Attrs, len(defaults)),
		decls:    make(map[string]*ast.ModuleDecl),
	}
	for k, v := range defaults {
		p.defaults[k] = v
	}
	p.root = &ast.ModuleDecl{Name: RootName}
	p.applyDefaults(p.root)
	return p
}

func (p *Program) applyDefaults(md *ast.ModuleDecl) {
	for k, v := range p.defaults {
		if md.Attr(k) == "" {
			md.SetAttr(k, v)
		}
	}
}

// Root returns the root declaration.
func (p *Program) Root() *ast.ModuleDecl {
	return p.root
}

// Lookup finds a declaration by name.
func (p *Program) Lookup(name string) (*ast.ModuleDecl, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	md, ok := p.decls[name]
	return md, ok
}

// Len returns the number of items in the root declaration.
func (p *Program) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.root.Items)
}

// Eval parses src and merges it into the program. New declarations are
// registered and new top-level items are appended to the root. It returns the
// number of appended items. Eval is all-or-nothing: on error the program is
// left unchanged.
func (p *Program) Eval(ctx context.Context, src []byte, filename string) (int, error) {
	logger := ctxlog.FromContext(ctx)

	parsed, err := Parse(src, filename)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pending := make(map[string]*ast.ModuleDecl, len(parsed.Decls))
	for _, md := range parsed.Decls {
		if _, exists := p.decls[md.Name]; exists || md.Name == RootName {
			return 0, fmt.Errorf("module %q is already declared", md.Name)
		}
		if _, dup := pending[md.Name]; dup {
			return 0, fmt.Errorf("module %q is declared twice in %s", md.Name, filename)
		}
		pending[md.Name] = md
	}
	resolve := func(name string) bool {
		if _, ok := pending[name]; ok {
			return true
		}
		_, ok := p.decls[name]
		return ok
	}
	for _, md := range parsed.Decls {
		if err := checkInstances(md.Items, resolve); err != nil {
			return 0, fmt.Errorf("module %q: %w", md.Name, err)
		}
	}
	if err := checkInstances(parsed.Items, resolve); err != nil {
		return 0, err
	}

	for _, md := range parsed.Decls {
		p.applyDefaults(md)
		p.decls[md.Name] = md
		logger.Debug("Module declared.", "module", md.Name, "std", md.Attr(ast.AttrStd), "target", md.Attr(ast.AttrTarget))
	}
	p.root.Items = append(p.root.Items, parsed.Items...)
	logger.Debug("Program source evaluated.", "file", filename, "declarations", len(parsed.Decls), "items", len(parsed.Items))
	return len(parsed.Items), nil
}

func checkInstances(items []ast.Item, resolve func(string) bool) error {
	var err error
	ast.Walk(items, func(it ast.Item) bool {
		inst, ok := it.(*ast.Instance)
		if !ok {
			return true
		}
		if !resolve(inst.Module) {
			err = fmt.Errorf("instance %q refers to undeclared module %q", inst.Name, inst.Module)
			return false
		}
		return true
	})
	return err
}
