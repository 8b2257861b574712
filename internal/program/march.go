package program

import (
	"fmt"
	"os"

	"github.com/specialistvlad/slotjit/internal/ast"
)

// March maps a module standard to the annotations every declaration of that
// standard carries on a given target.
type March map[string]ast.Attrs

// ParseMarch decodes a target description. Each module block contributes the
// annotations of its std; top-level items are not allowed.
func ParseMarch(src []byte, filename string) (March, error) {
	parsed, err := Parse(src, filename)
	if err != nil {
		return nil, err
	}
	if len(parsed.Items) > 0 {
		return nil, fmt.Errorf("%s: target descriptions hold module blocks only", filename)
	}
	m := make(March, len(parsed.Decls))
	for _, md := range parsed.Decls {
		std := md.Attr(ast.AttrStd)
		if std == "" {
			return nil, fmt.Errorf("%s: module %q has no std", filename, md.Name)
		}
		if _, dup := m[std]; dup {
			return nil, fmt.Errorf("%s: std %q is described twice", filename, std)
		}
		m[std] = md.Attrs
	}
	return m, nil
}

// ReadMarch reads and parses the target description at path.
func ReadMarch(path string) (March, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read target description '%s': %w", path, err)
	}
	return ParseMarch(b, path)
}

// Retarget replaces the annotations of the root and of every declaration with
// the ones m gives for its std. Defaults follow the root. Retarget is
// all-or-nothing: if some std has no entry in m, nothing changes.
func (p *Program) Retarget(m March) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	all := make([]*ast.ModuleDecl, 0, len(p.decls)+1)
	all = append(all, p.root)
	for _, md := range p.decls {
		all = append(all, md)
	}
	for _, md := range all {
		std := md.Attr(ast.AttrStd)
		if _, ok := m[std]; !ok {
			return fmt.Errorf("new target does not support modules with std %q (module %q)", std, md.Name)
		}
	}
	for _, md := range all {
		md.Attrs = cloneAttrs(m[md.Attr(ast.AttrStd)])
	}
	if d, ok := m[p.defaults[ast.AttrStd]]; ok {
		p.defaults = cloneAttrs(d)
	}
	return nil
}

func cloneAttrs(a ast.Attrs) ast.Attrs {
	out := make(ast.Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}
