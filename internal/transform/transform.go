package transform

import (
	"fmt"
	"regexp"

	"github.com/specialistvlad/slotjit/internal/ast"
)

// Pass rewrites a declaration in place.
type Pass struct {
	Name string
	Run  func(md *ast.ModuleDecl) error
}

// LogicChain is the ordered list of passes run on "logic" declarations. The
// order matters: later passes assume the forms produced by earlier ones.
var LogicChain = []Pass{
	{"assign-unpack", AssignUnpack},
	{"index-normalize", IndexNormalize},
	{"loop-unroll", LoopUnroll},
	{"de-alias", DeAlias},
	{"constant-prop", ConstantProp},
	{"event-expand", EventExpand},
	{"control-merge", ControlMerge},
	{"dead-code-eliminate", DeadCodeEliminate},
	{"block-flatten", BlockFlatten},
}

// Logic runs LogicChain over md.
func Logic(md *ast.ModuleDecl) error {
	return Run(md, LogicChain...)
}

// Run applies passes in order and stops at the first failure.
func Run(md *ast.ModuleDecl, passes ...Pass) error {
	for _, p := range passes {
		if err := p.Run(md); err != nil {
			return fmt.Errorf("pass %s on %s: %w", p.Name, md.Name, err)
		}
	}
	return nil
}

var identToken = regexp.MustCompile(`[A-Za-z0-9_$]+`)

// replaceIdent substitutes whole-word occurrences of name in s.
func replaceIdent(s, name, with string) string {
	return identToken.ReplaceAllStringFunc(s, func(tok string) string {
		if tok == name {
			return with
		}
		return tok
	})
}

// idents returns the identifier-like tokens of s.
func idents(s string) []string {
	return identToken.FindAllString(s, -1)
}

// rewriteText applies fn to every statement-like string in items.
func rewriteText(items []ast.Item, fn func(string) string) {
	for _, it := range items {
		switch v := it.(type) {
		case *ast.Initial:
			for i := range v.Body {
				v.Body[i] = fn(v.Body[i])
			}
		case *ast.Always:
			for i := range v.Body {
				v.Body[i] = fn(v.Body[i])
			}
			for i := range v.Triggers {
				v.Triggers[i].Signal = fn(v.Triggers[i].Signal)
			}
		case *ast.Assign:
			v.LHS = fn(v.LHS)
			v.RHS = fn(v.RHS)
		case *ast.Generate:
			rewriteText(v.Items, fn)
		}
	}
}
