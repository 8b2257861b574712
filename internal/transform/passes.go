package transform

import (
	"regexp"
	"sort"
	"strings"

	"github.com/specialistvlad/slotjit/internal/ast"
)

// AssignUnpack expands concatenated assignments such as
// "{a, b} = {x, y}" into one assignment per element.
func AssignUnpack(md *ast.ModuleDecl) error {
	md.Items = unpackItems(md.Items)
	return nil
}

func unpackItems(items []ast.Item) []ast.Item {
	out := make([]ast.Item, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case *ast.Assign:
			lhs, lok := splitConcat(v.LHS)
			rhs, rok := splitConcat(v.RHS)
			if !lok || !rok || len(lhs) != len(rhs) {
				out = append(out, v)
				continue
			}
			for i := range lhs {
				out = append(out, &ast.Assign{LHS: lhs[i], RHS: rhs[i]})
			}
		case *ast.Generate:
			v.Items = unpackItems(v.Items)
			out = append(out, v)
		default:
			out = append(out, it)
		}
	}
	return out
}

func splitConcat(s string) ([]string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil, false
	}
	inner := s[1 : len(s)-1]
	if strings.ContainsAny(inner, "{}") {
		return nil, false
	}
	parts := strings.Split(inner, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return nil, false
		}
	}
	return parts, true
}

var bracketExpr = regexp.MustCompile(`\[[^\[\]]*\]`)

// IndexNormalize removes whitespace inside index and range expressions so
// that equivalent selects are spelled identically.
func IndexNormalize(md *ast.ModuleDecl) error {
	rewriteText(md.Items, func(s string) string {
		return bracketExpr.ReplaceAllStringFunc(s, func(b string) string {
			return strings.Join(strings.Fields(b), "")
		})
	})
	return nil
}

// LoopUnroll replaces elaborated generate blocks by their items and drops
// the ones that were never elaborated.
func LoopUnroll(md *ast.ModuleDecl) error {
	md.Items = unrollItems(md.Items)
	return nil
}

func unrollItems(items []ast.Item) []ast.Item {
	out := make([]ast.Item, 0, len(items))
	for _, it := range items {
		g, ok := it.(*ast.Generate)
		if !ok {
			out = append(out, it)
			continue
		}
		if g.Elaborated {
			out = append(out, unrollItems(g.Items)...)
		}
	}
	return out
}

// DeAlias removes wires that are plain copies of another identifier, rewriting
// every use of the wire to the identifier it copies.
func DeAlias(md *ast.ModuleDecl) error {
	for {
		idx, from, to := findAlias(md)
		if idx < 0 {
			return nil
		}
		md.Items = append(md.Items[:idx], md.Items[idx+1:]...)
		rewriteText(md.Items, func(s string) string { return replaceIdent(s, from, to) })
	}
}

func findAlias(md *ast.ModuleDecl) (int, string, string) {
	wires := declsOf(md, func(d *ast.Decl) bool { return d.Kind == ast.Wire })
	for i, it := range md.Items {
		a, ok := it.(*ast.Assign)
		if !ok {
			continue
		}
		lhs, rhs := strings.TrimSpace(a.LHS), strings.TrimSpace(a.RHS)
		if _, isWire := wires[lhs]; !isWire || lhs == rhs {
			continue
		}
		if toks := idents(rhs); len(toks) == 1 && toks[0] == rhs && !isNumber(rhs) {
			return i, lhs, rhs
		}
	}
	return -1, "", ""
}

// ConstantProp substitutes parameter values into every statement.
func ConstantProp(md *ast.ModuleDecl) error {
	for _, it := range md.Items {
		d, ok := it.(*ast.Decl)
		if !ok || d.Kind != ast.Param || d.Init == nil {
			continue
		}
		val := d.Init.String()
		name := d.Name
		rewriteText(md.Items, func(s string) string { return replaceIdent(s, name, val) })
	}
	return nil
}

// EventExpand replaces a "*" sensitivity list with the declared signals the
// block reads.
func EventExpand(md *ast.ModuleDecl) error {
	declared := declsOf(md, func(*ast.Decl) bool { return true })
	for _, it := range md.Items {
		a, ok := it.(*ast.Always)
		if !ok || len(a.Triggers) != 1 || a.Triggers[0].Signal != "*" {
			continue
		}
		seen := make(map[string]bool)
		for _, stmt := range a.Body {
			for _, tok := range idents(readSide(stmt)) {
				if _, ok := declared[tok]; ok {
					seen[tok] = true
				}
			}
		}
		names := make([]string, 0, len(seen))
		for n := range seen {
			names = append(names, n)
		}
		sort.Strings(names)
		a.Triggers = a.Triggers[:0]
		for _, n := range names {
			a.Triggers = append(a.Triggers, ast.Trigger{Edge: ast.Level, Signal: n})
		}
	}
	return nil
}

// readSide returns the right hand side of an assignment statement, or the
// whole statement if it is not one.
func readSide(stmt string) string {
	if i := strings.Index(stmt, "<="); i >= 0 {
		return stmt[i+2:]
	}
	if i := strings.Index(stmt, "="); i >= 0 && !strings.HasPrefix(stmt[i:], "==") {
		return stmt[i+1:]
	}
	return stmt
}

// ControlMerge merges adjacent always blocks with identical sensitivity
// lists into one block.
func ControlMerge(md *ast.ModuleDecl) error {
	out := make([]ast.Item, 0, len(md.Items))
	var prev *ast.Always
	for _, it := range md.Items {
		a, ok := it.(*ast.Always)
		if ok && prev != nil && sameTriggers(prev.Triggers, a.Triggers) {
			prev.Body = append(prev.Body, a.Body...)
			continue
		}
		if ok {
			prev = a
		} else {
			prev = nil
		}
		out = append(out, it)
	}
	md.Items = out
	return nil
}

func sameTriggers(a, b []ast.Trigger) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DeadCodeEliminate drops wires, registers and parameters nothing reads,
// together with the assignments that drive them. Ports are never removed.
func DeadCodeEliminate(md *ast.ModuleDecl) error {
	for {
		used := usedNames(md.Items)
		dead := make(map[string]bool)
		for _, it := range md.Items {
			d, ok := it.(*ast.Decl)
			if !ok || d.Kind == ast.Input || d.Kind == ast.Output {
				continue
			}
			if !used[d.Name] {
				dead[d.Name] = true
			}
		}
		if len(dead) == 0 {
			return nil
		}
		out := md.Items[:0]
		for _, it := range md.Items {
			switch v := it.(type) {
			case *ast.Decl:
				if dead[v.Name] {
					continue
				}
			case *ast.Assign:
				if dead[strings.TrimSpace(v.LHS)] {
					continue
				}
			}
			out = append(out, it)
		}
		md.Items = out
	}
}

// usedNames collects every identifier read by items. The target of a
// continuous assignment does not count as a use.
func usedNames(items []ast.Item) map[string]bool {
	used := make(map[string]bool)
	add := func(s string) {
		for _, tok := range idents(s) {
			used[tok] = true
		}
	}
	ast.Walk(items, func(it ast.Item) bool {
		switch v := it.(type) {
		case *ast.Assign:
			add(v.RHS)
		case *ast.Always:
			for _, s := range v.Body {
				add(s)
			}
			for _, t := range v.Triggers {
				add(t.Signal)
			}
		case *ast.Initial:
			for _, s := range v.Body {
				add(s)
			}
		case *ast.Instance:
			for _, c := range v.Connect {
				add(c)
			}
		}
		return true
	})
	return used
}

// BlockFlatten removes begin/end wrappers and empty statements, and drops
// blocks left without a body.
func BlockFlatten(md *ast.ModuleDecl) error {
	out := md.Items[:0]
	for _, it := range md.Items {
		switch v := it.(type) {
		case *ast.Always:
			v.Body = flattenBody(v.Body)
			if len(v.Body) == 0 {
				continue
			}
		case *ast.Initial:
			v.Body = flattenBody(v.Body)
			if len(v.Body) == 0 {
				continue
			}
		}
		out = append(out, it)
	}
	md.Items = out
	return nil
}

func flattenBody(body []string) []string {
	out := body[:0]
	for _, s := range body {
		s = strings.TrimSpace(s)
		switch s {
		case "", ";", "begin", "end":
			continue
		}
		out = append(out, s)
	}
	return out
}

// DeleteInitial removes every initial block, including those nested in
// generate blocks.
func DeleteInitial(md *ast.ModuleDecl) error {
	md.Items = deleteInitial(md.Items)
	return nil
}

func deleteInitial(items []ast.Item) []ast.Item {
	out := make([]ast.Item, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case *ast.Initial:
			continue
		case *ast.Generate:
			v.Items = deleteInitial(v.Items)
		}
		out = append(out, it)
	}
	return out
}

func declsOf(md *ast.ModuleDecl, keep func(*ast.Decl) bool) map[string]*ast.Decl {
	out := make(map[string]*ast.Decl)
	ast.Walk(md.Items, func(it ast.Item) bool {
		if d, ok := it.(*ast.Decl); ok && keep(d) {
			out[d.Name] = d
		}
		return true
	})
	return out
}

func isNumber(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}
