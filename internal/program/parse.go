package program

import (
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Source is one parsed chunk of program text.
type Source struct {
	Decls []*ast.ModuleDecl
	Items []ast.Item
}

type declBody struct {
	Width    *int      `hcl:"width,optional"`
	Volatile bool      `hcl:"volatile,optional"`
	Latch    bool      `hcl:"latch,optional"`
	Init     cty.Value `hcl:"init,optional"`
}

type instanceBody struct {
	Module  string    `hcl:"module"`
	Inline  bool      `hcl:"inline,optional"`
	Index   *int      `hcl:"index,optional"`
	Params  cty.Value `hcl:"params,optional"`
	Connect cty.Value `hcl:"connect,optional"`
}

type alwaysBody struct {
	Triggers []string `hcl:"triggers"`
	Body     []string `hcl:"body,optional"`
}

type initialBody struct {
	Body []string `hcl:"body,optional"`
}

type assignBody struct {
	LHS string `hcl:"lhs"`
	RHS string `hcl:"rhs"`
}

var declKinds = map[string]ast.DeclKind{
	"input":  ast.Input,
	"output": ast.Output,
	"reg":    ast.Reg,
	"wire":   ast.Wire,
	"param":  ast.Param,
}

// Parse decodes HCL program text into declarations and root items, keeping
// the order in which items appear in the source.
func Parse(src []byte, filename string) (*Source, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, diags)
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("failed to parse %s: unexpected body type %T", filename, file.Body)
	}
	if len(body.Attributes) > 0 {
		for _, attr := range body.Attributes {
			return nil, fmt.Errorf("%s: unexpected top-level attribute %q", attr.SrcRange, attr.Name)
		}
	}

	out := &Source{}
	for _, block := range body.Blocks {
		if block.Type == "module" {
			md, err := parseModule(block)
			if err != nil {
				return nil, err
			}
			out.Decls = append(out.Decls, md)
			continue
		}
		item, err := parseItem(block)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func parseModule(block *hclsyntax.Block) (*ast.ModuleDecl, error) {
	if len(block.Labels) != 1 {
		return nil, fmt.Errorf("%s: module block needs exactly one label", block.DefRange())
	}
	md := &ast.ModuleDecl{Name: block.Labels[0], Attrs: make(ast.Attrs)}
	for name, attr := range block.Body.Attributes {
		switch name {
		case ast.AttrStd, ast.AttrTarget, ast.AttrLoc, ast.AttrDelay, ast.AttrStateSafeInt:
			var v string
			if diags := gohcl.DecodeExpression(attr.Expr, nil, &v); diags.HasErrors() {
				return nil, fmt.Errorf("module %q: %w", md.Name, diags)
			}
			md.Attrs[name] = v
		default:
			return nil, fmt.Errorf("%s: unsupported module attribute %q", attr.SrcRange, name)
		}
	}
	items, err := parseItems(block.Body.Blocks)
	if err != nil {
		return nil, fmt.Errorf("module %q: %w", md.Name, err)
	}
	md.Items = items
	return md, nil
}

func parseItems(blocks hclsyntax.Blocks) ([]ast.Item, error) {
	items := make([]ast.Item, 0, len(blocks))
	for _, b := range blocks {
		it, err := parseItem(b)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func label(block *hclsyntax.Block) (string, error) {
	if len(block.Labels) != 1 {
		return "", fmt.Errorf("%s: %s block needs exactly one label", block.DefRange(), block.Type)
	}
	return block.Labels[0], nil
}

func parseItem(block *hclsyntax.Block) (ast.Item, error) {
	if kind, ok := declKinds[block.Type]; ok {
		return parseDecl(block, kind)
	}

	switch block.Type {
	case "instance":
		return parseInstance(block)
	case "generate":
		return parseGenerate(block)
	case "always":
		var b alwaysBody
		if diags := gohcl.DecodeBody(block.Body, nil, &b); diags.HasErrors() {
			return nil, diags
		}
		a := &ast.Always{Body: b.Body}
		for _, raw := range b.Triggers {
			tr, err := ast.ParseTrigger(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", block.DefRange(), err)
			}
			a.Triggers = append(a.Triggers, tr)
		}
		return a, nil
	case "initial":
		var b initialBody
		if diags := gohcl.DecodeBody(block.Body, nil, &b); diags.HasErrors() {
			return nil, diags
		}
		return &ast.Initial{Body: b.Body}, nil
	case "assign":
		var b assignBody
		if diags := gohcl.DecodeBody(block.Body, nil, &b); diags.HasErrors() {
			return nil, diags
		}
		return &ast.Assign{LHS: b.LHS, RHS: b.RHS}, nil
	}
	return nil, fmt.Errorf("%s: unsupported block type %q", block.DefRange(), block.Type)
}

func parseDecl(block *hclsyntax.Block, kind ast.DeclKind) (ast.Item, error) {
	name, err := label(block)
	if err != nil {
		return nil, err
	}
	var b declBody
	if diags := gohcl.DecodeBody(block.Body, nil, &b); diags.HasErrors() {
		return nil, diags
	}
	d := &ast.Decl{Kind: kind, Name: name, Width: 1, Volatile: b.Volatile, Latch: b.Latch}
	if b.Width != nil {
		if *b.Width <= 0 {
			return nil, fmt.Errorf("%s: %s %q has non-positive width", block.DefRange(), kind, name)
		}
		d.Width = *b.Width
	}
	if !b.Init.IsNull() {
		v, err := toBigInt(b.Init)
		if err != nil {
			return nil, fmt.Errorf("%s: init of %q: %w", block.DefRange(), name, err)
		}
		d.Init = v
	}
	return d, nil
}

func parseInstance(block *hclsyntax.Block) (ast.Item, error) {
	name, err := label(block)
	if err != nil {
		return nil, err
	}
	var b instanceBody
	if diags := gohcl.DecodeBody(block.Body, nil, &b); diags.HasErrors() {
		return nil, diags
	}
	inst := &ast.Instance{Name: name, Module: b.Module, Inline: b.Inline, Index: -1}
	if b.Index != nil {
		inst.Index = *b.Index
	}
	if !b.Params.IsNull() {
		params, err := convert.Convert(b.Params, cty.Map(cty.Number))
		if err != nil {
			return nil, fmt.Errorf("%s: params of %q: %w", block.DefRange(), name, err)
		}
		inst.Params = make(map[string]*big.Int)
		for k, v := range params.AsValueMap() {
			n, err := toBigInt(v)
			if err != nil {
				return nil, fmt.Errorf("%s: param %q of %q: %w", block.DefRange(), k, name, err)
			}
			inst.Params[k] = n
		}
	}
	if !b.Connect.IsNull() {
		conns, err := convert.Convert(b.Connect, cty.Map(cty.String))
		if err != nil {
			return nil, fmt.Errorf("%s: connect of %q: %w", block.DefRange(), name, err)
		}
		if err := gocty.FromCtyValue(conns, &inst.Connect); err != nil {
			return nil, fmt.Errorf("%s: connect of %q: %w", block.DefRange(), name, err)
		}
	}
	return inst, nil
}

func parseGenerate(block *hclsyntax.Block) (ast.Item, error) {
	name, err := label(block)
	if err != nil {
		return nil, err
	}
	g := &ast.Generate{Name: name, Index: -1}
	for attrName, attr := range block.Body.Attributes {
		var diags hcl.Diagnostics
		switch attrName {
		case "elaborated":
			diags = gohcl.DecodeExpression(attr.Expr, nil, &g.Elaborated)
		case "index":
			diags = gohcl.DecodeExpression(attr.Expr, nil, &g.Index)
		default:
			return nil, fmt.Errorf("%s: unsupported generate attribute %q", attr.SrcRange, attrName)
		}
		if diags.HasErrors() {
			return nil, diags
		}
	}
	items, err := parseItems(block.Body.Blocks)
	if err != nil {
		return nil, fmt.Errorf("generate %q: %w", name, err)
	}
	g.Items = items
	return g, nil
}

func toBigInt(v cty.Value) (*big.Int, error) {
	n, err := convert.Convert(v, cty.Number)
	if err != nil {
		return nil, err
	}
	if !n.IsKnown() || n.IsNull() {
		return nil, fmt.Errorf("value must be a known number")
	}
	i, acc := n.AsBigFloat().Int(nil)
	if acc != big.Exact {
		return nil, fmt.Errorf("value %s is not an integer", n.AsBigFloat().String())
	}
	return i, nil
}
