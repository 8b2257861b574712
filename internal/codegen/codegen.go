// Package codegen turns a simplified module declaration into the text a
// hardware toolchain synthesizes for one slot.
package codegen

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/specialistvlad/slotjit/internal/vartable"
)

// Generator produces synthesizable text for decl bound to slot.
// Implementations must be deterministic: identical inputs yield identical
// text, which is what lets build caches hit across recompiles.
type Generator interface {
	GenerateText(decl *ast.ModuleDecl, slot int, table *vartable.Table) (string, error)
}

// ModuleName is the name of the module emitted for slot.
func ModuleName(slot int) string {
	return fmt.Sprintf("M%d", slot)
}

// Default emits a register-mapped wrapper around the declaration's items.
type Default struct{}

func (Default) GenerateText(decl *ast.ModuleDecl, slot int, table *vartable.Table) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "module %s(\n", ModuleName(slot))
	b.WriteString("  input wire __clk,\n")
	b.WriteString("  input wire __in_read,\n")
	b.WriteString("  input wire[31:0] __in_vid,\n")
	b.WriteString("  input wire[63:0] __in_data,\n")
	b.WriteString("  input wire __in_valid,\n")
	b.WriteString("  output reg[63:0] __out_data,\n")
	b.WriteString("  output reg __out_valid\n")
	b.WriteString(");\n")
	fmt.Fprintf(&b, "  // %s\n", decl.Name)

	for _, e := range table.Entries() {
		fmt.Fprintf(&b, "  localparam %s_ADDR = %d; // %s vid %d, %d word(s)\n", e.Name, e.Base, e.Section, e.VID, e.Words)
	}

	var err error
	ast.Walk(decl.Items, func(it ast.Item) bool {
		err = emit(&b, it)
		return err == nil
	})
	if err != nil {
		return "", fmt.Errorf("generating %s for slot %d: %w", decl.Name, slot, err)
	}

	b.WriteString("  always @(posedge __clk) begin\n")
	b.WriteString("    __out_valid <= __in_valid & __in_read;\n")
	b.WriteString("    case (__in_vid)\n")
	for _, e := range table.Entries() {
		fmt.Fprintf(&b, "      %d: __out_data <= %s;\n", e.Base, e.Name)
	}
	b.WriteString("      default: __out_data <= 64'd0;\n")
	b.WriteString("    endcase\n")
	b.WriteString("  end\n")
	b.WriteString("endmodule\n")
	return b.String(), nil
}

func emit(b *strings.Builder, it ast.Item) error {
	switch v := it.(type) {
	case *ast.Decl:
		kind := "reg"
		if v.Kind == ast.Wire {
			kind = "wire"
		}
		if v.Kind == ast.Param {
			init := "0"
			if v.Init != nil {
				init = v.Init.String()
			}
			fmt.Fprintf(b, "  localparam %s = %s;\n", v.Name, init)
			return nil
		}
		if v.Width > 1 {
			fmt.Fprintf(b, "  %s[%d:0] %s;\n", kind, v.Width-1, v.Name)
		} else {
			fmt.Fprintf(b, "  %s %s;\n", kind, v.Name)
		}
	case *ast.Assign:
		fmt.Fprintf(b, "  assign %s = %s;\n", v.LHS, v.RHS)
	case *ast.Always:
		trig := make([]string, len(v.Triggers))
		for i, t := range v.Triggers {
			trig[i] = t.String()
		}
		fmt.Fprintf(b, "  always @(%s) begin\n", strings.Join(trig, " or "))
		for _, s := range v.Body {
			fmt.Fprintf(b, "    %s\n", s)
		}
		b.WriteString("  end\n")
	case *ast.Initial:
		b.WriteString("  initial begin\n")
		for _, s := range v.Body {
			fmt.Fprintf(b, "    %s\n", s)
		}
		b.WriteString("  end\n")
	case *ast.Generate:
		if !v.Elaborated {
			return fmt.Errorf("unelaborated generate block %q", v.Name)
		}
	case *ast.Instance:
		return fmt.Errorf("instance %q was not isolated", v.Name)
	}
	return nil
}
