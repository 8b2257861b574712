package transform

import (
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignUnpack(t *testing.T) {
	md := &ast.ModuleDecl{Items: []ast.Item{
		&ast.Assign{LHS: "{a, b}", RHS: "{x, y}"},
		&ast.Assign{LHS: "{a, b}", RHS: "z"},
	}}
	require.NoError(t, AssignUnpack(md))

	want := []ast.Item{
		&ast.Assign{LHS: "a", RHS: "x"},
		&ast.Assign{LHS: "b", RHS: "y"},
		&ast.Assign{LHS: "{a, b}", RHS: "z"},
	}
	if diff := cmp.Diff(want, md.Items); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestIndexNormalize(t *testing.T) {
	md := &ast.ModuleDecl{Items: []ast.Item{
		&ast.Assign{LHS: "a[ 7 : 0 ]", RHS: "b[ i ]"},
	}}
	require.NoError(t, IndexNormalize(md))
	assert.Equal(t, &ast.Assign{LHS: "a[7:0]", RHS: "b[i]"}, md.Items[0])
}

func TestLoopUnroll(t *testing.T) {
	md := &ast.ModuleDecl{Items: []ast.Item{
		&ast.Generate{Elaborated: true, Items: []ast.Item{
			&ast.Assign{LHS: "a", RHS: "b"},
			&ast.Generate{Elaborated: true, Items: []ast.Item{&ast.Assign{LHS: "c", RHS: "d"}}},
		}},
		&ast.Generate{Items: []ast.Item{&ast.Assign{LHS: "e", RHS: "f"}}},
	}}
	require.NoError(t, LoopUnroll(md))

	want := []ast.Item{&ast.Assign{LHS: "a", RHS: "b"}, &ast.Assign{LHS: "c", RHS: "d"}}
	if diff := cmp.Diff(want, md.Items); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestDeAlias(t *testing.T) {
	md := &ast.ModuleDecl{Items: []ast.Item{
		&ast.Decl{Kind: ast.Input, Name: "in"},
		&ast.Decl{Kind: ast.Wire, Name: "w"},
		&ast.Decl{Kind: ast.Output, Name: "out"},
		&ast.Assign{LHS: "w", RHS: "in"},
		&ast.Assign{LHS: "out", RHS: "w + w"},
	}}
	require.NoError(t, DeAlias(md))

	assert.Len(t, md.Items, 4)
	assert.Equal(t, &ast.Assign{LHS: "out", RHS: "in + in"}, md.Items[3])
}

func TestConstantPropAndDeadCode(t *testing.T) {
	md := &ast.ModuleDecl{Items: []ast.Item{
		&ast.Decl{Kind: ast.Param, Name: "N", Init: big.NewInt(4)},
		&ast.Decl{Kind: ast.Wire, Name: "unused"},
		&ast.Decl{Kind: ast.Wire, Name: "tmp"},
		&ast.Decl{Kind: ast.Output, Name: "out"},
		&ast.Assign{LHS: "unused", RHS: "tmp"},
		&ast.Assign{LHS: "out", RHS: "N + 1"},
	}}
	require.NoError(t, ConstantProp(md))
	require.NoError(t, DeadCodeEliminate(md))

	want := []ast.Item{
		&ast.Decl{Kind: ast.Output, Name: "out"},
		&ast.Assign{LHS: "out", RHS: "4 + 1"},
	}
	if diff := cmp.Diff(want, md.Items); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestEventExpand(t *testing.T) {
	md := &ast.ModuleDecl{Items: []ast.Item{
		&ast.Decl{Kind: ast.Input, Name: "b"},
		&ast.Decl{Kind: ast.Input, Name: "a"},
		&ast.Decl{Kind: ast.Reg, Name: "r"},
		&ast.Always{Triggers: []ast.Trigger{{Signal: "*"}}, Body: []string{"r = a & b & c;"}},
	}}
	require.NoError(t, EventExpand(md))
	assert.Equal(t, []ast.Trigger{{Signal: "a"}, {Signal: "b"}}, md.Items[3].(*ast.Always).Triggers)
}

func TestControlMergeAndBlockFlatten(t *testing.T) {
	clk := []ast.Trigger{{Edge: ast.Posedge, Signal: "clk"}}
	md := &ast.ModuleDecl{Items: []ast.Item{
		&ast.Always{Triggers: clk, Body: []string{"begin", "a <= 1;"}},
		&ast.Always{Triggers: clk, Body: []string{"b <= 2;", "end"}},
		&ast.Initial{Body: []string{" ", ";"}},
	}}
	require.NoError(t, ControlMerge(md))
	require.NoError(t, BlockFlatten(md))

	want := []ast.Item{&ast.Always{Triggers: clk, Body: []string{"a <= 1;", "b <= 2;"}}}
	if diff := cmp.Diff(want, md.Items); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteInitial(t *testing.T) {
	md := &ast.ModuleDecl{Items: []ast.Item{
		&ast.Initial{Body: []string{"x = 1;"}},
		&ast.Generate{Elaborated: true, Items: []ast.Item{&ast.Initial{Body: []string{"y = 1;"}}}},
	}}
	require.NoError(t, DeleteInitial(md))

	require.Len(t, md.Items, 1)
	assert.Empty(t, md.Items[0].(*ast.Generate).Items)
}

func TestLogic_RunsWholeChain(t *testing.T) {
	md := &ast.ModuleDecl{Name: "m", Items: []ast.Item{
		&ast.Decl{Kind: ast.Input, Name: "clk"},
		&ast.Decl{Kind: ast.Reg, Name: "count", Width: 8},
		&ast.Decl{Kind: ast.Output, Name: "out", Width: 8},
		&ast.Generate{Elaborated: true, Items: []ast.Item{&ast.Assign{LHS: "out", RHS: "count"}}},
		&ast.Always{Triggers: []ast.Trigger{{Edge: ast.Posedge, Signal: "clk"}}, Body: []string{"count <= count + 1;"}},
	}}
	require.NoError(t, Logic(md))
	assert.Len(t, md.Items, 5)
	assert.IsType(t, &ast.Assign{}, md.Items[3])
}
