package compiler

import (
	"context"
	"testing"

	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"github.com/specialistvlad/slotjit/internal/hwcore"
	"github.com/specialistvlad/slotjit/internal/slots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type okBackend struct{}

func (okBackend) Build(decl *ast.ModuleDecl, slot int) (*slots.Logic, error) {
	return slots.NewLogic(decl, slot), nil
}

func (okBackend) CompileText(context.Context, string) (slots.Artifact, error) {
	return slots.Artifact{AGFI: "g", AFI: "f"}, nil
}

func (okBackend) AbortCompile() {}

func decl(target string) *ast.ModuleDecl {
	return &ast.ModuleDecl{Name: "m", Attrs: ast.Attrs{ast.AttrTarget: target}, Items: []ast.Item{
		&ast.Decl{Kind: ast.Reg, Name: "r", VID: 1},
	}}
}

func TestCompile_Routes(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	c := New()
	c.Register("sim", slots.New(slots.Config{Name: "sim", Size: 2}, okBackend{}))

	sw, err := c.Compile(ctx, "root.m", decl("sw"))
	require.NoError(t, err)
	assert.False(t, sw.IsStub())

	stub, err := c.Compile(ctx, "root.m", decl("stub"))
	require.NoError(t, err)
	assert.True(t, stub.IsStub())

	hw, err := c.Compile(ctx, "root.m", decl("sim"))
	require.NoError(t, err)
	core, ok := hw.Core().(*hwcore.Core)
	require.True(t, ok)
	assert.Equal(t, 0, core.Slot())

	_, err = c.Compile(ctx, "root.m", decl("nope"))
	require.ErrorContains(t, err, `unknown target "nope"`)

	s, _ := c.Scheduler("sim")
	require.NoError(t, hw.Close())
	assert.Equal(t, slots.Free, s.Snapshot()[0].State)
	assert.Len(t, c.Schedulers(), 1)
}
