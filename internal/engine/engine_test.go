package engine

import (
	"bufio"
	"bytes"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterDecl() *ast.ModuleDecl {
	return &ast.ModuleDecl{Name: "root__c", Items: []ast.Item{
		&ast.Decl{Kind: ast.Input, Name: "clk", Width: 1, VID: 1},
		&ast.Decl{Kind: ast.Reg, Name: "count", Width: 32, Init: big.NewInt(7), VID: 2},
		&ast.Decl{Kind: ast.Output, Name: "out", Width: 32, VID: 3},
	}}
}

func TestRegisterFile_TextRoundTrip(t *testing.T) {
	rf := NewRegisterFile()
	rf.Set("b", big.NewInt(255))
	rf.Set("a", new(big.Int).Lsh(big.NewInt(1), 100))

	var buf bytes.Buffer
	require.NoError(t, rf.Write(&buf))
	assert.Equal(t, "2\na 10000000000000000000000000\nb ff\n", buf.String())

	got, err := ReadRegisterFile(bufio.NewScanner(&buf))
	require.NoError(t, err)
	assert.True(t, rf.Equal(got))
}

func TestReadRegisterFile_Errors(t *testing.T) {
	for name, in := range map[string]string{
		"empty":     "",
		"count":     "x\n",
		"truncated": "2\na 1\n",
		"entry":     "1\na\n",
		"value":     "1\na zz\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadRegisterFile(bufio.NewScanner(strings.NewReader(in)))
			require.Error(t, err)
		})
	}
}

func TestRegisterCore_InitialValues(t *testing.T) {
	c := NewSoftware(counterDecl())
	assert.False(t, c.IsStub())
	assert.Equal(t, []string{"clk"}, c.Input().Names())
	assert.Equal(t, []string{"count"}, c.State().Names())

	v, ok := c.State().Get("count")
	require.True(t, ok)
	assert.Equal(t, int64(7), v.Int64())
}

func TestEngine_ReplaceWithCarriesState(t *testing.T) {
	decl := counterDecl()
	stubCore := NewStub(decl)
	e := New("root.c", decl, stubCore)
	assert.True(t, e.IsStub())

	e.WriteVar(2, big.NewInt(42))
	e.WriteVar(1, big.NewInt(1))

	next := New("root.c", decl, NewSoftware(decl))
	require.NoError(t, e.ReplaceWith(next))

	assert.False(t, e.IsStub())
	assert.True(t, stubCore.Closed())
	assert.Nil(t, next.Core())
	assert.True(t, next.IsStub())

	v, ok := e.ReadVar(2)
	require.True(t, ok)
	assert.Equal(t, int64(42), v.Int64())
	in, _ := e.Input().Get("clk")
	assert.Equal(t, int64(1), in.Int64())
}

type failingCore struct {
	*RegisterCore
}

func (failingCore) Finalize() error { return errors.New("boom") }

func TestEngine_ReplaceWithFinalizeFailureKeepsOld(t *testing.T) {
	decl := counterDecl()
	old := NewSoftware(decl)
	e := New("root.c", decl, old)
	bad := failingCore{NewSoftware(decl)}

	err := e.ReplaceWith(New("root.c", decl, bad))
	require.ErrorContains(t, err, "boom")
	assert.Same(t, old, e.Core())
	assert.False(t, old.Closed())
	assert.True(t, bad.Closed())
}

func TestEngine_CloseIsIdempotent(t *testing.T) {
	c := NewSoftware(counterDecl())
	e := New("root.c", nil, c)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.True(t, c.Closed())
	assert.Equal(t, 0, e.State().Len())
}
