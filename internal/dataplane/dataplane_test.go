package dataplane

import (
	"context"
	"math/big"
	"testing"

	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"github.com/specialistvlad/slotjit/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlane_Propagate(t *testing.T) {
	producerDecl := &ast.ModuleDecl{Name: "p", Items: []ast.Item{
		&ast.Decl{Kind: ast.Output, Name: "out", Width: 8, VID: 5},
	}}
	consumerDecl := &ast.ModuleDecl{Name: "c", Items: []ast.Item{
		&ast.Decl{Kind: ast.Input, Name: "in", Width: 8, VID: 5},
	}}
	producer := engine.New("root.p", producerDecl, engine.NewSoftware(producerDecl))
	consumer := engine.New("root.c", consumerDecl, engine.NewSoftware(consumerDecl))

	p := New()
	p.RegisterID(5)
	p.RegisterWriter(producer, 5)
	p.RegisterWriter(producer, 5)
	p.RegisterReader(consumer, 5)
	w, r := p.Counts(5)
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, r)

	producer.WriteVar(5, big.NewInt(99))
	p.Propagate(ctxlog.Discard(context.Background()))

	v, ok := consumer.Input().Get("in")
	require.True(t, ok)
	assert.Equal(t, int64(99), v.Int64())

	p.Unregister(producer)
	w, _ = p.Counts(5)
	assert.Zero(t, w)
	assert.Equal(t, []uint32{5}, p.IDs())
}
