package remotebuilder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/specialistvlad/slotjit/internal/buildproto"
	"github.com/specialistvlad/slotjit/internal/buildserver"
	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"github.com/specialistvlad/slotjit/internal/localbuilder"
	"github.com/specialistvlad/slotjit/internal/slots"
	"github.com/specialistvlad/slotjit/internal/toolchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx() context.Context {
	return ctxlog.Discard(context.Background())
}

func startServer(t *testing.T, tc toolchain.Toolchain) string {
	t.Helper()
	srv := buildserver.New(testCtx(), localbuilder.New(tc, nil, nil))
	mux := http.NewServeMux()
	mux.Handle(buildproto.DefaultPath, srv.Handler())
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return ts.URL
}

func dial(t *testing.T, url string) *Builder {
	t.Helper()
	ctx, cancel := context.WithTimeout(testCtx(), 10*time.Second)
	defer cancel()
	b, err := Dial(ctx, url)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

func TestCompileText_RoundTrip(t *testing.T) {
	b := dial(t, startServer(t, toolchain.Simulated{}))

	want, err := toolchain.Simulated{}.Build(testCtx(), "design")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(testCtx(), 10*time.Second)
	defer cancel()
	got, err := b.CompileText(ctx, "design")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCompileText_RemoteFailure(t *testing.T) {
	tc := toolchain.Simulated{Fail: func(text string) bool { return strings.Contains(text, "bad") }}
	b := dial(t, startServer(t, tc))

	ctx, cancel := context.WithTimeout(testCtx(), 10*time.Second)
	defer cancel()
	_, err := b.CompileText(ctx, "bad design")
	require.ErrorIs(t, err, ErrRemote)
	assert.ErrorContains(t, err, "simulated failure")
}

func TestAbortCompile_FailsBuildInFlight(t *testing.T) {
	b := dial(t, startServer(t, toolchain.Simulated{Delay: time.Hour}))

	errs := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(testCtx(), 20*time.Second)
		defer cancel()
		_, err := b.CompileText(ctx, "design")
		errs <- err
	}()

	// Keep aborting until the request has reached the server.
	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case err := <-errs:
			require.ErrorIs(t, err, ErrRemote)
			assert.ErrorContains(t, err, localbuilder.ErrAborted.Error())
			return
		case <-tick.C:
			b.AbortCompile()
		case <-deadline:
			t.Fatal("build was never aborted")
		}
	}
}

func TestBuilder_DrivesScheduler(t *testing.T) {
	b := dial(t, startServer(t, toolchain.Simulated{}))
	s := slots.New(slots.Config{Name: "remote", Size: 2}, b)

	decl := &ast.ModuleDecl{Name: "Leaf", Items: []ast.Item{
		&ast.Decl{Kind: ast.Input, Name: "in", Width: 1, VID: 1},
		&ast.Decl{Kind: ast.Reg, Name: "r", Width: 4, VID: 2},
	}}
	ctx, cancel := context.WithTimeout(testCtx(), 10*time.Second)
	defer cancel()
	logic, err := s.Compile(ctx, decl, "root.leaf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(logic.Artifact.AGFI, "agfi-"))
	logic.Release()
}

func TestDial_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	ctx, cancel := context.WithTimeout(testCtx(), 5*time.Second)
	defer cancel()
	_, err := Dial(ctx, url)
	require.Error(t, err)
}
