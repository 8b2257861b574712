package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx() context.Context {
	return ctxlog.Discard(context.Background())
}

const twoApps = `
module M0(); endmodule
module M2(); endmodule
module program_logic();
  generate
    if (app_num == 0) begin M0 m(); end
    if (app_num == 2) begin M2 m(); end
  endgenerate
endmodule
`

func TestNumApps(t *testing.T) {
	tests := []struct {
		text string
		want int
		err  string
	}{
		{text: "if (app_num == 0)", want: 1},
		{text: twoApps, want: 4},
		{text: "app_num == 4 app_num == 1", want: 8},
		{text: "app_num == 31", want: 32},
		{text: "module M0(); endmodule", err: "no application slots"},
		{text: "app_num == 32", err: "exceed"},
	}
	for _, tt := range tests {
		got, err := NumApps(tt.text)
		if tt.err != "" {
			require.ErrorIs(t, err, ErrBuild)
			assert.ErrorContains(t, err, tt.err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestSimulated_DeterministicArtifacts(t *testing.T) {
	s := Simulated{}
	a, err := s.Build(testCtx(), "text")
	require.NoError(t, err)
	b, err := s.Build(testCtx(), "text")
	require.NoError(t, err)
	c, err := s.Build(testCtx(), "other")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a.AGFI, "agfi-"))
}

func TestSimulated_FailAndCancel(t *testing.T) {
	s := Simulated{Fail: func(text string) bool { return strings.Contains(text, "bad") }}
	_, err := s.Build(testCtx(), "bad design")
	require.ErrorIs(t, err, ErrBuild)

	slow := Simulated{Delay: time.Hour}
	ctx, cancel := context.WithCancel(testCtx())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = slow.Build(ctx, "text")
	require.ErrorIs(t, err, context.Canceled)
}

func TestScript_WritesDesignAndReadsIDs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "build")
	template := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(template, "compile.sh"), []byte("#!/bin/sh\n"), 0o755))

	s := Script{
		Dir:      dir,
		Template: template,
		Command:  "sh",
		Args: []string{"-c", `test -f compile.sh && grep -q "NUM_APPS = 4;" design/UserParams.sv &&
mkdir -p build/scripts && echo agfi-123 > build/scripts/agfi.txt && echo afi-456 > build/scripts/afi.txt`},
	}
	art, err := s.Build(testCtx(), twoApps)
	require.NoError(t, err)
	assert.Equal(t, "agfi-123", art.AGFI)
	assert.Equal(t, "afi-456", art.AFI)

	logic, err := os.ReadFile(filepath.Join(dir, "design", "program_logic.v"))
	require.NoError(t, err)
	assert.Equal(t, twoApps+"\n", string(logic))
}

func TestScript_CommandFailure(t *testing.T) {
	s := Script{Dir: t.TempDir(), Command: "sh", Args: []string{"-c", "exit 3"}}
	_, err := s.Build(testCtx(), twoApps)
	require.ErrorIs(t, err, ErrBuild)
}

func TestScript_MissingIDs(t *testing.T) {
	s := Script{Dir: t.TempDir(), Command: "true"}
	_, err := s.Build(testCtx(), twoApps)
	require.ErrorIs(t, err, ErrBuild)
	assert.ErrorContains(t, err, "missing image id")
}

func TestScript_Cancel(t *testing.T) {
	s := Script{Dir: t.TempDir(), Command: "sleep", Args: []string{"30"}, Grace: 100 * time.Millisecond}
	ctx, cancel := context.WithCancel(testCtx())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := s.Build(ctx, twoApps)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 10*time.Second)
}
