package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/specialistvlad/slotjit/internal/slots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const counterProgram = `
module "Counter" {
  target = "sw;sim"
  loc    = "local;local"
  input "clk" {}
  reg "count" { width = 8 }
  always {
    triggers = ["posedge clk"]
    body     = ["count <= count + 1;"]
  }
}
instance "c" { module = "Counter" }
`

func writeProgram(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func TestRun_CompilesProgramAndSaves(t *testing.T) {
	savePath := filepath.Join(t.TempDir(), "state.sav")
	cfg, err := NewConfig(Config{
		ProgramPath: writeProgram(t, counterProgram),
		Slots:       4,
		Backend:     BackendSim,
		CacheDir:    t.TempDir(),
		SavePath:    savePath,
	})
	require.NoError(t, err)
	a, logs := SetupAppTest(t, cfg)

	require.NoError(t, a.Run(context.Background()))

	saved, err := os.ReadFile(savePath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(saved), "2\nMODULE:\nroot\n"), string(saved))
	assert.Contains(t, logs.String(), "Program compiled.")

	// Close released every slot the program held.
	for _, s := range a.Scheduler().Snapshot() {
		assert.Equal(t, slots.Free, s.State)
	}
}

func TestRun_RestartRoundTrip(t *testing.T) {
	dir := t.TempDir()
	program := writeProgram(t, counterProgram)
	savePath := filepath.Join(dir, "state.sav")
	require.NoError(t, os.WriteFile(savePath, []byte("1\nMODULE:\nroot.c\nINPUT:\n0\nSTATE:\n1\ncount 2a\n"), 0o600))

	cfg, err := NewConfig(Config{
		ProgramPath: program,
		Slots:       4,
		Backend:     BackendSim,
		RestartPath: savePath,
		SavePath:    filepath.Join(dir, "out.sav"),
	})
	require.NoError(t, err)
	a, _ := SetupAppTest(t, cfg)
	require.NoError(t, a.Run(context.Background()))

	out, err := os.ReadFile(filepath.Join(dir, "out.sav"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "MODULE:\nroot.c\n")
	assert.Contains(t, string(out), "count 2a\n")
}

func TestRun_Retarget(t *testing.T) {
	dir := t.TempDir()
	march := filepath.Join(dir, "sw.hcl")
	require.NoError(t, os.WriteFile(march, []byte(`
module "logic" {
  std    = "logic"
  target = "sw"
  loc    = "local"
}
`), 0o600))

	cfg, err := NewConfig(Config{
		ProgramPath: writeProgram(t, counterProgram),
		Slots:       4,
		Backend:     BackendSim,
		MarchPath:   march,
	})
	require.NoError(t, err)
	a, logs := SetupAppTest(t, cfg)
	require.NoError(t, a.Run(context.Background()))
	assert.Contains(t, logs.String(), "Retargeted program.")

	require.NoError(t, os.WriteFile(march, []byte(`module "sw" { std = "software" }`), 0o600))
	a, _ = SetupAppTest(t, cfg)
	err = a.Run(context.Background())
	require.ErrorContains(t, err, "retarget failed")
	assert.ErrorContains(t, err, `std "logic"`)
}

func TestRun_FatalCompilationFails(t *testing.T) {
	cfg, err := NewConfig(Config{
		ProgramPath: writeProgram(t, `
module "Hard" {
  target = "sim"
  reg "r" {}
}
instance "h" { module = "Hard" }
`),
		Slots:   4,
		Backend: BackendSim,
	})
	require.NoError(t, err)
	a, _ := SetupAppTest(t, cfg)

	err = a.Run(context.Background())
	require.ErrorContains(t, err, "evaluation failed")
}

func TestHandler_Endpoints(t *testing.T) {
	cfg, err := NewConfig(Config{ProgramPath: "unused.hcl", Slots: 2, Backend: BackendSim})
	require.NoError(t, err)
	a, _ := SetupAppTest(t, cfg)
	ts := httptest.NewServer(a.Handler())
	defer ts.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK\n", body)

	code, body = get("/slots")
	require.Equal(t, http.StatusOK, code)
	var table map[string][]map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &table))
	require.Len(t, table[DefaultTarget], 2)
	assert.Equal(t, "FREE", table[DefaultTarget][0]["state"])

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "slotjit_slots")
}

func TestRun_ReportsCompilationsInMetrics(t *testing.T) {
	cfg, err := NewConfig(Config{ProgramPath: writeProgram(t, counterProgram), Slots: 4, Backend: BackendSim})
	require.NoError(t, err)
	a, _ := SetupAppTest(t, cfg)
	require.NoError(t, a.Run(context.Background()))

	ts := httptest.NewServer(a.Handler())
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `slotjit_slot_compiles_total{outcome="current",scheduler="sim"} 1`)
	assert.Contains(t, string(body), `slotjit_slots{scheduler="sim",state="FREE"} 4`)
}

func TestNewApp_PanicsOnUnreachableBuildServer(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	cfg, err := NewConfig(Config{ProgramPath: "x.hcl", Slots: 1, Backend: BackendRemote, BuildServer: url})
	require.NoError(t, err)
	assert.Panics(t, func() { SetupAppTest(t, cfg) })
}
