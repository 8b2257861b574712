package buildcache

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/specialistvlad/slotjit/internal/metrics"
	"github.com/specialistvlad/slotjit/internal/slots"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_FindAfterAdd(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	c, err := Open(dir, nil)
	require.NoError(t, err)

	_, ok, err := c.Find("module M0(); endmodule")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Add("module M0(); endmodule", slots.Artifact{AGFI: "agfi-1", AFI: "afi-1"}))
	require.NoError(t, c.Add("module M1(\n); endmodule", slots.Artifact{AGFI: "agfi-2", AFI: "afi-2"}))

	art, ok, err := c.Find("module M1(\n); endmodule")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, slots.Artifact{AGFI: "agfi-2", AFI: "afi-2"}, art)

	_, ok, err = c.Find("module M0();")
	require.NoError(t, err)
	assert.False(t, ok, "a prefix is not a match")
}

func TestCache_PersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, c.Add("text", slots.Artifact{AGFI: "g", AFI: "a"}))

	again, err := Open(dir, nil)
	require.NoError(t, err)
	art, ok, err := again.Find("text")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "g", art.AGFI)
}

func TestCache_FirstEntryWins(t *testing.T) {
	c, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, c.Add("text", slots.Artifact{AGFI: "first"}))
	require.NoError(t, c.Add("text", slots.Artifact{AGFI: "second"}))

	art, _, err := c.Find("text")
	require.NoError(t, err)
	assert.Equal(t, "first", art.AGFI)
}

func TestCache_CorruptEntry(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(c.Path(), []byte("text\x00agfi\x00"), 0o644))

	_, _, err = c.Find("other")
	require.ErrorContains(t, err, "corrupt cache entry")
}

func TestCache_CountsLookups(t *testing.T) {
	m := metrics.New()
	c, err := Open(t.TempDir(), m)
	require.NoError(t, err)
	require.NoError(t, c.Add("text", slots.Artifact{AGFI: "g", AFI: "a"}))

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = c.Find("text")
			_, _, _ = c.Find("missing")
		}()
	}
	wg.Wait()

	want := `
# HELP slotjit_build_cache_lookups_total Build cache lookups by result.
# TYPE slotjit_build_cache_lookups_total counter
slotjit_build_cache_lookups_total{result="hit"} 4
slotjit_build_cache_lookups_total{result="miss"} 4
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry, strings.NewReader(want), "slotjit_build_cache_lookups_total"))
}
