package app

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/specialistvlad/slotjit/internal/buildcache"
	"github.com/specialistvlad/slotjit/internal/localbuilder"
	"github.com/specialistvlad/slotjit/internal/remotebuilder"
	"github.com/specialistvlad/slotjit/internal/slots"
	"github.com/specialistvlad/slotjit/internal/toolchain"
)

// newBackend builds the slots.Backend the configuration names and a function
// releasing it.
func (app *App) newBackend(ctx context.Context) (slots.Backend, func(), error) {
	cfg := app.config
	if cfg.Backend == BackendRemote {
		dctx, cancel := context.WithTimeout(ctx, remotebuilder.ConnectTimeout)
		defer cancel()
		b, err := remotebuilder.Dial(dctx, cfg.BuildServer)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	}

	var cache *buildcache.Cache
	if cfg.CacheDir != "" {
		c, err := buildcache.Open(cfg.CacheDir, app.metrics)
		if err != nil {
			return nil, nil, err
		}
		cache = c
	}

	var tc toolchain.Toolchain
	switch cfg.Backend {
	case BackendScript:
		dir := cfg.BuildDir
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "slotjit-build")
		}
		tc = toolchain.Script{
			Dir:      dir,
			Template: filepath.Dir(cfg.BuildScript),
			Command:  "./" + filepath.Base(cfg.BuildScript),
			Grace:    5 * time.Second,
		}
	default:
		tc = toolchain.Simulated{Delay: cfg.BuildDelay}
	}
	return localbuilder.New(tc, cache, app.metrics), func() {}, nil
}
