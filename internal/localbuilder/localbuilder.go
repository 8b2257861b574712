// Package localbuilder runs a toolchain in-process as the backend of a slot
// scheduler.
package localbuilder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/specialistvlad/slotjit/internal/buildcache"
	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"github.com/specialistvlad/slotjit/internal/metrics"
	"github.com/specialistvlad/slotjit/internal/slots"
	"github.com/specialistvlad/slotjit/internal/toolchain"
)

var (
	// ErrAborted is the cause of a build cancelled by AbortCompile.
	ErrAborted = errors.New("build aborted")
	// ErrSuperseded is the cause of a build cancelled because a newer one
	// started.
	ErrSuperseded = errors.New("build superseded")
)

// Builder is a slots.Backend. At most one toolchain build is in flight;
// starting another one cancels it.
type Builder struct {
	toolchain toolchain.Toolchain
	cache     *buildcache.Cache
	metrics   *metrics.Metrics

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelCauseFunc
}

// New returns a builder. cache may be nil.
func New(tc toolchain.Toolchain, cache *buildcache.Cache, m *metrics.Metrics) *Builder {
	return &Builder{toolchain: tc, cache: cache, metrics: m}
}

// Build prepares the logic a hardware engine for decl runs on.
func (b *Builder) Build(decl *ast.ModuleDecl, slot int) (*slots.Logic, error) {
	return slots.NewLogic(decl, slot), nil
}

// CompileText returns the image for text, from the cache if possible.
func (b *Builder) CompileText(ctx context.Context, text string) (slots.Artifact, error) {
	logger := ctxlog.FromContext(ctx)

	if b.cache != nil {
		art, ok, err := b.cache.Find(text)
		if err != nil {
			logger.Warn("Build cache lookup failed.", "error", err)
		} else if ok {
			logger.Info("Build cache hit.", "agfi", art.AGFI)
			return art, nil
		}
	}

	bctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	b.mu.Lock()
	if b.cancel != nil {
		logger.Info("Cancelling previous build.")
		b.cancel(ErrSuperseded)
	}
	b.seq++
	seq := b.seq
	b.cancel = cancel
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if b.seq == seq {
			b.cancel = nil
		}
		b.mu.Unlock()
	}()

	start := time.Now()
	art, err := b.toolchain.Build(bctx, text)
	b.metrics.ObserveBuild(time.Since(start))
	if err != nil {
		if cause := context.Cause(bctx); cause != nil && ctx.Err() == nil {
			return slots.Artifact{}, cause
		}
		return slots.Artifact{}, err
	}

	if b.cache != nil {
		if err := b.cache.Add(text, art); err != nil {
			logger.Warn("Failed to record build in cache.", "error", err)
		}
	}
	return art, nil
}

// AbortCompile cancels the build in flight, if any.
func (b *Builder) AbortCompile() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel(ErrAborted)
		b.cancel = nil
	}
}
