// Package dataplane connects module engines through global variable ids.
//
// # Purpose
//
// A variable one module drives and another module reads is identified by the
// same global id on both sides. The data plane records, per id, which engines
// write it and which engines read it, and copies values from writers to
// readers when asked to.
//
// # Concurrency Model
//
// Registrations happen on the interpreter loop while propagation may run
// anywhere, so ids are kept in a sync.Map and each id guards its own reader
// and writer sets. Engines are registered by pointer: an Engine keeps its
// identity across hot swaps, so registering it again after a recompile is a
// no-op rather than a duplicate.
package dataplane

import (
	"context"
	"sort"
	"sync"

	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"github.com/specialistvlad/slotjit/internal/engine"
)

type channel struct {
	mu      sync.Mutex
	writers map[*engine.Engine]struct{}
	readers map[*engine.Engine]struct{}
}

// Plane is an in-memory data plane.
type Plane struct {
	ids sync.Map // Key: uint32 global id, Value: *channel
}

// New creates an empty data plane.
func New() *Plane {
	return &Plane{}
}

// RegisterID makes gid known to the plane.
func (p *Plane) RegisterID(gid uint32) {
	p.channel(gid)
}

func (p *Plane) channel(gid uint32) *channel {
	if ch, ok := p.ids.Load(gid); ok {
		return ch.(*channel)
	}
	ch, _ := p.ids.LoadOrStore(gid, &channel{
		writers: make(map[*engine.Engine]struct{}),
		readers: make(map[*engine.Engine]struct{}),
	})
	return ch.(*channel)
}

// RegisterWriter records that e drives gid.
func (p *Plane) RegisterWriter(e *engine.Engine, gid uint32) {
	ch := p.channel(gid)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.writers[e] = struct{}{}
}

// RegisterReader records that e consumes gid.
func (p *Plane) RegisterReader(e *engine.Engine, gid uint32) {
	ch := p.channel(gid)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.readers[e] = struct{}{}
}

// Unregister removes e from every id.
func (p *Plane) Unregister(e *engine.Engine) {
	p.ids.Range(func(_, v any) bool {
		ch := v.(*channel)
		ch.mu.Lock()
		delete(ch.writers, e)
		delete(ch.readers, e)
		ch.mu.Unlock()
		return true
	})
}

// Counts returns the number of writers and readers registered for gid.
func (p *Plane) Counts(gid uint32) (writers, readers int) {
	v, ok := p.ids.Load(gid)
	if !ok {
		return 0, 0
	}
	ch := v.(*channel)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.writers), len(ch.readers)
}

// IDs returns every registered id in ascending order.
func (p *Plane) IDs() []uint32 {
	var out []uint32
	p.ids.Range(func(k, _ any) bool {
		out = append(out, k.(uint32))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Propagate copies the current value of every id from its writer to its
// readers. Ids with more than one writer take the value of the writer that
// reports it last; that is a program error the plane only logs.
func (p *Plane) Propagate(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	for _, gid := range p.IDs() {
		v, _ := p.ids.Load(gid)
		ch := v.(*channel)
		ch.mu.Lock()
		if len(ch.writers) > 1 {
			logger.Warn("Variable has multiple drivers.", "gid", gid, "writers", len(ch.writers))
		}
		for w := range ch.writers {
			val, ok := w.ReadVar(gid)
			if !ok {
				continue
			}
			for r := range ch.readers {
				r.WriteVar(gid, val)
			}
		}
		ch.mu.Unlock()
	}
}
