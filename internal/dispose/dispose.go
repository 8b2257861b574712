// Package dispose serializes the teardown of retired engines.
package dispose

import (
	"context"
	"sync"

	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"github.com/specialistvlad/slotjit/internal/engine"
)

// Sequencer runs engine teardown one at a time. A runtime owns exactly one and
// hands it to every component that retires engines.
type Sequencer struct {
	mu       sync.Mutex
	disposed int
}

// New returns a Sequencer.
func New() *Sequencer {
	return &Sequencer{}
}

// Dispose closes e. A nil engine is ignored.
func (s *Sequencer) Dispose(ctx context.Context, e *engine.Engine) {
	if e == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := e.Close(); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to close retired engine.", "module", e.ID(), "error", err)
	}
	s.disposed++
}

// Do runs fn while holding the sequencer.
func (s *Sequencer) Do(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Disposed returns the number of engines disposed so far.
func (s *Sequencer) Disposed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}
