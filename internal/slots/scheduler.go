package slots

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/specialistvlad/slotjit/internal/codegen"
	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"github.com/specialistvlad/slotjit/internal/engine"
	"github.com/specialistvlad/slotjit/internal/metrics"
	"github.com/specialistvlad/slotjit/internal/vartable"
)

// Config configures a Scheduler.
type Config struct {
	// Name labels the scheduler in logs and metrics.
	Name string
	// Size is the number of slots. Zero means DefaultSize.
	Size      int
	Generator codegen.Generator
	Metrics   *metrics.Metrics
}

// Scheduler owns the slot table of one hardware target.
type Scheduler struct {
	name    string
	backend Backend
	gen     codegen.Generator
	metrics *metrics.Metrics

	mu       sync.Mutex
	cond     *sync.Cond
	slots    []Slot
	attempts []uint64
	seq      uint64
	// epoch changes whenever the lead or the set of live texts changes. A
	// build started under an older epoch does not describe the table.
	epoch    uint64
	artifact Artifact
}

// New creates a scheduler with every slot FREE.
func New(cfg Config, backend Backend) *Scheduler {
	size := cfg.Size
	if size <= 0 {
		size = DefaultSize
	}
	gen := cfg.Generator
	if gen == nil {
		gen = codegen.Default{}
	}
	s := &Scheduler{
		name:     cfg.Name,
		backend:  backend,
		gen:      gen,
		metrics:  cfg.Metrics,
		slots:    make([]Slot, size),
		attempts: make([]uint64, size),
	}
	s.cond = sync.NewCond(&s.mu)
	for i := range s.slots {
		s.slots[i].Index = i
	}
	s.publishLocked()
	return s
}

// Name returns the scheduler's label.
func (s *Scheduler) Name() string { return s.name }

// Compile binds decl to a free slot and blocks until the composite image
// containing it has been built, or until the attempt is stopped. Cancelling
// ctx stops the attempt as Stop(requester, false) would.
func (s *Scheduler) Compile(ctx context.Context, decl *ast.ModuleDecl, requester engine.ID) (*Logic, error) {
	logger := ctxlog.FromContext(ctx).With("scheduler", s.name, "requester", requester)

	info := ast.NewInfo(decl)
	if info.UsesMixedTriggers() {
		s.metrics.CompileOutcome(s.name, "rejected")
		return nil, fmt.Errorf("%s: %w", decl.Name, ErrMixedTriggers)
	}
	if len(info.ImpliedLatches()) > 0 {
		s.metrics.CompileOutcome(s.name, "rejected")
		return nil, fmt.Errorf("%s: %w", decl.Name, ErrImpliedLatches)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.freeLocked()
	if slot < 0 {
		s.metrics.CompileOutcome(s.name, "rejected")
		return nil, fmt.Errorf("%s: %w", decl.Name, ErrNoSlots)
	}
	logic, err := s.backend.Build(decl, slot)
	if err != nil {
		s.metrics.CompileOutcome(s.name, "rejected")
		return nil, fmt.Errorf("building %s for slot %d: %w: %w", decl.Name, slot, ErrBuildFailed, err)
	}
	table, err := vartable.Build(decl)
	if err != nil {
		s.metrics.CompileOutcome(s.name, "rejected")
		return nil, err
	}
	if n := table.Size(); n != sizeWithoutVolatile(table) {
		logger.Debug("Found volatile variables.", "count", n-sizeWithoutVolatile(table))
	}
	text, err := s.gen.GenerateText(decl, slot, table)
	if err != nil {
		s.metrics.CompileOutcome(s.name, "rejected")
		return nil, fmt.Errorf("%w: %w", ErrBuildFailed, err)
	}
	logic.Table = table

	for i := range s.slots {
		sl := &s.slots[i]
		if sl.State == Compiling {
			sl.State = Waiting
		}
		if sl.Requester == requester && sl.State == Waiting {
			logger.Info("Stopping earlier attempt of requester.", "slot", i)
			sl.State = Stopped
		}
	}
	s.slots[slot] = Slot{Index: slot, Requester: requester, State: Compiling, Text: text}
	s.seq++
	attempt := s.seq
	s.attempts[slot] = attempt
	s.epoch++
	s.changedLocked()
	logger.Debug("Slot acquired as compile lead.", "slot", slot)

	stopOnCancel := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.attempts[slot] == attempt && s.stopSlotLocked(slot) {
			s.changedLocked()
		}
	})
	defer stopOnCancel()

	var buildErr error
	for {
		switch s.slots[slot].State {
		case Compiling:
			composite, epoch := s.compositeLocked(), s.epoch
			s.mu.Unlock()
			art, err := s.backend.CompileText(ctx, composite)
			s.mu.Lock()
			if s.slots[slot].State != Compiling || s.epoch != epoch {
				// Preempted while building, possibly promoted again since.
				// Either way the image does not hold the current table.
				logger.Debug("Discarding stale build.", "slot", slot, "error", err)
				continue
			}
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("Hardware compile failed.", "slot", slot, "error", err)
					buildErr = err
				}
				s.stopLocked(requester, false)
				continue
			}
			s.artifact = art
			s.updateLocked()
		case Waiting:
			s.cond.Wait()
		case Stopped:
			s.slots[slot].State = Free
			s.slots[slot].Text = ""
			s.changedLocked()
			if buildErr != nil {
				s.metrics.CompileOutcome(s.name, "failed")
				return nil, fmt.Errorf("%s in slot %d: %w: %w", decl.Name, slot, ErrBuildFailed, buildErr)
			}
			s.metrics.CompileOutcome(s.name, "stopped")
			logger.Debug("Compilation stopped.", "slot", slot)
			if err := context.Cause(ctx); err != nil {
				return nil, fmt.Errorf("%s in slot %d: %w: %w", decl.Name, slot, ErrStopped, err)
			}
			return nil, fmt.Errorf("%s in slot %d: %w", decl.Name, slot, ErrStopped)
		case Current:
			logic.Artifact = s.artifact
			logic.release = func() { s.release(slot) }
			s.metrics.CompileOutcome(s.name, "current")
			logger.Info("Slot is current.", "slot", slot, "agfi", s.artifact.AGFI)
			return logic, nil
		default:
			return nil, fmt.Errorf("slot %d in unexpected state %s", slot, s.slots[slot].State)
		}
	}
}

func sizeWithoutVolatile(t *vartable.Table) int {
	n := 0
	for _, e := range t.Entries() {
		if e.Section != vartable.Volatile {
			n += e.Words
		}
	}
	return n
}

// freeLocked returns the lowest-index FREE slot, or -1.
func (s *Scheduler) freeLocked() int {
	for i := range s.slots {
		if s.slots[i].State == Free {
			return i
		}
	}
	return -1
}

// release returns a CURRENT slot to the pool.
func (s *Scheduler) release(slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slots[slot].State != Current {
		return
	}
	s.slots[slot].State = Free
	s.slots[slot].Text = ""
	s.changedLocked()
}

// Stop stops every COMPILING or WAITING slot of requester. If the compile
// lead was stopped, the highest-index WAITING slot is promoted in its place.
// force additionally interrupts the build in progress.
func (s *Scheduler) Stop(requester engine.ID, force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(requester, force)
}

func (s *Scheduler) stopLocked(requester engine.ID, force bool) {
	stopped := false
	for i := range s.slots {
		if s.slots[i].Requester == requester && s.stopSlotLocked(i) {
			stopped = true
		}
	}
	if !stopped {
		return
	}
	if force {
		s.backend.AbortCompile()
	}
	s.changedLocked()
}

// stopSlotLocked stops slot if it is COMPILING or WAITING and promotes a new
// lead when it was the lead. It reports whether the slot was stopped.
func (s *Scheduler) stopSlotLocked(slot int) bool {
	switch s.slots[slot].State {
	case Compiling:
		s.slots[slot].State = Stopped
		s.promoteLocked()
		return true
	case Waiting:
		s.slots[slot].State = Stopped
		return true
	}
	return false
}

// promoteLocked makes the most recently queued WAITING slot the lead. Slots
// are scanned from the highest index down, so promotion is LIFO rather than
// FIFO.
func (s *Scheduler) promoteLocked() {
	for i := len(s.slots) - 1; i >= 0; i-- {
		if s.slots[i].State == Waiting {
			s.slots[i].State = Compiling
			s.epoch++
			return
		}
	}
}

// StopAll stops every pending compilation.
func (s *Scheduler) StopAll(force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stopped := false
	for i := range s.slots {
		if st := s.slots[i].State; st == Compiling || st == Waiting {
			s.slots[i].State = Stopped
			stopped = true
		}
	}
	if !stopped {
		return
	}
	if force {
		s.backend.AbortCompile()
	}
	s.changedLocked()
}

// updateLocked makes every slot that took part in a successful build current.
// STOPPED slots stay stopped so that their callers fail.
func (s *Scheduler) updateLocked() {
	for i := range s.slots {
		if st := s.slots[i].State; st == Compiling || st == Waiting {
			s.slots[i].State = Current
		}
	}
	s.changedLocked()
}

func (s *Scheduler) changedLocked() {
	s.publishLocked()
	s.cond.Broadcast()
}

func (s *Scheduler) publishLocked() {
	if s.metrics == nil {
		return
	}
	counts := make(map[string]int, len(stateNames))
	for _, n := range stateNames {
		counts[n] = 0
	}
	for _, sl := range s.slots {
		counts[sl.State.String()]++
	}
	s.metrics.SetSlotStates(s.name, counts)
}

// Snapshot returns a copy of the slot table.
func (s *Scheduler) Snapshot() []Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Slot(nil), s.slots...)
}

// Size returns the number of slots.
func (s *Scheduler) Size() int { return len(s.slots) }

// IsStopped reports whether err means the attempt was abandoned rather than
// failed.
func IsStopped(err error) bool {
	return errors.Is(err, ErrStopped)
}
