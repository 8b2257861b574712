package slots

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/specialistvlad/slotjit/internal/engine"
	"github.com/specialistvlad/slotjit/internal/vartable"
)

var (
	ErrMixedTriggers  = errors.New("mixed edge and level triggers are not supported in hardware")
	ErrImpliedLatches = errors.New("implied latches are not supported in hardware")
	ErrNoSlots        = errors.New("no remaining hardware slots")
	ErrTableOverflow  = vartable.ErrOverflow
	ErrBuildFailed    = errors.New("hardware build failed")
	ErrStopped        = errors.New("compilation stopped")
)

// DefaultSize is the number of slots of one device.
const DefaultSize = 32

// State is the lifecycle state of a slot.
type State int

const (
	Free State = iota
	Compiling
	Waiting
	Stopped
	Current
)

var stateNames = [...]string{"FREE", "COMPILING", "WAITING", "STOPPED", "CURRENT"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state name, so snapshots encode readably.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Slot is one entry of the slot table.
type Slot struct {
	Index     int       `json:"index"`
	Requester engine.ID `json:"requester,omitempty"`
	State     State     `json:"state"`
	Text      string    `json:"-"`
}

// Artifact identifies a built hardware image.
type Artifact struct {
	AGFI string `json:"agfi"`
	AFI  string `json:"afi"`
}

// Logic is a module bound to a slot. Once returned by Compile it must be
// released when its owner discards it, which returns the slot to the pool.
type Logic struct {
	Slot     int
	Decl     *ast.ModuleDecl
	Table    *vartable.Table
	Artifact Artifact

	once    sync.Once
	release func()
}

// NewLogic binds decl to slot.
func NewLogic(decl *ast.ModuleDecl, slot int) *Logic {
	return &Logic{Slot: slot, Decl: decl}
}

// Release returns the slot to the pool. Only the first call has an effect.
func (l *Logic) Release() {
	l.once.Do(func() {
		if l.release != nil {
			l.release()
		}
	})
}

// Backend is what a hardware target provides to the scheduler.
type Backend interface {
	// Build creates the target-specific logic for decl bound to slot.
	Build(decl *ast.ModuleDecl, slot int) (*Logic, error)
	// CompileText builds the composite image. It is called without the
	// scheduler lock held and may take a long time. Implementations keep at
	// most one build in flight, abandoning an older one for a newer one.
	CompileText(ctx context.Context, text string) (Artifact, error)
	// AbortCompile interrupts a build physically in progress, if any.
	AbortCompile()
}
