// Package hwcore provides the engine core of a module running in a hardware
// slot.
package hwcore

import (
	"github.com/specialistvlad/slotjit/internal/engine"
	"github.com/specialistvlad/slotjit/internal/slots"
)

// Core mirrors the registers of a module loaded into a slot. Closing it
// releases the slot back to its scheduler.
type Core struct {
	*engine.RegisterCore
	logic *slots.Logic
}

// New wraps logic, which must have been returned by a scheduler.
func New(logic *slots.Logic) *Core {
	return &Core{RegisterCore: engine.NewSoftware(logic.Decl), logic: logic}
}

// Logic returns the slot binding.
func (c *Core) Logic() *slots.Logic { return c.logic }

// Slot returns the slot index the module is loaded into.
func (c *Core) Slot() int { return c.logic.Slot }

func (c *Core) Close() error {
	c.logic.Release()
	return c.RegisterCore.Close()
}

var _ engine.Core = (*Core)(nil)
