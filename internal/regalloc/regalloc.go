// Package regalloc implements the two-class (integer/float) virtual-stack
// register allocator shared by the fast x86-64 and RISC-V64 backends. It
// mirrors a JIT compiler's value-location stack (a slot per logical stack
// value, a used/free register set, a high water mark) but is driven by
// push/pop instead of by a Wasm operator switch, and it emits an explicit
// command list for every spill/reload/move it decides on rather than
// mutating an assembler directly, so a backend can batch-apply the commands
// through its own Writer.
package regalloc

import (
	"errors"
	"fmt"
)

// ErrRegAllocExhausted is returned when no free physical register and no
// further spill slot can satisfy a Push: the caller sized scratch smaller
// than ControlDepth + the operand stack's max depth.
var ErrRegAllocExhausted = errors.New("regalloc: exhausted")

// Kind selects which register file an allocation request draws from.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Frame is one slot in a class's virtual register stack: either the
// physical register a value currently lives in, or its location in the
// spill area once evicted.
type Frame struct {
	Reg       int
	Spilled   bool
	SpillSlot int
}

// CmdKind discriminates the actions RegAlloc can ask a backend to emit.
type CmdKind int

const (
	CmdSpill CmdKind = iota
	CmdReload
	CmdMove
)

// Cmd is one register-management action a backend must lower to real
// instructions before consuming the register or label the Cmd was produced
// alongside. Reg/SpillSlot are populated according to Kind: Spill and
// Reload use both Reg and SpillSlot; Move uses Reg (source) and Dst.
type Cmd struct {
	Kind      CmdKind
	Class     Kind
	Reg       int
	Dst       int
	SpillSlot int
}

func (c Cmd) String() string {
	switch c.Kind {
	case CmdSpill:
		return fmt.Sprintf("spill %s r%d -> slot%d", c.Class, c.Reg, c.SpillSlot)
	case CmdReload:
		return fmt.Sprintf("reload %s slot%d -> r%d", c.Class, c.SpillSlot, c.Reg)
	case CmdMove:
		return fmt.Sprintf("move %s r%d -> r%d", c.Class, c.Reg, c.Dst)
	default:
		return "unknown regalloc cmd"
	}
}

// Registers names the physical register file available to one class: the
// registers RegAlloc may freely allocate, in preference order.
type Registers struct {
	Int   []int
	Float []int
}

func (r Registers) forClass(k Kind) []int {
	if k == KindFloat {
		return r.Float
	}
	return r.Int
}

// classState tracks one class's virtual stack: which of the class's
// physical registers currently holds the value at each virtual depth, which
// registers are free, and the spill area's high-water mark.
type classState struct {
	regs       []int
	stack      []Frame // stack[i] is the Frame for virtual depth i (0 = oldest)
	used       map[int]bool
	nextSpill  int
	freeSpills []int
}

func newClassState(regs []int) *classState {
	return &classState{regs: regs, used: make(map[int]bool, len(regs))}
}

func (c *classState) freeReg() (int, bool) {
	for _, r := range c.regs {
		if !c.used[r] {
			return r, true
		}
	}
	return 0, false
}

func (c *classState) allocSpillSlot() int {
	if n := len(c.freeSpills); n > 0 {
		s := c.freeSpills[n-1]
		c.freeSpills = c.freeSpills[:n-1]
		return s
	}
	s := c.nextSpill
	c.nextSpill++
	return s
}

// RegAlloc is a per-function, two-class virtual stack register allocator.
// A backend constructs one fresh instance at StartFn (never lazily — see
// DESIGN.md for why the RISC-V64 backend's original "init on first use"
// pattern is wrong) and drives it with Push/Pop/Flush as it walks the
// MachOp stream, applying every returned Cmd before using the register the
// call handed back.
type RegAlloc struct {
	classes [2]*classState
}

// New constructs a RegAlloc over the given physical register files.
func New(regs Registers) *RegAlloc {
	return &RegAlloc{classes: [2]*classState{
		KindInt:   newClassState(regs.Int),
		KindFloat: newClassState(regs.Float),
	}}
}

func (r *RegAlloc) class(k Kind) *classState { return r.classes[k] }

// Push allocates a fresh physical register of class k for a newly produced
// value, spilling the oldest still-live register of that class if none is
// free, and returns the register plus the commands (at most one Spill) the
// backend must emit before using it.
func (r *RegAlloc) Push(k Kind) (reg int, cmds []Cmd, err error) {
	c := r.class(k)
	if reg, ok := c.freeReg(); ok {
		c.used[reg] = true
		c.stack = append(c.stack, Frame{Reg: reg})
		return reg, nil, nil
	}
	// No free physical register: spill the oldest live value in this
	// class's stack (the one least likely to be used again soon) and
	// reuse its register.
	victim := -1
	for i := range c.stack {
		if !c.stack[i].Spilled {
			victim = i
			break
		}
	}
	if victim < 0 {
		return 0, nil, fmt.Errorf("%w: no %s registers left to spill", ErrRegAllocExhausted, k)
	}
	slot := c.allocSpillSlot()
	reg = c.stack[victim].Reg
	cmds = []Cmd{{Kind: CmdSpill, Class: k, Reg: reg, SpillSlot: slot}}
	c.stack[victim].Spilled = true
	c.stack[victim].SpillSlot = slot
	c.stack = append(c.stack, Frame{Reg: reg})
	return reg, cmds, nil
}

// Pop releases the most recently pushed value of class k, returning its
// Frame (reloading it first, if it had been spilled to make room for a
// later push) and the commands the backend must emit before reading it.
func (r *RegAlloc) Pop(k Kind) (Frame, []Cmd) {
	c := r.class(k)
	n := len(c.stack)
	top := c.stack[n-1]
	c.stack = c.stack[:n-1]
	if !top.Spilled {
		c.used[top.Reg] = false
		return top, nil
	}
	reg, ok := c.freeReg()
	var cmds []Cmd
	if !ok {
		// Nothing free even for the reload: steal back our own former
		// register, valid because it no longer holds a live value once
		// this Pop completes.
		reg = top.Reg
	}
	cmds = []Cmd{{Kind: CmdReload, Class: k, Reg: reg, SpillSlot: top.SpillSlot}}
	c.freeSpills = append(c.freeSpills, top.SpillSlot)
	c.used[reg] = false
	return Frame{Reg: reg}, cmds
}

// Flush returns the commands needed to spill every value this RegAlloc
// currently holds live in a register, leaving the RegAlloc's virtual stack
// depths unchanged (it only forces each live Frame to Spilled). Every
// backend must call Flush immediately before any control transfer — branch,
// call, or block/loop/if boundary — since physical registers do not survive
// across labels that other paths can also reach.
func (r *RegAlloc) Flush() []Cmd {
	var cmds []Cmd
	for k := KindInt; k <= KindFloat; k++ {
		c := r.class(k)
		for i := range c.stack {
			if c.stack[i].Spilled {
				continue
			}
			slot := c.allocSpillSlot()
			cmds = append(cmds, Cmd{Kind: CmdSpill, Class: k, Reg: c.stack[i].Reg, SpillSlot: slot})
			c.used[c.stack[i].Reg] = false
			c.stack[i].Spilled = true
			c.stack[i].SpillSlot = slot
		}
	}
	return cmds
}

// Depth reports how many values of class k are currently tracked.
func (r *RegAlloc) Depth(k Kind) int { return len(r.class(k).stack) }

// PushExisting records that reg already holds a freshly computed value of
// class k (e.g. the result of an address computation a backend just emitted
// into a scratch register) as the new top of that class's virtual stack,
// without emitting a load. The backend must still apply the returned
// commands — a prior occupant of reg may need evicting first.
func (r *RegAlloc) PushExisting(k Kind, reg int) []Cmd {
	c := r.class(k)
	var cmds []Cmd
	if c.used[reg] {
		for i := range c.stack {
			if !c.stack[i].Spilled && c.stack[i].Reg == reg {
				slot := c.allocSpillSlot()
				cmds = append(cmds, Cmd{Kind: CmdSpill, Class: k, Reg: reg, SpillSlot: slot})
				c.stack[i].Spilled = true
				c.stack[i].SpillSlot = slot
				break
			}
		}
	}
	c.used[reg] = true
	c.stack = append(c.stack, Frame{Reg: reg})
	return cmds
}

// PushLocal allocates a register for a local's value exactly like Push; the
// backend emits the load from the local slot itself after applying the
// returned commands. No record of which local the register mirrors is kept.
func (r *RegAlloc) PushLocal(k Kind) (reg int, cmds []Cmd, err error) {
	return r.Push(k)
}

// PopLocal releases the top value of class k, mirroring Pop, for the
// common "pop into local" idiom (local.set/local.tee): the caller stores
// the returned Frame's register to the local slot and then this call's
// accounting (register freed) is already reflected.
func (r *RegAlloc) PopLocal(k Kind) (Frame, []Cmd) {
	return r.Pop(k)
}
