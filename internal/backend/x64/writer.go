// Package x64 lowers a coalesced MachOp stream into x86-64 code, following
// the dual-stack calling convention described in SPEC_FULL.md's ABI
// section: RSP walks the Wasm value stack, and CTX addresses a small frame
// (locals pointer, control-stack pointer, return-continuation) that every
// xchg-with-memory trick in this package pivots through.
package x64

import "fmt"

// Reg names a register slot in the abstract Writer contract. 0-3 are the
// scratch registers naive lowering round-trips values through; RSP and CTX
// are fixed roles.
type Reg int

const (
	R0 Reg = iota
	R1
	R2
	R3
)

// RSP is the execution-stack pointer; every WASM value on the operand stack
// lives at [RSP], [RSP+8], ... CTX is the frame-pointer register: memory at
// [CTX+0] holds the current locals-frame base, [CTX+8] the control stack's
// top, per the ABI's stack-swap technique (see naive.go's Br/StartBody).
const (
	RSP Reg = 100
	CTX Reg = 255
)

func (r Reg) String() string {
	switch r {
	case RSP:
		return "rsp"
	case CTX:
		return "ctx"
	default:
		return fmt.Sprintf("r%d", int(r))
	}
}

// Label names a jump/call target: either an indexed intra-function label
// (loop heads, if/else/block joins, br_if/br_table fallthroughs) or a
// function entry point.
type Label struct {
	Indexed bool
	Idx     int
	Func    uint32
}

func IndexedLabel(idx int) Label { return Label{Indexed: true, Idx: idx} }
func FuncLabel(fn uint32) Label  { return Label{Func: fn} }

func (l Label) String() string {
	if l.Indexed {
		return fmt.Sprintf("_idx_%d", l.Idx)
	}
	return fmt.Sprintf("f%d", l.Func)
}

// Writer is the capability set the naive and fast x86-64 lowerings drive.
// It mirrors the Rust backend's out::Writer trait: every method name and
// argument shape corresponds 1:1 to a call site in naive.go, so a reviewer
// comparing against the original can match them line for line. mem, where
// present, turns the accompanying register into a memory reference
// `[reg+mem]` rather than a bare register operand.
type Writer interface {
	SetLabel(l Label) error
	Xchg(dst, src Reg, mem *int32) error
	Mov(dst, src Reg, mem *int32) error
	Push(r Reg) error
	Pop(r Reg) error
	Call(r Reg) error
	Jmp(r Reg) error
	Cmp0(r Reg) error
	Cmovz64(r Reg, val uint64) error
	Jz(r Reg) error
	U32(r Reg) error
	Not(r Reg) error
	Lea(dst, src Reg, offset int64, offReg *OffReg) error
	LeaLabel(dst Reg, l Label) error
	Ret() error
	Mov64(r Reg, val uint64) error
	Mul(a, b Reg) error
	Div(a, b Reg) error
	Idiv(a, b Reg) error
	And(a, b Reg) error
	Or(a, b Reg) error
	Eor(a, b Reg) error
	Shl(a, b Reg) error
	Shr(a, b Reg) error
	Sar(a, b Reg) error
}

// OffReg is lea's optional `base + disp + reg*scale` index term.
type OffReg struct {
	Reg   Reg
	Scale uint
}
