package riscv64

import (
	"errors"
	"fmt"

	"github.com/wasm-blitz/blitzc/internal/ops"
	"github.com/wasm-blitz/blitzc/internal/regalloc"
	"github.com/wasm-blitz/blitzc/internal/wasm"
)

// ErrUnbalancedControl is returned when Else is reached with no matching If
// on the control stack.
var ErrUnbalancedControl = errors.New("riscv64: unbalanced control flow")

// ErrUnsupportedOperator mirrors wasm.OpUnsupported: an operator this
// backend has no lowering for surfaces this instead of silently emitting
// nothing for it.
var ErrUnsupportedOperator = errors.New("riscv64: unsupported operator")

// Registers is the set of general-purpose registers this lowering's
// RegAlloc may allocate: x5-x7, x9 and x11-x17, which leaves out the fixed
// roles (zero, ra, sp, fp) and T0 (x10), the scratch register Return uses
// to restore fp.
// There are no float registers yet, since this lowering does not cover the
// F/D extension operators.
var Registers = regalloc.Registers{
	Int:   []int{5, 6, 7, 9, 11, 12, 13, 14, 15, 16, 17},
	Float: nil,
}

type endableKind int

const (
	endableBlock endableKind = iota
	endableLoop
	endableIf
)

type endable struct {
	kind endableKind
	idx  int
}

// State is the naive lowering's per-function mutable state.
type State struct {
	LocalCount int
	NumReturns int
	labelIndex int
	ifStack    []endable
}

// Naive lowers a coalesced MachOp stream to RISC-V64 text. Every value the
// Wasm operand stack holds lives in a register managed by a RegAlloc,
// spilled to the native stack (via SP push/pop) under register pressure —
// the same discipline the fast x86-64 lowering uses, chosen here because
// the reference RISC-V lowering this package is grounded on already drives
// an equivalent register allocator for its arithmetic and local operators
// rather than keeping every value in memory.
type Naive struct {
	w       Writer
	imports []wasm.Import
}

// NewNaive constructs a naive RISC-V64 lowering writing through w. imports
// is the module's import list, consulted to recognize hypercall stubs at
// Call.
func NewNaive(w Writer, imports []wasm.Import) *Naive {
	return &Naive{w: w, imports: imports}
}

// Lower drains src, a single function's MachOp stream, emitting RISC-V64
// text through n's Writer. A fresh RegAlloc is constructed here, once per
// function: the reference lowering this package is grounded on instead
// re-initializes its allocator lazily inside nearly every operator's match
// arm, which silently discards every register still live whenever that
// arm fires first — Push/StartFn is the only correct place to do it.
func (n *Naive) Lower(src ops.Stream[ops.WasmInfo]) error {
	st := &State{}
	ra := regalloc.New(Registers)
	l := &lowering{n: n, st: st, ra: ra}
	for {
		op, err := src.Next()
		if err != nil {
			return err
		}
		if err := l.handle(op); err != nil {
			return err
		}
		if op.Kind == ops.KindEndBody {
			return nil
		}
	}
}

// lowering bundles one function's worth of state with the RegAlloc driving
// it, so handleOp's many methods don't need to thread both through every
// call.
type lowering struct {
	n  *Naive
	st *State
	ra *regalloc.RegAlloc
}

func (l *lowering) emit(cmds []regalloc.Cmd) error {
	w := l.n.w
	for _, c := range cmds {
		switch c.Kind {
		case regalloc.CmdSpill:
			if err := w.Addi(SP, SP, -8); err != nil {
				return err
			}
			if err := w.Sd(Reg(c.Reg), SP, 0); err != nil {
				return err
			}
		case regalloc.CmdReload:
			if err := w.Ld(Reg(c.Reg), SP, 0); err != nil {
				return err
			}
			if err := w.Addi(SP, SP, 8); err != nil {
				return err
			}
		case regalloc.CmdMove:
			if err := w.Mv(Reg(c.Dst), Reg(c.Reg)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *lowering) flush() error { return l.emit(l.ra.Flush()) }

func (l *lowering) localDisp(idx uint32) int32 { return -(int32(idx) + 1) * 8 }

func (l *lowering) handle(op ops.MachOp[ops.WasmInfo]) error {
	w := l.n.w
	st := l.st
	switch op.Kind {
	case ops.KindStartFn:
		st.LocalCount = op.Data.NumParams
		st.NumReturns = op.Data.NumReturns
		if err := w.SetLabel(FuncLabel(op.FnID)); err != nil {
			return err
		}
		if err := w.Addi(SP, SP, -8); err != nil {
			return err
		}
		if err := w.Sd(FP, SP, 0); err != nil {
			return err
		}
		if err := w.Mv(FP, SP); err != nil {
			return err
		}
		if op.Data.NumParams > 0 {
			return w.Addi(SP, SP, -int32(op.Data.NumParams)*8)
		}
		return nil

	case ops.KindLocal:
		for i := uint32(0); i < op.LocalCount; i++ {
			if err := w.Addi(SP, SP, -8); err != nil {
				return err
			}
			if err := w.Sd(Zero, SP, 0); err != nil {
				return err
			}
			st.LocalCount++
		}
		return nil

	case ops.KindStartBody, ops.KindEndBody:
		return nil

	case ops.KindOperator:
		if op.Op == nil {
			return nil
		}
		return l.handleOp(*op.Op)

	default:
		return fmt.Errorf("riscv64: unsupported MachOp kind %s", op.Kind)
	}
}

func (l *lowering) br(relativeDepth uint32) error {
	if err := l.flush(); err != nil {
		return err
	}
	depth := relativeDepth
	for i := len(l.st.ifStack) - 1; i >= 0; i-- {
		e := l.st.ifStack[i]
		if e.kind == endableIf {
			continue
		}
		if depth != 0 {
			depth--
			continue
		}
		return l.n.w.JalLabel(Zero, IndexedLabel(e.idx))
	}
	return nil
}

// hcall lowers a call to a "blitz"/hypercallN import: the host function
// pointer is the call's last argument on the operand stack, so it pops
// straight into a register and dispatches through RISC-V's native
// indirect-call instruction — no CTX-style pivot is needed the way the
// x86-64 backends need one, since RISC-V64 already has enough
// general-purpose registers to hold the target directly.
func (l *lowering) hcall() error {
	target, cmds := l.ra.Pop(regalloc.KindInt)
	if err := l.emit(cmds); err != nil {
		return err
	}
	return l.n.w.Jalr(RA, Reg(target.Reg), 0)
}

type cmpSpec struct {
	cc   ConditionCode
	swap bool
}

var cmpTable = map[wasm.OpKind]cmpSpec{
	wasm.OpI32Eq: {CondEQ, false}, wasm.OpI64Eq: {CondEQ, false},
	wasm.OpI32Ne: {CondNE, false}, wasm.OpI64Ne: {CondNE, false},
	wasm.OpI32LtS: {CondLT, false}, wasm.OpI64LtS: {CondLT, false},
	wasm.OpI32LtU: {CondLTU, false}, wasm.OpI64LtU: {CondLTU, false},
	wasm.OpI32GtS: {CondLT, true}, wasm.OpI64GtS: {CondLT, true},
	wasm.OpI32GtU: {CondLTU, true}, wasm.OpI64GtU: {CondLTU, true},
	wasm.OpI32LeS: {CondGE, true}, wasm.OpI64LeS: {CondGE, true},
	wasm.OpI32LeU: {CondGEU, true}, wasm.OpI64LeU: {CondGEU, true},
	wasm.OpI32GeS: {CondGE, false}, wasm.OpI64GeS: {CondGE, false},
	wasm.OpI32GeU: {CondGEU, false}, wasm.OpI64GeU: {CondGEU, false},
}

// cmp materializes a 0/1 result for the comparison cc(a,b) (or cc(b,a) when
// swap is set) using the two-label idiom the reference compare operators
// use: branch to a "true" label, fall through to the false case.
func (l *lowering) cmp(cc ConditionCode, a, b Reg, swap bool) error {
	w := l.n.w
	dest, cmds, err := l.ra.Push(regalloc.KindInt)
	if err != nil {
		return err
	}
	if err := l.emit(cmds); err != nil {
		return err
	}
	i := l.st.labelIndex
	l.st.labelIndex += 2
	lblTrue := IndexedLabel(i)
	lblEnd := IndexedLabel(i + 1)
	if swap {
		a, b = b, a
	}
	if err := w.BcondLabel(cc, a, b, lblTrue); err != nil {
		return err
	}
	if err := w.Li(Reg(dest), 0); err != nil {
		return err
	}
	if err := w.JalLabel(Zero, lblEnd); err != nil {
		return err
	}
	if err := w.SetLabel(lblTrue); err != nil {
		return err
	}
	if err := w.Li(Reg(dest), 1); err != nil {
		return err
	}
	return w.SetLabel(lblEnd)
}

func (l *lowering) binop(f func(dst, a, b Reg) error) error {
	tb, cb := l.ra.Pop(regalloc.KindInt)
	if err := l.emit(cb); err != nil {
		return err
	}
	ta, ca := l.ra.Pop(regalloc.KindInt)
	if err := l.emit(ca); err != nil {
		return err
	}
	a, b := Reg(ta.Reg), Reg(tb.Reg)
	if err := f(a, a, b); err != nil {
		return err
	}
	return l.emit(l.ra.PushExisting(regalloc.KindInt, ta.Reg))
}

// shiftop pops the shift amount first, then the value shifted, matching
// the operand order Wasm's stack leaves them in.
func (l *lowering) shiftop(f func(dst, a, b Reg) error) error {
	tsh, csh := l.ra.Pop(regalloc.KindInt)
	if err := l.emit(csh); err != nil {
		return err
	}
	tsrc, csrc := l.ra.Pop(regalloc.KindInt)
	if err := l.emit(csrc); err != nil {
		return err
	}
	src, sh := Reg(tsrc.Reg), Reg(tsh.Reg)
	if err := f(src, src, sh); err != nil {
		return err
	}
	return l.emit(l.ra.PushExisting(regalloc.KindInt, tsrc.Reg))
}

func (l *lowering) handleOp(op wasm.Operator) error {
	w := l.n.w

	if spec, ok := cmpTable[op.Kind]; ok {
		tb, cb := l.ra.Pop(regalloc.KindInt)
		if err := l.emit(cb); err != nil {
			return err
		}
		ta, ca := l.ra.Pop(regalloc.KindInt)
		if err := l.emit(ca); err != nil {
			return err
		}
		return l.cmp(spec.cc, Reg(ta.Reg), Reg(tb.Reg), spec.swap)
	}

	switch op.Kind {
	case wasm.OpI32Const:
		reg, cmds, err := l.ra.Push(regalloc.KindInt)
		if err != nil {
			return err
		}
		if err := l.emit(cmds); err != nil {
			return err
		}
		return w.Li(Reg(reg), int64(op.I32))

	case wasm.OpI64Const:
		reg, cmds, err := l.ra.Push(regalloc.KindInt)
		if err != nil {
			return err
		}
		if err := l.emit(cmds); err != nil {
			return err
		}
		return w.Li(Reg(reg), op.I64)

	case wasm.OpI32Add, wasm.OpI64Add:
		return l.binop(w.Add)
	case wasm.OpI32Sub, wasm.OpI64Sub:
		return l.binop(w.Sub)
	case wasm.OpI32Mul, wasm.OpI64Mul:
		return l.binop(w.Mul)
	case wasm.OpI32And, wasm.OpI64And:
		return l.binop(w.And)
	case wasm.OpI32Or, wasm.OpI64Or:
		return l.binop(w.Or)
	case wasm.OpI32Xor, wasm.OpI64Xor:
		return l.binop(w.Xor)
	case wasm.OpI32DivU, wasm.OpI64DivU:
		return l.binop(w.DivU)
	case wasm.OpI32DivS, wasm.OpI64DivS:
		return l.binop(w.DivS)
	case wasm.OpI32RemU, wasm.OpI64RemU:
		return l.binop(w.RemU)
	case wasm.OpI32RemS, wasm.OpI64RemS:
		return l.binop(w.RemS)
	case wasm.OpI32Shl, wasm.OpI64Shl:
		return l.shiftop(w.Sll)
	case wasm.OpI32ShrS, wasm.OpI64ShrS:
		return l.shiftop(w.Sra)
	case wasm.OpI32ShrU, wasm.OpI64ShrU:
		return l.shiftop(w.Srl)

	case wasm.OpI32Eqz, wasm.OpI64Eqz:
		t, c := l.ra.Pop(regalloc.KindInt)
		if err := l.emit(c); err != nil {
			return err
		}
		return l.cmp(CondEQ, Reg(t.Reg), Zero, false)

	case wasm.OpLocalGet:
		reg, cmds, err := l.ra.PushLocal(regalloc.KindInt)
		if err != nil {
			return err
		}
		if err := l.emit(cmds); err != nil {
			return err
		}
		return w.Ld(Reg(reg), FP, l.localDisp(op.LocalIndex))

	case wasm.OpLocalSet:
		t, cmds := l.ra.PopLocal(regalloc.KindInt)
		if err := l.emit(cmds); err != nil {
			return err
		}
		return w.Sd(Reg(t.Reg), FP, l.localDisp(op.LocalIndex))

	case wasm.OpLocalTee:
		t, cmds := l.ra.Pop(regalloc.KindInt)
		if err := l.emit(cmds); err != nil {
			return err
		}
		if err := w.Sd(Reg(t.Reg), FP, l.localDisp(op.LocalIndex)); err != nil {
			return err
		}
		return l.emit(l.ra.PushExisting(regalloc.KindInt, t.Reg))

	case wasm.OpI64Load:
		addr, cmds := l.ra.Pop(regalloc.KindInt)
		if err := l.emit(cmds); err != nil {
			return err
		}
		dest, cmds2, err := l.ra.Push(regalloc.KindInt)
		if err != nil {
			return err
		}
		if err := l.emit(cmds2); err != nil {
			return err
		}
		return w.Ld(Reg(dest), Reg(addr.Reg), int32(op.Mem.Offset))

	case wasm.OpI64Store:
		val, cmds1 := l.ra.Pop(regalloc.KindInt)
		if err := l.emit(cmds1); err != nil {
			return err
		}
		addr, cmds2 := l.ra.Pop(regalloc.KindInt)
		if err := l.emit(cmds2); err != nil {
			return err
		}
		return w.Sd(Reg(val.Reg), Reg(addr.Reg), int32(op.Mem.Offset))

	case wasm.OpDrop:
		_, cmds := l.ra.Pop(regalloc.KindInt)
		return l.emit(cmds)

	case wasm.OpBr:
		return l.br(op.Depth)

	case wasm.OpBrIf:
		t, cmds := l.ra.Pop(regalloc.KindInt)
		if err := l.emit(cmds); err != nil {
			return err
		}
		if err := l.flush(); err != nil {
			return err
		}
		i := l.st.labelIndex
		l.st.labelIndex++
		skip := IndexedLabel(i)
		if err := w.BcondLabel(CondEQ, Reg(t.Reg), Zero, skip); err != nil {
			return err
		}
		if err := l.br(op.Depth); err != nil {
			return err
		}
		return w.SetLabel(skip)

	case wasm.OpBrTable:
		t, cmds := l.ra.Pop(regalloc.KindInt)
		if err := l.emit(cmds); err != nil {
			return err
		}
		if err := l.flush(); err != nil {
			return err
		}
		idx := Reg(t.Reg)
		// idx must stay live (and its register untouched by the per-case
		// literal pushes below) until every comparison has run, so it is
		// immediately re-tracked rather than left Popped.
		if err := l.emit(l.ra.PushExisting(regalloc.KindInt, t.Reg)); err != nil {
			return err
		}
		caseLabels := make([]Label, len(op.Targets))
		for i := range op.Targets {
			li := l.st.labelIndex
			l.st.labelIndex++
			caseLabels[i] = IndexedLabel(li)
		}
		for i := range op.Targets {
			lit, litCmds, err := l.ra.Push(regalloc.KindInt)
			if err != nil {
				return err
			}
			if err := l.emit(litCmds); err != nil {
				return err
			}
			if err := w.Li(Reg(lit), int64(i)); err != nil {
				return err
			}
			if err := w.BcondLabel(CondEQ, idx, Reg(lit), caseLabels[i]); err != nil {
				return err
			}
			_, popCmds := l.ra.Pop(regalloc.KindInt)
			if err := l.emit(popCmds); err != nil {
				return err
			}
		}
		// idx itself is now done: pop it for real before falling through
		// to the default and the case bodies, all of which flush via br.
		_, idxPopCmds := l.ra.Pop(regalloc.KindInt)
		if err := l.emit(idxPopCmds); err != nil {
			return err
		}
		if err := l.br(op.Default); err != nil {
			return err
		}
		for i, target := range op.Targets {
			if err := w.SetLabel(caseLabels[i]); err != nil {
				return err
			}
			if err := l.br(target); err != nil {
				return err
			}
		}
		return nil

	case wasm.OpBlock:
		if err := l.flush(); err != nil {
			return err
		}
		i := l.st.labelIndex
		l.st.labelIndex++
		l.st.ifStack = append(l.st.ifStack, endable{kind: endableBlock, idx: i})
		return nil

	case wasm.OpLoop:
		if err := l.flush(); err != nil {
			return err
		}
		i := l.st.labelIndex
		l.st.labelIndex++
		l.st.ifStack = append(l.st.ifStack, endable{kind: endableLoop, idx: i})
		return w.SetLabel(IndexedLabel(i))

	case wasm.OpIf:
		i := l.st.labelIndex
		l.st.labelIndex += 3
		l.st.ifStack = append(l.st.ifStack, endable{kind: endableIf, idx: i})
		t, cmds := l.ra.Pop(regalloc.KindInt)
		if err := l.emit(cmds); err != nil {
			return err
		}
		if err := l.flush(); err != nil {
			return err
		}
		if err := w.BcondLabel(CondEQ, Reg(t.Reg), Zero, IndexedLabel(i+1)); err != nil {
			return err
		}
		return w.SetLabel(IndexedLabel(i))

	case wasm.OpElse:
		if err := l.flush(); err != nil {
			return err
		}
		n := len(l.st.ifStack)
		if n == 0 || l.st.ifStack[n-1].kind != endableIf {
			return ErrUnbalancedControl
		}
		idx := l.st.ifStack[n-1].idx
		if err := w.JalLabel(Zero, IndexedLabel(idx+2)); err != nil {
			return err
		}
		return w.SetLabel(IndexedLabel(idx + 1))

	case wasm.OpEnd:
		if err := l.flush(); err != nil {
			return err
		}
		m := len(l.st.ifStack)
		if m == 0 {
			// The function body's own closing end (the implicit outermost
			// block every body is terminated with) has no matching push.
			return nil
		}
		top := l.st.ifStack[m-1]
		l.st.ifStack = l.st.ifStack[:m-1]
		switch top.kind {
		case endableBlock:
			return w.SetLabel(IndexedLabel(top.idx))
		case endableIf:
			return w.SetLabel(IndexedLabel(top.idx + 2))
		default: // endableLoop: the label sits at the loop's start, not its end.
			return nil
		}

	case wasm.OpCall:
		if err := l.flush(); err != nil {
			return err
		}
		if int(op.FuncIndex) < len(l.n.imports) && l.n.imports[op.FuncIndex].IsHypercall() {
			return l.hcall()
		}
		fn := op.FuncIndex - uint32(len(l.n.imports))
		return w.JalLabel(RA, FuncLabel(fn))

	case wasm.OpReturn:
		if err := l.flush(); err != nil {
			return err
		}
		if err := w.Mv(SP, FP); err != nil {
			return err
		}
		if err := w.Ld(T0, SP, 0); err != nil {
			return err
		}
		if err := w.Addi(SP, SP, 8); err != nil {
			return err
		}
		if err := w.Mv(FP, T0); err != nil {
			return err
		}
		return w.Ret()

	default:
		if op.Kind == wasm.OpUnsupported {
			return fmt.Errorf("%w: opcode 0x%02x", ErrUnsupportedOperator, op.RawOpcode)
		}
		return fmt.Errorf("%w: %v", ErrUnsupportedOperator, op.Kind)
	}
}
