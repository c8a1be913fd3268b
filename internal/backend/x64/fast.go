package x64

import (
	"fmt"

	"github.com/wasm-blitz/blitzc/internal/ops"
	"github.com/wasm-blitz/blitzc/internal/regalloc"
	"github.com/wasm-blitz/blitzc/internal/wasm"
)

// FastRegisters is the physical register file the fast backend's allocator
// draws from, leaving R0/R1/R2 reserved as naive.go's scratch registers for
// address/immediate computation and the CTX pivot.
var FastRegisters = regalloc.Registers{
	Int:   []int{10, 11, 12, 13, 14, 15, 16, 17},
	Float: []int{20, 21, 22, 23, 24, 25, 26, 27},
}

// Fast is the register-allocated x86-64 lowering: intermediate values stay
// in physical registers across operators instead of round-tripping through
// RSP, per blitz-x86-64-fast. A fresh RegAlloc is constructed once at
// StartFn — never lazily on first use, which is the bug the RISC-V64
// backend's original source has (see DESIGN.md) — and Flush is called
// before every control transfer.
type Fast struct {
	w       Writer
	imports []wasm.Import
	ra      *regalloc.RegAlloc
	st      *State
}

// NewFast constructs a fast lowering writing through w.
func NewFast(w Writer, imports []wasm.Import) *Fast {
	return &Fast{w: w, imports: imports}
}

// Lower drains src, a single function's MachOp stream.
func (f *Fast) Lower(src ops.Stream[ops.WasmInfo]) error {
	f.ra = regalloc.New(FastRegisters)
	f.st = &State{}
	for {
		op, err := src.Next()
		if err != nil {
			return err
		}
		if err := f.handle(op); err != nil {
			return err
		}
		if op.Kind == ops.KindEndBody {
			return nil
		}
	}
}

func (f *Fast) emit(cmds []regalloc.Cmd) error {
	for _, c := range cmds {
		switch c.Kind {
		case regalloc.CmdSpill:
			if err := f.w.Push(Reg(c.Reg)); err != nil {
				return err
			}
		case regalloc.CmdReload:
			if err := f.w.Pop(Reg(c.Reg)); err != nil {
				return err
			}
		case regalloc.CmdMove:
			if err := f.w.Mov(Reg(c.Dst), Reg(c.Reg), nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *Fast) flush() error { return f.emit(f.ra.Flush()) }

func (f *Fast) handle(op ops.MachOp[ops.WasmInfo]) error {
	switch op.Kind {
	case ops.KindStartFn:
		f.st.LocalCount = op.Data.NumParams
		f.st.NumReturns = op.Data.NumReturns
		f.st.ControlDepth = op.Data.ControlDepth
		return f.w.SetLabel(FuncLabel(op.FnID))
	case ops.KindLocal:
		f.st.LocalCount += int(op.LocalCount)
		return nil
	case ops.KindStartBody, ops.KindEndBody:
		return nil
	case ops.KindOperator:
		if op.Op == nil {
			return nil
		}
		return f.handleOp(*op.Op)
	default:
		return nil
	}
}

func (f *Fast) handleOp(op wasm.Operator) error {
	w := f.w
	switch op.Kind {
	case wasm.OpI32Const, wasm.OpI64Const:
		reg, cmds, err := f.ra.Push(regalloc.KindInt)
		if err != nil {
			return err
		}
		if err := f.emit(cmds); err != nil {
			return err
		}
		val := uint64(op.I64)
		if op.Kind == wasm.OpI32Const {
			val = uint64(uint32(op.I32))
		}
		return w.Mov64(Reg(reg), val)

	case wasm.OpI32Add, wasm.OpI64Add:
		t1, c1 := f.ra.Pop(regalloc.KindInt)
		if err := f.emit(c1); err != nil {
			return err
		}
		t2, c2 := f.ra.Pop(regalloc.KindInt)
		if err := f.emit(c2); err != nil {
			return err
		}
		if err := w.Lea(Reg(t1.Reg), Reg(t1.Reg), 0, &OffReg{Reg: Reg(t2.Reg), Scale: 1}); err != nil {
			return err
		}
		if is32(op.Kind) {
			if err := w.U32(Reg(t1.Reg)); err != nil {
				return err
			}
		}
		return f.emit(f.ra.PushExisting(regalloc.KindInt, t1.Reg))

	case wasm.OpI32Sub, wasm.OpI64Sub:
		return f.binopSub(op.Kind)

	case wasm.OpI32Mul, wasm.OpI64Mul:
		return f.binop(op.Kind, w.Mul)
	case wasm.OpI32DivU, wasm.OpI64DivU:
		return f.binop(op.Kind, w.Div)
	case wasm.OpI32DivS, wasm.OpI64DivS:
		return f.binop(op.Kind, w.Idiv)
	case wasm.OpI32And, wasm.OpI64And:
		return f.binop(op.Kind, w.And)
	case wasm.OpI32Or, wasm.OpI64Or:
		return f.binop(op.Kind, w.Or)
	case wasm.OpI32Xor, wasm.OpI64Xor:
		return f.binop(op.Kind, w.Eor)
	case wasm.OpI32Shl, wasm.OpI64Shl:
		return f.binop(op.Kind, w.Shl)
	case wasm.OpI32ShrU, wasm.OpI64ShrU:
		return f.binop(op.Kind, w.Shr)
	case wasm.OpI64ShrS:
		return f.binop(op.Kind, w.Sar)
	case wasm.OpI32ShrS:
		t1, c1 := f.ra.Pop(regalloc.KindInt)
		if err := f.emit(c1); err != nil {
			return err
		}
		t2, c2 := f.ra.Pop(regalloc.KindInt)
		if err := f.emit(c2); err != nil {
			return err
		}
		a, sh := Reg(t1.Reg), Reg(t2.Reg)
		if err := signExtend32(w, a); err != nil {
			return err
		}
		if err := w.Sar(a, sh); err != nil {
			return err
		}
		if err := w.U32(a); err != nil {
			return err
		}
		return f.emit(f.ra.PushExisting(regalloc.KindInt, t1.Reg))

	case wasm.OpI32RemU, wasm.OpI64RemU:
		return f.remop(op.Kind, w.Div)
	case wasm.OpI32RemS, wasm.OpI64RemS:
		return f.remop(op.Kind, w.Idiv)

	case wasm.OpI32WrapI64:
		t, c := f.ra.Pop(regalloc.KindInt)
		if err := f.emit(c); err != nil {
			return err
		}
		if err := w.U32(Reg(t.Reg)); err != nil {
			return err
		}
		return f.emit(f.ra.PushExisting(regalloc.KindInt, t.Reg))

	case wasm.OpI32Eqz, wasm.OpI64Eqz:
		t, c := f.ra.Pop(regalloc.KindInt)
		if err := f.emit(c); err != nil {
			return err
		}
		if err := w.Cmp0(Reg(t.Reg)); err != nil {
			return err
		}
		if err := w.Mov64(R0, 0); err != nil {
			return err
		}
		if err := w.Cmovz64(R0, 1); err != nil {
			return err
		}
		if err := w.Mov(Reg(t.Reg), R0, nil); err != nil {
			return err
		}
		return f.emit(f.ra.PushExisting(regalloc.KindInt, t.Reg))

	case wasm.OpI32Eq, wasm.OpI64Eq:
		return f.cmpEq(true)
	case wasm.OpI32Ne, wasm.OpI64Ne:
		return f.cmpEq(false)

	case wasm.OpI32LtS, wasm.OpI64LtS, wasm.OpI32LtU, wasm.OpI64LtU,
		wasm.OpI32GtS, wasm.OpI64GtS, wasm.OpI32GtU, wasm.OpI64GtU,
		wasm.OpI32LeS, wasm.OpI64LeS, wasm.OpI32LeU, wasm.OpI64LeU,
		wasm.OpI32GeS, wasm.OpI64GeS, wasm.OpI32GeU, wasm.OpI64GeU:
		return f.cmpRel(op.Kind)

	case wasm.OpDrop:
		_, c := f.ra.Pop(regalloc.KindInt)
		return f.emit(c)

	case wasm.OpLocalTee:
		t, c := f.ra.Pop(regalloc.KindInt)
		if err := f.emit(c); err != nil {
			return err
		}
		idx := int64(op.LocalIndex)
		if err := w.Xchg(RSP, CTX, i32p(0)); err != nil {
			return err
		}
		if err := w.Lea(RSP, RSP, -idx*8, nil); err != nil {
			return err
		}
		if err := w.Push(Reg(t.Reg)); err != nil {
			return err
		}
		if err := w.Lea(RSP, RSP, (idx+1)*8, nil); err != nil {
			return err
		}
		if err := w.Xchg(RSP, CTX, i32p(0)); err != nil {
			return err
		}
		return f.emit(f.ra.PushExisting(regalloc.KindInt, t.Reg))

	case wasm.OpBrTable:
		t, c := f.ra.Pop(regalloc.KindInt)
		if err := f.emit(c); err != nil {
			return err
		}
		if err := f.flush(); err != nil {
			return err
		}
		idx := Reg(t.Reg)
		for _, depth := range op.Targets {
			i := f.st.labelIndex
			f.st.labelIndex++
			if err := w.LeaLabel(R1, IndexedLabel(i)); err != nil {
				return err
			}
			if err := w.Cmp0(idx); err != nil {
				return err
			}
			if err := w.Jz(R1); err != nil {
				return err
			}
			if err := f.flush(); err != nil {
				return err
			}
			if err := f.br(depth); err != nil {
				return err
			}
			if err := w.SetLabel(IndexedLabel(i)); err != nil {
				return err
			}
			if err := w.Lea(idx, idx, -1, nil); err != nil {
				return err
			}
		}
		if err := f.flush(); err != nil {
			return err
		}
		return f.br(op.Default)

	case wasm.OpLocalGet:
		reg, cmds, err := f.ra.PushLocal(regalloc.KindInt)
		if err != nil {
			return err
		}
		if err := f.emit(cmds); err != nil {
			return err
		}
		idx := int64(op.LocalIndex)
		if err := w.Xchg(RSP, CTX, i32p(0)); err != nil {
			return err
		}
		if err := w.Lea(RSP, RSP, -idx*8, nil); err != nil {
			return err
		}
		if err := w.Pop(Reg(reg)); err != nil {
			return err
		}
		if err := w.Lea(RSP, RSP, (idx+1)*8, nil); err != nil {
			return err
		}
		return w.Xchg(RSP, CTX, i32p(0))

	case wasm.OpLocalSet:
		t, cmds := f.ra.PopLocal(regalloc.KindInt)
		if err := f.emit(cmds); err != nil {
			return err
		}
		idx := int64(op.LocalIndex)
		if err := w.Xchg(RSP, CTX, i32p(0)); err != nil {
			return err
		}
		if err := w.Lea(RSP, RSP, -idx*8, nil); err != nil {
			return err
		}
		if err := w.Push(Reg(t.Reg)); err != nil {
			return err
		}
		if err := w.Lea(RSP, RSP, (idx+1)*8, nil); err != nil {
			return err
		}
		return w.Xchg(RSP, CTX, i32p(0))

	case wasm.OpI64Load:
		t, c := f.ra.Pop(regalloc.KindInt)
		if err := f.emit(c); err != nil {
			return err
		}
		addr := Reg(t.Reg)
		if err := w.Mov64(R0, uint64(op.Mem.Offset)); err != nil {
			return err
		}
		if err := w.Lea(addr, addr, 0, &OffReg{Reg: R0, Scale: 1}); err != nil {
			return err
		}
		if err := w.Mov(addr, addr, i32p(0)); err != nil {
			return err
		}
		return f.emit(f.ra.PushExisting(regalloc.KindInt, t.Reg))

	case wasm.OpI64Store:
		val, cv := f.ra.Pop(regalloc.KindInt)
		if err := f.emit(cv); err != nil {
			return err
		}
		addr, ca := f.ra.Pop(regalloc.KindInt)
		if err := f.emit(ca); err != nil {
			return err
		}
		if err := w.Mov64(R0, uint64(op.Mem.Offset)); err != nil {
			return err
		}
		base := Reg(addr.Reg)
		if err := w.Lea(base, base, 0, &OffReg{Reg: R0, Scale: 1}); err != nil {
			return err
		}
		return w.Xchg(Reg(val.Reg), base, i32p(0))

	case wasm.OpBr:
		if err := f.flush(); err != nil {
			return err
		}
		return f.br(op.Depth)

	case wasm.OpBrIf:
		i := f.st.labelIndex
		f.st.labelIndex++
		if err := w.LeaLabel(R1, IndexedLabel(i)); err != nil {
			return err
		}
		t, c := f.ra.Pop(regalloc.KindInt)
		if err := f.emit(c); err != nil {
			return err
		}
		if err := f.flush(); err != nil {
			return err
		}
		if err := w.Cmp0(Reg(t.Reg)); err != nil {
			return err
		}
		if err := w.Jz(R1); err != nil {
			return err
		}
		if err := f.flush(); err != nil {
			return err
		}
		if err := f.br(op.Depth); err != nil {
			return err
		}
		return w.SetLabel(IndexedLabel(i))

	case wasm.OpBlock:
		f.st.ifStack = append(f.st.ifStack, endable{kind: endableBr})
		i := f.st.labelIndex
		f.st.labelIndex++
		if err := w.LeaLabel(R0, IndexedLabel(i)); err != nil {
			return err
		}
		if err := f.flush(); err != nil {
			return err
		}
		if err := w.Push(R1); err != nil {
			return err
		}
		if err := w.Push(R0); err != nil {
			return err
		}
		return w.SetLabel(IndexedLabel(i))

	case wasm.OpLoop:
		f.st.ifStack = append(f.st.ifStack, endable{kind: endableBr})
		i := f.st.labelIndex
		f.st.labelIndex++
		if err := w.SetLabel(IndexedLabel(i)); err != nil {
			return err
		}
		if err := w.LeaLabel(R0, IndexedLabel(i)); err != nil {
			return err
		}
		if err := f.flush(); err != nil {
			return err
		}
		if err := w.Push(R1); err != nil {
			return err
		}
		return w.Push(R0)

	case wasm.OpIf:
		i := f.st.labelIndex
		f.st.labelIndex += 3
		f.st.ifStack = append(f.st.ifStack, endable{kind: endableIf, idx: i})
		t, c := f.ra.Pop(regalloc.KindInt)
		if err := f.emit(c); err != nil {
			return err
		}
		if err := f.flush(); err != nil {
			return err
		}
		if err := w.LeaLabel(R0, IndexedLabel(i)); err != nil {
			return err
		}
		if err := w.LeaLabel(R1, IndexedLabel(i+1)); err != nil {
			return err
		}
		if err := w.Cmp0(Reg(t.Reg)); err != nil {
			return err
		}
		if err := w.Jz(R1); err != nil {
			return err
		}
		if err := w.Jmp(R0); err != nil {
			return err
		}
		return w.SetLabel(IndexedLabel(i))

	case wasm.OpElse:
		m := len(f.st.ifStack)
		if m == 0 || f.st.ifStack[m-1].kind != endableIf {
			return ErrUnbalancedControl
		}
		if err := f.flush(); err != nil {
			return err
		}
		i := f.st.ifStack[m-1].idx
		if err := w.LeaLabel(R0, IndexedLabel(i+2)); err != nil {
			return err
		}
		if err := w.Jmp(R0); err != nil {
			return err
		}
		return w.SetLabel(IndexedLabel(i + 1))

	case wasm.OpEnd:
		m := len(f.st.ifStack)
		if err := f.flush(); err != nil {
			return err
		}
		if m == 0 {
			return nil
		}
		top := f.st.ifStack[m-1]
		f.st.ifStack = f.st.ifStack[:m-1]
		switch top.kind {
		case endableBr:
			if err := w.Pop(R0); err != nil {
				return err
			}
			return w.Pop(R1)
		case endableIf:
			return w.SetLabel(IndexedLabel(top.idx + 2))
		}
		return nil

	case wasm.OpCall:
		if err := f.flush(); err != nil {
			return err
		}
		if int(op.FuncIndex) < len(f.imports) && f.imports[op.FuncIndex].IsHypercall() {
			return f.hcall()
		}
		fn := op.FuncIndex - uint32(len(f.imports))
		if err := w.LeaLabel(R0, FuncLabel(fn)); err != nil {
			return err
		}
		return w.Call(R0)

	case wasm.OpReturn:
		if err := f.flush(); err != nil {
			return err
		}
		if err := w.Mov(R1, RSP, nil); err != nil {
			return err
		}
		if err := w.Mov(R0, CTX, nil); err != nil {
			return err
		}
		if err := w.Lea(R0, R0, int64(f.st.LocalCount+3)*8, nil); err != nil {
			return err
		}
		if err := w.Mov(RSP, R0, nil); err != nil {
			return err
		}
		if err := w.Pop(R0); err != nil {
			return err
		}
		if err := w.Xchg(R0, CTX, i32p(0)); err != nil {
			return err
		}
		if err := w.Pop(R0); err != nil {
			return err
		}
		if err := w.Xchg(R0, CTX, i32p(0)); err != nil {
			return err
		}
		if err := w.Pop(R0); err != nil {
			return err
		}
		for a := 0; a < f.st.NumReturns; a++ {
			if err := w.Mov(R2, R1, nil); err != nil {
				return err
			}
			if err := w.Push(R2); err != nil {
				return err
			}
		}
		if err := w.Push(R0); err != nil {
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

func (f *Fast) br(relativeDepth uint32) error {
	w := f.w
	if err := w.Xchg(RSP, CTX, i32p(8)); err != nil {
		return err
	}
	for i := uint32(0); i <= relativeDepth; i++ {
		if err := w.Pop(R0); err != nil {
			return err
		}
		if err := w.Pop(R1); err != nil {
			return err
		}
	}
	if err := w.Xchg(RSP, CTX, i32p(8)); err != nil {
		return err
	}
	if err := w.Mov(RSP, R1, nil); err != nil {
		return err
	}
	return w.Jmp(R0)
}

func (f *Fast) hcall() error {
	w := f.w
	t, c := f.ra.Pop(regalloc.KindInt)
	if err := f.emit(c); err != nil {
		return err
	}
	i := f.st.labelIndex
	f.st.labelIndex++
	if err := w.LeaLabel(R0, IndexedLabel(i)); err != nil {
		return err
	}
	if err := w.Push(R0); err != nil {
		return err
	}
	if err := w.Push(Reg(t.Reg)); err != nil {
		return err
	}
	if err := w.Mov(R0, CTX, nil); err != nil {
		return err
	}
	if err := w.Xchg(R0, RSP, nil); err != nil {
		return err
	}
	if err := w.Ret(); err != nil {
		return err
	}
	return w.SetLabel(IndexedLabel(i))
}

// binopSub lowers Sub the same Not+Lea way naive.go does: this Writer has
// no subtract primitive, only the two's-complement identity a - b == a +
// ^b + 1.
func (f *Fast) binopSub(kind wasm.OpKind) error {
	w := f.w
	t1, c1 := f.ra.Pop(regalloc.KindInt)
	if err := f.emit(c1); err != nil {
		return err
	}
	t2, c2 := f.ra.Pop(regalloc.KindInt)
	if err := f.emit(c2); err != nil {
		return err
	}
	a, b := Reg(t1.Reg), Reg(t2.Reg)
	if err := w.Not(b); err != nil {
		return err
	}
	if err := w.Lea(a, a, 1, &OffReg{Reg: b, Scale: 1}); err != nil {
		return err
	}
	if is32(kind) {
		if err := w.U32(a); err != nil {
			return err
		}
	}
	return f.emit(f.ra.PushExisting(regalloc.KindInt, t1.Reg))
}

// binop pops the two operands op acts on in place, leaving the result in
// the first-popped register, then pushes that register back.
func (f *Fast) binop(kind wasm.OpKind, op func(a, b Reg) error) error {
	t1, c1 := f.ra.Pop(regalloc.KindInt)
	if err := f.emit(c1); err != nil {
		return err
	}
	t2, c2 := f.ra.Pop(regalloc.KindInt)
	if err := f.emit(c2); err != nil {
		return err
	}
	if err := op(Reg(t1.Reg), Reg(t2.Reg)); err != nil {
		return err
	}
	if is32(kind) {
		if err := f.w.U32(Reg(t1.Reg)); err != nil {
			return err
		}
	}
	return f.emit(f.ra.PushExisting(regalloc.KindInt, t1.Reg))
}

// remop mirrors naive.go's remop: Div/Idiv leave the remainder in the
// Writer's fixed R3 slot regardless of which allocated registers held the
// dividend/divisor, so the result has to be moved into a fresh allocated
// register rather than reused from either popped token.
func (f *Fast) remop(kind wasm.OpKind, op func(a, b Reg) error) error {
	w := f.w
	t1, c1 := f.ra.Pop(regalloc.KindInt)
	if err := f.emit(c1); err != nil {
		return err
	}
	t2, c2 := f.ra.Pop(regalloc.KindInt)
	if err := f.emit(c2); err != nil {
		return err
	}
	if err := op(Reg(t1.Reg), Reg(t2.Reg)); err != nil {
		return err
	}
	if is32(kind) {
		if err := w.U32(R3); err != nil {
			return err
		}
	}
	dst, cmds, err := f.ra.Push(regalloc.KindInt)
	if err != nil {
		return err
	}
	if err := f.emit(cmds); err != nil {
		return err
	}
	return w.Mov(Reg(dst), R3, nil)
}

// cmpEq lowers Eq/Ne the same Not+Lea-then-Cmp0 way naive.go's cmpEq does.
func (f *Fast) cmpEq(eq bool) error {
	w := f.w
	t1, c1 := f.ra.Pop(regalloc.KindInt)
	if err := f.emit(c1); err != nil {
		return err
	}
	t2, c2 := f.ra.Pop(regalloc.KindInt)
	if err := f.emit(c2); err != nil {
		return err
	}
	a, b := Reg(t1.Reg), Reg(t2.Reg)
	if err := w.Not(b); err != nil {
		return err
	}
	if err := w.Lea(a, a, 1, &OffReg{Reg: b, Scale: 1}); err != nil {
		return err
	}
	val0, val1 := uint64(0), uint64(1)
	if !eq {
		val0, val1 = 1, 0
	}
	if err := w.Cmp0(a); err != nil {
		return err
	}
	if err := w.Mov64(R0, val0); err != nil {
		return err
	}
	if err := w.Cmovz64(R0, val1); err != nil {
		return err
	}
	if err := w.Mov(a, R0, nil); err != nil {
		return err
	}
	return f.emit(f.ra.PushExisting(regalloc.KindInt, t1.Reg))
}

// cmpRel is fast.go's register-allocated analog of naive.go's cmpRel: same
// sign-of-difference reduction via cmpRelTable, just operating on whichever
// physical registers the allocator handed the two operands instead of the
// fixed R0/R1 naive.go always pops into.
func (f *Fast) cmpRel(kind wasm.OpKind) error {
	w := f.w
	spec, ok := cmpRelTable[kind]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnsupportedOperator, kind)
	}

	t1, c1 := f.ra.Pop(regalloc.KindInt)
	if err := f.emit(c1); err != nil {
		return err
	}
	t2, c2 := f.ra.Pop(regalloc.KindInt)
	if err := f.emit(c2); err != nil {
		return err
	}
	a, b := Reg(t1.Reg), Reg(t2.Reg)

	if spec.unsigned && !spec.is32 {
		if err := w.Mov64(R0, 0x8000000000000000); err != nil {
			return err
		}
		if err := w.Eor(a, R0); err != nil {
			return err
		}
		if err := w.Eor(b, R0); err != nil {
			return err
		}
	}

	dst, sub, dstTok := a, b, t1
	if spec.swap {
		dst, sub, dstTok = b, a, t2
	}
	if err := w.Not(sub); err != nil {
		return err
	}
	if err := w.Lea(dst, dst, 1, &OffReg{Reg: sub, Scale: 1}); err != nil {
		return err
	}

	shiftBy := uint64(63)
	if spec.is32 && !spec.unsigned {
		if err := w.U32(dst); err != nil {
			return err
		}
		shiftBy = 31
	}
	if err := w.Mov64(R0, shiftBy); err != nil {
		return err
	}
	if err := w.Shr(dst, R0); err != nil {
		return err
	}
	if spec.invert {
		if err := w.Mov64(R0, 1); err != nil {
			return err
		}
		if err := w.Eor(dst, R0); err != nil {
			return err
		}
	}
	return f.emit(f.ra.PushExisting(regalloc.KindInt, dstTok.Reg))
}
