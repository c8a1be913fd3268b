package x64

import (
	"errors"
	"fmt"

	"github.com/wasm-blitz/blitzc/internal/ops"
	"github.com/wasm-blitz/blitzc/internal/wasm"
)

// ErrUnbalancedControl is returned when Else is reached with no matching If
// on the lowering's control stack.
var ErrUnbalancedControl = errors.New("x64: unbalanced control flow")

// ErrUnsupportedOperator mirrors wasm.OpUnsupported: an operator this
// backend has no lowering for (out-of-scope opcodes the decoder tagged
// OpUnsupported, or a Kind neither naive.go nor fast.go implements) surfaces
// this instead of silently emitting nothing for it.
var ErrUnsupportedOperator = errors.New("x64: unsupported operator")

type endableKind int

const (
	endableBr endableKind = iota
	endableIf
)

type endable struct {
	kind endableKind
	idx  int
}

// State is the naive lowering's per-function mutable state: the label
// counter, the frame shape learned at StartFn, and the control stack used
// to know what an End closes.
type State struct {
	LocalCount   int
	NumReturns   int
	ControlDepth int
	labelIndex   int
	ifStack      []endable
}

// Naive is the straightforward, register-light x86-64 lowering: every Wasm
// value lives on RSP's stack between operators, matching naive.rs.
type Naive struct {
	w       Writer
	imports []wasm.Import
}

// NewNaive constructs a naive lowering writing through w. imports is the
// module's import list, consulted to recognize hypercall stubs at Call.
func NewNaive(w Writer, imports []wasm.Import) *Naive {
	return &Naive{w: w, imports: imports}
}

// Lower drains src, a single function's MachOp stream, emitting x86-64 text
// through n's Writer.
func (n *Naive) Lower(src ops.Stream[ops.WasmInfo]) error {
	st := &State{}
	for {
		op, err := src.Next()
		if err != nil {
			return err
		}
		if err := n.handle(st, op); err != nil {
			return err
		}
		if op.Kind == ops.KindEndBody {
			return nil
		}
	}
}

func (n *Naive) handle(st *State, op ops.MachOp[ops.WasmInfo]) error {
	w := n.w
	switch op.Kind {
	case ops.KindStartFn:
		st.LocalCount = op.Data.NumParams
		st.NumReturns = op.Data.NumReturns
		st.ControlDepth = op.Data.ControlDepth
		if err := w.Pop(R1); err != nil {
			return err
		}
		if err := w.Lea(R0, R1, -int64(op.Data.NumParams), nil); err != nil {
			return err
		}
		if err := w.Xchg(R0, CTX, i32p(0)); err != nil {
			return err
		}
		return w.SetLabel(FuncLabel(op.FnID))

	case ops.KindLocal:
		for i := uint32(0); i < op.LocalCount; i++ {
			st.LocalCount++
			if err := w.Push(R0); err != nil {
				return err
			}
		}
		return nil

	case ops.KindStartBody:
		if err := w.Push(R1); err != nil {
			return err
		}
		if err := w.Push(R0); err != nil {
			return err
		}
		if err := w.Lea(R0, RSP, -int64(st.ControlDepth)*16, nil); err != nil {
			return err
		}
		if err := w.Xchg(R0, CTX, i32p(8)); err != nil {
			return err
		}
		if err := w.Push(R0); err != nil {
			return err
		}
		for i := 0; i < st.ControlDepth; i++ {
			for j := 0; j < 2; j++ {
				if err := w.Push(R0); err != nil {
					return err
				}
			}
		}
		return nil

	case ops.KindEndBody:
		return nil

	case ops.KindOperator:
		if op.Op == nil {
			return nil
		}
		return n.handleOp(st, *op.Op)

	default:
		return fmt.Errorf("x64: unsupported MachOp kind %s", op.Kind)
	}
}

func i32p(v int32) *int32 { return &v }

func (n *Naive) br(st *State, relativeDepth uint32) error {
	w := n.w
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

func (n *Naive) hcall(st *State) error {
	w := n.w
	if err := w.Pop(R1); err != nil {
		return err
	}
	i := st.labelIndex
	st.labelIndex++
	if err := w.LeaLabel(R0, IndexedLabel(i)); err != nil {
		return err
	}
	if err := w.Push(R0); err != nil {
		return err
	}
	if err := w.Push(R1); err != nil {
		return err
	}
	if err := w.Mov(R0, CTX, i32p(-8)); err != nil {
		return err
	}
	if err := w.Xchg(R0, RSP, i32p(0)); err != nil {
		return err
	}
	if err := w.Ret(); err != nil {
		return err
	}
	return w.SetLabel(IndexedLabel(i))
}

// is32 reports whether op.Kind's result must be wrapped back to 32 bits
// with U32 after a binop/remop computes it at full width; both naive.go and
// fast.go share it since values live zero-extended regardless of backend.
func is32(k wasm.OpKind) bool {
	switch k {
	case wasm.OpI32Add, wasm.OpI32Sub, wasm.OpI32Mul, wasm.OpI32DivU, wasm.OpI32DivS,
		wasm.OpI32RemU, wasm.OpI32RemS, wasm.OpI32And, wasm.OpI32Or, wasm.OpI32Xor,
		wasm.OpI32Shl, wasm.OpI32ShrU, wasm.OpI32Eqz, wasm.OpI32Eq, wasm.OpI32Ne:
		return true
	}
	return false
}

// handleOp lowers a single Wasm operator per naive.rs's _handle_op.
func (n *Naive) handleOp(st *State, op wasm.Operator) error {
	w := n.w

	switch op.Kind {
	case wasm.OpI32Const:
		if err := w.Mov64(R0, uint64(uint32(op.I32))); err != nil {
			return err
		}
		return w.Push(R0)
	case wasm.OpI64Const:
		if err := w.Mov64(R0, uint64(op.I64)); err != nil {
			return err
		}
		return w.Push(R0)

	case wasm.OpI32Add, wasm.OpI64Add:
		if err := w.Pop(R0); err != nil {
			return err
		}
		if err := w.Pop(R1); err != nil {
			return err
		}
		if err := w.Lea(R0, R0, 0, &OffReg{Reg: R1, Scale: 1}); err != nil {
			return err
		}
		if is32(op.Kind) {
			if err := w.U32(R0); err != nil {
				return err
			}
		}
		return w.Push(R0)

	case wasm.OpI32Sub, wasm.OpI64Sub:
		if err := w.Pop(R0); err != nil {
			return err
		}
		if err := w.Pop(R1); err != nil {
			return err
		}
		if err := w.Not(R1); err != nil {
			return err
		}
		if err := w.Lea(R0, R0, 1, &OffReg{Reg: R1, Scale: 1}); err != nil {
			return err
		}
		if is32(op.Kind) {
			if err := w.U32(R0); err != nil {
				return err
			}
		}
		return w.Push(R0)

	case wasm.OpI32Mul, wasm.OpI64Mul:
		return n.binop(st, w.Mul, is32(op.Kind))
	case wasm.OpI32DivU, wasm.OpI64DivU:
		return n.binop(st, w.Div, is32(op.Kind))
	case wasm.OpI32DivS, wasm.OpI64DivS:
		return n.binop(st, w.Idiv, is32(op.Kind))
	case wasm.OpI32And, wasm.OpI64And:
		return n.binop(st, w.And, is32(op.Kind))
	case wasm.OpI32Or, wasm.OpI64Or:
		return n.binop(st, w.Or, is32(op.Kind))
	case wasm.OpI32Xor, wasm.OpI64Xor:
		return n.binop(st, w.Eor, is32(op.Kind))
	case wasm.OpI32Shl, wasm.OpI64Shl:
		return n.binop(st, w.Shl, is32(op.Kind))
	case wasm.OpI32ShrU, wasm.OpI64ShrU:
		return n.binop(st, w.Shr, is32(op.Kind))
	case wasm.OpI64ShrS:
		return n.binop(st, w.Sar, false)
	case wasm.OpI32ShrS:
		if err := w.Pop(R0); err != nil {
			return err
		}
		if err := w.Pop(R1); err != nil {
			return err
		}
		if err := signExtend32(w, R0); err != nil {
			return err
		}
		if err := w.Sar(R0, R1); err != nil {
			return err
		}
		if err := w.U32(R0); err != nil {
			return err
		}
		return w.Push(R0)

	case wasm.OpI32RemU, wasm.OpI64RemU:
		return n.remop(w.Div, is32(op.Kind))
	case wasm.OpI32RemS, wasm.OpI64RemS:
		return n.remop(w.Idiv, is32(op.Kind))

	case wasm.OpI32WrapI64:
		if err := w.Pop(R0); err != nil {
			return err
		}
		if err := w.U32(R0); err != nil {
			return err
		}
		return w.Push(R0)

	case wasm.OpI32Eqz, wasm.OpI64Eqz:
		if err := w.Pop(R0); err != nil {
			return err
		}
		if err := w.Mov64(R1, 0); err != nil {
			return err
		}
		if err := w.Cmp0(R0); err != nil {
			return err
		}
		if err := w.Cmovz64(R1, 1); err != nil {
			return err
		}
		return w.Push(R1)

	case wasm.OpI32Eq, wasm.OpI64Eq:
		return n.cmpEq(true)
	case wasm.OpI32Ne, wasm.OpI64Ne:
		return n.cmpEq(false)

	case wasm.OpI32LtS, wasm.OpI64LtS, wasm.OpI32LtU, wasm.OpI64LtU,
		wasm.OpI32GtS, wasm.OpI64GtS, wasm.OpI32GtU, wasm.OpI64GtU,
		wasm.OpI32LeS, wasm.OpI64LeS, wasm.OpI32LeU, wasm.OpI64LeU,
		wasm.OpI32GeS, wasm.OpI64GeS, wasm.OpI32GeU, wasm.OpI64GeU:
		return n.cmpRel(op.Kind)

	case wasm.OpI64Load:
		if err := w.Pop(R0); err != nil {
			return err
		}
		if err := w.Mov64(R1, uint64(op.Mem.Offset)); err != nil {
			return err
		}
		if err := w.Lea(R0, R0, 0, &OffReg{Reg: R1, Scale: 1}); err != nil {
			return err
		}
		if err := w.Mov(R0, R0, i32p(0)); err != nil {
			return err
		}
		return w.Push(R0)

	case wasm.OpI64Store:
		if err := w.Pop(R2); err != nil {
			return err
		}
		if err := w.Pop(R0); err != nil {
			return err
		}
		if err := w.Mov64(R1, uint64(op.Mem.Offset)); err != nil {
			return err
		}
		if err := w.Lea(R0, R0, 0, &OffReg{Reg: R1, Scale: 1}); err != nil {
			return err
		}
		return w.Xchg(R2, R0, i32p(0))

	case wasm.OpLocalGet:
		idx := int64(op.LocalIndex)
		if err := w.Xchg(RSP, CTX, i32p(0)); err != nil {
			return err
		}
		if err := w.Lea(RSP, RSP, -idx*8, nil); err != nil {
			return err
		}
		if err := w.Pop(R0); err != nil {
			return err
		}
		if err := w.Lea(RSP, RSP, (idx+1)*8, nil); err != nil {
			return err
		}
		if err := w.Xchg(RSP, CTX, i32p(0)); err != nil {
			return err
		}
		return w.Push(R0)

	case wasm.OpLocalTee:
		idx := int64(op.LocalIndex)
		if err := w.Pop(R0); err != nil {
			return err
		}
		if err := w.Xchg(RSP, CTX, i32p(0)); err != nil {
			return err
		}
		if err := w.Lea(RSP, RSP, -idx*8, nil); err != nil {
			return err
		}
		if err := w.Push(R0); err != nil {
			return err
		}
		if err := w.Lea(RSP, RSP, (idx+1)*8, nil); err != nil {
			return err
		}
		if err := w.Xchg(RSP, CTX, i32p(0)); err != nil {
			return err
		}
		return w.Push(R0)

	case wasm.OpLocalSet:
		idx := int64(op.LocalIndex)
		if err := w.Pop(R0); err != nil {
			return err
		}
		if err := w.Xchg(RSP, CTX, i32p(0)); err != nil {
			return err
		}
		if err := w.Lea(RSP, RSP, -idx*8, nil); err != nil {
			return err
		}
		if err := w.Push(R0); err != nil {
			return err
		}
		if err := w.Lea(RSP, RSP, (idx+1)*8, nil); err != nil {
			return err
		}
		return w.Xchg(RSP, CTX, i32p(0))

	case wasm.OpReturn:
		if err := w.Mov(R1, RSP, nil); err != nil {
			return err
		}
		if err := w.Mov(R0, CTX, i32p(0)); err != nil {
			return err
		}
		if err := w.Lea(R0, R0, int64(st.LocalCount+3)*8, nil); err != nil {
			return err
		}
		if err := w.Mov(RSP, R0, nil); err != nil {
			return err
		}
		if err := w.Pop(R0); err != nil {
			return err
		}
		if err := w.Xchg(R0, CTX, i32p(8)); err != nil {
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
		for a := 0; a < st.NumReturns; a++ {
			if err := w.Mov(R2, R1, i32p(int32(-a*8))); err != nil {
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

	case wasm.OpBr:
		return n.br(st, op.Depth)

	case wasm.OpBrIf:
		i := st.labelIndex
		st.labelIndex++
		if err := w.LeaLabel(R1, IndexedLabel(i)); err != nil {
			return err
		}
		if err := w.Pop(R0); err != nil {
			return err
		}
		if err := w.Cmp0(R0); err != nil {
			return err
		}
		if err := w.Jz(R1); err != nil {
			return err
		}
		if err := n.br(st, op.Depth); err != nil {
			return err
		}
		return w.SetLabel(IndexedLabel(i))

	case wasm.OpBrTable:
		for _, depth := range op.Targets {
			i := st.labelIndex
			st.labelIndex++
			if err := w.LeaLabel(R1, IndexedLabel(i)); err != nil {
				return err
			}
			if err := w.Pop(R0); err != nil {
				return err
			}
			if err := w.Cmp0(R0); err != nil {
				return err
			}
			if err := w.Jz(R1); err != nil {
				return err
			}
			if err := n.br(st, depth); err != nil {
				return err
			}
			if err := w.SetLabel(IndexedLabel(i)); err != nil {
				return err
			}
			if err := w.Lea(R0, R0, -1, nil); err != nil {
				return err
			}
			if err := w.Push(R0); err != nil {
				return err
			}
		}
		if err := w.Pop(R0); err != nil {
			return err
		}
		return n.br(st, op.Default)

	case wasm.OpBlock:
		st.ifStack = append(st.ifStack, endable{kind: endableBr})
		i := st.labelIndex
		st.labelIndex++
		if err := w.LeaLabel(R0, IndexedLabel(i)); err != nil {
			return err
		}
		if err := w.Mov(R1, RSP, nil); err != nil {
			return err
		}
		if err := w.Xchg(RSP, CTX, i32p(8)); err != nil {
			return err
		}
		if err := w.Push(R1); err != nil {
			return err
		}
		if err := w.Push(R0); err != nil {
			return err
		}
		if err := w.Xchg(RSP, CTX, i32p(8)); err != nil {
			return err
		}
		return w.SetLabel(IndexedLabel(i))

	case wasm.OpLoop:
		st.ifStack = append(st.ifStack, endable{kind: endableBr})
		i := st.labelIndex
		st.labelIndex++
		if err := w.SetLabel(IndexedLabel(i)); err != nil {
			return err
		}
		if err := w.LeaLabel(R0, IndexedLabel(i)); err != nil {
			return err
		}
		if err := w.Mov(R1, RSP, nil); err != nil {
			return err
		}
		if err := w.Xchg(RSP, CTX, i32p(8)); err != nil {
			return err
		}
		if err := w.Push(R1); err != nil {
			return err
		}
		if err := w.Push(R0); err != nil {
			return err
		}
		return w.Xchg(RSP, CTX, i32p(8))

	case wasm.OpIf:
		i := st.labelIndex
		st.labelIndex += 3
		st.ifStack = append(st.ifStack, endable{kind: endableIf, idx: i})
		if err := w.Pop(R2); err != nil {
			return err
		}
		if err := w.LeaLabel(R0, IndexedLabel(i)); err != nil {
			return err
		}
		if err := w.LeaLabel(R1, IndexedLabel(i+1)); err != nil {
			return err
		}
		if err := w.Cmp0(R2); err != nil {
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
		n := len(st.ifStack)
		if n == 0 || st.ifStack[n-1].kind != endableIf {
			return ErrUnbalancedControl
		}
		i := st.ifStack[n-1].idx
		if err := w.LeaLabel(R0, IndexedLabel(i+2)); err != nil {
			return err
		}
		if err := w.Jmp(R0); err != nil {
			return err
		}
		return w.SetLabel(IndexedLabel(i + 1))

	case wasm.OpEnd:
		// The function body's own closing end (the implicit outermost
		// block every Wasm function body is terminated with) has no
		// matching Block/Loop/If push: the synthetic Return that follows it
		// tears the frame down, so there is nothing for this End to do.
		m := len(st.ifStack)
		if m == 0 {
			return nil
		}
		if err := w.Xchg(RSP, CTX, i32p(8)); err != nil {
			return err
		}
		top := st.ifStack[m-1]
		st.ifStack = st.ifStack[:m-1]
		switch top.kind {
		case endableBr:
			if err := w.Pop(R0); err != nil {
				return err
			}
			if err := w.Pop(R1); err != nil {
				return err
			}
		case endableIf:
			if err := w.SetLabel(IndexedLabel(top.idx + 2)); err != nil {
				return err
			}
		}
		return w.Xchg(RSP, CTX, i32p(8))

	case wasm.OpCall:
		if int(op.FuncIndex) < len(n.imports) && n.imports[op.FuncIndex].IsHypercall() {
			return n.hcall(st)
		}
		fn := op.FuncIndex - uint32(len(n.imports))
		if err := w.LeaLabel(R0, FuncLabel(fn)); err != nil {
			return err
		}
		return w.Call(R0)

	case wasm.OpDrop:
		return w.Pop(R0)

	default:
		if op.Kind == wasm.OpUnsupported {
			return fmt.Errorf("%w: opcode 0x%02x", ErrUnsupportedOperator, op.RawOpcode)
		}
		return fmt.Errorf("%w: %v", ErrUnsupportedOperator, op.Kind)
	}
}

func (n *Naive) binop(st *State, f func(a, b Reg) error, wrap32 bool) error {
	w := n.w
	if err := w.Pop(R0); err != nil {
		return err
	}
	if err := w.Pop(R1); err != nil {
		return err
	}
	if err := f(R0, R1); err != nil {
		return err
	}
	if wrap32 {
		if err := w.U32(R0); err != nil {
			return err
		}
	}
	return w.Push(R0)
}

func (n *Naive) remop(f func(a, b Reg) error, wrap32 bool) error {
	w := n.w
	if err := w.Pop(R0); err != nil {
		return err
	}
	if err := w.Pop(R1); err != nil {
		return err
	}
	if err := f(R0, R1); err != nil {
		return err
	}
	if wrap32 {
		if err := w.U32(R3); err != nil {
			return err
		}
	}
	return w.Push(R3)
}

func (n *Naive) cmpEq(eq bool) error {
	w := n.w
	if err := w.Pop(R0); err != nil {
		return err
	}
	if err := w.Pop(R1); err != nil {
		return err
	}
	if err := w.Not(R1); err != nil {
		return err
	}
	if err := w.Lea(R0, R0, 1, &OffReg{Reg: R1, Scale: 1}); err != nil {
		return err
	}
	if eq {
		if err := w.Mov64(R1, 0); err != nil {
			return err
		}
		if err := w.Cmp0(R0); err != nil {
			return err
		}
		if err := w.Cmovz64(R1, 1); err != nil {
			return err
		}
	} else {
		if err := w.Mov64(R1, 1); err != nil {
			return err
		}
		if err := w.Cmp0(R0); err != nil {
			return err
		}
		if err := w.Cmovz64(R1, 0); err != nil {
			return err
		}
	}
	return w.Push(R1)
}

// signExtend32 rewrites r, holding a 32-bit value stored zero-extended into
// a 64-bit register (Const/LocalGet's storage convention), into the same
// value sign-extended to 64 bits: XOR the sign bit, then subtract it back
// off, the same Not+Lea subtraction Sub uses, since this Writer has no
// direct sign-extending move. Shared by naive.go and fast.go's ShrS.
func signExtend32(w Writer, r Reg) error {
	if err := w.Mov64(R2, 0x80000000); err != nil {
		return err
	}
	if err := w.Eor(r, R2); err != nil {
		return err
	}
	if err := w.Not(R2); err != nil {
		return err
	}
	return w.Lea(r, r, 1, &OffReg{Reg: R2, Scale: 1})
}

// cmpSpec characterizes one of the 16 relational comparisons in terms of a
// single primitive: the sign bit of a subtraction. swap picks which operand
// is subtracted from which (Gt/Le evaluate the Lt/Ge of the swapped
// operands); invert negates the extracted bit, since Le/Ge are the negation
// of Gt/Lt. unsigned and is32 pick the width/signedness-dependent masking
// described on cmpRel.
type cmpSpec struct {
	swap, invert, unsigned, is32 bool
}

var cmpRelTable = map[wasm.OpKind]cmpSpec{
	wasm.OpI32LtS: {false, false, false, true}, wasm.OpI64LtS: {false, false, false, false},
	wasm.OpI32LtU: {false, false, true, true}, wasm.OpI64LtU: {false, false, true, false},
	wasm.OpI32GtS: {true, false, false, true}, wasm.OpI64GtS: {true, false, false, false},
	wasm.OpI32GtU: {true, false, true, true}, wasm.OpI64GtU: {true, false, true, false},
	wasm.OpI32LeS: {true, true, false, true}, wasm.OpI64LeS: {true, true, false, false},
	wasm.OpI32LeU: {true, true, true, true}, wasm.OpI64LeU: {true, true, true, false},
	wasm.OpI32GeS: {false, true, false, true}, wasm.OpI64GeS: {false, true, false, false},
	wasm.OpI32GeU: {false, true, true, true}, wasm.OpI64GeU: {false, true, true, false},
}

// cmpRel lowers the 8 relational families naive.rs has no equivalent for at
// all: this ABI exposes no condition-code register beyond Cmp0/Cmovz64's
// zero flag, so "a < b" is reduced to "the sign bit of a-b is set",
// extracted by shifting the difference down to bit 0. 32-bit signed diffs
// are U32-masked before a 31-bit shift, since values are stored
// zero-extended and the subtraction can carry into bit 32+; 64-bit unsigned
// compares first XOR both operands with the sign bit, translating unsigned
// ordering into signed ordering before the same 63-bit shift applies.
func (n *Naive) cmpRel(kind wasm.OpKind) error {
	w := n.w
	spec, ok := cmpRelTable[kind]
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnsupportedOperator, kind)
	}

	if err := w.Pop(R0); err != nil {
		return err
	}
	if err := w.Pop(R1); err != nil {
		return err
	}

	if spec.unsigned && !spec.is32 {
		if err := w.Mov64(R2, 0x8000000000000000); err != nil {
			return err
		}
		if err := w.Eor(R0, R2); err != nil {
			return err
		}
		if err := w.Eor(R1, R2); err != nil {
			return err
		}
	}

	dst, sub := R0, R1
	if spec.swap {
		dst, sub = R1, R0
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
	if err := w.Mov64(R3, shiftBy); err != nil {
		return err
	}
	if err := w.Shr(dst, R3); err != nil {
		return err
	}

	if spec.invert {
		if err := w.Mov64(R2, 1); err != nil {
			return err
		}
		if err := w.Eor(R2, dst); err != nil {
			return err
		}
		return w.Push(R2)
	}
	return w.Push(dst)
}
