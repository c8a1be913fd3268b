package ops

import "github.com/wasm-blitz/blitzc/internal/wasm"

// Coalesce rewrites narrow load/store operators into 64-bit accesses plus
// mask/wrap operators, per the table in SPEC_FULL.md §4.3. It injects two
// scratch I64 locals at body entry (indices L, L+1, where L is the function's
// parameter count plus the locals declared before StartBody, so the scratch
// pair lands right after them in Wasm's local index space) for the
// read-modify-write store
// sequences. All other operators pass through unchanged, and every operator
// this pass emits carries the same annotation as the operator it was
// derived from.
type Coalesce[A any] struct {
	src        Stream[A]
	localCount uint32
	pending    []MachOp[A]
}

// NewCoalesce wraps src with the load/store coalescing pass.
func NewCoalesce[A any](src Stream[A]) *Coalesce[A] {
	return &Coalesce[A]{src: src}
}

// Next implements Stream[A].
func (c *Coalesce[A]) Next() (MachOp[A], error) {
	if len(c.pending) > 0 {
		op := c.pending[0]
		c.pending = c.pending[1:]
		return op, nil
	}
	op, err := c.src.Next()
	if err != nil {
		return MachOp[A]{}, err
	}
	switch op.Kind {
	case KindStartFn:
		c.localCount = uint32(op.Data.NumParams)
		return op, nil
	case KindLocal:
		c.localCount += op.LocalCount
		return op, nil
	case KindStartBody:
		c.pending = []MachOp[A]{op}
		return Local[A](2, wasm.ValTypeI64), nil
	case KindOperator:
		if op.Op == nil {
			return op, nil
		}
		expanded := c.expand(*op.Op, op.Annot)
		if expanded == nil {
			return op, nil
		}
		c.pending = expanded[1:]
		return expanded[0], nil
	default:
		return op, nil
	}
}

func (c *Coalesce[A]) expand(op wasm.Operator, annot A) []MachOp[A] {
	L := c.localCount
	mk := func(ops ...wasm.Operator) []MachOp[A] {
		out := make([]MachOp[A], len(ops))
		for i, o := range ops {
			out[i] = Operator[A](o, annot)
		}
		return out
	}
	switch op.Kind {
	case wasm.OpI64Load8U:
		return mk(
			wasm.Operator{Kind: wasm.OpI64Load, Mem: op.Mem},
			wasm.Operator{Kind: wasm.OpI64Const, I64: 0xff},
			wasm.Operator{Kind: wasm.OpI64And},
		)
	case wasm.OpI64Load16U:
		return mk(
			wasm.Operator{Kind: wasm.OpI64Load, Mem: op.Mem},
			wasm.Operator{Kind: wasm.OpI64Const, I64: 0xffff},
			wasm.Operator{Kind: wasm.OpI64And},
		)
	case wasm.OpI64Load32U:
		return mk(
			wasm.Operator{Kind: wasm.OpI64Load, Mem: op.Mem},
			wasm.Operator{Kind: wasm.OpI64Const, I64: 0xffffffff},
			wasm.Operator{Kind: wasm.OpI64And},
		)
	case wasm.OpI32Load8U:
		return mk(
			wasm.Operator{Kind: wasm.OpI64Load, Mem: op.Mem},
			wasm.Operator{Kind: wasm.OpI32WrapI64},
			wasm.Operator{Kind: wasm.OpI32Const, I32: 0xff},
			wasm.Operator{Kind: wasm.OpI32And},
		)
	case wasm.OpI32Load16U:
		return mk(
			wasm.Operator{Kind: wasm.OpI64Load, Mem: op.Mem},
			wasm.Operator{Kind: wasm.OpI32WrapI64},
			wasm.Operator{Kind: wasm.OpI32Const, I32: 0xffff},
			wasm.Operator{Kind: wasm.OpI32And},
		)
	case wasm.OpI32Load:
		return mk(
			wasm.Operator{Kind: wasm.OpI64Load, Mem: op.Mem},
			wasm.Operator{Kind: wasm.OpI32WrapI64},
		)
	case wasm.OpI64Store8:
		return c.storeSeq(op.Mem, L, ^int64(0xff), annot)
	case wasm.OpI64Store16:
		return c.storeSeq(op.Mem, L, ^int64(0xffff), annot)
	case wasm.OpI64Store32:
		return c.storeSeq(op.Mem, L, ^int64(0xffffffff), annot)
	case wasm.OpI32Store8:
		return c.storeSeq32(op.Mem, L, ^int64(0xff), annot)
	case wasm.OpI32Store16:
		return c.storeSeq32(op.Mem, L, ^int64(0xffff), annot)
	case wasm.OpI32Store:
		return c.storeSeqNoMask32(op.Mem, L, annot)
	default:
		return nil
	}
}

// storeSeq lowers I64Store{8,16,32} into a read-modify-write through scratch
// locals L, L+1, masking out the bits being replaced with ^mask before
// or-ing in the new value.
func (c *Coalesce[A]) storeSeq(mem wasm.MemArg, l uint32, mask int64, annot A) []MachOp[A] {
	ops := []wasm.Operator{
		{Kind: wasm.OpLocalSet, LocalIndex: l},
		{Kind: wasm.OpLocalTee, LocalIndex: l + 1},
		{Kind: wasm.OpLocalGet, LocalIndex: l + 1},
		{Kind: wasm.OpI64Load, Mem: mem},
		{Kind: wasm.OpI64Const, I64: mask},
		{Kind: wasm.OpI64And},
		{Kind: wasm.OpLocalGet, LocalIndex: l},
		{Kind: wasm.OpI64Or},
		{Kind: wasm.OpI64Store, Mem: mem},
	}
	out := make([]MachOp[A], len(ops))
	for i, o := range ops {
		out[i] = Operator[A](o, annot)
	}
	return out
}

// storeSeq32 is storeSeq preceded by an I64ExtendI32U, for I32Store{8,16}.
func (c *Coalesce[A]) storeSeq32(mem wasm.MemArg, l uint32, mask int64, annot A) []MachOp[A] {
	head := []wasm.Operator{
		{Kind: wasm.OpLocalSet, LocalIndex: l},
		{Kind: wasm.OpI64ExtendI32U},
	}
	rest := []wasm.Operator{
		{Kind: wasm.OpLocalTee, LocalIndex: l + 1},
		{Kind: wasm.OpLocalGet, LocalIndex: l + 1},
		{Kind: wasm.OpI64Load, Mem: mem},
		{Kind: wasm.OpI64Const, I64: mask},
		{Kind: wasm.OpI64And},
		{Kind: wasm.OpLocalGet, LocalIndex: l},
		{Kind: wasm.OpI64Or},
		{Kind: wasm.OpI64Store, Mem: mem},
	}
	all := append(append([]wasm.Operator{}, head...), rest...)
	out := make([]MachOp[A], len(all))
	for i, o := range all {
		out[i] = Operator[A](o, annot)
	}
	return out
}

// storeSeqNoMask32 lowers I32Store per the table: unlike the narrow-store
// variants, no mask/And precedes the Or with the loaded 64-bit value.
func (c *Coalesce[A]) storeSeqNoMask32(mem wasm.MemArg, l uint32, annot A) []MachOp[A] {
	ops := []wasm.Operator{
		{Kind: wasm.OpLocalSet, LocalIndex: l},
		{Kind: wasm.OpI64ExtendI32U},
		{Kind: wasm.OpLocalTee, LocalIndex: l + 1},
		{Kind: wasm.OpLocalGet, LocalIndex: l + 1},
		{Kind: wasm.OpI64Load, Mem: mem},
		{Kind: wasm.OpLocalGet, LocalIndex: l},
		{Kind: wasm.OpI64Or},
		{Kind: wasm.OpI64Store, Mem: mem},
	}
	out := make([]MachOp[A], len(ops))
	for i, o := range ops {
		out[i] = Operator[A](o, annot)
	}
	return out
}
