package ops

import "github.com/wasm-blitz/blitzc/internal/wasm"

// DceStack tracks, per nesting level, whether the region is currently
// unreachable (a terminator has dominated it since the last block/else
// boundary at that level).
type DceStack []bool

func (s *DceStack) push() { *s = append(*s, false) }

// pop is a no-op on an empty stack: the function-ending End has no matching
// push (the implicit outermost block is never pushed), so this must behave
// like Vec::pop rather than panic on an empty slice.
func (s *DceStack) pop() {
	if len(*s) > 0 {
		*s = (*s)[:len(*s)-1]
	}
}
func (s *DceStack) setTop(v bool) {
	if len(*s) > 0 {
		(*s)[len(*s)-1] = v
	}
}
func (s *DceStack) reset() { *s = (*s)[:0] }
func (s *DceStack) anyUnreachable() bool {
	for _, v := range *s {
		if v {
			return true
		}
	}
	return false
}

// DCE filters operators that are unreachable — dominated by a terminator
// still in scope — out of a MachOp stream. block/loop/if/else/end and the
// terminators themselves are never dropped: they carry control structure
// or are precisely what flips the reachability flag, and dropping them
// would desynchronize the control stack or label indices of every backend
// that consumes the stream afterward.
type DCE[A any] struct {
	src   Stream[A]
	stack DceStack
}

// NewDCE wraps src with the dead-code-elimination pass.
func NewDCE[A any](src Stream[A]) *DCE[A] {
	return &DCE[A]{src: src}
}

// Next implements Stream[A].
func (d *DCE[A]) Next() (MachOp[A], error) {
	for {
		op, err := d.src.Next()
		if err != nil {
			return MachOp[A]{}, err
		}
		if op.Kind == KindEndBody {
			d.stack.reset()
			return op, nil
		}
		if op.Kind == KindStartFn {
			d.stack.reset()
			return op, nil
		}
		if op.Kind != KindOperator || op.Op == nil {
			return op, nil
		}
		switch op.Op.Kind {
		case wasm.OpElse:
			d.stack.setTop(false)
			return op, nil
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			d.stack.push()
			return op, nil
		case wasm.OpEnd:
			d.stack.pop()
			return op, nil
		}
		if op.Op.Kind.IsTerminator() {
			d.stack.setTop(true)
			return op, nil
		}
		if d.stack.anyUnreachable() {
			continue
		}
		return op, nil
	}
}
