// Package reencode lowers a coalesced MachOp stream back into raw Wasm
// binary bytecode: a backend of last resort that lets the same pipeline
// driving the native/JS backends also emit an optimized (dead-code-eliminated,
// load/store-coalesced) Wasm module, rather than a different machine target.
package reencode

import (
	"fmt"

	"github.com/wasm-blitz/blitzc/internal/leb128"
	"github.com/wasm-blitz/blitzc/internal/ops"
	"github.com/wasm-blitz/blitzc/internal/wasm"
)

// ErrUnsupportedBlockType is returned for a multi-value block signature: this
// backend only round-trips the single-result/no-result block shapes the rest
// of this compiler's Operator decoding preserves enough information to
// re-derive without access to the original module's Type section.
var ErrUnsupportedBlockType = fmt.Errorf("reencode: multi-value block type cannot be round-tripped")

// ErrUnsupportedOperator mirrors wasm.OpUnsupported: an operator this
// compiler never decoded the semantics of cannot be safely re-emitted.
var ErrUnsupportedOperator = fmt.Errorf("reencode: unsupported operator")

// Func is one re-encoded function body, matching the Wasm binary format:
// a vector of compressed local-declaration runs followed by the
// instruction bytes (the trailing 0x0b "end" opcode included).
type Func struct {
	Locals []LocalRun
	Code   []byte
}

// LocalRun is one run of locals sharing a type, exactly as Wasm's binary
// format compresses them.
type LocalRun struct {
	Count uint32
	Type  wasm.ValType
}

// Encoder accumulates one function's re-encoded body at a time. Call Lower
// once per function's MachOp stream, then Func to retrieve the result before
// moving to the next function.
type Encoder struct {
	locals []LocalRun
	code   []byte
}

// NewEncoder constructs an empty Encoder, ready for one function's stream.
func NewEncoder() *Encoder { return &Encoder{} }

// Func returns the function body accumulated by the most recent Lower call.
func (e *Encoder) Func() Func {
	return Func{Locals: append([]LocalRun(nil), e.locals...), Code: append([]byte(nil), e.code...)}
}

// Reset clears e's accumulated state so it can be reused for the next
// function instead of allocating a new Encoder.
func (e *Encoder) Reset() {
	e.locals = nil
	e.code = nil
}

// Lower drains src, a single function's MachOp stream, into e's function
// body. A fresh Encoder (or a reset one, see Reset) must be used per
// function — this mirrors every other backend's one-Lower-per-function
// contract.
func (e *Encoder) Lower(src ops.Stream[ops.WasmInfo]) error {
	for {
		op, err := src.Next()
		if err != nil {
			return err
		}
		if err := e.handle(op); err != nil {
			return err
		}
		if op.Kind == ops.KindEndBody {
			return nil
		}
	}
}

func (e *Encoder) handle(op ops.MachOp[ops.WasmInfo]) error {
	switch op.Kind {
	case ops.KindStartFn, ops.KindStartBody, ops.KindEndBody:
		return nil

	case ops.KindLocal:
		e.locals = append(e.locals, LocalRun{Count: op.LocalCount, Type: op.LocalType})
		return nil

	case ops.KindOperator:
		if op.Op == nil {
			return nil
		}
		return e.encodeOp(*op.Op)

	default:
		return fmt.Errorf("%w: MachOp kind %s", ErrUnsupportedOperator, op.Kind)
	}
}

func (e *Encoder) byte(b byte) { e.code = append(e.code, b) }

func (e *Encoder) u32(v uint32) { e.code = leb128.EncodeUint32(e.code, v) }

func (e *Encoder) i32(v int32) { e.code = leb128.EncodeInt32(e.code, v) }

func (e *Encoder) i64(v int64) { e.code = leb128.EncodeInt64(e.code, v) }

func (e *Encoder) blockType(bt wasm.BlockType) error {
	switch {
	case len(bt.Params) == 0 && len(bt.Results) == 0:
		e.byte(0x40)
	case len(bt.Params) == 0 && len(bt.Results) == 1:
		e.byte(byte(bt.Results[0]))
	default:
		return ErrUnsupportedBlockType
	}
	return nil
}

func (e *Encoder) memArg(m wasm.MemArg) {
	e.u32(m.Align)
	e.u32(m.Offset)
}

func (e *Encoder) encodeOp(op wasm.Operator) error {
	if b, ok := opcodeByKind[op.Kind]; ok {
		e.byte(b)
		return nil
	}

	switch op.Kind {
	case wasm.OpBlock:
		e.byte(0x02)
		return e.blockType(op.Block)
	case wasm.OpLoop:
		e.byte(0x03)
		return e.blockType(op.Block)
	case wasm.OpIf:
		e.byte(0x04)
		return e.blockType(op.Block)
	case wasm.OpElse:
		e.byte(0x05)
		return nil
	case wasm.OpEnd:
		e.byte(0x0b)
		return nil

	case wasm.OpBr:
		e.byte(0x0c)
		e.u32(op.Depth)
		return nil
	case wasm.OpBrIf:
		e.byte(0x0d)
		e.u32(op.Depth)
		return nil
	case wasm.OpBrTable:
		e.byte(0x0e)
		e.u32(uint32(len(op.Targets)))
		for _, t := range op.Targets {
			e.u32(t)
		}
		e.u32(op.Default)
		return nil

	case wasm.OpCall:
		e.byte(0x10)
		e.u32(op.FuncIndex)
		return nil

	case wasm.OpLocalGet:
		e.byte(0x20)
		e.u32(op.LocalIndex)
		return nil
	case wasm.OpLocalSet:
		e.byte(0x21)
		e.u32(op.LocalIndex)
		return nil
	case wasm.OpLocalTee:
		e.byte(0x22)
		e.u32(op.LocalIndex)
		return nil

	case wasm.OpI32Const:
		e.byte(0x41)
		e.i32(op.I32)
		return nil
	case wasm.OpI64Const:
		e.byte(0x42)
		e.i64(op.I64)
		return nil

	default:
		if b, ok := memOpcodeByKind[op.Kind]; ok {
			e.byte(b)
			e.memArg(op.Mem)
			return nil
		}
		if op.Kind == wasm.OpUnsupported {
			return fmt.Errorf("%w: opcode 0x%02x", ErrUnsupportedOperator, op.RawOpcode)
		}
		return fmt.Errorf("%w: %v", ErrUnsupportedOperator, op.Kind)
	}
}

// opcodeByKind covers every zero-immediate or single-immediate-handled-above
// operator with a fixed, argument-free encoding (arithmetic, comparisons,
// the structural no-immediate opcodes already special-cased above are
// excluded).
var opcodeByKind = map[wasm.OpKind]byte{
	wasm.OpUnreachable: 0x00,
	wasm.OpNop:         0x01,
	wasm.OpReturn:      0x0f,
	wasm.OpDrop:        0x1a,

	wasm.OpI32Eqz: 0x45, wasm.OpI32Eq: 0x46, wasm.OpI32Ne: 0x47,
	wasm.OpI32LtS: 0x48, wasm.OpI32LtU: 0x49, wasm.OpI32GtS: 0x4a, wasm.OpI32GtU: 0x4b,
	wasm.OpI32LeS: 0x4c, wasm.OpI32LeU: 0x4d, wasm.OpI32GeS: 0x4e, wasm.OpI32GeU: 0x4f,

	wasm.OpI64Eqz: 0x50, wasm.OpI64Eq: 0x51, wasm.OpI64Ne: 0x52,
	wasm.OpI64LtS: 0x53, wasm.OpI64LtU: 0x54, wasm.OpI64GtS: 0x55, wasm.OpI64GtU: 0x56,
	wasm.OpI64LeS: 0x57, wasm.OpI64LeU: 0x58, wasm.OpI64GeS: 0x59, wasm.OpI64GeU: 0x5a,

	wasm.OpI32Add: 0x6a, wasm.OpI32Sub: 0x6b, wasm.OpI32Mul: 0x6c,
	wasm.OpI32DivS: 0x6d, wasm.OpI32DivU: 0x6e, wasm.OpI32RemS: 0x6f, wasm.OpI32RemU: 0x70,
	wasm.OpI32And: 0x71, wasm.OpI32Or: 0x72, wasm.OpI32Xor: 0x73,
	wasm.OpI32Shl: 0x74, wasm.OpI32ShrS: 0x75, wasm.OpI32ShrU: 0x76,

	wasm.OpI64Add: 0x7c, wasm.OpI64Sub: 0x7d, wasm.OpI64Mul: 0x7e,
	wasm.OpI64DivS: 0x7f, wasm.OpI64DivU: 0x80, wasm.OpI64RemS: 0x81, wasm.OpI64RemU: 0x82,
	wasm.OpI64And: 0x83, wasm.OpI64Or: 0x84, wasm.OpI64Xor: 0x85,
	wasm.OpI64Shl: 0x86, wasm.OpI64ShrS: 0x87, wasm.OpI64ShrU: 0x88,

	wasm.OpI32WrapI64:    0xa7,
	wasm.OpI64ExtendI32S: 0xac,
	wasm.OpI64ExtendI32U: 0xad,
}

var memOpcodeByKind = map[wasm.OpKind]byte{
	wasm.OpI32Load: 0x28, wasm.OpI64Load: 0x29,
	wasm.OpI32Load8U: 0x2d, wasm.OpI32Load16U: 0x2f,
	wasm.OpI64Load8U: 0x31, wasm.OpI64Load16U: 0x33, wasm.OpI64Load32U: 0x35,
	wasm.OpI32Store: 0x36, wasm.OpI64Store: 0x37,
	wasm.OpI32Store8: 0x3a, wasm.OpI32Store16: 0x3b,
	wasm.OpI64Store8: 0x3c, wasm.OpI64Store16: 0x3d, wasm.OpI64Store32: 0x3e,
}
