package wasm

// OpKind discriminates the Wasm operators this compiler understands. Not
// every Wasm 1.0 opcode has a Kind here: operators outside this compiler's
// scope (SIMD, multi-memory, reference types, ...) are decoded as
// OpUnsupported and carry their raw opcode byte, so a backend can surface
// ErrUnsupportedOperator rather than silently mis-lowering them.
type OpKind uint16

const (
	OpUnreachable OpKind = iota
	OpNop
	OpBlock
	OpLoop
	OpIf
	OpElse
	OpEnd
	OpBr
	OpBrIf
	OpBrTable
	OpReturn
	OpCall
	OpDrop

	OpLocalGet
	OpLocalSet
	OpLocalTee

	OpI32Const
	OpI64Const

	OpI32Eqz
	OpI32Eq
	OpI32Ne
	OpI32LtS
	OpI32LtU
	OpI32GtS
	OpI32GtU
	OpI32LeS
	OpI32LeU
	OpI32GeS
	OpI32GeU

	OpI64Eqz
	OpI64Eq
	OpI64Ne
	OpI64LtS
	OpI64LtU
	OpI64GtS
	OpI64GtU
	OpI64LeS
	OpI64LeU
	OpI64GeS
	OpI64GeU

	OpI32Add
	OpI32Sub
	OpI32Mul
	OpI32DivS
	OpI32DivU
	OpI32RemS
	OpI32RemU
	OpI32And
	OpI32Or
	OpI32Xor
	OpI32Shl
	OpI32ShrS
	OpI32ShrU

	OpI64Add
	OpI64Sub
	OpI64Mul
	OpI64DivS
	OpI64DivU
	OpI64RemS
	OpI64RemU
	OpI64And
	OpI64Or
	OpI64Xor
	OpI64Shl
	OpI64ShrS
	OpI64ShrU

	OpI32WrapI64
	OpI64ExtendI32U
	OpI64ExtendI32S

	OpI32Load
	OpI32Load8U
	OpI32Load16U
	OpI64Load
	OpI64Load8U
	OpI64Load16U
	OpI64Load32U

	OpI32Store
	OpI32Store8
	OpI32Store16
	OpI64Store
	OpI64Store8
	OpI64Store16
	OpI64Store32

	OpUnsupported
)

// IsTerminator reports whether this operator unconditionally transfers
// control, making everything up to the matching `end` dead per the DCE pass.
func (k OpKind) IsTerminator() bool {
	switch k {
	case OpBr, OpBrTable, OpReturn, OpUnreachable:
		return true
	default:
		return false
	}
}

// MemArg is a load/store's alignment hint and byte offset.
type MemArg struct {
	Align  uint32
	Offset uint32
}

// Operator is one decoded Wasm instruction plus its immediates. Not every
// field is populated for every Kind; which fields apply follows directly
// from Kind, the same way wasmparser's Operator enum carries per-variant
// payloads.
type Operator struct {
	Kind OpKind

	// OpBlock / OpLoop / OpIf
	Block BlockType

	// OpBr / OpBrIf: relative depth. OpBrTable: Targets + Default.
	Depth   uint32
	Targets []uint32
	Default uint32

	// OpCall
	FuncIndex uint32

	// OpLocalGet / OpLocalSet / OpLocalTee
	LocalIndex uint32

	// OpI32Const
	I32 int32
	// OpI64Const
	I64 int64

	// load/store
	Mem MemArg

	// OpUnsupported: the raw opcode byte, for diagnostics.
	RawOpcode byte
}
