// Package wasm decodes the subset of the Wasm 1.0 binary module format this
// compiler needs to drive code generation: the Type, Import, Function and
// Code sections. Validation, the text format, and host-import ecosystems are
// out of scope — callers are expected to hand this package an
// already-validated module.
package wasm

// ValType is a Wasm value type.
type ValType byte

const (
	ValTypeI32 ValType = 0x7f
	ValTypeI64 ValType = 0x7e
	ValTypeF32 ValType = 0x7d
	ValTypeF64 ValType = 0x7c
)

func (v ValType) String() string {
	switch v {
	case ValTypeI32:
		return "i32"
	case ValTypeI64:
		return "i64"
	case ValTypeF32:
		return "f32"
	case ValTypeF64:
		return "f64"
	default:
		return "unknown"
	}
}

// FuncType is a function signature: parameter and result value types.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// BlockType is the signature of a block/loop/if. A BlockType with no params
// and at most one result is encoded inline in Wasm; this compiler only needs
// the resolved arity, which the module decoder resolves against Types for
// multi-value block types.
type BlockType struct {
	Params  []ValType
	Results []ValType
}

// Import describes a single imported function. Only function imports matter
// to this compiler; table/memory/global imports are tracked only insofar as
// they occupy no function-index slot.
type Import struct {
	Module string
	Field  string
	Type   FuncType
}

// IsHypercall reports whether this import follows the "blitz" hypercall
// convention: module "blitz", field beginning with "hypercall".
func (i Import) IsHypercall() bool {
	return i.Module == "blitz" && len(i.Field) >= len("hypercall") && i.Field[:len("hypercall")] == "hypercall"
}

// Local is a single local-variable declaration entry (a run of locals sharing
// a type, as Wasm encodes them).
type Local struct {
	Count uint32
	Type  ValType
}

// FunctionBody is one decoded Code-section entry: its local declarations and
// raw operator bytes (not yet decoded into Operators — decoding is streamed
// lazily by Reader).
type FunctionBody struct {
	Locals []Local
	Code   []byte
}

// Module is the decoded subset of a Wasm binary module this compiler reads.
type Module struct {
	Types     []FuncType
	Imports   []Import
	// FuncTypeIndices maps non-imported function index -> index into Types.
	FuncTypeIndices []uint32
	Bodies          []FunctionBody
}

// NumImportedFuncs returns how many function-index slots are occupied by
// imports, i.e. the offset at which locally-defined function indices begin.
func (m *Module) NumImportedFuncs() int {
	n := 0
	for range m.Imports {
		n++
	}
	return n
}

// FuncType resolves the signature of function index idx, accounting for the
// imported-function index offset.
func (m *Module) FuncType(idx uint32) FuncType {
	nImported := uint32(m.NumImportedFuncs())
	if idx < nImported {
		return m.Imports[idx].Type
	}
	return m.Types[m.FuncTypeIndices[idx-nImported]]
}
