// Package ops implements the machine-operator IR that unifies parsed Wasm
// operators and pre-lowered target instructions under a single streaming
// representation with per-instruction annotations, plus the two structural
// passes that run over it before any backend sees the stream: dead-code
// elimination and load/store coalescing.
package ops

import "github.com/wasm-blitz/blitzc/internal/wasm"

// Kind discriminates the variants of MachOp. Modeled as a tagged sum (a
// discriminant plus a payload) rather than an interface hierarchy, per the
// one-IR-one-type design this compiler follows throughout.
type Kind int

const (
	KindOperator Kind = iota
	KindInstruction
	KindTrap
	KindLocal
	KindStartFn
	KindStartBody
	KindEndBody
)

func (k Kind) String() string {
	switch k {
	case KindOperator:
		return "Operator"
	case KindInstruction:
		return "Instruction"
	case KindTrap:
		return "Trap"
	case KindLocal:
		return "Local"
	case KindStartFn:
		return "StartFn"
	case KindStartBody:
		return "StartBody"
	case KindEndBody:
		return "EndBody"
	default:
		return "Unknown"
	}
}

// TargetInstr is a pre-lowered, target-specific instruction that bypasses
// Wasm operator semantics entirely. Backends that need to splice raw
// instructions into the MachOp stream (rather than driving the Writer
// directly) use this; none of the backends in this module currently need
// to, but the variant exists because the IR's contract requires it.
type TargetInstr struct {
	Name string
	Args []int64
}

// WasmInfo is the canonical annotation: the byte offset of the operator
// within its function body, as reported by the parser.
type WasmInfo struct {
	Offset uint32
}

// FromWasmInfo is the canonical identity annotation factory for WasmInfo
// itself, satisfying AnnotFactory[WasmInfo].
func FromWasmInfo(w WasmInfo) WasmInfo { return w }

// AnnotFactory constructs an annotation value of type A from the parser's
// WasmInfo. Go has no way to call a "static" method on a type parameter, so
// the factory is threaded through explicitly wherever a stream is built,
// rather than expressed as a method constraint on A.
type AnnotFactory[A any] func(WasmInfo) A

// FnData describes a function body's shape, computed once at StartFn:
// parameter/result arity (to resolve calling convention) and the maximum
// static nesting depth of block/loop/if (to size the control-frame save
// area). This is always a nested struct within StartFn, never flattened —
// see DESIGN.md for why multiple historical variants of this shape exist.
type FnData struct {
	NumParams    int
	NumReturns   int
	ControlDepth int
}

// MachOp is one token in the streaming IR: a parsed Wasm operator, a
// pre-lowered target instruction, or a stream-structural marker, tagged
// with an annotation of type A.
type MachOp[A any] struct {
	Kind Kind

	// KindOperator. Op == nil models a no-op operator (e.g. a decoded
	// wasm.OpNop) that still carries an annotation.
	Op *wasm.Operator

	// KindInstruction
	Instr TargetInstr

	// KindTrap
	Conditional bool

	// KindLocal
	LocalCount uint32
	LocalType  wasm.ValType

	// KindStartFn
	FnID uint32
	Data FnData

	Annot A
}

// Operator constructs a KindOperator MachOp.
func Operator[A any](op wasm.Operator, annot A) MachOp[A] {
	o := op
	return MachOp[A]{Kind: KindOperator, Op: &o, Annot: annot}
}

// NoOp constructs a KindOperator MachOp with no underlying Wasm operator —
// an annotation-only placeholder.
func NoOp[A any](annot A) MachOp[A] {
	return MachOp[A]{Kind: KindOperator, Op: nil, Annot: annot}
}

// Local constructs a KindLocal MachOp.
func Local[A any](count uint32, ty wasm.ValType) MachOp[A] {
	return MachOp[A]{Kind: KindLocal, LocalCount: count, LocalType: ty}
}

// StartFn constructs a KindStartFn MachOp.
func StartFn[A any](id uint32, data FnData) MachOp[A] {
	return MachOp[A]{Kind: KindStartFn, FnID: id, Data: data}
}

// StartBody constructs a KindStartBody MachOp.
func StartBody[A any]() MachOp[A] {
	return MachOp[A]{Kind: KindStartBody}
}

// EndBody constructs a KindEndBody MachOp.
func EndBody[A any]() MachOp[A] {
	return MachOp[A]{Kind: KindEndBody}
}

// Stream is a lazy, pull-based sequence of MachOps. Next returns io.EOF
// (wrapped, where a stage needs to add context) once exhausted. No stage in
// this package ever needs random access.
type Stream[A any] interface {
	Next() (MachOp[A], error)
}
