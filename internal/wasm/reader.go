package wasm

import (
	"bytes"
	"fmt"
	"io"

	"github.com/wasm-blitz/blitzc/internal/leb128"
)

const (
	byteUnreachable = 0x00
	byteNop         = 0x01
	byteBlock       = 0x02
	byteLoop        = 0x03
	byteIf          = 0x04
	byteElse        = 0x05
	byteEnd         = 0x0b
	byteBr          = 0x0c
	byteBrIf        = 0x0d
	byteBrTable     = 0x0e
	byteReturn      = 0x0f
	byteCall        = 0x10
	byteDrop        = 0x1a

	byteLocalGet = 0x20
	byteLocalSet = 0x21
	byteLocalTee = 0x22

	byteI32Const = 0x41
	byteI64Const = 0x42

	byteI32Load    = 0x28
	byteI64Load    = 0x29
	byteI32Load8S  = 0x2c
	byteI32Load8U  = 0x2d
	byteI32Load16S = 0x2e
	byteI32Load16U = 0x2f
	byteI64Load8S  = 0x30
	byteI64Load8U  = 0x31
	byteI64Load16S = 0x32
	byteI64Load16U = 0x33
	byteI64Load32S = 0x34
	byteI64Load32U = 0x35
	byteI32Store   = 0x36
	byteI64Store   = 0x37
	byteI32Store8  = 0x3a
	byteI32Store16 = 0x3b
	byteI64Store8  = 0x3c
	byteI64Store16 = 0x3d
	byteI64Store32 = 0x3e

	byteI32Eqz = 0x45
	byteI32Eq  = 0x46
	byteI32Ne  = 0x47
	byteI32LtS = 0x48
	byteI32LtU = 0x49
	byteI32GtS = 0x4a
	byteI32GtU = 0x4b
	byteI32LeS = 0x4c
	byteI32LeU = 0x4d
	byteI32GeS = 0x4e
	byteI32GeU = 0x4f

	byteI64Eqz = 0x50
	byteI64Eq  = 0x51
	byteI64Ne  = 0x52
	byteI64LtS = 0x53
	byteI64LtU = 0x54
	byteI64GtS = 0x55
	byteI64GtU = 0x56
	byteI64LeS = 0x57
	byteI64LeU = 0x58
	byteI64GeS = 0x59
	byteI64GeU = 0x5a

	byteI32Add  = 0x6a
	byteI32Sub  = 0x6b
	byteI32Mul  = 0x6c
	byteI32DivS = 0x6d
	byteI32DivU = 0x6e
	byteI32RemS = 0x6f
	byteI32RemU = 0x70
	byteI32And  = 0x71
	byteI32Or   = 0x72
	byteI32Xor  = 0x73
	byteI32Shl  = 0x74
	byteI32ShrS = 0x75
	byteI32ShrU = 0x76

	byteI64Add  = 0x7c
	byteI64Sub  = 0x7d
	byteI64Mul  = 0x7e
	byteI64DivS = 0x7f
	byteI64DivU = 0x80
	byteI64RemS = 0x81
	byteI64RemU = 0x82
	byteI64And  = 0x83
	byteI64Or   = 0x84
	byteI64Xor  = 0x85
	byteI64Shl  = 0x86
	byteI64ShrS = 0x87
	byteI64ShrU = 0x88

	byteI32WrapI64     = 0xa7
	byteI64ExtendI32S  = 0xac
	byteI64ExtendI32U  = 0xad

	byteBlockTypeEmpty = 0x40
)

// Reader decodes a function body's raw operator bytes into Operators one at
// a time, reporting the byte offset of each as it goes. Operators is
// pull-based: callers drive it with Next, mirroring the rest of this
// compiler's streaming design.
type Reader struct {
	types []FuncType
	br    *bytes.Reader
	total int
}

// NewReader constructs a Reader over a function body's code bytes. types is
// the module's Type section, used to resolve multi-value block signatures.
func NewReader(code []byte, types []FuncType) *Reader {
	return &Reader{types: types, br: bytes.NewReader(code), total: len(code)}
}

// Offset returns the byte offset of the next operator to be decoded.
func (r *Reader) Offset() uint32 {
	return uint32(r.total - r.br.Len())
}

// Next decodes the next operator, returning io.EOF once the body is
// exhausted.
func (r *Reader) Next() (Operator, uint32, error) {
	offset := r.Offset()
	b, err := r.br.ReadByte()
	if err != nil {
		return Operator{}, offset, io.EOF
	}
	op, err := r.decodeOne(b)
	if err != nil {
		return Operator{}, offset, err
	}
	return op, offset, nil
}

func (r *Reader) decodeOne(b byte) (Operator, error) {
	switch b {
	case byteUnreachable:
		return Operator{Kind: OpUnreachable}, nil
	case byteNop:
		return Operator{Kind: OpNop}, nil
	case byteBlock, byteLoop, byteIf:
		bt, err := r.decodeBlockType()
		if err != nil {
			return Operator{}, err
		}
		kind := map[byte]OpKind{byteBlock: OpBlock, byteLoop: OpLoop, byteIf: OpIf}[b]
		return Operator{Kind: kind, Block: bt}, nil
	case byteElse:
		return Operator{Kind: OpElse}, nil
	case byteEnd:
		return Operator{Kind: OpEnd}, nil
	case byteBr, byteBrIf:
		d, _, err := leb128.DecodeUint32(r.br)
		if err != nil {
			return Operator{}, err
		}
		kind := OpBr
		if b == byteBrIf {
			kind = OpBrIf
		}
		return Operator{Kind: kind, Depth: d}, nil
	case byteBrTable:
		n, _, err := leb128.DecodeUint32(r.br)
		if err != nil {
			return Operator{}, err
		}
		targets := make([]uint32, n)
		for i := range targets {
			v, _, err := leb128.DecodeUint32(r.br)
			if err != nil {
				return Operator{}, err
			}
			targets[i] = v
		}
		def, _, err := leb128.DecodeUint32(r.br)
		if err != nil {
			return Operator{}, err
		}
		return Operator{Kind: OpBrTable, Targets: targets, Default: def}, nil
	case byteReturn:
		return Operator{Kind: OpReturn}, nil
	case byteCall:
		idx, _, err := leb128.DecodeUint32(r.br)
		if err != nil {
			return Operator{}, err
		}
		return Operator{Kind: OpCall, FuncIndex: idx}, nil
	case byteDrop:
		return Operator{Kind: OpDrop}, nil
	case byteLocalGet, byteLocalSet, byteLocalTee:
		idx, _, err := leb128.DecodeUint32(r.br)
		if err != nil {
			return Operator{}, err
		}
		kind := map[byte]OpKind{byteLocalGet: OpLocalGet, byteLocalSet: OpLocalSet, byteLocalTee: OpLocalTee}[b]
		return Operator{Kind: kind, LocalIndex: idx}, nil
	case byteI32Const:
		v, _, err := leb128.DecodeInt32(r.br)
		if err != nil {
			return Operator{}, err
		}
		return Operator{Kind: OpI32Const, I32: v}, nil
	case byteI64Const:
		v, _, err := leb128.DecodeInt64(r.br)
		if err != nil {
			return Operator{}, err
		}
		return Operator{Kind: OpI64Const, I64: v}, nil
	case byteI32WrapI64:
		return Operator{Kind: OpI32WrapI64}, nil
	case byteI64ExtendI32U:
		return Operator{Kind: OpI64ExtendI32U}, nil
	case byteI64ExtendI32S:
		return Operator{Kind: OpI64ExtendI32S}, nil
	}
	if kind, ok := cmpOpcodes[b]; ok {
		return Operator{Kind: kind}, nil
	}
	if kind, ok := arithOpcodes[b]; ok {
		return Operator{Kind: kind}, nil
	}
	if kind, ok := memOpcodes[b]; ok {
		mem, err := r.decodeMemArg()
		if err != nil {
			return Operator{}, err
		}
		return Operator{Kind: kind, Mem: mem}, nil
	}
	return Operator{Kind: OpUnsupported, RawOpcode: b}, nil
}

var cmpOpcodes = map[byte]OpKind{
	byteI32Eqz: OpI32Eqz, byteI32Eq: OpI32Eq, byteI32Ne: OpI32Ne,
	byteI32LtS: OpI32LtS, byteI32LtU: OpI32LtU, byteI32GtS: OpI32GtS, byteI32GtU: OpI32GtU,
	byteI32LeS: OpI32LeS, byteI32LeU: OpI32LeU, byteI32GeS: OpI32GeS, byteI32GeU: OpI32GeU,
	byteI64Eqz: OpI64Eqz, byteI64Eq: OpI64Eq, byteI64Ne: OpI64Ne,
	byteI64LtS: OpI64LtS, byteI64LtU: OpI64LtU, byteI64GtS: OpI64GtS, byteI64GtU: OpI64GtU,
	byteI64LeS: OpI64LeS, byteI64LeU: OpI64LeU, byteI64GeS: OpI64GeS, byteI64GeU: OpI64GeU,
}

var arithOpcodes = map[byte]OpKind{
	byteI32Add: OpI32Add, byteI32Sub: OpI32Sub, byteI32Mul: OpI32Mul,
	byteI32DivS: OpI32DivS, byteI32DivU: OpI32DivU, byteI32RemS: OpI32RemS, byteI32RemU: OpI32RemU,
	byteI32And: OpI32And, byteI32Or: OpI32Or, byteI32Xor: OpI32Xor,
	byteI32Shl: OpI32Shl, byteI32ShrS: OpI32ShrS, byteI32ShrU: OpI32ShrU,
	byteI64Add: OpI64Add, byteI64Sub: OpI64Sub, byteI64Mul: OpI64Mul,
	byteI64DivS: OpI64DivS, byteI64DivU: OpI64DivU, byteI64RemS: OpI64RemS, byteI64RemU: OpI64RemU,
	byteI64And: OpI64And, byteI64Or: OpI64Or, byteI64Xor: OpI64Xor,
	byteI64Shl: OpI64Shl, byteI64ShrS: OpI64ShrS, byteI64ShrU: OpI64ShrU,
}

var memOpcodes = map[byte]OpKind{
	byteI32Load: OpI32Load, byteI32Load8U: OpI32Load8U, byteI32Load16U: OpI32Load16U,
	byteI64Load: OpI64Load, byteI64Load8U: OpI64Load8U, byteI64Load16U: OpI64Load16U, byteI64Load32U: OpI64Load32U,
	byteI32Store: OpI32Store, byteI32Store8: OpI32Store8, byteI32Store16: OpI32Store16,
	byteI64Store: OpI64Store, byteI64Store8: OpI64Store8, byteI64Store16: OpI64Store16, byteI64Store32: OpI64Store32,
}

func (r *Reader) decodeMemArg() (MemArg, error) {
	align, _, err := leb128.DecodeUint32(r.br)
	if err != nil {
		return MemArg{}, err
	}
	offset, _, err := leb128.DecodeUint32(r.br)
	if err != nil {
		return MemArg{}, err
	}
	return MemArg{Align: align, Offset: offset}, nil
}

func (r *Reader) decodeBlockType() (BlockType, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return BlockType{}, err
	}
	if b == byteBlockTypeEmpty {
		return BlockType{}, nil
	}
	switch ValType(b) {
	case ValTypeI32, ValTypeI64, ValTypeF32, ValTypeF64:
		return BlockType{Results: []ValType{ValType(b)}}, nil
	}
	if err := r.br.UnreadByte(); err != nil {
		return BlockType{}, err
	}
	idx, _, err := leb128.DecodeInt64(r.br)
	if err != nil {
		return BlockType{}, err
	}
	if idx < 0 || int(idx) >= len(r.types) {
		return BlockType{}, fmt.Errorf("%w: block type index out of range", ErrParse)
	}
	ft := r.types[idx]
	return BlockType{Params: ft.Params, Results: ft.Results}, nil
}
