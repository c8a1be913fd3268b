package wasm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/wasm-blitz/blitzc/internal/leb128"
)

// ErrParse is the sentinel wrapped by every malformed-input error this
// package returns.
var ErrParse = errors.New("wasm: malformed module")

var magic = [4]byte{0x00, 0x61, 0x73, 0x6d}

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionCode     = 10
)

// DecodeModule parses the Type, Import, Function and Code sections of a
// Wasm 1.0 binary module. Any other section is skipped by byte length
// without interpretation, matching this compiler's stated scope: it reads
// only what it needs to drive code generation.
func DecodeModule(r io.Reader) (*Module, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(buf) < 8 || [4]byte(buf[:4]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrParse)
	}
	version := binary.LittleEndian.Uint32(buf[4:8])
	if version != 1 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrParse, version)
	}

	m := &Module{}
	var funcTypeIdx []uint32
	br := bytes.NewReader(buf[8:])
	for br.Len() > 0 {
		id, err := br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		size, _, err := leb128.DecodeUint32(br)
		if err != nil {
			return nil, fmt.Errorf("%w: section size: %v", ErrParse, err)
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, fmt.Errorf("%w: section body: %v", ErrParse, err)
		}
		sr := bytes.NewReader(body)
		switch id {
		case sectionType:
			if m.Types, err = decodeTypeSection(sr); err != nil {
				return nil, err
			}
		case sectionImport:
			if m.Imports, err = decodeImportSection(sr, m.Types); err != nil {
				return nil, err
			}
		case sectionFunction:
			if funcTypeIdx, err = decodeFunctionSection(sr); err != nil {
				return nil, err
			}
		case sectionCode:
			if m.Bodies, err = decodeCodeSection(sr); err != nil {
				return nil, err
			}
		}
	}
	m.FuncTypeIndices = funcTypeIdx
	return m, nil
}

func decodeValType(br *bytes.Reader) (ValType, error) {
	b, err := br.ReadByte()
	if err != nil {
		return 0, err
	}
	switch ValType(b) {
	case ValTypeI32, ValTypeI64, ValTypeF32, ValTypeF64:
		return ValType(b), nil
	default:
		return 0, fmt.Errorf("%w: unknown value type 0x%x", ErrParse, b)
	}
}

func decodeTypeSection(br *bytes.Reader) ([]FuncType, error) {
	count, _, err := leb128.DecodeUint32(br)
	if err != nil {
		return nil, fmt.Errorf("%w: type count: %v", ErrParse, err)
	}
	types := make([]FuncType, 0, count)
	for i := uint32(0); i < count; i++ {
		form, err := br.ReadByte()
		if err != nil || form != 0x60 {
			return nil, fmt.Errorf("%w: expected func type form", ErrParse)
		}
		ft, err := decodeFuncTypeBody(br)
		if err != nil {
			return nil, err
		}
		types = append(types, ft)
	}
	return types, nil
}

func decodeFuncTypeBody(br *bytes.Reader) (FuncType, error) {
	var ft FuncType
	np, _, err := leb128.DecodeUint32(br)
	if err != nil {
		return ft, fmt.Errorf("%w: param count: %v", ErrParse, err)
	}
	for i := uint32(0); i < np; i++ {
		vt, err := decodeValType(br)
		if err != nil {
			return ft, err
		}
		ft.Params = append(ft.Params, vt)
	}
	nr, _, err := leb128.DecodeUint32(br)
	if err != nil {
		return ft, fmt.Errorf("%w: result count: %v", ErrParse, err)
	}
	for i := uint32(0); i < nr; i++ {
		vt, err := decodeValType(br)
		if err != nil {
			return ft, err
		}
		ft.Results = append(ft.Results, vt)
	}
	return ft, nil
}

func decodeString(br *bytes.Reader) (string, error) {
	n, _, err := leb128.DecodeUint32(br)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(br, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeImportSection(br *bytes.Reader, types []FuncType) ([]Import, error) {
	count, _, err := leb128.DecodeUint32(br)
	if err != nil {
		return nil, fmt.Errorf("%w: import count: %v", ErrParse, err)
	}
	imports := make([]Import, 0, count)
	for i := uint32(0); i < count; i++ {
		mod, err := decodeString(br)
		if err != nil {
			return nil, fmt.Errorf("%w: import module: %v", ErrParse, err)
		}
		field, err := decodeString(br)
		if err != nil {
			return nil, fmt.Errorf("%w: import field: %v", ErrParse, err)
		}
		kind, err := br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: import kind: %v", ErrParse, err)
		}
		switch kind {
		case 0x00: // function import
			idx, _, err := leb128.DecodeUint32(br)
			if err != nil {
				return nil, fmt.Errorf("%w: import type index: %v", ErrParse, err)
			}
			if int(idx) >= len(types) {
				return nil, fmt.Errorf("%w: import type index out of range", ErrParse)
			}
			imports = append(imports, Import{Module: mod, Field: field, Type: types[idx]})
		case 0x01, 0x02, 0x03: // table, memory, global: skip descriptor, not tracked
			if err := skipImportDescriptor(br, kind); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: unknown import kind 0x%x", ErrParse, kind)
		}
	}
	return imports, nil
}

func skipImportDescriptor(br *bytes.Reader, kind byte) error {
	switch kind {
	case 0x01: // table: elemtype, limits
		if _, err := br.ReadByte(); err != nil {
			return err
		}
		return skipLimits(br)
	case 0x02: // memory: limits
		return skipLimits(br)
	case 0x03: // global: valtype, mutability
		if _, err := decodeValType(br); err != nil {
			return err
		}
		_, err := br.ReadByte()
		return err
	}
	return nil
}

func skipLimits(br *bytes.Reader) error {
	flags, err := br.ReadByte()
	if err != nil {
		return err
	}
	if _, _, err := leb128.DecodeUint32(br); err != nil {
		return err
	}
	if flags&0x01 != 0 {
		if _, _, err := leb128.DecodeUint32(br); err != nil {
			return err
		}
	}
	return nil
}

func decodeFunctionSection(br *bytes.Reader) ([]uint32, error) {
	count, _, err := leb128.DecodeUint32(br)
	if err != nil {
		return nil, fmt.Errorf("%w: function count: %v", ErrParse, err)
	}
	idx := make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		v, _, err := leb128.DecodeUint32(br)
		if err != nil {
			return nil, fmt.Errorf("%w: function type index: %v", ErrParse, err)
		}
		idx = append(idx, v)
	}
	return idx, nil
}

func decodeCodeSection(br *bytes.Reader) ([]FunctionBody, error) {
	count, _, err := leb128.DecodeUint32(br)
	if err != nil {
		return nil, fmt.Errorf("%w: code count: %v", ErrParse, err)
	}
	bodies := make([]FunctionBody, 0, count)
	for i := uint32(0); i < count; i++ {
		size, _, err := leb128.DecodeUint32(br)
		if err != nil {
			return nil, fmt.Errorf("%w: code entry size: %v", ErrParse, err)
		}
		entry := make([]byte, size)
		if _, err := io.ReadFull(br, entry); err != nil {
			return nil, fmt.Errorf("%w: code entry body: %v", ErrParse, err)
		}
		fb, err := decodeFunctionBody(entry)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, fb)
	}
	return bodies, nil
}

func decodeFunctionBody(entry []byte) (FunctionBody, error) {
	er := bytes.NewReader(entry)
	localCount, _, err := leb128.DecodeUint32(er)
	if err != nil {
		return FunctionBody{}, fmt.Errorf("%w: local decl count: %v", ErrParse, err)
	}
	locals := make([]Local, 0, localCount)
	for i := uint32(0); i < localCount; i++ {
		n, _, err := leb128.DecodeUint32(er)
		if err != nil {
			return FunctionBody{}, fmt.Errorf("%w: local run count: %v", ErrParse, err)
		}
		vt, err := decodeValType(er)
		if err != nil {
			return FunctionBody{}, err
		}
		locals = append(locals, Local{Count: n, Type: vt})
	}
	rest := entry[len(entry)-er.Len():]
	return FunctionBody{Locals: locals, Code: rest}, nil
}
