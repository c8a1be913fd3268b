package reencode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasm-blitz/blitzc/internal/ops"
	"github.com/wasm-blitz/blitzc/internal/wasm"
)

// lower runs code through the same DCE+Coalesce pipeline every other backend
// consumes. Two things this pipeline always adds are relevant to the
// expectations below: the Producer appends a synthetic trailing Return
// operator right before EndBody (so re-encoded code is always the original
// bytes plus one trailing 0x0f), and Coalesce unconditionally injects two
// scratch I64 locals at body entry (so the locals vector always gains one
// extra {Count: 2, Type: I64} run).
func lower(t *testing.T, code []byte, sig wasm.FuncType, types []wasm.FuncType) *Encoder {
	t.Helper()
	body := wasm.FunctionBody{Code: code}
	p := ops.NewProducer[ops.WasmInfo](0, sig, body, types, ops.FromWasmInfo)
	stream := ops.NewCoalesce[ops.WasmInfo](ops.NewDCE[ops.WasmInfo](p))
	e := NewEncoder()
	require.NoError(t, e.Lower(stream))
	return e
}

func withSyntheticReturn(code []byte) []byte {
	return append(append([]byte{}, code...), 0x0f)
}

func TestConstAddRoundTripsByteForByte(t *testing.T) {
	code := []byte{0x41, 0x07, 0x41, 0x05, 0x6a, 0x0b}
	e := lower(t, code, wasm.FuncType{Results: []wasm.ValType{wasm.ValTypeI32}}, nil)
	require.Equal(t, withSyntheticReturn(code), e.Func().Code)
}

func TestLocalDeclarationsPreserved(t *testing.T) {
	code := []byte{0x0b}
	body := wasm.FunctionBody{Code: code, Locals: []wasm.Local{{Count: 2, Type: wasm.ValTypeI64}}}
	p := ops.NewProducer[ops.WasmInfo](0, wasm.FuncType{}, body, nil, ops.FromWasmInfo)
	stream := ops.NewCoalesce[ops.WasmInfo](ops.NewDCE[ops.WasmInfo](p))
	e := NewEncoder()
	require.NoError(t, e.Lower(stream))
	// The declared run survives, plus Coalesce's always-injected scratch pair.
	require.Equal(t, []LocalRun{
		{Count: 2, Type: wasm.ValTypeI64},
		{Count: 2, Type: wasm.ValTypeI64},
	}, e.Func().Locals)
}

func TestEmptyBlockRoundTrips(t *testing.T) {
	// block; end; end
	code := []byte{0x02, 0x40, 0x0b, 0x0b}
	e := lower(t, code, wasm.FuncType{}, nil)
	require.Equal(t, withSyntheticReturn(code), e.Func().Code)
}

func TestBrTableRoundTrips(t *testing.T) {
	// block; block; i32.const 0; br_table 0 1; end; end; end
	code := []byte{
		0x02, 0x40,
		0x02, 0x40,
		0x41, 0x00,
		0x0e, 0x02, 0x00, 0x01, 0x01,
		0x0b,
		0x0b,
		0x0b,
	}
	e := lower(t, code, wasm.FuncType{}, nil)
	require.Equal(t, withSyntheticReturn(code), e.Func().Code)
}

func TestMultiValueBlockTypeIsRejected(t *testing.T) {
	types := []wasm.FuncType{{Results: []wasm.ValType{wasm.ValTypeI32, wasm.ValTypeI32}}}
	// block (type 0); end; end
	code := []byte{0x02, 0x00, 0x0b, 0x0b}
	body := wasm.FunctionBody{Code: code}
	p := ops.NewProducer[ops.WasmInfo](0, wasm.FuncType{}, body, types, ops.FromWasmInfo)
	stream := ops.NewCoalesce[ops.WasmInfo](ops.NewDCE[ops.WasmInfo](p))
	e := NewEncoder()
	require.ErrorIs(t, e.Lower(stream), ErrUnsupportedBlockType)
}

func TestResetClearsAccumulatedState(t *testing.T) {
	e := lower(t, []byte{0x41, 0x01, 0x0b}, wasm.FuncType{}, nil)
	require.NotEmpty(t, e.Func().Code)
	e.Reset()
	require.Empty(t, e.Func().Code)
	require.Empty(t, e.Func().Locals)
}

func TestTrackerAssemblesCodeSectionForMultipleFunctions(t *testing.T) {
	tr := NewTracker()
	tr.Add(lower(t, []byte{0x41, 0x01, 0x0b}, wasm.FuncType{}, nil).Func())
	tr.Add(lower(t, []byte{0x41, 0x02, 0x0b}, wasm.FuncType{}, nil).Func())
	section := tr.CodeSection()
	require.Equal(t, byte(0x0a), section[0])           // section id 10: Code
	require.Equal(t, byte(len(section)-2), section[1]) // body size, single-byte leb since < 128
	require.Equal(t, byte(0x02), section[2])           // function count
}
