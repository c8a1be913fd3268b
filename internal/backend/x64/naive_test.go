package x64

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasm-blitz/blitzc/internal/ops"
	"github.com/wasm-blitz/blitzc/internal/wasm"
)

func lowerBody(t *testing.T, code []byte, sig wasm.FuncType, imports []wasm.Import) string {
	t.Helper()
	body := wasm.FunctionBody{Code: code}
	p := ops.NewProducer[ops.WasmInfo](0, sig, body, nil, ops.FromWasmInfo)
	stream := ops.NewCoalesce[ops.WasmInfo](ops.NewDCE[ops.WasmInfo](p))
	w := NewTextWriter()
	nv := NewNaive(w, imports)
	require.NoError(t, nv.Lower(stream))
	return w.String()
}

func TestNaiveConstAddEmitsArithmeticAndReturnSequence(t *testing.T) {
	// i32.const 7; i32.const 5; i32.add; end
	code := []byte{0x41, 0x07, 0x41, 0x05, 0x6a, 0x0b}
	out := lowerBody(t, code, wasm.FuncType{Results: []wasm.ValType{wasm.ValTypeI32}}, nil)
	require.Contains(t, out, "mov r0, 7")
	require.Contains(t, out, "mov r0, 5")
	require.Contains(t, out, "lea r0, [r0+0+r1*1]")
	require.Contains(t, out, "ret")
}

func TestNaiveFuncLabelAndFrameSetupAtStartFn(t *testing.T) {
	code := []byte{0x0b}
	out := lowerBody(t, code, wasm.FuncType{}, nil)
	require.True(t, strings.HasPrefix(out, "pop r1\nlea r0, [r1+0]\nxchg r0, [ctx]\nf0:\n"))
}

func TestNaiveCallToHypercallImportEmitsTrampoline(t *testing.T) {
	code := []byte{0x10, 0x00, 0x0b} // call 0; end
	imports := []wasm.Import{{Module: "blitz", Field: "hypercall0", Type: wasm.FuncType{}}}
	out := lowerBody(t, code, wasm.FuncType{}, imports)
	require.Contains(t, out, "mov r0, [ctx-8]")
	require.Contains(t, out, "xchg r0, [rsp]")
	require.Contains(t, out, "ret")
}

func TestNaiveDrainsEntireStream(t *testing.T) {
	code := []byte{0x41, 0x01, 0x0b}
	body := wasm.FunctionBody{Code: code}
	p := ops.NewProducer[ops.WasmInfo](0, wasm.FuncType{}, body, nil, ops.FromWasmInfo)
	stream := ops.NewCoalesce[ops.WasmInfo](ops.NewDCE[ops.WasmInfo](p))
	w := NewTextWriter()
	nv := NewNaive(w, nil)
	require.NoError(t, nv.Lower(stream))
	_, err := stream.Next()
	require.ErrorIs(t, err, io.EOF)
}
