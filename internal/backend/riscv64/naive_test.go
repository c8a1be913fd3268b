package riscv64

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasm-blitz/blitzc/internal/ops"
	"github.com/wasm-blitz/blitzc/internal/wasm"
)

func lowerRiscv(t *testing.T, code []byte, sig wasm.FuncType, imports []wasm.Import) string {
	t.Helper()
	body := wasm.FunctionBody{Code: code}
	p := ops.NewProducer[ops.WasmInfo](0, sig, body, nil, ops.FromWasmInfo)
	stream := ops.NewCoalesce[ops.WasmInfo](ops.NewDCE[ops.WasmInfo](p))
	w := NewTextWriter()
	n := NewNaive(w, imports)
	require.NoError(t, n.Lower(stream))
	return w.String()
}

func TestNaiveConstAddEmitsArithmeticAndReturnSequence(t *testing.T) {
	// i32.const 7; i32.const 5; i32.add; end
	code := []byte{0x41, 0x07, 0x41, 0x05, 0x6a, 0x0b}
	out := lowerRiscv(t, code, wasm.FuncType{Results: []wasm.ValType{wasm.ValTypeI32}}, nil)
	require.Contains(t, out, "li x5, 7")
	require.Contains(t, out, "li x6, 5")
	require.Contains(t, out, "add x5, x5, x6")
	require.Contains(t, out, "ret")
}

func TestNaiveFuncLabelAtStartFn(t *testing.T) {
	code := []byte{0x41, 0x00, 0x0b}
	out := lowerRiscv(t, code, wasm.FuncType{}, nil)
	require.True(t, strings.HasPrefix(out, "f0:\naddi x2, x2, -8\nsd x8, 0(x2)\nmv x8, x2\n"))
}

func TestNaiveCallToHypercallImportEmitsIndirectJalr(t *testing.T) {
	imports := []wasm.Import{{Module: "blitz", Field: "hypercall0"}}
	// local.get 0 (the host function pointer); call 0
	code := []byte{0x20, 0x00, 0x10, 0x00, 0x0b}
	out := lowerRiscv(t, code, wasm.FuncType{Params: []wasm.ValType{wasm.ValTypeI64}}, imports)
	require.Contains(t, out, "jalr x1, 0(x")
	require.NotContains(t, out, "jal x1, f")
}

func TestNaiveDrainsEntireStream(t *testing.T) {
	body := wasm.FunctionBody{Code: []byte{0x41, 0x01, 0x0b}}
	p := ops.NewProducer[ops.WasmInfo](0, wasm.FuncType{}, body, nil, ops.FromWasmInfo)
	stream := ops.NewCoalesce[ops.WasmInfo](ops.NewDCE[ops.WasmInfo](p))
	n := NewNaive(NewTextWriter(), nil)
	require.NoError(t, n.Lower(stream))
	_, err := stream.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestNaiveFlushesBeforeBranch(t *testing.T) {
	// block; i32.const 1; br 0; end
	code := []byte{
		0x02, 0x40,
		0x41, 0x01,
		0x0c, 0x00,
		0x0b,
		0x0b,
	}
	out := lowerRiscv(t, code, wasm.FuncType{}, nil)
	lines := strings.Split(out, "\n")
	jalIdx, spillIdx := -1, -1
	for i, l := range lines {
		if strings.HasPrefix(l, "jal x0, _idx_0") && jalIdx == -1 {
			jalIdx = i
		}
		if strings.Contains(l, "sd x5, 0(x2)") && spillIdx == -1 {
			spillIdx = i
		}
	}
	require.NotEqual(t, -1, jalIdx)
	require.NotEqual(t, -1, spillIdx)
	require.Less(t, spillIdx, jalIdx)
}

func TestNaiveLocalTeeStoresAndKeepsValueLive(t *testing.T) {
	// local.get 0; local.tee 0; end
	code := []byte{0x20, 0x00, 0x22, 0x00, 0x0b}
	out := lowerRiscv(t, code, wasm.FuncType{Params: []wasm.ValType{wasm.ValTypeI64}}, nil)
	require.Contains(t, out, "ld x5, -8(x8)")
	require.Contains(t, out, "sd x5, -8(x8)")
}
