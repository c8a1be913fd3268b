package x64

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasm-blitz/blitzc/internal/ops"
	"github.com/wasm-blitz/blitzc/internal/wasm"
)

func lowerFast(t *testing.T, code []byte, sig wasm.FuncType) string {
	t.Helper()
	body := wasm.FunctionBody{Code: code}
	p := ops.NewProducer[ops.WasmInfo](0, sig, body, nil, ops.FromWasmInfo)
	stream := ops.NewCoalesce[ops.WasmInfo](ops.NewDCE[ops.WasmInfo](p))
	w := NewTextWriter()
	fb := NewFast(w, nil)
	require.NoError(t, fb.Lower(stream))
	return w.String()
}

func TestFastConstAddKeepsValuesInRegisters(t *testing.T) {
	code := []byte{0x41, 0x07, 0x41, 0x05, 0x6a, 0x0b}
	out := lowerFast(t, code, wasm.FuncType{Results: []wasm.ValType{wasm.ValTypeI32}})
	require.Contains(t, out, "mov r10, 7")
	require.Contains(t, out, "mov r11, 5")
	require.NotContains(t, out, "push r10")
}

func TestFastSpillsWhenIntClassExhausted(t *testing.T) {
	// Push nine i32 consts with no pops in between: the allocator has 8 int
	// registers, so the ninth must spill the oldest (r10) and take r10 over.
	// The flush at the body's closing end then spills r10 a second time,
	// now holding the ninth value.
	code := []byte{
		0x41, 0x01, 0x41, 0x01, 0x41, 0x01, 0x41, 0x01,
		0x41, 0x01, 0x41, 0x01, 0x41, 0x01, 0x41, 0x01,
		0x41, 0x01,
		0x0b,
	}
	out := lowerFast(t, code, wasm.FuncType{})
	require.Equal(t, 2, strings.Count(out, "push r10"))
}

func TestFastFlushesBeforeBranch(t *testing.T) {
	// block; i32.const 1; br 0; end
	code := []byte{
		0x02, 0x40,
		0x41, 0x01,
		0x0c, 0x00,
		0x0b,
		0x0b,
	}
	out := lowerFast(t, code, wasm.FuncType{})
	lines := strings.Split(out, "\n")
	brIdx, flushIdx := -1, -1
	for i, l := range lines {
		if strings.Contains(l, "jmp r0") && brIdx == -1 {
			brIdx = i
		}
		if strings.Contains(l, "push r10") && flushIdx == -1 {
			flushIdx = i
		}
	}
	require.NotEqual(t, -1, brIdx)
	require.NotEqual(t, -1, flushIdx)
	require.Less(t, flushIdx, brIdx)
}
