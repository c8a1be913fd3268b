package js

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasm-blitz/blitzc/internal/ops"
	"github.com/wasm-blitz/blitzc/internal/wasm"
)

func lowerJS(t *testing.T, fnID uint32, code []byte, sig wasm.FuncType, imports []wasm.Import, sigs []wasm.FuncType) string {
	t.Helper()
	body := wasm.FunctionBody{Code: code}
	p := ops.NewProducer[ops.WasmInfo](fnID, sig, body, nil, ops.FromWasmInfo)
	stream := ops.NewCoalesce[ops.WasmInfo](ops.NewDCE[ops.WasmInfo](p))
	j := NewJS(imports, sigs)
	require.NoError(t, j.Lower(stream))
	return j.String()
}

func TestConstSubPopsOperandsInLeftRightOrder(t *testing.T) {
	// i32.const 7; i32.const 5; i32.sub; end
	code := []byte{0x41, 0x07, 0x41, 0x05, 0x6b, 0x0b}
	out := lowerJS(t, 0, code, wasm.FuncType{Results: []wasm.ValType{wasm.ValTypeI32}}, nil, nil)
	// 7 (beneath the top) must bind to the left operand "a" and 5 (the top)
	// to the right operand "b", so the emitted formula computes 7-5, not 5-7.
	require.Contains(t, out, "a=stack.splice(-2,1)[0]")
	require.Contains(t, out, "b=stack.pop()")
	require.Contains(t, out, "toUint(a-b,32)")
}

func TestStartFnEmitsSigGuardAndFunctionDeclaration(t *testing.T) {
	code := []byte{0x0b}
	out := lowerJS(t, 2, code, wasm.FuncType{Params: []wasm.ValType{wasm.ValTypeI32}}, nil, nil)
	require.True(t, strings.HasPrefix(out, "Object.defineProperty($2,'__sig',"))
	require.Contains(t, out, "function $2(...locals){")
}

func TestLocalGetSetRoundTrip(t *testing.T) {
	// local.get 0; local.set 1; end
	code := []byte{0x20, 0x00, 0x21, 0x01, 0x0b}
	out := lowerJS(t, 0, code, wasm.FuncType{Params: []wasm.ValType{wasm.ValTypeI32, wasm.ValTypeI32}}, nil, nil)
	require.Contains(t, out, "locals[0]")
	require.Contains(t, out, "locals[1]=")
}

func TestBlockBrEmitsLabeledBreak(t *testing.T) {
	// block; i32.const 1; br 0; end; end
	code := []byte{
		0x02, 0x40,
		0x41, 0x01,
		0x0c, 0x00,
		0x0b,
		0x0b,
	}
	out := lowerJS(t, 0, code, wasm.FuncType{}, nil, nil)
	require.Contains(t, out, "l1: for(;;){")
	require.Contains(t, out, "break l1;")
}

func TestLoopBrEmitsLabeledContinue(t *testing.T) {
	// loop; br 0; end; end
	code := []byte{
		0x03, 0x40,
		0x0c, 0x00,
		0x0b,
		0x0b,
	}
	out := lowerJS(t, 0, code, wasm.FuncType{}, nil, nil)
	require.Contains(t, out, "continue l1;")
}

func TestIfFrameDoesNotConsumeABranchLabel(t *testing.T) {
	// block; i32.const 1; if; i32.const 1; br 0; end; end; end
	code := []byte{
		0x02, 0x40,
		0x41, 0x01,
		0x04, 0x40,
		0x41, 0x01,
		0x0c, 0x00,
		0x0b,
		0x0b,
		0x0b,
	}
	out := lowerJS(t, 0, code, wasm.FuncType{}, nil, nil)
	// br 0 from inside the if must resolve to the enclosing block's label
	// (l1), skipping the if frame entirely, not some nonexistent l2.
	require.Contains(t, out, "break l1;")
	require.NotContains(t, out, "l2:")
}

func TestCallEmitsSigArityCheck(t *testing.T) {
	sigs := []wasm.FuncType{{Params: []wasm.ValType{wasm.ValTypeI32}, Results: []wasm.ValType{wasm.ValTypeI32}}}
	// i32.const 1; call 0; end
	code := []byte{0x41, 0x01, 0x10, 0x00, 0x0b}
	out := lowerJS(t, 1, code, wasm.FuncType{}, nil, sigs)
	require.Contains(t, out, "$0.__sig.params!==1")
	require.Contains(t, out, "$0.__sig.rets!==1")
	require.Contains(t, out, "$0(...args)")
}

func TestDrainsEntireStream(t *testing.T) {
	body := wasm.FunctionBody{Code: []byte{0x41, 0x01, 0x0b}}
	p := ops.NewProducer[ops.WasmInfo](0, wasm.FuncType{}, body, nil, ops.FromWasmInfo)
	stream := ops.NewCoalesce[ops.WasmInfo](ops.NewDCE[ops.WasmInfo](p))
	require.NoError(t, NewJS(nil, nil).Lower(stream))
}
