package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasm-blitz/blitzc/internal/wasm"
)

func constAddModule() *wasm.Module {
	return &wasm.Module{
		Types:           []wasm.FuncType{{Results: []wasm.ValType{wasm.ValTypeI32}}},
		FuncTypeIndices: []uint32{0},
		Bodies: []wasm.FunctionBody{
			{Code: []byte{0x41, 0x07, 0x41, 0x05, 0x6a, 0x0b}},
		},
	}
}

func TestParseTargetAcceptsEveryDocumentedName(t *testing.T) {
	for _, name := range []string{"x64-naive", "x64-fast", "riscv64", "js", "wasm"} {
		target, err := ParseTarget(name)
		require.NoError(t, err)
		require.Equal(t, name, target.String())
	}
}

func TestParseTargetRejectsUnknownName(t *testing.T) {
	_, err := ParseTarget("bogus")
	require.Error(t, err)
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	require.Equal(t, TargetX64Naive, cfg.Target())
	require.True(t, cfg.dce)
	require.True(t, cfg.coalescing)
}

func TestCompileX64NaiveEmitsFunctionLabel(t *testing.T) {
	cfg := NewConfig(WithTarget(TargetX64Naive))
	out, err := Compile(context.Background(), constAddModule(), cfg)
	require.NoError(t, err)
	require.Contains(t, string(out), "f0:")
}

func TestCompileJSEmitsSigGuardedFunction(t *testing.T) {
	cfg := NewConfig(WithTarget(TargetJS))
	out, err := Compile(context.Background(), constAddModule(), cfg)
	require.NoError(t, err)
	require.Contains(t, string(out), "function $0(...locals){")
}

func TestCompileWasmAssemblesCodeSection(t *testing.T) {
	cfg := NewConfig(WithTarget(TargetWasm))
	out, err := Compile(context.Background(), constAddModule(), cfg)
	require.NoError(t, err)
	require.Equal(t, byte(0x0a), out[0])
}

func TestCompileJSBindsImportsToHostGlobals(t *testing.T) {
	mod := constAddModule()
	mod.Imports = []wasm.Import{{Module: "blitz", Field: "hypercall_write", Type: wasm.FuncType{}}}
	// Shift the local function's absolute index past the one import.
	cfg := NewConfig(WithTarget(TargetJS))
	out, err := Compile(context.Background(), mod, cfg)
	require.NoError(t, err)
	require.Contains(t, string(out), "const $0 = blitz.hypercall_write;")
	require.Contains(t, string(out), "function $1(...locals){")
}

func TestCompileCancelledContextIsRejected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := NewConfig(WithTarget(TargetJS))
	_, err := Compile(ctx, constAddModule(), cfg)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCompileSurfacesInvariantErrorWithFunctionIndex(t *testing.T) {
	mod := &wasm.Module{
		Types:           []wasm.FuncType{{}},
		FuncTypeIndices: []uint32{0},
		// A bare "else" with no matching if frame pushed first triggers
		// x64's ErrUnbalancedControl.
		Bodies: []wasm.FunctionBody{{Code: []byte{0x05, 0x0b}}},
	}
	cfg := NewConfig(WithTarget(TargetX64Naive))
	_, err := Compile(context.Background(), mod, cfg)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvariant)
	require.Contains(t, err.Error(), "function 0")
}

func TestCompileDisablingCoalescingOmitsScratchLocals(t *testing.T) {
	mod := constAddModule()

	withCoalescing, err := Compile(context.Background(), mod, NewConfig(WithTarget(TargetWasm)))
	require.NoError(t, err)

	withoutCoalescing, err := Compile(context.Background(), mod, NewConfig(WithTarget(TargetWasm), WithCoalescing(false)))
	require.NoError(t, err)

	// Coalescing always injects a scratch {2,I64} local run, which costs two
	// extra encoded bytes (run count + valtype) the disabled pass omits.
	require.Less(t, len(withoutCoalescing), len(withCoalescing))
}
