package compiler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/wasm-blitz/blitzc/internal/backend/js"
	"github.com/wasm-blitz/blitzc/internal/backend/reencode"
	"github.com/wasm-blitz/blitzc/internal/backend/riscv64"
	"github.com/wasm-blitz/blitzc/internal/backend/x64"
	"github.com/wasm-blitz/blitzc/internal/ops"
	"github.com/wasm-blitz/blitzc/internal/wasm"
)

// Compile lowers every function body in mod according to cfg. Each
// function's pipeline (Producer, the optional DCE and coalescing passes,
// then cfg's backend) runs independently of every other — the only shared
// inputs are the module's immutable header (Types, Imports) — so Compile
// fans work out across a GOMAXPROCS-sized worker pool and collects results
// into an index-ordered slice behind a plain mutex, matching the single
// function body already in flight being the only thing any one goroutine
// touches.
//
// ctx is checked once per function, before that function's pipeline starts
// (cooperative cancellation at function granularity, never inside a
// function's own operator loop). If any function fails, Compile returns the
// first such error and no partial output: the whole module's assembled
// bytes are only returned once every function has succeeded.
func Compile(ctx context.Context, mod *wasm.Module, cfg Config) ([]byte, error) {
	n := len(mod.Bodies)
	nImported := mod.NumImportedFuncs()

	sigs := make([]wasm.FuncType, nImported+n)
	for i := range sigs {
		sigs[i] = mod.FuncType(uint32(i))
	}

	results := make([][]byte, n)
	wasmFuncs := make([]reencode.Func, n)
	errs := make([]error, n)

	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := range mod.Bodies {
		i := i
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				mu.Lock()
				errs[i] = err
				mu.Unlock()
				return
			}

			data, wf, err := compileFunction(mod, cfg, sigs, i)

			mu.Lock()
			results[i] = data
			wasmFuncs[i] = wf
			errs[i] = err
			mu.Unlock()
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("function %d: %w", nImported+i, err)
		}
	}

	if cfg.target == TargetWasm {
		tr := reencode.NewTracker()
		for _, f := range wasmFuncs {
			tr.Add(f)
		}
		return tr.CodeSection(), nil
	}

	var out []byte
	if cfg.target == TargetJS {
		out = append(out, jsImportBindings(mod.Imports)...)
	}
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// jsImportBindings emits one host-binding declaration per import, named
// $<index> to match the absolute function index OpCall.FuncIndex and every
// backend's FnID convention, aliased to the host global the import's
// module/field names — e.g. `blitz.hypercall_write` — so a function body's
// $<index>(...) call resolves to the host's implementation.
func jsImportBindings(imports []wasm.Import) []byte {
	var out []byte
	for i, imp := range imports {
		out = append(out, []byte(fmt.Sprintf("const $%d = %s.%s;\n", i, imp.Module, imp.Field))...)
	}
	return out
}

// compileFunction runs one function body through the pipeline and returns
// either its text/byte output (every target but TargetWasm) or its
// reencode.Func (TargetWasm only — the caller assembles the module-wide
// Code section once every function has finished).
func compileFunction(mod *wasm.Module, cfg Config, sigs []wasm.FuncType, idx int) ([]byte, reencode.Func, error) {
	fnID := uint32(mod.NumImportedFuncs() + idx)
	sig := sigs[fnID]
	body := mod.Bodies[idx]

	var stream ops.Stream[ops.WasmInfo] = ops.NewProducer[ops.WasmInfo](fnID, sig, body, mod.Types, ops.FromWasmInfo)
	if cfg.dce {
		stream = ops.NewDCE[ops.WasmInfo](stream)
	}
	if cfg.coalescing {
		stream = ops.NewCoalesce[ops.WasmInfo](stream)
	}

	switch cfg.target {
	case TargetX64Naive:
		w := x64.NewTextWriter()
		err := x64.NewNaive(w, mod.Imports).Lower(stream)
		return wrapBackendResult([]byte(w.String()), err)
	case TargetX64Fast:
		w := x64.NewTextWriter()
		err := x64.NewFast(w, mod.Imports).Lower(stream)
		return wrapBackendResult([]byte(w.String()), err)
	case TargetRiscv64:
		w := riscv64.NewTextWriter()
		err := riscv64.NewNaive(w, mod.Imports).Lower(stream)
		return wrapBackendResult([]byte(w.String()), err)
	case TargetJS:
		j := js.NewJS(mod.Imports, sigs)
		err := j.Lower(stream)
		return wrapBackendResult([]byte(j.String()), err)
	case TargetWasm:
		e := reencode.NewEncoder()
		err := e.Lower(stream)
		if err != nil {
			return nil, reencode.Func{}, fmt.Errorf("%w: %v", ErrReencode, err)
		}
		return nil, e.Func(), nil
	default:
		return nil, reencode.Func{}, fmt.Errorf("compiler: unknown target %v", cfg.target)
	}
}

func wrapBackendResult(data []byte, err error) ([]byte, reencode.Func, error) {
	if err == nil {
		return data, reencode.Func{}, nil
	}
	if errors.Is(err, x64.ErrUnbalancedControl) || errors.Is(err, riscv64.ErrUnbalancedControl) {
		return nil, reencode.Func{}, fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	return nil, reencode.Func{}, fmt.Errorf("%w: %v", ErrReencode, err)
}
