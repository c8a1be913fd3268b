// Package js renders a coalesced MachOp stream as JavaScript text: each
// Wasm function becomes a JS function operating over a BigInt-backed value
// stack, matching WASM's 32/64-bit integer semantics via explicit masking.
// Only the baseline (non-optimized) stack discipline is implemented — see
// DESIGN.md for why the reference source's static-depth "opt" mode is not
// carried over.
package js

import (
	"fmt"
	"strings"

	"github.com/wasm-blitz/blitzc/internal/ops"
	"github.com/wasm-blitz/blitzc/internal/wasm"
)

// ErrUnsupportedOperator mirrors wasm.OpUnsupported: an operator this
// backend has no lowering for surfaces this instead of silently emitting
// nothing for it.
var ErrUnsupportedOperator = fmt.Errorf("js: unsupported operator")

type frameKind int

const (
	frameBlock frameKind = iota
	frameLoop
	frameIf
)

type frame struct {
	kind frameKind
}

// State is one function's control-flow bookkeeping: which for-loop label a
// Block/Loop/If frame corresponds to.
type State struct {
	stack []frame
}

// JS lowers one function at a time to a JS function declaration. sigs is
// indexed by module-wide function index (imports first, then defined
// functions), the same indexing OpCall.FuncIndex and
// wasm.Import.Type describe, and is consulted for a callee's
// parameter/result arity.
type JS struct {
	b       strings.Builder
	imports []wasm.Import
	sigs    []wasm.FuncType
}

// NewJS constructs a lowering for one module. sigs must have one entry per
// module-wide function index.
func NewJS(imports []wasm.Import, sigs []wasm.FuncType) *JS {
	return &JS{imports: imports, sigs: sigs}
}

func (j *JS) String() string { return j.b.String() }

func (j *JS) writef(format string, args ...any) { fmt.Fprintf(&j.b, format, args...) }

// push wraps expr so evaluating it both stores the value onto the stack and
// yields it as a JS expression value, mirroring the reference source's
// comma-expression push idiom but through a plain array push instead of the
// reference's custom-iterator-aware spread trick (that trick exists only to
// let a host override array spread via Symbol.iterator, a generality this
// lowering has no use for).
func (j *JS) push(expr string) string {
	return fmt.Sprintf("(tmp=(%s),stack.push(tmp),tmp)", expr)
}

// pop yields the most recently pushed value, removing it.
func (j *JS) pop() string { return "stack.pop()" }

// Lower drains src, a single function's MachOp stream, appending a complete
// JS function declaration to j's buffer.
func (j *JS) Lower(src ops.Stream[ops.WasmInfo]) error {
	st := &State{}
	for {
		op, err := src.Next()
		if err != nil {
			return err
		}
		if err := j.handle(st, op); err != nil {
			return err
		}
		if op.Kind == ops.KindEndBody {
			return nil
		}
	}
}

func (j *JS) handle(st *State, op ops.MachOp[ops.WasmInfo]) error {
	switch op.Kind {
	case ops.KindStartFn:
		// FnID is already the absolute module-wide function index (imports
		// occupy the low indices), the same convention OpCall.FuncIndex and
		// the x64/riscv64 backends' function labels use.
		id := op.FnID
		j.writef(
			"Object.defineProperty($%d,'__sig',{value:Object.freeze({params:%d,rets:%d}),enumerable:false,configurable:false,writable:false});\n",
			id, op.Data.NumParams, op.Data.NumReturns,
		)
		j.writef("function $%d(...locals){\n", id)
		j.writef("let stack=[],tmp,mask32=0xffff_ffffn,mask64=(mask32<<32n)|mask32,tmp_locals=[],args=[];\n")
		j.writef("const params=%d,rets=%d;\n", op.Data.NumParams, op.Data.NumReturns)
		j.writef("const toInt=(a,b)=>BigInt.asIntN(b,a);\nconst toUint=(a,b)=>BigInt.asUintN(b,a);\n")
		return nil

	case ops.KindLocal:
		zero := "0n"
		if op.LocalType == wasm.ValTypeF32 || op.LocalType == wasm.ValTypeF64 {
			zero = "0"
		}
		for i := uint32(0); i < op.LocalCount; i++ {
			j.writef("locals.push(%s);\n", zero)
		}
		return nil

	case ops.KindStartBody:
		return nil

	case ops.KindEndBody:
		j.writef("}\n")
		return nil

	case ops.KindOperator:
		if op.Op == nil {
			return nil
		}
		if err := j.onOp(st, *op.Op); err != nil {
			return err
		}
		j.writef(";\n")
		return nil

	default:
		return fmt.Errorf("js: unsupported MachOp kind %s", op.Kind)
	}
}

// br emits a break (Block) or continue (Loop) targeting the relativeDepth-th
// enclosing loop/block frame, skipping If frames exactly like the reference
// source's scan (an `if` has no JS label of its own — its body runs inside
// the nearest enclosing for-loop).
func (j *JS) br(st *State, relativeDepth uint32) error {
	depth := relativeDepth
	for i := len(st.stack) - 1; i >= 0; i-- {
		if st.stack[i].kind == frameIf {
			continue
		}
		if depth != 0 {
			depth--
			continue
		}
		label := i + 1
		switch st.stack[i].kind {
		case frameBlock:
			j.writef("{stack=[];break l%d;}", label)
		case frameLoop:
			j.writef("{stack=[];continue l%d;}", label)
		}
		return nil
	}
	return fmt.Errorf("js: br target out of range")
}

// call emits a runtime-checked call to target, a JS expression naming the
// callee (a plain function reference for ordinary calls).
func (j *JS) call(sig wasm.FuncType, target string) {
	j.writef(
		"if(%s.__sig.params!==%d||%s.__sig.rets!==%d)throw new Error('wasm sig mismatch');",
		target, len(sig.Params), target, len(sig.Results),
	)
	j.writef("args=[];for(let i=0;i<%s.__sig.params;i++)args.unshift(%s);", target, j.pop())
	j.writef("tmp_locals=%s(...args);", target)
	j.writef("if(tmp_locals.length===%s.__sig.rets){stack.push(...tmp_locals);}else{for(let i=0;i<%s.__sig.rets;i++)stack.push(tmp_locals[i]);}", target, target)
}

// binop emits `push(formula(a,b))`, popping the right-hand operand first (it
// is the stack's current top) and the left-hand operand second, matching
// Wasm's push order: the reference source's macro instead binds its first
// pop! expansion to the formula's "a" slot, which is the more-recently
// pushed (right-hand) operand — silently swapping non-commutative operators
// like subtraction and shifts. JS evaluates the default parameters left to
// right, so this lowering binds "a" to stack.splice(-2,1)[0], which removes
// the left-hand operand from beneath the top, and then "b" to stack.pop(),
// which takes the right-hand operand: the formula sees both in the correct
// left/right position.
func (j *JS) binop(format string) string {
	a := "stack.splice(-2,1)[0]"
	b := j.pop()
	return j.push(fmt.Sprintf(format, a, b))
}

func (j *JS) onOp(st *State, op wasm.Operator) error {
	// Arithmetic/comparison operators share one shape: pop two operands,
	// apply a JS formula, push the (possibly masked) result.
	if f, ok := arithFormula[op.Kind]; ok {
		j.writef(j.binop(f))
		return nil
	}
	if cc, ok := cmpFormula[op.Kind]; ok {
		j.writef(j.binop(cc))
		return nil
	}

	switch op.Kind {
	case wasm.OpI32Const:
		j.writef(j.push(fmt.Sprintf("%dn", uint32(op.I32))))
		return nil
	case wasm.OpI64Const:
		j.writef(j.push(fmt.Sprintf("%dn", uint64(op.I64))))
		return nil

	case wasm.OpI32Eqz, wasm.OpI64Eqz:
		j.writef(j.push(fmt.Sprintf("(%s===0n?1n:0n)", j.pop())))
		return nil

	case wasm.OpI32WrapI64:
		j.writef(j.push(fmt.Sprintf("(%s)&mask32", j.pop())))
		return nil

	case wasm.OpLocalGet:
		j.writef(j.push(fmt.Sprintf("locals[%d]", op.LocalIndex)))
		return nil
	case wasm.OpLocalSet:
		j.writef("locals[%d]=%s", op.LocalIndex, j.pop())
		return nil
	case wasm.OpLocalTee:
		j.writef(j.push(fmt.Sprintf("locals[%d]=%s", op.LocalIndex, j.pop())))
		return nil

	case wasm.OpBlock:
		st.stack = append(st.stack, frame{kind: frameBlock})
		j.writef("l%d: for(;;){", len(st.stack))
		return nil
	case wasm.OpLoop:
		st.stack = append(st.stack, frame{kind: frameLoop})
		j.writef("l%d: for(;;){", len(st.stack))
		return nil
	case wasm.OpIf:
		st.stack = append(st.stack, frame{kind: frameIf})
		j.writef("if(%s!==0n){", j.pop())
		return nil
	case wasm.OpElse:
		j.writef("}else{")
		return nil
	case wasm.OpEnd:
		n := len(st.stack)
		if n == 0 {
			// The function body's own implicit closing end: nothing to pop.
			return nil
		}
		top := st.stack[n-1]
		st.stack = st.stack[:n-1]
		if top.kind != frameIf {
			j.writef("break;")
		}
		j.writef("}")
		return nil

	case wasm.OpBr:
		return j.br(st, op.Depth)
	case wasm.OpBrIf:
		j.writef("if(%s!==0n)", j.pop())
		return j.br(st, op.Depth)
	case wasm.OpBrTable:
		j.writef("tmp=%s;", j.pop())
		for _, t := range op.Targets {
			j.writef("if(tmp===0n){")
			if err := j.br(st, t); err != nil {
				return err
			}
			j.writef("};tmp--;")
		}
		return j.br(st, op.Default)

	case wasm.OpReturn:
		j.writef("if(stack.length===rets)return stack;tmp_locals=[];for(let i=0;i<rets;i++)tmp_locals.push(stack[stack.length-rets+i]);return tmp_locals")
		return nil

	case wasm.OpCall:
		// Hypercalls are ordinary imports here: the host supplies a JS
		// function bound to $<index> with the same __sig contract, so no
		// special dispatch is needed the way the register-starved x86-64
		// backends require.
		j.call(j.sigs[op.FuncIndex], fmt.Sprintf("$%d", op.FuncIndex))
		return nil

	case wasm.OpDrop:
		j.writef(j.pop())
		return nil

	default:
		if op.Kind == wasm.OpUnsupported {
			return fmt.Errorf("%w: opcode 0x%02x", ErrUnsupportedOperator, op.RawOpcode)
		}
		return fmt.Errorf("%w: %v", ErrUnsupportedOperator, op.Kind)
	}
}

// arithFormula maps an arithmetic OpKind to a two-placeholder JS formula:
// the first %s is the left operand (pushed first, popped second), the
// second %s is the right operand (pushed second, popped first) — see
// binop's doc comment for why this lowering pops in the opposite order the
// reference macro does.
var arithFormula = map[wasm.OpKind]string{
	wasm.OpI32Add: "((a=%s,b=%s)=>(a+b)&mask32)()",
	wasm.OpI64Add: "((a=%s,b=%s)=>(a+b)&mask64)()",
	wasm.OpI32Sub: "((a=%s,b=%s)=>toUint(a-b,32))()",
	wasm.OpI64Sub: "((a=%s,b=%s)=>toUint(a-b,64))()",
	wasm.OpI32Mul: "((a=%s,b=%s)=>(a*b)&mask32)()",
	wasm.OpI64Mul: "((a=%s,b=%s)=>(a*b)&mask64)()",
	wasm.OpI32DivU: "((a=%s,b=%s)=>(a/b)&mask32)()",
	wasm.OpI64DivU: "((a=%s,b=%s)=>(a/b)&mask64)()",
	wasm.OpI32RemU: "((a=%s,b=%s)=>(a%%b)&mask32)()",
	wasm.OpI64RemU: "((a=%s,b=%s)=>(a%%b)&mask64)()",
	wasm.OpI32DivS: "((a=toInt(%s,32),b=toInt(%s,32))=>toUint(a/b,32))()",
	wasm.OpI64DivS: "((a=toInt(%s,64),b=toInt(%s,64))=>toUint(a/b,64))()",
	wasm.OpI32RemS: "((a=toInt(%s,32),b=toInt(%s,32))=>toUint(a%%b,32))()",
	wasm.OpI64RemS: "((a=toInt(%s,64),b=toInt(%s,64))=>toUint(a%%b,64))()",
	wasm.OpI32And: "((a=%s,b=%s)=>(a&b)&mask32)()",
	wasm.OpI64And: "((a=%s,b=%s)=>(a&b)&mask64)()",
	wasm.OpI32Or:  "((a=%s,b=%s)=>(a|b)&mask32)()",
	wasm.OpI64Or:  "((a=%s,b=%s)=>(a|b)&mask64)()",
	wasm.OpI32Xor: "((a=%s,b=%s)=>(a^b)&mask32)()",
	wasm.OpI64Xor: "((a=%s,b=%s)=>(a^b)&mask64)()",
	wasm.OpI32Shl: "((a=%s,b=%s%%32n)=>(a<<b)&mask32)()",
	wasm.OpI64Shl: "((a=%s,b=%s%%64n)=>(a<<b)&mask64)()",
	wasm.OpI32ShrU: "((a=%s,b=%s%%32n)=>(a>>b)&mask32)()",
	wasm.OpI64ShrU: "((a=%s,b=%s%%64n)=>(a>>b)&mask64)()",
	wasm.OpI32ShrS: "((a=toInt(%s,32),b=%s%%32n)=>toUint(a>>b,32))()",
	wasm.OpI64ShrS: "((a=toInt(%s,64),b=%s%%64n)=>toUint(a>>b,64))()",
}

// cmpFormula maps a comparison OpKind to a two-placeholder 0n/1n formula,
// operands in the same left/right order arithFormula uses.
var cmpFormula = map[wasm.OpKind]string{
	wasm.OpI32Eq: "((a=%s,b=%s)=>a===b?1n:0n)()", wasm.OpI64Eq: "((a=%s,b=%s)=>a===b?1n:0n)()",
	wasm.OpI32Ne: "((a=%s,b=%s)=>a!==b?1n:0n)()", wasm.OpI64Ne: "((a=%s,b=%s)=>a!==b?1n:0n)()",
	wasm.OpI32LtU: "((a=%s,b=%s)=>a<b?1n:0n)()", wasm.OpI64LtU: "((a=%s,b=%s)=>a<b?1n:0n)()",
	wasm.OpI32GtU: "((a=%s,b=%s)=>a>b?1n:0n)()", wasm.OpI64GtU: "((a=%s,b=%s)=>a>b?1n:0n)()",
	wasm.OpI32LeU: "((a=%s,b=%s)=>a<=b?1n:0n)()", wasm.OpI64LeU: "((a=%s,b=%s)=>a<=b?1n:0n)()",
	wasm.OpI32GeU: "((a=%s,b=%s)=>a>=b?1n:0n)()", wasm.OpI64GeU: "((a=%s,b=%s)=>a>=b?1n:0n)()",
	wasm.OpI32LtS: "((a=toInt(%s,32),b=toInt(%s,32))=>a<b?1n:0n)()", wasm.OpI64LtS: "((a=toInt(%s,64),b=toInt(%s,64))=>a<b?1n:0n)()",
	wasm.OpI32GtS: "((a=toInt(%s,32),b=toInt(%s,32))=>a>b?1n:0n)()", wasm.OpI64GtS: "((a=toInt(%s,64),b=toInt(%s,64))=>a>b?1n:0n)()",
	wasm.OpI32LeS: "((a=toInt(%s,32),b=toInt(%s,32))=>a<=b?1n:0n)()", wasm.OpI64LeS: "((a=toInt(%s,64),b=toInt(%s,64))=>a<=b?1n:0n)()",
	wasm.OpI32GeS: "((a=toInt(%s,32),b=toInt(%s,32))=>a>=b?1n:0n)()", wasm.OpI64GeS: "((a=toInt(%s,64),b=toInt(%s,64))=>a>=b?1n:0n)()",
}
