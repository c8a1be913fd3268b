package ops

import (
	"errors"
	"fmt"
	"io"

	"github.com/wasm-blitz/blitzc/internal/wasm"
)

// ErrParse wraps a parse failure surfaced by the operator stream producer.
var ErrParse = errors.New("ops: malformed function body")

// producerState tracks where the Producer is within one function's
// StartFn Local* StartBody (Operator|Instruction|Trap)* EndBody grammar.
type producerState int

const (
	stateStartFn producerState = iota
	stateLocals
	stateStartBody
	stateBody
	stateSyntheticReturn
	stateEndBody
	stateDone
)

// Producer yields the MachOp stream for a single function body: the
// StartFn marker, its local declarations, StartBody, the function's
// operators (each tagged with its byte offset via annot), a synthetic
// trailing Return, and EndBody.
type Producer[A any] struct {
	fnID    uint32
	sig     wasm.FuncType
	body    wasm.FunctionBody
	types   []wasm.FuncType
	factory AnnotFactory[A]

	localIdx int
	reader   *wasm.Reader
	state    producerState
	lastOff  uint32
}

// NewProducer constructs a Producer for function index fnID with signature
// sig and decoded body, using factory to build each operator's annotation
// from its WasmInfo.
func NewProducer[A any](fnID uint32, sig wasm.FuncType, body wasm.FunctionBody, types []wasm.FuncType, factory AnnotFactory[A]) *Producer[A] {
	return &Producer[A]{
		fnID:    fnID,
		sig:     sig,
		body:    body,
		types:   types,
		factory: factory,
		reader:  wasm.NewReader(body.Code, types),
	}
}

// ControlDepth performs the linear pre-scan that computes a function body's
// maximum block/loop/if nesting depth, incrementing on block/loop/if and
// decrementing on end.
func ControlDepth(body wasm.FunctionBody, types []wasm.FuncType) (int, error) {
	r := wasm.NewReader(body.Code, types)
	depth, max := 0, 0
	for {
		op, _, err := r.Next()
		if err == io.EOF {
			return max, nil
		}
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrParse, err)
		}
		switch op.Kind {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			depth++
			if depth > max {
				max = depth
			}
		case wasm.OpEnd:
			depth--
		}
	}
}

// Next implements Stream[A].
func (p *Producer[A]) Next() (MachOp[A], error) {
	switch p.state {
	case stateStartFn:
		depth, err := ControlDepth(p.body, p.types)
		if err != nil {
			return MachOp[A]{}, err
		}
		p.state = stateLocals
		return StartFn[A](p.fnID, FnData{
			NumParams:    len(p.sig.Params),
			NumReturns:   len(p.sig.Results),
			ControlDepth: depth,
		}), nil

	case stateLocals:
		if p.localIdx < len(p.body.Locals) {
			l := p.body.Locals[p.localIdx]
			p.localIdx++
			return Local[A](l.Count, l.Type), nil
		}
		p.state = stateStartBody
		return p.Next()

	case stateStartBody:
		p.state = stateBody
		return StartBody[A](), nil

	case stateBody:
		op, offset, err := p.reader.Next()
		if err == io.EOF {
			p.lastOff = offset
			p.state = stateSyntheticReturn
			return p.Next()
		}
		if err != nil {
			return MachOp[A]{}, fmt.Errorf("%w: %v", ErrParse, err)
		}
		annot := p.factory(WasmInfo{Offset: offset})
		if op.Kind == wasm.OpNop {
			return NoOp[A](annot), nil
		}
		return Operator[A](op, annot), nil

	case stateSyntheticReturn:
		p.state = stateEndBody
		annot := p.factory(WasmInfo{Offset: p.lastOff})
		return Operator[A](wasm.Operator{Kind: wasm.OpReturn}, annot), nil

	case stateEndBody:
		p.state = stateDone
		return EndBody[A](), nil

	default:
		return MachOp[A]{}, io.EOF
	}
}
