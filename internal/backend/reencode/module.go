package reencode

import "github.com/wasm-blitz/blitzc/internal/leb128"

// Tracker collects re-encoded function bodies across a whole module and
// assembles them into a Wasm binary Code section, mirroring the reference
// source's MachTracker/on_code_section: one Encoder per function, fed in
// function-index order, then flattened into section bytes.
type Tracker struct {
	funcs []Func
}

// NewTracker constructs an empty module-level Tracker.
func NewTracker() *Tracker { return &Tracker{} }

// Add appends a re-encoded function body, in function-definition order (the
// same order the module's Code section entries must appear in).
func (t *Tracker) Add(f Func) { t.funcs = append(t.funcs, f) }

// CodeSection assembles every tracked function into a complete Wasm binary
// Code section, including its section id and size prefix.
func (t *Tracker) CodeSection() []byte {
	var body []byte
	body = leb128.EncodeUint32(body, uint32(len(t.funcs)))
	for _, f := range t.funcs {
		body = append(body, encodeFuncBody(f)...)
	}

	var out []byte
	out = append(out, 0x0a) // section id 10: Code
	out = leb128.EncodeUint32(out, uint32(len(body)))
	out = append(out, body...)
	return out
}

func encodeFuncBody(f Func) []byte {
	var locals []byte
	locals = leb128.EncodeUint32(locals, uint32(len(f.Locals)))
	for _, run := range f.Locals {
		locals = leb128.EncodeUint32(locals, run.Count)
		locals = append(locals, byte(run.Type))
	}

	body := append(locals, f.Code...)

	var out []byte
	out = leb128.EncodeUint32(out, uint32(len(body)))
	out = append(out, body...)
	return out
}
