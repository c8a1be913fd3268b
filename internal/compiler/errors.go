package compiler

import "errors"

// ErrReencode wraps any backend lowering failure (x86-64, RISC-V64, JS, or
// the Wasm re-encoder itself) as it crosses from the per-function pipeline
// into the driver, so a caller can distinguish "this target's encoder
// rejected an operator" from a parse or I/O failure.
var ErrReencode = errors.New("compiler: target encoding failed")

// ErrWriter is wrapped around a failure writing the assembled artifact to
// its destination.
var ErrWriter = errors.New("compiler: output write failed")

// ErrInvariant wraps a backend's unbalanced-control error (an else with no
// matching if) — a condition that indicates a bug upstream of this compiler
// (malformed or unvalidated input), not a recoverable condition. Operand-stack
// underflow and a non-empty control stack at EndBody are not detected.
var ErrInvariant = errors.New("compiler: invariant violated")
