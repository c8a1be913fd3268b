// Package compiler orchestrates the per-function pipeline — Producer, the
// optional DCE and coalescing passes, then a target backend — across every
// function body in a decoded module, and assembles the backends' per-function
// output into the final artifact.
package compiler

import "fmt"

// Target selects which backend lowers each function body.
type Target int

const (
	TargetX64Naive Target = iota
	TargetX64Fast
	TargetRiscv64
	TargetJS
	TargetWasm
)

func (t Target) String() string {
	switch t {
	case TargetX64Naive:
		return "x64-naive"
	case TargetX64Fast:
		return "x64-fast"
	case TargetRiscv64:
		return "riscv64"
	case TargetJS:
		return "js"
	case TargetWasm:
		return "wasm"
	default:
		return "unknown"
	}
}

// ParseTarget maps a -target flag value to a Target.
func ParseTarget(s string) (Target, error) {
	switch s {
	case "x64-naive":
		return TargetX64Naive, nil
	case "x64-fast":
		return TargetX64Fast, nil
	case "riscv64":
		return TargetRiscv64, nil
	case "js":
		return TargetJS, nil
	case "wasm":
		return TargetWasm, nil
	default:
		return 0, fmt.Errorf("compiler: unknown target %q", s)
	}
}

// Config holds the knobs Compile reads: which backend to drive, and whether
// the optional DCE and load/store-coalescing passes run before it.
type Config struct {
	target     Target
	dce        bool
	coalescing bool
}

// Option mutates a Config under construction. Mirrors the reference
// implementation's own functional-options pattern on its top-level runtime
// configuration type.
type Option func(*Config)

// WithTarget selects the backend Compile drives. NewConfig defaults to
// TargetX64Naive if omitted.
func WithTarget(t Target) Option {
	return func(c *Config) { c.target = t }
}

// WithDCE toggles the dead-code-elimination pass. Enabled by default.
func WithDCE(enabled bool) Option {
	return func(c *Config) { c.dce = enabled }
}

// WithCoalescing toggles the load/store-coalescing pass. Enabled by
// default. Note that enabling it always injects two scratch I64 locals into
// every function, even one with no narrow load/store operators.
func WithCoalescing(enabled bool) Option {
	return func(c *Config) { c.coalescing = enabled }
}

// NewConfig builds a Config from opts, applied in order over defaults
// (TargetX64Naive, DCE on, coalescing on).
func NewConfig(opts ...Option) Config {
	cfg := Config{target: TargetX64Naive, dce: true, coalescing: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c Config) Target() Target { return c.target }
