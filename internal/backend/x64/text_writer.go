package x64

import (
	"fmt"
	"strings"
)

// TextWriter renders the abstract instruction stream as assembly text, one
// mnemonic per line. No third-party x86-64 assembler in the retrieval pack
// models this backend's bespoke dual-stack/xchg-pivot calling convention —
// its fixed-opcode instruction sets have no Push/Pop/Call/Xchg equivalent —
// so, matching the riscv64 and js backends' own reliance on plain text
// emission, this is the only Writer.
type TextWriter struct {
	b strings.Builder
}

// NewTextWriter returns an empty TextWriter.
func NewTextWriter() *TextWriter { return &TextWriter{} }

// String returns the accumulated assembly text.
func (w *TextWriter) String() string { return w.b.String() }

func (w *TextWriter) line(format string, args ...any) error {
	fmt.Fprintf(&w.b, format+"\n", args...)
	return nil
}

func memOperand(r Reg, mem *int32) string {
	if mem == nil {
		return r.String()
	}
	if *mem == 0 {
		return fmt.Sprintf("[%s]", r)
	}
	return fmt.Sprintf("[%s%+d]", r, *mem)
}

func (w *TextWriter) SetLabel(l Label) error { return w.line("%s:", l) }

func (w *TextWriter) Xchg(dst, src Reg, mem *int32) error {
	return w.line("xchg %s, %s", dst, memOperand(src, mem))
}

func (w *TextWriter) Mov(dst, src Reg, mem *int32) error {
	if mem != nil {
		return w.line("mov %s, %s", dst, memOperand(src, mem))
	}
	return w.line("mov %s, %s", dst, src)
}

func (w *TextWriter) Push(r Reg) error { return w.line("push %s", r) }
func (w *TextWriter) Pop(r Reg) error  { return w.line("pop %s", r) }
func (w *TextWriter) Call(r Reg) error { return w.line("call %s", r) }
func (w *TextWriter) Jmp(r Reg) error  { return w.line("jmp %s", r) }
func (w *TextWriter) Cmp0(r Reg) error { return w.line("cmp %s, 0", r) }

func (w *TextWriter) Cmovz64(r Reg, val uint64) error {
	return w.line("mov %s, %d  ; cmovz", r, val)
}

func (w *TextWriter) Jz(r Reg) error { return w.line("jz %s", r) }
func (w *TextWriter) U32(r Reg) error { return w.line("mov %s, %s  ; zero-extend 32", r, r) }
func (w *TextWriter) Not(r Reg) error  { return w.line("not %s", r) }

func (w *TextWriter) Lea(dst, src Reg, offset int64, offReg *OffReg) error {
	if offReg != nil {
		return w.line("lea %s, [%s%+d+%s*%d]", dst, src, offset, offReg.Reg, offReg.Scale|1)
	}
	return w.line("lea %s, [%s%+d]", dst, src, offset)
}

func (w *TextWriter) LeaLabel(dst Reg, l Label) error { return w.line("lea %s, %s", dst, l) }
func (w *TextWriter) Ret() error                      { return w.line("ret") }
func (w *TextWriter) Mov64(r Reg, val uint64) error    { return w.line("mov %s, %d", r, val) }
func (w *TextWriter) Mul(a, b Reg) error               { return w.line("mul %s, %s", a, b) }
func (w *TextWriter) Div(a, b Reg) error               { return w.line("div %s, %s", a, b) }
func (w *TextWriter) Idiv(a, b Reg) error              { return w.line("idiv %s, %s", a, b) }
func (w *TextWriter) And(a, b Reg) error               { return w.line("and %s, %s", a, b) }
func (w *TextWriter) Or(a, b Reg) error                { return w.line("or %s, %s", a, b) }
func (w *TextWriter) Eor(a, b Reg) error                { return w.line("xor %s, %s", a, b) }
func (w *TextWriter) Shl(a, b Reg) error               { return w.line("shl %s, %s", a, b) }
func (w *TextWriter) Shr(a, b Reg) error               { return w.line("shr %s, %s", a, b) }
func (w *TextWriter) Sar(a, b Reg) error               { return w.line("sar %s, %s", a, b) }
