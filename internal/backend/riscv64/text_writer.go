package riscv64

import (
	"fmt"
	"strings"
)

// TextWriter emits pseudo-assembly text, one instruction per line. It is
// the default Writer: correct by inspection and easy to assert against in
// tests, the same trade-off the x86-64 package makes with its own
// TextWriter.
type TextWriter struct {
	b strings.Builder
}

func NewTextWriter() *TextWriter { return &TextWriter{} }

func (w *TextWriter) String() string { return w.b.String() }

func (w *TextWriter) line(format string, args ...any) error {
	fmt.Fprintf(&w.b, format+"\n", args...)
	return nil
}

func (w *TextWriter) SetLabel(l Label) error { return w.line("%s:", l) }

func (w *TextWriter) Addi(dst, src Reg, imm int32) error {
	return w.line("addi %s, %s, %d", dst, src, imm)
}

func (w *TextWriter) Sd(src, base Reg, disp int32) error {
	return w.line("sd %s, %d(%s)", src, disp, base)
}

func (w *TextWriter) Ld(dst, base Reg, disp int32) error {
	return w.line("ld %s, %d(%s)", dst, disp, base)
}

func (w *TextWriter) Mv(dst, src Reg) error { return w.line("mv %s, %s", dst, src) }

func (w *TextWriter) Li(dst Reg, val int64) error { return w.line("li %s, %d", dst, val) }

func (w *TextWriter) Add(dst, a, b Reg) error { return w.line("add %s, %s, %s", dst, a, b) }
func (w *TextWriter) Sub(dst, a, b Reg) error { return w.line("sub %s, %s, %s", dst, a, b) }
func (w *TextWriter) Mul(dst, a, b Reg) error { return w.line("mul %s, %s, %s", dst, a, b) }
func (w *TextWriter) And(dst, a, b Reg) error { return w.line("and %s, %s, %s", dst, a, b) }
func (w *TextWriter) Or(dst, a, b Reg) error  { return w.line("or %s, %s, %s", dst, a, b) }
func (w *TextWriter) Xor(dst, a, b Reg) error { return w.line("xor %s, %s, %s", dst, a, b) }
func (w *TextWriter) Sll(dst, a, b Reg) error { return w.line("sll %s, %s, %s", dst, a, b) }
func (w *TextWriter) Sra(dst, a, b Reg) error { return w.line("sra %s, %s, %s", dst, a, b) }
func (w *TextWriter) Srl(dst, a, b Reg) error { return w.line("srl %s, %s, %s", dst, a, b) }
func (w *TextWriter) DivU(dst, a, b Reg) error {
	return w.line("divu %s, %s, %s", dst, a, b)
}
func (w *TextWriter) DivS(dst, a, b Reg) error { return w.line("div %s, %s, %s", dst, a, b) }
func (w *TextWriter) RemU(dst, a, b Reg) error {
	return w.line("remu %s, %s, %s", dst, a, b)
}
func (w *TextWriter) RemS(dst, a, b Reg) error { return w.line("rem %s, %s, %s", dst, a, b) }

func (w *TextWriter) BcondLabel(cc ConditionCode, a, b Reg, l Label) error {
	return w.line("b%s %s, %s, %s", cc, a, b, l)
}

func (w *TextWriter) JalLabel(dst Reg, l Label) error {
	return w.line("jal %s, %s", dst, l)
}

func (w *TextWriter) Jalr(dst, src Reg, offset int32) error {
	return w.line("jalr %s, %d(%s)", dst, offset, src)
}

func (w *TextWriter) Ret() error { return w.line("ret") }
