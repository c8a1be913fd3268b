package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// constAddModule is a minimal Wasm binary: one exported-shape function,
// `(func (result i32) i32.const 7 i32.const 5 i32.add)`, with a Type and
// Function section so DecodeModule can resolve its signature.
func constAddModule() []byte {
	var buf []byte
	buf = append(buf, 0x00, 0x61, 0x73, 0x6d) // magic
	buf = append(buf, 0x01, 0x00, 0x00, 0x00) // version 1

	// Type section: one func type, () -> (i32).
	buf = append(buf, 0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f)
	// Function section: one function, type index 0.
	buf = append(buf, 0x03, 0x02, 0x01, 0x00)
	// Code section: one body, no locals, i32.const 7; i32.const 5; i32.add; end.
	code := []byte{0x00, 0x41, 0x07, 0x41, 0x05, 0x6a, 0x0b}
	buf = append(buf, 0x0a, byte(1+1+len(code)), 0x01, byte(len(code)))
	buf = append(buf, code...)
	return buf
}

func runMain(t *testing.T, args []string) (int, string, string) {
	t.Helper()
	oldArgs := os.Args
	t.Cleanup(func() { os.Args = oldArgs })
	os.Args = append([]string{"blitzc"}, args...)

	stdOut := &bytes.Buffer{}
	stdErr := &bytes.Buffer{}
	code := doMain(stdOut, stdErr)
	return code, stdOut.String(), stdErr.String()
}

func TestCompileToJS(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wasm")
	out := filepath.Join(dir, "out.js")
	require.NoError(t, os.WriteFile(in, constAddModule(), 0o644))

	code, stdOut, stdErr := runMain(t, []string{"-target=js", "-o", out, in})
	require.Equal(t, 0, code, stdErr)
	require.Contains(t, stdOut, "compiled")

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(got), "function $0(...locals){")
	require.Contains(t, string(got), "(a+b)&mask32")
}

func TestCompileToWasm(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wasm")
	out := filepath.Join(dir, "out.wasm")
	require.NoError(t, os.WriteFile(in, constAddModule(), 0o644))

	code, _, stdErr := runMain(t, []string{"-target=wasm", "-o", out, in})
	require.Equal(t, 0, code, stdErr)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, byte(0x0a), got[0])
}

func TestCompileToX64Naive(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wasm")
	out := filepath.Join(dir, "out.s")
	require.NoError(t, os.WriteFile(in, constAddModule(), 0o644))

	code, _, stdErr := runMain(t, []string{"-target=x64-naive", "-o", out, in})
	require.Equal(t, 0, code, stdErr)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(got), "f0:")
}

func TestMissingFlagsReportsError(t *testing.T) {
	code, _, stdErr := runMain(t, []string{})
	require.Equal(t, 1, code)
	require.Contains(t, stdErr, "required")
}

func TestUnknownTargetReportsError(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wasm")
	require.NoError(t, os.WriteFile(in, constAddModule(), 0o644))

	code, _, stdErr := runMain(t, []string{"-target=bogus", "-o", filepath.Join(dir, "out"), in})
	require.Equal(t, 1, code)
	require.Contains(t, stdErr, "unknown target")
}

func TestMissingInputFileReportsError(t *testing.T) {
	dir := t.TempDir()
	code, _, stdErr := runMain(t, []string{"-target=js", "-o", filepath.Join(dir, "out"), filepath.Join(dir, "missing.wasm")})
	require.Equal(t, 1, code)
	require.Contains(t, stdErr, "reading")
}

func TestUnwritableOutputPathReportsError(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wasm")
	require.NoError(t, os.WriteFile(in, constAddModule(), 0o644))

	// A directory where the output file is expected makes os.WriteFile fail.
	outDir := filepath.Join(dir, "out.js")
	require.NoError(t, os.Mkdir(outDir, 0o755))

	code, _, stdErr := runMain(t, []string{"-target=js", "-o", outDir, in})
	require.Equal(t, 1, code)
	require.Contains(t, stdErr, "output write failed")
}
