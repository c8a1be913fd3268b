package wasm

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// constAdd encodes: i32.const 7, i32.const 5, i32.add, end
func constAddBody() []byte {
	return []byte{0x41, 0x07, 0x41, 0x05, byteI32Add, byteEnd}
}

func TestReaderDecodesConstAdd(t *testing.T) {
	r := NewReader(constAddBody(), nil)

	op, _, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, OpI32Const, op.Kind)
	require.EqualValues(t, 7, op.I32)

	op, _, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, OpI32Const, op.Kind)
	require.EqualValues(t, 5, op.I32)

	op, _, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, OpI32Add, op.Kind)

	op, _, err = r.Next()
	require.NoError(t, err)
	require.Equal(t, OpEnd, op.Kind)

	_, _, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestReaderDecodesBlockTypeEmpty(t *testing.T) {
	r := NewReader([]byte{byteBlock, byteBlockTypeEmpty, byteEnd}, nil)
	op, _, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, OpBlock, op.Kind)
	require.Empty(t, op.Block.Results)
}

func TestReaderDecodesLoadMemArg(t *testing.T) {
	// i64.load align=0 offset=0x10
	r := NewReader([]byte{byteI64Load, 0x00, 0x10}, nil)
	op, _, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, OpI64Load, op.Kind)
	require.EqualValues(t, 0x10, op.Mem.Offset)
}

func TestReaderUnsupportedOpcode(t *testing.T) {
	r := NewReader([]byte{0xfc}, nil) // misc prefix, unsupported here
	op, _, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, OpUnsupported, op.Kind)
	require.EqualValues(t, 0xfc, op.RawOpcode)
}
