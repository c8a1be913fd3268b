package leb128

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeUint32RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 127, 128, 300, 0xffffffff} {
		buf := EncodeUint32(nil, v)
		got, _, err := DecodeUint32(bytes.NewReader(buf))
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestEncodeDecodeInt32RoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 63, -64, 12345, -12345} {
		buf := EncodeInt32(nil, v)
		got, _, err := DecodeInt32(bytes.NewReader(buf))
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestEncodeDecodeInt64RoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 1 << 40, -(1 << 40)} {
		buf := EncodeInt64(nil, v)
		got, _, err := DecodeInt64(bytes.NewReader(buf))
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestEncodeAppendsToExistingBuffer(t *testing.T) {
	buf := []byte{0xaa}
	out := EncodeUint32(buf, 300)
	require.Equal(t, byte(0xaa), out[0])
	got, _, err := DecodeUint32(bytes.NewReader(out[1:]))
	require.NoError(t, err)
	require.Equal(t, uint32(300), got)
}
