package leb128

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeUint32(t *testing.T) {
	tests := []struct {
		in       []byte
		expected uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xffffffff},
	}
	for _, tc := range tests {
		r := bytes.NewReader(tc.in)
		got, n, err := DecodeUint32(r)
		require.NoError(t, err)
		require.Equal(t, tc.expected, got)
		require.Equal(t, uint64(len(tc.in)), n)
	}
}

func TestDecodeInt32Negative(t *testing.T) {
	r := bytes.NewReader([]byte{0x7f})
	got, _, err := DecodeInt32(r)
	require.NoError(t, err)
	require.Equal(t, int32(-1), got)
}

func TestDecodeInt64RoundTrip(t *testing.T) {
	r := bytes.NewReader([]byte{0xc0, 0xbb, 0x78})
	got, n, err := DecodeInt64(r)
	require.NoError(t, err)
	require.Equal(t, int64(-123456), got)
	require.Equal(t, uint64(3), n)
}

func TestDecodeUint32Overflow(t *testing.T) {
	r := bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01})
	_, _, err := DecodeUint32(r)
	require.ErrorIs(t, err, ErrOverflow)
}
