// Package leb128 decodes the LEB128 varint encodings used throughout the
// Wasm binary format.
package leb128

import (
	"errors"
	"io"
)

// ErrOverflow is returned when a LEB128 sequence encodes a value wider than
// the requested fixed-width integer.
var ErrOverflow = errors.New("leb128: value overflows target width")

// DecodeUint32 reads an unsigned LEB128 varint, returning the decoded value
// and the number of bytes consumed.
func DecodeUint32(r io.ByteReader) (uint32, uint64, error) {
	var result uint64
	var shift uint
	var size uint64
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, size, err
		}
		size++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if shift == 28 && b>>4 != 0 {
				return 0, size, ErrOverflow
			}
			return uint32(result), size, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, size, ErrOverflow
		}
	}
}

// DecodeUint64 reads an unsigned LEB128 varint into a uint64.
func DecodeUint64(r io.ByteReader) (uint64, uint64, error) {
	var result uint64
	var shift uint
	var size uint64
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, size, err
		}
		size++
		if shift < 64 {
			result |= uint64(b&0x7f) << shift
		}
		if b&0x80 == 0 {
			return result, size, nil
		}
		shift += 7
		if shift > 70 {
			return 0, size, ErrOverflow
		}
	}
}

// DecodeInt32 reads a signed LEB128 varint into an int32.
func DecodeInt32(r io.ByteReader) (int32, uint64, error) {
	v, n, err := decodeSigned(r, 32)
	return int32(v), n, err
}

// DecodeInt64 reads a signed LEB128 varint into an int64.
func DecodeInt64(r io.ByteReader) (int64, uint64, error) {
	v, n, err := decodeSigned(r, 64)
	return v, n, err
}

func decodeSigned(r io.ByteReader, width uint) (int64, uint64, error) {
	var result int64
	var shift uint
	var size uint64
	var b byte
	var err error
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, size, err
		}
		size++
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
		if shift > width {
			return 0, size, ErrOverflow
		}
	}
	if shift < width && b&0x40 != 0 {
		result |= -1 << shift
	}
	return result, size, nil
}
