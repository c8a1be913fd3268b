package leb128

// EncodeUint32 appends v's unsigned LEB128 encoding to buf, returning the
// extended slice.
func EncodeUint32(buf []byte, v uint32) []byte {
	return EncodeUint64(buf, uint64(v))
}

// EncodeUint64 appends v's unsigned LEB128 encoding to buf.
func EncodeUint64(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf = append(buf, b|0x80)
			continue
		}
		return append(buf, b)
	}
}

// EncodeInt32 appends v's signed LEB128 encoding to buf.
func EncodeInt32(buf []byte, v int32) []byte {
	return encodeSigned(buf, int64(v))
}

// EncodeInt64 appends v's signed LEB128 encoding to buf.
func EncodeInt64(buf []byte, v int64) []byte {
	return encodeSigned(buf, v)
}

func encodeSigned(buf []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}
