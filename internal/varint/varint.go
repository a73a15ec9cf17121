// Package varint implements the tag-byte integer encoding used by bufcodec.
//
// The first byte of an encoded value is either a literal or a width tag:
//
//	0..99     literal value
//	100..199  literal value-200 (-100..-1), signed targets only
//	200       8 little-endian bytes follow (u64/i64)
//	201       4 little-endian bytes follow (u32/i32)
//	202       2 little-endian bytes follow (u16/i16)
//	203       1 byte follows (u8/i8)
//
// Functions here operate on plain byte slices. Offsets in returned errors
// are relative to the start of buf.
package varint

import (
	"encoding/binary"
	"fmt"

	codecerrors "github.com/tamirms/bufcodec/errors"
)

// Width tags.
const (
	Tag64 = 200
	Tag32 = 201
	Tag16 = 202
	Tag8  = 203
)

const (
	literalLimit = 100 // tags below this are literal magnitudes
	negativeBias = 200 // tags 100..199 decode as tag-negativeBias
)

// MaxLen is the longest possible encoding (tag + 8 bytes).
const MaxLen = 9

// tagWidth returns the payload size for a width tag, or 0 if tag is not one.
func tagWidth(tag byte) int {
	switch tag {
	case Tag64:
		return 8
	case Tag32:
		return 4
	case Tag16:
		return 2
	case Tag8:
		return 1
	default:
		return 0
	}
}

// AppendUint appends the encoding of an unsigned value.
func AppendUint(buf []byte, v uint64) []byte {
	switch {
	case v < literalLimit:
		return append(buf, byte(v))
	case v <= 0xff:
		return append(buf, Tag8, byte(v))
	case v <= 0xffff:
		return AppendFixed(append(buf, Tag16), v, 2)
	case v <= 0xffffffff:
		return AppendFixed(append(buf, Tag32), v, 4)
	default:
		return AppendFixed(append(buf, Tag64), v, 8)
	}
}

// AppendInt appends the encoding of a signed value. Width bounds are
// symmetric (±0x7f, ±0x7fff, ±0x7fffffff), so -0x80 takes the 16-bit form.
func AppendInt(buf []byte, v int64) []byte {
	switch {
	case v >= 0 && v < literalLimit:
		return append(buf, byte(v))
	case v < 0 && v >= -literalLimit:
		return append(buf, byte(v+negativeBias))
	case v >= -0x7f && v <= 0x7f:
		return append(buf, Tag8, byte(v))
	case v >= -0x7fff && v <= 0x7fff:
		return AppendFixed(append(buf, Tag16), uint64(v), 2)
	case v >= -0x7fffffff && v <= 0x7fffffff:
		return AppendFixed(append(buf, Tag32), uint64(v), 4)
	default:
		return AppendFixed(append(buf, Tag64), uint64(v), 8)
	}
}

// UintLen returns the encoded size of v.
func UintLen(v uint64) int {
	switch {
	case v < literalLimit:
		return 1
	case v <= 0xff:
		return 2
	case v <= 0xffff:
		return 3
	case v <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

// IntLen returns the encoded size of v.
func IntLen(v int64) int {
	switch {
	case v >= -literalLimit && v < literalLimit:
		return 1
	case v >= -0x7f && v <= 0x7f:
		return 2
	case v >= -0x7fff && v <= 0x7fff:
		return 3
	case v >= -0x7fffffff && v <= 0x7fffffff:
		return 5
	default:
		return 9
	}
}

// DecodeUint decodes an unsigned value that must fit in bits (32 or 64).
// It returns the value and the number of bytes consumed.
func DecodeUint(buf []byte, bits int) (uint64, int, error) {
	if len(buf) == 0 {
		return 0, 0, &codecerrors.CorruptedError{Kind: codecerrors.UnexpectedEnd, Need: 1}
	}
	tag := buf[0]
	if tag < literalLimit {
		return uint64(tag), 1, nil
	}
	size := tagWidth(tag)
	if size == 0 {
		return 0, 0, &codecerrors.CorruptedError{Kind: codecerrors.InvalidTag, Byte: tag}
	}
	if len(buf)-1 < size {
		return 0, 0, &codecerrors.CorruptedError{Kind: codecerrors.UnexpectedEnd, Offset: 1, Need: size, Have: len(buf) - 1}
	}
	v := Fixed(buf[1:], size)
	if bits < 64 && v>>bits != 0 {
		return 0, 0, &codecerrors.CorruptedError{Kind: codecerrors.Overflow, Value: int64(v)}
	}
	return v, 1 + size, nil
}

// DecodeInt decodes a signed value that must fit in bits (32 or 64).
func DecodeInt(buf []byte, bits int) (int64, int, error) {
	if len(buf) == 0 {
		return 0, 0, &codecerrors.CorruptedError{Kind: codecerrors.UnexpectedEnd, Need: 1}
	}
	tag := buf[0]
	switch {
	case tag < literalLimit:
		return int64(tag), 1, nil
	case tag < negativeBias:
		return int64(tag) - negativeBias, 1, nil
	}
	size := tagWidth(tag)
	if size == 0 {
		return 0, 0, &codecerrors.CorruptedError{Kind: codecerrors.InvalidTag, Byte: tag}
	}
	if len(buf)-1 < size {
		return 0, 0, &codecerrors.CorruptedError{Kind: codecerrors.UnexpectedEnd, Offset: 1, Need: size, Have: len(buf) - 1}
	}
	shift := uint(64 - 8*size)
	v := int64(Fixed(buf[1:], size)<<shift) >> shift
	if bits < 64 {
		lim := int64(1) << (bits - 1)
		if v < -lim || v >= lim {
			return 0, 0, &codecerrors.CorruptedError{Kind: codecerrors.Overflow, Value: v}
		}
	}
	return v, 1 + size, nil
}

// AppendFixed appends the low size bytes of v in little-endian order.
// size must be 1, 2, 4 or 8.
func AppendFixed(buf []byte, v uint64, size int) []byte {
	switch size {
	case 1:
		return append(buf, byte(v))
	case 2:
		return binary.LittleEndian.AppendUint16(buf, uint16(v))
	case 4:
		return binary.LittleEndian.AppendUint32(buf, uint32(v))
	case 8:
		return binary.LittleEndian.AppendUint64(buf, v)
	}
	panic(fmt.Sprintf("varint: unsupported fixed width %d", size))
}

// PutFixed writes the low size bytes of v into dst in little-endian order.
// Precondition: len(dst) >= size.
func PutFixed(dst []byte, v uint64, size int) {
	switch size {
	case 1:
		dst[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(dst, v)
	default:
		panic(fmt.Sprintf("varint: unsupported fixed width %d", size))
	}
}

// Fixed reads a little-endian value of size bytes from buf.
// Precondition: len(buf) >= size.
func Fixed(buf []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		return binary.LittleEndian.Uint64(buf)
	}
	panic(fmt.Sprintf("varint: unsupported fixed width %d", size))
}
