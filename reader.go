package bufcodec

import (
	"bytes"
	"errors"
	"math"
	"unicode/utf8"

	codecerrors "github.com/tamirms/bufcodec/errors"
	"github.com/tamirms/bufcodec/internal/varint"
)

// Reader is a bounds-checked cursor over an immutable byte slice.
//
// Every read either consumes exactly the bytes it decodes or fails with an
// error matching codecerrors.ErrCorrupted and leaves the position where it
// was. In preview mode reads return the same values but never move the
// position.
//
// A Reader is not safe for concurrent use. Decode independent records with
// one Reader each; ReadSubBuffer returns owned copies for that purpose.
type Reader struct {
	data    []byte
	pos     int
	preview bool
	limit   int
	compact bool
}

// NewReader returns a Reader over data. The Reader borrows data: it must not
// be modified while the Reader is in use, and Decrypt modifies it in place.
func NewReader(data []byte, opts ...Option) *Reader {
	cfg := newConfig(opts)
	return &Reader{
		data:    data,
		preview: cfg.preview,
		limit:   cfg.safetyLimit,
		compact: cfg.compact,
	}
}

// Position returns the cursor offset.
func (r *Reader) Position() int { return r.pos }

// Len returns the total buffer length.
func (r *Reader) Len() int { return len(r.data) }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// Seek moves the cursor to an absolute offset, typically one returned by
// Position earlier. Offsets outside [0, Len] fail with InvalidLength.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return &codecerrors.CorruptedError{Kind: codecerrors.InvalidLength, Offset: r.pos, Value: int64(pos)}
	}
	r.pos = pos
	return nil
}

// SafetyLimit returns the maximum accepted element count.
func (r *Reader) SafetyLimit() int { return r.limit }

// Preview reports whether preview mode is on.
func (r *Reader) Preview() bool { return r.preview }

// SetPreview turns preview mode on or off.
func (r *Reader) SetPreview(on bool) { r.preview = on }

// Decrypt removes the keystream for key and salt from the whole buffer in
// place. Call it once, before the first structured read.
func (r *Reader) Decrypt(key Key, salt uint64) {
	Decrypt(r.data, key, salt)
}

// mark is the state captured at the start of a public read. Nested reads
// run with preview off; settle restores the outer state.
type mark struct {
	pos  int
	peek bool
}

func (r *Reader) mark() mark {
	m := mark{pos: r.pos, peek: r.preview}
	r.preview = false
	return m
}

func (r *Reader) settle(m mark, err *error) {
	if m.peek || *err != nil {
		r.pos = m.pos
	}
	if m.peek {
		r.preview = true
	}
}

// at shifts the offset of a varint error from buffer-relative to absolute.
func (r *Reader) at(err error) error {
	var ce *codecerrors.CorruptedError
	if errors.As(err, &ce) {
		ce.Offset += r.pos
	}
	return err
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 {
		return nil, &codecerrors.CorruptedError{Kind: codecerrors.InvalidLength, Offset: r.pos, Value: int64(n)}
	}
	if n > len(r.data)-r.pos {
		return nil, &codecerrors.CorruptedError{Kind: codecerrors.UnexpectedEnd, Offset: r.pos, Need: n, Have: len(r.data) - r.pos}
	}
	b := r.data[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) fixed(size int) (uint64, error) {
	b, err := r.take(size)
	if err != nil {
		return 0, err
	}
	return varint.Fixed(b, size), nil
}

func (r *Reader) uvarint(bits int) (uint64, error) {
	v, n, err := varint.DecodeUint(r.data[r.pos:], bits)
	if err != nil {
		return 0, r.at(err)
	}
	r.pos += n
	return v, nil
}

func (r *Reader) svarint(bits int) (int64, error) {
	v, n, err := varint.DecodeInt(r.data[r.pos:], bits)
	if err != nil {
		return 0, r.at(err)
	}
	r.pos += n
	return v, nil
}

func (r *Reader) readUint64() (uint64, error) {
	if !r.compact {
		return r.fixed(8)
	}
	return r.uvarint(64)
}

func (r *Reader) readInt64() (int64, error) {
	if !r.compact {
		v, err := r.fixed(8)
		return int64(v), err
	}
	return r.svarint(64)
}

// readCount reads a non-negative element count bounded by the safety limit.
func (r *Reader) readCount() (int, error) {
	start := r.pos
	v, err := r.svarint(64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, &codecerrors.CorruptedError{Kind: codecerrors.InvalidLength, Offset: start, Value: v}
	}
	if v > int64(r.limit) {
		return 0, &codecerrors.CorruptedError{Kind: codecerrors.CountExceedsLimit, Offset: start, Value: v, Limit: r.limit}
	}
	return int(v), nil
}

// readLength reads a byte length, which can never exceed the unread bytes.
func (r *Reader) readLength() (int, error) {
	start := r.pos
	v, err := r.svarint(64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, &codecerrors.CorruptedError{Kind: codecerrors.InvalidLength, Offset: start, Value: v}
	}
	if v > int64(r.Remaining()) {
		return 0, &codecerrors.CorruptedError{Kind: codecerrors.UnexpectedEnd, Offset: r.pos, Need: int(min(v, math.MaxInt32)), Have: r.Remaining()}
	}
	return int(v), nil
}

func (r *Reader) readNested() ([]byte, error) {
	n, err := r.readLength()
	if err != nil {
		return nil, err
	}
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(b), nil
}

// ReadRaw returns the next n bytes. The result aliases the Reader's buffer;
// use ReadSubBuffer for an owned copy.
func (r *Reader) ReadRaw(n int) (b []byte, err error) {
	defer r.settle(r.mark(), &err)
	return r.take(n)
}

// ReadRawBounded is ReadRaw with an additional n <= maxAllowed check.
func (r *Reader) ReadRawBounded(n, maxAllowed int) (b []byte, err error) {
	defer r.settle(r.mark(), &err)
	if n > maxAllowed {
		return nil, &codecerrors.CorruptedError{Kind: codecerrors.CountExceedsLimit, Offset: r.pos, Value: int64(n), Limit: maxAllowed}
	}
	return r.take(n)
}

// ReadCount reads a collection element count, validated against the safety
// limit before the caller allocates anything.
func (r *Reader) ReadCount() (n int, err error) {
	defer r.settle(r.mark(), &err)
	return r.readCount()
}

// ReadSubBuffer returns an owned copy of the next n bytes.
func (r *Reader) ReadSubBuffer(n int) (b []byte, err error) {
	defer r.settle(r.mark(), &err)
	raw, err := r.take(n)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(raw), nil
}

// ReadNested reads a length-prefixed sub-buffer written by
// Writer.WriteSubBuffer or Writer.WriteNested and returns an owned copy.
func (r *Reader) ReadNested() (b []byte, err error) {
	defer r.settle(r.mark(), &err)
	return r.readNested()
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() (v uint8, err error) {
	defer r.settle(r.mark(), &err)
	u, err := r.fixed(1)
	return uint8(u), err
}

// ReadInt8 reads one byte as a signed value.
func (r *Reader) ReadInt8() (v int8, err error) {
	defer r.settle(r.mark(), &err)
	u, err := r.fixed(1)
	return int8(u), err
}

// ReadUint16 reads two little-endian bytes.
func (r *Reader) ReadUint16() (v uint16, err error) {
	defer r.settle(r.mark(), &err)
	u, err := r.fixed(2)
	return uint16(u), err
}

// ReadInt16 reads two little-endian bytes as a signed value.
func (r *Reader) ReadInt16() (v int16, err error) {
	defer r.settle(r.mark(), &err)
	u, err := r.fixed(2)
	return int16(u), err
}

// ReadUint32 reads a 32-bit value in the Reader's integer form.
func (r *Reader) ReadUint32() (v uint32, err error) {
	defer r.settle(r.mark(), &err)
	var u uint64
	if r.compact {
		u, err = r.uvarint(32)
	} else {
		u, err = r.fixed(4)
	}
	return uint32(u), err
}

// ReadInt32 reads a signed 32-bit value in the Reader's integer form.
func (r *Reader) ReadInt32() (v int32, err error) {
	defer r.settle(r.mark(), &err)
	if !r.compact {
		u, err := r.fixed(4)
		return int32(u), err
	}
	s, err := r.svarint(32)
	return int32(s), err
}

// ReadUint64 reads a 64-bit value in the Reader's integer form.
func (r *Reader) ReadUint64() (v uint64, err error) {
	defer r.settle(r.mark(), &err)
	return r.readUint64()
}

// ReadInt64 reads a signed 64-bit value in the Reader's integer form.
func (r *Reader) ReadInt64() (v int64, err error) {
	defer r.settle(r.mark(), &err)
	return r.readInt64()
}

// ReadInt reads a native int, stored as a 64-bit value on every platform.
func (r *Reader) ReadInt() (v int, err error) {
	defer r.settle(r.mark(), &err)
	start := r.pos
	s, err := r.readInt64()
	if err != nil {
		return 0, err
	}
	if int64(int(s)) != s {
		return 0, &codecerrors.CorruptedError{Kind: codecerrors.Overflow, Offset: start, Value: s}
	}
	return int(s), nil
}

// ReadUint reads a native uint, stored as a 64-bit value on every platform.
func (r *Reader) ReadUint() (v uint, err error) {
	defer r.settle(r.mark(), &err)
	start := r.pos
	u, err := r.readUint64()
	if err != nil {
		return 0, err
	}
	if uint64(uint(u)) != u {
		return 0, &codecerrors.CorruptedError{Kind: codecerrors.Overflow, Offset: start, Value: int64(u)}
	}
	return uint(u), nil
}

// ReadFixedUint32 reads 4 raw little-endian bytes regardless of the
// integer form.
func (r *Reader) ReadFixedUint32() (v uint32, err error) {
	defer r.settle(r.mark(), &err)
	u, err := r.fixed(4)
	return uint32(u), err
}

// ReadFixedInt32 reads 4 raw little-endian bytes as a signed value.
func (r *Reader) ReadFixedInt32() (v int32, err error) {
	defer r.settle(r.mark(), &err)
	u, err := r.fixed(4)
	return int32(u), err
}

// ReadFixedUint64 reads 8 raw little-endian bytes regardless of the
// integer form.
func (r *Reader) ReadFixedUint64() (v uint64, err error) {
	defer r.settle(r.mark(), &err)
	return r.fixed(8)
}

// ReadFixedInt64 reads 8 raw little-endian bytes as a signed value.
func (r *Reader) ReadFixedInt64() (v int64, err error) {
	defer r.settle(r.mark(), &err)
	u, err := r.fixed(8)
	return int64(u), err
}

// ReadBool reads one byte that must be 0 or 1.
func (r *Reader) ReadBool() (v bool, err error) {
	defer r.settle(r.mark(), &err)
	return r.readBool()
}

func (r *Reader) readBool() (bool, error) {
	start := r.pos
	b, err := r.take(1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, &codecerrors.CorruptedError{Kind: codecerrors.InvalidBool, Offset: start, Byte: b[0]}
	}
}

// ReadFloat32 reads a 32-bit IEEE 754 float in little-endian order.
func (r *Reader) ReadFloat32() (v float32, err error) {
	defer r.settle(r.mark(), &err)
	u, err := r.fixed(4)
	return math.Float32frombits(uint32(u)), err
}

// ReadFloat64 reads a 64-bit IEEE 754 float in little-endian order.
func (r *Reader) ReadFloat64() (v float64, err error) {
	defer r.settle(r.mark(), &err)
	u, err := r.fixed(8)
	return math.Float64frombits(u), err
}

// ReadString reads a length-prefixed UTF-8 string.
func (r *Reader) ReadString() (s string, err error) {
	defer r.settle(r.mark(), &err)
	start := r.pos
	n, err := r.readLength()
	if err != nil {
		return "", err
	}
	b, err := r.take(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", &codecerrors.CorruptedError{Kind: codecerrors.InvalidUTF8, Offset: start}
	}
	return string(b), nil
}

// ReadBytes reads a length-prefixed byte string and returns an owned copy.
func (r *Reader) ReadBytes() (b []byte, err error) {
	defer r.settle(r.mark(), &err)
	return r.readNested()
}
