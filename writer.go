package bufcodec

import (
	"bytes"
	"fmt"
	"math"
	"unsafe"

	"github.com/tamirms/bufcodec/internal/varint"
)

// Writer is an append-only byte buffer with encoding operations that mirror
// Reader. The only in-place mutation is Placeholder.Patch.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	buf     []byte
	compact bool
	key     *Key
	salt    uint64
}

// NewWriter returns an empty Writer.
func NewWriter(opts ...Option) *Writer {
	cfg := newConfig(opts)
	return &Writer{
		buf:     make([]byte, 0, cfg.capacity),
		compact: cfg.compact,
		key:     cfg.key,
		salt:    cfg.salt,
	}
}

// child returns an empty Writer with the same integer form.
func (w *Writer) child() *Writer {
	return &Writer{compact: w.compact}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Bytes returns a copy of the bytes written so far.
func (w *Writer) Bytes() []byte { return bytes.Clone(w.buf) }

// Reset discards the contents and keeps the allocated capacity.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

// EncryptInPlace adds the keystream for key and salt over the whole buffer.
// Apply it once, right before the bytes are persisted.
func (w *Writer) EncryptInPlace(key Key, salt uint64) {
	Encrypt(w.buf, key, salt)
}

// WriteFile persists the buffer as an archive file at path. If the Writer
// was created WithKey, the archive body is encrypted with that key and
// salt; explicit archive options take precedence. The buffer itself is
// left unchanged.
func (w *Writer) WriteFile(path string, opts ...ArchiveOption) error {
	if w.key != nil {
		opts = append([]ArchiveOption{WithArchiveKey(*w.key), WithArchiveSalt(w.salt)}, opts...)
	}
	return WriteArchive(path, w.buf, opts...)
}

// replaceRange overwrites len(b) bytes at off. It panics if the range was
// never written.
func (w *Writer) replaceRange(off int, b []byte) {
	if off < 0 || off+len(b) > len(w.buf) {
		panic(fmt.Sprintf("bufcodec: replace [%d, %d) outside written range [0, %d)", off, off+len(b), len(w.buf)))
	}
	copy(w.buf[off:], b)
}

func (w *Writer) fixed(v uint64, size int) {
	w.buf = varint.AppendFixed(w.buf, v, size)
}

func (w *Writer) uvarint(v uint64) {
	w.buf = varint.AppendUint(w.buf, v)
}

func (w *Writer) svarint(v int64) {
	w.buf = varint.AppendInt(w.buf, v)
}

// WriteRaw appends b verbatim.
func (w *Writer) WriteRaw(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteCount appends a collection element count.
func (w *Writer) WriteCount(n int) {
	if n < 0 {
		panic(fmt.Sprintf("bufcodec: negative count %d", n))
	}
	w.svarint(int64(n))
}

// WriteSubBuffer appends b as a length-prefixed opaque chunk.
func (w *Writer) WriteSubBuffer(b []byte) {
	w.svarint(int64(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteNested runs fn against a fresh Writer and appends its output as a
// length-prefixed sub-buffer.
func (w *Writer) WriteNested(fn func(*Writer)) {
	sub := w.child()
	fn(sub)
	w.WriteSubBuffer(sub.buf)
}

// WriteUint8 appends one byte.
func (w *Writer) WriteUint8(v uint8) { w.buf = append(w.buf, v) }

// WriteInt8 appends one byte.
func (w *Writer) WriteInt8(v int8) { w.buf = append(w.buf, byte(v)) }

// WriteUint16 appends two little-endian bytes.
func (w *Writer) WriteUint16(v uint16) { w.fixed(uint64(v), 2) }

// WriteInt16 appends two little-endian bytes.
func (w *Writer) WriteInt16(v int16) { w.fixed(uint64(v), 2) }

// WriteUint32 appends v in the Writer's integer form.
func (w *Writer) WriteUint32(v uint32) {
	if !w.compact {
		w.fixed(uint64(v), 4)
		return
	}
	w.uvarint(uint64(v))
}

// WriteInt32 appends v in the Writer's integer form.
func (w *Writer) WriteInt32(v int32) {
	if !w.compact {
		w.fixed(uint64(v), 4)
		return
	}
	w.svarint(int64(v))
}

// WriteUint64 appends v in the Writer's integer form.
func (w *Writer) WriteUint64(v uint64) {
	if !w.compact {
		w.fixed(v, 8)
		return
	}
	w.uvarint(v)
}

// WriteInt64 appends v in the Writer's integer form.
func (w *Writer) WriteInt64(v int64) {
	if !w.compact {
		w.fixed(uint64(v), 8)
		return
	}
	w.svarint(v)
}

// WriteInt appends a native int as a 64-bit value.
func (w *Writer) WriteInt(v int) { w.WriteInt64(int64(v)) }

// WriteUint appends a native uint as a 64-bit value.
func (w *Writer) WriteUint(v uint) { w.WriteUint64(uint64(v)) }

// WriteFixedUint32 appends 4 raw little-endian bytes regardless of the
// integer form.
func (w *Writer) WriteFixedUint32(v uint32) { w.fixed(uint64(v), 4) }

// WriteFixedInt32 appends 4 raw little-endian bytes.
func (w *Writer) WriteFixedInt32(v int32) { w.fixed(uint64(v), 4) }

// WriteFixedUint64 appends 8 raw little-endian bytes regardless of the
// integer form.
func (w *Writer) WriteFixedUint64(v uint64) { w.fixed(v, 8) }

// WriteFixedInt64 appends 8 raw little-endian bytes.
func (w *Writer) WriteFixedInt64(v int64) { w.fixed(uint64(v), 8) }

// WriteBool appends 1 for true and 0 for false.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// WriteFloat32 appends the IEEE 754 bits of v in little-endian order.
func (w *Writer) WriteFloat32(v float32) { w.fixed(uint64(math.Float32bits(v)), 4) }

// WriteFloat64 appends the IEEE 754 bits of v in little-endian order.
func (w *Writer) WriteFloat64(v float64) { w.fixed(math.Float64bits(v), 8) }

// WriteString appends a length-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) {
	w.svarint(int64(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteBytes appends a length-prefixed byte string.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteSubBuffer(b)
}

// Fixed is the set of integer types that can back a Placeholder.
type Fixed interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64
}

// Placeholder is a reserved fixed-width slot in a Writer that can be
// patched once its value is known.
type Placeholder[T Fixed] struct {
	w   *Writer
	off int
}

// Reserve appends the zero value of T in raw little-endian form and returns
// a handle for patching it later.
func Reserve[T Fixed](w *Writer) Placeholder[T] {
	var zero T
	size := int(unsafe.Sizeof(zero))
	off := len(w.buf)
	w.fixed(0, size)
	return Placeholder[T]{w: w, off: off}
}

// Offset returns the byte offset of the reserved slot.
func (p Placeholder[T]) Offset() int { return p.off }

// Patch overwrites the reserved bytes with v.
func (p Placeholder[T]) Patch(v T) {
	var b [8]byte
	size := int(unsafe.Sizeof(v))
	varint.PutFixed(b[:], uint64(v), size)
	p.w.replaceRange(p.off, b[:size])
}

// ReadFixed reads a raw little-endian T, the dual of a patched Placeholder.
func ReadFixed[T Fixed](r *Reader) (v T, err error) {
	defer r.settle(r.mark(), &err)
	u, err := r.fixed(int(unsafe.Sizeof(v)))
	return T(u), err
}
