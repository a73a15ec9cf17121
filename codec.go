package bufcodec

import (
	codecerrors "github.com/tamirms/bufcodec/errors"
)

// Encodable is implemented by types that append their own fields to a
// Writer. Encoding cannot fail; every value a type can hold must encode.
type Encodable interface {
	EncodeTo(w *Writer)
}

// Decodable is implemented by pointer types that fill their zero value from
// a Reader, reading fields in the order EncodeTo wrote them.
type Decodable interface {
	DecodeFrom(r *Reader) error
}

// DecodablePtr constrains PT to *T implementing Decodable. It lets Decode
// construct a T without reflection.
type DecodablePtr[T any] interface {
	*T
	Decodable
}

// VersionedEncodable is Encodable with an explicit layout version.
type VersionedEncodable interface {
	EncodeVersioned(w *Writer, version int)
}

// VersionedDecodable is Decodable with an explicit layout version. A type
// typically branches on it: "if version >= 2, read field X; else default
// it".
type VersionedDecodable interface {
	DecodeVersioned(r *Reader, version int) error
}

// VersionedDecodablePtr constrains PT to *T implementing VersionedDecodable.
type VersionedDecodablePtr[T any] interface {
	*T
	VersionedDecodable
}

// Versionable tracks the layout version a build writes and the version
// found in the data last decoded into the value. The codec only carries
// these numbers; deciding on a migration is up to the caller.
type Versionable interface {
	CurrentVersion() int
	LoadedVersion() int
	SetLoadedVersion(version int)
}

// VersionStamp can be embedded to provide LoadedVersion and
// SetLoadedVersion. The embedding type supplies CurrentVersion.
type VersionStamp struct {
	loaded int
}

// LoadedVersion returns the version last decoded, or 0.
func (s VersionStamp) LoadedVersion() int { return s.loaded }

// SetLoadedVersion records the version last decoded.
func (s *VersionStamp) SetLoadedVersion(version int) { s.loaded = version }

// NeedsMigration reports whether v was loaded from an older layout than the
// one this build writes.
func NeedsMigration(v Versionable) bool {
	return v.LoadedVersion() != 0 && v.LoadedVersion() < v.CurrentVersion()
}

// Encode appends v using its EncodeTo method.
func Encode[T Encodable](w *Writer, v T) {
	v.EncodeTo(w)
}

// Decode constructs a T from r. On failure the cursor is left where it was.
func Decode[T any, PT DecodablePtr[T]](r *Reader) (v T, err error) {
	defer r.settle(r.mark(), &err)
	if err := PT(&v).DecodeFrom(r); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// EncodeVersioned appends v using layout version.
func EncodeVersioned[T VersionedEncodable](w *Writer, v T, version int) {
	v.EncodeVersioned(w, version)
}

// DecodeVersioned constructs a T from r using layout version. If T is
// Versionable, its loaded version is set to version.
func DecodeVersioned[T any, PT VersionedDecodablePtr[T]](r *Reader, version int) (v T, err error) {
	defer r.settle(r.mark(), &err)
	p := PT(&v)
	if err := p.DecodeVersioned(r, version); err != nil {
		var zero T
		return zero, err
	}
	if vs, ok := any(p).(Versionable); ok {
		vs.SetLoadedVersion(version)
	}
	return v, nil
}

// Enum is a discriminant type whose valid values are known to the type.
type Enum interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32
	Valid() bool
}

// WriteEnum appends the discriminant of e as a signed varint.
func WriteEnum[E Enum](w *Writer, e E) {
	w.svarint(int64(e))
}

// ReadEnum reads a discriminant and rejects values that do not fit E or
// that E does not consider valid.
func ReadEnum[E Enum](r *Reader) (e E, err error) {
	defer r.settle(r.mark(), &err)
	start := r.pos
	v, err := r.svarint(64)
	if err != nil {
		return e, err
	}
	e = E(v)
	if int64(e) != v || !e.Valid() {
		var zero E
		return zero, &codecerrors.CorruptedError{Kind: codecerrors.InvalidTag, Offset: start, Value: v}
	}
	return e, nil
}
