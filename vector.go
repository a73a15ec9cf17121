package bufcodec

// Vector2 is a homogeneous pair. It encodes as X then Y with no count.
type Vector2[T any] struct {
	X, Y T
}

// Vector3 is a homogeneous triple encoded as X, Y, Z.
type Vector3[T any] struct {
	X, Y, Z T
}

// Vector4 is a homogeneous quadruple encoded as X, Y, Z, W.
type Vector4[T any] struct {
	X, Y, Z, W T
}

// Range is a half-open interval [Lower, Upper).
type Range[T any] struct {
	Lower, Upper T
}

// ClosedRange is a closed interval [Lower, Upper]. It has the same layout
// as Range.
type ClosedRange[T any] struct {
	Lower, Upper T
}

// WriteVector2 appends v.X and v.Y.
func WriteVector2[T any](w *Writer, v Vector2[T], write WriteFunc[T]) {
	write(w, v.X)
	write(w, v.Y)
}

// ReadVector2 reads a Vector2 written by WriteVector2.
func ReadVector2[T any](r *Reader, read ReadFunc[T]) (v Vector2[T], err error) {
	defer r.settle(r.mark(), &err)
	if v.X, err = read(r); err != nil {
		return Vector2[T]{}, err
	}
	if v.Y, err = read(r); err != nil {
		return Vector2[T]{}, err
	}
	return v, nil
}

// WriteVector3 appends v.X, v.Y and v.Z.
func WriteVector3[T any](w *Writer, v Vector3[T], write WriteFunc[T]) {
	write(w, v.X)
	write(w, v.Y)
	write(w, v.Z)
}

// ReadVector3 reads a Vector3 written by WriteVector3.
func ReadVector3[T any](r *Reader, read ReadFunc[T]) (v Vector3[T], err error) {
	defer r.settle(r.mark(), &err)
	for _, slot := range []*T{&v.X, &v.Y, &v.Z} {
		if *slot, err = read(r); err != nil {
			return Vector3[T]{}, err
		}
	}
	return v, nil
}

// WriteVector4 appends v.X, v.Y, v.Z and v.W.
func WriteVector4[T any](w *Writer, v Vector4[T], write WriteFunc[T]) {
	write(w, v.X)
	write(w, v.Y)
	write(w, v.Z)
	write(w, v.W)
}

// ReadVector4 reads a Vector4 written by WriteVector4.
func ReadVector4[T any](r *Reader, read ReadFunc[T]) (v Vector4[T], err error) {
	defer r.settle(r.mark(), &err)
	for _, slot := range []*T{&v.X, &v.Y, &v.Z, &v.W} {
		if *slot, err = read(r); err != nil {
			return Vector4[T]{}, err
		}
	}
	return v, nil
}

// WriteRange appends [lower][upper].
func WriteRange[T any](w *Writer, rg Range[T], write WriteFunc[T]) {
	write(w, rg.Lower)
	write(w, rg.Upper)
}

// ReadRange reads a Range written by WriteRange. Bounds are not compared;
// T need not be ordered.
func ReadRange[T any](r *Reader, read ReadFunc[T]) (Range[T], error) {
	v, err := ReadVector2(r, read)
	return Range[T]{Lower: v.X, Upper: v.Y}, err
}

// WriteClosedRange appends [lower][upper].
func WriteClosedRange[T any](w *Writer, rg ClosedRange[T], write WriteFunc[T]) {
	write(w, rg.Lower)
	write(w, rg.Upper)
}

// ReadClosedRange reads a ClosedRange written by WriteClosedRange.
func ReadClosedRange[T any](r *Reader, read ReadFunc[T]) (ClosedRange[T], error) {
	v, err := ReadVector2(r, read)
	return ClosedRange[T]{Lower: v.X, Upper: v.Y}, err
}
