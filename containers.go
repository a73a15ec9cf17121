package bufcodec

import (
	"cmp"
	"maps"
	"slices"
)

// ReadFunc decodes one value. Reader methods such as (*Reader).ReadString
// and instantiations such as Decode[T] satisfy it.
type ReadFunc[T any] func(r *Reader) (T, error)

// WriteFunc encodes one value. Writer methods such as (*Writer).WriteString
// and instantiations such as Encode[T] satisfy it.
type WriteFunc[T any] func(w *Writer, v T)

// WriteSlice appends [count][element]*count.
func WriteSlice[T any](w *Writer, s []T, write WriteFunc[T]) {
	w.WriteCount(len(s))
	for _, v := range s {
		write(w, v)
	}
}

// ReadSlice reads a slice written by WriteSlice. The count is checked
// against the safety limit before the slice is allocated.
func ReadSlice[T any](r *Reader, read ReadFunc[T]) (s []T, err error) {
	defer r.settle(r.mark(), &err)
	n, err := r.readCount()
	if err != nil {
		return nil, err
	}
	s = make([]T, 0, n)
	for range n {
		v, err := read(r)
		if err != nil {
			return nil, err
		}
		s = append(s, v)
	}
	return s, nil
}

// WriteSet appends the members of set in map iteration order, which is not
// stable between runs.
func WriteSet[T comparable](w *Writer, set map[T]struct{}, write WriteFunc[T]) {
	w.WriteCount(len(set))
	for v := range set {
		write(w, v)
	}
}

// WriteSortedSet appends the members of set in ascending order, so equal
// sets always encode to equal bytes.
func WriteSortedSet[T cmp.Ordered](w *Writer, set map[T]struct{}, write WriteFunc[T]) {
	WriteSlice(w, slices.Sorted(maps.Keys(set)), write)
}

// ReadSet reads a set written by WriteSet. Duplicate members in the stream
// collapse without error.
func ReadSet[T comparable](r *Reader, read ReadFunc[T]) (set map[T]struct{}, err error) {
	defer r.settle(r.mark(), &err)
	n, err := r.readCount()
	if err != nil {
		return nil, err
	}
	set = make(map[T]struct{}, n)
	for range n {
		v, err := read(r)
		if err != nil {
			return nil, err
		}
		set[v] = struct{}{}
	}
	return set, nil
}

// WriteMap appends [count]([key][value])*count in map iteration order,
// which is not stable between runs.
func WriteMap[K comparable, V any](w *Writer, m map[K]V, writeKey WriteFunc[K], writeValue WriteFunc[V]) {
	w.WriteCount(len(m))
	for k, v := range m {
		writeKey(w, k)
		writeValue(w, v)
	}
}

// WriteSortedMap is WriteMap with keys in ascending order.
func WriteSortedMap[K cmp.Ordered, V any](w *Writer, m map[K]V, writeKey WriteFunc[K], writeValue WriteFunc[V]) {
	w.WriteCount(len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		writeKey(w, k)
		writeValue(w, m[k])
	}
}

// ReadMap reads a map written by WriteMap. If a key repeats, the later pair
// wins.
func ReadMap[K comparable, V any](r *Reader, readKey ReadFunc[K], readValue ReadFunc[V]) (m map[K]V, err error) {
	defer r.settle(r.mark(), &err)
	n, err := r.readCount()
	if err != nil {
		return nil, err
	}
	m = make(map[K]V, n)
	for range n {
		k, err := readKey(r)
		if err != nil {
			return nil, err
		}
		v, err := readValue(r)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

// WriteKeyed appends only the values of m. The reader derives each key
// from its value, so identity-keyed maps do not store keys twice.
func WriteKeyed[K comparable, V any](w *Writer, m map[K]V, write WriteFunc[V]) {
	w.WriteCount(len(m))
	for _, v := range m {
		write(w, v)
	}
}

// ReadKeyed reads values written by WriteKeyed and indexes them by key(v).
// If two values project to the same key, the later one wins.
func ReadKeyed[K comparable, V any](r *Reader, read ReadFunc[V], key func(V) K) (m map[K]V, err error) {
	defer r.settle(r.mark(), &err)
	n, err := r.readCount()
	if err != nil {
		return nil, err
	}
	m = make(map[K]V, n)
	for range n {
		v, err := read(r)
		if err != nil {
			return nil, err
		}
		m[key(v)] = v
	}
	return m, nil
}

// WriteOptional appends [present][value]?. A nil v writes a single false.
func WriteOptional[T any](w *Writer, v *T, write WriteFunc[T]) {
	w.WriteBool(v != nil)
	if v != nil {
		write(w, *v)
	}
}

// ReadOptional reads a value written by WriteOptional; nil means absent.
func ReadOptional[T any](r *Reader, read ReadFunc[T]) (v *T, err error) {
	defer r.settle(r.mark(), &err)
	present, err := r.readBool()
	if err != nil || !present {
		return nil, err
	}
	val, err := read(r)
	if err != nil {
		return nil, err
	}
	return &val, nil
}

// WriteVersionedSlice appends s, encoding each element with version.
func WriteVersionedSlice[T VersionedEncodable](w *Writer, s []T, version int) {
	w.WriteCount(len(s))
	for _, v := range s {
		v.EncodeVersioned(w, version)
	}
}

// ReadVersionedSlice reads a slice written by WriteVersionedSlice, passing
// the same version to every element.
func ReadVersionedSlice[T any, PT VersionedDecodablePtr[T]](r *Reader, version int) ([]T, error) {
	return ReadSlice(r, func(r *Reader) (T, error) {
		return DecodeVersioned[T, PT](r, version)
	})
}

// WriteVersionedOptional appends [present][value]? with value encoded at
// version.
func WriteVersionedOptional[T VersionedEncodable](w *Writer, v *T, version int) {
	w.WriteBool(v != nil)
	if v != nil {
		(*v).EncodeVersioned(w, version)
	}
}

// ReadVersionedOptional reads a value written by WriteVersionedOptional.
func ReadVersionedOptional[T any, PT VersionedDecodablePtr[T]](r *Reader, version int) (*T, error) {
	return ReadOptional(r, func(r *Reader) (T, error) {
		return DecodeVersioned[T, PT](r, version)
	})
}
