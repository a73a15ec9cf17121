package bufcodec

import (
	"bytes"
	"testing"
)

// TestWriterSignedSequence encodes the sequence from the format's worked
// example and checks both the round trip and the per-value widths.
func TestWriterSignedSequence(t *testing.T) {
	values := []int64{0, 99, 100, 255, 1000, 70000, -50, -100, -101}
	wantLens := []int{1, 1, 2, 3, 3, 5, 1, 1, 2}

	w := NewWriter()
	total := 0
	for i, v := range values {
		before := w.Len()
		w.WriteInt64(v)
		if got := w.Len() - before; got != wantLens[i] {
			t.Errorf("WriteInt64(%d) wrote %d bytes, want %d", v, got, wantLens[i])
		}
		total += wantLens[i]
	}
	if w.Len() != total || total != 19 {
		t.Fatalf("encoded length = %d, want 19", w.Len())
	}

	r := NewReader(w.Bytes())
	for _, want := range values {
		got, err := r.ReadInt64()
		if err != nil {
			t.Fatalf("ReadInt64: %v", err)
		}
		if got != want {
			t.Errorf("decoded %d, want %d", got, want)
		}
	}
	if r.Remaining() != 0 {
		t.Errorf("%d trailing bytes", r.Remaining())
	}
}

func TestWriterRandomRoundTrip(t *testing.T) {
	rng := newTestRNG(t)
	w := NewWriter()
	var ints []int64
	var uints []uint32
	for range 2000 {
		// Spread magnitudes so every width is exercised.
		v := int64(rng.Uint64()) >> rng.UintN(64)
		u := rng.Uint32() >> rng.UintN(32)
		ints = append(ints, v)
		uints = append(uints, u)
		w.WriteInt64(v)
		w.WriteUint32(u)
	}
	r := NewReader(w.Bytes())
	for i := range ints {
		if got := must(r.ReadInt64()); got != ints[i] {
			t.Fatalf("int %d: got %d, want %d", i, got, ints[i])
		}
		if got := must(r.ReadUint32()); got != uints[i] {
			t.Fatalf("uint %d: got %d, want %d", i, got, uints[i])
		}
	}
}

func TestWriterBytesIsCopy(t *testing.T) {
	w := NewWriter(WithCapacity(64))
	w.WriteRaw([]byte{1, 2, 3})
	b := w.Bytes()
	b[0] = 9
	if w.Bytes()[0] != 1 {
		t.Error("Bytes aliases the writer buffer")
	}
	w.Reset()
	if w.Len() != 0 {
		t.Errorf("Len after Reset = %d", w.Len())
	}
}

func TestPlaceholderPatch(t *testing.T) {
	w := NewWriter()
	w.WriteUint8(7)
	size := Reserve[uint32](w)
	count := Reserve[int16](w)
	w.WriteString("body")
	size.Patch(uint32(w.Len()))
	count.Patch(-2)

	if size.Offset() != 1 || count.Offset() != 5 {
		t.Fatalf("offsets = %d, %d", size.Offset(), count.Offset())
	}
	r := NewReader(w.Bytes())
	must(r.ReadUint8())
	if got := must(ReadFixed[uint32](r)); got != uint32(w.Len()) {
		t.Errorf("patched size = %d, want %d", got, w.Len())
	}
	if got := must(ReadFixed[int16](r)); got != -2 {
		t.Errorf("patched count = %d, want -2", got)
	}
	mustEqual(t, "body", must(r.ReadString()), "body")
}

func TestPlaceholderPatchAfterResetPanics(t *testing.T) {
	w := NewWriter()
	p := Reserve[uint64](w)
	w.Reset()
	defer func() {
		if recover() == nil {
			t.Error("Patch past the written range did not panic")
		}
	}()
	p.Patch(1)
}

func TestWriteCountNegativePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("WriteCount(-1) did not panic")
		}
	}()
	NewWriter().WriteCount(-1)
}

func TestWriterFixedHelpers(t *testing.T) {
	w := NewWriter()
	w.WriteFixedUint32(0x01020304)
	w.WriteFixedInt32(-1)
	w.WriteFixedUint64(5)
	w.WriteFixedInt64(-5)
	want := []byte{
		4, 3, 2, 1,
		0xff, 0xff, 0xff, 0xff,
		5, 0, 0, 0, 0, 0, 0, 0,
		0xfb, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	}
	if !bytes.Equal(w.Bytes(), want) {
		t.Fatalf("layout = %x, want %x", w.Bytes(), want)
	}
	r := NewReader(w.Bytes())
	mustEqual(t, "u32", must(r.ReadFixedUint32()), uint32(0x01020304))
	mustEqual(t, "i32", must(r.ReadFixedInt32()), int32(-1))
	mustEqual(t, "u64", must(r.ReadFixedUint64()), uint64(5))
	mustEqual(t, "i64", must(r.ReadFixedInt64()), int64(-5))
}
