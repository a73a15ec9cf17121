package bufcodec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	codecerrors "github.com/tamirms/bufcodec/errors"
)

// compressiblePayload returns a blob of repetitive records that every
// compressor shrinks.
func compressiblePayload(t *testing.T) []byte {
	t.Helper()
	bw := NewBlobWriter(DefaultKey)
	for i := range 500 {
		AppendRecord(bw, player{Name: "repeated name", Level: int32(i % 7), Items: []string{"sword", "shield"}}, 2)
	}
	return bw.Bytes()
}

func writeTestArchive(t *testing.T, payload []byte, opts ...ArchiveOption) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bin")
	if err := WriteArchive(path, payload, opts...); err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}
	return path
}

func TestArchiveRoundTrip(t *testing.T) {
	payload := compressiblePayload(t)
	key := KeyFromPassphrase("archive")

	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		for _, encrypted := range []bool{false, true} {
			name := tag.String()
			if encrypted {
				name += "-encrypted"
			}
			t.Run(name, func(t *testing.T) {
				opts := []ArchiveOption{WithArchiveCompression(tag)}
				if encrypted {
					opts = append(opts, WithArchiveKey(key))
				}
				path := writeTestArchive(t, payload, opts...)

				a, err := OpenArchive(path, opts...)
				if err != nil {
					t.Fatalf("OpenArchive: %v", err)
				}
				defer a.Close()

				if err := a.Verify(); err != nil {
					t.Fatalf("Verify: %v", err)
				}
				info := a.Header()
				if info.Compression != tag || info.Encrypted != encrypted {
					t.Errorf("header = %+v", info)
				}
				if info.RawLen != uint64(len(payload)) {
					t.Errorf("raw length = %d, want %d", info.RawLen, len(payload))
				}
				if tag != CompressionNone && info.StoredLen >= info.RawLen {
					t.Errorf("%s did not shrink the body: %d >= %d", tag, info.StoredLen, info.RawLen)
				}
				stat, err := os.Stat(path)
				if err != nil {
					t.Fatal(err)
				}
				if info.FileSize != stat.Size() || uint64(stat.Size()) != archiveHeaderSize+info.StoredLen+archiveFooterSize {
					t.Errorf("file size %d does not match header %+v", stat.Size(), info)
				}

				got, err := a.Payload()
				if err != nil {
					t.Fatalf("Payload: %v", err)
				}
				if !bytes.Equal(got, payload) {
					t.Fatal("payload changed in the round trip")
				}
			})
		}
	}
}

func TestArchiveEncryptedBodyIsNotPlaintext(t *testing.T) {
	payload := bytes.Repeat([]byte("plaintext!"), 20)
	path := writeTestArchive(t, payload, WithArchiveKey(DefaultKey), WithArchiveSalt(5))
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("plaintext!")) {
		t.Error("encrypted archive contains the plaintext")
	}
	a := must(OpenArchiveBytes(data))
	if a.Header().Salt != 5 {
		t.Errorf("salt = %d, want 5", a.Header().Salt)
	}
}

func TestArchiveRandomSalt(t *testing.T) {
	payload := []byte("same payload")
	a := must(os.ReadFile(writeTestArchive(t, payload, WithArchiveKey(DefaultKey))))
	b := must(os.ReadFile(writeTestArchive(t, payload, WithArchiveKey(DefaultKey))))
	if bytes.Equal(a, b) {
		t.Error("two encrypted archives of the same payload are identical")
	}
}

func TestArchiveIncompressibleFallsBack(t *testing.T) {
	rng := newTestRNG(t)
	payload := make([]byte, 4096)
	fillFromRNG(rng, payload)
	path := writeTestArchive(t, payload, WithArchiveCompression(CompressionZstd))

	a := must(OpenArchive(path))
	defer a.Close()
	if a.Header().Compression != CompressionNone {
		t.Errorf("compression = %s, want none for random data", a.Header().Compression)
	}
	if got := must(a.Payload()); !bytes.Equal(got, payload) {
		t.Error("payload changed")
	}
}

func TestArchiveEmptyPayload(t *testing.T) {
	path := writeTestArchive(t, nil, WithArchiveCompression(CompressionLZ4))
	r, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("payload length = %d", r.Len())
	}
}

func TestArchiveMissingKey(t *testing.T) {
	path := writeTestArchive(t, []byte("secret"), WithArchiveKey(DefaultKey))
	a := must(OpenArchive(path))
	defer a.Close()
	if err := a.Verify(); err != nil {
		t.Errorf("Verify without a key: %v", err)
	}
	if _, err := a.Payload(); !errors.Is(err, codecerrors.ErrMissingKey) {
		t.Errorf("Payload err = %v, want ErrMissingKey", err)
	}
}

func TestArchiveWrongKey(t *testing.T) {
	payload := compressiblePayload(t)
	path := writeTestArchive(t, payload, WithArchiveKey(DefaultKey), WithArchiveCompression(CompressionLZ4))
	a := must(OpenArchive(path, WithArchiveKey(KeyFromPassphrase("wrong"))))
	defer a.Close()
	got, err := a.Payload()
	if err == nil && bytes.Equal(got, payload) {
		t.Error("wrong key recovered the payload")
	}
}

func TestWriterWriteFileAndReadFile(t *testing.T) {
	key := KeyFromPassphrase("writer")
	w := NewWriter(WithKey(key, 11))
	WriteSlice(w, []string{"a", "héllo", ""}, (*Writer).WriteString)
	before := w.Bytes()

	path := filepath.Join(t.TempDir(), "save.bin")
	if err := w.WriteFile(path, WithArchiveCompression(CompressionZstd)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if !bytes.Equal(w.Bytes(), before) {
		t.Error("WriteFile modified the writer buffer")
	}

	if _, err := ReadFile(path); !errors.Is(err, codecerrors.ErrMissingKey) {
		t.Errorf("ReadFile without key err = %v", err)
	}
	r, err := ReadFile(path, WithArchiveKey(key), WithArchiveReaderOptions(WithSafetyLimit(3)))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if r.SafetyLimit() != 3 {
		t.Errorf("safety limit = %d", r.SafetyLimit())
	}
	got := must(ReadSlice(r, (*Reader).ReadString))
	if len(got) != 3 || got[1] != "héllo" {
		t.Errorf("got %q", got)
	}
}

func TestWriteArchiveReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	for _, payload := range [][]byte{[]byte("first"), []byte("second version")} {
		if err := WriteArchive(path, payload); err != nil {
			t.Fatal(err)
		}
	}
	r := must(ReadFile(path))
	if got := must(r.ReadRaw(r.Len())); string(got) != "second version" {
		t.Errorf("payload = %q", got)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the archive", len(entries))
	}
}

func TestArchiveClose(t *testing.T) {
	a := must(OpenArchive(writeTestArchive(t, []byte("x"))))
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := a.Verify(); !errors.Is(err, codecerrors.ErrArchiveClosed) {
		t.Errorf("Verify after Close = %v", err)
	}
	if _, err := a.Payload(); !errors.Is(err, codecerrors.ErrArchiveClosed) {
		t.Errorf("Payload after Close = %v", err)
	}
}

func TestArchiveOpenErrors(t *testing.T) {
	valid := must(os.ReadFile(writeTestArchive(t, compressiblePayload(t), WithArchiveCompression(CompressionLZ4))))

	corrupt := func(mutate func([]byte) []byte) []byte {
		return mutate(bytes.Clone(valid))
	}
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"Empty", nil, codecerrors.ErrTruncatedFile},
		{"ShorterThanHeader", valid[:20], codecerrors.ErrTruncatedFile},
		{"Truncated", valid[:len(valid)-1], codecerrors.ErrTruncatedFile},
		{"TrailingBytes", append(bytes.Clone(valid), 0), codecerrors.ErrCorrupted},
		{"BadMagic", corrupt(func(b []byte) []byte { b[0] ^= 0xff; return b }), codecerrors.ErrInvalidMagic},
		{"BadVersion", corrupt(func(b []byte) []byte { binary.LittleEndian.PutUint16(b[4:], 9); return b }), codecerrors.ErrInvalidVersion},
		{"BadCompression", corrupt(func(b []byte) []byte { b[6] = 7; return b }), codecerrors.ErrUnknownCompression},
		{"HugeStoredLength", corrupt(func(b []byte) []byte { binary.LittleEndian.PutUint64(b[16:], 1<<62); return b }), codecerrors.ErrTruncatedFile},
		{"RawLengthOverflowsInt", corrupt(func(b []byte) []byte { binary.LittleEndian.PutUint64(b[24:], math.MaxUint64); return b }), codecerrors.ErrCorrupted},
		{"RawLengthBeyondExpansion", corrupt(func(b []byte) []byte {
			stored := binary.LittleEndian.Uint64(b[16:])
			binary.LittleEndian.PutUint64(b[24:], stored*maxExpansionLZ4+1)
			return b
		}), codecerrors.ErrCorrupted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenArchiveBytes(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("OpenArchiveBytes err = %v, want %v", err, tt.want)
			}

			path := filepath.Join(t.TempDir(), "bad.bin")
			if err := os.WriteFile(path, tt.data, 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := OpenArchive(path); !errors.Is(err, tt.want) {
				t.Errorf("OpenArchive err = %v, want %v", err, tt.want)
			}
		})
	}
}

// A compressed archive must not make Payload allocate more than the header
// can plausibly describe or the caller allows.
func TestArchiveRawLengthBounds(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			zeros := make([]byte, 1<<20)
			valid := must(os.ReadFile(writeTestArchive(t, zeros, WithArchiveCompression(tag))))
			a, err := OpenArchiveBytes(valid)
			if err != nil {
				t.Fatalf("OpenArchiveBytes: %v", err)
			}
			if a.Header().Compression != tag {
				t.Fatalf("compression = %s, want %s", a.Header().Compression, tag)
			}
			if got := must(a.Payload()); !bytes.Equal(got, zeros) {
				t.Error("payload differs")
			}

			_, err = OpenArchiveBytes(valid, WithArchiveMaxPayload(1<<10))
			if codecerrors.KindOf(err) != codecerrors.InvalidLength {
				t.Errorf("over ceiling: err = %v, want InvalidLength", err)
			}

			huge := bytes.Clone(valid)
			binary.LittleEndian.PutUint64(huge[24:], math.MaxUint64)
			func() {
				defer func() {
					if r := recover(); r != nil {
						t.Fatalf("OpenArchiveBytes panicked: %v", r)
					}
				}()
				if _, err := OpenArchiveBytes(huge); codecerrors.KindOf(err) != codecerrors.InvalidLength {
					t.Errorf("huge raw length: err = %v, want InvalidLength", err)
				}
			}()
		})
	}
}

func TestArchiveOpenMissingFile(t *testing.T) {
	if _, err := OpenArchive(filepath.Join(t.TempDir(), "missing.bin")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}

// TestArchiveChecksum flips bytes across the file; every flip in header or
// body must fail Verify or the header checks, and a flipped footer must
// fail Verify.
func TestArchiveChecksum(t *testing.T) {
	valid := must(os.ReadFile(writeTestArchive(t, compressiblePayload(t), WithArchiveCompression(CompressionZstd))))
	for _, off := range []int{8, 12, archiveHeaderSize, len(valid) / 2, len(valid) - archiveFooterSize - 1, len(valid) - 1} {
		data := bytes.Clone(valid)
		data[off] ^= 0x01
		a, err := OpenArchiveBytes(data)
		if err != nil {
			continue // caught by header validation
		}
		if err := a.Verify(); !errors.Is(err, codecerrors.ErrChecksumFailed) {
			t.Errorf("flip at %d: Verify = %v, want ErrChecksumFailed", off, err)
		}
	}

	// ReadFile verifies before decoding.
	data := bytes.Clone(valid)
	data[len(data)/2] ^= 0x80
	path := filepath.Join(t.TempDir(), "flipped.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); !errors.Is(err, codecerrors.ErrChecksumFailed) {
		t.Errorf("ReadFile err = %v, want ErrChecksumFailed", err)
	}
}

func TestCompressionTagNames(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		got, err := ParseCompressionTag(tag.String())
		if err != nil || got != tag {
			t.Errorf("ParseCompressionTag(%q) = %v, %v", tag.String(), got, err)
		}
	}
	if _, err := ParseCompressionTag("brotli"); err == nil {
		t.Error("unknown name parsed")
	}
	if err := WriteArchive(filepath.Join(t.TempDir(), "x"), nil, WithArchiveCompression(CompressionTag(9))); err == nil {
		t.Error("WriteArchive accepted an unknown compression tag")
	}
}
