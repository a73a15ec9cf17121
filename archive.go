package bufcodec

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"
	codecerrors "github.com/tamirms/bufcodec/errors"
)

// minArchiveSize is an empty body between header and footer.
const minArchiveSize = archiveHeaderSize + archiveFooterSize

// Archive is a read-only view of an archive file.
//
// Thread Safety:
// - Verify, Payload, Reader and Header are safe for concurrent use
// - Close is NOT safe to call concurrently with the other methods
// - After Close returns, the other methods return ErrArchiveClosed
type Archive struct {
	// Memory map (no file handle needed after mmap)
	mmap mmap.MMap
	data []byte

	header     *archiveHeader
	key        *Key
	maxPayload uint64

	closed atomic.Bool
}

// ArchiveInfo describes an archive without touching its body.
type ArchiveInfo struct {
	Version     uint16
	Compression CompressionTag
	Encrypted   bool
	Salt        uint64
	StoredLen   uint64
	RawLen      uint64
	FileSize    int64
}

// OpenArchive maps the archive at path. A key given WithArchiveKey is used
// by Payload and Reader to decrypt an encrypted body; without one those
// fail with ErrMissingKey, but Header and Verify still work.
func OpenArchive(path string, opts ...ArchiveOption) (*Archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive file: %w", err)
	}
	if stat.Size() < minArchiveSize {
		return nil, codecerrors.ErrTruncatedFile
	}

	// The whole file is read front to back by Verify and Payload.
	fadviseSequential(int(file.Fd()), 0, stat.Size())

	mm, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap archive file: %w", err)
	}

	cfg := newArchiveConfig(opts)
	a := &Archive{
		mmap:       mm,
		data:       []byte(mm),
		key:        cfg.key,
		maxPayload: cfg.maxPayload,
	}
	if err := a.initFromData(); err != nil {
		return nil, errors.Join(err, a.Close())
	}
	return a, nil
}

// OpenArchiveBytes reads an archive from memory. No file is mapped; Close
// is a no-op. The caller must not modify data while the Archive is in use.
func OpenArchiveBytes(data []byte, opts ...ArchiveOption) (*Archive, error) {
	if len(data) < minArchiveSize {
		return nil, codecerrors.ErrTruncatedFile
	}
	cfg := newArchiveConfig(opts)
	a := &Archive{
		data:       data,
		key:        cfg.key,
		maxPayload: cfg.maxPayload,
	}
	if err := a.initFromData(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Archive) initFromData() error {
	hdr, err := decodeArchiveHeader(a.data[:archiveHeaderSize])
	if err != nil {
		return err
	}
	size := uint64(len(a.data))
	switch want := hdr.fileSize(); {
	case hdr.StoredLen > size || want > size:
		return codecerrors.ErrTruncatedFile
	case want < size:
		return &codecerrors.CorruptedError{Kind: codecerrors.InvalidLength, Offset: 16, Value: int64(hdr.StoredLen)}
	case hdr.Compression != CompressionNone && hdr.RawLen > a.maxPayload:
		return &codecerrors.CorruptedError{Kind: codecerrors.InvalidLength, Offset: 24, Value: int64(hdr.RawLen)}
	}
	a.header = hdr
	return nil
}

// Close releases the mapping. It is safe to call more than once.
func (a *Archive) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	if a.mmap != nil {
		return a.mmap.Unmap()
	}
	return nil
}

// Header returns the archive's header fields.
func (a *Archive) Header() ArchiveInfo {
	return ArchiveInfo{
		Version:     a.header.Version,
		Compression: a.header.Compression,
		Encrypted:   a.header.encrypted(),
		Salt:        a.header.Salt,
		StoredLen:   a.header.StoredLen,
		RawLen:      a.header.RawLen,
		FileSize:    int64(len(a.data)),
	}
}

// Verify recomputes the checksum over header and body and compares it with
// the footer.
func (a *Archive) Verify() error {
	if a.closed.Load() {
		return codecerrors.ErrArchiveClosed
	}
	bodyEnd := archiveHeaderSize + a.header.StoredLen
	want, err := decodeFooter(a.data[bodyEnd:])
	if err != nil {
		return err
	}
	if xxhash.Sum64(a.data[:bodyEnd]) != want {
		return codecerrors.ErrChecksumFailed
	}
	return nil
}

// Payload returns an owned copy of the plaintext payload: the body is
// decrypted, then decompressed. It does not verify the checksum; call
// Verify first when the file may be damaged.
func (a *Archive) Payload() ([]byte, error) {
	if a.closed.Load() {
		return nil, codecerrors.ErrArchiveClosed
	}
	if a.header.encrypted() && a.key == nil {
		return nil, codecerrors.ErrMissingKey
	}
	body := a.data[archiveHeaderSize : archiveHeaderSize+a.header.StoredLen]

	// Decryption works in place, and decompress returns its input for
	// uncompressed bodies, so both paths start from an owned copy.
	stored := bytes.Clone(body)
	if stored == nil {
		stored = []byte{}
	}
	if a.header.encrypted() {
		Decrypt(stored, *a.key, a.header.Salt)
	}
	payload, err := decompress(stored, a.header.Compression, int(a.header.RawLen))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", codecerrors.ErrCorrupted, err)
	}
	return payload, nil
}

// Reader returns a Reader over the plaintext payload.
func (a *Archive) Reader(opts ...Option) (*Reader, error) {
	payload, err := a.Payload()
	if err != nil {
		return nil, err
	}
	return NewReader(payload, opts...), nil
}

// ReadFile opens the archive at path, verifies it and returns a Reader over
// its payload. The archive is closed before ReadFile returns.
func ReadFile(path string, opts ...ArchiveOption) (r *Reader, err error) {
	a, err := OpenArchive(path, opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, a.Close())
		if err != nil {
			r = nil
		}
	}()
	if err := a.Verify(); err != nil {
		return nil, err
	}
	return a.Reader(newArchiveConfig(opts).readerOpts...)
}
