package bufcodec

import (
	"encoding/binary"
	"math"

	codecerrors "github.com/tamirms/bufcodec/errors"
)

const (
	// archiveMagic is "BUFA" in little-endian.
	archiveMagic = uint32(0x41465542)

	// archiveVersion is the current archive format version.
	archiveVersion = uint16(0x0001)

	// archiveHeaderSize is the exact size of the serialized header (32 bytes).
	archiveHeaderSize = 32

	// archiveFooterSize is the exact size of the serialized footer (8 bytes).
	archiveFooterSize = 8

	// flagEncrypted marks a body that was encrypted after compression.
	flagEncrypted = uint8(1 << 0)

	// An LZ4 block expands at most 255x: each extra length byte adds at
	// most 255 bytes of output.
	maxExpansionLZ4 = 255

	// A zstd RLE block turns 4 stored bytes into at most 128 KiB.
	maxExpansionZstd = (128 << 10) / 4
)

// archiveHeader is the 32-byte file header.
//
// Layout:
//
//	Offset  Size  Field        Type
//	0       4     Magic        0x41465542 ("BUFA")
//	4       2     Version      0x0001
//	6       1     Compression  uint8 (0=none, 1=lz4, 2=zstd)
//	7       1     Flags        uint8 (bit 0 = encrypted)
//	8       8     Salt         uint64_le (keystream salt, 0 if plaintext)
//	16      8     StoredLen    uint64_le (body bytes on disk)
//	24      8     RawLen       uint64_le (payload bytes after decompression)
type archiveHeader struct {
	Magic       uint32
	Version     uint16
	Compression CompressionTag
	Flags       uint8
	Salt        uint64
	StoredLen   uint64
	RawLen      uint64
}

// encodeTo serializes the header to an existing buffer.
func (h *archiveHeader) encodeTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:6], h.Version)
	buf[6] = uint8(h.Compression)
	buf[7] = h.Flags
	binary.LittleEndian.PutUint64(buf[8:16], h.Salt)
	binary.LittleEndian.PutUint64(buf[16:24], h.StoredLen)
	binary.LittleEndian.PutUint64(buf[24:32], h.RawLen)
}

// decodeArchiveHeader parses a 32-byte header. It validates the fields that
// can be checked without the body; the body length is checked by the caller
// against the file size.
func decodeArchiveHeader(buf []byte) (*archiveHeader, error) {
	if len(buf) < archiveHeaderSize {
		return nil, codecerrors.ErrTruncatedFile
	}

	h := &archiveHeader{
		Magic:       binary.LittleEndian.Uint32(buf[0:4]),
		Version:     binary.LittleEndian.Uint16(buf[4:6]),
		Compression: CompressionTag(buf[6]),
		Flags:       buf[7],
		Salt:        binary.LittleEndian.Uint64(buf[8:16]),
		StoredLen:   binary.LittleEndian.Uint64(buf[16:24]),
		RawLen:      binary.LittleEndian.Uint64(buf[24:32]),
	}

	if h.Magic != archiveMagic {
		return nil, codecerrors.ErrInvalidMagic
	}
	if h.Version != archiveVersion {
		return nil, codecerrors.ErrInvalidVersion
	}
	if !h.Compression.valid() {
		return nil, codecerrors.ErrUnknownCompression
	}
	if h.Compression == CompressionNone && h.StoredLen != h.RawLen {
		return nil, &codecerrors.CorruptedError{Kind: codecerrors.InvalidLength, Offset: 16, Value: int64(h.StoredLen)}
	}
	if !h.rawLenPlausible() {
		return nil, &codecerrors.CorruptedError{Kind: codecerrors.InvalidLength, Offset: 24, Value: int64(h.RawLen)}
	}
	return h, nil
}

// rawLenPlausible reports whether StoredLen body bytes can decompress to
// RawLen bytes. RawLen is trusted for allocation only after this check.
func (h *archiveHeader) rawLenPlausible() bool {
	if h.RawLen > math.MaxInt {
		return false
	}
	var ratio uint64
	switch h.Compression {
	case CompressionNone:
		return true
	case CompressionLZ4:
		ratio = maxExpansionLZ4
	case CompressionZstd:
		ratio = maxExpansionZstd
	}
	return (h.RawLen+ratio-1)/ratio <= h.StoredLen
}

func (h *archiveHeader) encrypted() bool {
	return h.Flags&flagEncrypted != 0
}

// fileSize returns the total archive size implied by the header.
func (h *archiveHeader) fileSize() uint64 {
	return archiveHeaderSize + h.StoredLen + archiveFooterSize
}

// encodeFooter writes the xxHash64 of header and body.
func encodeFooter(buf []byte, checksum uint64) {
	binary.LittleEndian.PutUint64(buf[0:archiveFooterSize], checksum)
}

func decodeFooter(buf []byte) (uint64, error) {
	if len(buf) < archiveFooterSize {
		return 0, codecerrors.ErrTruncatedFile
	}
	return binary.LittleEndian.Uint64(buf[0:archiveFooterSize]), nil
}
