package bufcodec

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies how an archive body is compressed. The value is
// stored in the archive header, so existing tags must never be renumbered.
type CompressionTag uint8

const (
	// CompressionNone stores the payload as is.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is LZ4 block compression. Fast to decode, modest ratio.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is zstd at the default level. Better ratio for text
	// heavy payloads.
	CompressionZstd CompressionTag = 2
)

// String returns the name accepted by ParseCompressionTag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

func (tag CompressionTag) valid() bool {
	return tag <= CompressionZstd
}

// ParseCompressionTag parses "none", "lz4" or "zstd".
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// errIncompressible is returned when the compressed output is not smaller
// than the input. The archive writer then stores the body uncompressed.
var errIncompressible = errors.New("data is incompressible")

// compress returns data compressed with tag. CompressionNone returns data
// unchanged, without a copy.
func compress(data []byte, tag CompressionTag) ([]byte, error) {
	if len(data) == 0 && tag != CompressionNone {
		return nil, errIncompressible
	}
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		return compressLZ4(data)
	case CompressionZstd:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("compression %s: %w", tag, errUnknownTag)
	}
}

// decompress reverses compress. rawLen must match the original length
// exactly.
func decompress(stored []byte, tag CompressionTag, rawLen int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(stored) != rawLen {
			return nil, fmt.Errorf("uncompressed body: size %d does not match expected %d", len(stored), rawLen)
		}
		return stored, nil
	case CompressionLZ4:
		return decompressLZ4(stored, rawLen)
	case CompressionZstd:
		return decompressZstd(stored, rawLen)
	default:
		return nil, fmt.Errorf("compression %s: %w", tag, errUnknownTag)
	}
}

var errUnknownTag = errors.New("unsupported compression tag")

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return dst[:written], nil
}

func decompressLZ4(stored []byte, rawLen int) ([]byte, error) {
	dst := make([]byte, rawLen)
	read, err := lz4.UncompressBlock(stored, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != rawLen {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, rawLen)
	}
	return dst, nil
}

// maxZstdDecodedSize caps what the shared zstd decoder will produce for
// one body, whatever the header claims.
const maxZstdDecodedSize = 1 << 34

// zstd.Encoder and zstd.Decoder are safe for concurrent use through
// EncodeAll and DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("bufcodec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxZstdDecodedSize))
	if err != nil {
		panic("bufcodec: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	out := zstdEncoder.EncodeAll(data, nil)
	if len(out) >= len(data) {
		return nil, errIncompressible
	}
	return out, nil
}

func decompressZstd(stored []byte, rawLen int) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(stored, make([]byte, 0, rawLen))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(out) != rawLen {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), rawLen)
	}
	return out, nil
}
