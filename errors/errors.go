// Package errors defines all exported error values for the bufcodec library.
//
// This is the single source of truth for error values. Both the top-level
// bufcodec package and internal packages import from here, ensuring
// errors.Is checks work across package boundaries.
package errors

import (
	"errors"
	"fmt"
)

// ErrCorrupted is matched by every structural decode failure. Callers that
// do not care which invariant failed only need errors.Is(err, ErrCorrupted).
var ErrCorrupted = errors.New("bufcodec: data is corrupted")

// Archive errors
var (
	ErrInvalidMagic       = errors.New("bufcodec: invalid archive magic number")
	ErrInvalidVersion     = errors.New("bufcodec: unsupported format version")
	ErrChecksumFailed     = errors.New("bufcodec: archive checksum verification failed")
	ErrTruncatedFile      = errors.New("bufcodec: archive file is truncated")
	ErrArchiveClosed      = errors.New("bufcodec: archive is closed")
	ErrMissingKey         = errors.New("bufcodec: archive is encrypted but no key was supplied")
	ErrUnknownCompression = errors.New("bufcodec: unknown compression tag")
)

// Kind classifies a CorruptedError.
type Kind uint8

const (
	// UnexpectedEnd means a read needed more bytes than remain.
	UnexpectedEnd Kind = iota + 1
	// InvalidTag means a varint tag byte or enum discriminant is not recognized.
	InvalidTag
	// InvalidUTF8 means a string payload is not valid UTF-8.
	InvalidUTF8
	// InvalidBool means a bool byte was neither 0 nor 1.
	InvalidBool
	// CountExceedsLimit means a length prefix is above the reader's safety limit.
	CountExceedsLimit
	// TypeHashMismatch means a record was written for a different type.
	TypeHashMismatch
	// Overflow means a decoded integer does not fit the requested width.
	Overflow
	// InvalidLength means a negative length or count.
	InvalidLength
)

func (k Kind) String() string {
	switch k {
	case UnexpectedEnd:
		return "unexpected end of buffer"
	case InvalidTag:
		return "invalid tag"
	case InvalidUTF8:
		return "invalid utf-8"
	case InvalidBool:
		return "invalid bool"
	case CountExceedsLimit:
		return "count exceeds limit"
	case TypeHashMismatch:
		return "type hash mismatch"
	case Overflow:
		return "integer overflow"
	case InvalidLength:
		return "invalid length"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// CorruptedError carries the detail of a decode failure. It matches
// ErrCorrupted under errors.Is.
//
// Field use depends on Kind:
//   - UnexpectedEnd: Offset, Need, Have
//   - InvalidTag, InvalidBool: Offset, Byte (Value for enum discriminants)
//   - CountExceedsLimit: Value (count), Limit
//   - TypeHashMismatch: Expected, Found
//   - Overflow, InvalidLength: Offset, Value
type CorruptedError struct {
	Kind     Kind
	Offset   int
	Need     int
	Have     int
	Byte     byte
	Value    int64
	Limit    int
	Expected uint64
	Found    uint64
}

func (e *CorruptedError) Error() string {
	switch e.Kind {
	case UnexpectedEnd:
		return fmt.Sprintf("bufcodec: corrupted: %s at offset %d (need %d bytes, have %d)", e.Kind, e.Offset, e.Need, e.Have)
	case InvalidTag:
		if e.Value != 0 {
			return fmt.Sprintf("bufcodec: corrupted: %s %d at offset %d", e.Kind, e.Value, e.Offset)
		}
		return fmt.Sprintf("bufcodec: corrupted: %s 0x%02x at offset %d", e.Kind, e.Byte, e.Offset)
	case InvalidBool:
		return fmt.Sprintf("bufcodec: corrupted: %s 0x%02x at offset %d", e.Kind, e.Byte, e.Offset)
	case CountExceedsLimit:
		return fmt.Sprintf("bufcodec: corrupted: %s (%d > %d)", e.Kind, e.Value, e.Limit)
	case TypeHashMismatch:
		return fmt.Sprintf("bufcodec: corrupted: %s (expected %016x, found %016x)", e.Kind, e.Expected, e.Found)
	case Overflow, InvalidLength:
		return fmt.Sprintf("bufcodec: corrupted: %s %d at offset %d", e.Kind, e.Value, e.Offset)
	default:
		return fmt.Sprintf("bufcodec: corrupted: %s at offset %d", e.Kind, e.Offset)
	}
}

// Is reports whether target is ErrCorrupted.
func (e *CorruptedError) Is(target error) bool {
	return target == ErrCorrupted
}

// KindOf returns the Kind of the first CorruptedError in err's chain, or 0.
func KindOf(err error) Kind {
	var ce *CorruptedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}
