package bufcodec

import (
	"fmt"

	codecerrors "github.com/tamirms/bufcodec/errors"
)

const (
	// blobSentinel opens every blob written in format 2 or later. Legacy
	// blobs start directly with the record count, which is never negative.
	blobSentinel = -1

	// FormatVersion is the blob format written by BlobWriter.
	FormatVersion = 2

	// LegacyFormatVersion is assumed when a blob has no sentinel.
	LegacyFormatVersion = 1

	// recordHashSize is the raw type hash at the start of every record.
	recordHashSize = 8
)

// BlobWriter accumulates records for a multi-record blob:
//
//	[-1][format version][count] ([length][type hash: 8 bytes][version][payload])*count
//
// Every integer in the framing is a varint except the raw type hash.
type BlobWriter struct {
	key   Key
	opts  []Option
	body  *Writer
	count int
}

// NewBlobWriter returns an empty BlobWriter whose record hashes use key.
// opts configure the Writer each record payload is encoded into.
func NewBlobWriter(key Key, opts ...Option) *BlobWriter {
	return &BlobWriter{
		key:  key,
		opts: opts,
		body: NewWriter(),
	}
}

// Len returns the number of records appended.
func (bw *BlobWriter) Len() int { return bw.count }

// AppendRaw appends a record with an already encoded payload.
func (bw *BlobWriter) AppendRaw(typeHash uint64, version int, payload []byte) {
	rec := NewWriter(bw.opts...)
	rec.fixed(typeHash, recordHashSize)
	rec.svarint(int64(version))
	rec.WriteRaw(payload)
	bw.body.WriteSubBuffer(rec.buf)
	bw.count++
}

// AppendRecord encodes v at version and appends it as a record stamped
// with the hash of T's qualified name.
func AppendRecord[T VersionedEncodable](bw *BlobWriter, v T, version int) {
	payload := NewWriter(bw.opts...)
	v.EncodeVersioned(payload, version)
	bw.AppendRaw(TypeHashOf[T](bw.key), version, payload.buf)
}

// WriteTo appends the framed blob to w.
func (bw *BlobWriter) WriteTo(w *Writer) {
	w.svarint(blobSentinel)
	w.svarint(FormatVersion)
	w.WriteCount(bw.count)
	w.WriteRaw(bw.body.buf)
}

// Bytes returns the framed blob.
func (bw *BlobWriter) Bytes() []byte {
	w := NewWriter(WithCapacity(bw.body.Len() + 16))
	bw.WriteTo(w)
	return w.buf
}

// Blob is a parsed multi-record blob. Records are owned copies, so they can
// be decoded on any goroutine.
type Blob struct {
	FormatVersion int
	Records       []BlobRecord
}

// BlobRecord is one undecoded record.
type BlobRecord struct {
	Index         int
	FormatVersion int
	Data          []byte
}

// ReadBlob parses the blob framing from r. It fails only when the framing
// itself is broken; bad record contents surface later, per record, from
// DecodeRecord.
func ReadBlob(r *Reader) (blob *Blob, err error) {
	defer r.settle(r.mark(), &err)
	start := r.pos
	first, err := r.svarint(64)
	if err != nil {
		return nil, fmt.Errorf("read blob header: %w", err)
	}

	blob = &Blob{FormatVersion: LegacyFormatVersion}
	var count int
	if first == blobSentinel {
		format, err := r.svarint(64)
		if err != nil {
			return nil, fmt.Errorf("read blob format version: %w", err)
		}
		if format < LegacyFormatVersion || format > FormatVersion {
			return nil, fmt.Errorf("%w: %w: blob format %d", codecerrors.ErrCorrupted, codecerrors.ErrInvalidVersion, format)
		}
		blob.FormatVersion = int(format)
		if count, err = r.readCount(); err != nil {
			return nil, fmt.Errorf("read blob record count: %w", err)
		}
	} else {
		switch {
		case first < 0:
			return nil, &codecerrors.CorruptedError{Kind: codecerrors.InvalidLength, Offset: start, Value: first}
		case first > int64(r.limit):
			return nil, &codecerrors.CorruptedError{Kind: codecerrors.CountExceedsLimit, Offset: start, Value: first, Limit: r.limit}
		}
		count = int(first)
	}

	blob.Records = make([]BlobRecord, 0, count)
	for i := range count {
		data, err := r.readNested()
		if err != nil {
			return nil, fmt.Errorf("read blob record %d of %d: %w", i, count, err)
		}
		blob.Records = append(blob.Records, BlobRecord{
			Index:         i,
			FormatVersion: blob.FormatVersion,
			Data:          data,
		})
	}
	return blob, nil
}

// Header returns the record's type hash and the integer after it: the
// layout version, or for legacy blobs the legacy record id.
func (rec BlobRecord) Header() (typeHash uint64, versionOrID int, err error) {
	r := NewReader(rec.Data)
	return rec.header(r)
}

func (rec BlobRecord) header(r *Reader) (uint64, int, error) {
	hash, err := r.ReadFixedUint64()
	if err != nil {
		return 0, 0, err
	}
	v, err := r.svarint(64)
	if err != nil {
		return 0, 0, err
	}
	return hash, int(v), nil
}

// DecodeRecord decodes rec as a T. It fails with a TypeHashMismatch
// CorruptedError if the record was written for another type. Legacy
// records are decoded with version 1.
func DecodeRecord[T any, PT VersionedDecodablePtr[T]](rec BlobRecord, key Key, opts ...Option) (T, error) {
	var zero T
	r := NewReader(rec.Data, opts...)
	hash, version, err := rec.header(r)
	if err != nil {
		return zero, err
	}
	if want := TypeHashOf[T](key); hash != want {
		return zero, &codecerrors.CorruptedError{Kind: codecerrors.TypeHashMismatch, Expected: want, Found: hash}
	}
	if rec.FormatVersion == LegacyFormatVersion {
		version = 1
	}
	return DecodeVersioned[T, PT](r, version)
}
