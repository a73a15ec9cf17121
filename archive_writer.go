package bufcodec

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/edsrzf/mmap-go"
)

// ArchiveOption configures WriteArchive, OpenArchive and ReadFile.
type ArchiveOption func(*archiveConfig)

// DefaultMaxArchivePayload is the largest decompressed payload OpenArchive
// accepts from a compressed archive unless overridden with
// WithArchiveMaxPayload.
const DefaultMaxArchivePayload = 1 << 30

type archiveConfig struct {
	key         *Key
	salt        uint64
	saltSet     bool
	compression CompressionTag
	maxPayload  uint64
	readerOpts  []Option
}

func newArchiveConfig(opts []ArchiveOption) *archiveConfig {
	cfg := &archiveConfig{
		compression: CompressionNone,
		maxPayload:  DefaultMaxArchivePayload,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithArchiveKey encrypts the archive body on write and decrypts it on read.
func WithArchiveKey(key Key) ArchiveOption {
	return func(c *archiveConfig) {
		c.key = &key
	}
}

// WithArchiveSalt fixes the keystream salt. Without it a random salt is
// drawn for every encrypted archive.
func WithArchiveSalt(salt uint64) ArchiveOption {
	return func(c *archiveConfig) {
		c.salt = salt
		c.saltSet = true
	}
}

// WithArchiveCompression sets the body compression. Bodies that do not
// shrink are stored uncompressed regardless.
func WithArchiveCompression(tag CompressionTag) ArchiveOption {
	return func(c *archiveConfig) {
		c.compression = tag
	}
}

// WithArchiveMaxPayload bounds the raw length a compressed archive may
// declare. Payload allocates that many bytes before decompressing, so the
// bound keeps a damaged header from exhausting memory. zstd bodies are
// also capped at 16 GiB by the decoder.
func WithArchiveMaxPayload(n uint64) ArchiveOption {
	return func(c *archiveConfig) {
		if n > 0 {
			c.maxPayload = n
		}
	}
}

// WithArchiveReaderOptions sets the options of the Reader returned by
// ReadFile.
func WithArchiveReaderOptions(opts ...Option) ArchiveOption {
	return func(c *archiveConfig) {
		c.readerOpts = append(c.readerOpts, opts...)
	}
}

// archiveWriter lays out one archive file through a writable mapping.
// File layout: [Header 32B][Body][Footer 8B]
type archiveWriter struct {
	file *os.File
	mmap mmap.MMap
	data []byte
}

// WriteArchive writes payload to path as an archive file. The file is
// built under a temporary name in the same directory and renamed into
// place once it has been flushed, so readers never observe a partial
// archive.
func WriteArchive(path string, payload []byte, opts ...ArchiveOption) error {
	cfg := newArchiveConfig(opts)
	if !cfg.compression.valid() {
		return fmt.Errorf("write archive: %w", errUnknownTag)
	}

	tag := cfg.compression
	body, err := compress(payload, tag)
	if errors.Is(err, errIncompressible) {
		tag, body = CompressionNone, payload
	} else if err != nil {
		return fmt.Errorf("write archive: %w", err)
	}

	hdr := archiveHeader{
		Magic:       archiveMagic,
		Version:     archiveVersion,
		Compression: tag,
		StoredLen:   uint64(len(body)),
		RawLen:      uint64(len(payload)),
	}
	if cfg.key != nil {
		hdr.Flags |= flagEncrypted
		hdr.Salt = cfg.salt
		if !cfg.saltSet {
			if hdr.Salt, err = randomSalt(); err != nil {
				return fmt.Errorf("write archive: %w", err)
			}
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	tmpPath := tmp.Name()

	aw, err := newArchiveWriter(tmp, int64(hdr.fileSize()))
	if err != nil {
		return errors.Join(err, os.Remove(tmpPath))
	}
	if err := aw.write(&hdr, body, cfg.key); err != nil {
		return errors.Join(err, os.Remove(tmpPath))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		primaryErr := fmt.Errorf("rename archive into place: %w", err)
		return errors.Join(primaryErr, os.Remove(tmpPath))
	}
	return nil
}

// newArchiveWriter sizes file and maps it for writing. It takes ownership
// of file.
func newArchiveWriter(file *os.File, size int64) (*archiveWriter, error) {
	// Pre-allocate disk blocks so a full disk fails here instead of
	// raising SIGBUS on a write through the mapping.
	if err := fallocateFile(file, size); err != nil {
		primaryErr := fmt.Errorf("failed to allocate disk space: %w", err)
		return nil, errors.Join(primaryErr, file.Close())
	}

	mm, err := mmap.MapRegion(file, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		primaryErr := fmt.Errorf("failed to mmap file: %w", err)
		return nil, errors.Join(primaryErr, file.Close())
	}

	aw := &archiveWriter{file: file, mmap: mm, data: []byte(mm)}
	prefaultRegion(aw.data)
	return aw, nil
}

// write fills the mapping, flushes it and closes the file. The body is
// copied before it is encrypted, so a caller's payload is never modified.
// On error, delegates to close() for cleanup.
func (aw *archiveWriter) write(hdr *archiveHeader, body []byte, key *Key) error {
	bodyEnd := archiveHeaderSize + len(body)
	hdr.encodeTo(aw.data[:archiveHeaderSize])
	copy(aw.data[archiveHeaderSize:bodyEnd], body)
	if key != nil {
		Encrypt(aw.data[archiveHeaderSize:bodyEnd], *key, hdr.Salt)
	}
	encodeFooter(aw.data[bodyEnd:], xxhash.Sum64(aw.data[:bodyEnd]))

	// Flush dirty pages to file (ensures writes visible before unmap)
	if err := aw.mmap.Flush(); err != nil {
		primaryErr := fmt.Errorf("mmap flush failed: %w", err)
		return errors.Join(primaryErr, aw.close())
	}

	// Nil mmap regardless of outcome to prevent close() from retrying.
	unmapErr := aw.mmap.Unmap()
	aw.mmap = nil
	if unmapErr != nil {
		primaryErr := fmt.Errorf("mmap unmap failed: %w", unmapErr)
		return errors.Join(primaryErr, aw.close())
	}

	if err := aw.file.Sync(); err != nil {
		primaryErr := fmt.Errorf("sync archive file: %w", err)
		return errors.Join(primaryErr, aw.close())
	}

	closeErr := aw.file.Close()
	aw.file = nil
	return closeErr
}

// close releases the mapping and file without finishing the archive.
// Idempotent: safe to call multiple times.
func (aw *archiveWriter) close() error {
	var unmapErr error
	if aw.mmap != nil {
		unmapErr = aw.mmap.Unmap()
		aw.mmap = nil
	}
	var closeErr error
	if aw.file != nil {
		closeErr = aw.file.Close()
		aw.file = nil
	}
	return errors.Join(unmapErr, closeErr)
}

func randomSalt() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("draw archive salt: %w", err)
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
