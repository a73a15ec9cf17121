// Package bufcodec implements a compact binary serialization layer: a
// bounds-checked Reader and an append-only Writer over byte buffers, with
// composable encoders for primitives, containers and user types.
//
// Integers wider than 16 bits use a tag-byte varint: values 0..99 are one
// byte, small negatives are one byte, and everything else is a width tag
// followed by 1, 2, 4 or 8 little-endian bytes. Collection counts and
// lengths are always varints and are checked against the Reader's safety
// limit before anything is allocated.
//
// # Basic Usage
//
// Encoding and decoding a type:
//
//	w := bufcodec.NewWriter()
//	bufcodec.Encode(w, &player)
//
//	r := bufcodec.NewReader(w.Bytes())
//	p, err := bufcodec.Decode[Player](r)
//	if errors.Is(err, codecerrors.ErrCorrupted) {
//	    log.Fatal(err)
//	}
//
// Multi-record blobs with per-record skip:
//
//	bw := bufcodec.NewBlobWriter(bufcodec.DefaultKey)
//	for _, p := range players {
//	    bufcodec.AppendRecord(bw, p, 2)
//	}
//	blob, err := bufcodec.ReadBlob(bufcodec.NewReader(bw.Bytes()))
//	players, skipped, err := bufcodec.LoadRecords[Player](ctx, blob, bufcodec.DefaultKey)
//
// Persisting a buffer:
//
//	err := w.WriteFile("save.bin", bufcodec.WithArchiveCompression(bufcodec.CompressionZstd))
//	r, err := bufcodec.ReadFile("save.bin")
//
// # Package Structure
//
// The implementation is organized as follows:
//
//   - Cursor and buffer: reader.go (Reader), writer.go (Writer, Placeholder)
//   - Configuration: options.go (Option, With* functions)
//   - Type contracts: codec.go (Encodable, Decodable, versioned variants, enums)
//   - Composites: containers.go (slices, sets, maps, optionals), vector.go
//   - Type identity: key.go (Key, type hashes), registry.go (collision detection)
//   - Obfuscation: cipher.go (keystream over internal/mix)
//   - Records: blob.go (blob framing), load.go (parallel record loading)
//   - Storage: header.go, compress.go, archive_writer.go, archive.go
//   - Wire primitives: internal/varint
//   - Platform: fallocate_*.go, fadvise_*.go, prefault_*.go (OS-specific optimizations)
package bufcodec
