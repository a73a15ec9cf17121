package bufcodec

import (
	"reflect"

	"github.com/zeebo/xxh3"

	"github.com/tamirms/bufcodec/internal/mix"
)

// Key is the 256-bit key (four words a, b, c, d) behind type hashes and the
// obfuscation cipher. It is passed explicitly; there is no process-wide key.
type Key [4]uint64

// DefaultKey is a fixed key for callers that only need corruption
// detection, not per-installation obfuscation.
var DefaultKey = Key{
	0x243f6a8885a308d3,
	0x13198a2e03707344,
	0xa4093822299f31d0,
	0x082efa98ec4e6c89,
}

// typeHashSeed separates type hashes from other uses of the same key.
const typeHashSeed = 0x7479706568617368 // "typehash"

// passphraseSeeds select two independent 128-bit xxh3 streams.
const (
	passphraseSeedLo = 0x9e3779b97f4a7c15
	passphraseSeedHi = 0xc2b2ae3d27d4eb4f
)

// KeyFromPassphrase derives a Key from a passphrase with two seeded
// xxHash3-128 passes. The same passphrase always yields the same key.
func KeyFromPassphrase(passphrase string) Key {
	lo := xxh3.Hash128Seed([]byte(passphrase), passphraseSeedLo)
	hi := xxh3.Hash128Seed([]byte(passphrase), passphraseSeedHi)
	return Key{lo.Lo, lo.Hi, hi.Lo, hi.Hi}
}

// TypeHash returns the 64-bit fingerprint of a qualified type name.
func (k Key) TypeHash(name string) uint64 {
	return mix.Hash([]byte(name), typeHashSeed, mix.Key(k))
}

// TypeNamer lets a type pin the name its hash is computed from, so the Go
// type can be renamed or moved without invalidating stored records.
type TypeNamer interface {
	TypeName() string
}

// TypeNameOf returns the qualified name of T: its TypeName method if it has
// one, otherwise "import/path.Name". Pointer types resolve to their element.
func TypeNameOf[T any]() string {
	var v T
	if n, ok := any(v).(TypeNamer); ok {
		return n.TypeName()
	}
	if n, ok := any(&v).(TypeNamer); ok {
		return n.TypeName()
	}
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" || t.Name() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// TypeHashOf returns k.TypeHash(TypeNameOf[T]()).
func TypeHashOf[T any](k Key) uint64 {
	return k.TypeHash(TypeNameOf[T]())
}
