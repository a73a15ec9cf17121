// Package mix provides the keyed multiply-xor mixing used for type hashes and
// the obfuscation keystream. None of it is cryptographically strong.
package mix

import (
	"encoding/binary"
	"math/bits"
)

// WyHash v4 primes.
const (
	p0 = 0xa0761d6478bd642f
	p1 = 0xe7037ed1a0b428db
)

// Key is the 256-bit mixing key as four words (a, b, c, d).
type Key [4]uint64

// Wymix performs a 128-bit multiply and XOR fold.
// This is the core mixing primitive from WyHash v4.
func Wymix(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	return hi ^ lo
}

// Hash mixes data under k and seed into a 64-bit value.
func Hash(data []byte, seed uint64, k Key) uint64 {
	n := uint64(len(data))
	h := seed ^ k[0]
	for len(data) >= 8 {
		w := binary.LittleEndian.Uint64(data)
		h = Wymix(h^w^k[1], p0^k[2])
		data = data[8:]
	}
	if len(data) > 0 {
		var tail uint64
		for i, b := range data {
			tail |= uint64(b) << (i * 8)
		}
		h = Wymix(h^tail^k[1], p1^k[2])
	}
	return Wymix(h^n^k[3], p0)
}

// Keystream is a counter-mode word generator. Word i depends only on the
// key, the salt and i, so any range can be produced independently.
type Keystream struct {
	base uint64
	mul  uint64
}

// NewKeystream derives a keystream from k and salt.
func NewKeystream(k Key, salt uint64) Keystream {
	return Keystream{
		base: Wymix(salt^k[0], k[1]^p0),
		mul:  k[3] ^ p1,
	}
}

// Word returns keystream word i.
func (s Keystream) Word(i uint64) uint64 {
	return Wymix(s.base^k2(i), s.mul)
}

// k2 spreads the counter so consecutive words do not share high bits.
func k2(i uint64) uint64 {
	return (i + 1) * p0
}

// Add adds the keystream to data byte-wise modulo 256.
func (s Keystream) Add(data []byte) {
	for i := 0; i < len(data); i += 8 {
		w := s.Word(uint64(i / 8))
		end := min(i+8, len(data))
		for j := i; j < end; j++ {
			data[j] += byte(w >> ((j - i) * 8))
		}
	}
}

// Sub subtracts the keystream from data byte-wise modulo 256. It undoes Add.
func (s Keystream) Sub(data []byte) {
	for i := 0; i < len(data); i += 8 {
		w := s.Word(uint64(i / 8))
		end := min(i+8, len(data))
		for j := i; j < end; j++ {
			data[j] -= byte(w >> ((j - i) * 8))
		}
	}
}
