package bufcodec

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand/v2"
	"slices"
	"testing"
)

// Named seeds for deterministic reproduction.
const (
	testSeed1 = 0x9E3779B97F4A7C15
	testSeed2 = 0xC2B2AE3D27D4EB4F
)

// newTestRNG returns a PCG generator seeded from the test name, so every
// test sees the same sequence on every run.
func newTestRNG(t testing.TB) *rand.Rand {
	t.Helper()
	h := fnv.New128a()
	h.Write([]byte(t.Name()))
	sum := h.Sum(nil)
	s1 := binary.LittleEndian.Uint64(sum[:8])
	s2 := binary.LittleEndian.Uint64(sum[8:])
	return rand.New(rand.NewPCG(testSeed1^s1, testSeed2^s2))
}

// fillFromRNG fills buf with pseudo-random bytes from rng.
func fillFromRNG(rng *rand.Rand, buf []byte) {
	for i := range buf {
		buf[i] = byte(rng.Uint32())
	}
}

// class is a test enum with three valid discriminants.
type class uint8

const (
	classWarrior class = iota
	classMage
	classRogue
)

func (c class) Valid() bool { return c <= classRogue }

// point is a plain Encodable/Decodable pair.
type point struct {
	X, Y int32
}

func (p point) EncodeTo(w *Writer) {
	w.WriteInt32(p.X)
	w.WriteInt32(p.Y)
}

func (p *point) DecodeFrom(r *Reader) error {
	var err error
	if p.X, err = r.ReadInt32(); err != nil {
		return err
	}
	p.Y, err = r.ReadInt32()
	return err
}

func writePoint(w *Writer, p point) { Encode(w, p) }

func readPoint(r *Reader) (point, error) { return Decode[point](r) }

// player is a versioned record. Version 2 added Guild.
type player struct {
	VersionStamp

	Name  string
	Level int32
	Class class
	Items []string
	Pos   point
	Guild *string
}

func (p *player) CurrentVersion() int { return 2 }

func (p *player) TypeName() string { return "bufcodec.test.player" }

func (p player) EncodeVersioned(w *Writer, version int) {
	w.WriteString(p.Name)
	w.WriteInt32(p.Level)
	WriteEnum(w, p.Class)
	WriteSlice(w, p.Items, (*Writer).WriteString)
	Encode(w, p.Pos)
	if version >= 2 {
		WriteOptional(w, p.Guild, (*Writer).WriteString)
	}
}

func (p *player) DecodeVersioned(r *Reader, version int) error {
	var err error
	if p.Name, err = r.ReadString(); err != nil {
		return err
	}
	if p.Level, err = r.ReadInt32(); err != nil {
		return err
	}
	if p.Class, err = ReadEnum[class](r); err != nil {
		return err
	}
	if p.Items, err = ReadSlice(r, (*Reader).ReadString); err != nil {
		return err
	}
	if p.Pos, err = Decode[point](r); err != nil {
		return err
	}
	if version >= 2 {
		if p.Guild, err = ReadOptional(r, (*Reader).ReadString); err != nil {
			return err
		}
	}
	return nil
}

// monster is a second record type, used to provoke type hash mismatches.
type monster struct {
	HP int64
}

func (m monster) EncodeVersioned(w *Writer, version int) { w.WriteInt64(m.HP) }

func (m *monster) DecodeVersioned(r *Reader, version int) error {
	var err error
	m.HP, err = r.ReadInt64()
	return err
}

func strPtr(s string) *string { return &s }

// samePlayer compares the encoded fields of two players.
func samePlayer(a, b player) bool {
	if a.Name != b.Name || a.Level != b.Level || a.Class != b.Class || a.Pos != b.Pos {
		return false
	}
	if !slices.Equal(a.Items, b.Items) {
		return false
	}
	if (a.Guild == nil) != (b.Guild == nil) {
		return false
	}
	return a.Guild == nil || *a.Guild == *b.Guild
}

func randomPlayer(rng *rand.Rand) player {
	p := player{
		Name:  randomString(rng, rng.IntN(12)),
		Level: rng.Int32N(100),
		Class: class(rng.IntN(3)),
		Pos:   point{X: rng.Int32() - 1<<30, Y: -rng.Int32N(1000)},
	}
	for range rng.IntN(4) {
		p.Items = append(p.Items, randomString(rng, 1+rng.IntN(6)))
	}
	if rng.IntN(2) == 0 {
		p.Guild = strPtr(randomString(rng, 5))
	}
	return p
}

func randomString(rng *rand.Rand, n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzé"
	runes := []rune(alphabet)
	out := make([]rune, n)
	for i := range out {
		out[i] = runes[rng.IntN(len(runes))]
	}
	return string(out)
}
