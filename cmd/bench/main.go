// Bench measures bufcodec encode, archive and decode throughput on
// synthetic records.
//
// Usage:
//
//	go run ./cmd/bench --records 1000000 --compression zstd --workers 8
//
// Flags:
//
//	--records      Number of records to encode (default: 1,000,000)
//	--compression  Archive compression: none, lz4 or zstd (default: lz4)
//	--workers      Parallel record decoders (default: GOMAXPROCS)
//	--passphrase   Encrypt the archive with a key derived from this passphrase
//	--compact      Use varint integers (default: true)
package main

import (
	"context"
	"fmt"
	mrand "math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/spaolacci/murmur3"
	"github.com/spf13/pflag"

	"github.com/tamirms/bufcodec"
)

// getMaxRSS returns the maximum resident set size in bytes.
// Uses getrusage(RUSAGE_SELF) which tracks peak RSS since process start.
func getMaxRSS() uint64 {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		return 0
	}
	// On macOS, MaxRss is in bytes. On Linux, it's in kilobytes.
	maxRSS := uint64(rusage.Maxrss)
	if runtime.GOOS == "linux" {
		maxRSS *= 1024
	}
	return maxRSS
}

// digestSeed seeds the murmur3 digest every record carries over its own
// contents, so a decode that silently misreads a field is caught.
const digestSeed = uint32(0x1234)

// sample is the synthetic record. Version 2 added Stats.
type sample struct {
	ID       uint64
	Name     string
	Score    float64
	Tags     []string
	Stats    map[string]int32
	Position bufcodec.Vector3[float32]
	Digest   uint64
}

func (s *sample) TypeName() string { return "bufcodec.bench.sample" }

func (s sample) digest() uint64 {
	h := murmur3.New64WithSeed(digestSeed)
	_, _ = h.Write([]byte(s.Name))
	for _, tag := range s.Tags {
		_, _ = h.Write([]byte(tag))
	}
	return h.Sum64() ^ s.ID
}

func (s sample) EncodeVersioned(w *bufcodec.Writer, version int) {
	w.WriteUint64(s.ID)
	w.WriteString(s.Name)
	w.WriteFloat64(s.Score)
	bufcodec.WriteSlice(w, s.Tags, (*bufcodec.Writer).WriteString)
	if version >= 2 {
		bufcodec.WriteSortedMap(w, s.Stats, (*bufcodec.Writer).WriteString, (*bufcodec.Writer).WriteInt32)
	}
	bufcodec.WriteVector3(w, s.Position, (*bufcodec.Writer).WriteFloat32)
	w.WriteFixedUint64(s.Digest)
}

func (s *sample) DecodeVersioned(r *bufcodec.Reader, version int) error {
	var err error
	if s.ID, err = r.ReadUint64(); err != nil {
		return err
	}
	if s.Name, err = r.ReadString(); err != nil {
		return err
	}
	if s.Score, err = r.ReadFloat64(); err != nil {
		return err
	}
	if s.Tags, err = bufcodec.ReadSlice(r, (*bufcodec.Reader).ReadString); err != nil {
		return err
	}
	if version >= 2 {
		if s.Stats, err = bufcodec.ReadMap(r, (*bufcodec.Reader).ReadString, (*bufcodec.Reader).ReadInt32); err != nil {
			return err
		}
	}
	if s.Position, err = bufcodec.ReadVector3(r, (*bufcodec.Reader).ReadFloat32); err != nil {
		return err
	}
	s.Digest, err = r.ReadFixedUint64()
	return err
}

var tagPool = []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta"}

func generate(n int) []sample {
	out := make([]sample, n)
	for i := range out {
		s := sample{
			ID:    mrand.Uint64(),
			Name:  fmt.Sprintf("record-%08d", i),
			Score: mrand.Float64() * 1000,
			Stats: map[string]int32{
				"hp":    mrand.Int32N(500),
				"level": mrand.Int32N(99),
			},
			Position: bufcodec.Vector3[float32]{X: mrand.Float32(), Y: mrand.Float32(), Z: mrand.Float32()},
		}
		for range mrand.IntN(4) {
			s.Tags = append(s.Tags, tagPool[mrand.IntN(len(tagPool))])
		}
		s.Digest = s.digest()
		out[i] = s
	}
	return out
}

func main() {
	recordsFlag := pflag.Int("records", 1_000_000, "number of records")
	compressionFlag := pflag.String("compression", "lz4", "archive compression: none, lz4 or zstd")
	workersFlag := pflag.Int("workers", runtime.GOMAXPROCS(0), "parallel record decoders")
	passphraseFlag := pflag.String("passphrase", "", "encrypt the archive with a key derived from this passphrase")
	compactFlag := pflag.Bool("compact", true, "use varint integers")
	cpuprofile := pflag.String("cpuprofile", "", "write cpu profile to file")
	pflag.Parse()

	if err := run(*recordsFlag, *compressionFlag, *workersFlag, *passphraseFlag, *compactFlag, *cpuprofile); err != nil {
		fmt.Fprintf(os.Stderr, "bench: %v\n", err)
		os.Exit(1)
	}
}

func run(numRecords int, compression string, workers int, passphrase string, compact bool, cpuprofile string) error {
	tag, err := bufcodec.ParseCompressionTag(compression)
	if err != nil {
		return err
	}
	key := bufcodec.DefaultKey
	archiveOpts := []bufcodec.ArchiveOption{bufcodec.WithArchiveCompression(tag)}
	if passphrase != "" {
		key = bufcodec.KeyFromPassphrase(passphrase)
		archiveOpts = append(archiveOpts, bufcodec.WithArchiveKey(key))
	}
	codecOpts := []bufcodec.Option{bufcodec.WithCompactIntegers(compact)}

	fmt.Println("Generating records...")
	records := generate(numRecords)

	tmpDir, err := os.MkdirTemp("", "bench-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	archivePath := filepath.Join(tmpDir, "records.bin")

	if cpuprofile != "" {
		f, err := os.Create(cpuprofile)
		if err != nil {
			return fmt.Errorf("create CPU profile: %w", err)
		}
		defer func() { _ = f.Close() }()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("start CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}
	baselineRSS := getMaxRSS()

	fmt.Println("Encoding...")
	encodeStart := time.Now()
	bw := bufcodec.NewBlobWriter(key, codecOpts...)
	for _, s := range records {
		bufcodec.AppendRecord(bw, s, 2)
	}
	payload := bw.Bytes()
	encodeDuration := time.Since(encodeStart)

	fmt.Println("Writing archive...")
	writeStart := time.Now()
	if err := bufcodec.WriteArchive(archivePath, payload, archiveOpts...); err != nil {
		return fmt.Errorf("write archive: %w", err)
	}
	writeDuration := time.Since(writeStart)
	info, err := os.Stat(archivePath)
	if err != nil {
		return err
	}

	fmt.Println("Reading archive...")
	readStart := time.Now()
	r, err := bufcodec.ReadFile(archivePath, archiveOpts...)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	readDuration := time.Since(readStart)

	fmt.Println("Decoding...")
	decodeStart := time.Now()
	blob, err := bufcodec.ReadBlob(r)
	if err != nil {
		return fmt.Errorf("read blob: %w", err)
	}
	loaded, skipped, err := bufcodec.LoadRecords[sample](context.Background(), blob, key,
		bufcodec.WithWorkers(workers),
		bufcodec.WithReaderOptions(codecOpts...),
	)
	if err != nil {
		return fmt.Errorf("load records: %w", err)
	}
	decodeDuration := time.Since(decodeStart)
	peakRSS := getMaxRSS() - baselineRSS

	if len(skipped) > 0 {
		return fmt.Errorf("%d records skipped, first: %w", len(skipped), skipped[0])
	}
	for i, s := range loaded {
		if s.digest() != s.Digest {
			return fmt.Errorf("record %d: digest mismatch after decode", i)
		}
	}

	perRecord := float64(len(payload)) / float64(max(numRecords, 1))
	ratio := float64(len(payload)) / float64(info.Size())
	mps := func(d time.Duration) float64 { return float64(numRecords) / d.Seconds() / 1_000_000 }

	fmt.Printf("\n")
	fmt.Printf("╔═════════════════════╦════════════════╗\n")
	fmt.Printf("║ Compression: %-7s║ Workers: %-6d║\n", tag, workers)
	fmt.Printf("╠═════════════════════╬════════════════╣\n")
	fmt.Printf("║ Payload size        ║ %8.1f MB    ║\n", float64(len(payload))/1_000_000)
	fmt.Printf("║ Bytes per record    ║ %8.1f B     ║\n", perRecord)
	fmt.Printf("║ Archive size        ║ %8.1f MB    ║\n", float64(info.Size())/1_000_000)
	fmt.Printf("║ Compression ratio   ║ %8.2fx     ║\n", ratio)
	fmt.Printf("║ Encode              ║ %6.2f M/sec   ║\n", mps(encodeDuration))
	fmt.Printf("║ Archive write       ║ %6.2f sec     ║\n", writeDuration.Seconds())
	fmt.Printf("║ Archive read        ║ %6.2f sec     ║\n", readDuration.Seconds())
	fmt.Printf("║ Decode              ║ %6.2f M/sec   ║\n", mps(decodeDuration))
	fmt.Printf("║ Peak RSS growth     ║ %6.1f MB      ║\n", float64(peakRSS)/1_000_000)
	fmt.Printf("╚═════════════════════╩════════════════╝\n")
	return nil
}
