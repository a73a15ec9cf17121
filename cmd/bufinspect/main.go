// bufinspect prints the header of a bufcodec archive, verifies its
// checksum and lists the records of the blob it carries.
//
// Usage:
//
//	bufinspect [flags] FILE
//
// Flags:
//
//	--passphrase   derive the archive key from a passphrase (default: DefaultKey)
//	--type         record type name to resolve type hashes against (repeatable)
//	--types-file   YAML file with a "types" list, merged with --type
//	-o, --output   text or yaml (default: text)
//	--verify       check the footer checksum before reading (default: true)
//	--blob         parse the payload as a multi-record blob (default: true)
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/tamirms/bufcodec"
)

type options struct {
	passphrase string
	types      []string
	typesFile  string
	output     string
	verify     bool
	blob       bool
}

// typesConfig is the --types-file document.
type typesConfig struct {
	Types []string `yaml:"types"`
}

type report struct {
	File        string      `yaml:"file"`
	Version     uint16      `yaml:"version"`
	Compression string      `yaml:"compression"`
	Encrypted   bool        `yaml:"encrypted"`
	Salt        string      `yaml:"salt,omitempty"`
	StoredBytes uint64      `yaml:"stored_bytes"`
	RawBytes    uint64      `yaml:"raw_bytes"`
	FileBytes   int64       `yaml:"file_bytes"`
	Checksum    string      `yaml:"checksum"`
	Blob        *blobReport `yaml:"blob,omitempty"`
}

type blobReport struct {
	FormatVersion int            `yaml:"format_version"`
	Records       []recordReport `yaml:"records"`
}

type recordReport struct {
	Index    int    `yaml:"index"`
	Bytes    int    `yaml:"bytes"`
	TypeHash string `yaml:"type_hash"`
	Version  int    `yaml:"version"`
	Type     string `yaml:"type,omitempty"`
	Error    string `yaml:"error,omitempty"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var opts options
	flagSet := pflag.NewFlagSet("bufinspect", pflag.ContinueOnError)
	flagSet.StringVar(&opts.passphrase, "passphrase", "", "derive the archive key from this passphrase (default: built-in key)")
	flagSet.StringArrayVar(&opts.types, "type", nil, "record type name to resolve hashes against (repeatable)")
	flagSet.StringVar(&opts.typesFile, "types-file", "", "YAML file with a \"types\" list of record type names")
	flagSet.StringVarP(&opts.output, "output", "o", "text", "output format: text or yaml")
	flagSet.BoolVar(&opts.verify, "verify", true, "verify the archive checksum")
	flagSet.BoolVar(&opts.blob, "blob", true, "parse the payload as a multi-record blob")
	flagSet.SetOutput(os.Stderr)

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("expected exactly one archive path, got %d", flagSet.NArg())
	}
	if opts.output != "text" && opts.output != "yaml" {
		return fmt.Errorf("unknown output format %q", opts.output)
	}

	rep, err := inspect(flagSet.Arg(0), opts)
	if err != nil {
		return err
	}
	if opts.output == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("encode report: %w", err)
		}
		return enc.Close()
	}
	return printText(out, rep)
}

func inspect(path string, opts options) (*report, error) {
	key := bufcodec.DefaultKey
	if opts.passphrase != "" {
		key = bufcodec.KeyFromPassphrase(opts.passphrase)
	}

	registry, err := buildRegistry(key, opts)
	if err != nil {
		return nil, err
	}

	archive, err := bufcodec.OpenArchive(path, bufcodec.WithArchiveKey(key))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = archive.Close() }()

	info := archive.Header()
	rep := &report{
		File:        path,
		Version:     info.Version,
		Compression: info.Compression.String(),
		Encrypted:   info.Encrypted,
		StoredBytes: info.StoredLen,
		RawBytes:    info.RawLen,
		FileBytes:   info.FileSize,
		Checksum:    "skipped",
	}
	if info.Encrypted {
		rep.Salt = fmt.Sprintf("%016x", info.Salt)
	}

	if opts.verify {
		if err := archive.Verify(); err != nil {
			return nil, fmt.Errorf("verify %s: %w", path, err)
		}
		rep.Checksum = "ok"
	}
	if !opts.blob {
		return rep, nil
	}

	r, err := archive.Reader()
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	blob, err := bufcodec.ReadBlob(r)
	if err != nil {
		return nil, fmt.Errorf("parse blob: %w", err)
	}
	rep.Blob = describeBlob(blob, registry)
	return rep, nil
}

func buildRegistry(key bufcodec.Key, opts options) (*bufcodec.Registry, error) {
	names := opts.types
	if opts.typesFile != "" {
		data, err := os.ReadFile(opts.typesFile)
		if err != nil {
			return nil, fmt.Errorf("read types file: %w", err)
		}
		var cfg typesConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse types file %s: %w", opts.typesFile, err)
		}
		names = append(names, cfg.Types...)
	}
	registry := bufcodec.NewRegistry(key)
	for _, name := range names {
		registry.Register(name)
	}
	return registry, nil
}

func describeBlob(blob *bufcodec.Blob, registry *bufcodec.Registry) *blobReport {
	br := &blobReport{
		FormatVersion: blob.FormatVersion,
		Records:       make([]recordReport, 0, len(blob.Records)),
	}
	for _, rec := range blob.Records {
		rr := recordReport{Index: rec.Index, Bytes: len(rec.Data)}
		hash, version, err := rec.Header()
		if err != nil {
			rr.Error = err.Error()
		} else {
			rr.TypeHash = fmt.Sprintf("%016x", hash)
			rr.Version = version
			if name, ok := registry.Lookup(hash); ok {
				rr.Type = name
			}
		}
		br.Records = append(br.Records, rr)
	}
	return br
}

func printText(out io.Writer, rep *report) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "File:\t%s\n", rep.File)
	fmt.Fprintf(tw, "Version:\t%d\n", rep.Version)
	fmt.Fprintf(tw, "Compression:\t%s\n", rep.Compression)
	fmt.Fprintf(tw, "Encrypted:\t%t\n", rep.Encrypted)
	if rep.Salt != "" {
		fmt.Fprintf(tw, "Salt:\t%s\n", rep.Salt)
	}
	fmt.Fprintf(tw, "Stored bytes:\t%d\n", rep.StoredBytes)
	fmt.Fprintf(tw, "Raw bytes:\t%d\n", rep.RawBytes)
	fmt.Fprintf(tw, "File bytes:\t%d\n", rep.FileBytes)
	fmt.Fprintf(tw, "Checksum:\t%s\n", rep.Checksum)
	if err := tw.Flush(); err != nil {
		return err
	}
	if rep.Blob == nil {
		return nil
	}

	fmt.Fprintf(out, "\nBlob format %d, %d records\n", rep.Blob.FormatVersion, len(rep.Blob.Records))
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tBYTES\tTYPE HASH\tVERSION\tTYPE")
	for _, rr := range rep.Blob.Records {
		if rr.Error != "" {
			fmt.Fprintf(tw, "%d\t%d\t-\t-\t%s\n", rr.Index, rr.Bytes, rr.Error)
			continue
		}
		typeName := rr.Type
		if typeName == "" {
			typeName = "?"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%s\n", rr.Index, rr.Bytes, rr.TypeHash, rr.Version, typeName)
	}
	return tw.Flush()
}
