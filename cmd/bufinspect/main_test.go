package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/tamirms/bufcodec"
)

type widget struct {
	Size int32
}

func (w *widget) TypeName() string { return "shop.Widget" }

func (w widget) EncodeVersioned(wr *bufcodec.Writer, version int) { wr.WriteInt32(w.Size) }

func writeWidgetArchive(t *testing.T, passphrase string) string {
	t.Helper()
	key := bufcodec.DefaultKey
	opts := []bufcodec.ArchiveOption{bufcodec.WithArchiveCompression(bufcodec.CompressionZstd)}
	if passphrase != "" {
		key = bufcodec.KeyFromPassphrase(passphrase)
		opts = append(opts, bufcodec.WithArchiveKey(key))
	}
	bw := bufcodec.NewBlobWriter(key)
	for i := range 3 {
		bufcodec.AppendRecord(bw, widget{Size: int32(i)}, 4)
	}
	path := filepath.Join(t.TempDir(), "widgets.bin")
	if err := bufcodec.WriteArchive(path, bw.Bytes(), opts...); err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}
	return path
}

func TestInspectText(t *testing.T) {
	path := writeWidgetArchive(t, "")
	var out bytes.Buffer
	if err := run([]string{"--type", "shop.Widget", path}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Checksum:", "ok", "3 records", "shop.Widget"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestInspectYAML(t *testing.T) {
	path := writeWidgetArchive(t, "hunter2")

	typesFile := filepath.Join(t.TempDir(), "types.yaml")
	if err := os.WriteFile(typesFile, []byte("types:\n  - shop.Widget\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := run([]string{"-o", "yaml", "--passphrase", "hunter2", "--types-file", typesFile, path}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	var rep report
	if err := yaml.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, out.String())
	}
	if !rep.Encrypted || rep.Compression != "zstd" || rep.Checksum != "ok" {
		t.Errorf("report = %+v", rep)
	}
	if rep.Blob == nil || len(rep.Blob.Records) != 3 {
		t.Fatalf("blob = %+v", rep.Blob)
	}
	for _, rec := range rep.Blob.Records {
		if rec.Type != "shop.Widget" || rec.Version != 4 {
			t.Errorf("record = %+v", rec)
		}
	}
}

func TestInspectHeaderOnly(t *testing.T) {
	path := writeWidgetArchive(t, "")
	var out bytes.Buffer
	if err := run([]string{"-o", "yaml", "--blob=false", path}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	var rep report
	if err := yaml.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Blob != nil {
		t.Error("--blob=false still parsed the blob")
	}
}

func TestInspectUsageErrors(t *testing.T) {
	var out bytes.Buffer
	if err := run(nil, &out); err == nil {
		t.Error("no path: expected an error")
	}
	if err := run([]string{"-o", "json", "x"}, &out); err == nil {
		t.Error("unknown output format: expected an error")
	}
	if err := run([]string{filepath.Join(t.TempDir(), "missing.bin")}, &out); err == nil {
		t.Error("missing file: expected an error")
	}
}
