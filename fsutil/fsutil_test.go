package fsutil

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestMapAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	want := bytes.Repeat([]byte("flatdb"), 1000)
	ensure(os.WriteFile(path, want, 0o644))

	m, err := Map(path)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if !bytes.Equal(m.Data, want) {
		t.Fatalf("Map data differs: len %d, wanted %d", len(m.Data), len(want))
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if m.Data != nil {
		t.Fatalf("Data after Close = %d bytes, wanted nil", len(m.Data))
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestMap_EmptyAndMissing(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	ensure(os.WriteFile(empty, nil, 0o644))

	m, err := Map(empty)
	if err != nil || len(m.Data) != 0 {
		t.Fatalf("Map(empty) = %v, %v, wanted no data", m, err)
	}
	ensure(m.Close())

	_, err = Map(filepath.Join(dir, "missing"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Map(missing) = %v, wanted fs.ErrNotExist", err)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")

	if err := WriteFileAtomic(path, []byte("one"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	m := must(Map(path))
	if string(m.Data) != "two" {
		t.Fatalf("Map = %q, wanted two", m.Data)
	}
	ensure(m.Close())

	entries := must(os.ReadDir(dir))
	if len(entries) != 1 {
		t.Fatalf("dir has %d entries, wanted 1 (no temp files left)", len(entries))
	}
}

func TestWriteFileAtomic_MissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "x.json")
	if err := WriteFileAtomic(path, []byte("x"), 0o644); err == nil {
		t.Fatalf("WriteFileAtomic into missing dir succeeded, wanted error")
	}
}

func TestIsTemp(t *testing.T) {
	tests := map[string]bool{
		".users.json.12345.tmp": true,
		"users.json":            false,
		"users.tmp":             false,
		"/a/b/.x.fdb.1.tmp":     true,
	}
	for name, want := range tests {
		if got := IsTemp(name); got != want {
			t.Errorf("IsTemp(%q) = %v, wanted %v", name, got, want)
		}
	}
}

func TestFdatasync(t *testing.T) {
	f := must(os.CreateTemp(t.TempDir(), "sync_*"))
	defer f.Close()
	must(f.Write([]byte("x")))
	if err := Fdatasync(f); err != nil {
		t.Fatalf("Fdatasync: %v", err)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}
