// Package fsutil reads and rewrites whole data files: reads through a
// read-only memory mapping, writes through a synced temporary file that is
// renamed over the target.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Mapping is a read-only view of a file's contents.
type Mapping struct {
	Data   []byte
	mapped bool
}

// Close releases the mapping. Data must not be used afterwards.
func (m *Mapping) Close() error {
	if m == nil || !m.mapped {
		return nil
	}
	m.mapped = false
	data := m.Data
	m.Data = nil
	return munmap(data)
}

// Map maps the file at path for reading. Empty files and files too large to
// map are read into memory instead. A missing file returns an error matching
// fs.ErrNotExist.
func Map(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size == 0 {
		return &Mapping{Data: []byte{}}, nil
	}
	if size > MaxSize || int64(int(size)) != size {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return &Mapping{Data: data}, nil
	}

	data, err := mmap(f, int(size))
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &Mapping{Data: data, mapped: true}, nil
}

// WriteFileAtomic replaces the file at path with data. The data is written
// to a temporary file in the same directory, synced, and renamed over path,
// so readers see either the old or the new contents. The directory is synced
// afterwards where the platform allows it.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	ok := false
	defer func() {
		if !ok {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Chmod(perm); err != nil {
		return err
	}
	if err := Fdatasync(f); err != nil {
		return fmt.Errorf("fdatasync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	ok = true
	return syncDir(dir)
}

// IsTemp reports whether name is a temporary file left by WriteFileAtomic.
func IsTemp(name string) bool {
	base := filepath.Base(name)
	return len(base) > 5 && base[0] == '.' && filepath.Ext(base) == ".tmp"
}
