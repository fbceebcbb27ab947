//go:build !unix && !windows

package fsutil

import (
	"io"
	"os"
)

func mmap(f *os.File, size int) ([]byte, error) {
	data := make([]byte, size)
	_, err := io.ReadFull(f, data)
	return data, err
}

func munmap(b []byte) error {
	return nil
}

func syncDir(dir string) error {
	return nil
}
