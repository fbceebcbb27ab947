package flatdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/andreyvit/flatdb/fsutil"
	"github.com/klauspost/compress/zstd"
)

// Format is the on-disk representation used by FileAdapter.
type Format int

const (
	// FormatJSON stores a JSON array of records in name.json.
	FormatJSON Format = iota
	// FormatJSONZstd stores the same JSON array compressed with zstd in
	// name.json.zst.
	FormatJSONZstd
	// FormatBinary stores the binary record stream in name.fdb, see Codec.
	FormatBinary
)

var formatExts = [...]string{".json", ".json.zst", ".fdb"}

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatJSONZstd:
		return "zst"
	case FormatBinary:
		return "binary"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Ext returns the file extension, including the leading dot.
func (f Format) Ext() string {
	return formatExts[f]
}

// ParseFormat accepts the names returned by Format.String and the file
// extensions without the leading dot.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "zst", "zstd", "json.zst":
		return FormatJSONZstd, nil
	case "binary", "bin", "fdb":
		return FormatBinary, nil
	default:
		return 0, fmt.Errorf("unknown format %q", s)
	}
}

// SplitFileName maps a data file name to its collection name and format.
// Temporary files and unknown extensions return ok=false.
func SplitFileName(fileName string) (name string, f Format, ok bool) {
	base := filepath.Base(fileName)
	if fsutil.IsTemp(base) {
		return "", 0, false
	}
	// longest extension first, so .json.zst is not taken for .zst
	for _, f := range []Format{FormatJSONZstd, FormatJSON, FormatBinary} {
		if name, found := strings.CutSuffix(base, f.Ext()); found && ValidateName(name) == nil {
			return name, f, true
		}
	}
	return "", 0, false
}

// FileOptions configure a FileAdapter.
type FileOptions struct {
	Format Format

	// Secret is the obfuscation key of FormatBinary payloads.
	Secret string

	// Legacy writes FormatBinary files in the legacy layout, readable by
	// older tools but limited to 255 bytes per record.
	Legacy bool

	// Perm is the permission of new files; defaults to 0644.
	Perm fs.FileMode
}

// FileAdapter stores each collection as one file in a directory. Reads map
// the file into memory; writes replace the file atomically.
type FileAdapter struct {
	dir string
	opt FileOptions
}

// NewFileAdapter creates dir if needed.
func NewFileAdapter(dir string, opt FileOptions) (*FileAdapter, error) {
	if opt.Format < FormatJSON || opt.Format > FormatBinary {
		return nil, fmt.Errorf("file: unsupported format %v", opt.Format)
	}
	if opt.Perm == 0 {
		opt.Perm = 0o644
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file: %w", err)
	}
	return &FileAdapter{dir: dir, opt: opt}, nil
}

func (a *FileAdapter) Dir() string {
	return a.dir
}

func (a *FileAdapter) Format() Format {
	return a.opt.Format
}

// Path returns the file holding the named collection.
func (a *FileAdapter) Path(name string) string {
	return filepath.Join(a.dir, name+a.opt.Format.Ext())
}

// Load reads the collection. Unlike DecodeRecords, a malformed file is an
// error rather than an empty collection, so that a later Persist cannot
// silently replace unreadable data.
func (a *FileAdapter) Load(ctx context.Context, name string) (Collection, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := fsutil.Map(a.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return Collection{}, nil
	} else if err != nil {
		return nil, adapterErrf("file", name, err)
	}
	defer m.Close()

	coll, err := decodeFile(m.Data, a.opt.Format, a.opt.Secret)
	if err != nil {
		return nil, adapterErrf("file", name, detachDataError(err))
	}
	return coll, nil
}

// detachDataError copies the data referenced by a *DataError, so the error
// stays printable after the mapping it points into is released.
func detachDataError(err error) error {
	var de *DataError
	if errors.As(err, &de) {
		de.Data = slices.Clone(de.Data)
	}
	return err
}

// decodeFile copies everything it keeps, since data may be a mapping that
// is released after the call.
func decodeFile(data []byte, f Format, secret string) (Collection, error) {
	if len(data) == 0 {
		return Collection{}, nil
	}
	switch f {
	case FormatJSON:
		return ParseCollection(data)
	case FormatJSONZstd:
		dec := getZstdDecoder()
		raw, err := dec.DecodeAll(data, nil)
		putZstdDecoder(dec)
		if err != nil {
			return nil, dataErrf(data, 0, err, "zstd")
		}
		return ParseCollection(raw)
	case FormatBinary:
		return DecodeRecordsErr(data, secret)
	default:
		panic("unsupported format")
	}
}

func encodeFile(coll Collection, f Format, secret string, legacy bool) ([]byte, error) {
	switch f {
	case FormatJSON:
		return coll.MarshalJSON()
	case FormatJSONZstd:
		raw, err := coll.MarshalJSON()
		if err != nil {
			return nil, err
		}
		enc := getZstdEncoder()
		out := enc.EncodeAll(raw, nil)
		putZstdEncoder(enc)
		return out, nil
	case FormatBinary:
		return Codec{Legacy: legacy}.Encode(coll, secret)
	default:
		panic("unsupported format")
	}
}

func (a *FileAdapter) Persist(ctx context.Context, name string, coll Collection) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeFile(coll, a.opt.Format, a.opt.Secret, a.opt.Legacy)
	if err != nil {
		return adapterErrf("file", name, err)
	}
	if err := fsutil.WriteFileAtomic(a.Path(name), data, a.opt.Perm); err != nil {
		return adapterErrf("file", name, err)
	}
	return nil
}

// List returns the collections stored in the adapter's format, sorted.
func (a *FileAdapter) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("file: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, f, ok := SplitFileName(e.Name()); ok && f == a.opt.Format {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (a *FileAdapter) Close() error {
	return nil
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}
