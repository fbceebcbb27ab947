package flatdb

import (
	"encoding/binary"
	"io"
	"math"
)

func ensureCapacity(buf []byte, minCap int) []byte {
	c := cap(buf)
	if minCap > c {
		if c < 16 {
			c = 16
		}
		for minCap > c {
			c <<= 1
		}
		old := buf
		buf = make([]byte, len(old), c)
		copy(buf, old)
	}
	return buf
}

func grow(buf []byte, n int) (int, []byte) {
	off := len(buf)
	newLen := off + n
	buf = ensureCapacity(buf, newLen)
	return off, buf[:newLen]
}

type bytesBuilder struct {
	Buf []byte
}

var _ io.Writer = (*bytesBuilder)(nil)

func (bb *bytesBuilder) Len() int {
	return len(bb.Buf)
}

func (bb *bytesBuilder) Grow(n int) (off int) {
	off, bb.Buf = grow(bb.Buf, n)
	return
}

func (bb *bytesBuilder) Write(b []byte) (int, error) {
	off := bb.Grow(len(b))
	copy(bb.Buf[off:], b)
	return len(b), nil
}

func (bb *bytesBuilder) WriteByte(v byte) error {
	bb.AppendByte(v)
	return nil
}

func (bb *bytesBuilder) AppendByte(v byte) {
	off := bb.Grow(1)
	bb.Buf[off] = v
}

func (bb *bytesBuilder) AppendUint32(v uint32) {
	off := bb.Grow(4)
	binary.BigEndian.PutUint32(bb.Buf[off:], v)
}

func (bb *bytesBuilder) AppendFixedUint64(v uint64) {
	off := bb.Grow(8)
	binary.BigEndian.PutUint64(bb.Buf[off:], v)
}

// PutUint32At overwrites a previously reserved 4-byte slot.
func (bb *bytesBuilder) PutUint32At(off int, v uint32) {
	binary.BigEndian.PutUint32(bb.Buf[off:], v)
}

// byteReader walks an encoded buffer; every read reports truncation instead
// of panicking.
type byteReader struct {
	data []byte
	off  int
}

func (r *byteReader) Remaining() int {
	return len(r.data) - r.off
}

func (r *byteReader) Done() bool {
	return r.off >= len(r.data)
}

func (r *byteReader) ReadByte() (byte, error) {
	if r.off >= len(r.data) {
		return 0, r.truncated("byte", 1)
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

func (r *byteReader) ReadN(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, r.truncated("bytes", n)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *byteReader) ReadUint32() (uint32, error) {
	b, err := r.ReadN(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *byteReader) ReadFloat64() (float64, error) {
	b, err := r.ReadN(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (r *byteReader) truncated(what string, n int) error {
	return dataErrf(r.data, r.off, nil, "truncated input: need %d %s, have %d", n, what, r.Remaining())
}
