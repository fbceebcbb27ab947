package flatdb

import (
	"bytes"
	"math"
	"time"
)

// Field type tags of the encoded record stream.
const (
	tagString byte = 0
	tagNumber byte = 1
	tagBool   byte = 2
	tagArray  byte = 3
	tagObject byte = 4
	tagNull   byte = 5
	tagFloat  byte = 6 // widened layout only
	tagTime   byte = 7 // widened layout only
)

// widenedMagic starts every stream in the widened layout. A legacy stream
// could only begin with these bytes if its first field name were 68 bytes
// long and started with "B\x02"; such streams are read as widened.
var widenedMagic = []byte("FDB\x02")

const (
	maxLegacyRecordLen = math.MaxUint8
	maxKeyLen          = math.MaxUint8
)

// Codec encodes collections into the binary record stream.
//
// Two layouts are supported. The legacy layout prefixes each record with a
// single length byte, so a record's encoded fields cannot exceed 255 bytes,
// and stores every number as a big-endian int32. The widened layout starts
// with a magic header, uses a 4-byte record length, and adds tags for
// float64 numbers and timestamps. Decoding detects the layout automatically.
//
// String, array and object payloads are obfuscated with the key, see
// Obfuscate. Arrays and objects are stored as their JSON text, so timestamps
// nested inside them decode as strings.
type Codec struct {
	// Legacy selects the legacy layout for encoding.
	Legacy bool
}

// EncodeRecords encodes records in the widened layout.
func EncodeRecords(records Collection, key string) ([]byte, error) {
	return Codec{}.Encode(records, key)
}

// DecodeRecords decodes a stream produced by EncodeRecords or by the legacy
// encoder. Malformed or truncated input yields nil; empty input yields an
// empty collection.
func DecodeRecords(data []byte, key string) Collection {
	coll, err := DecodeRecordsErr(data, key)
	if err != nil {
		return nil
	}
	return coll
}

// DecodeRecordsErr is DecodeRecords that reports why decoding failed. The
// error is always a *DataError.
func DecodeRecordsErr(data []byte, key string) (Collection, error) {
	return Codec{}.Decode(data, key)
}

func (c Codec) Encode(records Collection, key string) ([]byte, error) {
	var bb bytesBuilder
	if !c.Legacy {
		bb.Write(widenedMagic)
	}
	for i, rec := range records {
		start := bb.Len()
		if c.Legacy {
			bb.AppendByte(0)
		} else {
			bb.AppendUint32(0)
		}
		fieldsStart := bb.Len()
		if err := c.encodeFields(&bb, rec, key); err != nil {
			return nil, opErrf("encode", "", err, "record %d", i)
		}
		n := bb.Len() - fieldsStart
		if c.Legacy {
			if n > maxLegacyRecordLen {
				return nil, opErrf("encode", "", ErrRecordTooLarge, "record %d has %d bytes", i, n)
			}
			bb.Buf[start] = byte(n)
		} else {
			if uint64(n) > math.MaxUint32 {
				return nil, opErrf("encode", "", ErrRecordTooLarge, "record %d has %d bytes", i, n)
			}
			bb.PutUint32At(start, uint32(n))
		}
	}
	return bb.Buf, nil
}

func (c Codec) encodeFields(bb *bytesBuilder, rec Record, key string) error {
	for name, v := range rec.All() {
		if len(name) > maxKeyLen {
			return opErrf("encode", name, ErrKeyTooLong, "")
		}
		bb.AppendByte(byte(len(name)))
		bb.Write([]byte(name))
		if err := c.encodeValue(bb, name, v, key); err != nil {
			return err
		}
	}
	return nil
}

func (c Codec) encodeValue(bb *bytesBuilder, name string, v Value, key string) error {
	switch v.kind {
	case KindNull:
		bb.AppendByte(tagNull)
	case KindString:
		bb.AppendByte(tagString)
		appendPayload(bb, []byte(v.str), key)
	case KindBool:
		bb.AppendByte(tagBool)
		if v.b {
			bb.AppendByte(1)
		} else {
			bb.AppendByte(0)
		}
	case KindNumber:
		if i, ok := v.AsInt(); ok && i >= math.MinInt32 && i <= math.MaxInt32 {
			bb.AppendByte(tagNumber)
			bb.AppendUint32(uint32(int32(i)))
		} else if !c.Legacy {
			bb.AppendByte(tagFloat)
			bb.AppendFixedUint64(math.Float64bits(v.num))
		} else {
			t := math.Trunc(v.num)
			if math.IsNaN(t) || t < math.MinInt32 || t > math.MaxInt32 {
				return opErrf("encode", name, nil, "number %v does not fit the legacy int32 field", v.num)
			}
			bb.AppendByte(tagNumber)
			bb.AppendUint32(uint32(int32(t)))
		}
	case KindTime:
		if c.Legacy {
			bb.AppendByte(tagString)
		} else {
			bb.AppendByte(tagTime)
		}
		appendPayload(bb, []byte(v.t.Format(timeFormat)), key)
	case KindArray, KindObject:
		raw, err := v.appendJSON(nil)
		if err != nil {
			return opErrf("encode", name, err, "")
		}
		if v.kind == KindArray {
			bb.AppendByte(tagArray)
		} else {
			bb.AppendByte(tagObject)
		}
		appendPayload(bb, raw, key)
	default:
		return opErrf("encode", name, nil, "unsupported %v", v.kind)
	}
	return nil
}

// appendPayload writes a 4-byte length and the obfuscated bytes.
func appendPayload(bb *bytesBuilder, data []byte, key string) {
	bb.AppendUint32(uint32(len(data)))
	off := bb.Grow(len(data))
	xorInto(bb.Buf[off:], data, key)
}

func (c Codec) Decode(data []byte, key string) (Collection, error) {
	coll := Collection{}
	r := byteReader{data: data}
	widened := bytes.HasPrefix(data, widenedMagic)
	if widened {
		r.off = len(widenedMagic)
	}
	for !r.Done() {
		var n int
		if widened {
			u, err := r.ReadUint32()
			if err != nil {
				return nil, err
			}
			n = int(u)
		} else {
			b, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			n = int(b)
		}
		start := r.off
		fields, err := r.ReadN(n)
		if err != nil {
			return nil, err
		}
		rec, err := decodeFields(data, start, fields, key, widened)
		if err != nil {
			return nil, err
		}
		coll = append(coll, rec)
	}
	return coll, nil
}

// decodeFields parses one record. Offsets in errors are relative to data.
func decodeFields(data []byte, base int, fields []byte, key string, widened bool) (Record, error) {
	rec := NewObject()
	r := byteReader{data: data[:base+len(fields)], off: base}
	for !r.Done() {
		keyLen, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		name, err := r.ReadN(int(keyLen))
		if err != nil {
			return nil, err
		}
		tagOff := r.off
		tag, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		var v Value
		switch tag {
		case tagNull:
			v = Value{}
		case tagBool:
			b, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			if b > 1 {
				return nil, dataErrf(data, r.off-1, nil, "invalid boolean %d in field %q", b, name)
			}
			v = BoolValue(b == 1)
		case tagNumber:
			u, err := r.ReadUint32()
			if err != nil {
				return nil, err
			}
			v = IntValue(int64(int32(u)))
		case tagFloat, tagTime:
			if !widened {
				return nil, dataErrf(data, tagOff, nil, "tag %d in legacy stream, field %q", tag, name)
			}
			if tag == tagFloat {
				f, err := r.ReadFloat64()
				if err != nil {
					return nil, err
				}
				v = NumberValue(f)
				break
			}
			payload, err := readPayload(&r, key)
			if err != nil {
				return nil, err
			}
			t, err := time.Parse(timeFormat, string(payload))
			if err != nil {
				return nil, dataErrf(data, tagOff, err, "invalid time in field %q", name)
			}
			v = TimeValue(t)
		case tagString:
			payload, err := readPayload(&r, key)
			if err != nil {
				return nil, err
			}
			v = StringValue(string(payload))
		case tagArray, tagObject:
			payload, err := readPayload(&r, key)
			if err != nil {
				return nil, err
			}
			v, err = ParseValue(payload)
			if err != nil {
				return nil, dataErrf(data, tagOff, err, "invalid payload in field %q", name)
			}
			if (tag == tagArray) != v.IsArray() || (tag == tagObject) != v.IsObject() {
				return nil, dataErrf(data, tagOff, nil, "payload of field %q is %v, wanted tag %d", name, v.kind, tag)
			}
		default:
			return nil, dataErrf(data, tagOff, nil, "unknown tag %d in field %q", tag, name)
		}
		rec.Set(string(name), v)
	}
	return rec, nil
}

func readPayload(r *byteReader, key string) ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(r.Remaining()) {
		return nil, dataErrf(r.data, r.off, nil, "payload length %d exceeds remaining %d bytes", n, r.Remaining())
	}
	raw, err := r.ReadN(int(n))
	if err != nil {
		return nil, err
	}
	return Obfuscate(raw, key), nil
}
