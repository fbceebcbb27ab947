package flatdb

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encoding selects how a single value is serialized by the adapters that
// store records one by one.
type Encoding int

const (
	MsgPack Encoding = iota
	JSON
)

func (enc Encoding) String() string {
	switch enc {
	case MsgPack:
		return "msgpack"
	case JSON:
		return "json"
	default:
		return fmt.Sprintf("encoding(%d)", int(enc))
	}
}

func (enc Encoding) EncodeValue(buf []byte, v Value) []byte {
	switch enc {
	case MsgPack:
		bb := bytesBuilder{buf}
		enc := msgpack.GetEncoder()
		enc.ResetDict(&bb, nil)
		err := v.EncodeMsgpack(enc)
		msgpack.PutEncoder(enc)
		if err != nil {
			panic(fmt.Errorf("failed to encode %v using MsgPack: %w", v.kind, err))
		}
		return bb.Buf
	case JSON:
		raw, err := v.appendJSON(buf)
		if err != nil {
			panic(fmt.Errorf("failed to encode %v to JSON: %w", v.kind, err))
		}
		return raw
	default:
		panic("unsupported encoding")
	}
}

func (enc Encoding) DecodeValue(buf []byte) (Value, error) {
	var v Value
	switch enc {
	case MsgPack:
		var r bytes.Reader
		r.Reset(buf)
		dec := msgpack.GetDecoder()
		dec.ResetDict(&r, nil)
		err := v.DecodeMsgpack(dec)
		msgpack.PutDecoder(dec)
		if err != nil {
			return Value{}, dataErrf(buf, 0, err, "failed to decode msgpack value")
		}
		if r.Len() > 0 {
			return Value{}, dataErrf(buf, len(buf)-r.Len(), nil, "trailing data after msgpack value")
		}
		return v, nil
	case JSON:
		err := v.UnmarshalJSON(buf)
		if err != nil {
			return Value{}, dataErrf(buf, 0, err, "failed to decode JSON value")
		}
		return v, nil
	default:
		panic("unsupported encoding")
	}
}

// DecodeRecord decodes a value that must be an object.
func (enc Encoding) DecodeRecord(buf []byte) (Record, error) {
	v, err := enc.DecodeValue(buf)
	if err != nil {
		return nil, err
	}
	rec, ok := v.AsObject()
	if !ok {
		return nil, dataErrf(buf, 0, nil, "expected record, got %v", v.kind)
	}
	return rec, nil
}
