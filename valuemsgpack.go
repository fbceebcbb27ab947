package flatdb

import (
	"fmt"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

var (
	_ msgpack.CustomEncoder = Value{}
	_ msgpack.CustomDecoder = (*Value)(nil)
)

// EncodeMsgpack implements msgpack.CustomEncoder. Object keys are written in
// insertion order; integral numbers are written as integers.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	return v.encodeMsgpack(enc, false)
}

// encodeMsgpack with sorted=true produces the canonical form: equal values
// (in the Equal sense) always produce identical bytes.
func (v Value) encodeMsgpack(enc *msgpack.Encoder, sorted bool) error {
	switch v.kind {
	case KindNull:
		return enc.EncodeNil()
	case KindString:
		return enc.EncodeString(v.str)
	case KindNumber:
		if i, ok := v.AsInt(); ok {
			return enc.EncodeInt(i)
		}
		return enc.EncodeFloat64(v.num)
	case KindBool:
		return enc.EncodeBool(v.b)
	case KindTime:
		return enc.EncodeTime(v.t)
	case KindArray:
		if err := enc.EncodeArrayLen(len(v.arr.Items)); err != nil {
			return err
		}
		for _, item := range v.arr.Items {
			if err := item.encodeMsgpack(enc, sorted); err != nil {
				return err
			}
		}
		return nil
	case KindObject:
		keys := v.obj.keys
		if sorted {
			keys = slices.Sorted(slices.Values(keys))
		}
		if err := enc.EncodeMapLen(len(keys)); err != nil {
			return err
		}
		for _, k := range keys {
			if err := enc.EncodeString(k); err != nil {
				return err
			}
			if err := v.obj.vals[k].encodeMsgpack(enc, sorted); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("cannot encode value of %v", v.kind)
	}
}

// DecodeMsgpack implements msgpack.CustomDecoder, keeping map key order.
func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	c, err := dec.PeekCode()
	if err != nil {
		return err
	}
	switch {
	case c == msgpcode.Nil:
		*v = Value{}
		return dec.DecodeNil()
	case c == msgpcode.True || c == msgpcode.False:
		b, err := dec.DecodeBool()
		*v = BoolValue(b)
		return err
	case msgpcode.IsString(c):
		s, err := dec.DecodeString()
		*v = StringValue(s)
		return err
	case msgpcode.IsBin(c):
		b, err := dec.DecodeBytes()
		*v = StringValue(string(b))
		return err
	case msgpcode.IsExt(c) || msgpcode.IsFixedExt(c):
		t, err := dec.DecodeTime()
		*v = TimeValue(t)
		return err
	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return err
		}
		items := make([]Value, max(n, 0))
		for i := range items {
			if err := items[i].DecodeMsgpack(dec); err != nil {
				return err
			}
		}
		*v = ArrayValue(items...)
		return nil
	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return err
		}
		o := NewObject()
		for range max(n, 0) {
			k, err := dec.DecodeString()
			if err != nil {
				return err
			}
			var item Value
			if err := item.DecodeMsgpack(dec); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			o.Set(k, item)
		}
		*v = ObjectValue(o)
		return nil
	default:
		f, err := dec.DecodeFloat64()
		*v = NumberValue(f)
		return err
	}
}

// canonicalBytes returns the canonical msgpack encoding of v, see
// encodeMsgpack.
func canonicalBytes(buf []byte, v Value) []byte {
	bb := bytesBuilder{buf}
	enc := msgpack.GetEncoder()
	enc.ResetDict(&bb, nil)
	err := v.encodeMsgpack(enc, true)
	msgpack.PutEncoder(enc)
	if err != nil {
		panic(fmt.Errorf("failed to encode %v using MsgPack: %w", v.kind, err))
	}
	return bb.Buf
}
