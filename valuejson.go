package flatdb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

const timeFormat = time.RFC3339Nano

func (v Value) MarshalJSON() ([]byte, error) {
	return v.appendJSON(nil)
}

func (v Value) appendJSON(buf []byte) ([]byte, error) {
	switch v.kind {
	case KindNull:
		return append(buf, "null"...), nil
	case KindString:
		return appendJSONString(buf, v.str)
	case KindNumber:
		raw, err := json.Marshal(v.num)
		if err != nil {
			return nil, err
		}
		return append(buf, raw...), nil
	case KindBool:
		return strconv.AppendBool(buf, v.b), nil
	case KindTime:
		return appendJSONString(buf, v.t.Format(timeFormat))
	case KindArray:
		buf = append(buf, '[')
		var err error
		for i, item := range v.arr.Items {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf, err = item.appendJSON(buf)
			if err != nil {
				return nil, err
			}
		}
		return append(buf, ']'), nil
	case KindObject:
		return v.obj.appendJSON(buf)
	default:
		return nil, fmt.Errorf("cannot marshal value of %v", v.kind)
	}
}

func appendJSONString(buf []byte, s string) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return append(buf, raw...), nil
}

func (o *Object) MarshalJSON() ([]byte, error) {
	return o.appendJSON(nil)
}

func (o *Object) appendJSON(buf []byte) ([]byte, error) {
	buf = append(buf, '{')
	first := true
	var err error
	for k, v := range o.All() {
		if !first {
			buf = append(buf, ',')
		}
		first = false
		buf, err = appendJSONString(buf, k)
		if err != nil {
			return nil, err
		}
		buf = append(buf, ':')
		buf, err = v.appendJSON(buf)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
	}
	return append(buf, '}'), nil
}

// UnmarshalJSON decodes any JSON document, keeping object key order. Strings
// always decode as strings, even when they hold a timestamp.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	val, err := decodeJSONValue(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after top-level JSON value")
	}
	*v = val
	return nil
}

func (o *Object) UnmarshalJSON(data []byte) error {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	if v.kind != KindObject {
		return fmt.Errorf("expected JSON object, got %v", v.kind)
	}
	*o = *v.obj
	return nil
}

func decodeJSONValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch tok := tok.(type) {
	case nil:
		return Value{}, nil
	case bool:
		return BoolValue(tok), nil
	case string:
		return StringValue(tok), nil
	case json.Number:
		f, err := strconv.ParseFloat(string(tok), 64)
		if err != nil {
			return Value{}, err
		}
		return NumberValue(f), nil
	case float64:
		return NumberValue(tok), nil
	case json.Delim:
		switch tok {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeJSONValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return ArrayValue(items...), nil
		case '{':
			o := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("unexpected object key %v", keyTok)
				}
				item, err := decodeJSONValue(dec)
				if err != nil {
					return Value{}, fmt.Errorf("%s: %w", key, err)
				}
				o.Set(key, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return ObjectValue(o), nil
		}
	}
	return Value{}, fmt.Errorf("unexpected JSON token %v", tok)
}

// ParseValue decodes a JSON document into a Value.
func ParseValue(data []byte) (Value, error) {
	var v Value
	err := v.UnmarshalJSON(data)
	return v, err
}

// ParseObject decodes a JSON object, keeping key order. Update documents and
// queries are usually built this way.
func ParseObject(s string) (*Object, error) {
	o := NewObject()
	if err := o.UnmarshalJSON([]byte(s)); err != nil {
		return nil, err
	}
	return o, nil
}

// MustParseObject is like ParseObject but panics on error.
func MustParseObject(s string) *Object {
	return must(ParseObject(s))
}

// ParseCollection decodes a JSON array of objects.
func ParseCollection(data []byte) (Collection, error) {
	v, err := ParseValue(data)
	if err != nil {
		return nil, err
	}
	arr, ok := v.AsArray()
	if !ok {
		return nil, fmt.Errorf("expected JSON array of records, got %v", v.kind)
	}
	coll := make(Collection, 0, len(arr.Items))
	for i, item := range arr.Items {
		rec, ok := item.AsObject()
		if !ok {
			return nil, fmt.Errorf("record %d: expected object, got %v", i, item.kind)
		}
		coll = append(coll, rec)
	}
	return coll, nil
}

// MarshalJSON writes the collection as a JSON array, one record per line.
func (c Collection) MarshalJSON() ([]byte, error) {
	buf := []byte{'['}
	var err error
	for i, rec := range c {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '\n')
		buf, err = rec.appendJSON(buf)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	if len(c) > 0 {
		buf = append(buf, '\n')
	}
	return append(buf, ']'), nil
}
