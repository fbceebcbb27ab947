package flatdb

import (
	"cmp"
	"fmt"
	"iter"
	"math"
	"slices"
	"strings"
	"time"
)

// Kind is the tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindObject
	KindTime
)

var kindNames = [...]string{"null", "string", "number", "bool", "array", "object", "time"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// sortRank orders kinds for Compare when the kinds differ. Numbers sort before
// strings, strings before objects, and so on, matching the usual document
// database ordering.
func (k Kind) sortRank() int {
	switch k {
	case KindNull:
		return 0
	case KindNumber:
		return 1
	case KindString:
		return 2
	case KindObject:
		return 3
	case KindArray:
		return 4
	case KindBool:
		return 5
	case KindTime:
		return 6
	default:
		return 7
	}
}

// Value is a single schema-less document value. The zero Value is null.
//
// Arrays and objects are held by pointer, so copying a Value shares the
// container; use Clone for an independent copy.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	t    time.Time
	arr  *Array
	obj  *Object
}

// Array is a mutable list of values.
type Array struct {
	Items []Value
}

func NullValue() Value            { return Value{} }
func StringValue(s string) Value  { return Value{kind: KindString, str: s} }
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }
func IntValue(i int64) Value      { return Value{kind: KindNumber, num: float64(i)} }
func BoolValue(b bool) Value      { return Value{kind: KindBool, b: b} }
func TimeValue(t time.Time) Value { return Value{kind: KindTime, t: t} }

// ArrayValue returns a new array holding items.
func ArrayValue(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: &Array{Items: items}}
}

// ObjectValue wraps o. A nil o produces an empty object.
func ObjectValue(o *Object) Value {
	if o == nil {
		o = NewObject()
	}
	return Value{kind: KindObject, obj: o}
}

func (v Value) Kind() Kind      { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }
func (v Value) IsNumber() bool  { return v.kind == KindNumber }
func (v Value) IsArray() bool   { return v.kind == KindArray }
func (v Value) IsObject() bool  { return v.kind == KindObject }
func (v Value) IsContainer() bool {
	return v.kind == KindArray || v.kind == KindObject
}

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }
func (v Value) AsBool() (bool, bool)      { return v.b, v.kind == KindBool }
func (v Value) AsTime() (time.Time, bool) { return v.t, v.kind == KindTime }
func (v Value) AsArray() (*Array, bool)   { return v.arr, v.kind == KindArray }
func (v Value) AsObject() (*Object, bool) { return v.obj, v.kind == KindObject }

// AsInt returns the number as int64 if it is integral and fits.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber || !isIntegral(v.num) {
		return 0, false
	}
	if v.num < math.MinInt64 || v.num >= math.MaxInt64 {
		return 0, false
	}
	return int64(v.num), true
}

func isIntegral(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f)
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		items := make([]Value, len(v.arr.Items))
		for i, item := range v.arr.Items {
			items[i] = item.Clone()
		}
		return Value{kind: KindArray, arr: &Array{Items: items}}
	case KindObject:
		return Value{kind: KindObject, obj: v.obj.Clone()}
	default:
		return v
	}
}

// Interface converts v into plain Go values: nil, string, float64, bool,
// time.Time, []any and map[string]any. Object key order is lost.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindTime:
		return v.t
	case KindArray:
		out := make([]any, len(v.arr.Items))
		for i, item := range v.arr.Items {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		return v.obj.Map()
	default:
		return nil
	}
}

// String returns the compact JSON form of v, for logging and debugging.
func (v Value) String() string {
	raw, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<%s: %v>", v.kind, err)
	}
	return string(raw)
}

// Equal reports deep structural equality. Object key order is ignored,
// numbers compare by value and times by instant.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindString:
		return a.str == b.str
	case KindNumber:
		return a.num == b.num
	case KindBool:
		return a.b == b.b
	case KindTime:
		return a.t.Equal(b.t)
	case KindArray:
		return slices.EqualFunc(a.arr.Items, b.arr.Items, Equal)
	case KindObject:
		return a.obj.Equal(b.obj)
	default:
		return false
	}
}

// Compare orders two values. Values of different kinds are ordered by kind.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		return cmp.Compare(a.kind.sortRank(), b.kind.sortRank())
	}
	switch a.kind {
	case KindString:
		return strings.Compare(a.str, b.str)
	case KindNumber:
		return cmp.Compare(a.num, b.num)
	case KindBool:
		if a.b == b.b {
			return 0
		} else if a.b {
			return 1
		}
		return -1
	case KindTime:
		return a.t.Compare(b.t)
	case KindArray:
		return slices.CompareFunc(a.arr.Items, b.arr.Items, Compare)
	case KindObject:
		return a.obj.compare(b.obj)
	default:
		return 0
	}
}

// Object is an insertion-ordered string-keyed map of values. A nil *Object
// reads as empty.
type Object struct {
	keys []string
	vals map[string]Value
}

// Record is a single document of a Collection.
type Record = *Object

// Collection is the in-memory form of one stored file: records in insertion
// order. Positions in the slice are the record positions used by Index.
type Collection []Record

func NewObject() *Object {
	return &Object{vals: make(map[string]Value)}
}

// ObjectOf builds an object from alternating key/value pairs, converting the
// values with ValueOf. It panics on malformed input and is meant for literals.
func ObjectOf(kvs ...any) *Object {
	if len(kvs)%2 != 0 {
		panic("ObjectOf: odd number of arguments")
	}
	o := NewObject()
	for i := 0; i < len(kvs); i += 2 {
		k, ok := kvs[i].(string)
		if !ok {
			panic(fmt.Errorf("ObjectOf: key %d is %T, wanted string", i/2, kvs[i]))
		}
		o.Set(k, must(ValueOf(kvs[i+1])))
	}
	return o
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return slices.Clone(o.keys)
}

func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	v, ok := o.vals[key]
	return v, ok
}

func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

// Set assigns key. New keys are appended; existing keys keep their position.
func (o *Object) Set(key string, v Value) {
	if o.vals == nil {
		o.vals = make(map[string]Value)
	}
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

// Delete removes key and reports whether it was present.
func (o *Object) Delete(key string) bool {
	if o == nil {
		return false
	}
	if _, ok := o.vals[key]; !ok {
		return false
	}
	delete(o.vals, key)
	o.keys = slices.DeleteFunc(o.keys, func(k string) bool { return k == key })
	return true
}

// All iterates over the entries in insertion order.
func (o *Object) All() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		if o == nil {
			return
		}
		for _, k := range o.keys {
			if !yield(k, o.vals[k]) {
				return
			}
		}
	}
}

// Clone returns a deep copy.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}
	c := &Object{
		keys: slices.Clone(o.keys),
		vals: make(map[string]Value, len(o.vals)),
	}
	for k, v := range o.vals {
		c.vals[k] = v.Clone()
	}
	return c
}

// Equal reports whether both objects hold equal values under the same keys,
// regardless of order.
func (o *Object) Equal(other *Object) bool {
	if o.Len() != other.Len() {
		return false
	}
	for k, v := range o.All() {
		ov, ok := other.Get(k)
		if !ok || !Equal(v, ov) {
			return false
		}
	}
	return true
}

func (o *Object) compare(other *Object) int {
	n := min(o.Len(), other.Len())
	for i := range n {
		ak, bk := o.keys[i], other.keys[i]
		if c := strings.Compare(ak, bk); c != 0 {
			return c
		}
		if c := Compare(o.vals[ak], other.vals[bk]); c != 0 {
			return c
		}
	}
	return cmp.Compare(o.Len(), other.Len())
}

// Map converts the object into a plain map, see Value.Interface.
func (o *Object) Map() map[string]any {
	m := make(map[string]any, o.Len())
	for k, v := range o.All() {
		m[k] = v.Interface()
	}
	return m
}

func (o *Object) String() string {
	return ObjectValue(o).String()
}

// Clone returns a deep copy of every record.
func (c Collection) Clone() Collection {
	if c == nil {
		return nil
	}
	out := make(Collection, len(c))
	for i, rec := range c {
		out[i] = rec.Clone()
	}
	return out
}
