package flatdb

import (
	"strconv"
	"strings"
)

// Step is one element of a Path: an object key, or an array index when
// Index >= 0. Index steps keep their decimal form in Key, so a top-level
// index step can address a record field with a numeric name.
type Step struct {
	Key   string
	Index int
}

func (s Step) IsIndex() bool {
	return s.Index >= 0
}

// Path is a parsed field path like "a.b[2].c".
type Path []Step

// ParsePath splits s on dots and brackets. "a.b[2].c" and "a.b.2.c" produce
// the same path. Segments consisting of digits become index steps.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, pathErrf(s, -1, nil, "empty path")
	}
	var path Path
	for _, seg := range strings.Split(s, ".") {
		name, rest, hasBracket := splitByte(seg, '[')
		if name == "" && !(hasBracket && len(path) > 0) {
			return nil, pathErrf(s, -1, nil, "empty segment")
		}
		if name != "" {
			path = append(path, makeStep(name))
		}
		for hasBracket {
			var idx string
			var closed bool
			idx, rest, closed = splitByte(rest, ']')
			if !closed {
				return nil, pathErrf(s, -1, nil, "unterminated index")
			}
			n, ok := parseIndex(idx)
			if !ok {
				return nil, pathErrf(s, -1, nil, "invalid array index %q", idx)
			}
			path = append(path, Step{Key: idx, Index: n})
			if rest == "" {
				break
			}
			if rest[0] != '[' {
				return nil, pathErrf(s, -1, nil, "unexpected %q after index", rest)
			}
			rest = rest[1:]
		}
	}
	return path, nil
}

// MustParsePath is like ParsePath but panics on error.
func MustParsePath(s string) Path {
	return must(ParsePath(s))
}

func makeStep(name string) Step {
	if n, ok := parseIndex(name); ok {
		return Step{Key: name, Index: n}
	}
	return Step{Key: name, Index: -1}
}

// parseIndex accepts canonical non-negative decimals only, so "01" and "+1"
// stay object keys.
func parseIndex(s string) (int, bool) {
	if s == "" || len(s) > 9 || (len(s) > 1 && s[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

func (p Path) String() string {
	var buf strings.Builder
	for i, step := range p {
		if step.IsIndex() {
			buf.WriteByte('[')
			buf.WriteString(step.Key)
			buf.WriteByte(']')
			continue
		}
		if i > 0 {
			buf.WriteByte('.')
		}
		buf.WriteString(step.Key)
	}
	return buf.String()
}

// slot addresses the final step of a resolved path inside its parent
// container. The parent is shared with the record, so writes through a slot
// mutate the record.
type slot struct {
	path   string
	parent Value
	step   Step
}

// resolve walks every step but the last, returning the slot for the last
// one. With create, missing or scalar intermediates are replaced by an array
// when the following step is an index and by an object otherwise.
//
// An index step below the top level must address an array. Without create,
// an index step into an object is a PathError; with create, the object is
// replaced by an empty array. Top-level index steps address record fields
// with numeric names.
func resolve(root Record, path string, create bool) (slot, error) {
	steps, err := ParsePath(path)
	if err != nil {
		return slot{}, err
	}
	return resolveSteps(root, path, steps, create)
}

func resolveSteps(root Record, path string, steps Path, create bool) (slot, error) {
	if root == nil {
		return slot{}, pathErrf(path, 0, ErrPathNotFound, "nil record")
	}
	var prev Value
	cur := ObjectValue(root)
	last := len(steps) - 1
	for i, step := range steps {
		if i > 0 && step.IsIndex() && cur.kind == KindObject {
			if !create {
				return slot{}, pathErrf(path, i, ErrPathNotFound, "cannot index object with %s", step.Key)
			}
			arr := ArrayValue()
			if err := setChild(prev, steps[i-1], arr); err != nil {
				return slot{}, pathErrf(path, i-1, err, "%v", err)
			}
			cur = arr
		}
		if i == last {
			break
		}
		child, found, err := childOf(cur, step)
		if err != nil {
			return slot{}, pathErrf(path, i, err, "%v", err)
		}
		if !found || !child.IsContainer() {
			if !create {
				if found {
					return slot{}, pathErrf(path, i, ErrPathNotFound, "cannot traverse %v", child.kind)
				}
				return slot{}, pathErrf(path, i, ErrPathNotFound, "%s not found", step.Key)
			}
			if steps[i+1].IsIndex() {
				child = ArrayValue()
			} else {
				child = ObjectValue(NewObject())
			}
			if err := setChild(cur, step, child); err != nil {
				return slot{}, pathErrf(path, i, err, "%v", err)
			}
		}
		prev, cur = cur, child
	}
	return slot{path: path, parent: cur, step: steps[last]}, nil
}

func childOf(parent Value, step Step) (Value, bool, error) {
	switch parent.kind {
	case KindObject:
		v, ok := parent.obj.Get(step.Key)
		return v, ok, nil
	case KindArray:
		if !step.IsIndex() {
			return Value{}, false, errFieldOfArray(step)
		}
		if step.Index < len(parent.arr.Items) {
			return parent.arr.Items[step.Index], true, nil
		}
		return Value{}, false, nil
	default:
		return Value{}, false, nil
	}
}

func setChild(parent Value, step Step, v Value) error {
	switch parent.kind {
	case KindObject:
		parent.obj.Set(step.Key, v)
		return nil
	case KindArray:
		if !step.IsIndex() {
			return errFieldOfArray(step)
		}
		arr := parent.arr
		for len(arr.Items) <= step.Index {
			arr.Items = append(arr.Items, Value{})
		}
		arr.Items[step.Index] = v
		return nil
	default:
		return errNotContainer(parent)
	}
}

func errFieldOfArray(step Step) error {
	return &PathError{Path: step.Key, Step: -1, Msg: "cannot address array element by field name"}
}

func errNotContainer(v Value) error {
	return &PathError{Step: -1, Msg: "cannot set field of " + v.kind.String()}
}

func (s slot) get() (Value, bool) {
	v, ok, _ := childOf(s.parent, s.step)
	return v, ok
}

func (s slot) set(v Value) error {
	if err := setChild(s.parent, s.step, v); err != nil {
		return pathErrf(s.path, -1, err, "%v", err)
	}
	return nil
}

// delete removes an object key, or nulls out an array element so that the
// positions of the following elements do not shift.
func (s slot) delete() bool {
	switch s.parent.kind {
	case KindObject:
		return s.parent.obj.Delete(s.step.Key)
	case KindArray:
		if s.step.IsIndex() && s.step.Index < len(s.parent.arr.Items) {
			s.parent.arr.Items[s.step.Index] = Value{}
			return true
		}
	}
	return false
}

// Lookup returns the value at path, or false when any step is missing.
func Lookup(rec Record, path string) (Value, bool) {
	steps, err := ParsePath(path)
	if err != nil {
		return Value{}, false
	}
	return lookupSteps(rec, steps)
}

func lookupSteps(rec Record, steps Path) (Value, bool) {
	if rec == nil {
		return Value{}, false
	}
	cur := ObjectValue(rec)
	for i, step := range steps {
		if i > 0 && step.IsIndex() && cur.kind == KindObject {
			return Value{}, false
		}
		v, ok, err := childOf(cur, step)
		if err != nil || !ok {
			return Value{}, false
		}
		cur = v
	}
	return cur, true
}

// SetPath assigns v at path, creating missing intermediate containers.
func SetPath(rec Record, path string, v Value) error {
	s, err := resolve(rec, path, true)
	if err != nil {
		return err
	}
	return s.set(v)
}
