package flatdb

import (
	"errors"
	"testing"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		input string
		want  string
		steps int
	}{
		{"a", "a", 1},
		{"a.b.c", "a.b.c", 3},
		{"a.b[2].c", "a.b[2].c", 4},
		{"a.2.c", "a[2].c", 3},
		{"a[0][1]", "a[0][1]", 3},
		{"a.01", "a.01", 2},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := ParsePath(tt.input)
			if err != nil {
				t.Fatalf("ParsePath(%q) failed: %v", tt.input, err)
			}
			if len(p) != tt.steps {
				t.Fatalf("len = %d, wanted %d", len(p), tt.steps)
			}
			if got := p.String(); got != tt.want {
				t.Fatalf("String() = %q, wanted %q", got, tt.want)
			}
		})
	}

	p := MustParsePath("a.b[2].c")
	if p[2].Index != 2 || p[2].Key != "2" || p[1].IsIndex() {
		t.Fatalf("steps = %+v, wanted index step at 2", p)
	}
	if MustParsePath("a.01")[1].IsIndex() {
		t.Fatalf("a.01: non-canonical number parsed as index")
	}
}

func TestParsePath_Invalid(t *testing.T) {
	for _, input := range []string{"", "a..b", ".a", "a.", "a[x]", "a[1", "a[1]x", "[0]", "a[-1]"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParsePath(input)
			var pe *PathError
			if !errors.As(err, &pe) {
				t.Fatalf("ParsePath(%q) = %v, wanted *PathError", input, err)
			}
		})
	}
}

func TestResolve_CreatesContainers(t *testing.T) {
	rec := NewObject()
	s, err := resolve(rec, "a.b[1].c", true)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	ensure(s.set(IntValue(5)))
	if got, want := rec.String(), `{"a":{"b":[null,{"c":5}]}}`; got != want {
		t.Fatalf("rec = %s, wanted %s", got, want)
	}

	v, ok := Lookup(rec, "a.b.1.c")
	if !ok || !Equal(v, IntValue(5)) {
		t.Fatalf("Lookup = %v, %v, wanted 5", v, ok)
	}
}

func TestResolve_MissingWithoutCreate(t *testing.T) {
	rec := MustParseObject(`{"a":{"x":1},"s":"str"}`)
	for _, path := range []string{"a.b.c", "s.x", "missing.x"} {
		_, err := resolve(rec, path, false)
		if !errors.Is(err, ErrPathNotFound) {
			t.Fatalf("resolve(%q) = %v, wanted ErrPathNotFound", path, err)
		}
	}

	// final step may be absent
	s, err := resolve(rec, "a.y", false)
	if err != nil {
		t.Fatalf("resolve(a.y) failed: %v", err)
	}
	if _, ok := s.get(); ok {
		t.Fatalf("a.y found, wanted absent")
	}
}

func TestResolve_ReplacesScalarUnderCreate(t *testing.T) {
	rec := MustParseObject(`{"a":5}`)
	ensure(SetPath(rec, "a.0", StringValue("x")))
	if got, want := rec.String(), `{"a":["x"]}`; got != want {
		t.Fatalf("rec = %s, wanted %s", got, want)
	}
}

func TestResolve_IndexIntoObject(t *testing.T) {
	rec := MustParseObject(`{"a":{"2":"two","x":{"y":1}}}`)
	for _, path := range []string{"a.2", "a.0.b", "a.x.0"} {
		_, err := resolve(rec, path, false)
		if !errors.Is(err, ErrPathNotFound) {
			t.Fatalf("resolve(%q) = %v, wanted ErrPathNotFound", path, err)
		}
	}
	if v, ok := Lookup(rec, "a.2"); ok {
		t.Fatalf("Lookup(a.2) = %v, wanted absent", v)
	}
	if got, want := rec.String(), `{"a":{"2":"two","x":{"y":1}}}`; got != want {
		t.Fatalf("rec = %s, wanted %s", got, want)
	}
}

func TestResolve_ReplacesObjectUnderCreate(t *testing.T) {
	rec := MustParseObject(`{"a":{"x":1}}`)
	ensure(SetPath(rec, "a.0.b", IntValue(1)))
	if got, want := rec.String(), `{"a":[{"b":1}]}`; got != want {
		t.Fatalf("rec = %s, wanted %s", got, want)
	}

	rec = MustParseObject(`{"a":{"b":{"x":1}}}`)
	ensure(SetPath(rec, "a.b.1", StringValue("y")))
	if got, want := rec.String(), `{"a":{"b":[null,"y"]}}`; got != want {
		t.Fatalf("rec = %s, wanted %s", got, want)
	}
}

func TestResolve_TopLevelNumericField(t *testing.T) {
	rec := MustParseObject(`{"2":"two"}`)
	v, ok := Lookup(rec, "2")
	if !ok || !Equal(v, StringValue("two")) {
		t.Fatalf("Lookup(2) = %v, %v, wanted two", v, ok)
	}
	ensure(SetPath(rec, "0", IntValue(1)))
	if got, want := rec.String(), `{"2":"two","0":1}`; got != want {
		t.Fatalf("rec = %s, wanted %s", got, want)
	}
}

func TestResolve_FieldOfArray(t *testing.T) {
	rec := MustParseObject(`{"a":[{"b":{"c":1}}]}`)
	_, err := resolve(rec, "a.b.c", true)
	var pe *PathError
	if !errors.As(err, &pe) {
		t.Fatalf("resolve = %v, wanted *PathError", err)
	}
	if _, ok := Lookup(rec, "a.b"); ok {
		t.Fatalf("Lookup(a.b) found, wanted absent")
	}
}

func TestSlotDelete(t *testing.T) {
	rec := MustParseObject(`{"a":[1,2,3],"b":1}`)
	s := must(resolve(rec, "a.1", false))
	if !s.delete() {
		t.Fatalf("delete = false, wanted true")
	}
	s = must(resolve(rec, "b", false))
	if !s.delete() {
		t.Fatalf("delete = false, wanted true")
	}
	if got, want := rec.String(), `{"a":[1,null,3]}`; got != want {
		t.Fatalf("rec = %s, wanted %s", got, want)
	}
}
