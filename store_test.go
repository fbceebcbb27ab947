package flatdb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func newTestStore(t testing.TB, opt Options) (*Store, *MemAdapter) {
	t.Helper()
	a := NewMemAdapter()
	var seq int
	if opt.NewID == nil {
		opt.NewID = func() string {
			seq++
			return fmt.Sprintf("id%d", seq)
		}
	}
	if opt.Logf == nil {
		opt.Logf = t.Logf
		opt.Verbose = true
	}
	s := Open(a, opt)
	t.Cleanup(func() { s.Close() })
	return s, a
}

func insertJSON(t testing.TB, s *Store, name string, records ...string) {
	t.Helper()
	for _, r := range records {
		if _, err := s.Insert(context.Background(), name, MustParseObject(r)); err != nil {
			t.Fatalf("Insert(%s) failed: %v", r, err)
		}
	}
}

func dumpRecords(t testing.TB, s *Store, name string) string {
	t.Helper()
	return strings.TrimSpace(must(s.Dump(context.Background(), name, DumpRecords)))
}

func TestStore_InsertAssignsID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, Options{})

	rec := MustParseObject(`{"name":"Mark"}`)
	got := must(s.Insert(ctx, "users", rec))
	if id, _ := got.Get("_id"); !Equal(id, StringValue("id1")) {
		t.Fatalf("_id = %v, wanted id1", id)
	}
	if rec.Has("_id") {
		t.Fatalf("Insert modified its argument: %v", rec)
	}

	got = must(s.Insert(ctx, "users", MustParseObject(`{"_id":7,"name":"Anas"}`)))
	if id, _ := got.Get("_id"); !Equal(id, IntValue(7)) {
		t.Fatalf("_id = %v, wanted 7", id)
	}

	if got, want := dumpRecords(t, s, "users"), "users.0 = {\"name\":\"Mark\",\"_id\":\"id1\"}\nusers.1 = {\"_id\":7,\"name\":\"Anas\"}"; got != want {
		t.Fatalf("records:\n%s\nwanted:\n%s", got, want)
	}
}

func TestStore_CustomIDField(t *testing.T) {
	s, _ := newTestStore(t, Options{IDField: "key", NewID: func() string { return "k" }})
	got := must(s.Insert(context.Background(), "users", MustParseObject(`{"name":"Mark"}`)))
	if got.String() != `{"name":"Mark","key":"k"}` {
		t.Fatalf("Insert = %v", got)
	}
}

func TestStore_Find(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, Options{})
	insertJSON(t, s, "users",
		`{"name":"Mark","age":30,"addr":{"city":"X"}}`,
		`{"name":"Anas","age":25}`,
		`{"name":"Mark","age":31,"addr":{"city":"Y"}}`,
	)

	rec := must(s.FindOne(ctx, "users", MustParseObject(`{"name":"Mark"}`)))
	if age, _ := rec.Get("age"); !Equal(age, IntValue(30)) {
		t.Fatalf("FindOne = %v, wanted age 30", rec)
	}
	rec = must(s.FindOne(ctx, "users", MustParseObject(`{"addr.city":"Y"}`)))
	if age, _ := rec.Get("age"); !Equal(age, IntValue(31)) {
		t.Fatalf("FindOne(path) = %v, wanted age 31", rec)
	}
	if rec := must(s.FindOne(ctx, "users", MustParseObject(`{"name":"Nobody"}`))); rec != nil {
		t.Fatalf("FindOne(missing) = %v, wanted nil", rec)
	}

	all := must(s.Find(ctx, "users", MustParseObject(`{"name":"Mark"}`)))
	if len(all) != 2 {
		t.Fatalf("Find = %v, wanted 2 records", all)
	}
	if n := must(s.Count(ctx, "users", NewObject())); n != 3 {
		t.Fatalf("Count = %d, wanted 3", n)
	}

	// returned records are copies
	all[0].Set("name", StringValue("changed"))
	if n := must(s.Count(ctx, "users", MustParseObject(`{"name":"Mark"}`))); n != 2 {
		t.Fatalf("Count after modifying result = %d, wanted 2", n)
	}
}

func TestStore_IndexCache(t *testing.T) {
	ctx := context.Background()
	s, a := newTestStore(t, Options{})
	insertJSON(t, s, "users", `{"name":"Mark"}`, `{"name":"Anas"}`)

	q := MustParseObject(`{"name":"Anas"}`)
	must(s.FindOne(ctx, "users", q))
	must(s.FindOne(ctx, "users", q))
	if n := s.IndexBuildCount.Load(); n != 1 {
		t.Fatalf("IndexBuildCount = %d, wanted 1", n)
	}

	insertJSON(t, s, "users", `{"name":"Lee"}`)
	if rec := must(s.FindOne(ctx, "users", MustParseObject(`{"name":"Lee"}`))); rec == nil {
		t.Fatalf("FindOne after Insert = nil")
	}
	if n := s.IndexBuildCount.Load(); n != 2 {
		t.Fatalf("IndexBuildCount = %d, wanted 2", n)
	}

	// an external rewrite goes unnoticed until Invalidate
	ensure(a.Persist(ctx, "users", Collection{ObjectOf("name", "Lee"), ObjectOf("name", "Mark")}))
	s.Invalidate("users")
	rec := must(s.FindOne(ctx, "users", MustParseObject(`{"name":"Mark"}`)))
	if rec == nil {
		t.Fatalf("FindOne after Invalidate = nil")
	}
	if n := s.IndexBuildCount.Load(); n != 3 {
		t.Fatalf("IndexBuildCount = %d, wanted 3", n)
	}
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, Options{})
	insertJSON(t, s, "users",
		`{"name":"Mark","age":30}`,
		`{"name":"Anas","age":25}`,
		`{"name":"Mark","age":40}`,
	)

	res := must(s.Update(ctx, "users", MustParseObject(`{"name":"Mark"}`), MustParseObject(`{"$inc":{"age":1}}`), UpdateOptions{}))
	if res.Matched != 1 || res.Modified != 1 {
		t.Fatalf("Update = %+v, wanted 1 matched, 1 modified", res)
	}
	res = must(s.Update(ctx, "users", MustParseObject(`{"name":"Mark"}`), MustParseObject(`{"$set":{"tag":"m"}}`), UpdateOptions{Multi: true}))
	if res.Matched != 2 || res.Modified != 2 {
		t.Fatalf("Update(multi) = %+v, wanted 2 matched, 2 modified", res)
	}
	if got, want := dumpRecords(t, s, "users"), strings.Join([]string{
		`users.0 = {"name":"Mark","age":31,"_id":"id1","tag":"m"}`,
		`users.1 = {"name":"Anas","age":25,"_id":"id2"}`,
		`users.2 = {"name":"Mark","age":40,"_id":"id3","tag":"m"}`,
	}, "\n"); got != want {
		t.Fatalf("records:\n%s\nwanted:\n%s", got, want)
	}

	res = must(s.Update(ctx, "users", MustParseObject(`{"name":"Anas"}`), MustParseObject(`{"$set":{"age":25}}`), UpdateOptions{}))
	if res.Matched != 1 || res.Modified != 0 {
		t.Fatalf("Update(no-op) = %+v, wanted 1 matched, 0 modified", res)
	}
	res = must(s.Update(ctx, "users", MustParseObject(`{"name":"Nobody"}`), MustParseObject(`{"$set":{"x":1}}`), UpdateOptions{}))
	if res.Matched != 0 || res.Modified != 0 || !res.UpsertedID.IsNull() {
		t.Fatalf("Update(no match) = %+v", res)
	}
}

func TestStore_UpdateNoopDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	s, a := newTestStore(t, Options{})
	insertJSON(t, s, "users", `{"name":"Anas","age":25}`)
	before := a.PersistCount
	must(s.Update(ctx, "users", MustParseObject(`{"name":"Anas"}`), MustParseObject(`{"$set":{"age":25}}`), UpdateOptions{}))
	if a.PersistCount != before {
		t.Fatalf("PersistCount = %d, wanted %d", a.PersistCount, before)
	}
}

func TestStore_Upsert(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, Options{})

	res := must(s.Update(ctx, "users",
		MustParseObject(`{"name":"Mark","addr.city":"X"}`),
		MustParseObject(`{"$inc":{"visits":1},"$push":{"tags":"new"}}`),
		UpdateOptions{Upsert: true}))
	if res.Matched != 0 || !Equal(res.UpsertedID, StringValue("id1")) {
		t.Fatalf("Update(upsert) = %+v", res)
	}
	if got, want := dumpRecords(t, s, "users"), `users.0 = {"name":"Mark","addr":{"city":"X"},"visits":1,"tags":["new"],"_id":"id1"}`; got != want {
		t.Fatalf("records:\n%s\nwanted:\n%s", got, want)
	}

	res = must(s.Update(ctx, "users", MustParseObject(`{"name":"Mark"}`), MustParseObject(`{"$inc":{"visits":1}}`), UpdateOptions{Upsert: true}))
	if res.Matched != 1 || res.Modified != 1 || !res.UpsertedID.IsNull() {
		t.Fatalf("Update(upsert, match) = %+v", res)
	}
}

func TestStore_UpdateFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, Options{})
	insertJSON(t, s, "users", `{"name":"Mark","tags":"x","age":1}`)

	_, err := s.Update(ctx, "users", MustParseObject(`{"name":"Mark"}`), MustParseObject(`{"$inc":{"age":1},"$push":{"tags":"y"}}`), UpdateOptions{})
	var oe *OperationError
	if !errors.As(err, &oe) {
		t.Fatalf("Update = %v, wanted *OperationError", err)
	}
	if got, want := dumpRecords(t, s, "users"), `users.0 = {"name":"Mark","tags":"x","age":1,"_id":"id1"}`; got != want {
		t.Fatalf("records:\n%s\nwanted:\n%s", got, want)
	}
}

func TestStore_UpdateCannotChangeID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, Options{})
	insertJSON(t, s, "users", `{"name":"Mark"}`)

	for _, u := range []string{`{"$set":{"_id":"other"}}`, `{"$unset":{"_id":1}}`} {
		_, err := s.Update(ctx, "users", NewObject(), MustParseObject(u), UpdateOptions{})
		if err == nil || !strings.Contains(err.Error(), "identifier") {
			t.Fatalf("Update(%s) = %v, wanted identifier error", u, err)
		}
	}
}

func TestStore_UpdateMultiPartialFailure(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, Options{})
	insertJSON(t, s, "users", `{"g":1,"n":1}`, `{"g":1,"n":"x"}`, `{"g":1,"n":3}`)

	res, err := s.Update(ctx, "users", MustParseObject(`{"g":1}`), MustParseObject(`{"$inc":{"n":1}}`), UpdateOptions{Multi: true})
	if err == nil {
		t.Fatalf("Update succeeded, wanted error")
	}
	if res.Matched != 3 || res.Modified != 1 {
		t.Fatalf("Update = %+v, wanted 3 matched, 1 modified", res)
	}
	if got, want := dumpRecords(t, s, "users"), strings.Join([]string{
		`users.0 = {"g":1,"n":2,"_id":"id1"}`,
		`users.1 = {"g":1,"n":"x","_id":"id2"}`,
		`users.2 = {"g":1,"n":3,"_id":"id3"}`,
	}, "\n"); got != want {
		t.Fatalf("records:\n%s\nwanted:\n%s", got, want)
	}
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, Options{})
	insertJSON(t, s, "users", `{"g":1}`, `{"g":2}`, `{"g":1}`, `{"g":1}`)

	if n := must(s.Delete(ctx, "users", MustParseObject(`{"g":1}`), false)); n != 1 {
		t.Fatalf("Delete = %d, wanted 1", n)
	}
	if n := must(s.Delete(ctx, "users", MustParseObject(`{"g":1}`), true)); n != 2 {
		t.Fatalf("Delete(multi) = %d, wanted 2", n)
	}
	if n := must(s.Delete(ctx, "users", MustParseObject(`{"g":1}`), true)); n != 0 {
		t.Fatalf("Delete(none) = %d, wanted 0", n)
	}
	if got, want := dumpRecords(t, s, "users"), `users.0 = {"g":2,"_id":"id2"}`; got != want {
		t.Fatalf("records:\n%s\nwanted:\n%s", got, want)
	}
}

func TestStore_Validation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, Options{
		Validator: Validators(RequireFields("email"), UniqueFields("email")),
	})
	insertJSON(t, s, "users", `{"email":"a@x"}`, `{"email":"b@x"}`)

	_, err := s.Insert(ctx, "users", MustParseObject(`{"name":"no email"}`))
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Errors["email"] != "required" {
		t.Fatalf("Insert = %v, wanted email required", err)
	}
	if got, want := err.Error(), "users: validation failed: email: required"; got != want {
		t.Fatalf("err.Error() = %q, wanted %q", got, want)
	}

	_, err = s.Insert(ctx, "users", MustParseObject(`{"email":"a@x"}`))
	if !errors.As(err, &ve) {
		t.Fatalf("Insert(duplicate) = %v, wanted *ValidationError", err)
	}

	// updating a record does not conflict with itself
	res, err := s.Update(ctx, "users", MustParseObject(`{"email":"a@x"}`), MustParseObject(`{"$set":{"name":"A"}}`), UpdateOptions{})
	if err != nil || res.Modified != 1 {
		t.Fatalf("Update = %+v, %v", res, err)
	}
	_, err = s.Update(ctx, "users", MustParseObject(`{"email":"a@x"}`), MustParseObject(`{"$set":{"email":"b@x"}}`), UpdateOptions{})
	if !errors.As(err, &ve) {
		t.Fatalf("Update(duplicate) = %v, wanted *ValidationError", err)
	}
	if n := must(s.Count(ctx, "users", MustParseObject(`{"email":"a@x"}`))); n != 1 {
		t.Fatalf("Count = %d, wanted 1", n)
	}
}

func TestStore_CurrentDateUsesClock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC)
	s, _ := newTestStore(t, Options{Now: func() time.Time { return now }})
	insertJSON(t, s, "users", `{"name":"Mark"}`)

	must(s.Update(ctx, "users", NewObject(), MustParseObject(`{"$currentDate":{"seen":{"$type":"timestamp"}}}`), UpdateOptions{}))
	rec := must(s.FindOne(ctx, "users", NewObject()))
	if v, _ := rec.Get("seen"); !Equal(v, TimeValue(now)) {
		t.Fatalf("seen = %v, wanted %v", v, now)
	}
}

func TestStore_Replace(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, Options{Validator: UniqueFields("k")})
	err := s.Replace(ctx, "items", Collection{ObjectOf("k", 1), ObjectOf("k", 1)})
	if err == nil {
		t.Fatalf("Replace(duplicates) succeeded, wanted error")
	}
	ensure(s.Replace(ctx, "items", Collection{ObjectOf("k", 1), ObjectOf("k", 2)}))
	if n := must(s.Count(ctx, "items", NewObject())); n != 2 {
		t.Fatalf("Count = %d, wanted 2", n)
	}
}

func TestStore_NilRecord(t *testing.T) {
	ctx := context.Background()
	s, a := newTestStore(t, Options{})
	var oe *OperationError
	if _, err := s.Insert(ctx, "users", nil); !errors.As(err, &oe) {
		t.Fatalf("Insert(nil) = %v, wanted *OperationError", err)
	}
	if err := s.Replace(ctx, "users", Collection{ObjectOf("k", 1), nil}); !errors.As(err, &oe) {
		t.Fatalf("Replace(nil record) = %v, wanted *OperationError", err)
	}
	if n := must(a.Load(ctx, "users")); len(n) != 0 {
		t.Fatalf("users = %v, wanted empty", n)
	}
}

func TestStore_Collections(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, Options{})
	insertJSON(t, s, "b", `{}`)
	insertJSON(t, s, "a", `{}`)
	if got := must(s.Collections(ctx)); strings.Join(got, ",") != "a,b" {
		t.Fatalf("Collections = %v, wanted [a b]", got)
	}
}

func TestStore_FileRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a := must(NewFileAdapter(dir, FileOptions{Format: FormatBinary, Secret: "k"}))
	s := Open(a, Options{})
	defer s.Close()

	insertJSON(t, s, "users", `{"name":"Mark","tags":["a"],"score":1.5}`)
	must(s.Update(ctx, "users", NewObject(), MustParseObject(`{"$push":{"tags":"b"}}`), UpdateOptions{}))

	s2 := Open(must(NewFileAdapter(dir, FileOptions{Format: FormatBinary, Secret: "k"})), Options{})
	rec := must(s2.FindOne(ctx, "users", MustParseObject(`{"tags":["a","b"]}`)))
	if rec == nil {
		t.Fatalf("FindOne in reopened store = nil")
	}
	if v, _ := rec.Get("score"); !Equal(v, NumberValue(1.5)) {
		t.Fatalf("score = %v, wanted 1.5", v)
	}
}
