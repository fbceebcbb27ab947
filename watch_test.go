package flatdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func (s *Store) hasIndex(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indices[name] != nil
}

func TestStore_Watch(t *testing.T) {
	dir := t.TempDir()
	a := must(NewFileAdapter(dir, FileOptions{}))
	s := Open(a, Options{Logf: t.Logf, Verbose: true})
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, dir)
	}()

	insertJSON(t, s, "users", `{"name":"Mark"}`)
	deadline := time.Now().Add(5 * time.Second)
	for {
		must(s.FindOne(context.Background(), "users", NewObject()))
		// rewrite behind the store's back until the watcher notices
		ensure(os.WriteFile(filepath.Join(dir, "users.json"), []byte(`[{"name":"Lee"}]`), 0o644))
		time.Sleep(20 * time.Millisecond)
		if !s.hasIndex("users") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("index of users still cached after external writes")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch = %v, wanted nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Watch did not return after cancel")
	}
}

func TestStore_WatchMissingDir(t *testing.T) {
	s := Open(NewMemAdapter(), Options{})
	if err := s.Watch(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("Watch(missing dir) succeeded, wanted error")
	}
}
