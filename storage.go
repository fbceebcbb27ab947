package flatdb

import (
	"context"
	"fmt"
	"strings"
)

// Adapter loads and persists whole collections. A collection that has never
// been persisted loads as an empty, non-nil Collection.
//
// Persist always rewrites the complete collection; adapters keep no history.
// Collections passed to Persist and returned by Load are owned by the caller.
type Adapter interface {
	Load(ctx context.Context, name string) (Collection, error)
	Persist(ctx context.Context, name string, coll Collection) error
	Close() error
}

// Lister is implemented by adapters that can enumerate their collections.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// ValidateName rejects collection names that cannot be used as a file name
// or object key segment.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case len(name) > 200:
		return fmt.Errorf("%w: %q is too long", ErrInvalidName, name)
	case name == "." || name == ".." || strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q starts with a dot", ErrInvalidName, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}

func adapterErrf(adapter, name string, err error) error {
	return fmt.Errorf("%s: %s: %w", adapter, name, err)
}
