package flatdb

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// Watch invalidates cached indexes when collection files in dir are written,
// replaced or removed by another process. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("flatdb: watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("flatdb: watch %s: %w", dir, err)
	}
	s.debugf("WATCH %s", dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if name, _, ok := SplitFileName(ev.Name); ok {
				s.debugf("WATCH.CHANGE %s (%v)", name, ev.Op)
				s.Invalidate(name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if s.logf != nil {
				s.logf("flatdb: WATCH.ERROR %s: %v", dir, err)
			}
		}
	}
}
