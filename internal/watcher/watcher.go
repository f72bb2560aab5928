// Package watcher monitors the archive for Index file changes and
// recatalogs the affected directories.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ifarchive/indexadmin/internal/archive"
	"github.com/ifarchive/indexadmin/internal/catalog"
	"github.com/ifarchive/indexadmin/internal/store"
)

// debounceDelay is how long changes collect before a recatalog.
var debounceDelay = 2 * time.Second

// Watch watches every archive directory and recatalogs directories whose
// Index file is written, created, renamed, or removed. It blocks until ctx
// is done or the watcher fails.
func Watch(ctx context.Context, db *store.DB, arch *archive.Archive) error {
	L := arch.Logger().Named("watcher")

	root, err := filepath.Abs(arch.Root)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	dirs := walkDirs(root, arch.SkipDirs)
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			L.Warn("could not watch", "dir", d, "error", err)
		}
	}
	L.Info("watching archive", "root", root, "dirs", len(dirs))

	deb := newDebouncer(debounceDelay, func(dirnames []string) {
		for _, d := range dirnames {
			if err := catalog.IndexDir(db, arch, d); err != nil {
				L.Error("recatalog failed", "dir", d, "error", err)
				continue
			}
			L.Info("recataloged", "dir", d)
		}
	})
	defer deb.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}

			if filepath.Base(event.Name) != arch.IndexName {
				// Watch new directories
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if !arch.SkipDirs[filepath.Base(event.Name)] {
							if err := w.Add(event.Name); err != nil {
								L.Warn("could not watch", "dir", event.Name, "error", err)
							}
						}
					}
				}
				continue
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			dirname, ok := dirnameOf(root, event.Name)
			if !ok {
				continue
			}
			deb.add(dirname)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			L.Warn("watch error", "error", err)
		}
	}
}

// debouncer collects dirnames and hands them to fn, sorted, once no new
// dirname has arrived for delay.
type debouncer struct {
	delay time.Duration
	fn    func([]string)

	mu       sync.Mutex
	pending  map[string]bool
	timer    *time.Timer
	stopped  bool
	inflight sync.WaitGroup
}

func newDebouncer(delay time.Duration, fn func([]string)) *debouncer {
	return &debouncer{delay: delay, fn: fn, pending: make(map[string]bool)}
}

func (d *debouncer) add(dirname string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending[dirname] = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.pending) == 0 {
		d.mu.Unlock()
		return
	}
	d.inflight.Add(1)
	defer d.inflight.Done()
	dirnames := make([]string, 0, len(d.pending))
	for name := range d.pending {
		dirnames = append(dirnames, name)
	}
	d.pending = make(map[string]bool)
	d.mu.Unlock()

	sort.Strings(dirnames)
	d.fn(dirnames)
}

// stop cancels any scheduled flush and waits for a running one to return.
// Nothing is flushed after stop returns.
func (d *debouncer) stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.inflight.Wait()
}

// dirnameOf returns the archive dirname holding the file at indexPath.
func dirnameOf(root, indexPath string) (string, bool) {
	rel, err := filepath.Rel(root, filepath.Dir(indexPath))
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

func walkDirs(root string, skip map[string]bool) []string {
	var dirs []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && skip[d.Name()] {
				return filepath.SkipDir
			}
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs
}
