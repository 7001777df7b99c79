// Package watch reports changes of archive files on disk.
package watch

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/shapedtime/classfs/internal/vfs"
)

var _ vfs.ChangeNotifier = &Watcher{}

// Watcher turns fsnotify events on watched archives into change events.
// fsnotify watches directories, so each archive's parent directory is watched
// and events are filtered by file name.
type Watcher struct {
	w *fsnotify.Watcher

	mu    sync.Mutex
	dirs  map[string]bool
	files map[string]string // cleaned file path -> locator
	subs  []func(vfs.ChangeEvent)

	done chan struct{}
}

// New starts a watcher. Close stops it.
func New() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		w:     fw,
		dirs:  make(map[string]bool),
		files: make(map[string]string),
		done:  make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Subscribe registers fn for every change event.
func (w *Watcher) Subscribe(fn func(vfs.ChangeEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
}

// Watch starts reporting changes of the archive behind locator. Watching a
// locator twice is a no-op.
func (w *Watcher) Watch(locator string) error {
	file := filepath.Clean(strings.TrimPrefix(locator, "file://"))
	dir := filepath.Dir(file)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.files[file]; ok {
		return nil
	}
	if !w.dirs[dir] {
		if err := w.w.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	w.files[file] = locator

	log.Debug().Str("locator", locator).Str("dir", dir).Msg("watch: watching archive")
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.w.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)

	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("watch: fsnotify error")
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	var kind vfs.ChangeKind
	switch {
	case ev.Has(fsnotify.Remove):
		kind = vfs.ChangeDeleted
	case ev.Has(fsnotify.Rename):
		kind = vfs.ChangeMoved
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Create):
		kind = vfs.ChangeModified
	default:
		return
	}

	w.mu.Lock()
	locator, ok := w.files[filepath.Clean(ev.Name)]
	subs := append([]func(vfs.ChangeEvent){}, w.subs...)
	w.mu.Unlock()
	if !ok {
		return
	}

	log.Debug().
		Str("locator", locator).
		Stringer("kind", kind).
		Msg("watch: archive changed")

	ce := vfs.ChangeEvent{Locator: locator, Kind: kind}
	for _, fn := range subs {
		fn(ce)
	}
}
