package localstore

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watcher bridges fsnotify events into store notifications so writes made by
// other processes reach subscribers too. Revisions are tracked to suppress
// duplicate events for writes this process performed itself.
type watcher struct {
	store *FileStore

	fsw  *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup
}

func newWatcher(store *FileStore) *watcher {
	return &watcher{store: store, done: make(chan struct{})}
}

func (w *watcher) start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	err = filepath.WalkDir(w.store.dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return err
	}

	w.wg.Add(1)
	go w.run()
	return nil
}

func (w *watcher) stop() error {
	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.store.logger.Warn("store watch error", zap.Error(err))
		}
	}
}

func (w *watcher) handle(event fsnotify.Event) {
	// New key directories need their own watch.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(event.Name); err != nil {
				w.store.logger.Warn("store watch add failed",
					zap.String("path", event.Name),
					zap.Error(err),
				)
			}
			return
		}
	}

	key, ok := w.store.keyFor(event.Name)
	if !ok {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.store.mu.Lock()
		_, known := w.store.revisions[key]
		if _, err := os.Stat(event.Name); err == nil {
			// Rename target still exists; treat as a write below.
			known = false
		}
		if known {
			delete(w.store.revisions, key)
			w.store.mu.Unlock()
			w.store.notify(Event{Key: key, Deleted: true})
			return
		}
		w.store.mu.Unlock()
		fallthrough
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		data, err := os.ReadFile(event.Name)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				w.store.logger.Warn("store watch read failed",
					zap.String("key", key),
					zap.Error(err),
				)
			}
			return
		}
		rev := revisionOf(data)

		w.store.mu.Lock()
		if w.store.revisions[key] == rev {
			// Already observed, typically our own write.
			w.store.mu.Unlock()
			return
		}
		w.store.revisions[key] = rev
		w.store.mu.Unlock()

		w.store.notify(Event{Key: key, Revision: rev})
	}
}
