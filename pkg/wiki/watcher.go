package wiki

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// watcher keeps the index in sync with on-disk changes outside the
// editor: files written by other tools still resolve as link targets.
type watcher struct {
	h    *Handlers
	fsw  *fsnotify.Watcher
	done chan struct{}
}

func startWatcher(h *Handlers) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &watcher{h: h, fsw: fsw, done: make(chan struct{})}
	if err := w.addDirs(h.rootPath); err != nil {
		fsw.Close() //nolint:errcheck
		return nil, err
	}

	go w.loop()
	return w, nil
}

// addDirs watches root and every non-excluded subdirectory.
func (w *watcher) addDirs(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && slices.Contains(w.h.cfg.Exclude, d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *watcher) loop() {
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
			w.h.logger.Printf("watch error: %v", err)
		}
	}
}

func (w *watcher) handle(event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !slices.Contains(w.h.cfg.Exclude, filepath.Base(event.Name)) {
				w.fsw.Add(event.Name) //nolint:errcheck
			}
			return
		}
	}

	if !w.matches(event.Name) {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		w.h.index.Remove(pathToURI(event.Name))
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		content, err := os.ReadFile(event.Name)
		if err != nil {
			return
		}
		uri := pathToURI(event.Name)
		w.h.index.Update(uri, string(content))
		w.h.publishDiagnostics(uri, string(content))
	}
}

// matches reports whether the path falls under the content globs.
func (w *watcher) matches(path string) bool {
	rel, err := filepath.Rel(w.h.rootPath, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.h.cfg.Globs {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func (w *watcher) close() {
	close(w.done)
	w.fsw.Close() //nolint:errcheck
}
