package ruleset

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a ruleset file whenever it changes on disk and hands the
// parsed result to a callback. A file that fails to parse is logged and
// skipped, so a half-saved edit never tears down a running server.
type Watcher struct {
	path     string
	callback func(*Set)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// WatchFile starts watching the ruleset at path. The directory is watched
// rather than the file itself because most editors replace the file on save.
// Call Stop() to clean up.
func WatchFile(path string, callback func(*Set)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, err
	}

	rw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		done:     make(chan struct{}),
	}
	go rw.loop()
	log.Printf("ruleset: watching %s for changes", path)
	return rw, nil
}

// Stop shuts down the watcher.
func (rw *Watcher) Stop() {
	_ = rw.watcher.Close()
	<-rw.done
}

func (rw *Watcher) loop() {
	defer close(rw.done)
	base := filepath.Base(rw.path)
	for {
		select {
		case evt, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(evt.Name) != base {
				continue
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				rw.reload()
			}
		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("ruleset: watcher error: %v", err)
		}
	}
}

func (rw *Watcher) reload() {
	set, err := Load(rw.path)
	if err != nil {
		log.Printf("ruleset: reload skipped: %v", err)
		return
	}
	rw.callback(set)
}
