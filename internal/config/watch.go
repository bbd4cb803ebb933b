package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/atomic"
)

// defaultWatchPoll is the stat interval once the watcher falls back to polling.
const defaultWatchPoll = 2 * time.Second

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher reports changes to the config file. It watches the containing
// directory, since atomic saves replace the file rather than write to it,
// and falls back to stat polling when fsnotify is unavailable or fails.
type Watcher struct {
	// path is the watched config file.
	path string
	// events is buffered to 1 so bursts of changes coalesce.
	events chan struct{}
	// done is closed by [Watcher.Close].
	done chan struct{}
	// exited is closed when the watch goroutine returns.
	exited chan struct{}
	once   sync.Once
	// polling is true once the watcher uses stat polling.
	polling      atomic.Bool
	pollInterval time.Duration
	// last and lastOK are the poll baseline, owned by the watch goroutine
	// once it starts.
	last   os.FileInfo
	lastOK bool
}

// NewWatcher starts watching the config file at path. It never fails: when
// the native watcher cannot be set up, polling is used instead.
func NewWatcher(path string) *Watcher {
	return newWatcher(path, defaultWatchPoll, false)
}

func newWatcher(path string, pollInterval time.Duration, forcePoll bool) *Watcher {
	w := &Watcher{
		path:         path,
		events:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		exited:       make(chan struct{}),
		pollInterval: pollInterval,
	}
	w.last, w.lastOK = w.stat()

	if forcePoll {
		w.polling.Store(true)
		go w.run(nil)
		return w
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.polling.Store(true)
		go w.run(nil)
		return w
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		slog.Info("cannot watch config directory, falling back to polling", "path", path, "error", err)
		fsw.Close()
		w.polling.Store(true)
		go w.run(nil)
		return w
	}
	go w.run(fsw)
	return w
}

// Events returns a channel that receives a value after the file changes.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	w.once.Do(func() {
		close(w.done)
	})
	<-w.exited
	return nil
}

// run owns fsw. It watches natively until fsnotify reports an error, then
// polls for the rest of its life.
func (w *Watcher) run(fsw *fsnotify.Watcher) {
	defer close(w.exited)
	if fsw != nil {
		ok := w.watch(fsw)
		fsw.Close()
		if ok {
			return
		}
		w.polling.Store(true)
		w.last, w.lastOK = w.stat()
	}
	w.poll()
}

// watch forwards events for the config file. It returns true when closed
// and false on a watcher error.
func (w *Watcher) watch(fsw *fsnotify.Watcher) bool {
	name := filepath.Base(w.path)
	for {
		select {
		case <-w.done:
			return true
		case event, ok := <-fsw.Events:
			if !ok {
				return false
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.notify()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return false
			}
			slog.Info("fsnotify error, switching to polling", "error", err)
			return false
		}
	}
}

// poll stats the file and notifies when its modification time or size
// changes, including appearance and removal.
func (w *Watcher) poll() {
	last, lastOK := w.last, w.lastOK

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			cur, ok := w.stat()
			if ok != lastOK || (ok && (!cur.ModTime().Equal(last.ModTime()) || cur.Size() != last.Size())) {
				last, lastOK = cur, ok
				w.notify()
			}
		}
	}
}

func (w *Watcher) stat() (os.FileInfo, bool) {
	info, err := os.Stat(w.path)
	return info, err == nil
}

// notify sends one pending event, dropping it if one is already queued.
func (w *Watcher) notify() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
