package loader

import (
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the coalescing window the watcher waits for a burst of
// filesystem events to settle before re-running the full directory load.
const DefaultDebounce = 250 * time.Millisecond

// Watcher re-runs LoadDirectory whenever files under its directory change,
// coalescing bursts of events into one reload.
type Watcher struct {
	dir      string
	debounce time.Duration
	onLoad   func(LoadResult)
	watcher  *fsnotify.Watcher
	stop     chan struct{}
}

// NewWatcher returns a Watcher for dir. onLoad is called with every
// subsequent LoadDirectory result (the initial load is the caller's
// responsibility, before calling Start).
func NewWatcher(dir string, debounce time.Duration, onLoad func(LoadResult)) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{dir: dir, debounce: debounce, onLoad: onLoad, watcher: fsw, stop: make(chan struct{})}, nil
}

// Start runs the debounce loop until Close is called. Intended to run in
// its own goroutine.
func (w *Watcher) Start() {
	var timer *time.Timer
	var timerC <-chan time.Time

	reset := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		}
		timerC = timer.C
	}

	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				reset()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("rules: watcher error: %v", err)
		case <-timerC:
			result, err := LoadDirectory(w.dir)
			if err != nil {
				log.Printf("rules: reload of %s failed: %v", w.dir, err)
				continue
			}
			w.onLoad(result)
		}
	}
}

// Close stops the watcher and releases its filesystem handle.
func (w *Watcher) Close() error {
	close(w.stop)
	return w.watcher.Close()
}
