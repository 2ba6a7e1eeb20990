// Package watch observes the migration directory for changes.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher invokes a callback whenever the watched directory changes, with
// debouncing so a burst of writes triggers a single callback.
type Watcher struct {
	dir      string
	callback func() error
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher creates a watcher over dir.
func NewWatcher(dir string, callback func() error) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to resolve directory: %w", err)
	}
	if err := w.Add(abs); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", abs, err)
	}
	return &Watcher{dir: abs, callback: callback, watcher: w, done: make(chan struct{})}, nil
}

// Start runs the callback once immediately, then again after each debounced
// change until Stop is called.
func (w *Watcher) Start() error {
	if err := w.callback(); err != nil {
		return fmt.Errorf("initial callback failed: %w", err)
	}

	go func() {
		debounce := time.NewTimer(400 * time.Millisecond)
		debounce.Stop()
		var pending <-chan time.Time

		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) != 0 {
					debounce.Reset(400 * time.Millisecond)
					pending = debounce.C
				}

			case <-pending:
				if err := w.callback(); err != nil {
					fmt.Fprintf(os.Stderr, "watch callback error: %v\n", err)
				}
				pending = nil

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				fmt.Fprintf(os.Stderr, "watch error: %v\n", err)

			case <-w.done:
				return
			}
		}
	}()
	return nil
}

// Stop ends the watch.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}
