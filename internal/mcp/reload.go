package mcp

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce is how long the file must be quiet before reloading.
const reloadDebounce = 500 * time.Millisecond

// Reloader watches the gate lists file and calls reload when it changes.
// The parent directory is watched so editors that replace the file by
// rename are picked up too.
type Reloader struct {
	watcher *fsnotify.Watcher
	path    string
	reload  func() error
	log     io.Writer
}

// NewReloader creates a watcher for path.
func NewReloader(path string, reload func() error, log io.Writer) (*Reloader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(abs), err)
	}

	return &Reloader{watcher: watcher, path: abs, reload: reload, log: log}, nil
}

// Run watches for changes until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				if err := r.reload(); err != nil {
					fmt.Fprintf(r.log, "hot-reload failed: %v\n", err)
				} else {
					fmt.Fprintf(r.log, "hot-reload: gate lists reloaded from %s\n", r.path)
				}
			})

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(r.log, "file watcher error: %v\n", err)
		}
	}
}
