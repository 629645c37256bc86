package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces rapid file-change events before reloading.
const DefaultDebounce = 500 * time.Millisecond

// AutoReload watches the attached configuration file and re-resolves the
// active environment whenever the file changes. The returned channel
// receives the active environment name after each successful reload; slow
// receivers miss notifications rather than blocking the watcher. Watching
// stops when the context is cancelled.
//
// The parent directory is watched rather than the file itself because most
// editors and atomic writers replace the file, which would otherwise drop
// the watch.
func (r *Resolver) AutoReload(ctx context.Context, debounce time.Duration) (<-chan string, error) {
	path := r.FilePath()
	if path == "" {
		return nil, errors.New("no configuration file attached")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch '%s': %w", filepath.Dir(path), err)
	}

	notify := make(chan string, 1)

	go func() {
		defer watcher.Close()
		defer close(notify)

		var timer *time.Timer
		var fire <-chan time.Time

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
					fire = timer.C
				} else {
					// Drain a tick that landed between the event and the
					// reset, or the stale tick would fire the reload early.
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(debounce)
				}

			case <-fire:
				timer = nil
				fire = nil
				if err := r.reload(path); err != nil {
					// Keep serving the previous snapshot on a bad reload.
					continue
				}
				select {
				case notify <- r.Active():
				default:
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return notify, nil
}

// reload re-reads the file tier and rebuilds the active snapshot.
func (r *Resolver) reload(path string) error {
	if err := r.loadFile(path); err != nil {
		return err
	}
	return r.Switch(r.Active())
}
