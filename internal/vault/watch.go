package vault

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// WatchConfig watches a configuration file and swaps in the sources
// rebuilt by the given function whenever it changes. The watch is on the
// containing directory, since editors replace files and a watch on the
// file itself dies with the old inode. It blocks until the context is
// cancelled.
func (v *Vault) WatchConfig(ctx context.Context, path string, rebuild func() ([]Source, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	v.logger.Info("watching configuration for changes", "path", path)

	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			v.logger.Debug("configuration changed", "op", event.Op)

			// Debounce: reset timer on each event
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				sources, err := rebuild()
				if err != nil {
					v.logger.Error("configuration reload failed", "error", err)
					return
				}
				v.SetSources(sources)
				v.logger.Info("configuration reloaded", "sources", len(sources))
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			v.logger.Error("file watcher error", "error", err)
		}
	}
}
