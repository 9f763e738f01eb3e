package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadDelay is how long the watcher waits for further changes before reloading.
var ReloadDelay = 500 * time.Millisecond

// Watch reloads the catalog from paths whenever a catalog file or behavior
// script under them changes. onReload runs after every successful reload with
// the files that triggered it. A failed reload keeps the previous contents
// and is logged. Watching stops when ctx is cancelled.
func (c *Catalog) Watch(ctx context.Context, paths []string, onReload func(changed []string) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}

		if info.IsDir() {
			if err := watchDirectory(watcher, path); err != nil {
				c.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
			}
		} else if err := watcher.Add(filepath.Dir(path)); err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch file")
		}
	}

	go c.processEvents(ctx, watcher, ReloadDelay, paths, onReload)

	c.logger.Info().Int("paths", len(paths)).Msg("Started watching catalog paths")
	return nil
}

func watchDirectory(w *fsnotify.Watcher, dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func (c *Catalog) processEvents(ctx context.Context, w *fsnotify.Watcher, delay time.Duration, paths []string, onReload func([]string) error) {
	var (
		mu      sync.Mutex
		timer   *time.Timer
		pending = make(map[string]struct{})
	)

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		_ = w.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !isCatalogFile(event.Name) && filepath.Ext(event.Name) != ".star" {
				continue
			}

			c.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Catalog file changed")

			mu.Lock()
			pending[event.Name] = struct{}{}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(delay, func() {
				mu.Lock()
				changed := make([]string, 0, len(pending))
				for f := range pending {
					changed = append(changed, f)
				}
				pending = make(map[string]struct{})
				mu.Unlock()

				if ctx.Err() != nil {
					return
				}
				sort.Strings(changed)
				if err := c.reload(paths, changed, onReload); err != nil {
					c.logger.Error().Err(err).Msg("Failed to reload catalog")
				}
			})
			mu.Unlock()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			c.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (c *Catalog) reload(paths, changed []string, onReload func([]string) error) error {
	c.logger.Info().Strs("changed", changed).Msg("Reloading catalog")

	if err := c.LoadPaths(paths); err != nil {
		return fmt.Errorf("failed to reload catalog: %w", err)
	}
	if onReload == nil {
		return nil
	}
	if err := onReload(changed); err != nil {
		return fmt.Errorf("failed to apply reloaded catalog: %w", err)
	}
	return nil
}
