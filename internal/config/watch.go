// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a config file must be quiet before it is reloaded.
const DefaultDebounce = 250 * time.Millisecond

// Watch reloads path whenever it changes and passes the new config to fn.
// The parent directory is watched so editors that replace the file are
// picked up. A file that fails to load or validate is logged and skipped;
// fn only ever sees valid configs. Watch returns once ctx is canceled.
func Watch(ctx context.Context, path string, debounce time.Duration, fn func(*Config)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	var lastChange time.Time

	ticker := time.NewTicker(debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			lastChange = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("CONFIG_WATCH_ERROR | path=%s error=%v", target, err)

		case now := <-ticker.C:
			if lastChange.IsZero() || now.Sub(lastChange) < debounce {
				continue
			}
			lastChange = time.Time{}

			cfg, err := LoadFromPath(target)
			if err != nil {
				log.Printf("CONFIG_RELOAD_FAILED | path=%s error=%v", target, err)
				continue
			}
			log.Printf("CONFIG_RELOADED | path=%s endpoint=%s byte_limit=%d", target, cfg.Upstream.Endpoint, cfg.Forward.ByteLimit)
			fn(cfg)
		}
	}
}
