// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 100 * time.Millisecond

// Watch reloads the config file whenever it changes and passes the result
// to the WithOnChange callback. Invalid reloads are logged and skipped.
// Blocks until ctx is cancelled.
func (l *Loader) Watch(ctx context.Context) error {
	if l.path == "" {
		slog.Debug("No config file to watch")
		<-ctx.Done()
		return ctx.Err()
	}

	changes, err := l.watchFile(ctx)
	if err != nil {
		return fmt.Errorf("failed to start watching: %w", err)
	}
	slog.Info("Watching config file", "path", l.path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return ctx.Err()
			}
			cfg, err := l.Load(ctx)
			if err != nil {
				slog.Error("Failed to reload config", "error", err)
				continue
			}
			slog.Info("Configuration reloaded", "path", l.path)
			if l.onChange != nil {
				l.onChange(cfg)
			}
		}
	}
}

// watchFile signals on the returned channel after writes to the config
// file settle. The directory is watched so editors that replace the file
// are seen too.
func (l *Loader) watchFile(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer watcher.Close()

		name := filepath.Base(l.path)
		debounce := time.NewTimer(debounceDelay)
		debounce.Stop()
		defer debounce.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-debounce.C:
				select {
				case ch <- struct{}{}:
				default:
					// A reload is already pending.
				}
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					if event.Op&fsnotify.Remove != 0 {
						slog.Warn("Config file was removed", "path", l.path)
					}
					continue
				}
				debounce.Reset(debounceDelay)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("File watcher error", "error", err)
			}
		}
	}()
	return ch, nil
}
