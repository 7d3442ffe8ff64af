// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet period before a changed file is reloaded.
const DefaultDebounce = 250 * time.Millisecond

// WatchOptions tunes Watch.
type WatchOptions struct {
	Debounce time.Duration
	Logger   zerolog.Logger
}

// Watch reloads the config file at path whenever it changes and hands the
// new Config to fn. Reloads that fail to parse or validate are logged and
// skipped. Watch returns once the watcher is running; it stops when ctx is
// done.
//
// The parent directory is watched rather than the file so editors that
// replace the file by rename are still seen.
func Watch(ctx context.Context, path string, fn func(*Config), opts ...WatchOptions) error {
	var o WatchOptions
	if len(opts) > 0 {
		o = opts[0]
	} else {
		o.Logger = zerolog.Nop()
	}
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return err
	}

	cw := &configWatcher{
		path:     abs,
		watcher:  watcher,
		debounce: o.Debounce,
		log:      o.Logger,
		fn:       fn,
	}
	go cw.run(ctx)
	return nil
}

type configWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	log      zerolog.Logger
	fn       func(*Config)

	mu      sync.Mutex
	pending time.Time // zero when nothing is queued
}

func (cw *configWatcher) run(ctx context.Context) {
	defer cw.watcher.Close()

	ticker := time.NewTicker(cw.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				cw.mu.Lock()
				cw.pending = time.Now()
				cw.mu.Unlock()
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log.Warn().Err(err).Msg("config watcher error")

		case <-ticker.C:
			cw.mu.Lock()
			due := !cw.pending.IsZero() && time.Since(cw.pending) >= cw.debounce
			if due {
				cw.pending = time.Time{}
			}
			cw.mu.Unlock()

			if due {
				cw.reload()
			}
		}
	}
}

func (cw *configWatcher) reload() {
	cfg, err := LoadFromPath(cw.path)
	if err != nil {
		cw.log.Warn().Err(err).Str("path", cw.path).Msg("config reload skipped")
		return
	}
	cw.log.Info().Str("path", cw.path).Msg("config reloaded")
	cw.fn(cfg)
}
